// Package config loads server and batch-command configuration from a
// .env file (if present) and the process environment, following the
// teacher's godotenv.Load + viper.AutomaticEnv pattern.
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// SpatialIndexKind selects which spatialindex implementation a region
// loads at startup.
type SpatialIndexKind string

const (
	SpatialIndexGrid  SpatialIndexKind = "grid"
	SpatialIndexRTree SpatialIndexKind = "rtree"
)

// Config holds every environment-sourced setting the server and gisctl
// commands need.
type Config struct {
	DatabaseURL string
	APIKey      string
	DataDir     string
	Port        string
	RedisAddr   string
	GridSize    int
	IndexKind   SpatialIndexKind
}

// Load reads .env (if present, ignored if missing) then the process
// environment, applying the same defaults the original CLI's argument
// parser used.
func Load() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()
	viper.SetDefault("DATA_DIR", "gis_data")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("GRID_SIZE", 150)
	viper.SetDefault("SPATIAL_INDEX", string(SpatialIndexGrid))

	cfg := &Config{
		DatabaseURL: viper.GetString("DATABASE_URL"),
		APIKey:      viper.GetString("API_KEY"),
		DataDir:     viper.GetString("DATA_DIR"),
		Port:        viper.GetString("PORT"),
		RedisAddr:   viper.GetString("REDIS_ADDR"),
		GridSize:    viper.GetInt("GRID_SIZE"),
		IndexKind:   SpatialIndexKind(viper.GetString("SPATIAL_INDEX")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is not set")
	}
	if cfg.IndexKind != SpatialIndexGrid && cfg.IndexKind != SpatialIndexRTree {
		return nil, fmt.Errorf("config: SPATIAL_INDEX must be %q or %q, got %q", SpatialIndexGrid, SpatialIndexRTree, cfg.IndexKind)
	}
	if cfg.GridSize <= 0 {
		return nil, fmt.Errorf("config: GRID_SIZE must be positive, got %d", cfg.GridSize)
	}

	return cfg, nil
}
