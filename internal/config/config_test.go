package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
}

func TestLoadAppliesDefaults(t *testing.T) {
	resetViper(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/geoindex")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gis_data", cfg.DataDir)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 150, cfg.GridSize)
	assert.Equal(t, SpatialIndexGrid, cfg.IndexKind)
}

func TestLoadMissingDatabaseURLErrors(t *testing.T) {
	resetViper(t)
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsUnknownSpatialIndexKind(t *testing.T) {
	resetViper(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/geoindex")
	t.Setenv("SPATIAL_INDEX", "quadtree")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsNonPositiveGridSize(t *testing.T) {
	resetViper(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/geoindex")
	t.Setenv("GRID_SIZE", "0")

	_, err := Load()
	assert.Error(t, err)
}
