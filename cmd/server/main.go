// Command server runs the HTTP query API: /addresses, /buildings,
// /intersect, plus /health and /metrics. Every region with a building
// index file under DATA_DIR has its records and spatial index loaded
// once at startup.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/citygrid/geoindex/internal/cache"
	"github.com/citygrid/geoindex/internal/config"
	"github.com/citygrid/geoindex/internal/geometry"
	"github.com/citygrid/geoindex/internal/httpapi"
	"github.com/citygrid/geoindex/internal/metrics"
	"github.com/citygrid/geoindex/internal/model"
	"github.com/citygrid/geoindex/internal/query"
	"github.com/citygrid/geoindex/internal/spatialindex"
	"github.com/citygrid/geoindex/internal/store"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "server: build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("server: load config: %w", err)
	}

	ctx := context.Background()
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("server: open store: %w", err)
	}
	addressRepo := store.NewAddressRepository(db)
	buildingRepo := store.NewBuildingRepository(db)
	bucketRepo := store.NewBucketRepository(db)

	regions, err := discoverRegions(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("server: discover regions: %w", err)
	}

	engines := make(map[string]*query.Engine, len(regions))
	for _, region := range regions {
		engine, err := loadEngine(ctx, cfg, region, addressRepo, buildingRepo, bucketRepo, logger)
		if err != nil {
			return fmt.Errorf("server: load region %q: %w", region, err)
		}
		engines[region] = engine
		logger.Info("region loaded", zap.String("region", region),
			zap.Int("buildings", len(engine.Buildings)), zap.Int("addresses", len(engine.Addresses)))
	}

	var responseCache *cache.ResponseCache
	if cfg.RedisAddr != "" {
		responseCache, err = cache.New(cfg.RedisAddr, logger)
		if err != nil {
			logger.Warn("response cache unavailable, continuing without it", zap.Error(err))
			responseCache = nil
		} else {
			defer responseCache.Close()
		}
	}

	lookup := func(region string) (*query.Engine, bool) {
		e, ok := engines[region]
		return e, ok
	}
	server := httpapi.NewServer(lookup, responseCache, logger)

	apiCfg := httpapi.DefaultConfig
	apiCfg.APIKey = cfg.APIKey
	router := server.Router(apiCfg, logger)

	logger.Info("listening", zap.String("port", cfg.Port))
	return router.Run(":" + cfg.Port)
}

// discoverRegions lists the region names with a persisted building
// spatial index file under dataDir (buildings_<region>_{grid,rtree}).
func discoverRegions(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(dataDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var regions []string
	for _, e := range entries {
		name := e.Name()
		for _, suffix := range []string{"_grid", "_rtree"} {
			const prefix = "buildings_"
			if len(name) > len(prefix)+len(suffix) && name[:len(prefix)] == prefix && name[len(name)-len(suffix):] == suffix {
				region := name[len(prefix) : len(name)-len(suffix)]
				if !seen[region] {
					seen[region] = true
					regions = append(regions, region)
				}
			}
		}
	}
	return regions, nil
}

func loadEngine(
	ctx context.Context,
	cfg *config.Config,
	region string,
	addressRepo *store.AddressRepository,
	buildingRepo *store.BuildingRepository,
	bucketRepo *store.BucketRepository,
	logger *zap.Logger,
) (*query.Engine, error) {
	buildings, err := buildingRepo.SelectByRegion(ctx, region)
	if err != nil {
		return nil, err
	}
	addresses, err := addressRepo.SelectByRegion(ctx, region)
	if err != nil {
		return nil, err
	}
	if _, err := bucketRepo.Get(ctx, region); err != nil {
		return nil, fmt.Errorf("missing bucket record: %w", err)
	}

	start := time.Now()
	var buildingFinder, addressFinder query.Finder
	switch cfg.IndexKind {
	case config.SpatialIndexRTree:
		buildingFinder, addressFinder, err = loadRTreeFinders(cfg, region, buildings, addresses)
	default:
		buildingFinder, addressFinder, err = loadGridFinders(cfg, region, buildings, addresses)
	}
	if err != nil {
		return nil, err
	}
	metrics.IndexLoadSeconds.WithLabelValues(region, string(cfg.IndexKind)).Observe(time.Since(start).Seconds())

	return &query.Engine{
		Buildings:      buildings,
		Addresses:      addresses,
		BuildingFinder: buildingFinder,
		AddressFinder:  addressFinder,
	}, nil
}

func loadRTreeFinders(cfg *config.Config, region string, buildings []*model.Building, addresses []*model.Address) (query.Finder, query.Finder, error) {
	buildingTree, err := spatialindex.LoadRTree(filepath.Join(cfg.DataDir, "buildings_"+region+"_rtree"))
	if err != nil {
		return nil, nil, err
	}
	addressTree, err := spatialindex.LoadRTree(filepath.Join(cfg.DataDir, "addresses_"+region+"_rtree"))
	if err != nil {
		return nil, nil, err
	}
	return query.NewRTreeFinder(buildingTree), query.NewRTreeFinder(addressTree), nil
}

// loadGridFinders opens the persisted grid partitions and wraps them
// with center-lookup callbacks into the freshly loaded record slices.
// A grid bucket stores positions into the slice NewGrid was built
// from; since that slice (at gisctl build-rtree time) and this one
// (at server startup) are both SelectByRegion's idx-ordered, dense
// output, a bucket position still resolves to the same record here.
func loadGridFinders(cfg *config.Config, region string, buildings []*model.Building, addresses []*model.Address) (query.Finder, query.Finder, error) {
	buildingGrid, err := spatialindex.LoadGrid(filepath.Join(cfg.DataDir, "buildings_"+region+"_grid"))
	if err != nil {
		return nil, nil, err
	}
	addressGrid, err := spatialindex.LoadGrid(filepath.Join(cfg.DataDir, "addresses_"+region+"_grid"))
	if err != nil {
		return nil, nil, err
	}

	buildingCenters := func(i int) geometry.Point { return buildings[i].Center() }
	addressCenters := func(i int) geometry.Point { return addresses[i].Center() }
	return query.NewGridFinder(buildingGrid, buildingCenters),
		query.NewGridFinder(addressGrid, addressCenters),
		nil
}
