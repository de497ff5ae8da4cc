// Command gisctl runs the batch pipeline stages that build a region's
// persisted records and spatial indexes: loading shapefiles,
// consolidating addresses against buildings and streets, deduping
// addresses, and building the spatial index files the server opens at
// startup.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/citygrid/geoindex/internal/config"
	"github.com/citygrid/geoindex/internal/consolidate"
	"github.com/citygrid/geoindex/internal/geometry"
	"github.com/citygrid/geoindex/internal/ingest" // denver.go's init() registers the denver adapter
	"github.com/citygrid/geoindex/internal/model"
	"github.com/citygrid/geoindex/internal/spatialindex"
	"github.com/citygrid/geoindex/internal/store"
	"github.com/citygrid/geoindex/internal/timing"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gisctl: build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	app := &cli.App{
		Name:  "gisctl",
		Usage: "batch commands for the geoindex pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "region", Required: true, Usage: "region name, e.g. denver"},
		},
		Commands: []*cli.Command{
			loadShapesCommand(logger),
			consolidateCommand(logger),
			associateStreetsCommand(logger),
			cleanAddressesCommand(logger),
			buildIndexCommand(logger),
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatal("gisctl failed", zap.Error(err))
	}
}

func openRepos(ctx context.Context, cfg *config.Config) (*store.AddressRepository, *store.BuildingRepository, *store.StreetRepository, *store.BucketRepository, error) {
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return store.NewAddressRepository(db),
		store.NewBuildingRepository(db),
		store.NewStreetRepository(db),
		store.NewBucketRepository(db),
		nil
}

// loadShapesCommand ingests a region's building and address shapefiles
// and bulk-creates the resulting records.
func loadShapesCommand(logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "load-shapes",
		Usage: "load <region>.shp and <region>_addresses.shp into the record store",
		Action: func(c *cli.Context) error {
			region := c.String("region")
			logger.Info("starting batch run", zap.String("run_id", uuid.NewString()), zap.String("command", "load-shapes"), zap.String("region", region))
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			adapter, err := ingest.Lookup(region)
			if err != nil {
				return err
			}

			ctx := c.Context
			addressRepo, buildingRepo, _, _, err := openRepos(ctx, cfg)
			if err != nil {
				return err
			}

			buildingPath := filepath.Join(cfg.DataDir, region+".shp")
			addressPath := filepath.Join(cfg.DataDir, region+"_addresses.shp")

			var loadedBuildings []*model.Building
			if err := timing.Track(logger, "load buildings", func() error {
				src, err := ingest.OpenShapefile(buildingPath)
				if err != nil {
					return fmt.Errorf("gisctl: open building shapefile: %w", err)
				}
				defer src.Close()
				loadedBuildings, err = ingest.LoadBuildings(src, adapter, logger)
				return err
			}); err != nil {
				return err
			}

			var loadedAddresses []*model.Address
			if err := timing.Track(logger, "load addresses", func() error {
				src, err := ingest.OpenShapefile(addressPath)
				if err != nil {
					return fmt.Errorf("gisctl: open address shapefile: %w", err)
				}
				defer src.Close()
				loadedAddresses, err = ingest.LoadAddresses(src, adapter, logger)
				return err
			}); err != nil {
				return err
			}

			return timing.Track(logger, "persist loaded records", func() error {
				if err := buildingRepo.BulkCreate(ctx, loadedBuildings); err != nil {
					return err
				}
				return addressRepo.BulkCreate(ctx, loadedAddresses)
			})
		},
	}
}

// consolidateCommand loads a region's buildings and addresses, links
// each address to its nearest building, and persists the bucket
// assignments back to the store.
func consolidateCommand(logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "consolidate",
		Usage: "assign bucket indices and link addresses to nearest buildings",
		Action: func(c *cli.Context) error {
			region := c.String("region")
			logger.Info("starting batch run", zap.String("run_id", uuid.NewString()), zap.String("command", "consolidate"), zap.String("region", region))
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := c.Context
			addressRepo, buildingRepo, _, bucketRepo, err := openRepos(ctx, cfg)
			if err != nil {
				return err
			}

			var buildings []*model.Building
			var addresses []*model.Address
			if err := timing.Track(logger, "load records", func() error {
				var err error
				buildings, err = buildingRepo.SelectByRegion(ctx, region)
				if err != nil {
					return err
				}
				addresses, err = addressRepo.SelectByRegion(ctx, region)
				return err
			}); err != nil {
				return err
			}

			var consolidator *consolidate.Consolidator
			if err := timing.Track(logger, "consolidate", func() error {
				consolidator = consolidate.NewConsolidator(buildings, addresses, cfg.GridSize)
				consolidator.Consolidate()
				return nil
			}); err != nil {
				return err
			}

			return timing.Track(logger, "persist consolidation results", func() error {
				bucket := &model.Bucket{
					Region: region,
					MinX:   consolidator.BuildingGrid.Extent.MinX,
					MinY:   consolidator.BuildingGrid.Extent.MinY,
					MaxX:   consolidator.BuildingGrid.Extent.MaxX,
					MaxY:   consolidator.BuildingGrid.Extent.MaxY,
					NGrid:  cfg.GridSize,
				}
				if err := bucketRepo.Upsert(ctx, bucket); err != nil {
					return err
				}
				if err := buildingRepo.BulkUpdate(ctx, buildings, []string{"bucket_idx"}); err != nil {
					return err
				}
				return addressRepo.BulkUpdate(ctx, addresses, []string{"bucket_idx", "building_idx"})
			})
		},
	}
}

// associateStreetsCommand matches addresses to street segments by
// house-number range and persists the street_idx assignment.
func associateStreetsCommand(logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "associate-streets",
		Usage: "match addresses to street segments by house-number range",
		Action: func(c *cli.Context) error {
			region := c.String("region")
			logger.Info("starting batch run", zap.String("run_id", uuid.NewString()), zap.String("command", "associate-streets"), zap.String("region", region))
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := c.Context
			addressRepo, _, streetRepo, _, err := openRepos(ctx, cfg)
			if err != nil {
				return err
			}

			var addresses []*model.Address
			var streets []*model.Street
			if err := timing.Track(logger, "load records", func() error {
				var err error
				addresses, err = addressRepo.SelectByRegion(ctx, region)
				if err != nil {
					return err
				}
				streets, err = streetRepo.SelectByRegion(ctx, region)
				return err
			}); err != nil {
				return err
			}

			matched := 0
			if err := timing.Track(logger, "associate streets", func() error {
				matched = consolidate.AssociateStreets(streets, addresses)
				return nil
			}); err != nil {
				return err
			}
			logger.Info("street association complete", zap.Int("matched", matched), zap.Int("total", len(addresses)))

			return timing.Track(logger, "persist street associations", func() error {
				return addressRepo.BulkUpdate(ctx, addresses, []string{"street_idx"})
			})
		},
	}
}

// cleanAddressesCommand dedupes addresses sharing a full address and
// writes each surviving record's merged coordinate and building back to
// the store. The merged-away duplicate rows are not deleted from the
// store.
func cleanAddressesCommand(logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "clean-addresses",
		Usage: "merge duplicate addresses by averaging coordinates and taking the modal building",
		Action: func(c *cli.Context) error {
			region := c.String("region")
			logger.Info("starting batch run", zap.String("run_id", uuid.NewString()), zap.String("command", "clean-addresses"), zap.String("region", region))
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := c.Context
			addressRepo, _, _, _, err := openRepos(ctx, cfg)
			if err != nil {
				return err
			}

			addresses, err := addressRepo.SelectByRegion(ctx, region)
			if err != nil {
				return err
			}

			var deduped []*model.Address
			if err := timing.Track(logger, "dedupe addresses", func() error {
				deduped = consolidate.DedupeAddresses(addresses)
				return nil
			}); err != nil {
				return err
			}
			logger.Info("address dedupe complete", zap.Int("before", len(addresses)), zap.Int("after", len(deduped)))

			return timing.Track(logger, "persist deduped addresses", func() error {
				return addressRepo.BulkUpdate(ctx, deduped, []string{"lon", "lat", "building_idx"})
			})
		},
	}
}

// buildIndexCommand loads a region's records and writes the
// configured spatial index variant to disk under DATA_DIR.
func buildIndexCommand(logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "build-rtree",
		Usage: "build and persist the spatial index files for a region",
		Action: func(c *cli.Context) error {
			region := c.String("region")
			logger.Info("starting batch run", zap.String("run_id", uuid.NewString()), zap.String("command", "build-rtree"), zap.String("region", region))
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := c.Context
			addressRepo, buildingRepo, _, _, err := openRepos(ctx, cfg)
			if err != nil {
				return err
			}

			buildings, err := buildingRepo.SelectByRegion(ctx, region)
			if err != nil {
				return err
			}
			addresses, err := addressRepo.SelectByRegion(ctx, region)
			if err != nil {
				return err
			}

			return timing.Track(logger, "build spatial indexes", func() error {
				switch cfg.IndexKind {
				case config.SpatialIndexRTree:
					return buildRTrees(cfg, region, buildings, addresses)
				default:
					return buildGrids(cfg, region, buildings, addresses)
				}
			})
		},
	}
}

func buildRTrees(cfg *config.Config, region string, buildings []*model.Building, addresses []*model.Address) error {
	buildingIDs := make([]int, len(buildings))
	buildingBoxes := make([][4]float64, len(buildings))
	for i, b := range buildings {
		buildingIDs[i] = b.Idx
		minX, minY, maxX, maxY := b.Bbox()
		buildingBoxes[i] = [4]float64{minX, minY, maxX, maxY}
	}
	buildingTree := spatialindex.NewRTreeFromBounds(buildingIDs, buildingBoxes)
	if err := buildingTree.Save(filepath.Join(cfg.DataDir, "buildings_"+region+"_rtree")); err != nil {
		return err
	}

	addressIDs := make([]int, len(addresses))
	addressPoints := make([]geometry.Point, len(addresses))
	for i, a := range addresses {
		addressIDs[i] = a.Idx
		addressPoints[i] = a.Center()
	}
	addressTree := spatialindex.NewRTreeFromPoints(addressIDs, addressPoints)
	return addressTree.Save(filepath.Join(cfg.DataDir, "addresses_"+region+"_rtree"))
}

func buildGrids(cfg *config.Config, region string, buildings []*model.Building, addresses []*model.Address) error {
	buildingItems := make([]spatialindex.Centered, len(buildings))
	for i, b := range buildings {
		buildingItems[i] = b
	}
	buildingGrid := spatialindex.NewGrid(buildingItems, cfg.GridSize, spatialindex.Extent{})
	if err := buildingGrid.Save(filepath.Join(cfg.DataDir, "buildings_"+region+"_grid")); err != nil {
		return err
	}

	addressItems := make([]spatialindex.Centered, len(addresses))
	for i, a := range addresses {
		addressItems[i] = a
	}
	addressGrid := spatialindex.NewGrid(addressItems, cfg.GridSize, buildingGrid.Extent)
	return addressGrid.Save(filepath.Join(cfg.DataDir, "addresses_"+region+"_grid"))
}
