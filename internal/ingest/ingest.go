// Package ingest builds Building and Address records out of raw
// shapefile feature records. Each region supplies its own field
// mapping (property names vary by source jurisdiction), so a
// RegionAdapter is registered per region rather than hard-coding one
// schema.
package ingest

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/citygrid/geoindex/internal/model"
)

// Feature is one record yielded by a ShapeSource: a flat property map
// plus its geometry ring, already in lon/lat order. The shapefile
// source fills the property map with strings (go-shp's DBF reader
// returns attribute text); other sources may supply float64 or int.
type Feature struct {
	Properties map[string]any
	Points     [][2]float64
}

// RegionAdapter turns a raw Feature into a Building or an Address for
// one region. A feature deliberately excluded by a region's own rules
// (e.g. Denver's "Garage/Shed" filter) is reported via a filtered
// error, checkable with IsFiltered, not (nil, nil).
type RegionAdapter interface {
	Region() string
	Building(idx int, f Feature) (*model.Building, error)
	Address(idx int, f Feature) (*model.Address, error)
}

var registry = map[string]RegionAdapter{}

// Register adds an adapter to the region registry. Intended to be
// called from adapter init() functions.
func Register(a RegionAdapter) {
	registry[a.Region()] = a
}

// Lookup returns the registered adapter for region, replacing the
// Python original's reflection-based create_<region> dispatch with an
// explicit registry.
func Lookup(region string) (RegionAdapter, error) {
	a, ok := registry[region]
	if !ok {
		return nil, fmt.Errorf("ingest: no adapter registered for region %q", region)
	}
	return a, nil
}

// filtered is a sentinel error distinguishing "feature deliberately
// excluded" from a genuine mapping failure. Callers should treat it as
// "skip this record", not as an ingestion error.
type filtered struct{ reason string }

func (f filtered) Error() string { return f.reason }

// IsFiltered reports whether err indicates a deliberately excluded
// feature (e.g. a building-type filter rule) rather than a real error.
func IsFiltered(err error) bool {
	_, ok := err.(filtered)
	return ok
}

// LoadBuildings drains source through adapter.Building, assigning a
// dense, gap-free idx to each surviving record (filtered features do
// not consume an index). A feature that cannot be read is logged at
// Warn and skipped; a genuine mapping error aborts the load.
func LoadBuildings(source ShapeSource, adapter RegionAdapter, logger *zap.Logger) ([]*model.Building, error) {
	var buildings []*model.Building
	idx := 0
	for source.Next() {
		feature, err := source.Feature()
		if err != nil {
			logger.Warn("unreadable building feature skipped", zap.Error(err))
			continue
		}
		b, err := adapter.Building(idx, feature)
		if err != nil {
			if IsFiltered(err) {
				logger.Debug("building filtered", zap.Error(err))
				continue
			}
			return nil, fmt.Errorf("ingest: map building: %w", err)
		}
		buildings = append(buildings, b)
		idx++
	}
	return buildings, nil
}

// LoadAddresses mirrors LoadBuildings for address point features.
func LoadAddresses(source ShapeSource, adapter RegionAdapter, logger *zap.Logger) ([]*model.Address, error) {
	var addresses []*model.Address
	idx := 0
	for source.Next() {
		feature, err := source.Feature()
		if err != nil {
			logger.Warn("unreadable address feature skipped", zap.Error(err))
			continue
		}
		a, err := adapter.Address(idx, feature)
		if err != nil {
			if IsFiltered(err) {
				logger.Debug("address filtered", zap.Error(err))
				continue
			}
			return nil, fmt.Errorf("ingest: map address: %w", err)
		}
		addresses = append(addresses, a)
		idx++
	}
	return addresses, nil
}
