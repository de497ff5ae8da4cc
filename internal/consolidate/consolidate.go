// Package consolidate implements the offline step that links Address
// records to their nearest Building within a shared grid bucket,
// associates addresses with Street segments by house-number range, and
// deduplicates addresses that collapse to the same display string.
package consolidate

import (
	"sort"

	"github.com/citygrid/geoindex/internal/geometry"
	"github.com/citygrid/geoindex/internal/model"
	"github.com/citygrid/geoindex/internal/spatialindex"
)

// DefaultGridSize is the grid resolution used when the caller does not
// specify one, within the spec's recommended 150-200 range.
const DefaultGridSize = 150

type buildingCentered struct{ b *model.Building }

func (c buildingCentered) Center() geometry.Point { return c.b.Center() }

type addressCentered struct{ a *model.Address }

func (c addressCentered) Center() geometry.Point { return c.a.Center() }

// Consolidator associates a region's buildings and addresses.
type Consolidator struct {
	Buildings []*model.Building
	Addresses []*model.Address
	NGrid     int

	BuildingGrid *spatialindex.Grid
	AddressGrid  *spatialindex.Grid
}

// NewConsolidator builds the shared-extent grid pair described in
// spec.md §4.4: the building grid computes its own extent, and the
// address grid is built against that same extent so bucket indices
// are directly comparable between the two.
func NewConsolidator(buildings []*model.Building, addresses []*model.Address, nGrid int) *Consolidator {
	if nGrid <= 0 {
		nGrid = DefaultGridSize
	}

	buildingItems := make([]spatialindex.Centered, len(buildings))
	for i, b := range buildings {
		buildingItems[i] = buildingCentered{b}
	}
	buildingGrid := spatialindex.NewGrid(buildingItems, nGrid, spatialindex.Extent{})

	addressItems := make([]spatialindex.Centered, len(addresses))
	for i, a := range addresses {
		addressItems[i] = addressCentered{a}
	}
	addressGrid := spatialindex.NewGrid(addressItems, nGrid, buildingGrid.Extent)

	return &Consolidator{
		Buildings:    buildings,
		Addresses:    addresses,
		NGrid:        nGrid,
		BuildingGrid: buildingGrid,
		AddressGrid:  addressGrid,
	}
}

// Consolidate assigns bucket_idx to every building and address, and
// links each address to its nearest building within the shared
// bucket. Squared Euclidean distance in lon/lat space is used
// intentionally (not great-circle): within a bucket the latitude
// difference is small enough that the ordering agrees with true
// distance, and the bucket size is calibrated for this.
func (c *Consolidator) Consolidate() {
	for _, b := range c.Buildings {
		b.BucketIdx = c.BuildingGrid.IndexForCoordinate(b.Center())
	}
	for _, a := range c.Addresses {
		a.BucketIdx = c.BuildingGrid.IndexForCoordinate(a.Center())
	}

	for bucketIdx := 0; bucketIdx < c.NGrid*c.NGrid; bucketIdx++ {
		buildingMembers := c.BuildingGrid.ItemsInBucket(bucketIdx)
		addressMembers := c.AddressGrid.ItemsInBucket(bucketIdx)
		if len(buildingMembers) == 0 || len(addressMembers) == 0 {
			continue
		}

		for _, aIdx := range addressMembers {
			addr := c.Addresses[aIdx]
			ac := addr.Center()

			bestDist := -1.0
			bestBuilding := -1
			for _, bIdx := range buildingMembers {
				b := c.Buildings[bIdx]
				bc := b.Center()
				dx, dy := ac.X-bc.X, ac.Y-bc.Y
				dist := dx*dx + dy*dy
				if bestBuilding == -1 || dist < bestDist {
					bestDist = dist
					bestBuilding = bIdx
				}
			}
			if bestBuilding == -1 {
				continue
			}
			building := c.Buildings[bestBuilding]
			addr.BuildingIdx = &building.Idx
			building.AddressIdxs = append(building.AddressIdxs, addr.Idx)
		}
	}
}

// segment is a street's combined (min, max) house-number range.
type segment struct {
	idx      int
	minRange int
	maxRange int
}

// AssociateStreets links addresses to Street segments by house-number
// range, per spec.md §4.4. Returns the count of addresses associated.
// An address whose house number cannot be resolved (Address1 is nil,
// meaning ingestion could not parse it as an integer) is skipped —
// this is the "non-integer house number" consistency violation from
// spec.md §7: the address record is kept, just not street-linked.
func AssociateStreets(streets []*model.Street, addresses []*model.Address) int {
	streetsByKey := make(map[string][]*model.Street)
	for _, s := range streets {
		key := s.RangeKey()
		streetsByKey[key] = append(streetsByKey[key], s)
	}

	associated := 0
	for _, addr := range addresses {
		key := addr.StreetKey()
		if key == "" {
			continue
		}
		candidates, ok := streetsByKey[key]
		if !ok || addr.Address1 == nil {
			continue
		}

		segments := make([]segment, 0, len(candidates))
		for _, s := range candidates {
			if s.LMinAddr == nil || s.LMaxAddr == nil || s.RMinAddr == nil || s.RMaxAddr == nil {
				continue
			}
			minRange := minInt(*s.LMinAddr, *s.RMinAddr)
			maxRange := maxInt(*s.LMaxAddr, *s.RMaxAddr)
			segments = append(segments, segment{idx: s.Idx, minRange: minRange, maxRange: maxRange})
		}
		sort.Slice(segments, func(i, j int) bool {
			if segments[i].minRange != segments[j].minRange {
				return segments[i].minRange < segments[j].minRange
			}
			return segments[i].maxRange < segments[j].maxRange
		})

		houseNumber := *addr.Address1
		for _, seg := range segments {
			if houseNumber >= seg.minRange && houseNumber <= seg.maxRange {
				idx := seg.idx
				addr.StreetIdx = &idx
				associated++
				break
			}
		}
	}
	return associated
}

// DedupeAddresses groups addresses by their full display string
// (including region) and collapses each group of size > 1 into a
// single record: the coordinate becomes the arithmetic mean of the
// group, and building_idx is set to the group's modal value (ties
// broken by first occurrence). Returns the surviving addresses, in
// first-seen order.
func DedupeAddresses(addresses []*model.Address) []*model.Address {
	groups := make(map[string][]*model.Address)
	order := make([]string, 0)
	for _, a := range addresses {
		key := a.FullAddressWithRegion()
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], a)
	}

	result := make([]*model.Address, 0, len(order))
	for _, key := range order {
		group := groups[key]
		if len(group) == 1 {
			result = append(result, group[0])
			continue
		}

		var sumLon, sumLat float64
		for _, a := range group {
			sumLon += a.Lon
			sumLat += a.Lat
		}
		n := float64(len(group))
		survivor := group[0]
		survivor.Lon = sumLon / n
		survivor.Lat = sumLat / n
		survivor.BuildingIdx = modalBuildingIdx(group)
		result = append(result, survivor)
	}
	return result
}

// modalBuildingIdx returns the most common non-nil BuildingIdx across
// the group, breaking ties by first occurrence.
func modalBuildingIdx(group []*model.Address) *int {
	counts := make(map[int]int)
	firstSeen := make(map[int]int) // value -> position
	pos := 0
	for _, a := range group {
		if a.BuildingIdx == nil {
			continue
		}
		v := *a.BuildingIdx
		if _, ok := firstSeen[v]; !ok {
			firstSeen[v] = pos
			pos++
		}
		counts[v]++
	}
	if len(counts) == 0 {
		return nil
	}

	best, bestCount, bestPos := 0, -1, -1
	for v, cnt := range counts {
		if cnt > bestCount || (cnt == bestCount && firstSeen[v] < bestPos) {
			best, bestCount, bestPos = v, cnt, firstSeen[v]
		}
	}
	return &best
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
