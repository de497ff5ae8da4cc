// Package query implements the two read paths exposed over HTTP:
// nearest-neighbor proximity lookups, and ray/building intersection
// sweeps. Both work against either spatial index variant
// (spatialindex.Grid or spatialindex.RTree) behind a common Finder
// interface, per the requirement that either index satisfy either
// query.
package query

import (
	"sort"

	"github.com/citygrid/geoindex/internal/geometry"
	"github.com/citygrid/geoindex/internal/model"
	"github.com/citygrid/geoindex/internal/spatialindex"
)

// DefaultNearestCount is the candidate-set size used for both
// proximity queries and the intersection sweep's building fetch,
// matching the original's num_results=50.
const DefaultNearestCount = 50

// AddressNeighborCount is how many nearest addresses are attached to
// each intersection hit for its "addresses" field.
const AddressNeighborCount = 3

// Finder abstracts "give me the k nearest candidate indices to coord"
// over either index implementation.
type Finder interface {
	Nearest(coord geometry.Point, k int) []int
}

// gridFinder adapts a spatialindex.Grid plus a center-lookup callback
// to the Finder interface.
type gridFinder struct {
	grid    *spatialindex.Grid
	centers func(int) geometry.Point
}

func (f gridFinder) Nearest(coord geometry.Point, k int) []int {
	return f.grid.Nearest(coord, k, f.centers)
}

// NewGridFinder builds a Finder backed by a grid partition.
func NewGridFinder(grid *spatialindex.Grid, centers func(int) geometry.Point) Finder {
	return gridFinder{grid: grid, centers: centers}
}

// rtreeFinder adapts a spatialindex.RTree to the Finder interface.
type rtreeFinder struct{ tree *spatialindex.RTree }

func (f rtreeFinder) Nearest(coord geometry.Point, k int) []int {
	return f.tree.KNearest(coord, k)
}

// NewRTreeFinder builds a Finder backed by an R-tree.
func NewRTreeFinder(tree *spatialindex.RTree) Finder {
	return rtreeFinder{tree: tree}
}

// Engine answers proximity and intersection queries for one region,
// holding the region's loaded records and both finders.
type Engine struct {
	Buildings []*model.Building
	Addresses []*model.Address

	BuildingFinder Finder
	AddressFinder  Finder
}

// LatLon is the wire-shaped coordinate pair used throughout query
// results, matching the original's {latitude, longitude} convention
// (note the reversed field order from geometry.Point's X=lon, Y=lat).
type LatLon struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func latLonOf(p geometry.Point) LatLon {
	return LatLon{Latitude: p.Y, Longitude: p.X}
}

// AddressResult is one nearest-address hit, as returned by the
// /addresses endpoint: address text without the region suffix.
type AddressResult struct {
	Address string `json:"address"`
	Coord   LatLon `json:"coord"`
}

// NearestAddresses returns up to count nearest addresses to coord, as
// used by the /addresses endpoint. The displayed address omits the
// region, matching the /addresses endpoint's full_address_without_region.
// The intersection back-reference goes through nearestAddressesWithRegion
// instead.
func (e *Engine) NearestAddresses(coord geometry.Point, count int) []AddressResult {
	idxs := e.AddressFinder.Nearest(coord, count)
	results := make([]AddressResult, len(idxs))
	for i, idx := range idxs {
		a := e.Addresses[idx]
		results[i] = AddressResult{Address: a.FullAddress, Coord: latLonOf(a.Center())}
	}
	return results
}

// nearestAddressesWithRegion is like NearestAddresses but formats each
// address with its region suffix, matching the intersection
// endpoint's full_address_with_region.
func (e *Engine) nearestAddressesWithRegion(coord geometry.Point, count int) []string {
	idxs := e.AddressFinder.Nearest(coord, count)
	names := make([]string, len(idxs))
	for i, idx := range idxs {
		names[i] = e.Addresses[idx].FullAddressWithRegion()
	}
	return names
}

// BuildingResult is one nearest-building hit, including its MBR for
// client-side rendering.
type BuildingResult struct {
	Coord         LatLon   `json:"coord"`
	PolygonCoords []LatLon `json:"polygon_coords"`
}

// NearestBuildings returns up to count nearest buildings to coord.
func (e *Engine) NearestBuildings(coord geometry.Point, count int) []BuildingResult {
	idxs := e.BuildingFinder.Nearest(coord, count)
	results := make([]BuildingResult, len(idxs))
	for i, idx := range idxs {
		b := e.Buildings[idx]
		rect := b.MinBoundingRect()
		coords := make([]LatLon, len(rect))
		for j, p := range rect {
			coords[j] = latLonOf(p)
		}
		results[i] = BuildingResult{Coord: latLonOf(b.Center()), PolygonCoords: coords}
	}
	return results
}

// IntersectionResult is one struck building along a ray.
type IntersectionResult struct {
	Idx        int            `json:"idx"`
	T          float64        `json:"t"`
	Addresses  []string       `json:"addresses"`
	Point      LatLon         `json:"point"`
	Normal     geometry.Point `json:"normal"`
	FaceLength float64        `json:"face_length"`
	FaceHeight float64        `json:"face_height"`
}

// Intersect sweeps a ray from (lon, lat) along heading (compass
// degrees) against the DefaultNearestCount nearest candidate
// buildings, skipping buildings with fewer than 3 distinct vertices,
// keeping only buildings with at least two edge hits
// (entry and exit), reporting each hit's nearest edge (minimum t), and
// sorting the surviving hits by ascending t — the order a viewer along
// the ray would encounter them.
func (e *Engine) Intersect(origin geometry.Point, headingDegrees float64) []IntersectionResult {
	ray := geometry.NewRay(origin, headingDegrees)
	candidateIdxs := e.BuildingFinder.Nearest(origin, DefaultNearestCount)

	var hits []IntersectionResult
	for _, bIdx := range candidateIdxs {
		b := e.Buildings[bIdx]
		if !b.IsNonDegenerate() {
			continue
		}
		var best geometry.Intersection
		found := 0
		for _, seg := range b.LinesForShape() {
			isect, ok := geometry.Intersect(ray, seg)
			if !ok {
				continue
			}
			found++
			if found == 1 || isect.T < best.T {
				best = isect
			}
		}
		if found < 2 {
			continue
		}

		addressNames := e.nearestAddressesWithRegion(best.Point, AddressNeighborCount)

		hits = append(hits, IntersectionResult{
			Idx:        b.Idx,
			T:          best.T,
			Addresses:  addressNames,
			Point:      latLonOf(best.Point),
			Normal:     best.Normal,
			FaceLength: best.FaceLength,
			FaceHeight: b.FaceHeightMeters(),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].T < hits[j].T })
	return hits
}
