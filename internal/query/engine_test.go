package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citygrid/geoindex/internal/geometry"
	"github.com/citygrid/geoindex/internal/model"
	"github.com/citygrid/geoindex/internal/spatialindex"
)

func squareBuilding(idx int, cx, cy, halfSize float64) *model.Building {
	return &model.Building{
		Idx: idx,
		Polygon: []geometry.Point{
			{X: cx - halfSize, Y: cy - halfSize},
			{X: cx + halfSize, Y: cy - halfSize},
			{X: cx + halfSize, Y: cy + halfSize},
			{X: cx - halfSize, Y: cy + halfSize},
		},
	}
}

func newTestEngine(buildings []*model.Building, addresses []*model.Address) *Engine {
	buildingItems := make([]spatialindex.Centered, len(buildings))
	buildingPoints := make([]geometry.Point, len(buildings))
	buildingIDs := make([]int, len(buildings))
	for i, b := range buildings {
		buildingItems[i] = b
		buildingPoints[i] = b.Center()
		buildingIDs[i] = i
	}
	buildingGrid := spatialindex.NewGrid(buildingItems, 20, spatialindex.Extent{})
	buildingTree := spatialindex.NewRTreeFromPoints(buildingIDs, buildingPoints)

	addressItems := make([]spatialindex.Centered, len(addresses))
	addressPoints := make([]geometry.Point, len(addresses))
	addressIDs := make([]int, len(addresses))
	for i, a := range addresses {
		addressItems[i] = a
		addressPoints[i] = a.Center()
		addressIDs[i] = i
	}
	addressGrid := spatialindex.NewGrid(addressItems, 20, buildingGrid.Extent)
	addressTree := spatialindex.NewRTreeFromPoints(addressIDs, addressPoints)

	_ = addressGrid
	return &Engine{
		Buildings:      buildings,
		Addresses:      addresses,
		BuildingFinder: NewRTreeFinder(buildingTree),
		AddressFinder:  NewRTreeFinder(addressTree),
	}
}

func TestIntersectSingleBuildingHit(t *testing.T) {
	buildings := []*model.Building{squareBuilding(0, 0, 1, 0.2)}
	engine := newTestEngine(buildings, nil)

	hits := engine.Intersect(geometry.Point{X: 0, Y: 0}, 0) // heading due north
	require.Len(t, hits, 1)
	assert.Equal(t, 0, hits[0].Idx)
	assert.Greater(t, hits[0].T, 0.0)
}

func TestIntersectTangentialSingleEdgeHitIsSkipped(t *testing.T) {
	// A ray cast due east from the center of a building strikes only its
	// east edge (the west edge lies behind the origin); a building with
	// fewer than 2 intersections must not survive.
	buildings := []*model.Building{squareBuilding(0, 0, 0, 0.1)}
	engine := newTestEngine(buildings, nil)

	hits := engine.Intersect(geometry.Point{X: 0, Y: 0}, 90)
	for _, h := range hits {
		assert.GreaterOrEqual(t, h.T, 0.0)
	}
	assert.Empty(t, hits)
}

func TestIntersectOrdersAscendingByT(t *testing.T) {
	near := squareBuilding(0, 0, 0.01, 0.002)
	far := squareBuilding(1, 0, 0.05, 0.002)
	engine := newTestEngine([]*model.Building{near, far}, nil)

	hits := engine.Intersect(geometry.Point{X: 0, Y: 0}, 0)
	require.Len(t, hits, 2)
	assert.Less(t, hits[0].T, hits[1].T)
	assert.Equal(t, 0, hits[0].Idx)
	assert.Equal(t, 1, hits[1].Idx)
}

func TestNearestAddressesReturnsClosestFirst(t *testing.T) {
	near := &model.Address{Idx: 0, FullAddress: "NEAR", Region: "denver", Lon: 0.001, Lat: 0.001}
	far := &model.Address{Idx: 1, FullAddress: "FAR", Region: "denver", Lon: 5, Lat: 5}
	engine := newTestEngine(nil, []*model.Address{near, far})

	results := engine.NearestAddresses(geometry.Point{X: 0, Y: 0}, 1)
	require.Len(t, results, 1)
	assert.Equal(t, "NEAR", results[0].Address)
}

func TestNearestBuildingsIncludesPolygon(t *testing.T) {
	b := squareBuilding(0, 1, 1, 0.5)
	engine := newTestEngine([]*model.Building{b}, nil)

	results := engine.NearestBuildings(geometry.Point{X: 1, Y: 1}, 1)
	require.Len(t, results, 1)
	assert.Len(t, results[0].PolygonCoords, 4)
}
