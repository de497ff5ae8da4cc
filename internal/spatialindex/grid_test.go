package spatialindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citygrid/geoindex/internal/geometry"
)

type fakeCentered struct{ p geometry.Point }

func (f fakeCentered) Center() geometry.Point { return f.p }

func TestGridIndexForCoordinateMatchesBucketAssignment(t *testing.T) {
	items := make([]Centered, 0, 100)
	for i := 0; i < 10; i++ {
		for j := 0; j < 10; j++ {
			items = append(items, fakeCentered{p: geometry.Point{X: float64(i), Y: float64(j)}})
		}
	}
	grid := NewGrid(items, 10, Extent{})

	for i, it := range items {
		c := it.Center()
		idx := grid.IndexForCoordinate(c)
		assert.NotNil(t, idx)
		found := false
		for _, member := range grid.ItemsInBucket(*idx) {
			if member == i {
				found = true
				break
			}
		}
		assert.True(t, found, "item %d not found in its own computed bucket", i)
	}
}

func TestGridSurroundingIndicesExcludeNegative(t *testing.T) {
	items := []Centered{fakeCentered{p: geometry.Point{X: 0, Y: 0}}}
	grid := NewGrid(items, 5, Extent{})
	indices := grid.IndicesSurroundingCoordinate(geometry.Point{X: 0, Y: 0})
	for _, idx := range indices {
		assert.GreaterOrEqual(t, idx, 0)
	}
}

func TestGridOutsideExtentReturnsEmptyResult(t *testing.T) {
	items := []Centered{
		fakeCentered{p: geometry.Point{X: 0, Y: 0}},
		fakeCentered{p: geometry.Point{X: 1, Y: 1}},
	}
	grid := NewGrid(items, 10, Extent{})
	// Far outside the extent: bucket should be empty, not an error.
	far := geometry.Point{X: 1000, Y: 1000}
	idx := grid.IndexForCoordinate(far)
	if idx != nil {
		assert.Empty(t, grid.ItemsInBucket(*idx))
	}
}

func TestGridSaveLoadRoundTrips(t *testing.T) {
	items := []Centered{
		fakeCentered{p: geometry.Point{X: 0, Y: 0}},
		fakeCentered{p: geometry.Point{X: 5, Y: 5}},
	}
	grid := NewGrid(items, 4, Extent{})

	path := t.TempDir() + "/buildings_denver_grid"
	require.NoError(t, grid.Save(path))

	loaded, err := LoadGrid(path)
	require.NoError(t, err)
	assert.Equal(t, grid.Extent, loaded.Extent)
	assert.Equal(t, grid.N, loaded.N)
	for _, it := range items {
		assert.Equal(t, grid.IndicesSurroundingCoordinate(it.Center()), loaded.IndicesSurroundingCoordinate(it.Center()))
	}
}

func TestSharedExtentAlignsBuckets(t *testing.T) {
	buildingItems := []Centered{
		fakeCentered{p: geometry.Point{X: 0, Y: 0}},
		fakeCentered{p: geometry.Point{X: 10, Y: 10}},
	}
	buildingGrid := NewGrid(buildingItems, 10, Extent{})

	addressItems := []Centered{fakeCentered{p: geometry.Point{X: 0.1, Y: 0.1}}}
	addressGrid := NewGrid(addressItems, 10, buildingGrid.Extent)

	assert.Equal(t, buildingGrid.Extent, addressGrid.Extent)
}
