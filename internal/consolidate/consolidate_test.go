package consolidate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citygrid/geoindex/internal/geometry"
	"github.com/citygrid/geoindex/internal/model"
)

func squareAt(idx int, cx, cy float64) *model.Building {
	return &model.Building{
		Idx: idx,
		Polygon: []geometry.Point{
			{X: cx - 0.5, Y: cy - 0.5},
			{X: cx + 0.5, Y: cy - 0.5},
			{X: cx + 0.5, Y: cy + 0.5},
			{X: cx - 0.5, Y: cy + 0.5},
		},
	}
}

func TestConsolidateLinksNearestBuildingWithinBucket(t *testing.T) {
	buildings := []*model.Building{
		squareAt(0, 0, 0),
		squareAt(1, 20, 20),
	}
	houseNumber := 100
	addresses := []*model.Address{
		{Idx: 0, Lon: 0.2, Lat: 0.1, Address1: &houseNumber, FullAddress: "100 MAIN ST", Region: "denver"},
		{Idx: 1, Lon: 20.1, Lat: 19.9, Address1: &houseNumber, FullAddress: "100 OTHER ST", Region: "denver"},
	}

	c := NewConsolidator(buildings, addresses, 50)
	c.Consolidate()

	require.NotNil(t, addresses[0].BuildingIdx)
	assert.Equal(t, 0, *addresses[0].BuildingIdx)
	require.NotNil(t, addresses[1].BuildingIdx)
	assert.Equal(t, 1, *addresses[1].BuildingIdx)

	assert.Contains(t, buildings[0].AddressIdxs, 0)
	assert.Contains(t, buildings[1].AddressIdxs, 1)
}

func TestAssociateStreetsMatchesHouseNumberRange(t *testing.T) {
	lmin, lmax, rmin, rmax := 100, 198, 101, 199
	streets := []*model.Street{
		{Idx: 7, Name: "MAIN", StreetType: "ST", LMinAddr: &lmin, LMaxAddr: &lmax, RMinAddr: &rmin, RMaxAddr: &rmax},
	}
	houseNumber := 150
	addresses := []*model.Address{
		{Idx: 0, StreetName: "MAIN", PostType: "ST", Address1: &houseNumber},
	}

	n := AssociateStreets(streets, addresses)
	assert.Equal(t, 1, n)
	require.NotNil(t, addresses[0].StreetIdx)
	assert.Equal(t, 7, *addresses[0].StreetIdx)
}

func TestAssociateStreetsSkipsOutOfRangeAndUnparseable(t *testing.T) {
	lmin, lmax, rmin, rmax := 100, 198, 101, 199
	streets := []*model.Street{
		{Idx: 7, Name: "MAIN", StreetType: "ST", LMinAddr: &lmin, LMaxAddr: &lmax, RMinAddr: &rmin, RMaxAddr: &rmax},
	}
	outOfRange := 500
	addresses := []*model.Address{
		{Idx: 0, StreetName: "MAIN", PostType: "ST", Address1: &outOfRange},
		{Idx: 1, StreetName: "MAIN", PostType: "ST", Address1: nil},
	}

	n := AssociateStreets(streets, addresses)
	assert.Equal(t, 0, n)
	assert.Nil(t, addresses[0].StreetIdx)
	assert.Nil(t, addresses[1].StreetIdx)
}

func TestDedupeAddressesAveragesCoordinatesAndTakesModalBuilding(t *testing.T) {
	b0, b1 := 0, 1
	addresses := []*model.Address{
		{Idx: 0, FullAddress: "100 MAIN ST", Region: "denver", Lon: 0.0, Lat: 0.0, BuildingIdx: &b0},
		{Idx: 1, FullAddress: "100 MAIN ST", Region: "denver", Lon: 2.0, Lat: 2.0, BuildingIdx: &b0},
		{Idx: 2, FullAddress: "100 MAIN ST", Region: "denver", Lon: 4.0, Lat: 4.0, BuildingIdx: &b1},
		{Idx: 3, FullAddress: "200 OTHER ST", Region: "denver", Lon: 9.0, Lat: 9.0},
	}

	result := DedupeAddresses(addresses)
	require.Len(t, result, 2)

	merged := result[0]
	assert.InDelta(t, 2.0, merged.Lon, 1e-9)
	assert.InDelta(t, 2.0, merged.Lat, 1e-9)
	require.NotNil(t, merged.BuildingIdx)
	assert.Equal(t, 0, *merged.BuildingIdx)

	assert.Equal(t, "200 OTHER ST", result[1].FullAddress)
}
