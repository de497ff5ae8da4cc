package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func denverBuildingFeature(buildingType string) Feature {
	return Feature{
		Properties: map[string]any{
			"BLDG_TYPE":  buildingType,
			"BUILDING_I": "123",
			"BLDG_HEIGH": "42.5",
			"GROUND_ELE": "5280",
		},
		Points: [][2]float64{{-104.99, 39.74}, {-104.98, 39.74}, {-104.98, 39.75}},
	}
}

func denverAddressFeature(buildingType string) Feature {
	return Feature{
		Properties: map[string]any{
			"BUILDING_T": buildingType,
			"LONGITUDE":  "-104.9903",
			"LATITUDE":   "39.7392",
			"ADDRESS__1": "1437",
			"ADDRESS__2": "",
			"PREDIRECTI": "",
			"POSTDIRECT": "",
			"STREET_NAM": "BANNOCK",
			"POSTTYPE":   "ST",
			"UNIT_TYPE":  "",
			"UNIT_IDENT": "",
			"FULL_ADDRE": "1437 BANNOCK ST",
		},
	}
}

func TestLookupReturnsRegisteredDenverAdapter(t *testing.T) {
	a, err := Lookup("denver")
	require.NoError(t, err)
	assert.Equal(t, "denver", a.Region())
}

func TestLookupUnknownRegionErrors(t *testing.T) {
	_, err := Lookup("nowhere")
	assert.Error(t, err)
}

func TestDenverBuildingMapsFields(t *testing.T) {
	a := denverAdapter{}
	b, err := a.Building(0, denverBuildingFeature("Single Family"))
	require.NoError(t, err)
	require.NotNil(t, b.Height)
	assert.InDelta(t, 42.5, *b.Height, 1e-9)
	require.NotNil(t, b.GroundElevation)
	assert.InDelta(t, 5280, *b.GroundElevation, 1e-9)
	assert.Equal(t, "Single Family", b.BuildingType)
	assert.Len(t, b.Polygon, 3)
}

func TestDenverBuildingFiltersGarageShed(t *testing.T) {
	a := denverAdapter{}
	b, err := a.Building(0, denverBuildingFeature(garageShedType))
	assert.Nil(t, b)
	require.Error(t, err)
	assert.True(t, IsFiltered(err))
}

func TestDenverAddressMapsFields(t *testing.T) {
	a := denverAdapter{}
	addr, err := a.Address(0, denverAddressFeature("Single Family"))
	require.NoError(t, err)
	require.NotNil(t, addr.Address1)
	assert.Equal(t, 1437, *addr.Address1)
	assert.Equal(t, "BANNOCK", addr.StreetName)
	assert.Equal(t, "1437 BANNOCK ST", addr.FullAddress)
	assert.InDelta(t, -104.9903, addr.Lon, 1e-9)
	assert.InDelta(t, 39.7392, addr.Lat, 1e-9)
}

func TestDenverAddressFiltersGarageShed(t *testing.T) {
	a := denverAdapter{}
	addr, err := a.Address(0, denverAddressFeature(garageShedType))
	assert.Nil(t, addr)
	require.Error(t, err)
	assert.True(t, IsFiltered(err))
}

func TestDenverAddressUnparseableHouseNumberYieldsNilNotError(t *testing.T) {
	f := denverAddressFeature("Single Family")
	f.Properties["ADDRESS__1"] = "NOT-A-NUMBER"
	a := denverAdapter{}
	addr, err := a.Address(0, f)
	require.NoError(t, err)
	assert.Nil(t, addr.Address1)
}
