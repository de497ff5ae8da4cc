package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/citygrid/geoindex/internal/geometry"
	"github.com/citygrid/geoindex/internal/model"
)

// garageShedType is the building_type value that Denver's source data
// uses to mark accessory structures (garages, sheds) that should never
// become part of the address/building catalog, per the original
// create_denver rules for both factories.
const garageShedType = "Garage/Shed"

// denverAdapter maps Denver's parcel and address-point shapefile
// schemas, field names carried over verbatim from the source DBF
// columns (some of them DBF's 10-character name truncations).
type denverAdapter struct{}

func init() {
	Register(denverAdapter{})
}

func (denverAdapter) Region() string { return "denver" }

func (denverAdapter) Building(idx int, f Feature) (*model.Building, error) {
	buildingType, err := stringProp(f, "BLDG_TYPE")
	if err != nil {
		return nil, err
	}
	if buildingType == garageShedType {
		return nil, filtered{reason: "denver: building excluded by Garage/Shed filter"}
	}

	height, err := optionalFloatProp(f, "BLDG_HEIGH")
	if err != nil {
		return nil, err
	}
	groundElevation, err := optionalFloatProp(f, "GROUND_ELE")
	if err != nil {
		return nil, err
	}

	polygon := make([]geometry.Point, len(f.Points))
	for i, p := range f.Points {
		polygon[i] = geometry.Point{X: p[0], Y: p[1]}
	}

	return &model.Building{
		Idx:             idx,
		Region:          "denver",
		Height:          height,
		GroundElevation: groundElevation,
		BuildingType:    buildingType,
		Polygon:         polygon,
	}, nil
}

func (denverAdapter) Address(idx int, f Feature) (*model.Address, error) {
	buildingType, err := stringProp(f, "BUILDING_T")
	if err != nil {
		return nil, err
	}
	if buildingType == garageShedType {
		return nil, filtered{reason: "denver: address excluded by Garage/Shed filter"}
	}

	lon, err := floatProp(f, "LONGITUDE")
	if err != nil {
		return nil, err
	}
	lat, err := floatProp(f, "LATITUDE")
	if err != nil {
		return nil, err
	}

	houseNumber, err := optionalIntProp(f, "ADDRESS__1")
	if err != nil {
		return nil, err
	}
	address2, _ := stringProp(f, "ADDRESS__2")
	predirective, _ := stringProp(f, "PREDIRECTI")
	postdirective, _ := stringProp(f, "POSTDIRECT")
	streetName, _ := stringProp(f, "STREET_NAM")
	postType, _ := stringProp(f, "POSTTYPE")
	unitType, _ := stringProp(f, "UNIT_TYPE")
	unitIdentifier, _ := stringProp(f, "UNIT_IDENT")
	fullAddress, _ := stringProp(f, "FULL_ADDRE")

	return &model.Address{
		Idx:            idx,
		Region:         "denver",
		BuildingType:   buildingType,
		Address1:       houseNumber,
		Address2:       address2,
		Predirective:   predirective,
		Postdirective:  postdirective,
		StreetName:     streetName,
		PostType:       postType,
		UnitType:       unitType,
		UnitIdentifier: unitIdentifier,
		FullAddress:    fullAddress,
		Lon:            lon,
		Lat:            lat,
	}, nil
}

func stringProp(f Feature, key string) (string, error) {
	v, ok := f.Properties[key]
	if !ok {
		return "", fmt.Errorf("ingest: denver: missing property %q", key)
	}
	switch t := v.(type) {
	case string:
		return t, nil
	default:
		return fmt.Sprintf("%v", t), nil
	}
}

// asFloat converts a property value to float64. Shapefile attributes
// arrive as strings (go-shp's DBF reader returns everything as text),
// but a test double or a different ShapeSource may supply a numeric
// type directly, so both are accepted.
func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func floatProp(f Feature, key string) (float64, error) {
	v, ok := f.Properties[key]
	if !ok {
		return 0, fmt.Errorf("ingest: denver: missing property %q", key)
	}
	val, ok := asFloat(v)
	if !ok {
		return 0, fmt.Errorf("ingest: denver: property %q is not numeric: %v", key, v)
	}
	return val, nil
}

// optionalFloatProp is like floatProp but tolerates a missing or empty
// value, returning nil rather than an error — some Denver parcels lack
// a recorded height or ground elevation.
func optionalFloatProp(f Feature, key string) (*float64, error) {
	v, ok := f.Properties[key]
	if !ok || v == nil || v == "" {
		return nil, nil
	}
	val, ok := asFloat(v)
	if !ok {
		return nil, fmt.Errorf("ingest: denver: property %q is not numeric: %v", key, v)
	}
	return &val, nil
}

// optionalIntProp parses a house number, tolerating non-integer values
// by returning nil instead of erroring — spec.md's "non-integer house
// number" edge case keeps the address but drops street association.
func optionalIntProp(f Feature, key string) (*int, error) {
	v, ok := f.Properties[key]
	if !ok || v == nil {
		return nil, nil
	}
	val, ok := asFloat(v)
	if !ok || val != math.Trunc(val) {
		return nil, nil
	}
	n := int(val)
	return &n, nil
}
