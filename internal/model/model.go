// Package model defines the four record types that flow through
// ingestion, consolidation, and the query engine: Address, Building,
// Street, and Bucket. Records are created once by ingestion, mutated
// only by consolidation, and read-only thereafter.
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/citygrid/geoindex/internal/geometry"
)

// Address is a postal address point, optionally linked to a Building
// and a Street after consolidation.
type Address struct {
	Idx          int     `db:"idx"`
	Region       string  `db:"region"`
	BuildingType string  `db:"building_type"`
	Address1     *int    `db:"address_1"` // house number; nil if unparseable
	Address2     string  `db:"address_2"`
	Predirective string  `db:"predirective"`
	Postdirective string `db:"postdirective"`
	StreetName   string  `db:"street_name"`
	PostType     string  `db:"post_type"`
	UnitType     string  `db:"unit_type"`
	UnitIdentifier string `db:"unit_identifier"`
	FullAddress  string  `db:"full_address"`
	Lon          float64 `db:"lon"`
	Lat          float64 `db:"lat"`

	BucketIdx   *int `db:"bucket_idx"`
	BuildingIdx *int `db:"building_idx"`
	StreetIdx   *int `db:"street_idx"`
}

// Center returns the address's point coordinate.
func (a *Address) Center() geometry.Point {
	return geometry.Point{X: a.Lon, Y: a.Lat}
}

// FullAddressWithRegion returns the FullAddress display string with
// ", <region>" appended, for display and for dedup keying. The
// individual address components are not consulted.
func (a *Address) FullAddressWithRegion() string {
	return fmt.Sprintf("%s, %s", a.FullAddress, a.Region)
}

// StreetKey builds the uppercased lookup key used to associate an
// address with its candidate Street segments:
// "{predirective} {street_name} {post_type} {postdirective}".
func (a *Address) StreetKey() string {
	parts := []string{a.Predirective, a.StreetName, a.PostType, a.Postdirective}
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.ToUpper(strings.Join(nonEmpty, " "))
}

// PolygonRing is a building footprint ring, stored as a JSON array of
// {X,Y} points in a single jsonb column rather than a join table —
// the ring is never queried by its individual vertices, only ever
// read back whole, so a join table would buy nothing.
type PolygonRing []geometry.Point

// Value implements driver.Valuer for sqlx's NamedExecContext binding.
func (r PolygonRing) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal([]geometry.Point(r))
}

// Scan implements sql.Scanner for sqlx's StructScan.
func (r *PolygonRing) Scan(src any) error {
	if src == nil {
		*r = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("model: PolygonRing.Scan: unsupported source type %T", src)
	}
	return json.Unmarshal(raw, (*[]geometry.Point)(r))
}

// Building is a ground-truth building footprint.
type Building struct {
	Idx             int         `db:"idx"`
	Region          string      `db:"region"`
	Height          *float64    `db:"height"`           // feet
	GroundElevation *float64    `db:"ground_elevation"` // feet
	BuildingType    string      `db:"building_type"`
	Polygon         PolygonRing `db:"polygon"` // ring, insertion order
	BucketIdx       *int        `db:"bucket_idx"`
	AddressIdxs     []int       `db:"-"`

	mu                 sync.Mutex
	bboxCached         bool
	bbox               [4]float64
	mbrCached          bool
	mbr                []geometry.Point
	linesCached        bool
	lines              []geometry.Segment
	extentCached       bool
	xyExtentInMeters   geometry.Point
}

// Bbox returns the axis-aligned bounding box (minX, minY, maxX, maxY)
// over the polygon vertices, memoized for the lifetime of the instance.
func (b *Building) Bbox() (minX, minY, maxX, maxY float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bboxCached {
		return b.bbox[0], b.bbox[1], b.bbox[2], b.bbox[3]
	}
	minX, minY = 100000.0, 100000.0
	maxX, maxY = -100000.0, -100000.0
	for _, p := range b.Polygon {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	b.bbox = [4]float64{minX, minY, maxX, maxY}
	b.bboxCached = true
	return minX, minY, maxX, maxY
}

// Center returns the bbox midpoint.
func (b *Building) Center() geometry.Point {
	minX, minY, maxX, maxY := b.Bbox()
	return geometry.Point{X: (minX + maxX) / 2.0, Y: (minY + maxY) / 2.0}
}

// MinBoundingRect returns the minimum-area enclosing rectangle of the
// polygon, corners re-sorted by polar angle about the building's
// center, memoized for the lifetime of the instance.
func (b *Building) MinBoundingRect() []geometry.Point {
	center := b.Center()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mbrCached {
		return b.mbr
	}
	rect := geometry.MinimumBoundingRectangle(b.Polygon)
	b.mbr = geometry.SortByPolarAngle(rect, center)
	b.mbrCached = true
	return b.mbr
}

// LinesForShape returns the four directed edges of the MBR, the
// segments used for ray intersection, memoized for the instance.
func (b *Building) LinesForShape() []geometry.Segment {
	rect := b.MinBoundingRect()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.linesCached {
		return b.lines
	}
	segs := make([]geometry.Segment, 0, len(rect))
	for i := 0; i < len(rect); i++ {
		segs = append(segs, geometry.Segment{A: rect[i], B: rect[(i+1)%len(rect)]})
	}
	b.lines = segs
	b.linesCached = true
	return b.lines
}

// XYExtentInMeters returns the great-circle distance from the bbox's
// SW corner to its SE and NW corners, memoized for the instance. Valid
// only as a local approximation for small (building-scale) extents.
func (b *Building) XYExtentInMeters() geometry.Point {
	minX, minY, maxX, maxY := b.Bbox()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.extentCached {
		return b.xyExtentInMeters
	}
	origin := geometry.Point{X: minX, Y: minY}
	se := geometry.Point{X: maxX, Y: minY}
	nw := geometry.Point{X: minX, Y: maxY}
	b.xyExtentInMeters = geometry.Point{
		X: geometry.GeodesicMeters(origin, se),
		Y: geometry.GeodesicMeters(origin, nw),
	}
	b.extentCached = true
	return b.xyExtentInMeters
}

// PointsInLocalCoords normalizes the polygon vertices into [0,1]^2 by
// bbox, then scales by XYExtentInMeters, producing a local
// meters-from-origin representation of the footprint.
func (b *Building) PointsInLocalCoords() []geometry.Point {
	minX, minY, maxX, maxY := b.Bbox()
	extentX, extentY := maxX-minX, maxY-minY
	scale := b.XYExtentInMeters()
	result := make([]geometry.Point, len(b.Polygon))
	for i, p := range b.Polygon {
		var nx, ny float64
		if extentX != 0 {
			nx = (p.X - minX) / extentX
		}
		if extentY != 0 {
			ny = (p.Y - minY) / extentY
		}
		result[i] = geometry.Point{X: nx * scale.X, Y: ny * scale.Y}
	}
	return result
}

// FaceHeightMeters returns the building's height converted to meters,
// defaulting to 5.0m when the height is missing or zero.
func (b *Building) FaceHeightMeters() float64 {
	if b.Height == nil || *b.Height == 0 {
		return 5.0
	}
	return *b.Height * geometry.FtToM
}

// IsNonDegenerate reports whether the polygon has at least 3 distinct
// vertices, the invariant required before a building can participate
// in MBR computation or ray intersection.
func (b *Building) IsNonDegenerate() bool {
	distinct := map[[2]float64]bool{}
	for _, p := range b.Polygon {
		distinct[[2]float64{p.X, p.Y}] = true
	}
	return len(distinct) >= 3
}

// Street is a centerline segment with left/right house-number ranges.
type Street struct {
	Idx        int              `db:"idx"`
	Region     string           `db:"region"`
	LMinAddr   *int             `db:"l_min_addr"`
	LMaxAddr   *int             `db:"l_max_addr"`
	RMinAddr   *int             `db:"r_min_addr"`
	RMaxAddr   *int             `db:"r_max_addr"`
	Prefix     string           `db:"prefix"`
	Name       string           `db:"name"`
	StreetType string           `db:"street_type"`
	Suffix     string           `db:"suffix"`
	FullName   string           `db:"full_name"`
	Centerline []geometry.Point `db:"-"`
}

// RangeKey uppercases the street's own name components the same way
// Address.StreetKey does, so the two can be matched.
func (s *Street) RangeKey() string {
	parts := []string{s.Prefix, s.Name, s.StreetType, s.Suffix}
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.ToUpper(strings.Join(nonEmpty, " "))
}

// Bucket records the grid partition's extent and resolution for a
// region, persisted alongside the records it indexes.
type Bucket struct {
	Region string  `db:"region"`
	MinX   float64 `db:"min_x"`
	MinY   float64 `db:"min_y"`
	MaxX   float64 `db:"max_x"`
	MaxY   float64 `db:"max_y"`
	NGrid  int     `db:"n_grid"`
}
