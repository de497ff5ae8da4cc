// Package geometry implements the pure 2-D geometry kernel used by the
// spatial index and query engine: ray construction and intersection,
// minimum bounding rectangles, polar-angle sorting, and geodesic length.
//
// Every function here is a pure function of its inputs. No logging, no
// I/O — the query engine is expected to call these in tight loops over
// candidate buildings, and callers own deciding what to do with errors.
package geometry

import "math"

// LatLonToMeters is a coarse conversion factor from degrees of
// latitude/longitude to meters, used only for display-level ray
// parameter conversions, never for geodesic distance itself.
const LatLonToMeters = 111139.0

// FtToM converts feet to meters.
const FtToM = 0.3048

// earthRadiusMeters is the WGS-84 mean radius used for the great-circle
// (haversine) approximation. Good enough at building/city scale.
const earthRadiusMeters = 6371008.8

// Point is a (longitude, latitude) pair in WGS-84 degrees.
type Point struct {
	X float64 // longitude
	Y float64 // latitude
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Add returns p + q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Scale returns p scaled by t.
func (p Point) Scale(t float64) Point {
	return Point{X: p.X * t, Y: p.Y * t}
}

// Dot returns the dot product of p and q.
func (p Point) Dot(q Point) float64 {
	return p.X*q.X + p.Y*q.Y
}

// Cross returns the 2-D cross product (scalar) of p and q.
func (p Point) Cross(q Point) float64 {
	return p.X*q.Y - p.Y*q.X
}

// Norm returns the Euclidean length of p treated as a vector.
func (p Point) Norm() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y)
}

// L1Norm returns the L1 (taxicab) length of p.
func (p Point) L1Norm() float64 {
	return math.Abs(p.X) + math.Abs(p.Y)
}

// Midpoint returns the midpoint of p and q.
func Midpoint(p, q Point) Point {
	return Point{X: (p.X + q.X) / 2.0, Y: (p.Y + q.Y) / 2.0}
}

// GeodesicMeters returns the great-circle distance between two
// lon/lat points in meters using the haversine formula against a
// spherical WGS-84 approximation.
func GeodesicMeters(a, b Point) float64 {
	lat1 := a.Y * math.Pi / 180.0
	lat2 := b.Y * math.Pi / 180.0
	dLat := (b.Y - a.Y) * math.Pi / 180.0
	dLon := (b.X - a.X) * math.Pi / 180.0

	sinDLat := math.Sin(dLat / 2.0)
	sinDLon := math.Sin(dLon / 2.0)

	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	c := 2.0 * math.Atan2(math.Sqrt(h), math.Sqrt(1.0-h))
	return earthRadiusMeters * c
}

// destination returns the point reached by travelling distanceMeters
// from origin along bearingDegrees (0 = north, clockwise), following
// the geodesic on the WGS-84 sphere approximation. Mirrors geopy's
// distance.destination used by the source implementation.
func destination(origin Point, bearingDegrees, distanceMeters float64) Point {
	lat1 := origin.Y * math.Pi / 180.0
	lon1 := origin.X * math.Pi / 180.0
	bearing := bearingDegrees * math.Pi / 180.0
	angularDistance := distanceMeters / earthRadiusMeters

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(angularDistance) +
		math.Cos(lat1)*math.Sin(angularDistance)*math.Cos(bearing))
	lon2 := lon1 + math.Atan2(
		math.Sin(bearing)*math.Sin(angularDistance)*math.Cos(lat1),
		math.Cos(angularDistance)-math.Sin(lat1)*math.Sin(lat2),
	)

	return Point{X: lon2 * 180.0 / math.Pi, Y: lat2 * 180.0 / math.Pi}
}

// Ray is a geographic ray cast from a viewer location along a compass
// heading. Its direction is derived from a real geodesic destination
// 1km away so that it carries the correct local bearing for comparison
// against polygon edges expressed in lon/lat space.
type Ray struct {
	Origin    Point
	Direction Point // unit vector in lon/lat space
}

// NewRay builds a Ray from a lon/lat origin and a compass heading in
// degrees (0 = north, 90 = east, clockwise).
func NewRay(origin Point, headingDegrees float64) Ray {
	dest := destination(origin, headingDegrees, 1000.0)
	dir := dest.Sub(origin)
	mag := dir.Norm()
	if mag != 0 {
		dir = dir.Scale(1.0 / mag)
	}
	return Ray{Origin: origin, Direction: dir}
}

// PointAt returns the point ro + t*rd along the ray.
func (r Ray) PointAt(t float64) Point {
	return r.Origin.Add(r.Direction.Scale(t))
}

// Segment is a directed line segment between two lon/lat points.
type Segment struct {
	A, B Point
}

// Intersection is the result of a ray hitting a segment.
type Intersection struct {
	T          float64 // ray parameter
	Point      Point   // midpoint of the struck segment
	Normal     Point   // unit (L1) normal of the struck face, facing away from the ray
	FaceLength float64 // geodesic length of the struck segment, in meters
}

// Intersect performs the ray/segment intersection test described by
// the source geometry kernel. Returns (Intersection, true) on a hit,
// or the zero value and false otherwise.
func Intersect(r Ray, seg Segment) (Intersection, bool) {
	l1, l2 := seg.A, seg.B
	v1 := r.Origin.Sub(l1)
	v2 := l2.Sub(l1)
	v3 := Point{X: -r.Direction.Y, Y: r.Direction.X}

	denom := v2.Dot(v3)
	if denom == 0 {
		return Intersection{}, false
	}

	t1 := v2.Cross(v1) / denom
	t2 := v1.Dot(v3) / denom

	if !(t1 >= 0.0 && t2 >= 0.0 && t2 <= 1.0) {
		return Intersection{}, false
	}

	// Left-hand perpendicular of v2, flipped if it faces the ray direction.
	normal := Point{X: -v2.Y, Y: v2.X}
	if normal.Dot(r.Direction) > 0 {
		normal = Point{X: v2.Y, Y: -v2.X}
	}

	norm := normal.L1Norm()
	if norm != 0 {
		normal = normal.Scale(1.0 / norm)
	} else {
		// Degenerate edge: fall back to the axis-aligned unit vector
		// along the dominant component of the pre-normalization normal.
		if math.Abs(normal.X) >= math.Abs(normal.Y) {
			normal = Point{X: 1.0, Y: 0.0}
		} else {
			normal = Point{X: 0.0, Y: 1.0}
		}
	}

	return Intersection{
		T:          t1,
		Point:      Midpoint(l1, l2),
		Normal:     normal,
		FaceLength: GeodesicMeters(l2, l1),
	}, true
}

// MinimumBoundingRectangle computes the minimum-area rotated rectangle
// enclosing a convex-hull-ordered set of points, per the rotating
// calipers over distinct edge angles. Returns the four corners.
func MinimumBoundingRectangle(hull []Point) []Point {
	if len(hull) < 2 {
		return append([]Point{}, hull...)
	}
	const piOver2 = math.Pi / 2.0

	angles := make([]float64, 0, len(hull)-1)
	seen := make(map[float64]bool)
	for i := 0; i < len(hull)-1; i++ {
		edge := hull[i+1].Sub(hull[i])
		a := math.Mod(math.Atan2(edge.Y, edge.X), piOver2)
		if a < 0 {
			a += piOver2
		}
		// round to avoid near-duplicate floating angles from polluting
		// the candidate set.
		key := math.Round(a*1e9) / 1e9
		if !seen[key] {
			seen[key] = true
			angles = append(angles, a)
		}
	}
	if len(angles) == 0 {
		angles = append(angles, 0)
	}

	bestArea := math.Inf(1)
	var bestCorners []Point

	for _, theta := range angles {
		cosT, sinT := math.Cos(theta), math.Sin(theta)
		// Rotation matrix rows, matching the source's column-major
		// rotation of [cos, cos(theta-pi/2); cos(theta+pi/2), cos]^T
		// which reduces to the standard 2x2 rotation.
		r00, r01 := cosT, sinT
		r10, r11 := -sinT, cosT

		minX, maxX := math.Inf(1), math.Inf(-1)
		minY, maxY := math.Inf(1), math.Inf(-1)
		for _, p := range hull {
			rx := r00*p.X + r01*p.Y
			ry := r10*p.X + r11*p.Y
			minX, maxX = math.Min(minX, rx), math.Max(maxX, rx)
			minY, maxY = math.Min(minY, ry), math.Max(maxY, ry)
		}

		area := (maxX - minX) * (maxY - minY)
		if area < bestArea {
			bestArea = area
			// Corners in the rotated frame, rotated back via the
			// transpose (inverse of an orthonormal rotation).
			corners := []Point{
				{X: minX, Y: minY},
				{X: minX, Y: maxY},
				{X: maxX, Y: maxY},
				{X: maxX, Y: minY},
			}
			bestCorners = make([]Point, 4)
			for i, c := range corners {
				bestCorners[i] = Point{
					X: r00*c.X + r10*c.Y,
					Y: r01*c.X + r11*c.Y,
				}
			}
		}
	}

	return bestCorners
}

// SortByPolarAngle sorts a copy of points by atan2(dx, dy) + pi about
// origin, matching the source's x-over-y convention.
func SortByPolarAngle(points []Point, origin Point) []Point {
	type withAngle struct {
		p     Point
		angle float64
	}
	withAngles := make([]withAngle, len(points))
	for i, p := range points {
		d := p.Sub(origin)
		withAngles[i] = withAngle{p: p, angle: math.Atan2(d.X, d.Y) + math.Pi}
	}
	// insertion sort is fine: hull/rectangle corner counts are tiny (<=8)
	for i := 1; i < len(withAngles); i++ {
		j := i
		for j > 0 && withAngles[j-1].angle > withAngles[j].angle {
			withAngles[j-1], withAngles[j] = withAngles[j], withAngles[j-1]
			j--
		}
	}
	result := make([]Point, len(withAngles))
	for i, wa := range withAngles {
		result[i] = wa.p
	}
	return result
}
