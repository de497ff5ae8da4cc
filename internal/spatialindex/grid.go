// Package spatialindex implements the two interchangeable spatial
// index variants described by the spec: a uniform n x n grid
// partition, and an R-tree backed by dhconnelly/rtreego.
package spatialindex

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/citygrid/geoindex/internal/geometry"
)

// Centered is the capability the grid operates on: anything that
// exposes a 2-D center. This is expressed as an interface rather than
// an inheritance hierarchy so Address, Building, or any future record
// type can be partitioned the same way.
type Centered interface {
	Center() geometry.Point
}

// Extent is an axis-aligned geographic extent, [min, max] in lon/lat.
type Extent struct {
	MinX, MinY, MaxX, MaxY float64
}

// Grid is a uniform n x n partition over a geographic extent. Items
// are grouped into buckets keyed by col + n*row.
type Grid struct {
	Extent  Extent
	N       int
	cols    []float64
	rows    []float64
	buckets map[int][]int // bucket idx -> item indices into the original slice
}

// expandFraction is the amount by which the computed extent of item
// centers is padded in each dimension before building the grid, so
// that points exactly on the boundary still fall inside a bucket.
const expandFraction = 0.005

// extentOf computes the axis-aligned bbox of a set of centers, expanded
// by expandFraction in each dimension.
func extentOf(items []Centered) Extent {
	if len(items) == 0 {
		return Extent{}
	}
	minX, minY := items[0].Center().X, items[0].Center().Y
	maxX, maxY := minX, minY
	for _, it := range items[1:] {
		c := it.Center()
		if c.X < minX {
			minX = c.X
		}
		if c.X > maxX {
			maxX = c.X
		}
		if c.Y < minY {
			minY = c.Y
		}
		if c.Y > maxY {
			maxY = c.Y
		}
	}
	dx := (maxX - minX) * expandFraction
	dy := (maxY - minY) * expandFraction
	return Extent{MinX: minX - dx, MinY: minY - dy, MaxX: maxX + dx, MaxY: maxY + dy}
}

// linspace returns n evenly spaced values from lo to hi, inclusive,
// matching numpy.linspace semantics.
func linspace(lo, hi float64, n int) []float64 {
	if n <= 1 {
		return []float64{lo}
	}
	vals := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := 0; i < n; i++ {
		vals[i] = lo + step*float64(i)
	}
	return vals
}

// searchSorted mimics numpy.searchsorted (left insertion point) over a
// sorted ascending slice.
func searchSorted(sorted []float64, v float64) int {
	return sort.SearchFloat64s(sorted, v)
}

// NewGrid partitions items into an n x n grid. If extent is the zero
// value, the extent is computed from the items themselves; pass a
// shared extent (e.g. a building grid's extent) to align a second
// grid's coordinate system with the first, as the consolidator does
// for addresses.
func NewGrid(items []Centered, n int, extent Extent) *Grid {
	if extent == (Extent{}) {
		extent = extentOf(items)
	}
	g := &Grid{
		Extent:  extent,
		N:       n,
		cols:    linspace(extent.MinX, extent.MaxX, n),
		rows:    linspace(extent.MinY, extent.MaxY, n),
		buckets: make(map[int][]int),
	}
	for i, it := range items {
		idx := g.IndexForCoordinate(it.Center())
		if idx == nil {
			continue
		}
		g.buckets[*idx] = append(g.buckets[*idx], i)
	}
	return g
}

// colRow returns the column/row for a coordinate under this grid.
func (g *Grid) colRow(coord geometry.Point) (int, int) {
	col := searchSorted(g.cols, coord.X)
	row := searchSorted(g.rows, coord.Y)
	return col, row
}

// IndexForCoordinate returns the bucket index for a coordinate, or nil
// if the computed index would be negative.
func (g *Grid) IndexForCoordinate(coord geometry.Point) *int {
	col, row := g.colRow(coord)
	idx := col + g.N*row
	if idx < 0 {
		return nil
	}
	return &idx
}

// IndicesSurroundingCoordinate returns the 3x3 neighborhood of bucket
// indices around a coordinate's bucket, filtered to non-negative
// indices. This is the surface the query engine uses for both
// proximity and candidate-building fetches.
func (g *Grid) IndicesSurroundingCoordinate(coord geometry.Point) []int {
	col, row := g.colRow(coord)
	indices := make([]int, 0, 9)
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			r, c := row+dr, col+dc
			idx := c + g.N*r
			if idx >= 0 {
				indices = append(indices, idx)
			}
		}
	}
	return indices
}

// ItemsInBucket returns the item indices (into the slice NewGrid was
// built from) assigned to bucket idx.
func (g *Grid) ItemsInBucket(idx int) []int {
	return g.buckets[idx]
}

// ItemsInBuckets returns the union of item indices across the given
// bucket indices, in bucket order, duplicates possible if an index is
// repeated by the caller.
func (g *Grid) ItemsInBuckets(indices []int) []int {
	result := make([]int, 0)
	for _, idx := range indices {
		result = append(result, g.buckets[idx]...)
	}
	return result
}

// Nearest gives the grid the same shape as spatialindex.RTree.KNearest
// so the query engine can use either index interchangeably: it
// collects the 3x3 bucket neighborhood, ranks by squared distance to
// coord, and truncates to k. centers supplies each candidate's
// coordinate (the grid itself only stores bucket membership).
func (g *Grid) Nearest(coord geometry.Point, k int, centers func(itemIdx int) geometry.Point) []int {
	candidates := g.ItemsInBuckets(g.IndicesSurroundingCoordinate(coord))
	type ranked struct {
		idx  int
		dist float64
	}
	scored := make([]ranked, len(candidates))
	for i, c := range candidates {
		p := centers(c)
		dx, dy := p.X-coord.X, p.Y-coord.Y
		scored[i] = ranked{idx: c, dist: dx*dx + dy*dy}
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].dist < scored[j].dist })
	if len(scored) > k {
		scored = scored[:k]
	}
	result := make([]int, len(scored))
	for i, r := range scored {
		result[i] = r.idx
	}
	return result
}

// gridSnapshot is the gob-encoded wire form of a Grid: only exported
// fields survive gob encoding, so the grid's unexported cols/rows/
// buckets are copied into this shape for Save/Load.
type gridSnapshot struct {
	Extent  Extent
	N       int
	Cols    []float64
	Rows    []float64
	Buckets map[int][]int
}

// Save persists the grid's partition to path, writing to a temporary
// file first and renaming atomically, matching the R-tree's Save.
func (g *Grid) Save(path string) error {
	snap := gridSnapshot{Extent: g.Extent, N: g.N, Cols: g.cols, Rows: g.rows, Buckets: g.buckets}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("spatialindex: create temp index file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	enc := gob.NewEncoder(tmp)
	if err := enc.Encode(snap); err != nil {
		tmp.Close()
		return fmt.Errorf("spatialindex: encode grid: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("spatialindex: close temp index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("spatialindex: rename index into place: %w", err)
	}
	return nil
}

// LoadGrid opens a persisted grid snapshot. Corruption here is fatal
// to the caller, same as LoadRTree: no auto-repair.
func LoadGrid(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("spatialindex: open index %q: %w", path, err)
	}
	defer f.Close()

	var snap gridSnapshot
	dec := gob.NewDecoder(f)
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("spatialindex: corrupt index %q: %w", path, err)
	}
	return &Grid{Extent: snap.Extent, N: snap.N, cols: snap.Cols, rows: snap.Rows, buckets: snap.Buckets}, nil
}
