package spatialindex

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dhconnelly/rtreego"

	"github.com/citygrid/geoindex/internal/geometry"
)

// pointEpsilon inflates a point into a degenerate rectangle for
// R-tree insertion, per spec: 1e-6 degrees.
const pointEpsilon = 1e-6

const rtreeDim = 2
const rtreeMinChildren = 25
const rtreeMaxChildren = 50

// Entry is one record stored in an R-tree: its bounding rectangle and
// an opaque payload identifier resolved by the caller against the
// record store.
type Entry struct {
	ID     int
	MinX   float64
	MinY   float64
	MaxX   float64
	MaxY   float64
}

// Bounds implements rtreego.Spatial.
func (e Entry) Bounds() rtreego.Rect {
	lengths := []float64{e.MaxX - e.MinX, e.MaxY - e.MinY}
	for i, l := range lengths {
		if l <= 0 {
			lengths[i] = pointEpsilon
		}
	}
	rect, _ := rtreego.NewRect(rtreego.Point{e.MinX, e.MinY}, lengths)
	return rect
}

// RTree is a read-after-build spatial index over Entry values,
// supporting k-nearest-neighbor by Euclidean distance in lon/lat
// space. One RTree exists per region per entity kind
// ("buildings_<region>", "addresses_<region>").
type RTree struct {
	tree    *rtreego.Rtree
	entries []Entry
}

// NewRTreeFromPoints builds an R-tree of degenerate (epsilon-inflated)
// point rectangles, for address entities.
func NewRTreeFromPoints(ids []int, points []geometry.Point) *RTree {
	entries := make([]Entry, len(ids))
	for i, id := range ids {
		p := points[i]
		entries[i] = Entry{ID: id, MinX: p.X, MinY: p.Y, MaxX: p.X, MaxY: p.Y}
	}
	return newRTreeFromEntries(entries)
}

// NewRTreeFromBounds builds an R-tree of axis-aligned bounding boxes,
// for building entities.
func NewRTreeFromBounds(ids []int, boxes [][4]float64) *RTree {
	entries := make([]Entry, len(ids))
	for i, id := range ids {
		b := boxes[i]
		entries[i] = Entry{ID: id, MinX: b[0], MinY: b[1], MaxX: b[2], MaxY: b[3]}
	}
	return newRTreeFromEntries(entries)
}

func newRTreeFromEntries(entries []Entry) *RTree {
	tree := rtreego.NewTree(rtreeDim, rtreeMinChildren, rtreeMaxChildren)
	for _, e := range entries {
		tree.Insert(e)
	}
	return &RTree{tree: tree, entries: entries}
}

// KNearest returns the IDs of the k nearest entries to coord by
// Euclidean distance in lon/lat space.
func (r *RTree) KNearest(coord geometry.Point, k int) []int {
	if r.tree == nil || len(r.entries) == 0 {
		return nil
	}
	results := r.tree.NearestNeighbors(k, rtreego.Point{coord.X, coord.Y})
	ids := make([]int, 0, len(results))
	for _, res := range results {
		if e, ok := res.(Entry); ok {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

// Save persists the R-tree's entries (not the tree structure itself,
// which rtreego rebuilds in O(n log n) on load) to path, writing to a
// temporary file first and renaming atomically so a reader never sees
// a partially-written index.
func (r *RTree) Save(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("spatialindex: create temp index file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	enc := gob.NewEncoder(tmp)
	if err := enc.Encode(r.entries); err != nil {
		tmp.Close()
		return fmt.Errorf("spatialindex: encode index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("spatialindex: close temp index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("spatialindex: rename index into place: %w", err)
	}
	return nil
}

// LoadRTree opens a persisted R-tree snapshot and rebuilds the
// in-memory tree from its entries. Any error here (missing file,
// corrupt gob stream) is treated as fatal by callers per the spec:
// index corruption on open is not auto-repaired.
func LoadRTree(path string) (*RTree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("spatialindex: open index %q: %w", path, err)
	}
	defer f.Close()

	var entries []Entry
	dec := gob.NewDecoder(f)
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("spatialindex: corrupt index %q: %w", path, err)
	}
	return newRTreeFromEntries(entries), nil
}
