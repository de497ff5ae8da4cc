package ingest

import (
	"fmt"

	"github.com/jonas-p/go-shp"
)

// ShapeSource is an opaque sequence of feature records read from some
// backing store. Region adapters only see Feature values, never the
// underlying driver, so a non-shapefile source (tests use an in-memory
// one) can stand in without touching adapter code.
type ShapeSource interface {
	Next() bool
	Feature() (Feature, error)
	Close() error
}

// shpSource adapts a github.com/jonas-p/go-shp reader to ShapeSource,
// reading the first ring of polygon shapes (or a single point for
// point shapefiles) and the full DBF attribute row as properties.
type shpSource struct {
	reader *shp.Reader
	fields []shp.Field
}

// OpenShapefile opens a .shp/.dbf pair by the .shp path (go-shp
// resolves the sibling .dbf automatically).
func OpenShapefile(path string) (ShapeSource, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open shapefile %q: %w", path, err)
	}
	return &shpSource{reader: reader, fields: reader.Fields()}, nil
}

func (s *shpSource) Next() bool { return s.reader.Next() }

func (s *shpSource) Close() error {
	s.reader.Close()
	return nil
}

func (s *shpSource) Feature() (Feature, error) {
	_, shape := s.reader.Shape()

	props := make(map[string]any, len(s.fields))
	for i, field := range s.fields {
		props[field.String()] = s.reader.Attribute(i)
	}

	var points [][2]float64
	switch g := shape.(type) {
	case *shp.Polygon:
		if len(g.Parts) == 0 {
			break
		}
		start := int(g.Parts[0])
		end := len(g.Points)
		if len(g.Parts) > 1 {
			end = int(g.Parts[1])
		}
		points = make([][2]float64, 0, end-start)
		for _, p := range g.Points[start:end] {
			points = append(points, [2]float64{p.X, p.Y})
		}
	case *shp.Point:
		points = [][2]float64{{g.X, g.Y}}
	default:
		return Feature{}, fmt.Errorf("ingest: unsupported shapefile geometry type %T", shape)
	}

	return Feature{Properties: props, Points: points}, nil
}
