package geometry

import (
	"errors"
	"fmt"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/wkt"
)

// SRID of all stored extents (geographic lon/lat)
const SRID = 4326

var ErrInvalidExtent = errors.New("invalid spatial extent")

// PolygonFromBBox builds the rectangular polygon covering [minX,minY,maxX,maxY]
func PolygonFromBBox(bbox []float64) (geom.Polygon, error) {
	if len(bbox) != 4 {
		return nil, fmt.Errorf("%w: bbox must have 4 coordinates, got %d", ErrInvalidExtent, len(bbox))
	}
	minx, miny, maxx, maxy := bbox[0], bbox[1], bbox[2], bbox[3]
	return geom.Polygon{{{minx, miny}, {maxx, miny}, {maxx, maxy}, {minx, maxy}, {minx, miny}}}, nil
}

// MultiPolygonFromBBoxes builds one rectangle per bbox and collects them
// into a multipolygon. An empty bbox list is not a valid extent.
func MultiPolygonFromBBoxes(bboxes [][]float64) (geom.MultiPolygon, error) {
	if len(bboxes) == 0 {
		return nil, fmt.Errorf("%w: empty bbox list", ErrInvalidExtent)
	}
	mp := make(geom.MultiPolygon, 0, len(bboxes))
	for _, bbox := range bboxes {
		p, err := PolygonFromBBox(bbox)
		if err != nil {
			return nil, fmt.Errorf("MultiPolygonFromBBoxes.%w", err)
		}
		mp = append(mp, p.LinearRings())
	}
	return mp, nil
}

// EWKT encodes the geometry as extended WKT with the fixed geographic SRID
func EWKT(g geom.Geometry) string {
	return fmt.Sprintf("SRID=%d;%s", SRID, wkt.MustEncode(g))
}
