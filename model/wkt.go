package model

import (
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"
)

// ParseWallsWKT converts a WKT geometry into walls. LineStrings become
// polyline walls and polygon rings become closed polylines; collections
// are flattened. Each produced wall inherits the given template's type,
// element type, thickness and loss, and is assigned id "<prefix>-<n>".
func ParseWallsWKT(wkt string, template Wall, prefix string) ([]Wall, error) {
	g, err := geom.UnmarshalWKT(wkt)
	if err != nil {
		return nil, fmt.Errorf("parse walls WKT: %w", err)
	}

	var lines []geom.LineString
	collectLineStrings(g, &lines)
	if len(lines) == 0 {
		return nil, fmt.Errorf("parse walls WKT: no linear geometry in %s", g.Type())
	}

	walls := make([]Wall, 0, len(lines))
	for _, ls := range lines {
		pts := lineStringToPoints(ls)
		if len(pts) < 2 {
			continue
		}
		w := template
		w.ID = fmt.Sprintf("%s-%d", prefix, len(walls)+1)
		w.Points = pts
		w.P1, w.P2 = nil, nil
		walls = append(walls, w)
	}
	return walls, nil
}

func collectLineStrings(g geom.Geometry, out *[]geom.LineString) {
	switch g.Type() {
	case geom.TypeLineString:
		if ls, ok := g.AsLineString(); ok {
			*out = append(*out, ls)
		}
	case geom.TypeMultiLineString:
		mls, ok := g.AsMultiLineString()
		if !ok {
			return
		}
		for i := 0; i < mls.NumLineStrings(); i++ {
			*out = append(*out, mls.LineStringN(i))
		}
	case geom.TypePolygon:
		if p, ok := g.AsPolygon(); ok {
			appendRings(p, out)
		}
	case geom.TypeMultiPolygon:
		mp, ok := g.AsMultiPolygon()
		if !ok {
			return
		}
		for i := 0; i < mp.NumPolygons(); i++ {
			appendRings(mp.PolygonN(i), out)
		}
	case geom.TypeGeometryCollection:
		gc, ok := g.AsGeometryCollection()
		if !ok {
			return
		}
		for i := 0; i < gc.NumGeometries(); i++ {
			collectLineStrings(gc.GeometryN(i), out)
		}
	}
}

func appendRings(p geom.Polygon, out *[]geom.LineString) {
	*out = append(*out, p.ExteriorRing())
	for i := 0; i < p.NumInteriorRings(); i++ {
		*out = append(*out, p.InteriorRingN(i))
	}
}

func lineStringToPoints(ls geom.LineString) []Point {
	seq := ls.Coordinates()
	pts := make([]Point, seq.Length())
	for i := 0; i < seq.Length(); i++ {
		xy := seq.GetXY(i)
		pts[i] = Point{X: xy.X, Y: xy.Y}
	}
	return pts
}

// WKT renders the wall geometry as a WKT LineString.
func (w Wall) WKT() (string, error) {
	segs := w.Segments()
	if len(segs) == 0 {
		return geom.LineString{}.AsText(), nil
	}
	coords := make([]float64, 0, (len(segs)+1)*2)
	coords = append(coords, segs[0][0].X, segs[0][0].Y)
	for _, s := range segs {
		coords = append(coords, s[1].X, s[1].Y)
	}
	ls, err := geom.NewLineString(geom.NewSequence(coords, geom.DimXY))
	if err != nil {
		return "", fmt.Errorf("wall %s WKT: %w", w.ID, err)
	}
	return ls.AsText(), nil
}
