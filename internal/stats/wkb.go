package stats

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/sells-group/stylegen/internal/model"
)

// decodeWKB maps a WKB-encoded geometry to its geometry kind.
func decodeWKB(raw []byte) (model.GeometryKind, error) {
	g, err := wkb.Unmarshal(raw)
	if err != nil {
		return "", eris.Wrap(err, "stats: unmarshal WKB")
	}
	return kindOf(g)
}

func kindOf(g geom.T) (model.GeometryKind, error) {
	switch t := g.(type) {
	case *geom.Point, *geom.MultiPoint:
		return model.GeometryPoint, nil
	case *geom.LineString, *geom.MultiLineString:
		return model.GeometryLine, nil
	case *geom.Polygon, *geom.MultiPolygon:
		return model.GeometryPolygon, nil
	case *geom.GeometryCollection:
		if t.NumGeoms() > 0 {
			return kindOf(t.Geom(0))
		}
	}
	return "", eris.Errorf("stats: unsupported geometry type %T", g)
}
