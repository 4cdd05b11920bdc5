// Package boundary locates parcels inside administrative region polygons
// loaded from a shapefile.
package boundary

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-sampler/internal/geo"
	"github.com/sells-group/parcel-sampler/internal/model"
)

// Region is one named boundary polygon.
type Region struct {
	Key      string
	Shape    *geom.MultiPolygon
	Centroid model.Coords
	bounds   *geom.Bounds
}

// LoadShapefile reads polygon records from path and names each one by the
// value of keyField. Records without a polygon or a key are skipped.
func LoadShapefile(path, keyField string) (*Index, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	keyIdx := -1
	for i, f := range reader.Fields() {
		name := strings.TrimRight(f.String(), "\x00")
		if strings.EqualFold(name, keyField) {
			keyIdx = i
			break
		}
	}
	if keyIdx < 0 {
		return nil, eris.Errorf("boundary: field %q not found in %s", keyField, path)
	}

	var regions []Region
	skipped := 0
	for reader.Next() {
		_, shape := reader.Shape()
		key := strings.TrimSpace(strings.TrimRight(reader.Attribute(keyIdx), "\x00"))

		poly, ok := shape.(*shp.Polygon)
		if !ok || key == "" {
			skipped++
			continue
		}
		mp := toMultiPolygon(poly)
		if mp == nil {
			skipped++
			continue
		}
		regions = append(regions, NewRegion(key, mp))
	}

	if skipped > 0 {
		zap.L().Debug("boundary: skipped shapefile records", zap.String("path", path), zap.Int("skipped", skipped))
	}
	zap.L().Info("boundary: regions loaded", zap.String("path", path), zap.Int("regions", len(regions)))
	return NewIndex(regions), nil
}

// NewRegion wraps a multipolygon and computes its centroid from the
// largest member polygon.
func NewRegion(key string, mp *geom.MultiPolygon) Region {
	r := Region{Key: key, Shape: mp, bounds: mp.Bounds()}
	largest := -1.0
	for i := 0; i < mp.NumPolygons(); i++ {
		p := mp.Polygon(i)
		if p.NumLinearRings() == 0 {
			continue
		}
		if a := p.Area(); a > largest {
			largest = a
			r.Centroid = geo.PolygonCentroid(p.LinearRing(0).Coords())
		}
	}
	return r
}

// toMultiPolygon groups shapefile parts into polygons. Shapefiles store
// outer rings clockwise and holes counter-clockwise; a hole belongs to the
// outer ring that precedes it.
func toMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	var current *geom.Polygon
	flush := func() {
		if current == nil {
			return
		}
		if err := mp.Push(current); err != nil {
			zap.L().Debug("boundary: skipping malformed polygon", zap.Error(err))
		}
		current = nil
	}

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if end-start < 3 {
			continue
		}

		flat := make([]float64, 0, 2*(end-start))
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)

		if current == nil || signedArea(flat) < 0 {
			flush()
			current = geom.NewPolygon(geom.XY)
		}
		if err := current.Push(ring); err != nil {
			zap.L().Debug("boundary: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
		}
	}
	flush()

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// signedArea is positive for counter-clockwise rings.
func signedArea(flat []float64) float64 {
	n := len(flat) / 2
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += flat[2*i]*flat[2*j+1] - flat[2*j]*flat[2*i+1]
	}
	return sum / 2
}
