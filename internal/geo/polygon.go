package geo

import (
	"math"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/parcel-sampler/internal/model"
)

// degenerateArea is the signed-area magnitude below which a ring is treated
// as having no area.
const degenerateArea = 1e-12

// PolygonCentroid returns the area-weighted centroid of a ring given as
// [lng, lat] coordinates. A closing vertex equal to the first is optional.
// Rings with no usable area fall back to the mean of their vertices.
func PolygonCentroid(ring []geom.Coord) model.Coords {
	n := len(ring)
	if n == 0 {
		return model.Coords{}
	}

	var area, cx, cy float64
	for i := 0; i < n; i++ {
		x0, y0 := ring[i].X(), ring[i].Y()
		j := (i + 1) % n
		x1, y1 := ring[j].X(), ring[j].Y()
		cross := x0*y1 - x1*y0
		area += cross
		cx += (x0 + x1) * cross
		cy += (y0 + y1) * cross
	}
	area /= 2

	if math.Abs(area) < degenerateArea {
		return vertexMean(ring)
	}

	return model.Coords{
		Lat: cy / (6 * area),
		Lng: cx / (6 * area),
	}
}

func vertexMean(ring []geom.Coord) model.Coords {
	var sx, sy float64
	for _, c := range ring {
		sx += c.X()
		sy += c.Y()
	}
	n := float64(len(ring))
	return model.Coords{Lat: sy / n, Lng: sx / n}
}

// PointInPolygon reports whether the point lies inside the ring using ray
// casting. The half-open edge test keeps shared vertices from being counted
// twice.
func PointInPolygon(p model.Coords, ring []geom.Coord) bool {
	n := len(ring)
	if n < 3 {
		return false
	}

	x, y := p.Lng, p.Lat
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].X(), ring[i].Y()
		xj, yj := ring[j].X(), ring[j].Y()
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// RingFromLngLat builds a go-geom ring from [lng, lat] pairs.
func RingFromLngLat(points [][2]float64) []geom.Coord {
	ring := make([]geom.Coord, len(points))
	for i, pt := range points {
		ring[i] = geom.Coord{pt[0], pt[1]}
	}
	return ring
}
