package boundary

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/parcel-sampler/internal/geo"
	"github.com/sells-group/parcel-sampler/internal/model"
)

// Index answers point-in-region queries over a fixed set of regions.
type Index struct {
	regions []Region
}

// NewIndex builds an index. When regions overlap, the first one listed wins.
func NewIndex(regions []Region) *Index {
	return &Index{regions: append([]Region(nil), regions...)}
}

// Len returns the number of indexed regions.
func (idx *Index) Len() int { return len(idx.regions) }

// Regions returns the indexed regions in load order.
func (idx *Index) Regions() []Region {
	return append([]Region(nil), idx.regions...)
}

// Locate returns the region containing c. A point inside a hole is outside
// that polygon.
func (idx *Index) Locate(c model.Coords) (Region, bool) {
	for _, r := range idx.regions {
		if r.bounds != nil && !inBounds(r, c) {
			continue
		}
		if contains(r, c) {
			return r, true
		}
	}
	return Region{}, false
}

func inBounds(r Region, c model.Coords) bool {
	return c.Lng >= r.bounds.Min(0) && c.Lng <= r.bounds.Max(0) &&
		c.Lat >= r.bounds.Min(1) && c.Lat <= r.bounds.Max(1)
}

func contains(r Region, c model.Coords) bool {
	for i := 0; i < r.Shape.NumPolygons(); i++ {
		p := r.Shape.Polygon(i)
		if p.NumLinearRings() == 0 || !geo.PointInPolygon(c, p.LinearRing(0).Coords()) {
			continue
		}
		inHole := false
		for h := 1; h < p.NumLinearRings(); h++ {
			if geo.PointInPolygon(c, p.LinearRing(h).Coords()) {
				inHole = true
				break
			}
		}
		if !inHole {
			return true
		}
	}
	return false
}

// AssignRegions returns copies of parcels where every geolocated parcel in
// the unclassified bucket takes the name of the region containing it. A
// key such as "왕곡면 신포리" also fills blank upper administrative fields
// from its leading words.
func (idx *Index) AssignRegions(parcels []model.Parcel) ([]model.Parcel, int) {
	out := make([]model.Parcel, len(parcels))
	assigned := 0
	for i, p := range parcels {
		out[i] = p
		if p.Coords == nil || p.RiKey() != model.Unclassified {
			continue
		}
		r, ok := idx.Locate(*p.Coords)
		if !ok {
			continue
		}
		out[i] = p.Clone()
		applyKey(&out[i], r.Key)
		assigned++
	}
	if assigned > 0 {
		zap.L().Info("boundary: regions assigned", zap.Int("parcels", assigned))
	}
	return out, assigned
}

func applyKey(p *model.Parcel, key string) {
	words := strings.Fields(key)
	if len(words) == 0 {
		return
	}
	p.Ri = words[len(words)-1]
	upper := []*string{&p.Eubmyeondong, &p.Sigungu, &p.Sido}
	for i, w := 0, len(words)-2; w >= 0 && i < len(upper); i, w = i+1, w-1 {
		if strings.TrimSpace(*upper[i]) == "" {
			*upper[i] = words[w]
		}
	}
}
