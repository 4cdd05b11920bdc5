// Package spatial scores and groups parcels by location: centroids, local
// density, per-region clustering and outlier-region detection.
package spatial

import (
	"math"
	"sort"

	"github.com/sells-group/parcel-sampler/internal/geo"
	"github.com/sells-group/parcel-sampler/internal/model"
)

// Cluster is a connected group of parcels inside one region.
type Cluster struct {
	Ri      string
	Parcels []model.Parcel
}

// Centroid returns the mean position of the cluster members.
func (c Cluster) Centroid() *model.Coords {
	return CalculateCentroid(c.Parcels)
}

// DistantPair is two selected parcels farther apart than the cohesion radius.
type DistantPair struct {
	A          string  `json:"a"`
	B          string  `json:"b"`
	Ri         string  `json:"ri,omitempty"`
	DistanceKm float64 `json:"distance_km"`
}

// DistantRis is the outcome of outlier-region detection.
type DistantRis struct {
	Ris         []string           `json:"ris"`
	ThresholdKm float64            `json:"threshold_km"`
	DistancesKm map[string]float64 `json:"distances_km"`
}

// Contains reports whether ri was flagged.
func (d DistantRis) Contains(ri string) bool {
	for _, r := range d.Ris {
		if r == ri {
			return true
		}
	}
	return false
}

// CalculateCentroid returns the mean lat/lng of geolocated parcels, or nil
// when none have coordinates.
func CalculateCentroid(parcels []model.Parcel) *model.Coords {
	var sumLat, sumLng float64
	var n int
	for _, p := range parcels {
		if p.Coords == nil {
			continue
		}
		sumLat += p.Coords.Lat
		sumLng += p.Coords.Lng
		n++
	}
	if n == 0 {
		return nil
	}
	return &model.Coords{Lat: sumLat / float64(n), Lng: sumLng / float64(n)}
}

// CoordsOf returns the coordinates of the geolocated parcels.
func CoordsOf(parcels []model.Parcel) []model.Coords {
	out := make([]model.Coords, 0, len(parcels))
	for _, p := range parcels {
		if p.Coords != nil {
			out = append(out, *p.Coords)
		}
	}
	return out
}

// CalculateDensity returns the share of the geolocated pool, excluding the
// parcel itself, that lies within radiusKm of it.
func CalculateDensity(p model.Parcel, pool []model.Parcel, radiusKm float64) float64 {
	if p.Coords == nil {
		return 0
	}
	key := p.Key()
	var total, near int
	for _, other := range pool {
		if other.Coords == nil || other.Key() == key {
			continue
		}
		total++
		if geo.Haversine(*p.Coords, *other.Coords) <= radiusKm {
			near++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(near) / float64(total)
}

// GroupByRi groups parcels by region key. Keys come back sorted so callers
// iterate regions in a stable order.
func GroupByRi(parcels []model.Parcel) (map[string][]model.Parcel, []string) {
	groups := make(map[string][]model.Parcel)
	for _, p := range parcels {
		ri := p.RiKey()
		groups[ri] = append(groups[ri], p)
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return groups, keys
}

// ClusterParcelsInRi builds connected components of parcels whose pairwise
// distance is at most maxDistKm. Parcels in different regions never share a
// cluster. Parcels without coordinates are ignored.
func ClusterParcelsInRi(parcels []model.Parcel, maxDistKm float64) []Cluster {
	groups, keys := GroupByRi(parcels)

	var clusters []Cluster
	for _, ri := range keys {
		members := make([]model.Parcel, 0, len(groups[ri]))
		for _, p := range groups[ri] {
			if p.Coords != nil {
				members = append(members, p)
			}
		}

		visited := make([]bool, len(members))
		for start := range members {
			if visited[start] {
				continue
			}
			visited[start] = true
			queue := []int{start}
			var component []int
			for len(queue) > 0 {
				cur := queue[0]
				queue = queue[1:]
				component = append(component, cur)
				for next := range members {
					if visited[next] {
						continue
					}
					if geo.Haversine(*members[cur].Coords, *members[next].Coords) <= maxDistKm {
						visited[next] = true
						queue = append(queue, next)
					}
				}
			}
			sort.Ints(component)
			cl := Cluster{Ri: ri, Parcels: make([]model.Parcel, len(component))}
			for i, idx := range component {
				cl.Parcels[i] = members[idx]
			}
			clusters = append(clusters, cl)
		}
	}
	return clusters
}

// RiCentroids returns the centroid of every region that has at least one
// geolocated parcel.
func RiCentroids(parcels []model.Parcel) map[string]model.Coords {
	groups, _ := GroupByRi(parcels)
	out := make(map[string]model.Coords, len(groups))
	for ri, members := range groups {
		if c := CalculateCentroid(members); c != nil {
			out[ri] = *c
		}
	}
	return out
}

// OutlierThreshold returns mean + 2 standard deviations (population) of the
// distances, and false when the rule cannot separate anything: fewer than
// two values or no spread at all.
func OutlierThreshold(distances []float64) (float64, bool) {
	n := len(distances)
	if n < 2 {
		return 0, false
	}
	var sum float64
	for _, d := range distances {
		sum += d
	}
	mean := sum / float64(n)

	var variance float64
	for _, d := range distances {
		dev := d - mean
		variance += dev * dev
	}
	variance /= float64(n)
	std := math.Sqrt(variance)
	if std == 0 {
		return 0, false
	}
	return mean + 2*std, true
}

// FindDistantRis flags regions whose centroid lies far from the global
// centroid. With no threshold the cut is mean + 2σ of the region distances,
// inclusive: a region exactly on the threshold is flagged.
func FindDistantRis(parcels []model.Parcel, thresholdKm *float64) DistantRis {
	out := DistantRis{DistancesKm: map[string]float64{}}

	global := CalculateCentroid(parcels)
	if global == nil {
		return out
	}

	centroids := RiCentroids(parcels)
	keys := make([]string, 0, len(centroids))
	for ri := range centroids {
		keys = append(keys, ri)
	}
	sort.Strings(keys)

	distances := make([]float64, len(keys))
	for i, ri := range keys {
		d := geo.Haversine(*global, centroids[ri])
		distances[i] = d
		out.DistancesKm[ri] = d
	}

	var threshold float64
	if thresholdKm != nil {
		threshold = *thresholdKm
	} else {
		t, ok := OutlierThreshold(distances)
		if !ok {
			return out
		}
		threshold = t
	}
	out.ThresholdKm = threshold
	out.Ris = FlagAtOrBeyond(keys, distances, threshold)
	return out
}

// FlagAtOrBeyond returns the keys whose distance is >= threshold.
func FlagAtOrBeyond(keys []string, distances []float64, threshold float64) []string {
	var flagged []string
	for i, ri := range keys {
		if distances[i] >= threshold {
			flagged = append(flagged, ri)
		}
	}
	return flagged
}

// FindDistantPairs returns every pair of geolocated parcels farther apart
// than maxDistKm. It is a reporting aid and does not filter anything.
func FindDistantPairs(parcels []model.Parcel, maxDistKm float64) []DistantPair {
	var pairs []DistantPair
	for i := 0; i < len(parcels); i++ {
		if parcels[i].Coords == nil {
			continue
		}
		for j := i + 1; j < len(parcels); j++ {
			if parcels[j].Coords == nil {
				continue
			}
			d := geo.Haversine(*parcels[i].Coords, *parcels[j].Coords)
			if d > maxDistKm {
				pair := DistantPair{A: parcels[i].Key(), B: parcels[j].Key(), DistanceKm: d}
				if ri := parcels[i].RiKey(); ri == parcels[j].RiKey() {
					pair.Ri = ri
				}
				pairs = append(pairs, pair)
			}
		}
	}
	return pairs
}

// Median returns the median of values, averaging the middle pair for even
// lengths. The input is not modified.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// NearestDistance returns the distance from c to the closest reference point
// and false when there are no references.
func NearestDistance(c model.Coords, refs []model.Coords) (float64, bool) {
	if len(refs) == 0 {
		return 0, false
	}
	best := math.Inf(1)
	for _, r := range refs {
		if d := geo.Haversine(c, r); d < best {
			best = d
		}
	}
	return best, true
}
