package extract

import (
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/parcel-sampler/internal/geo"
	"github.com/sells-group/parcel-sampler/internal/model"
	"github.com/sells-group/parcel-sampler/internal/random"
	"github.com/sells-group/parcel-sampler/internal/spatial"
)

// proximitySmoothingKm keeps the inverse-distance score finite at zero distance.
const proximitySmoothingKm = 0.1

func (e *Engine) extractPerRi(cands []model.Parcel, opts Options, sel *selection) {
	groups, keys := spatial.GroupByRi(cands)
	cohesion := e.cfg.SpatialEnabled() && len(opts.AnchorCoords) == 0

	for _, ri := range keys {
		target := e.cfg.RiTarget(ri)
		if target <= 0 {
			continue
		}

		var priority, rest []model.Parcel
		for _, p := range e.regionPool(groups[ri], opts.Priority) {
			if opts.Priority.Contains(p) {
				priority = append(priority, p)
			} else {
				rest = append(rest, p)
			}
		}

		taken := 0
		for _, p := range priority {
			if taken >= target {
				break
			}
			if sel.canTake(p) {
				sel.add(p)
				taken++
			}
		}
		taken += e.draw(rest, target-taken, opts, sel, cohesion)

		if taken < target {
			e.log.Debug("region underfilled",
				zap.String("ri", ri),
				zap.Int("selected", taken),
				zap.Int("target", target),
				zap.Int("candidates", len(groups[ri])),
			)
		}
	}
}

// regionPool groups a region's parcels by owner, orders each owner's slice
// (priority parcels first) and truncates it to the owner cap.
func (e *Engine) regionPool(parcels []model.Parcel, priority PrioritySet) []model.Parcel {
	var owners []string
	byOwner := make(map[string][]model.Parcel)
	for _, p := range parcels {
		id := farmerOf(p)
		if _, ok := byOwner[id]; !ok {
			owners = append(owners, id)
		}
		byOwner[id] = append(byOwner[id], p)
	}

	pool := make([]model.Parcel, 0, len(parcels))
	for _, id := range owners {
		var first, rest []model.Parcel
		for _, p := range byOwner[id] {
			if priority.Contains(p) {
				first = append(first, p)
			} else {
				rest = append(rest, p)
			}
		}
		group := append(first, e.order(rest)...)
		if len(group) > e.cfg.MaxPerFarmer {
			group = group[:e.cfg.MaxPerFarmer]
		}
		pool = append(pool, group...)
	}
	return pool
}

// order returns a copy of parcels arranged for the configured method.
func (e *Engine) order(parcels []model.Parcel) []model.Parcel {
	switch e.cfg.Method {
	case model.MethodArea:
		out := append([]model.Parcel(nil), parcels...)
		sort.SliceStable(out, func(i, j int) bool {
			a, b := out[i].Area, out[j].Area
			if a == nil || b == nil {
				return a != nil && b == nil
			}
			return *a > *b
		})
		return out
	case model.MethodFarmer:
		out := append([]model.Parcel(nil), parcels...)
		sort.SliceStable(out, func(i, j int) bool {
			if fa, fb := farmerOf(out[i]), farmerOf(out[j]); fa != fb {
				return fa < fb
			}
			return out[i].ParcelID < out[j].ParcelID
		})
		return out
	default:
		return random.Shuffle(parcels, e.rng)
	}
}

func (e *Engine) densityEnabled() bool {
	return e.cfg.SpatialEnabled() && e.cfg.Method == model.MethodRandom
}

func (e *Engine) radiusKm() float64 {
	if e.cfg.Spatial == nil || e.cfg.Spatial.MaxParcelDistanceKm <= 0 {
		return model.DefaultMaxParcelDistanceKm
	}
	return e.cfg.Spatial.MaxParcelDistanceKm
}

// draw selects up to n parcels from pool and returns how many it took.
func (e *Engine) draw(pool []model.Parcel, n int, opts Options, sel *selection, cohesion bool) int {
	if n <= 0 || len(pool) == 0 {
		return 0
	}
	if e.densityEnabled() && len(spatial.CoordsOf(pool)) > 0 {
		return e.extractWithDensity(pool, n, opts.AnchorCoords, sel, cohesion)
	}

	radius := e.radiusKm()
	taken := 0
	for _, p := range e.order(pool) {
		if taken >= n {
			break
		}
		if !sel.canTake(p) || (cohesion && !sel.cohesive(p, radius)) {
			continue
		}
		sel.add(p)
		taken++
	}
	return taken
}

type scoredParcel struct {
	parcel model.Parcel
	score  float64
}

// extractWithDensity walks clusters in rank order and takes the best scored
// parcels of each. Parcels without coordinates only fill what is left.
func (e *Engine) extractWithDensity(pool []model.Parcel, n int, anchors []model.Coords, sel *selection, cohesion bool) int {
	radius := e.radiusKm()
	weight := e.cfg.Spatial.DensityWeight

	var located, unlocated []model.Parcel
	for _, p := range pool {
		if p.Coords != nil {
			located = append(located, p)
		} else {
			unlocated = append(unlocated, p)
		}
	}

	clusters := spatial.ClusterParcelsInRi(located, radius)
	rankClusters(clusters, anchors)

	taken := 0
	for _, cl := range clusters {
		if taken >= n {
			break
		}
		for _, sp := range e.scoreCluster(cl, located, anchors, radius, weight) {
			if taken >= n {
				break
			}
			if !sel.canTake(sp.parcel) || (cohesion && !sel.cohesive(sp.parcel, radius)) {
				continue
			}
			sel.add(sp.parcel)
			taken++
		}
	}

	for _, p := range random.Shuffle(unlocated, e.rng) {
		if taken >= n {
			break
		}
		if sel.canTake(p) {
			sel.add(p)
			taken++
		}
	}
	return taken
}

// rankClusters orders clusters nearest-to-anchor first, or largest first
// when there are no anchors.
func rankClusters(clusters []spatial.Cluster, anchors []model.Coords) {
	if len(anchors) == 0 {
		sort.SliceStable(clusters, func(i, j int) bool {
			return len(clusters[i].Parcels) > len(clusters[j].Parcels)
		})
		return
	}

	type ranked struct {
		cluster spatial.Cluster
		dist    float64
	}
	rs := make([]ranked, len(clusters))
	for i, cl := range clusters {
		d, _ := spatial.NearestDistance(*cl.Centroid(), anchors)
		rs[i] = ranked{cluster: cl, dist: d}
	}
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].dist < rs[j].dist })
	for i := range rs {
		clusters[i] = rs[i].cluster
	}
}

func (e *Engine) scoreCluster(cl spatial.Cluster, located []model.Parcel, anchors []model.Coords, radius, weight float64) []scoredParcel {
	out := make([]scoredParcel, len(cl.Parcels))
	for i, p := range cl.Parcels {
		structural := spatial.CalculateDensity(p, located, radius)
		if len(anchors) > 0 {
			d, _ := spatial.NearestDistance(*p.Coords, anchors)
			structural = 0.5*proximityScore(d) + 0.5*structural
		}
		out[i] = scoredParcel{
			parcel: p,
			score:  weight*structural + (1-weight)*e.rng.Float64(),
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

// proximityScore maps a distance to (0, 1], 1 at zero distance.
func proximityScore(distanceKm float64) float64 {
	return (1 / (distanceKm + proximitySmoothingKm)) / 10
}

// capToTarget trims a per-region overshoot back to the run target, always
// from the region holding the most selected parcels. Priority parcels stay.
func (e *Engine) capToTarget(target int, priority PrioritySet, sel *selection) {
	removed := 0
	for sel.len() > target {
		counts := make(map[string]int)
		for _, p := range sel.parcels {
			if !priority.Contains(p) {
				counts[p.RiKey()]++
			}
		}
		best, bestN := "", 0
		for _, ri := range sortedKeys(counts) {
			if counts[ri] > bestN {
				best, bestN = ri, counts[ri]
			}
		}
		if bestN == 0 {
			break
		}

		var idx []int
		for i, p := range sel.parcels {
			if p.RiKey() == best && !priority.Contains(p) {
				idx = append(idx, i)
			}
		}
		sel.removeAt(idx[random.Intn(e.rng, len(idx))])
		removed++
	}
	if removed > 0 {
		e.log.Debug("selection capped to target", zap.Int("removed", removed), zap.Int("target", target))
	}
}

// supplement fills the shortfall from candidates not yet selected, region by
// region, until the run target is met.
func (e *Engine) supplement(cands []model.Parcel, target int, opts Options, sel *selection) {
	if e.cfg.Underfill != model.UnderfillSupplement || sel.len() >= target {
		return
	}

	remaining := make([]model.Parcel, 0, len(cands))
	for _, p := range cands {
		if !sel.has(p) {
			remaining = append(remaining, p)
		}
	}
	groups, keys := spatial.GroupByRi(remaining)
	keys = supplementOrder(groups, keys, opts.ReferenceCentroid)

	before := sel.len()
	cohesion := e.cfg.SpatialEnabled()
	for _, ri := range keys {
		need := target - sel.len()
		if need <= 0 {
			break
		}
		e.draw(groups[ri], need, opts, sel, cohesion)
	}
	e.log.Info("underfill supplemented",
		zap.Int("added", sel.len()-before),
		zap.Int("selected", sel.len()),
		zap.Int("target", target),
	)
}

// supplementOrder visits regions nearest the reference first (regions
// without coordinates last), or the largest remaining pools first.
func supplementOrder(groups map[string][]model.Parcel, keys []string, ref *model.Coords) []string {
	ordered := append([]string(nil), keys...)
	if ref == nil {
		sort.SliceStable(ordered, func(i, j int) bool {
			return len(groups[ordered[i]]) > len(groups[ordered[j]])
		})
		return ordered
	}

	dist := make(map[string]float64, len(keys))
	for _, ri := range keys {
		if c := spatial.CalculateCentroid(groups[ri]); c != nil {
			dist[ri] = geo.Haversine(*ref, *c)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		di, iok := dist[ordered[i]]
		dj, jok := dist[ordered[j]]
		if iok != jok {
			return iok
		}
		return di < dj
	})
	return ordered
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
