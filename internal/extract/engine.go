// Package extract draws the yearly survey sample from the eligible parcel
// pool: region-bounded quotas, per-owner caps, density-aware selection inside
// a region, supplementation when regions run short, category rebalancing and
// a final validation pass.
package extract

import (
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-sampler/internal/geo"
	"github.com/sells-group/parcel-sampler/internal/model"
	"github.com/sells-group/parcel-sampler/internal/random"
	"github.com/sells-group/parcel-sampler/internal/spatial"
)

// Options carries the optional spatial context of a run. All fields are
// filled by Reconcile when a representative set is present.
type Options struct {
	// ReferenceCentroid switches outlier exclusion to the median rule and
	// orders supplementation by proximity.
	ReferenceCentroid *model.Coords
	// Priority parcels are drawn first inside their region.
	Priority PrioritySet
	// AnchorCoords rank clusters and parcels by proximity, and relax the
	// cohesion filter.
	AnchorCoords []model.Coords
	Logger       *zap.Logger
}

// PrioritySet matches parcels by (farmer, lot) key or by parcel code.
type PrioritySet struct {
	keys map[string]struct{}
	pnus map[string]struct{}
}

// NewPrioritySet indexes the given parcels.
func NewPrioritySet(parcels []model.Parcel) PrioritySet {
	s := PrioritySet{
		keys: make(map[string]struct{}, len(parcels)),
		pnus: make(map[string]struct{}, len(parcels)),
	}
	for _, p := range parcels {
		s.keys[p.Key()] = struct{}{}
		if pnu := strings.TrimSpace(p.PNU); pnu != "" {
			s.pnus[pnu] = struct{}{}
		}
	}
	return s
}

// Contains reports whether p is a priority parcel.
func (s PrioritySet) Contains(p model.Parcel) bool {
	if len(s.keys) == 0 {
		return false
	}
	if _, ok := s.keys[p.Key()]; ok {
		return true
	}
	if pnu := strings.TrimSpace(p.PNU); pnu != "" {
		_, ok := s.pnus[pnu]
		return ok
	}
	return false
}

// Len returns the number of indexed parcels.
func (s PrioritySet) Len() int { return len(s.keys) }

// Engine runs extractions for one normalized config. Every draw of an Engine
// comes from a single generator stream seeded once, so a fixed seed
// reproduces the whole run.
type Engine struct {
	cfg  model.ExtractionConfig
	seed uint32
	rng  *random.Mulberry32
	log  *zap.Logger
}

// NewEngine normalizes cfg and seeds the generator. A nil logger falls back
// to the global zap logger.
func NewEngine(cfg model.ExtractionConfig, log *zap.Logger) *Engine {
	cfg = cfg.Normalize()
	seed := random.SeedFromClock()
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}
	if log == nil {
		log = zap.L()
	}
	return &Engine{
		cfg:  cfg,
		seed: seed,
		rng:  random.New(seed),
		log:  log.With(zap.String("component", "extract")),
	}
}

// Seed returns the seed the engine was started with.
func (e *Engine) Seed() uint32 { return e.seed }

// Config returns the normalized config.
func (e *Engine) Config() model.ExtractionConfig { return e.cfg }

// Extract runs a fresh engine over parcels. Inputs are never modified; the
// selected parcels in the result are copies.
func Extract(cfg model.ExtractionConfig, parcels []model.Parcel, opts Options) *model.ExtractionResult {
	return NewEngine(cfg, opts.Logger).Extract(parcels, opts)
}

// Extract runs Filter, Outlier-Exclude, Per-Region-Extract,
// Underfill-Supplement, Category-Rebalance and Validate against the
// configured total target.
func (e *Engine) Extract(parcels []model.Parcel, opts Options) *model.ExtractionResult {
	target := e.cfg.TotalTarget
	ps := e.selectParcels(parcels, target, opts)
	res := e.result(parcels, ps.sel.parcels, target, ps.outliers)

	e.log.Info("extraction complete",
		zap.String("run_id", res.RunID),
		zap.Uint32("seed", res.Seed),
		zap.Int("candidates", len(ps.candidates)),
		zap.Int("selected", len(res.SelectedParcels)),
		zap.Int("target", target),
		zap.Int("outlier_ris", len(ps.outliers)),
		zap.Bool("valid", res.Validation.Valid),
	)
	return res
}

// pass is the working state of one selection run.
type pass struct {
	candidates []model.Parcel
	outliers   []string
	sel        *selection
}

func (e *Engine) selectParcels(parcels []model.Parcel, target int, opts Options) *pass {
	ps := &pass{sel: newSelection(e.cfg.MaxPerFarmer)}
	if target <= 0 {
		return ps
	}

	ps.candidates = e.filter(parcels)
	ps.candidates, ps.outliers = e.excludeOutliers(ps.candidates, opts.ReferenceCentroid)

	e.extractPerRi(ps.candidates, opts, ps.sel)
	e.capToTarget(target, opts.Priority, ps.sel)
	e.supplement(ps.candidates, target, opts, ps.sel)
	e.rebalance(ps.candidates, target, opts.Priority, ps.sel)
	return ps
}

func (e *Engine) result(pool, selected []model.Parcel, target int, outliers []string) *model.ExtractionResult {
	res := &model.ExtractionResult{
		RunID:           uuid.NewString(),
		Seed:            e.seed,
		Target:          target,
		SelectedParcels: selected,
		ExcludedRis:     outliers,
		Shortfall:       max(0, target-len(selected)),
	}
	if res.SelectedParcels == nil {
		res.SelectedParcels = []model.Parcel{}
	}
	res.RiStats = RiStats(e.cfg, pool, selected, outliers)
	res.FarmerStats = FarmerStats(e.cfg, pool, selected)
	res.Validation = Validate(e.cfg, target, selected, res.RiStats)
	return res
}

// IsCandidate applies the eligibility filter: not previously sampled, not in
// a user-excluded region, and not below the area floor. Unknown area never
// disqualifies.
func IsCandidate(p model.Parcel, cfg model.ExtractionConfig) bool {
	if !p.IsEligible || p.WasSampled() {
		return false
	}
	if cfg.IsExcludedRi(p.RiKey()) {
		return false
	}
	if p.Area != nil && *p.Area < cfg.MinAreaSqm {
		return false
	}
	return true
}

func (e *Engine) filter(parcels []model.Parcel) []model.Parcel {
	out := make([]model.Parcel, 0, len(parcels))
	for _, p := range parcels {
		if IsCandidate(p, e.cfg) {
			out = append(out, p)
		}
	}
	e.log.Debug("candidates filtered", zap.Int("input", len(parcels)), zap.Int("candidates", len(out)))
	return out
}

// excludeOutliers drops whole regions that lie far from the coverage area.
// With a reference point the cut is the median region distance to it;
// otherwise the mean + 2σ rule over distances to the global centroid.
func (e *Engine) excludeOutliers(cands []model.Parcel, ref *model.Coords) ([]model.Parcel, []string) {
	if !e.cfg.SpatialEnabled() || len(cands) == 0 {
		return cands, nil
	}

	var distant []string
	if ref != nil {
		distant = distantFromReference(cands, *ref, e.cfg.Spatial.MaxRiDistanceKm)
	} else {
		var threshold *float64
		if v := e.cfg.Spatial.MaxRiDistanceKm; v > 0 {
			threshold = &v
		}
		distant = spatial.FindDistantRis(cands, threshold).Ris
	}
	if len(distant) == 0 {
		return cands, nil
	}

	drop := make(map[string]struct{}, len(distant))
	for _, ri := range distant {
		drop[ri] = struct{}{}
	}
	kept := make([]model.Parcel, 0, len(cands))
	for _, p := range cands {
		if _, ok := drop[p.RiKey()]; !ok {
			kept = append(kept, p)
		}
	}
	e.log.Info("outlier regions excluded",
		zap.Strings("ris", distant),
		zap.Int("parcels_dropped", len(cands)-len(kept)),
	)
	return kept, distant
}

func distantFromReference(cands []model.Parcel, ref model.Coords, thresholdKm float64) []string {
	centroids := spatial.RiCentroids(cands)
	_, keys := spatial.GroupByRi(cands)

	located := make([]string, 0, len(keys))
	distances := make([]float64, 0, len(keys))
	for _, ri := range keys {
		c, ok := centroids[ri]
		if !ok {
			continue
		}
		located = append(located, ri)
		distances = append(distances, geo.Haversine(ref, c))
	}
	if len(located) == 0 {
		return nil
	}
	if thresholdKm <= 0 {
		thresholdKm = spatial.Median(distances)
	}

	var distant []string
	for i, ri := range located {
		if distances[i] > thresholdKm {
			distant = append(distant, ri)
		}
	}
	return distant
}
