package extract

import (
	"fmt"
	"math"
	"strings"

	"github.com/sells-group/parcel-sampler/internal/model"
	"github.com/sells-group/parcel-sampler/internal/spatial"
)

const (
	// totalTolerance is how far the selection may miss its target before the
	// mismatch becomes an error.
	totalTolerance = 10
	// categoryDriftPct is the allowed deviation per land category, in
	// percentage points.
	categoryDriftPct = 5.0
)

// Validate certifies a final selection against its target and config.
// Owner-cap and category checks cover the public-payment portion only;
// representative parcels are mandatory inclusions outside owner quotas.
func Validate(cfg model.ExtractionConfig, target int, selected []model.Parcel, riStats []model.RiStat) model.ValidationReport {
	cfg = cfg.Normalize()
	var rep model.ValidationReport

	switch diff := len(selected) - target; {
	case target <= 0:
		rep.Errors = append(rep.Errors, model.Issue{
			Code:    model.CodeTotalMismatch,
			Message: fmt.Sprintf("target must be positive, got %d", target),
		})
	case len(selected) == 0:
		rep.Errors = append(rep.Errors, model.Issue{
			Code:    model.CodeTotalMismatch,
			Message: fmt.Sprintf("no parcels selected for a target of %d", target),
		})
	case diff > totalTolerance || diff < -totalTolerance:
		rep.Errors = append(rep.Errors, model.Issue{
			Code:    model.CodeTotalMismatch,
			Message: fmt.Sprintf("selected %d parcels for a target of %d", len(selected), target),
		})
	case diff != 0:
		rep.Warnings = append(rep.Warnings, model.Issue{
			Code:    model.CodeTotalMismatch,
			Message: fmt.Sprintf("selected %d parcels for a target of %d", len(selected), target),
		})
	}

	var public []model.Parcel
	for _, p := range selected {
		if p.EffectiveCategory() == model.CategoryPublicPayment {
			public = append(public, p)
		}
	}

	perFarmer := make(map[string]int)
	for _, p := range public {
		perFarmer[farmerOf(p)]++
	}
	for _, id := range sortedKeys(perFarmer) {
		if n := perFarmer[id]; n > cfg.MaxPerFarmer {
			rep.Errors = append(rep.Errors, model.Issue{
				Code:     model.CodeFarmerCapExceeded,
				Message:  fmt.Sprintf("owner has %d parcels selected, cap is %d", n, cfg.MaxPerFarmer),
				FarmerID: id,
			})
		}
	}

	for _, p := range selected {
		if p.WasSampled() {
			rep.Errors = append(rep.Errors, model.Issue{
				Code:     model.CodeAlreadySampled,
				Message:  fmt.Sprintf("parcel %s was sampled in %v", p.Key(), p.SampledYears),
				Ri:       p.RiKey(),
				FarmerID: farmerOf(p),
			})
		}
	}

	// Once the run target is met, regions below quota were trimmed to fit
	// the total, not left short by supplementation.
	for _, st := range riStats {
		if len(selected) >= target {
			break
		}
		if st.Target > 0 && st.Selected < st.Target && st.Eligible >= st.Target {
			rep.Warnings = append(rep.Warnings, model.Issue{
				Code:    model.CodeRiUnderfilled,
				Message: fmt.Sprintf("selected %d of %d with %d eligible", st.Selected, st.Target, st.Eligible),
				Ri:      st.Ri,
			})
		}
	}

	if cfg.SpatialEnabled() {
		groups, keys := spatial.GroupByRi(selected)
		for _, ri := range keys {
			pairs := spatial.FindDistantPairs(groups[ri], cfg.Spatial.MaxParcelDistanceKm)
			if len(pairs) == 0 {
				continue
			}
			rep.Warnings = append(rep.Warnings, model.Issue{
				Code: model.CodeDistantPairs,
				Message: fmt.Sprintf("%d selected pairs are more than %.2f km apart (max %.2f km)",
					len(pairs), cfg.Spatial.MaxParcelDistanceKm, maxPairDistance(pairs)),
				Ri: ri,
			})
		}
	}

	rep.Warnings = append(rep.Warnings, categoryDrift(cfg.CategoryRatios, public)...)
	rep.Valid = len(rep.Errors) == 0
	return rep
}

func categoryDrift(ratios []model.CategoryRatio, public []model.Parcel) []model.Issue {
	if len(ratios) == 0 || len(public) == 0 {
		return nil
	}
	var sum float64
	expected := make(map[string]float64)
	var order []string
	for _, r := range ratios {
		if r.Ratio <= 0 {
			continue
		}
		c := strings.TrimSpace(r.Category)
		if _, seen := expected[c]; !seen {
			order = append(order, c)
		}
		expected[c] += r.Ratio
		sum += r.Ratio
	}
	if sum <= 0 {
		return nil
	}

	actual := make(map[string]int)
	for _, p := range public {
		actual[categoryOf(p)]++
	}

	var issues []model.Issue
	for _, c := range order {
		want := expected[c] / sum * 100
		got := float64(actual[c]) / float64(len(public)) * 100
		if math.Abs(got-want) > categoryDriftPct {
			issues = append(issues, model.Issue{
				Code:    model.CodeCategoryRatioDrift,
				Message: fmt.Sprintf("category %q is %.1f%% of the selection, expected %.1f%%", c, got, want),
			})
		}
	}
	return issues
}

func maxPairDistance(pairs []spatial.DistantPair) float64 {
	var m float64
	for _, p := range pairs {
		m = math.Max(m, p.DistanceKm)
	}
	return m
}

// RiStats summarizes every region seen in the pool or the selection. Regions
// that were excluded, by the user or as spatial outliers, carry a zero
// target.
func RiStats(cfg model.ExtractionConfig, pool, selected []model.Parcel, outliers []string) []model.RiStat {
	cfg = cfg.Normalize()
	excluded := make(map[string]struct{}, len(outliers))
	for _, ri := range outliers {
		excluded[ri] = struct{}{}
	}

	stats := make(map[string]*model.RiStat)
	get := func(ri string) *model.RiStat {
		st, ok := stats[ri]
		if !ok {
			st = &model.RiStat{Ri: ri}
			if _, out := excluded[ri]; !out && !cfg.IsExcludedRi(ri) {
				st.Target = cfg.RiTarget(ri)
			}
			stats[ri] = st
		}
		return st
	}
	for _, p := range pool {
		st := get(p.RiKey())
		st.Total++
		if IsCandidate(p, cfg) {
			st.Eligible++
		}
	}
	for _, p := range selected {
		get(p.RiKey()).Selected++
	}

	out := make([]model.RiStat, 0, len(stats))
	for _, ri := range sortedKeys(stats) {
		out = append(out, *stats[ri])
	}
	return out
}

// FarmerStats summarizes every owner seen in the pool or the selection.
func FarmerStats(cfg model.ExtractionConfig, pool, selected []model.Parcel) []model.FarmerStat {
	cfg = cfg.Normalize()
	stats := make(map[string]*model.FarmerStat)
	get := func(id string) *model.FarmerStat {
		st, ok := stats[id]
		if !ok {
			st = &model.FarmerStat{FarmerID: id}
			stats[id] = st
		}
		return st
	}
	for _, p := range pool {
		st := get(farmerOf(p))
		st.Total++
		if IsCandidate(p, cfg) {
			st.Eligible++
		}
	}
	for _, p := range selected {
		get(farmerOf(p)).Selected++
	}

	ids := sortedKeys(stats)
	out := make([]model.FarmerStat, len(ids))
	for i, id := range ids {
		out[i] = *stats[id]
	}
	return out
}
