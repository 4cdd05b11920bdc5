package extract

import (
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/parcel-sampler/internal/model"
	"github.com/sells-group/parcel-sampler/internal/random"
)

// CategoryTargets splits total across the ratios, weighted by their sum. All
// but the last category are floored; the last takes the remainder so the
// targets always add up to total.
func CategoryTargets(total int, ratios []model.CategoryRatio) []int {
	out := make([]int, len(ratios))
	if total <= 0 || len(ratios) == 0 {
		return out
	}
	var sum float64
	for _, r := range ratios {
		if r.Ratio > 0 {
			sum += r.Ratio
		}
	}
	if sum <= 0 {
		return out
	}

	assigned := 0
	last := len(ratios) - 1
	for i, r := range ratios[:last] {
		if r.Ratio <= 0 {
			continue
		}
		out[i] = int(math.Floor(float64(total) * r.Ratio / sum))
		assigned += out[i]
	}
	out[last] = total - assigned
	return out
}

// rebalance trims over-represented land categories back to their targets
// and tops up the under-represented ones. Categories missing from the ratio
// list have a target of zero and are evicted entirely. Priority parcels are
// never evicted; they count against their category's target first.
func (e *Engine) rebalance(cands []model.Parcel, target int, priority PrioritySet, sel *selection) {
	ratios := e.cfg.CategoryRatios
	if !e.cfg.RebalanceCategories || len(ratios) == 0 {
		return
	}

	targets := CategoryTargets(target, ratios)
	want := make(map[string]int, len(ratios))
	var order []string
	for i, r := range ratios {
		c := strings.TrimSpace(r.Category)
		if _, seen := want[c]; !seen {
			order = append(order, c)
		}
		want[c] += targets[i]
	}

	byCategory := make(map[string][]model.Parcel)
	for _, p := range sel.parcels {
		byCategory[categoryOf(p)] = append(byCategory[categoryOf(p)], p)
	}
	evicted := make(map[string]struct{})
	var trimmed []model.Parcel
	for _, c := range sortedKeys(byCategory) {
		group := byCategory[c]
		if len(group) <= want[c] {
			continue
		}
		pinned := 0
		var movable []model.Parcel
		for _, p := range group {
			if priority.Contains(p) {
				pinned++
			} else {
				movable = append(movable, p)
			}
		}
		keep := max(want[c]-pinned, 0)
		for _, p := range random.Shuffle(movable, e.rng)[keep:] {
			evicted[p.Key()] = struct{}{}
			trimmed = append(trimmed, p)
		}
	}
	sel.removeKeys(evicted)

	added := 0
	for _, c := range order {
		have := 0
		for _, p := range sel.parcels {
			if categoryOf(p) == c {
				have++
			}
		}
		deficit := want[c] - have
		if deficit <= 0 {
			continue
		}

		var fresh []model.Parcel
		for _, p := range cands {
			if _, gone := evicted[p.Key()]; categoryOf(p) == c && !gone && !sel.has(p) {
				fresh = append(fresh, p)
			}
		}
		for _, pool := range [][]model.Parcel{random.Shuffle(fresh, e.rng), trimmed} {
			for _, p := range pool {
				if deficit == 0 {
					break
				}
				if categoryOf(p) == c && sel.canTake(p) {
					sel.add(p)
					deficit--
					added++
				}
			}
		}
	}

	e.log.Info("categories rebalanced",
		zap.Int("evicted", len(trimmed)),
		zap.Int("added", added),
		zap.Int("selected", sel.len()),
	)
}
