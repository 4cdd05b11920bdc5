package extract

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/parcel-sampler/internal/geo"
	"github.com/sells-group/parcel-sampler/internal/model"
	"github.com/sells-group/parcel-sampler/internal/random"
	"github.com/sells-group/parcel-sampler/internal/spatial"
)

// Reconcile merges a must-include representative set into an extraction of
// master. Both slices are expected to carry eligibility marks already.
//
// Eligible representative parcels are enriched from their master record and
// included as-is; the general extraction runs against the public-payment
// target, centred on the representative parcels. Each ineligible
// representative parcel is replaced by the nearest unselected candidate, and
// any replacement that cannot be found is reported as a shortfall.
func Reconcile(cfg model.ExtractionConfig, master, representative []model.Parcel, log *zap.Logger) *model.ExtractionResult {
	e := NewEngine(cfg, log)
	if len(representative) == 0 {
		return e.Extract(master, Options{})
	}

	idx := newMasterIndex(master)
	var included, ineligible []model.Parcel
	for _, r := range representative {
		if IsCandidate(r, e.cfg) {
			included = append(included, idx.enrich(r))
		} else {
			ineligible = append(ineligible, r)
		}
	}

	publicTarget := e.cfg.PublicPaymentTarget
	if publicTarget <= 0 {
		publicTarget = max(0, e.cfg.TotalTarget-len(representative))
	}
	repTarget := e.cfg.RepresentativeTarget
	if repTarget <= 0 {
		repTarget = len(representative)
	}

	opts := Options{
		ReferenceCentroid: spatial.CalculateCentroid(included),
		Priority:          NewPrioritySet(included),
		AnchorCoords:      spatial.CoordsOf(included),
	}
	ps := e.selectParcels(master, publicTarget, opts)

	merged := append([]model.Parcel(nil), ps.sel.parcels...)
	taken := make(map[string]struct{}, len(merged)+len(representative))
	for _, p := range merged {
		taken[p.Key()] = struct{}{}
	}

	var summary model.RepresentativeSummary
	for _, r := range included {
		c := r.Clone()
		c.IsSelected = true
		c.Category = model.CategoryRepresentative
		if _, dup := taken[c.Key()]; dup {
			summary.CrossCategoryDuplicates++
		}
		merged = append(merged, c)
	}
	for _, r := range included {
		taken[r.Key()] = struct{}{}
	}

	subs := e.substitutes(master, ineligible, opts.ReferenceCentroid, taken)
	merged = append(merged, subs...)

	summary.Included = len(included)
	summary.Ineligible = len(ineligible)
	summary.Substituted = len(subs)
	summary.Shortfall = max(len(ineligible)-len(subs), repTarget-len(included)-len(subs), 0)

	res := e.result(master, merged, publicTarget+repTarget, ps.outliers)
	res.Representative = summary
	addRepresentativeGap(&res.Validation, summary)

	e.log.Info("representative parcels reconciled",
		zap.String("run_id", res.RunID),
		zap.Int("included", summary.Included),
		zap.Int("ineligible", summary.Ineligible),
		zap.Int("substituted", summary.Substituted),
		zap.Int("shortfall", summary.Shortfall),
		zap.Int("cross_category_duplicates", summary.CrossCategoryDuplicates),
		zap.Int("selected", len(res.SelectedParcels)),
	)
	return res
}

// addRepresentativeGap warns when representative parcels were neither
// included nor substituted.
func addRepresentativeGap(rep *model.ValidationReport, summary model.RepresentativeSummary) {
	if summary.Shortfall <= 0 {
		return
	}
	rep.Warnings = append(rep.Warnings, model.Issue{
		Code: model.CodeRepresentativeGap,
		Message: fmt.Sprintf("%d representative parcels could not be included or substituted",
			summary.Shortfall),
	})
}

// substitutes draws one replacement per missing representative parcel from
// the eligible master candidates, nearest to ref first. taken is updated
// with every parcel drawn.
func (e *Engine) substitutes(master, missing []model.Parcel, ref *model.Coords, taken map[string]struct{}) []model.Parcel {
	if len(missing) == 0 {
		return nil
	}

	var located, unlocated []model.Parcel
	for _, p := range master {
		if _, ok := taken[p.Key()]; ok || !IsCandidate(p, e.cfg) {
			continue
		}
		if ref != nil && p.Coords != nil {
			located = append(located, p)
		} else {
			unlocated = append(unlocated, p)
		}
	}
	if ref != nil {
		sort.SliceStable(located, func(i, j int) bool {
			return geo.Haversine(*ref, *located[i].Coords) < geo.Haversine(*ref, *located[j].Coords)
		})
	}
	ranked := append(located, random.Shuffle(unlocated, e.rng)...)

	var out []model.Parcel
	next := 0
	for _, m := range missing {
		for next < len(ranked) {
			if _, ok := taken[ranked[next].Key()]; !ok {
				break
			}
			next++
		}
		if next >= len(ranked) {
			break
		}
		c := ranked[next].Clone()
		next++
		c.IsSelected = true
		c.Category = model.CategoryRepresentative
		c.SubstituteFor = m.Key()
		taken[c.Key()] = struct{}{}
		out = append(out, c)
	}
	return out
}

// masterIndex finds the master record of a representative parcel by parcel
// code, then owner and lot, then owner alone. The first record wins on
// every key.
type masterIndex struct {
	byPNU    map[string]model.Parcel
	byLot    map[string]model.Parcel
	byFarmer map[string]model.Parcel
}

func newMasterIndex(master []model.Parcel) masterIndex {
	idx := masterIndex{
		byPNU:    make(map[string]model.Parcel),
		byLot:    make(map[string]model.Parcel),
		byFarmer: make(map[string]model.Parcel),
	}
	for _, p := range master {
		if pnu := strings.TrimSpace(p.PNU); pnu != "" {
			putFirst(idx.byPNU, pnu, p)
		}
		if farmerOf(p) == "" {
			continue
		}
		if strings.TrimSpace(p.ParcelID) != "" {
			putFirst(idx.byLot, p.Key(), p)
		}
		putFirst(idx.byFarmer, farmerOf(p), p)
	}
	return idx
}

func putFirst(m map[string]model.Parcel, k string, p model.Parcel) {
	if _, ok := m[k]; !ok {
		m[k] = p
	}
}

func (idx masterIndex) match(r model.Parcel) (model.Parcel, bool) {
	if pnu := strings.TrimSpace(r.PNU); pnu != "" {
		if m, ok := idx.byPNU[pnu]; ok {
			return m, true
		}
	}
	if farmerOf(r) == "" {
		return model.Parcel{}, false
	}
	if m, ok := idx.byLot[r.Key()]; ok {
		return m, true
	}
	m, ok := idx.byFarmer[farmerOf(r)]
	return m, ok
}

// enrich returns a copy of r completed from its master record. Owner
// identity comes from master whenever master has it; every other field is
// only filled where r is blank.
func (idx masterIndex) enrich(r model.Parcel) model.Parcel {
	out := r.Clone()
	m, ok := idx.match(r)
	if !ok {
		return out
	}

	for _, f := range []stringField{
		{&out.FarmerID, m.FarmerID},
		{&out.FarmerName, m.FarmerName},
		{&out.OwnerAddress, m.OwnerAddress},
		{&out.OwnerPhone, m.OwnerPhone},
	} {
		if strings.TrimSpace(f.src) != "" {
			*f.dst = f.src
		}
	}

	for _, f := range []stringField{
		{&out.ParcelID, m.ParcelID},
		{&out.PNU, m.PNU},
		{&out.Address, m.Address},
		{&out.Sido, m.Sido},
		{&out.Sigungu, m.Sigungu},
		{&out.Eubmyeondong, m.Eubmyeondong},
		{&out.LandCategory, m.LandCategory},
		{&out.CropType, m.CropType},
	} {
		fillBlank(f.dst, f.src)
	}
	if ri := strings.TrimSpace(out.Ri); ri == "" || ri == model.Unclassified {
		if strings.TrimSpace(m.Ri) != "" {
			out.Ri = m.Ri
		}
	}
	if out.Coords == nil && m.Coords != nil {
		c := *m.Coords
		out.Coords = &c
	}
	if out.Area == nil && m.Area != nil {
		a := *m.Area
		out.Area = &a
	}

	for k, v := range m.Extra {
		if out.Extra == nil {
			out.Extra = make(map[string]string, len(m.Extra))
		}
		if strings.TrimSpace(out.Extra[k]) == "" {
			out.Extra[k] = v
		}
	}
	return out
}

type stringField struct {
	dst *string
	src string
}

func fillBlank(dst *string, src string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = src
	}
}
