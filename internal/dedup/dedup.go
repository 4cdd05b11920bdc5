// Package dedup marks which candidate parcels were already sampled in a
// prior year and are therefore ineligible.
package dedup

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/parcel-sampler/internal/address"
	"github.com/sells-group/parcel-sampler/internal/model"
)

// SampledPool is the set of parcels sampled in one prior year.
type SampledPool struct {
	Year    int
	Parcels []model.Parcel
}

// Summary counts the marking outcome.
type Summary struct {
	Total              int         `json:"total"`
	Eligible           int         `json:"eligible"`
	Ineligible         int         `json:"ineligible"`
	DuplicatesByYear   map[int]int `json:"duplicates_by_year"`
	AddressOnlyMatches int         `json:"address_only_matches"`
}

// yearIndex holds the per-year keys for tiers 1 and 3.
type yearIndex struct {
	year        int
	byLot       map[string]struct{} // tier 1: farmer|lot
	byFarmerAdr map[string]struct{} // tier 3: farmer|normalized address
}

// Index is the precomputed lookup over prior-year pools.
type Index struct {
	years     []yearIndex
	addresses map[string]struct{} // tier 2, shared by all years
}

// NewIndex builds the three-tier lookup. Pools are read, never modified.
func NewIndex(pools ...SampledPool) *Index {
	idx := &Index{addresses: make(map[string]struct{})}
	for _, pool := range pools {
		yi := yearIndex{
			year:        pool.Year,
			byLot:       make(map[string]struct{}, len(pool.Parcels)),
			byFarmerAdr: make(map[string]struct{}, len(pool.Parcels)),
		}
		for _, p := range pool.Parcels {
			if k := lotKey(p); k != "" {
				yi.byLot[k] = struct{}{}
			}
			if n := address.Normalize(p.Address); n != "" {
				idx.addresses[n] = struct{}{}
			}
			if k := address.FarmerKey(p.FarmerID, p.Address); k != "" && strings.TrimSpace(p.FarmerID) != "" {
				yi.byFarmerAdr[k] = struct{}{}
			}
		}
		idx.years = append(idx.years, yi)
	}
	return idx
}

// Match returns the sorted prior years the parcel was sampled in, and
// whether its normalized address alone collides with any prior pool.
//
// A year counts only on a tier-1 (farmer+lot) or tier-3 (farmer+address)
// hit. The tier-2 address set is shared by all years, so an address-only
// hit is reported but never flips eligibility: different owners can share
// a normalized address across years.
func (idx *Index) Match(p model.Parcel) (years []int, addressOnly bool) {
	lk := lotKey(p)
	fk := ""
	if strings.TrimSpace(p.FarmerID) != "" {
		fk = address.FarmerKey(p.FarmerID, p.Address)
	}

	for _, yi := range idx.years {
		hit := false
		if lk != "" {
			_, hit = yi.byLot[lk]
		}
		if !hit && fk != "" {
			_, hit = yi.byFarmerAdr[fk]
		}
		if hit {
			years = append(years, yi.year)
		}
	}
	sort.Ints(years)
	years = uniqueInts(years)

	if len(years) == 0 {
		if n := address.Normalize(p.Address); n != "" {
			_, addressOnly = idx.addresses[n]
		}
	}
	return years, addressOnly
}

// Mark returns copies of master with IsEligible and SampledYears set.
func Mark(master []model.Parcel, pools ...SampledPool) ([]model.Parcel, Summary) {
	idx := NewIndex(pools...)
	sum := Summary{Total: len(master), DuplicatesByYear: make(map[int]int)}

	out := make([]model.Parcel, len(master))
	for i, p := range master {
		c := p.Clone()
		years, addressOnly := idx.Match(p)
		c.SampledYears = years
		c.IsEligible = len(years) == 0
		if c.IsEligible {
			sum.Eligible++
		} else {
			sum.Ineligible++
		}
		for _, y := range years {
			sum.DuplicatesByYear[y]++
		}
		if addressOnly {
			sum.AddressOnlyMatches++
		}
		out[i] = c
	}

	log := zap.L().With(zap.String("component", "dedup"))
	log.Info("eligibility marked",
		zap.Int("total", sum.Total),
		zap.Int("eligible", sum.Eligible),
		zap.Int("ineligible", sum.Ineligible),
	)
	if sum.AddressOnlyMatches > 0 {
		log.Warn("parcels share a normalized address with a prior sample but no owner match",
			zap.Int("count", sum.AddressOnlyMatches),
		)
	}
	return out, sum
}

func lotKey(p model.Parcel) string {
	if strings.TrimSpace(p.FarmerID) == "" || strings.TrimSpace(p.ParcelID) == "" {
		return ""
	}
	return p.Key()
}

func uniqueInts(in []int) []int {
	if len(in) < 2 {
		return in
	}
	out := in[:1]
	for _, v := range in[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
