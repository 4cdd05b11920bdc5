// Package model defines the parcel records and extraction types shared by
// every stage of the sampling workflow.
package model

import (
	"strings"
)

// Unclassified is the region bucket for parcels whose ri could not be resolved.
const Unclassified = "미분류"

// Category distinguishes the two source pools merged into a final sample.
type Category string

const (
	CategoryPublicPayment  Category = "public-payment"
	CategoryRepresentative Category = "representative"
)

// Coords is a WGS84 point.
type Coords struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Parcel is one cadastral unit under consideration for sampling.
type Parcel struct {
	FarmerID     string   `json:"farmer_id"`
	FarmerName   string   `json:"farmer_name,omitempty"`
	ParcelID     string   `json:"parcel_id"`
	PNU          string   `json:"pnu,omitempty"`
	Address      string   `json:"address"`
	Sido         string   `json:"sido,omitempty"`
	Sigungu      string   `json:"sigungu,omitempty"`
	Eubmyeondong string   `json:"eubmyeondong,omitempty"`
	Ri           string   `json:"ri"`
	Coords       *Coords  `json:"coords,omitempty"`
	Area         *float64 `json:"area,omitempty"` // m²
	LandCategory string   `json:"land_category,omitempty"`
	CropType     string   `json:"crop_type,omitempty"`
	OwnerAddress string   `json:"owner_address,omitempty"`
	OwnerPhone   string   `json:"owner_phone,omitempty"`

	SampledYears  []int    `json:"sampled_years,omitempty"`
	IsEligible    bool     `json:"is_eligible"`
	IsSelected    bool     `json:"is_selected"`
	Category      Category `json:"category,omitempty"`
	SubstituteFor string   `json:"substitute_for,omitempty"`

	Extra map[string]string `json:"extra,omitempty"`
}

// Key returns the selection identity of the parcel.
func (p Parcel) Key() string {
	return ParcelKey(p.FarmerID, p.ParcelID)
}

// ParcelKey builds the (farmer, lot) identity used across the pipeline.
func ParcelKey(farmerID, parcelID string) string {
	return strings.TrimSpace(farmerID) + "|" + strings.TrimSpace(parcelID)
}

// RiKey returns the region grouping key. Parcels without a ri fall into the
// Unclassified bucket regardless of their upper administrative fields.
func (p Parcel) RiKey() string {
	ri := strings.TrimSpace(p.Ri)
	if ri == "" || ri == Unclassified {
		return Unclassified
	}
	parts := make([]string, 0, 4)
	for _, s := range []string{p.Sido, p.Sigungu, p.Eubmyeondong, ri} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// HasCoords reports whether the parcel has been geolocated.
func (p Parcel) HasCoords() bool {
	return p.Coords != nil
}

// WasSampled reports whether the parcel appears in any prior sampling year.
func (p Parcel) WasSampled() bool {
	return len(p.SampledYears) > 0
}

// EffectiveCategory returns the category, treating the zero value as public-payment.
func (p Parcel) EffectiveCategory() Category {
	if p.Category == "" {
		return CategoryPublicPayment
	}
	return p.Category
}

// Clone returns a deep copy so that nested fields can be rewritten without
// touching the source record.
func (p Parcel) Clone() Parcel {
	c := p
	if p.Coords != nil {
		coords := *p.Coords
		c.Coords = &coords
	}
	if p.Area != nil {
		area := *p.Area
		c.Area = &area
	}
	if p.SampledYears != nil {
		c.SampledYears = append([]int(nil), p.SampledYears...)
	}
	if p.Extra != nil {
		c.Extra = make(map[string]string, len(p.Extra))
		for k, v := range p.Extra {
			c.Extra[k] = v
		}
	}
	return c
}

// FirstNonEmpty returns the first non-blank value among the given key
// spellings. Spreadsheets from different offices name the same column in
// different ways, so lookups always go through a candidate list.
func FirstNonEmpty(fields map[string]string, keys ...string) string {
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// Keys returns the parcel keys in order.
func Keys(parcels []Parcel) []string {
	keys := make([]string, len(parcels))
	for i, p := range parcels {
		keys[i] = p.Key()
	}
	return keys
}
