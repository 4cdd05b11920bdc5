package model

import "strings"

// ExtractionMethod selects how candidates are ordered inside a region.
type ExtractionMethod string

const (
	MethodRandom ExtractionMethod = "random"
	MethodArea   ExtractionMethod = "area"
	MethodFarmer ExtractionMethod = "farmer"
)

// UnderfillPolicy decides what happens when regions cannot meet their quota.
type UnderfillPolicy string

const (
	UnderfillSupplement UnderfillPolicy = "supplement"
	UnderfillSkip       UnderfillPolicy = "skip"
)

// Defaults used when a field is left unset.
const (
	DefaultTotalTarget         = 700
	DefaultPerRiTarget         = 10
	DefaultMinPerFarmer        = 1
	DefaultMaxPerFarmer        = 2
	DefaultMinAreaSqm          = 100.0
	DefaultDensityWeight       = 0.7
	DefaultMaxParcelDistanceKm = 1.0
)

// CategoryRatio is the target share (in percent or any positive weight) for
// one land category. Order matters: the last entry absorbs rounding.
type CategoryRatio struct {
	Category string  `json:"category" yaml:"category" mapstructure:"category"`
	Ratio    float64 `json:"ratio" yaml:"ratio" mapstructure:"ratio"`
}

// SpatialConfig controls density-aware selection.
type SpatialConfig struct {
	EnableSpatialFilter bool    `json:"enable_spatial_filter" mapstructure:"enabled"`
	MaxRiDistanceKm     float64 `json:"max_ri_distance_km" mapstructure:"max_ri_distance_km"` // 0 = auto
	MaxParcelDistanceKm float64 `json:"max_parcel_distance_km" mapstructure:"max_parcel_distance_km"`
	DensityWeight       float64 `json:"density_weight" mapstructure:"density_weight"`
}

// ExtractionConfig is the immutable input of one extraction run.
type ExtractionConfig struct {
	TotalTarget          int              `json:"total_target" mapstructure:"total_target"`
	PublicPaymentTarget  int              `json:"public_payment_target,omitempty" mapstructure:"public_payment_target"`
	RepresentativeTarget int              `json:"representative_target,omitempty" mapstructure:"representative_target"`
	PerRiTarget          int              `json:"per_ri_target" mapstructure:"per_ri_target"`
	MinPerFarmer         int              `json:"min_per_farmer" mapstructure:"min_per_farmer"`
	MaxPerFarmer         int              `json:"max_per_farmer" mapstructure:"max_per_farmer"`
	Method               ExtractionMethod `json:"method" mapstructure:"method"`
	Underfill            UnderfillPolicy  `json:"underfill" mapstructure:"underfill"`
	Seed                 *uint32          `json:"seed,omitempty" mapstructure:"-"`
	RiOverrides          map[string]int   `json:"ri_overrides,omitempty" mapstructure:"-"`
	ExcludedRis          []string         `json:"excluded_ris,omitempty" mapstructure:"-"`
	MinAreaSqm           float64          `json:"min_area_sqm" mapstructure:"min_area_sqm"`
	CategoryRatios       []CategoryRatio  `json:"category_ratios,omitempty" mapstructure:"-"`
	RebalanceCategories  bool             `json:"rebalance_categories" mapstructure:"rebalance_categories"`
	Spatial              *SpatialConfig   `json:"spatial,omitempty" mapstructure:"-"`
}

// DefaultSpatialConfig returns the spatial defaults with filtering disabled.
func DefaultSpatialConfig() SpatialConfig {
	return SpatialConfig{
		MaxParcelDistanceKm: DefaultMaxParcelDistanceKm,
		DensityWeight:       DefaultDensityWeight,
	}
}

// DefaultExtractionConfig returns a config populated with the program defaults.
func DefaultExtractionConfig() ExtractionConfig {
	sp := DefaultSpatialConfig()
	return ExtractionConfig{
		TotalTarget:  DefaultTotalTarget,
		PerRiTarget:  DefaultPerRiTarget,
		MinPerFarmer: DefaultMinPerFarmer,
		MaxPerFarmer: DefaultMaxPerFarmer,
		Method:       MethodRandom,
		Underfill:    UnderfillSupplement,
		MinAreaSqm:   DefaultMinAreaSqm,
		Spatial:      &sp,
	}
}

// Normalize returns a copy with out-of-range values clamped. Maps and slices
// are copied so the result can be handed to the engine independently.
func (c ExtractionConfig) Normalize() ExtractionConfig {
	out := c
	if out.TotalTarget < 0 {
		out.TotalTarget = 0
	}
	if out.PublicPaymentTarget < 0 {
		out.PublicPaymentTarget = 0
	}
	if out.RepresentativeTarget < 0 {
		out.RepresentativeTarget = 0
	}
	if out.PerRiTarget < 0 {
		out.PerRiTarget = 0
	}
	if out.MinPerFarmer < 1 {
		out.MinPerFarmer = DefaultMinPerFarmer
	}
	if out.MaxPerFarmer < 1 {
		out.MaxPerFarmer = DefaultMaxPerFarmer
	}
	if out.MaxPerFarmer < out.MinPerFarmer {
		out.MaxPerFarmer = out.MinPerFarmer
	}
	if out.MinAreaSqm < 0 {
		out.MinAreaSqm = 0
	}
	switch out.Method {
	case MethodRandom, MethodArea, MethodFarmer:
	default:
		out.Method = MethodRandom
	}
	switch out.Underfill {
	case UnderfillSupplement, UnderfillSkip:
	default:
		out.Underfill = UnderfillSupplement
	}

	if c.RiOverrides != nil {
		out.RiOverrides = make(map[string]int, len(c.RiOverrides))
		for k, v := range c.RiOverrides {
			if v < 0 {
				v = 0
			}
			out.RiOverrides[k] = v
		}
	}
	out.ExcludedRis = append([]string(nil), c.ExcludedRis...)
	out.CategoryRatios = append([]CategoryRatio(nil), c.CategoryRatios...)

	if c.Spatial != nil {
		sp := *c.Spatial
		if sp.DensityWeight < 0 {
			sp.DensityWeight = 0
		}
		if sp.DensityWeight > 1 {
			sp.DensityWeight = 1
		}
		if sp.MaxParcelDistanceKm <= 0 {
			sp.MaxParcelDistanceKm = DefaultMaxParcelDistanceKm
		}
		if sp.MaxRiDistanceKm < 0 {
			sp.MaxRiDistanceKm = 0
		}
		out.Spatial = &sp
	}
	return out
}

// SpatialEnabled reports whether density-aware selection is switched on.
func (c ExtractionConfig) SpatialEnabled() bool {
	return c.Spatial != nil && c.Spatial.EnableSpatialFilter
}

// RiTarget returns the quota for a region, honoring per-region overrides.
// Override keys may name the full region key or any trailing part of it
// ("왕곡면 신포리" matches "전라남도 나주시 왕곡면 신포리"); the most specific
// match wins.
func (c ExtractionConfig) RiTarget(ri string) int {
	best, bestLen := c.PerRiTarget, -1
	for pattern, v := range c.RiOverrides {
		if RiMatches(pattern, ri) && len(pattern) > bestLen {
			best, bestLen = v, len(pattern)
		}
	}
	return best
}

// IsExcludedRi reports whether the user excluded the region.
func (c ExtractionConfig) IsExcludedRi(ri string) bool {
	for _, ex := range c.ExcludedRis {
		if RiMatches(ex, ri) {
			return true
		}
	}
	return false
}

// RiMatches reports whether pattern names the region key, either exactly or
// as a whole-word suffix.
func RiMatches(pattern, ri string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return false
	}
	return pattern == ri || strings.HasSuffix(ri, " "+pattern)
}
