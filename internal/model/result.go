package model

// Validation issue codes.
const (
	CodeTotalMismatch      = "TOTAL_MISMATCH"
	CodeFarmerCapExceeded  = "FARMER_CAP_EXCEEDED"
	CodeAlreadySampled     = "ALREADY_SAMPLED"
	CodeRiUnderfilled      = "RI_UNDERFILLED"
	CodeDistantPairs       = "DISTANT_PAIRS"
	CodeCategoryRatioDrift = "CATEGORY_RATIO_DRIFT"
	CodeRepresentativeGap  = "REPRESENTATIVE_SHORTFALL"
)

// Issue is one validation finding.
type Issue struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Ri       string `json:"ri,omitempty"`
	FarmerID string `json:"farmer_id,omitempty"`
}

// ValidationReport certifies the invariants of a selection.
type ValidationReport struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// HasCode reports whether an error or warning with the code is present.
func (r ValidationReport) HasCode(code string) bool {
	for _, is := range r.Errors {
		if is.Code == code {
			return true
		}
	}
	for _, is := range r.Warnings {
		if is.Code == code {
			return true
		}
	}
	return false
}

// RiStat summarizes one region.
type RiStat struct {
	Ri       string `json:"ri"`
	Total    int    `json:"total"`
	Eligible int    `json:"eligible"`
	Selected int    `json:"selected"`
	Target   int    `json:"target"`
}

// FarmerStat summarizes one owner.
type FarmerStat struct {
	FarmerID string `json:"farmer_id"`
	Total    int    `json:"total"`
	Eligible int    `json:"eligible"`
	Selected int    `json:"selected"`
}

// RepresentativeSummary reports how the must-include pool was reconciled.
type RepresentativeSummary struct {
	Included                int `json:"included"`
	Ineligible              int `json:"ineligible"`
	Substituted             int `json:"substituted"`
	Shortfall               int `json:"shortfall"`
	CrossCategoryDuplicates int `json:"cross_category_duplicates"`
}

// ExtractionResult is produced atomically by one extraction call.
type ExtractionResult struct {
	RunID           string                `json:"run_id"`
	Seed            uint32                `json:"seed"`
	Target          int                   `json:"target"`
	SelectedParcels []Parcel              `json:"selected_parcels"`
	RiStats         []RiStat              `json:"ri_stats"`
	FarmerStats     []FarmerStat          `json:"farmer_stats"`
	Validation      ValidationReport      `json:"validation"`
	ExcludedRis     []string              `json:"excluded_ris,omitempty"`
	Shortfall       int                   `json:"shortfall"`
	Representative  RepresentativeSummary `json:"representative"`
}
