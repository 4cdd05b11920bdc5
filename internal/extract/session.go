package extract

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/parcel-sampler/internal/model"
)

// Session is the review stage of one result. It splices SelectedParcels in
// place; stats and validation are only refreshed by Revalidate.
type Session struct {
	cfg    model.ExtractionConfig
	pool   []model.Parcel
	result *model.ExtractionResult
}

// NewSession wraps result. pool is the parcel list the result was drawn
// from and is used to rebuild the stats.
func NewSession(cfg model.ExtractionConfig, pool []model.Parcel, result *model.ExtractionResult) *Session {
	return &Session{cfg: cfg.Normalize(), pool: pool, result: result}
}

// Result returns the wrapped result.
func (s *Session) Result() *model.ExtractionResult { return s.result }

func (s *Session) indexOf(key string) int {
	for i, p := range s.result.SelectedParcels {
		if p.Key() == key {
			return i
		}
	}
	return -1
}

// AddParcel appends a copy of p to the selection.
func (s *Session) AddParcel(p model.Parcel) error {
	if s.indexOf(p.Key()) >= 0 {
		return eris.Errorf("extract: parcel %s is already selected", p.Key())
	}
	c := p.Clone()
	c.IsSelected = true
	if c.Category == "" {
		c.Category = model.CategoryPublicPayment
	}
	s.result.SelectedParcels = append(s.result.SelectedParcels, c)
	return nil
}

// RemoveParcel drops the parcel with the given key from the selection.
func (s *Session) RemoveParcel(key string) error {
	i := s.indexOf(key)
	if i < 0 {
		return eris.Errorf("extract: parcel %s is not selected", key)
	}
	sel := s.result.SelectedParcels
	s.result.SelectedParcels = append(sel[:i:i], sel[i+1:]...)
	return nil
}

// ToggleSelection adds p when absent and removes it otherwise, returning
// whether p is selected afterwards.
func (s *Session) ToggleSelection(p model.Parcel) bool {
	if err := s.RemoveParcel(p.Key()); err == nil {
		return false
	}
	_ = s.AddParcel(p)
	return true
}

// Revalidate rebuilds stats, shortfall and validation for the current
// selection. The representative summary of a reconciled run is kept and
// still reported.
func (s *Session) Revalidate() model.ValidationReport {
	res := s.result
	res.RiStats = RiStats(s.cfg, s.pool, res.SelectedParcels, res.ExcludedRis)
	res.FarmerStats = FarmerStats(s.cfg, s.pool, res.SelectedParcels)
	res.Shortfall = max(0, res.Target-len(res.SelectedParcels))
	res.Validation = Validate(s.cfg, res.Target, res.SelectedParcels, res.RiStats)
	addRepresentativeGap(&res.Validation, res.Representative)
	return res.Validation
}
