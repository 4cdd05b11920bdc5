package extract

import (
	"strings"

	"github.com/sells-group/parcel-sampler/internal/geo"
	"github.com/sells-group/parcel-sampler/internal/model"
)

// selection is the running output of a pass. It enforces the owner cap
// globally, across every region and stage.
type selection struct {
	parcels      []model.Parcel
	keys         map[string]struct{}
	perFarmer    map[string]int
	maxPerFarmer int
}

func newSelection(maxPerFarmer int) *selection {
	return &selection{
		keys:         make(map[string]struct{}),
		perFarmer:    make(map[string]int),
		maxPerFarmer: maxPerFarmer,
	}
}

func (s *selection) len() int { return len(s.parcels) }

func (s *selection) has(p model.Parcel) bool {
	_, ok := s.keys[p.Key()]
	return ok
}

func (s *selection) canTake(p model.Parcel) bool {
	return !s.has(p) && s.perFarmer[farmerOf(p)] < s.maxPerFarmer
}

// add stores a copy flagged as selected.
func (s *selection) add(p model.Parcel) {
	c := p.Clone()
	c.IsSelected = true
	if c.Category == "" {
		c.Category = model.CategoryPublicPayment
	}
	s.parcels = append(s.parcels, c)
	s.keys[c.Key()] = struct{}{}
	s.perFarmer[farmerOf(c)]++
}

func (s *selection) removeAt(i int) model.Parcel {
	p := s.parcels[i]
	s.parcels = append(s.parcels[:i:i], s.parcels[i+1:]...)
	delete(s.keys, p.Key())
	s.perFarmer[farmerOf(p)]--
	return p
}

// removeKeys drops the keyed parcels, keeping the order of the rest.
func (s *selection) removeKeys(keys map[string]struct{}) {
	if len(keys) == 0 {
		return
	}
	kept := s.parcels[:0:0]
	for _, p := range s.parcels {
		if _, drop := keys[p.Key()]; drop {
			delete(s.keys, p.Key())
			s.perFarmer[farmerOf(p)]--
			continue
		}
		kept = append(kept, p)
	}
	s.parcels = kept
}

// cohesive reports whether p lies within radiusKm of a parcel already
// selected in its region. The first pick of a region is always cohesive.
func (s *selection) cohesive(p model.Parcel, radiusKm float64) bool {
	if p.Coords == nil {
		return true
	}
	ri := p.RiKey()
	anchored := false
	for _, q := range s.parcels {
		if q.Coords == nil || q.RiKey() != ri {
			continue
		}
		anchored = true
		if geo.Haversine(*p.Coords, *q.Coords) <= radiusKm {
			return true
		}
	}
	return !anchored
}

func farmerOf(p model.Parcel) string {
	return strings.TrimSpace(p.FarmerID)
}

func categoryOf(p model.Parcel) string {
	return strings.TrimSpace(p.LandCategory)
}
