package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/parcel-sampler/internal/model"
)

// Plan is a per-region allocation file kept next to the workbooks:
//
//	plan:
//	  defaults:
//	    per_ri_target: 8
//	  overrides:
//	    왕곡면 신포리: 12
//	  excluded: [다시면 가운리]
//	  category_ratios:
//	    - {category: 논, ratio: 60}
//	    - {category: 밭, ratio: 40}
type Plan struct {
	Defaults       PlanDefaults          `yaml:"defaults"`
	Overrides      map[string]int        `yaml:"overrides"`
	Excluded       []string              `yaml:"excluded"`
	CategoryRatios []model.CategoryRatio `yaml:"category_ratios"`
}

// PlanDefaults overrides the global targets. Zero values leave the
// configured value in place.
type PlanDefaults struct {
	PerRiTarget int `yaml:"per_ri_target"`
	TotalTarget int `yaml:"total_target"`
}

type planFile struct {
	Plan Plan `yaml:"plan"`
}

// LoadPlan reads a plan file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read plan %s", path)
	}
	return ParsePlan(data)
}

// ParsePlan decodes plan YAML.
func ParsePlan(data []byte) (*Plan, error) {
	var f planFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "config: parse plan")
	}
	for ri, n := range f.Plan.Overrides {
		if n < 0 {
			return nil, eris.Errorf("config: plan override for %q must be >= 0", ri)
		}
	}
	for _, cr := range f.Plan.CategoryRatios {
		if cr.Category == "" || cr.Ratio < 0 {
			return nil, eris.Errorf("config: plan category ratio %+v is invalid", cr)
		}
	}
	return &f.Plan, nil
}

// Apply merges the plan into cfg. Overrides are added to any already
// present; excluded regions are appended. Category ratios replace the
// configured list and switch rebalancing on.
func (p *Plan) Apply(cfg *model.ExtractionConfig) {
	if p == nil {
		return
	}
	if p.Defaults.PerRiTarget > 0 {
		cfg.PerRiTarget = p.Defaults.PerRiTarget
	}
	if p.Defaults.TotalTarget > 0 {
		cfg.TotalTarget = p.Defaults.TotalTarget
	}
	if len(p.Overrides) > 0 {
		merged := make(map[string]int, len(cfg.RiOverrides)+len(p.Overrides))
		for k, v := range cfg.RiOverrides {
			merged[k] = v
		}
		for k, v := range p.Overrides {
			merged[k] = v
		}
		cfg.RiOverrides = merged
	}
	if len(p.Excluded) > 0 {
		cfg.ExcludedRis = append(append([]string(nil), cfg.ExcludedRis...), p.Excluded...)
	}
	if len(p.CategoryRatios) > 0 {
		cfg.CategoryRatios = append([]model.CategoryRatio(nil), p.CategoryRatios...)
		cfg.RebalanceCategories = true
	}
}
