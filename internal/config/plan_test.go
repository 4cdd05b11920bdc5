package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parcel-sampler/internal/model"
)

const samplePlan = `
plan:
  defaults:
    per_ri_target: 8
  overrides:
    왕곡면 신포리: 12
    덕산리: 0
  excluded:
    - 다시면 가운리
  category_ratios:
    - category: 논
      ratio: 60
    - category: 밭
      ratio: 40
`

func TestLoadPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(samplePlan), 0644))

	p, err := LoadPlan(path)
	require.NoError(t, err)
	assert.Equal(t, 8, p.Defaults.PerRiTarget)
	assert.Equal(t, map[string]int{"왕곡면 신포리": 12, "덕산리": 0}, p.Overrides)
	assert.Equal(t, []string{"다시면 가운리"}, p.Excluded)
	assert.Equal(t, []model.CategoryRatio{{Category: "논", Ratio: 60}, {Category: "밭", Ratio: 40}}, p.CategoryRatios)
}

func TestLoadPlan_Errors(t *testing.T) {
	_, err := LoadPlan(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = ParsePlan([]byte("plan: [unclosed"))
	assert.Error(t, err)

	_, err = ParsePlan([]byte("plan:\n  overrides:\n    신포리: -1\n"))
	assert.Error(t, err)

	_, err = ParsePlan([]byte("plan:\n  category_ratios:\n    - ratio: 10\n"))
	assert.Error(t, err)
}

func TestPlan_Apply(t *testing.T) {
	p, err := ParsePlan([]byte(samplePlan))
	require.NoError(t, err)

	cfg := model.DefaultExtractionConfig()
	cfg.RiOverrides = map[string]int{"덕산리": 3, "송월리": 4}
	cfg.ExcludedRis = []string{"금천리"}
	original := cfg.RiOverrides

	p.Apply(&cfg)
	assert.Equal(t, 8, cfg.PerRiTarget)
	assert.Equal(t, 700, cfg.TotalTarget)
	assert.Equal(t, map[string]int{"왕곡면 신포리": 12, "덕산리": 0, "송월리": 4}, cfg.RiOverrides)
	assert.Equal(t, []string{"금천리", "다시면 가운리"}, cfg.ExcludedRis)
	assert.True(t, cfg.RebalanceCategories)
	assert.Len(t, cfg.CategoryRatios, 2)
	assert.Equal(t, 3, original["덕산리"])

	assert.Equal(t, 12, cfg.RiTarget("전라남도 나주시 왕곡면 신포리"))
	assert.True(t, cfg.IsExcludedRi("전라남도 나주시 다시면 가운리"))
}

func TestPlan_ApplyNil(t *testing.T) {
	var p *Plan
	cfg := model.DefaultExtractionConfig()
	p.Apply(&cfg)
	assert.Equal(t, model.DefaultExtractionConfig().PerRiTarget, cfg.PerRiTarget)
}
