package extract

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-sampler/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// kmLat is one kilometre of latitude in degrees on the haversine sphere.
const kmLat = 180 / (math.Pi * 6371)

func seedPtr(v uint32) *uint32 { return &v }
func areaPtr(v float64) *float64 { return &v }
func latKm(km float64) *model.Coords { return &model.Coords{Lat: 35 + km*kmLat, Lng: 127} }

func parcel(ri, farmer, lot string) model.Parcel {
	return model.Parcel{
		FarmerID:     farmer,
		ParcelID:     lot,
		Sido:         "전라남도",
		Sigungu:      "나주시",
		Eubmyeondong: "왕곡면",
		Ri:           ri,
		Area:         areaPtr(500),
		IsEligible:   true,
	}
}

// region builds n parcels with one owner each.
func region(ri string, n int) []model.Parcel {
	out := make([]model.Parcel, n)
	for i := range out {
		out[i] = parcel(ri, fmt.Sprintf("%s-F%02d", ri, i), fmt.Sprintf("%d", i))
	}
	return out
}

func riKey(ri string) string { return "전라남도 나주시 왕곡면 " + ri }

func countByRi(parcels []model.Parcel) map[string]int {
	out := make(map[string]int)
	for _, p := range parcels {
		out[p.Ri]++
	}
	return out
}

func countByFarmer(parcels []model.Parcel) map[string]int {
	out := make(map[string]int)
	for _, p := range parcels {
		out[p.FarmerID]++
	}
	return out
}

func baseConfig(total, perRi int) model.ExtractionConfig {
	cfg := model.DefaultExtractionConfig()
	cfg.TotalTarget = total
	cfg.PerRiTarget = perRi
	cfg.Seed = seedPtr(42)
	return cfg
}

func threeRegions() []model.Parcel {
	var parcels []model.Parcel
	for _, ri := range []string{"가리", "나리", "다리"} {
		for i := 0; i < 20; i++ {
			parcels = append(parcels, parcel(ri, fmt.Sprintf("%s-F%02d", ri, i/2), fmt.Sprintf("%d", i)))
		}
	}
	return parcels
}

func TestExtract_ThreeRegionsScenario(t *testing.T) {
	cfg := baseConfig(15, 5)
	cfg.MaxPerFarmer = 2

	res := Extract(cfg, threeRegions(), Options{})
	require.Len(t, res.SelectedParcels, 15)
	assert.Equal(t, uint32(42), res.Seed)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 15, res.Target)
	assert.Equal(t, 0, res.Shortfall)
	assert.True(t, res.Validation.Valid)
	assert.Empty(t, res.Validation.Errors)
	assert.Empty(t, res.Validation.Warnings)

	for ri, n := range countByRi(res.SelectedParcels) {
		assert.Equal(t, 5, n, ri)
	}
	for id, n := range countByFarmer(res.SelectedParcels) {
		assert.LessOrEqual(t, n, 2, id)
	}
	for _, p := range res.SelectedParcels {
		assert.True(t, p.IsSelected)
		assert.Equal(t, model.CategoryPublicPayment, p.Category)
	}

	require.Len(t, res.RiStats, 3)
	for _, st := range res.RiStats {
		assert.Equal(t, model.RiStat{Ri: st.Ri, Total: 20, Eligible: 20, Selected: 5, Target: 5}, st)
	}
	require.Len(t, res.FarmerStats, 30)
}

func TestExtract_Deterministic(t *testing.T) {
	cfg := baseConfig(15, 5)
	parcels := threeRegions()

	a := Extract(cfg, parcels, Options{})
	b := Extract(cfg, parcels, Options{})
	assert.Equal(t, model.Keys(a.SelectedParcels), model.Keys(b.SelectedParcels))
	assert.NotEqual(t, a.RunID, b.RunID)

	cfg.Seed = seedPtr(7)
	c := Extract(cfg, parcels, Options{})
	assert.NotEqual(t, model.Keys(a.SelectedParcels), model.Keys(c.SelectedParcels))
}

func TestExtract_DoesNotMutateInput(t *testing.T) {
	parcels := threeRegions()
	Extract(baseConfig(15, 5), parcels, Options{})
	for _, p := range parcels {
		assert.False(t, p.IsSelected)
		assert.Empty(t, p.Category)
	}
}

func TestExtract_FilterInvariants(t *testing.T) {
	good := []model.Parcel{
		parcel("가리", "F1", "1"),
		parcel("가리", "F2", "2"),
		parcel("가리", "F3", "3"),
		parcel("가리", "F4", "4"),
	}
	good[3].Area = nil

	sampled := parcel("가리", "F5", "5")
	sampled.IsEligible = false
	sampled.SampledYears = []int{2024}
	small := parcel("가리", "F6", "6")
	small.Area = areaPtr(50)
	excluded := parcel("나리", "F7", "7")

	cfg := baseConfig(5, 10)
	cfg.ExcludedRis = []string{"왕곡면 나리"}
	cfg.Underfill = model.UnderfillSkip

	input := append(append([]model.Parcel(nil), good...), sampled, small, excluded)
	res := Extract(cfg, input, Options{})

	assert.ElementsMatch(t, model.Keys(good), model.Keys(res.SelectedParcels))
	assert.Equal(t, 1, res.Shortfall)
	assert.True(t, res.Validation.Valid)
	assert.True(t, res.Validation.HasCode(model.CodeTotalMismatch))
	assert.False(t, res.Validation.HasCode(model.CodeRiUnderfilled))

	require.Len(t, res.RiStats, 2)
	assert.Equal(t, model.RiStat{Ri: riKey("가리"), Total: 6, Eligible: 4, Selected: 4, Target: 10}, res.RiStats[0])
	assert.Equal(t, model.RiStat{Ri: riKey("나리"), Total: 1}, res.RiStats[1])
}

func TestExtract_FarmerCapIsGlobal(t *testing.T) {
	var parcels []model.Parcel
	for _, ri := range []string{"가리", "나리"} {
		for i := 0; i < 3; i++ {
			parcels = append(parcels,
				parcel(ri, "F1", fmt.Sprintf("%s-%d", ri, i)),
				parcel(ri, "F2", fmt.Sprintf("%s-%d", ri, i)),
			)
		}
	}
	cfg := baseConfig(6, 3)
	cfg.MaxPerFarmer = 2

	res := Extract(cfg, parcels, Options{})
	require.Len(t, res.SelectedParcels, 4)
	assert.Equal(t, map[string]int{"F1": 2, "F2": 2}, countByFarmer(res.SelectedParcels))
	assert.False(t, res.Validation.HasCode(model.CodeFarmerCapExceeded))
}

func TestExtract_Supplement(t *testing.T) {
	parcels := append(region("가리", 10), region("나리", 2)...)

	res := Extract(baseConfig(10, 5), parcels, Options{})
	require.Len(t, res.SelectedParcels, 10)
	assert.Equal(t, map[string]int{"가리": 8, "나리": 2}, countByRi(res.SelectedParcels))
	assert.Empty(t, res.Validation.Warnings)

	cfg := baseConfig(10, 5)
	cfg.Underfill = model.UnderfillSkip
	res = Extract(cfg, parcels, Options{})
	require.Len(t, res.SelectedParcels, 7)
	assert.Equal(t, 3, res.Shortfall)
	assert.True(t, res.Validation.Valid)
	assert.True(t, res.Validation.HasCode(model.CodeTotalMismatch))
}

func TestExtract_SupplementOrder(t *testing.T) {
	// 가리 cannot meet its quota; 나리 and 다리 have 3 and 7 parcels left
	// after the per-region pass.
	build := func() []model.Parcel {
		var parcels []model.Parcel
		for _, r := range []struct {
			ri string
			n  int
			km float64
		}{{"가리", 2, 0}, {"나리", 8, 2}, {"다리", 12, 4}} {
			for _, p := range region(r.ri, r.n) {
				p.Coords = latKm(r.km)
				parcels = append(parcels, p)
			}
		}
		return parcels
	}

	tests := []struct {
		name    string
		spatial bool
		ref     *model.Coords
		want    map[string]int
	}{
		{
			name: "largest remaining pool first",
			want: map[string]int{"가리": 2, "나리": 5, "다리": 7},
		},
		{
			name:    "nearest to reference first",
			spatial: true,
			ref:     latKm(2),
			want:    map[string]int{"가리": 2, "나리": 7, "다리": 5},
		},
		{
			name:    "reference without spatial filter",
			spatial: false,
			ref:     latKm(0),
			want:    map[string]int{"가리": 2, "나리": 7, "다리": 5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig(14, 5)
			cfg.Spatial.EnableSpatialFilter = tt.spatial
			cfg.Spatial.MaxRiDistanceKm = 10

			res := Extract(cfg, build(), Options{ReferenceCentroid: tt.ref})
			require.Len(t, res.SelectedParcels, 14)
			assert.Equal(t, tt.want, countByRi(res.SelectedParcels))
			assert.Empty(t, res.ExcludedRis)
		})
	}
}

func TestSupplementOrder(t *testing.T) {
	groups := map[string][]model.Parcel{
		"a": region("a", 1),
		"b": region("b", 3),
		"c": region("c", 2),
		"d": region("d", 3),
	}
	for i := range groups["a"] {
		groups["a"][i].Coords = latKm(9)
	}
	for i := range groups["c"] {
		groups["c"][i].Coords = latKm(1)
	}
	groups["b"][0].Coords = latKm(5)
	keys := []string{"a", "b", "c", "d"}

	assert.Equal(t, []string{"b", "d", "c", "a"}, supplementOrder(groups, keys, nil))
	assert.Equal(t, []string{"c", "b", "a", "d"}, supplementOrder(groups, keys, latKm(0)))
	assert.Equal(t, []string{"a", "b", "c", "d"}, keys)
}

func TestExtract_CohesionRejectsDistantSameRegion(t *testing.T) {
	parcels := region("가리", 5)
	for i := range parcels[:4] {
		parcels[i].Coords = latKm(float64(i) * 0.1)
	}
	parcels[4].Coords = latKm(5)

	res := Extract(spatialConfig(5, 5), parcels, Options{})
	require.Len(t, res.SelectedParcels, 4)
	assert.NotContains(t, model.Keys(res.SelectedParcels), parcels[4].Key())
	assert.Equal(t, 1, res.Shortfall)
	assert.False(t, res.Validation.HasCode(model.CodeDistantPairs))
}

func TestExtract_SupplementKeepsCohesion(t *testing.T) {
	parcels := region("가리", 4)
	for i := range parcels[:3] {
		parcels[i].Coords = latKm(float64(i) * 0.1)
	}
	parcels[3].Coords = latKm(5)

	cfg := baseConfig(4, 2)
	cfg.Spatial.EnableSpatialFilter = true

	res := Extract(cfg, parcels, Options{})
	require.Len(t, res.SelectedParcels, 3)
	assert.NotContains(t, model.Keys(res.SelectedParcels), parcels[3].Key())
	assert.Equal(t, 1, res.Shortfall)

	// Without the spatial filter the distant parcel fills the gap.
	res = Extract(baseConfig(4, 2), parcels, Options{})
	require.Len(t, res.SelectedParcels, 4)
}

func TestExtract_CapsOvershootEvenly(t *testing.T) {
	var parcels []model.Parcel
	for _, ri := range []string{"가리", "나리", "다리", "라리"} {
		parcels = append(parcels, region(ri, 5)...)
	}

	res := Extract(baseConfig(12, 5), parcels, Options{})
	require.Len(t, res.SelectedParcels, 12)
	assert.Equal(t, map[string]int{"가리": 3, "나리": 3, "다리": 3, "라리": 3}, countByRi(res.SelectedParcels))
	assert.True(t, res.Validation.Valid)
	assert.False(t, res.Validation.HasCode(model.CodeRiUnderfilled))
	assert.Empty(t, res.Validation.Warnings)
	for _, st := range res.RiStats {
		assert.Equal(t, 5, st.Target)
		assert.Equal(t, 3, st.Selected)
	}
}

func TestExtract_PriorityParcelsFirst(t *testing.T) {
	a := region("가리", 6)
	b := region("나리", 6)
	priority := NewPrioritySet([]model.Parcel{a[4], a[5]})

	res := Extract(baseConfig(2, 3), append(a, b...), Options{Priority: priority})
	assert.ElementsMatch(t, []string{a[4].Key(), a[5].Key()}, model.Keys(res.SelectedParcels))
}

func TestPrioritySet_MatchesByPNU(t *testing.T) {
	p := parcel("가리", "F1", "1")
	p.PNU = "4617036021100010000"
	s := NewPrioritySet([]model.Parcel{p})

	other := parcel("가리", "다른 소유자", "1-1")
	other.PNU = p.PNU
	assert.True(t, s.Contains(other))
	assert.False(t, s.Contains(parcel("가리", "F2", "2")))
	assert.Equal(t, 1, s.Len())
	assert.False(t, PrioritySet{}.Contains(p))
}

func TestExtract_MethodArea(t *testing.T) {
	parcels := region("가리", 7)
	for i := range parcels[:6] {
		parcels[i].Area = areaPtr(float64(100 * (i + 1)))
	}
	parcels[6].Area = nil

	cfg := baseConfig(3, 3)
	cfg.Method = model.MethodArea
	res := Extract(cfg, parcels, Options{})
	assert.Equal(t, []string{parcels[5].Key(), parcels[4].Key(), parcels[3].Key()}, model.Keys(res.SelectedParcels))
}

func TestExtract_MethodFarmer(t *testing.T) {
	parcels := []model.Parcel{
		parcel("가리", "F3", "1"),
		parcel("가리", "F1", "9"),
		parcel("가리", "F2", "1"),
		parcel("가리", "F1", "2"),
	}
	cfg := baseConfig(2, 2)
	cfg.Method = model.MethodFarmer
	cfg.MaxPerFarmer = 1
	res := Extract(cfg, parcels, Options{})
	assert.Equal(t, []string{"F1|2", "F2|1"}, model.Keys(res.SelectedParcels))
}

func TestExtract_ZeroTarget(t *testing.T) {
	res := Extract(baseConfig(0, 5), threeRegions(), Options{})
	assert.Empty(t, res.SelectedParcels)
	assert.False(t, res.Validation.Valid)
	assert.True(t, res.Validation.HasCode(model.CodeTotalMismatch))
}

func TestExtract_NoEligibleParcels(t *testing.T) {
	parcels := threeRegions()
	for i := range parcels {
		parcels[i].IsEligible = false
	}
	res := Extract(baseConfig(15, 5), parcels, Options{})
	assert.NotNil(t, res.SelectedParcels)
	assert.Empty(t, res.SelectedParcels)
	assert.Equal(t, 15, res.Shortfall)
	assert.False(t, res.Validation.Valid)
	assert.True(t, res.Validation.HasCode(model.CodeTotalMismatch))
}

func spatialConfig(total, perRi int) model.ExtractionConfig {
	cfg := baseConfig(total, perRi)
	cfg.Underfill = model.UnderfillSkip
	cfg.Spatial.EnableSpatialFilter = true
	return cfg
}

func TestExtract_OutliersAgainstReference(t *testing.T) {
	var parcels []model.Parcel
	for _, r := range []struct {
		ri string
		km float64
	}{{"가리", 1}, {"나리", 2}, {"다리", 3}, {"라리", 50}} {
		for _, p := range region(r.ri, 3) {
			p.Coords = latKm(r.km)
			parcels = append(parcels, p)
		}
	}

	res := Extract(spatialConfig(6, 3), parcels, Options{ReferenceCentroid: latKm(0)})
	assert.Equal(t, []string{riKey("다리"), riKey("라리")}, res.ExcludedRis)
	assert.Equal(t, map[string]int{"가리": 3, "나리": 3}, countByRi(res.SelectedParcels))

	for _, st := range res.RiStats {
		if st.Ri == riKey("라리") {
			assert.Equal(t, 0, st.Target)
		}
	}
}

func TestExtract_OutliersAutoThreshold(t *testing.T) {
	var parcels []model.Parcel
	for i, ri := range []string{"가리", "나리", "다리", "라리", "마리", "바리"} {
		km := 0.0
		if i == 5 {
			km = 50
		}
		for _, p := range region(ri, 2) {
			p.Coords = latKm(km)
			parcels = append(parcels, p)
		}
	}

	res := Extract(spatialConfig(10, 2), parcels, Options{})
	assert.Equal(t, []string{riKey("바리")}, res.ExcludedRis)
	assert.Len(t, res.SelectedParcels, 10)
	assert.Zero(t, countByRi(res.SelectedParcels)["바리"])
}

func TestExtract_DensityPrefersTightCluster(t *testing.T) {
	parcels := region("가리", 10)
	for i := range parcels {
		if i < 6 {
			parcels[i].Coords = latKm(float64(i) * 0.02)
		} else {
			parcels[i].Coords = latKm(float64(i-5) * 5)
		}
	}

	cfg := spatialConfig(5, 5)
	cfg.Spatial.DensityWeight = 1
	res := Extract(cfg, parcels, Options{})
	require.Len(t, res.SelectedParcels, 5)
	for _, p := range res.SelectedParcels {
		assert.Less(t, p.Coords.Lat, 35+kmLat, p.Key())
	}
}

func TestExtract_CoordlessParcelsFillLast(t *testing.T) {
	parcels := region("가리", 5)
	parcels[0].Coords = latKm(0)
	parcels[1].Coords = latKm(5)

	res := Extract(spatialConfig(4, 4), parcels, Options{})
	require.Len(t, res.SelectedParcels, 4)

	located := 0
	for _, p := range res.SelectedParcels {
		if p.HasCoords() {
			located++
		}
	}
	assert.Equal(t, 1, located)
}

func TestExtract_AnchorsRelaxCohesion(t *testing.T) {
	parcels := region("가리", 2)
	parcels[0].Coords = latKm(0)
	parcels[1].Coords = latKm(5)

	res := Extract(spatialConfig(2, 2), parcels, Options{AnchorCoords: []model.Coords{*latKm(5)}})
	require.Len(t, res.SelectedParcels, 2)
	assert.Equal(t, parcels[1].Key(), res.SelectedParcels[0].Key())
	assert.True(t, res.Validation.HasCode(model.CodeDistantPairs))
}

func TestExtract_CategoryRebalance(t *testing.T) {
	parcels := region("가리", 20)
	for i := range parcels {
		switch {
		case i < 8:
			parcels[i].LandCategory = "답"
		case i < 16:
			parcels[i].LandCategory = "전"
		default:
			parcels[i].LandCategory = "임야"
		}
	}

	cfg := baseConfig(10, 10)
	cfg.Seed = seedPtr(7)
	cfg.RebalanceCategories = true
	cfg.CategoryRatios = []model.CategoryRatio{{Category: "답", Ratio: 50}, {Category: "전", Ratio: 50}}

	res := Extract(cfg, parcels, Options{})
	require.Len(t, res.SelectedParcels, 10)
	counts := make(map[string]int)
	for _, p := range res.SelectedParcels {
		counts[p.LandCategory]++
	}
	assert.Equal(t, map[string]int{"답": 5, "전": 5}, counts)
	assert.False(t, res.Validation.HasCode(model.CodeCategoryRatioDrift))
	assert.True(t, res.Validation.Valid)
}

func TestExtract_CategoryRebalanceKeepsPriority(t *testing.T) {
	parcels := region("가리", 12)
	for i := range parcels {
		switch {
		case i < 6:
			parcels[i].LandCategory = "답"
		case i < 10:
			parcels[i].LandCategory = "전"
		default:
			parcels[i].LandCategory = "임야"
		}
	}
	priority := NewPrioritySet(parcels[10:])

	cfg := baseConfig(6, 6)
	cfg.RebalanceCategories = true
	cfg.CategoryRatios = []model.CategoryRatio{{Category: "답", Ratio: 50}, {Category: "전", Ratio: 50}}

	res := Extract(cfg, parcels, Options{Priority: priority})
	keys := model.Keys(res.SelectedParcels)
	assert.Contains(t, keys, parcels[10].Key())
	assert.Contains(t, keys, parcels[11].Key())

	counts := make(map[string]int)
	for _, p := range res.SelectedParcels {
		counts[p.LandCategory]++
	}
	assert.Equal(t, map[string]int{"답": 3, "전": 3, "임야": 2}, counts)
}

func TestCategoryTargets(t *testing.T) {
	r := func(ratios ...float64) []model.CategoryRatio {
		out := make([]model.CategoryRatio, len(ratios))
		for i, v := range ratios {
			out[i] = model.CategoryRatio{Category: fmt.Sprintf("c%d", i), Ratio: v}
		}
		return out
	}

	tests := []struct {
		name   string
		total  int
		ratios []model.CategoryRatio
		want   []int
	}{
		{"percent split", 100, r(33, 67), []int{33, 67}},
		{"last absorbs remainder", 10, r(1, 1, 1), []int{3, 3, 4}},
		{"weights not percent", 7, r(2, 1), []int{4, 3}},
		{"zero weight", 7, r(0, 1), []int{0, 7}},
		{"single", 10, r(50), []int{10}},
		{"zero total", 0, r(33, 67), []int{0, 0}},
		{"no ratios", 10, nil, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CategoryTargets(tt.total, tt.ratios)
			assert.Equal(t, tt.want, got)
		})
	}
}
