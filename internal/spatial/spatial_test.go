package spatial

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parcel-sampler/internal/model"
)

// kmLat is one kilometer expressed in degrees of latitude.
const kmLat = 180 / (math.Pi * 6371)

func parcelAt(farmer, lot, ri string, lat, lng float64) model.Parcel {
	return model.Parcel{
		FarmerID:     farmer,
		ParcelID:     lot,
		Eubmyeondong: "왕곡면",
		Ri:           ri,
		Coords:       &model.Coords{Lat: lat, Lng: lng},
	}
}

func TestCalculateCentroid(t *testing.T) {
	parcels := []model.Parcel{
		parcelAt("F1", "1", "A", 35, 127),
		parcelAt("F1", "2", "A", 36, 128),
		{FarmerID: "F2", ParcelID: "3", Ri: "A"},
	}
	c := CalculateCentroid(parcels)
	require.NotNil(t, c)
	assert.InDelta(t, 35.5, c.Lat, 1e-12)
	assert.InDelta(t, 127.5, c.Lng, 1e-12)

	assert.Nil(t, CalculateCentroid([]model.Parcel{{FarmerID: "F"}}))
	assert.Nil(t, CalculateCentroid(nil))
}

func TestCalculateDensity(t *testing.T) {
	self := parcelAt("F1", "1", "A", 35, 127)
	pool := []model.Parcel{
		self,
		parcelAt("F2", "2", "A", 35+0.5*kmLat, 127),
		parcelAt("F3", "3", "A", 35+5*kmLat, 127),
		{FarmerID: "F4", ParcelID: "4", Ri: "A"},
	}

	assert.InDelta(t, 0.5, CalculateDensity(self, pool, 1.0), 1e-12)
	assert.InDelta(t, 1.0, CalculateDensity(self, pool, 10.0), 1e-12)
	assert.Equal(t, 0.0, CalculateDensity(model.Parcel{FarmerID: "X"}, pool, 1.0))
	assert.Equal(t, 0.0, CalculateDensity(self, []model.Parcel{self}, 1.0))
}

func TestClusterParcelsInRi(t *testing.T) {
	parcels := []model.Parcel{
		parcelAt("F1", "1", "A", 35, 127),
		parcelAt("F2", "2", "A", 35+0.5*kmLat, 127),
		parcelAt("F3", "3", "A", 35+0.9*kmLat, 127), // chained through F2
		parcelAt("F4", "4", "A", 35+5*kmLat, 127),
		parcelAt("F5", "5", "B", 35+0.1*kmLat, 127), // geometrically close, other region
		{FarmerID: "F6", ParcelID: "6", Ri: "A"},
	}

	clusters := ClusterParcelsInRi(parcels, 0.6)
	require.Len(t, clusters, 3)

	assert.Equal(t, "왕곡면 A", clusters[0].Ri)
	assert.Equal(t, []string{"F1|1", "F2|2", "F3|3"}, model.Keys(clusters[0].Parcels))
	assert.Equal(t, []string{"F4|4"}, model.Keys(clusters[1].Parcels))
	assert.Equal(t, "왕곡면 B", clusters[2].Ri)
	assert.Equal(t, []string{"F5|5"}, model.Keys(clusters[2].Parcels))

	require.NotNil(t, clusters[0].Centroid())
}

func TestOutlierThreshold_BoundaryScenario(t *testing.T) {
	distances := []float64{1, 1, 1, 1, 50}
	threshold, ok := OutlierThreshold(distances)
	require.True(t, ok)
	assert.InDelta(t, 50.0, threshold, 1e-9)

	flagged := FlagAtOrBeyond([]string{"a", "b", "c", "d", "e"}, distances, threshold)
	assert.Equal(t, []string{"e"}, flagged)
}

func TestOutlierThreshold_Degenerate(t *testing.T) {
	_, ok := OutlierThreshold([]float64{3})
	assert.False(t, ok)
	_, ok = OutlierThreshold([]float64{2, 2, 2})
	assert.False(t, ok)
	_, ok = OutlierThreshold(nil)
	assert.False(t, ok)
}

func TestFindDistantRis_Auto(t *testing.T) {
	var parcels []model.Parcel
	near := []struct {
		ri       string
		lat, lng float64
	}{
		{"A", 35.00, 127.00},
		{"B", 35.01, 127.00},
		{"C", 35.00, 127.01},
		{"D", 35.01, 127.01},
		{"E", 35.005, 127.005},
	}
	for i, n := range near {
		parcels = append(parcels, parcelAt("F", string(rune('0'+i)), n.ri, n.lat, n.lng))
	}
	parcels = append(parcels, parcelAt("G", "far", "Z", 36.0, 127.0))

	res := FindDistantRis(parcels, nil)
	assert.Equal(t, []string{"왕곡면 Z"}, res.Ris)
	assert.Greater(t, res.ThresholdKm, 0.0)
	assert.Len(t, res.DistancesKm, 6)
	assert.True(t, res.Contains("왕곡면 Z"))
	assert.False(t, res.Contains("왕곡면 A"))
}

func TestFindDistantRis_ExplicitThreshold(t *testing.T) {
	parcels := []model.Parcel{
		parcelAt("F1", "1", "A", 35.0, 127.0),
		parcelAt("F2", "2", "B", 35.2, 127.0),
	}
	threshold := 1000.0
	res := FindDistantRis(parcels, &threshold)
	assert.Empty(t, res.Ris)
	assert.Equal(t, 1000.0, res.ThresholdKm)

	threshold = 1.0
	res = FindDistantRis(parcels, &threshold)
	assert.Equal(t, []string{"왕곡면 A", "왕곡면 B"}, res.Ris)
}

func TestFindDistantRis_NoCoords(t *testing.T) {
	res := FindDistantRis([]model.Parcel{{FarmerID: "F", Ri: "A"}}, nil)
	assert.Empty(t, res.Ris)
}

func TestFindDistantPairs(t *testing.T) {
	parcels := []model.Parcel{
		parcelAt("F1", "1", "A", 35, 127),
		parcelAt("F2", "2", "A", 35+0.5*kmLat, 127),
		parcelAt("F3", "3", "B", 35+3*kmLat, 127),
		{FarmerID: "F4", ParcelID: "4", Ri: "A"},
	}
	pairs := FindDistantPairs(parcels, 1.0)
	require.Len(t, pairs, 2)
	assert.Equal(t, "F1|1", pairs[0].A)
	assert.Equal(t, "F3|3", pairs[0].B)
	assert.Empty(t, pairs[0].Ri)
	assert.InDelta(t, 3.0, pairs[0].DistanceKm, 0.01)
	assert.Equal(t, "F2|2", pairs[1].A)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 0.0, Median(nil))
	assert.Equal(t, 2.0, Median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))

	in := []float64{3, 1, 2}
	Median(in)
	assert.Equal(t, []float64{3, 1, 2}, in)
}

func TestNearestDistance(t *testing.T) {
	_, ok := NearestDistance(model.Coords{}, nil)
	assert.False(t, ok)

	d, ok := NearestDistance(model.Coords{Lat: 35, Lng: 127}, []model.Coords{
		{Lat: 36, Lng: 127},
		{Lat: 35 + kmLat, Lng: 127},
	})
	assert.True(t, ok)
	assert.InDelta(t, 1.0, d, 1e-6)
}
