package spatial

import (
	"math"
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversine(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
	}{
		{"same point", 1.35, 103.8, 1.35, 103.8, 0},
		{"one degree of longitude on the equator", 0, 0, 0, 1, 2 * math.Pi * EarthRadiusMeters / 360},
		{"one degree of latitude", 0, 0, 1, 0, 2 * math.Pi * EarthRadiusMeters / 360},
		{"antipodes", 0, 0, 0, 180, math.Pi * EarthRadiusMeters},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			assert.InDelta(t, tt.want, got, 1e-6)
		})
	}
}

func TestNearestFourStations(t *testing.T) {
	// [lon, lat]
	stations := []orb.Point{
		{103.8514, 1.2840}, // Raffles Place
		{103.8318, 1.3043}, // Orchard
		{103.8482, 1.3508}, // Bishan
		{103.7422, 1.3331}, // Jurong East
	}

	idx, err := NewIndex(stations)
	require.NoError(t, err)

	got, meters := idx.Nearest(1.3000, 103.8400)
	assert.Equal(t, 1, got, "expected Orchard to be nearest")
	assert.InDelta(t, 1029.35, meters, 1.0)

	got, meters = idx.Nearest(1.3331, 103.7422)
	assert.Equal(t, 3, got)
	assert.InDelta(t, 0, meters, 1.0)
}

func TestNearestSinglePoint(t *testing.T) {
	idx, err := NewIndex([]orb.Point{{103.8198, 1.3521}})
	require.NoError(t, err)

	for _, q := range []orb.Point{{103.8198, 1.3521}, {0, 0}, {-70, 45}} {
		got, meters := idx.Nearest(q.Lat(), q.Lon())
		assert.Equal(t, 0, got)
		assert.InDelta(t, Haversine(q.Lat(), q.Lon(), 1.3521, 103.8198), meters, 1e-6)
	}
}

func TestNewIndexEmpty(t *testing.T) {
	_, err := NewIndex(nil)
	assert.ErrorIs(t, err, ErrEmptyIndex)
}

func TestNearestTiesPickFirstPoint(t *testing.T) {
	points := []orb.Point{
		{103.80, 1.30},
		{103.90, 1.30},
		{103.80, 1.30}, // duplicate of 0
	}
	idx, err := NewIndexSize(points, 1)
	require.NoError(t, err)

	got, _ := idx.Nearest(1.30, 103.80)
	assert.Equal(t, 0, got)
}

func TestNearestNonFiniteQuery(t *testing.T) {
	idx, err := NewIndex([]orb.Point{{103.80, 1.30}, {103.90, 1.35}})
	require.NoError(t, err)

	got, meters := idx.Nearest(math.Inf(1), 103.80)
	assert.Equal(t, -1, got)
	assert.True(t, math.IsInf(meters, 1))

	got, _ = idx.Nearest(math.NaN(), math.NaN())
	assert.Equal(t, -1, got)
}

func generateRandomPoints(r *rand.Rand, n int, minLng, maxLng, minLat, maxLat float64) []orb.Point {
	points := make([]orb.Point, n)
	for i := range points {
		points[i] = orb.Point{
			minLng + r.Float64()*(maxLng-minLng),
			minLat + r.Float64()*(maxLat-minLat),
		}
	}
	return points
}

func bruteForceNearest(points []orb.Point, lat, lon float64) (int, float64) {
	best, bestMeters := -1, math.Inf(1)
	for i, p := range points {
		d := Haversine(lat, lon, p.Lat(), p.Lon())
		if d < bestMeters {
			best, bestMeters = i, d
		}
	}
	return best, bestMeters
}

func TestNearestMatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	configs := []struct {
		name     string
		n        int
		nodeSize int
		box      [4]float64
	}{
		{"singapore small leaves", 200, 1, [4]float64{103.6, 104.0, 1.2, 1.47}},
		{"singapore default leaves", 500, DefaultNodeSize, [4]float64{103.6, 104.0, 1.2, 1.47}},
		{"global", 1000, 8, [4]float64{-180, 180, -85, 85}},
		{"across antimeridian", 300, 4, [4]float64{170, 190, -10, 10}},
	}

	for _, cfg := range configs {
		t.Run(cfg.name, func(t *testing.T) {
			points := generateRandomPoints(r, cfg.n, cfg.box[0], cfg.box[1], cfg.box[2], cfg.box[3])
			idx, err := NewIndexSize(points, cfg.nodeSize)
			require.NoError(t, err)

			targets := generateRandomPoints(r, 300, cfg.box[0], cfg.box[1], cfg.box[2], cfg.box[3])
			matches := idx.NearestBatch(targets)
			require.Len(t, matches, len(targets))

			for i, q := range targets {
				_, wantMeters := bruteForceNearest(points, q.Lat(), q.Lon())
				if math.Abs(matches[i].Meters-wantMeters) > 1e-6 {
					t.Errorf("Expected distance %f for target %d, got %f", wantMeters, i, matches[i].Meters)
				}
			}
		})
	}
}

func TestIndexBounds(t *testing.T) {
	points := []orb.Point{{103.7, 1.3}, {103.9, 1.25}, {103.8, 1.45}}
	idx, err := NewIndex(points)
	require.NoError(t, err)

	b := idx.Bounds()
	assert.Equal(t, orb.Point{103.7, 1.25}, b.Min)
	assert.Equal(t, orb.Point{103.9, 1.45}, b.Max)
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, points[2], idx.Point(2))
}

func BenchmarkNearestBatch(b *testing.B) {
	r := rand.New(rand.NewSource(42))
	points := generateRandomPoints(r, 200, 103.6, 104.0, 1.2, 1.47)
	targets := generateRandomPoints(r, 100000, 103.6, 104.0, 1.2, 1.47)

	idx, err := NewIndex(points)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		idx.NearestBatch(targets)
	}
}
