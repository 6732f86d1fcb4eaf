package cluster

import (
	"fmt"
	"math/rand"
	"runtime"
	"testing"
	"time"
)

// generateRandomPoints creates n schools within a geographic bounding box.
func generateRandomPoints(n int, minLng, maxLng, minLat, maxLat float64) []ReferencePoint {
	r := rand.New(rand.NewSource(42))
	levels := []string{"PRIMARY", "SECONDARY", "JUNIOR COLLEGE", "MIXED LEVELS"}
	natures := []string{"CO-ED SCHOOL", "BOYS' SCHOOL", "GIRLS' SCHOOL"}

	points := make([]ReferencePoint, n)
	for i := 0; i < n; i++ {
		points[i] = ReferencePoint{
			ID:  fmt.Sprintf("school-%d", i+1),
			Lon: minLng + r.Float64()*(maxLng-minLng),
			Lat: minLat + r.Float64()*(maxLat-minLat),
			Categories: map[string]string{
				"type_code":      "GOVERNMENT SCHOOL",
				"mainlevel_code": levels[r.Intn(len(levels))],
				"nature_code":    natures[r.Intn(len(natures))],
				"session_code":   "FULL DAY",
			},
			Flags: map[string]float64{
				"sap_ind": float64(r.Intn(2)),
				"ip_ind":  float64(r.Intn(2)),
			},
		}
	}
	return points
}

func benchmarkSelect(b *testing.B, numPoints int, cfg Config) {
	points := generateRandomPoints(numPoints, 103.6, 104.0, 1.23, 1.47)
	sel := NewSelector(cfg, nil)

	var memStatsBefore, memStatsAfter runtime.MemStats
	runtime.ReadMemStats(&memStatsBefore)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := sel.Select(points); err != nil {
			b.Fatal(err)
		}
	}
	b.StopTimer()

	runtime.ReadMemStats(&memStatsAfter)
	allocMB := float64(memStatsAfter.TotalAlloc-memStatsBefore.TotalAlloc) / 1024 / 1024
	b.ReportMetric(allocMB/float64(b.N), "MB/op")
}

func BenchmarkSelectTransit(b *testing.B) {
	benchmarkSelect(b, 200, TransitConfig())
}

func BenchmarkSelectSchool(b *testing.B) {
	benchmarkSelect(b, 350, SchoolConfig())
}

func BenchmarkSelectSweep(b *testing.B) {
	benchmarkSelect(b, 200, Config{Entity: "sweep", MaxK: 10, Restarts: 2})
}

// TestProfileSweep reports how long the silhouette sweep takes as the
// reference set grows.
func TestProfileSweep(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping profile test in short mode")
	}

	for _, n := range []int{50, 100, 200} {
		points := generateRandomPoints(n, 103.6, 104.0, 1.23, 1.47)
		sel := NewSelector(Config{Entity: "sweep", MaxK: 10, Restarts: 2}, nil)

		start := time.Now()
		got, err := sel.Select(points)
		if err != nil {
			t.Fatalf("Select failed for %d points: %v", n, err)
		}
		t.Logf("%d points: k=%d score=%.3f in %v", n, got.K, got.Score, time.Since(start))
	}
}
