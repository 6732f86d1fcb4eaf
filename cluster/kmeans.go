package cluster

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type KMeansResult struct {
	Labels     []int
	Centroids  [][]float64
	Inertia    float64
	Iterations int
}

// KMeans partitions data into k groups. Initialisation is k-means++ drawn
// from a generator seeded with cfg.Seed; the best of cfg.Restarts runs by
// inertia is returned, so identical input gives identical labels.
func KMeans(data [][]float64, k int, cfg Config) KMeansResult {
	cfg = cfg.WithDefaults()
	n := len(data)
	if n == 0 || k <= 0 {
		return KMeansResult{}
	}
	if k > n {
		k = n
	}

	r := rand.New(rand.NewSource(cfg.Seed))
	tol := cfg.Tolerance * meanVariance(data)

	var best KMeansResult
	for run := 0; run < cfg.Restarts; run++ {
		centroids := initPlusPlus(data, k, r)
		res := lloyd(data, centroids, cfg.MaxIterations, tol)
		if run == 0 || res.Inertia < best.Inertia {
			best = res
		}
	}
	return best
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

func initPlusPlus(data [][]float64, k int, r *rand.Rand) [][]float64 {
	n := len(data)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, floats.ScaleTo(make([]float64, len(data[0])), 1, data[r.Intn(n)]))

	dist := make([]float64, n)
	for i := range dist {
		dist[i] = sqDist(data[i], centroids[0])
	}

	for len(centroids) < k {
		total := floats.Sum(dist)

		next := -1
		if total > 0 {
			target := r.Float64() * total
			var acc float64
			for i, d := range dist {
				acc += d
				if acc >= target && d > 0 {
					next = i
					break
				}
			}
		}
		if next < 0 {
			next = r.Intn(n)
		}

		c := floats.ScaleTo(make([]float64, len(data[next])), 1, data[next])
		centroids = append(centroids, c)
		for i := range dist {
			if d := sqDist(data[i], c); d < dist[i] {
				dist[i] = d
			}
		}
	}
	return centroids
}

// nearestCentroid returns the closest centroid; ties go to the lower index.
func nearestCentroid(row []float64, centroids [][]float64) (int, float64) {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := sqDist(row, centroid); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist
}

// meanVariance averages the per-column variance of data, so the
// convergence tolerance follows the scale of the features.
func meanVariance(data [][]float64) float64 {
	dim := len(data[0])
	col := make([]float64, len(data))
	var sum float64
	for d := 0; d < dim; d++ {
		for i, row := range data {
			col[i] = row[d]
		}
		_, v := stat.PopMeanVariance(col, nil)
		sum += v
	}
	return sum / float64(dim)
}

// lloyd iterates until the squared centre shift drops to tol.
func lloyd(data [][]float64, centroids [][]float64, maxIter int, tol float64) KMeansResult {
	k := len(centroids)
	dim := len(data[0])
	labels := make([]int, len(data))
	counts := make([]int, k)

	iter := 0
	for iter < maxIter {
		iter++
		for i, row := range data {
			labels[i], _ = nearestCentroid(row, centroids)
		}

		sums := make([][]float64, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
			counts[c] = 0
		}
		for i, row := range data {
			floats.Add(sums[labels[i]], row)
			counts[labels[i]]++
		}

		var shift float64
		for c := range centroids {
			if counts[c] == 0 {
				// Empty cluster keeps its previous centre.
				continue
			}
			floats.Scale(1/float64(counts[c]), sums[c])
			if d := sqDist(centroids[c], sums[c]); d > shift {
				shift = d
			}
			centroids[c] = sums[c]
		}

		if shift <= tol {
			break
		}
	}

	var inertia float64
	for i, row := range data {
		var d float64
		labels[i], d = nearestCentroid(row, centroids)
		inertia += d
	}

	return KMeansResult{
		Labels:     labels,
		Centroids:  centroids,
		Inertia:    inertia,
		Iterations: iter,
	}
}
