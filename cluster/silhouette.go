package cluster

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Silhouette returns the mean silhouette coefficient of a labelling. ok is
// false unless the labelling has between 2 and n-1 distinct clusters, the
// range where the score is defined. Points alone in their cluster score 0.
func Silhouette(data [][]float64, labels []int) (float64, bool) {
	n := len(data)
	if n == 0 || len(labels) != n {
		return 0, false
	}

	sizes := make(map[int]int)
	for _, l := range labels {
		sizes[l]++
	}
	k := len(sizes)
	if k < 2 || k > n-1 {
		return 0, false
	}

	var total float64
	sumByCluster := make(map[int]float64, k)
	for i := 0; i < n; i++ {
		if sizes[labels[i]] == 1 {
			continue
		}

		for c := range sumByCluster {
			delete(sumByCluster, c)
		}
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			sumByCluster[labels[j]] += floats.Distance(data[i], data[j], 2)
		}

		a := sumByCluster[labels[i]] / float64(sizes[labels[i]]-1)
		b := math.Inf(1)
		for c, sum := range sumByCluster {
			if c == labels[i] {
				continue
			}
			if mean := sum / float64(sizes[c]); mean < b {
				b = mean
			}
		}

		if denom := math.Max(a, b); denom > 0 {
			total += (b - a) / denom
		}
	}

	return total / float64(n), true
}
