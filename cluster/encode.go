package cluster

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Encoding is the numeric feature matrix handed to k-means.
type Encoding struct {
	Columns []string
	Rows    [][]float64
}

// Encode builds the clustering matrix: latitude and longitude repeated
// GeoWeight times (standard-scaled when cfg.Scale is set), one-hot columns
// for every observed categorical value, then binary flags as 0/1.
func Encode(points []ReferencePoint, cfg Config) Encoding {
	cfg = cfg.WithDefaults()
	n := len(points)

	lats := make([]float64, n)
	lons := make([]float64, n)
	for i, p := range points {
		lats[i] = p.Lat
		lons[i] = p.Lon
	}
	if cfg.Scale {
		lats = standardize(lats)
		lons = standardize(lons)
	}

	var columns []string
	for i := 0; i < cfg.GeoWeight; i++ {
		columns = append(columns, fmt.Sprintf("latitude_%d", i))
	}
	for i := 0; i < cfg.GeoWeight; i++ {
		columns = append(columns, fmt.Sprintf("longitude_%d", i))
	}

	vocab := make([][]string, len(cfg.Categorical))
	for a, attr := range cfg.Categorical {
		vocab[a] = vocabulary(points, attr)
		for _, v := range vocab[a] {
			columns = append(columns, attr+"_"+v)
		}
	}
	columns = append(columns, cfg.Binary...)

	rows := make([][]float64, n)
	for i, p := range points {
		row := make([]float64, 0, len(columns))
		for w := 0; w < cfg.GeoWeight; w++ {
			row = append(row, lats[i])
		}
		for w := 0; w < cfg.GeoWeight; w++ {
			row = append(row, lons[i])
		}
		for a, attr := range cfg.Categorical {
			value := p.Category(attr)
			for _, v := range vocab[a] {
				if v == value {
					row = append(row, 1)
				} else {
					row = append(row, 0)
				}
			}
		}
		for _, attr := range cfg.Binary {
			if p.Flag(attr) != 0 {
				row = append(row, 1)
			} else {
				row = append(row, 0)
			}
		}
		rows[i] = row
	}

	return Encoding{Columns: columns, Rows: rows}
}

// standardize centres x and divides by the population standard deviation.
// A constant column maps to zeros.
func standardize(x []float64) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}

	mean := stat.Mean(x, nil)
	var std float64
	if len(x) > 1 {
		n := float64(len(x))
		std = math.Sqrt(stat.Variance(x, nil) * (n - 1) / n)
	}

	for i, v := range x {
		if std == 0 {
			out[i] = 0
			continue
		}
		out[i] = (v - mean) / std
	}
	return out
}

// vocabulary lists the non-empty values of attr in sorted order.
func vocabulary(points []ReferencePoint, attr string) []string {
	seen := make(map[string]struct{})
	for _, p := range points {
		if v := p.Category(attr); v != "" {
			seen[v] = struct{}{}
		}
	}

	values := make([]string, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}
