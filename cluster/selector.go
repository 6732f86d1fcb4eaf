package cluster

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrDegenerate reports that no k in the sweep produced a valid
	// silhouette score. The selector falls back instead of failing.
	ErrDegenerate = errors.New("cluster: fewer than 2 distinct reference points")
	ErrNoPoints   = errors.New("cluster: no reference points")
)

// Assignment is the outcome of one selection run. Labels are canonical
// cluster ids, one per input point.
type Assignment struct {
	Labels     []int
	K          int
	Score      float64
	Scores     map[int]float64
	Degenerate bool
}

type Selector struct {
	cfg    Config
	logger *slog.Logger
}

func NewSelector(cfg Config, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{
		cfg:    cfg.WithDefaults(),
		logger: logger.With("entity", cfg.Entity),
	}
}

func (s *Selector) Config() Config {
	return s.cfg
}

// Select partitions points into clusters. With a fixed K the count is
// capped at the number of distinct points; otherwise k is swept and the
// best silhouette kept. When no k scores, k falls back to min(2, n).
func (s *Selector) Select(points []ReferencePoint) (Assignment, error) {
	n := len(points)
	if n == 0 {
		return Assignment{}, ErrNoPoints
	}

	enc := Encode(points, s.cfg)
	distinct := countDistinct(enc.Rows)
	out := Assignment{Scores: make(map[int]float64)}

	var labels []int
	switch {
	case s.cfg.K > 0:
		k := s.cfg.K
		if k > distinct {
			s.logger.Info("capping cluster count at distinct points", "k", k, "distinct", distinct)
			k = distinct
		}
		res := KMeans(enc.Rows, k, s.cfg)
		labels = res.Labels
		if score, ok := Silhouette(enc.Rows, labels); ok {
			out.Score = score
			out.Scores[k] = score
		}

	default:
		bestK := 0
		var best KMeansResult
		maxK := s.cfg.MaxK
		if maxK > distinct-1 {
			maxK = distinct - 1
		}
		for k := s.cfg.MinK; k <= maxK; k++ {
			res := KMeans(enc.Rows, k, s.cfg)
			score, ok := Silhouette(enc.Rows, res.Labels)
			if !ok {
				continue
			}
			out.Scores[k] = score
			s.logger.Debug("silhouette", "k", k, "score", score)
			if bestK == 0 || score > out.Score {
				bestK, best, out.Score = k, res, score
			}
		}

		if bestK == 0 {
			k := 2
			if n < k {
				k = n
			}
			s.logger.Warn("cluster selection fell back to minimal k",
				"error", ErrDegenerate, "points", n, "distinct", distinct, "k", k)
			out.Degenerate = true
			best = KMeans(enc.Rows, k, s.cfg)
		}
		labels = best.Labels
	}

	out.Labels = Canonicalize(labels, points)
	out.K = countClusters(out.Labels)

	s.logger.Info("clusters selected", "points", n, "k", out.K, "score", out.Score)
	return out, nil
}

// Canonicalize renumbers cluster ids 0..k-1 by ascending centroid longitude,
// then latitude, so ids do not depend on input order or initialisation.
// Labels that select no point disappear.
func Canonicalize(labels []int, points []ReferencePoint) []int {
	type centre struct {
		label    int
		lat, lon float64
		count    int
	}

	byLabel := make(map[int]*centre)
	for i, l := range labels {
		c, ok := byLabel[l]
		if !ok {
			c = &centre{label: l}
			byLabel[l] = c
		}
		c.lat += points[i].Lat
		c.lon += points[i].Lon
		c.count++
	}

	centres := make([]*centre, 0, len(byLabel))
	for _, c := range byLabel {
		c.lat /= float64(c.count)
		c.lon /= float64(c.count)
		centres = append(centres, c)
	}
	sort.Slice(centres, func(i, j int) bool {
		a, b := centres[i], centres[j]
		if a.lon != b.lon {
			return a.lon < b.lon
		}
		if a.lat != b.lat {
			return a.lat < b.lat
		}
		return a.label < b.label
	})

	remap := make(map[int]int, len(centres))
	for id, c := range centres {
		remap[c.label] = id
	}

	out := make([]int, len(labels))
	for i, l := range labels {
		out[i] = remap[l]
	}
	return out
}

func countClusters(labels []int) int {
	seen := make(map[int]struct{})
	for _, l := range labels {
		seen[l] = struct{}{}
	}
	return len(seen)
}

func countDistinct(rows [][]float64) int {
	seen := make(map[string]struct{}, len(rows))
	var b strings.Builder
	for _, row := range rows {
		b.Reset()
		for _, v := range row {
			b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
			b.WriteByte(';')
		}
		seen[b.String()] = struct{}{}
	}
	return len(seen)
}

func (a Assignment) String() string {
	return fmt.Sprintf("k=%d score=%.4f degenerate=%v", a.K, a.Score, a.Degenerate)
}
