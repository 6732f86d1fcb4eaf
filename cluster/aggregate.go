package cluster

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// CountRule adds a column counting members whose categorical Attribute
// equals Value.
type CountRule struct {
	Column    string `yaml:"column"`
	Attribute string `yaml:"attribute"`
	Value     string `yaml:"value"`
}

// Schema names the summary table columns for one entity.
type Schema struct {
	Entity      string      `yaml:"entity"`
	LatColumn   string      `yaml:"lat_column"`
	LonColumn   string      `yaml:"lon_column"`
	CountColumn string      `yaml:"count_column"`
	Binary      []string    `yaml:"binary"`
	Categorical []string    `yaml:"categorical"`
	CountWhere  []CountRule `yaml:"count_where"`
	// DistributionColumns emits <attr>_<value>_pct for every categorical
	// value seen in the run.
	DistributionColumns bool `yaml:"distribution_columns"`
}

func TransitSchema() Schema {
	return Schema{
		Entity:      "mrt",
		LatColumn:   "cluster_lat",
		LonColumn:   "cluster_long",
		CountColumn: "num_stations",
	}
}

func SchoolSchema() Schema {
	return Schema{
		Entity:      "school",
		LatColumn:   "cluster_center_lat",
		LonColumn:   "cluster_center_lng",
		CountColumn: "school_count",
		Binary:      []string{"sap_ind", "autonomous_ind", "gifted_ind", "ip_ind"},
		Categorical: []string{"type_code", "mainlevel_code", "nature_code", "session_code"},
		CountWhere: []CountRule{
			{Column: "primary_school_count", Attribute: "mainlevel_code", Value: "PRIMARY"},
		},
	}
}

// Summary is the aggregate view of one cluster's members.
type Summary struct {
	ClusterID     int                           `json:"clusterId"`
	CenterLat     float64                       `json:"centerLat"`
	CenterLon     float64                       `json:"centerLon"`
	MemberCount   int                           `json:"memberCount"`
	Sums          map[string]float64            `json:"sums"`
	Percentages   map[string]float64            `json:"percentages"`
	Counts        map[string]float64            `json:"counts"`
	Distributions map[string]map[string]float64 `json:"distributions"`
	Bounds        orb.Bound                     `json:"-"`
}

type Aggregator struct {
	Schema Schema
}

func NewAggregator(schema Schema) *Aggregator {
	return &Aggregator{Schema: schema}
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Summarize builds one Summary per cluster id present in labels, ordered by
// id. Attributes missing on a member count as 0.
func (a *Aggregator) Summarize(points []ReferencePoint, labels []int) ([]Summary, error) {
	if len(points) != len(labels) {
		return nil, fmt.Errorf("cluster: %d points but %d labels", len(points), len(labels))
	}

	type acc struct {
		sumLat, sumLon float64
		count          int
		sums           map[string]float64
		counts         map[string]float64
		values         map[string]map[string]int
		bounds         orb.Bound
	}

	groups := make(map[int]*acc)
	for i, p := range points {
		g, ok := groups[labels[i]]
		if !ok {
			g = &acc{
				sums:   make(map[string]float64),
				counts: make(map[string]float64),
				values: make(map[string]map[string]int),
				bounds: orb.Bound{Min: p.Point(), Max: p.Point()},
			}
			for _, attr := range a.Schema.Categorical {
				g.values[attr] = make(map[string]int)
			}
			for _, rule := range a.Schema.CountWhere {
				g.counts[rule.Column] = 0
			}
			groups[labels[i]] = g
		}

		g.sumLat += p.Lat
		g.sumLon += p.Lon
		g.count++
		g.bounds = g.bounds.Extend(p.Point())

		for _, attr := range a.Schema.Binary {
			g.sums[attr] += p.Flag(attr)
		}
		for _, attr := range a.Schema.Categorical {
			if v := p.Category(attr); v != "" {
				g.values[attr][v]++
			}
		}
		for _, rule := range a.Schema.CountWhere {
			if p.Category(rule.Attribute) == rule.Value {
				g.counts[rule.Column]++
			}
		}
	}

	ids := make([]int, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	summaries := make([]Summary, 0, len(ids))
	for _, id := range ids {
		g := groups[id]
		inv := 1 / float64(g.count)

		s := Summary{
			ClusterID:     id,
			CenterLat:     g.sumLat * inv,
			CenterLon:     g.sumLon * inv,
			MemberCount:   g.count,
			Sums:          g.sums,
			Percentages:   make(map[string]float64, len(g.sums)),
			Counts:        g.counts,
			Distributions: make(map[string]map[string]float64, len(g.values)),
			Bounds:        g.bounds,
		}
		for attr, sum := range g.sums {
			s.Percentages[attr] = Round1(sum * inv * 100)
		}
		for attr, freq := range g.values {
			dist := make(map[string]float64, len(freq))
			for v, c := range freq {
				dist[v] = float64(c) * inv * 100
			}
			s.Distributions[attr] = dist
		}
		summaries = append(summaries, s)
	}

	return summaries, nil
}

// SummaryRow is one flat row of the summary table.
type SummaryRow struct {
	ClusterID int
	Lat, Lon  float64
	Values    map[string]float64
}

// SummaryTable is the per-cluster attribute table persisted by a run and
// read back, unchanged, by every join.
type SummaryTable struct {
	Entity    string
	LatColumn string
	LonColumn string
	Columns   []string
	Rows      []SummaryRow
}

// Table flattens summaries into the column layout described by the schema.
func (a *Aggregator) Table(summaries []Summary) *SummaryTable {
	columns := []string{a.Schema.CountColumn}
	for _, attr := range a.Schema.Binary {
		columns = append(columns, attr, attr+"_pct")
	}
	for _, rule := range a.Schema.CountWhere {
		columns = append(columns, rule.Column)
	}

	var distColumns []string
	if a.Schema.DistributionColumns {
		seen := make(map[string]struct{})
		for _, s := range summaries {
			for attr, dist := range s.Distributions {
				for v := range dist {
					seen[attr+"_"+v+"_pct"] = struct{}{}
				}
			}
		}
		for c := range seen {
			distColumns = append(distColumns, c)
		}
		sort.Strings(distColumns)
		columns = append(columns, distColumns...)
	}

	table := &SummaryTable{
		Entity:    a.Schema.Entity,
		LatColumn: a.Schema.LatColumn,
		LonColumn: a.Schema.LonColumn,
		Columns:   columns,
		Rows:      make([]SummaryRow, len(summaries)),
	}

	for i, s := range summaries {
		values := make(map[string]float64, len(columns))
		values[a.Schema.CountColumn] = float64(s.MemberCount)
		for _, attr := range a.Schema.Binary {
			values[attr] = s.Sums[attr]
			values[attr+"_pct"] = s.Percentages[attr]
		}
		for _, rule := range a.Schema.CountWhere {
			values[rule.Column] = s.Counts[rule.Column]
		}
		if a.Schema.DistributionColumns {
			for _, c := range distColumns {
				values[c] = 0
			}
			for attr, dist := range s.Distributions {
				for v, pct := range dist {
					values[attr+"_"+v+"_pct"] = Round1(pct)
				}
			}
		}

		table.Rows[i] = SummaryRow{
			ClusterID: s.ClusterID,
			Lat:       s.CenterLat,
			Lon:       s.CenterLon,
			Values:    values,
		}
	}

	return table
}

// Points returns the centroids in row order as [lon, lat].
func (t *SummaryTable) Points() []orb.Point {
	points := make([]orb.Point, len(t.Rows))
	for i, r := range t.Rows {
		points[i] = orb.Point{r.Lon, r.Lat}
	}
	return points
}

// Row finds the row for a cluster id.
func (t *SummaryTable) Row(clusterID int) (SummaryRow, bool) {
	for _, r := range t.Rows {
		if r.ClusterID == clusterID {
			return r, true
		}
	}
	return SummaryRow{}, false
}

// MemberTotal sums the count column across clusters.
func (t *SummaryTable) MemberTotal(countColumn string) int {
	var total float64
	for _, r := range t.Rows {
		total += r.Values[countColumn]
	}
	return int(total)
}
