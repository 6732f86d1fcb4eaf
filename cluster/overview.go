package cluster

// Overview describes a whole summary table: how many members and clusters
// it holds and the spread of every attribute column across clusters.
type Overview struct {
	Entity          string                 `json:"entity"`
	TotalPoints     int                    `json:"totalPoints"`
	NumClusters     int                    `json:"numClusters"`
	NumSinglePoints int                    `json:"numSinglePoints"`
	MetricsSummary  map[string]MetricStats `json:"metricsSummary"`
}

type MetricStats struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Sum     float64 `json:"sum"`
	Average float64 `json:"average"`
}

// Describe computes the Overview of t. countColumn holds the member count
// of each row.
func Describe(t *SummaryTable, countColumn string) Overview {
	ov := Overview{
		Entity:         t.Entity,
		MetricsSummary: make(map[string]MetricStats, len(t.Columns)),
	}
	if len(t.Rows) == 0 {
		return ov
	}

	ov.NumClusters = len(t.Rows)
	for _, r := range t.Rows {
		count := int(r.Values[countColumn])
		ov.TotalPoints += count
		if count == 1 {
			ov.NumSinglePoints++
		}
	}

	for _, col := range t.Columns {
		stats := MetricStats{
			Min: t.Rows[0].Values[col],
			Max: t.Rows[0].Values[col],
		}
		for _, r := range t.Rows {
			v := r.Values[col]
			if v < stats.Min {
				stats.Min = v
			}
			if v > stats.Max {
				stats.Max = v
			}
			stats.Sum += v
		}
		stats.Average = stats.Sum / float64(len(t.Rows))
		ov.MetricsSummary[col] = stats
	}

	return ov
}
