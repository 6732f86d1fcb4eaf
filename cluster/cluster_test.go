package cluster

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"
)

// generateBlobs creates tight groups of points around the given centres.
func generateBlobs(r *rand.Rand, centres [][2]float64, perBlob int, spread float64) []ReferencePoint {
	var points []ReferencePoint
	for b, c := range centres {
		for i := 0; i < perBlob; i++ {
			points = append(points, ReferencePoint{
				ID:  fmt.Sprintf("b%d-%d", b, i),
				Lat: c[0] + (r.Float64()-0.5)*spread,
				Lon: c[1] + (r.Float64()-0.5)*spread,
			})
		}
	}
	return points
}

func TestSummarizeRollup(t *testing.T) {
	points := []ReferencePoint{
		{ID: "a", Lat: 1.30, Lon: 103.80, Flags: map[string]float64{"sap_ind": 1, "ip_ind": 1}, Categories: map[string]string{"mainlevel_code": "PRIMARY"}},
		{ID: "b", Lat: 1.31, Lon: 103.81, Flags: map[string]float64{"sap_ind": 0, "ip_ind": 1}, Categories: map[string]string{"mainlevel_code": "SECONDARY"}},
		{ID: "c", Lat: 1.32, Lon: 103.82, Flags: map[string]float64{"sap_ind": 0}, Categories: map[string]string{"mainlevel_code": "PRIMARY"}},
	}

	agg := NewAggregator(SchoolSchema())
	summaries, err := agg.Summarize(points, []int{0, 0, 0})
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("Expected 1 summary, got %d", len(summaries))
	}

	s := summaries[0]
	if s.MemberCount != 3 {
		t.Errorf("Expected member count 3, got %d", s.MemberCount)
	}
	if math.Abs(s.CenterLat-1.31) > 1e-9 || math.Abs(s.CenterLon-103.81) > 1e-9 {
		t.Errorf("Expected centroid (1.31, 103.81), got (%f, %f)", s.CenterLat, s.CenterLon)
	}
	if s.Sums["sap_ind"] != 1 {
		t.Errorf("Expected sap_ind sum 1, got %f", s.Sums["sap_ind"])
	}
	if s.Percentages["sap_ind"] != 33.3 {
		t.Errorf("Expected sap_ind_pct 33.3, got %f", s.Percentages["sap_ind"])
	}
	if s.Percentages["ip_ind"] != 66.7 {
		t.Errorf("Expected ip_ind_pct 66.7, got %f", s.Percentages["ip_ind"])
	}
	// gifted_ind is absent on every member and scores as 0, not as excluded.
	if pct, ok := s.Percentages["gifted_ind"]; !ok || pct != 0 {
		t.Errorf("Expected gifted_ind_pct 0, got %f (present=%v)", pct, ok)
	}
	if s.Counts["primary_school_count"] != 2 {
		t.Errorf("Expected primary_school_count 2, got %f", s.Counts["primary_school_count"])
	}
	if math.Abs(s.Distributions["mainlevel_code"]["PRIMARY"]-200.0/3) > 1e-9 {
		t.Errorf("Expected PRIMARY share 66.67, got %f", s.Distributions["mainlevel_code"]["PRIMARY"])
	}

	table := agg.Table(summaries)
	want := []string{
		"school_count",
		"sap_ind", "sap_ind_pct",
		"autonomous_ind", "autonomous_ind_pct",
		"gifted_ind", "gifted_ind_pct",
		"ip_ind", "ip_ind_pct",
		"primary_school_count",
	}
	if fmt.Sprint(table.Columns) != fmt.Sprint(want) {
		t.Errorf("Expected columns %v, got %v", want, table.Columns)
	}
	if table.Rows[0].Values["school_count"] != 3 {
		t.Errorf("Expected school_count 3, got %f", table.Rows[0].Values["school_count"])
	}
}

func TestSummarizeLengthMismatch(t *testing.T) {
	agg := NewAggregator(TransitSchema())
	_, err := agg.Summarize([]ReferencePoint{{ID: "a"}}, []int{0, 1})
	if err == nil {
		t.Error("Expected an error for mismatched labels")
	}
}

func TestSinglePointCluster(t *testing.T) {
	points := []ReferencePoint{{ID: "only", Lat: 1.3521, Lon: 103.8198}}

	for _, cfg := range []Config{TransitConfig(), {Entity: "sweep"}} {
		job := Job{Config: cfg, Schema: TransitSchema()}
		res, err := job.Run(points, nil)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		if res.Assignment.K != 1 {
			t.Errorf("Expected k=1, got %d", res.Assignment.K)
		}
		if len(res.Table.Rows) != 1 {
			t.Fatalf("Expected 1 summary row, got %d", len(res.Table.Rows))
		}
		row := res.Table.Rows[0]
		if row.ClusterID != 0 || row.Lat != 1.3521 || row.Lon != 103.8198 {
			t.Errorf("Expected cluster 0 at the point itself, got %+v", row)
		}
		if row.Values["num_stations"] != 1 {
			t.Errorf("Expected num_stations 1, got %f", row.Values["num_stations"])
		}
	}
}

func TestEveryPointAssignedOnce(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	points := make([]ReferencePoint, 150)
	for i := range points {
		points[i] = ReferencePoint{
			ID:  fmt.Sprint(i),
			Lat: 1.2 + r.Float64()*0.27,
			Lon: 103.6 + r.Float64()*0.4,
		}
	}

	job := Job{
		Config: Config{Entity: "mrt", MaxK: 8, Restarts: 3}.WithDefaults(),
		Schema: TransitSchema(),
	}
	res, err := job.Run(points, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(res.Assignment.Labels) != len(points) {
		t.Fatalf("Expected %d labels, got %d", len(points), len(res.Assignment.Labels))
	}
	for i, l := range res.Assignment.Labels {
		if l < 0 || l >= res.Assignment.K {
			t.Errorf("Point %d has label %d outside [0, %d)", i, l, res.Assignment.K)
		}
	}

	total := 0
	for _, s := range res.Summaries {
		total += s.MemberCount
	}
	if total != len(points) {
		t.Errorf("Expected member counts to sum to %d, got %d", len(points), total)
	}
	if got := res.Table.MemberTotal("num_stations"); got != len(points) {
		t.Errorf("Expected table member total %d, got %d", len(points), got)
	}

	for _, s := range res.Summaries {
		if s.CenterLat < s.Bounds.Min.Lat() || s.CenterLat > s.Bounds.Max.Lat() ||
			s.CenterLon < s.Bounds.Min.Lon() || s.CenterLon > s.Bounds.Max.Lon() {
			t.Errorf("Cluster %d centroid (%f, %f) outside member bounds %v",
				s.ClusterID, s.CenterLat, s.CenterLon, s.Bounds)
		}
	}

	if len(res.Assignment.Scores) == 0 {
		t.Error("Expected the sweep to record silhouette scores")
	}
}

func TestCanonicalIdsFollowLongitude(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	points := generateBlobs(r, [][2]float64{{1.35, 103.95}, {1.30, 103.65}, {1.40, 103.80}}, 20, 0.01)

	res, err := Job{Config: Config{Entity: "mrt", K: 3}, Schema: TransitSchema()}.Run(points, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for i := 1; i < len(res.Table.Rows); i++ {
		if res.Table.Rows[i-1].Lon > res.Table.Rows[i].Lon {
			t.Errorf("Expected ascending centroid longitude, got %f before %f",
				res.Table.Rows[i-1].Lon, res.Table.Rows[i].Lon)
		}
		if res.Table.Rows[i].ClusterID != i {
			t.Errorf("Expected cluster id %d, got %d", i, res.Table.Rows[i].ClusterID)
		}
	}
}

func TestSelectIndependentOfInputOrder(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	points := generateBlobs(r, [][2]float64{{1.35, 103.95}, {1.30, 103.65}, {1.44, 103.80}, {1.28, 103.85}}, 15, 0.01)

	reversed := make([]ReferencePoint, len(points))
	for i, p := range points {
		reversed[len(points)-1-i] = p
	}

	job := Job{Config: Config{Entity: "mrt", K: 4}, Schema: TransitSchema()}
	a, err := job.Run(points, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	b, err := job.Run(reversed, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(a.Table.Rows) != len(b.Table.Rows) {
		t.Fatalf("Expected equal cluster counts, got %d and %d", len(a.Table.Rows), len(b.Table.Rows))
	}
	for i := range a.Table.Rows {
		ra, rb := a.Table.Rows[i], b.Table.Rows[i]
		if math.Abs(ra.Lat-rb.Lat) > 1e-9 || math.Abs(ra.Lon-rb.Lon) > 1e-9 {
			t.Errorf("Cluster %d moved between orders: %+v vs %+v", i, ra, rb)
		}
	}

	again, _ := job.Run(points, nil)
	for i, l := range a.Assignment.Labels {
		if again.Assignment.Labels[i] != l {
			t.Fatalf("Expected repeated runs to agree at point %d", i)
		}
	}
}

func TestDegenerateFallback(t *testing.T) {
	tests := []struct {
		name   string
		points []ReferencePoint
	}{
		{"identical points", []ReferencePoint{
			{ID: "a", Lat: 1.3, Lon: 103.8},
			{ID: "b", Lat: 1.3, Lon: 103.8},
			{ID: "c", Lat: 1.3, Lon: 103.8},
		}},
		{"two distinct points", []ReferencePoint{
			{ID: "a", Lat: 1.3, Lon: 103.8},
			{ID: "b", Lat: 1.4, Lon: 103.9},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := NewSelector(Config{Entity: "mrt"}, nil)
			got, err := sel.Select(tt.points)
			if err != nil {
				t.Fatalf("Expected fallback instead of error, got %v", err)
			}
			if !got.Degenerate {
				t.Error("Expected the assignment to be flagged degenerate")
			}
			if len(got.Labels) != len(tt.points) {
				t.Errorf("Expected %d labels, got %d", len(tt.points), len(got.Labels))
			}
			if got.K < 1 || got.K > 2 {
				t.Errorf("Expected fallback k in [1, 2], got %d", got.K)
			}
		})
	}
}

func TestSelectNoPoints(t *testing.T) {
	_, err := NewSelector(TransitConfig(), nil).Select(nil)
	if !errors.Is(err, ErrNoPoints) {
		t.Errorf("Expected ErrNoPoints, got %v", err)
	}
}

func TestSilhouette(t *testing.T) {
	data := [][]float64{{0, 0}, {0, 0.1}, {10, 10}, {10, 10.1}}

	score, ok := Silhouette(data, []int{0, 0, 1, 1})
	if !ok {
		t.Fatal("Expected a valid score for two clusters")
	}
	if score < 0.9 {
		t.Errorf("Expected well separated clusters to score above 0.9, got %f", score)
	}

	if _, ok := Silhouette(data, []int{0, 0, 0, 0}); ok {
		t.Error("Expected a single cluster to have no score")
	}
	if _, ok := Silhouette(data, []int{0, 1, 2, 3}); ok {
		t.Error("Expected n clusters to have no score")
	}
}

func TestKMeansSeparatesBlobs(t *testing.T) {
	data := [][]float64{{0, 0}, {0.1, 0}, {0, 0.1}, {5, 5}, {5.1, 5}, {5, 5.1}}

	res := KMeans(data, 2, Config{})
	if res.Labels[0] != res.Labels[1] || res.Labels[1] != res.Labels[2] {
		t.Errorf("Expected first blob in one cluster, got %v", res.Labels)
	}
	if res.Labels[3] != res.Labels[4] || res.Labels[4] != res.Labels[5] {
		t.Errorf("Expected second blob in one cluster, got %v", res.Labels)
	}
	if res.Labels[0] == res.Labels[3] {
		t.Errorf("Expected blobs in different clusters, got %v", res.Labels)
	}
}

func TestEncodeSchoolFeatures(t *testing.T) {
	points := []ReferencePoint{
		{Lat: 1.0, Lon: 103.0, Categories: map[string]string{"type_code": "GOVERNMENT"}, Flags: map[string]float64{"sap_ind": 1}},
		{Lat: 2.0, Lon: 104.0, Categories: map[string]string{"type_code": "AIDED"}},
		{Lat: 3.0, Lon: 105.0},
	}
	cfg := Config{GeoWeight: 2, Scale: true, Categorical: []string{"type_code"}, Binary: []string{"sap_ind"}}

	enc := Encode(points, cfg)
	wantColumns := []string{"latitude_0", "latitude_1", "longitude_0", "longitude_1", "type_code_AIDED", "type_code_GOVERNMENT", "sap_ind"}
	if fmt.Sprint(enc.Columns) != fmt.Sprint(wantColumns) {
		t.Fatalf("Expected columns %v, got %v", wantColumns, enc.Columns)
	}

	// Population std of {1,2,3} is sqrt(2/3).
	wantLat := -1 / math.Sqrt(2.0/3)
	first := enc.Rows[0]
	if math.Abs(first[0]-wantLat) > 1e-9 || first[0] != first[1] {
		t.Errorf("Expected duplicated scaled latitude %f, got %v", wantLat, first[:2])
	}
	if first[4] != 0 || first[5] != 1 || first[6] != 1 {
		t.Errorf("Expected one-hot GOVERNMENT and sap flag, got %v", first[4:])
	}
	if last := enc.Rows[2]; last[4] != 0 || last[5] != 0 || last[6] != 0 {
		t.Errorf("Expected missing attributes to encode as zeros, got %v", last[4:])
	}
}

func TestEncodeTransitKeepsRawCoordinates(t *testing.T) {
	points := []ReferencePoint{
		{Lat: 1.3331, Lon: 103.7422},
		{Lat: 1.3040, Lon: 103.8320},
		{Lat: 1.3240, Lon: 103.9300},
	}

	enc := Encode(points, TransitConfig())
	if fmt.Sprint(enc.Columns) != fmt.Sprint([]string{"latitude_0", "longitude_0"}) {
		t.Fatalf("Expected latitude and longitude columns, got %v", enc.Columns)
	}
	for i, p := range points {
		if enc.Rows[i][0] != p.Lat || enc.Rows[i][1] != p.Lon {
			t.Errorf("Expected raw coordinates %v for row %d, got %v", []float64{p.Lat, p.Lon}, i, enc.Rows[i])
		}
	}

	if !SchoolConfig().Scale || TransitConfig().Scale {
		t.Error("Expected only the school preset to standardize coordinates")
	}
}

func TestDescribe(t *testing.T) {
	table := &SummaryTable{
		Entity:  "mrt",
		Columns: []string{"num_stations"},
		Rows: []SummaryRow{
			{ClusterID: 0, Values: map[string]float64{"num_stations": 1}},
			{ClusterID: 1, Values: map[string]float64{"num_stations": 5}},
		},
	}

	ov := Describe(table, "num_stations")
	if ov.TotalPoints != 6 || ov.NumClusters != 2 || ov.NumSinglePoints != 1 {
		t.Errorf("Unexpected overview %+v", ov)
	}
	stats := ov.MetricsSummary["num_stations"]
	if stats.Min != 1 || stats.Max != 5 || stats.Average != 3 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}
