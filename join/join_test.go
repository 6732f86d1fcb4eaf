package join

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"web/resalegeo/cluster"
	"web/resalegeo/spatial"
	"web/resalegeo/table"
)

func stationTable() *cluster.SummaryTable {
	return &cluster.SummaryTable{
		Entity:    "mrt",
		LatColumn: "cluster_lat",
		LonColumn: "cluster_long",
		Columns:   []string{"num_stations"},
		Rows: []cluster.SummaryRow{
			{ClusterID: 0, Lat: 1.2840, Lon: 103.8514, Values: map[string]float64{"num_stations": 3}},
			{ClusterID: 1, Lat: 1.3043, Lon: 103.8318, Values: map[string]float64{"num_stations": 2}},
			{ClusterID: 2, Lat: 1.3508, Lon: 103.8482, Values: map[string]float64{"num_stations": 4}},
			{ClusterID: 3, Lat: 1.3331, Lon: 103.7422, Values: map[string]float64{"num_stations": 1}},
		},
	}
}

func schoolTable() *cluster.SummaryTable {
	return &cluster.SummaryTable{
		Entity:    "school",
		LatColumn: "cluster_center_lat",
		LonColumn: "cluster_center_lng",
		Columns:   []string{"school_count", "sap_ind_pct", "town"},
		Rows: []cluster.SummaryRow{
			{ClusterID: 0, Lat: 1.30, Lon: 103.80, Values: map[string]float64{"school_count": 5, "sap_ind_pct": 20, "town": 9}},
			{ClusterID: 1, Lat: 1.40, Lon: 103.90, Values: map[string]float64{"school_count": 2, "sap_ind_pct": 50, "town": 7}},
		},
	}
}

func TestJoinFourStations(t *testing.T) {
	j, err := New(TransitSpec(), stationTable())
	require.NoError(t, err)

	in := []table.Record{{"latitude": 1.3000, "longitude": 103.8400, "town": "ORCHARD"}}
	out, err := j.Join(in)
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, 1.0, out[0]["nearest_mrt_cluster"])
	assert.InDelta(t, 1029.35, out[0]["distance_to_nearest_mrt"].(float64), 1.0)
	assert.Equal(t, 2.0, out[0]["num_stations"])
	assert.NotContains(t, out[0], "cluster_lat")
	assert.NotContains(t, out[0], "cluster_long")

	// Inputs are left untouched.
	assert.NotContains(t, in[0], "nearest_mrt_cluster")
}

func TestJoinMatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	st := stationTable()
	j, err := New(TransitSpec(), st)
	require.NoError(t, err)

	records := make([]table.Record, 500)
	for i := range records {
		records[i] = table.Record{
			"latitude":  1.2 + r.Float64()*0.27,
			"longitude": 103.6 + r.Float64()*0.4,
		}
	}

	out, err := j.Join(records)
	require.NoError(t, err)

	for i, rec := range records {
		lat, _ := rec.Float("latitude")
		lon, _ := rec.Float("longitude")
		best := math.Inf(1)
		for _, row := range st.Rows {
			if d := spatial.Haversine(lat, lon, row.Lat, row.Lon); d < best {
				best = d
			}
		}
		assert.InDelta(t, best, out[i]["distance_to_nearest_mrt"].(float64), 1e-6, "record %d", i)
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	j, err := New(SchoolSpec(), schoolTable())
	require.NoError(t, err)

	records := []table.Record{
		{"latitude": 1.31, "longitude": 103.81},
		{"latitude": 1.39, "longitude": 103.88},
		{"latitude": 1.35, "longitude": 103.85},
	}

	first, err := j.Join(records)
	require.NoError(t, err)
	second, err := j.Join(records)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestJoinRenamesCollidingColumns(t *testing.T) {
	j, err := New(SchoolSpec(), schoolTable())
	require.NoError(t, err)

	out, err := j.JoinOne(table.Record{"latitude": 1.31, "longitude": 103.81, "town": "CLEMENTI"})
	require.NoError(t, err)

	assert.Equal(t, "CLEMENTI", out["town"])
	assert.Equal(t, 9.0, out["town_school"])
	assert.Equal(t, 5.0, out["school_count"])
	assert.Equal(t, 0.0, out["nearest_school_cluster"])
}

func TestJoinRejectsUnplaceableCoordinates(t *testing.T) {
	j, err := New(TransitSpec(), stationTable())
	require.NoError(t, err)

	cases := []struct {
		rec   table.Record
		field string
	}{
		{table.Record{"latitude": "Inf", "longitude": 103.8}, "latitude"},
		{table.Record{"latitude": 1.3, "longitude": math.Inf(-1)}, "longitude"},
		{table.Record{"latitude": 91.0, "longitude": 103.8}, "latitude"},
		{table.Record{"latitude": 1.3, "longitude": "181"}, "longitude"},
	}
	for _, c := range cases {
		_, err := j.JoinOne(c.rec)
		var mce *MissingCoordinateError
		require.True(t, errors.As(err, &mce), "%v", c.rec)
		assert.Equal(t, c.field, mce.Field)

		kept, dropped := FilterMissingCoordinates([]table.Record{c.rec}, "", "")
		assert.Empty(t, kept)
		assert.Equal(t, 1, dropped)
	}

	out, err := j.Join([]table.Record{{"latitude": -90.0, "longitude": 180.0}})
	require.NoError(t, err)
	assert.Contains(t, out[0], "nearest_mrt_cluster")
}

func TestJoinKeepLimitsColumns(t *testing.T) {
	spec := SchoolSpec()
	spec.Keep = []string{"school_count"}
	j, err := New(spec, schoolTable())
	require.NoError(t, err)

	out, err := j.JoinOne(table.Record{"latitude": 1.31, "longitude": 103.81})
	require.NoError(t, err)
	assert.Contains(t, out, "school_count")
	assert.NotContains(t, out, "sap_ind_pct")
}

func TestJoinMissingCoordinate(t *testing.T) {
	j, err := New(TransitSpec(), stationTable())
	require.NoError(t, err)

	records := []table.Record{
		{"latitude": 1.30, "longitude": 103.84},
		{"latitude": nil, "longitude": 103.84},
	}
	_, err = j.Join(records)
	require.Error(t, err)

	var mce *MissingCoordinateError
	require.True(t, errors.As(err, &mce))
	assert.Equal(t, 1, mce.Row)
	assert.Equal(t, "latitude", mce.Field)
	assert.ErrorIs(t, err, ErrMissingCoordinate)

	kept, dropped := FilterMissingCoordinates(records, "", "")
	assert.Equal(t, 1, dropped)
	require.Len(t, kept, 1)

	out, err := j.Join(kept)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestJoinSingleCluster(t *testing.T) {
	st := &cluster.SummaryTable{
		Entity:  "mrt",
		Columns: []string{"num_stations"},
		Rows:    []cluster.SummaryRow{{ClusterID: 0, Lat: 1.35, Lon: 103.82, Values: map[string]float64{"num_stations": 1}}},
	}
	j, err := New(TransitSpec(), st)
	require.NoError(t, err)

	out, err := j.Join([]table.Record{
		{"latitude": 1.35, "longitude": 103.82},
		{"latitude": 1.45, "longitude": 104.00},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, out[0]["distance_to_nearest_mrt"])
	assert.Equal(t, 0.0, out[1]["nearest_mrt_cluster"])
	assert.Greater(t, out[1]["distance_to_nearest_mrt"].(float64), 0.0)
}

func TestNewEmptyTable(t *testing.T) {
	_, err := New(TransitSpec(), &cluster.SummaryTable{Entity: "mrt"})
	assert.ErrorIs(t, err, spatial.ErrEmptyIndex)
}

func TestEndToEndClusterAndJoin(t *testing.T) {
	points := []cluster.ReferencePoint{
		{ID: "RAFFLES PLACE", Lat: 1.2840, Lon: 103.8514},
		{ID: "ORCHARD", Lat: 1.3043, Lon: 103.8318},
		{ID: "BISHAN", Lat: 1.3508, Lon: 103.8482},
		{ID: "JURONG EAST", Lat: 1.3331, Lon: 103.7422},
	}
	res, err := cluster.Job{
		Config: cluster.Config{Entity: "mrt", K: 4},
		Schema: cluster.TransitSchema(),
	}.Run(points, nil)
	require.NoError(t, err)

	j, err := New(TransitSpec(), res.Table)
	require.NoError(t, err)

	out, err := j.JoinOne(table.Record{"latitude": 1.3000, "longitude": 103.8400})
	require.NoError(t, err)

	// Canonical ids order clusters by longitude: Jurong East, Orchard, Bishan, Raffles.
	assert.Equal(t, 1.0, out["nearest_mrt_cluster"])
	assert.InDelta(t, 1029.35, out["distance_to_nearest_mrt"].(float64), 1.0)
	assert.Equal(t, 1.0, out["num_stations"])
}
