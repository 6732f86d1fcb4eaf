// Package join attaches the nearest cluster of a summary table to housing
// records. The transit and school joins are two Specs over one Joiner.
package join

import (
	"fmt"

	"github.com/paulmach/orb"

	"web/resalegeo/cluster"
	"web/resalegeo/spatial"
	"web/resalegeo/table"
)

const (
	DefaultLatField = "latitude"
	DefaultLonField = "longitude"
)

// Spec names the fields one join writes.
type Spec struct {
	Entity         string `yaml:"entity"`
	ClusterColumn  string `yaml:"cluster_column"`
	DistanceColumn string `yaml:"distance_column"`
	Suffix         string `yaml:"suffix"`
	LatField       string `yaml:"lat_field"`
	LonField       string `yaml:"lon_field"`
	// Keep limits the copied summary columns. Empty copies all of them.
	Keep []string `yaml:"keep"`
}

func TransitSpec() Spec {
	return Spec{
		Entity:         "mrt",
		ClusterColumn:  "nearest_mrt_cluster",
		DistanceColumn: "distance_to_nearest_mrt",
		Suffix:         "_mrt",
	}
}

func SchoolSpec() Spec {
	return Spec{
		Entity:         "school",
		ClusterColumn:  "nearest_school_cluster",
		DistanceColumn: "distance_to_nearest_school",
		Suffix:         "_school",
	}
}

func (s Spec) withDefaults() Spec {
	if s.LatField == "" {
		s.LatField = DefaultLatField
	}
	if s.LonField == "" {
		s.LonField = DefaultLonField
	}
	if s.ClusterColumn == "" {
		s.ClusterColumn = "nearest_" + s.Entity + "_cluster"
	}
	if s.DistanceColumn == "" {
		s.DistanceColumn = "distance_to_nearest_" + s.Entity
	}
	if s.Suffix == "" {
		s.Suffix = "_" + s.Entity
	}
	return s
}

// Joiner holds a spatial index over one summary table's centroids. It is
// safe for concurrent use once built.
type Joiner struct {
	spec    Spec
	table   *cluster.SummaryTable
	index   *spatial.Index
	columns []string
}

// New indexes the centroids of t.
func New(spec Spec, t *cluster.SummaryTable) (*Joiner, error) {
	spec = spec.withDefaults()
	if t == nil || len(t.Rows) == 0 {
		return nil, fmt.Errorf("join %s: %w", spec.Entity, spatial.ErrEmptyIndex)
	}

	index, err := spatial.NewIndex(t.Points())
	if err != nil {
		return nil, fmt.Errorf("join %s: %w", spec.Entity, err)
	}

	columns := t.Columns
	if len(spec.Keep) > 0 {
		columns = spec.Keep
	}

	return &Joiner{
		spec:    spec,
		table:   t,
		index:   index,
		columns: columns,
	}, nil
}

func (j *Joiner) Spec() Spec {
	return j.spec
}

func (j *Joiner) Table() *cluster.SummaryTable {
	return j.table
}

// Join returns enriched copies of records; the inputs are not modified.
// Every record must carry both coordinates, otherwise a
// *MissingCoordinateError is returned and nothing is joined.
func (j *Joiner) Join(records []table.Record) ([]table.Record, error) {
	targets := make([]orb.Point, len(records))
	for i, rec := range records {
		p, err := j.coordinates(i, rec)
		if err != nil {
			return nil, err
		}
		targets[i] = p
	}

	matches := j.index.NearestBatch(targets)

	out := make([]table.Record, len(records))
	for i, rec := range records {
		out[i] = j.attach(rec, matches[i])
	}
	return out, nil
}

// JoinOne enriches a single record.
func (j *Joiner) JoinOne(rec table.Record) (table.Record, error) {
	p, err := j.coordinates(0, rec)
	if err != nil {
		return nil, err
	}

	idx, meters := j.index.Nearest(p.Lat(), p.Lon())
	return j.attach(rec, spatial.Match{Index: idx, Meters: meters}), nil
}

func (j *Joiner) coordinates(i int, rec table.Record) (orb.Point, error) {
	lat, ok := rec.Latitude(j.spec.LatField)
	if !ok {
		return orb.Point{}, &MissingCoordinateError{Entity: j.spec.Entity, Row: i, Field: j.spec.LatField}
	}
	lon, ok := rec.Longitude(j.spec.LonField)
	if !ok {
		return orb.Point{}, &MissingCoordinateError{Entity: j.spec.Entity, Row: i, Field: j.spec.LonField}
	}
	return orb.Point{lon, lat}, nil
}

func (j *Joiner) attach(rec table.Record, m spatial.Match) table.Record {
	row := j.table.Rows[m.Index]
	existing := make(map[string]struct{}, len(rec))
	for k := range rec {
		existing[k] = struct{}{}
	}

	out := rec.Clone()
	out[j.spec.ClusterColumn] = float64(row.ClusterID)
	out[j.spec.DistanceColumn] = m.Meters
	for _, c := range j.columns {
		out[j.outputName(c, existing)] = row.Values[c]
	}
	return out
}

// outputName suffixes a summary column that would overwrite a field the
// record already has.
func (j *Joiner) outputName(column string, existing map[string]struct{}) string {
	if _, taken := existing[column]; taken {
		return column + j.spec.Suffix
	}
	return column
}

// FilterMissingCoordinates drops records without a usable latitude or
// longitude, including out-of-range values, and reports how many were
// dropped.
func FilterMissingCoordinates(records []table.Record, latField, lonField string) ([]table.Record, int) {
	if latField == "" {
		latField = DefaultLatField
	}
	if lonField == "" {
		lonField = DefaultLonField
	}

	kept := make([]table.Record, 0, len(records))
	for _, rec := range records {
		if rec.HasCoordinates(latField, lonField) {
			kept = append(kept, rec)
		}
	}
	return kept, len(records) - len(kept)
}
