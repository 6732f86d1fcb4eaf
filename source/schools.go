package source

import (
	"strconv"
	"strings"

	"web/resalegeo/cluster"
	"web/resalegeo/table"
)

const SchoolNameField = "school_name"

// SchoolCategories and SchoolFlags are the school attributes carried onto
// reference points.
var (
	SchoolCategories = []string{"type_code", "mainlevel_code", "nature_code", "session_code"}
	SchoolFlags      = []string{"sap_ind", "autonomous_ind", "gifted_ind", "ip_ind"}
)

// Schools converts geocoded school rows into reference points. Flags accept
// Yes/No, Y/N, true/false or 1/0; anything else counts as 0. Rows without
// coordinates are skipped.
func Schools(f *table.Frame) ([]cluster.ReferencePoint, Stats, error) {
	stats := Stats{Rows: len(f.Rows)}
	if err := requireColumns(f, LatField, LonField); err != nil {
		return nil, stats, err
	}

	points := make([]cluster.ReferencePoint, 0, len(f.Rows))
	for i, rec := range f.Rows {
		lat, okLat := rec.Float(LatField)
		lon, okLon := rec.Float(LonField)
		if !okLat || !okLon {
			stats.Skipped++
			continue
		}

		id, _ := rec.String(SchoolNameField)
		if id == "" {
			id = "school-" + strconv.Itoa(i)
		}

		p := cluster.ReferencePoint{
			ID:         id,
			Lat:        lat,
			Lon:        lon,
			Categories: make(map[string]string, len(SchoolCategories)),
			Flags:      make(map[string]float64, len(SchoolFlags)),
		}
		for _, c := range SchoolCategories {
			if v, ok := rec.String(c); ok && strings.TrimSpace(v) != "" {
				p.Categories[c] = strings.ToUpper(strings.TrimSpace(v))
			}
		}
		for _, flag := range SchoolFlags {
			p.Flags[flag] = ParseFlag(rec[flag])
		}
		points = append(points, p)
	}

	stats.Points = len(points)
	return points, stats, nil
}

// ParseFlag reads an indicator cell as 0 or 1.
func ParseFlag(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		if x != 0 {
			return 1
		}
		return 0
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		switch strings.ToUpper(strings.TrimSpace(x)) {
		case "YES", "Y", "TRUE", "1":
			return 1
		}
	}
	return 0
}
