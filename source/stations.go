// Package source turns raw reference datasets into cluster input points.
package source

import (
	"fmt"
	"sort"
	"strings"

	"web/resalegeo/cluster"
	"web/resalegeo/table"
)

const (
	StationNameField = "STATION_NA"
	LatField         = "latitude"
	LonField         = "longitude"
)

// Stats reports what loading a dataset dropped.
type Stats struct {
	Rows    int
	Points  int
	Skipped int
}

// StationExits averages the exits of each station into one point per
// station, keyed by STATION_NA. Rows without a name or coordinates are
// skipped. Points come back sorted by station name.
func StationExits(f *table.Frame) ([]cluster.ReferencePoint, Stats, error) {
	stats := Stats{Rows: len(f.Rows)}
	if err := requireColumns(f, StationNameField, LatField, LonField); err != nil {
		return nil, stats, err
	}

	type acc struct {
		lat, lon float64
		n        int
	}
	stations := make(map[string]*acc)

	for _, rec := range f.Rows {
		name, _ := rec.String(StationNameField)
		name = strings.TrimSpace(name)
		lat, okLat := rec.Float(LatField)
		lon, okLon := rec.Float(LonField)
		if name == "" || !okLat || !okLon {
			stats.Skipped++
			continue
		}
		a, ok := stations[name]
		if !ok {
			a = &acc{}
			stations[name] = a
		}
		a.lat += lat
		a.lon += lon
		a.n++
	}

	return centroids(stations, func(a *acc) (float64, float64) {
		return a.lat / float64(a.n), a.lon / float64(a.n)
	}), withPoints(stats, len(stations)), nil
}

func centroids[T any](groups map[string]T, center func(T) (float64, float64)) []cluster.ReferencePoint {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	points := make([]cluster.ReferencePoint, len(names))
	for i, name := range names {
		lat, lon := center(groups[name])
		points[i] = cluster.ReferencePoint{ID: name, Lat: lat, Lon: lon}
	}
	return points
}

func withPoints(s Stats, n int) Stats {
	s.Points = n
	return s
}

func requireColumns(f *table.Frame, columns ...string) error {
	have := make(map[string]struct{}, len(f.Columns))
	for _, c := range f.Columns {
		have[c] = struct{}{}
	}
	var missing []string
	for _, c := range columns {
		if _, ok := have[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("source: missing columns %v", missing)
	}
	return nil
}
