package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/serjvanilla/go-overpass"

	"web/resalegeo/cluster"
)

const (
	DefaultOverpassEndpoint = "https://overpass-api.de/api/interpreter"

	// singaporeBBox is south,west,north,east.
	singaporeBBox = "1.15,103.59,1.48,104.10"
)

// OverpassStations fetches rail stations from OpenStreetMap as an
// alternative to the exit dataset.
type OverpassStations struct {
	client  overpass.Client
	timeout time.Duration
	bbox    string
}

func NewOverpassStations(endpoint string, timeout time.Duration) *OverpassStations {
	if endpoint == "" {
		endpoint = DefaultOverpassEndpoint
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}
	return &OverpassStations{
		client:  overpass.NewWithSettings(endpoint, 2, httpClient),
		timeout: timeout,
		bbox:    singaporeBBox,
	}
}

func (s *OverpassStations) query() string {
	return fmt.Sprintf(`
		[out:json][timeout:%d];
		(
			node["railway"="station"]["station"~"subway|light_rail"](%s);
		);
		out body;
	`, int(s.timeout.Seconds()), s.bbox)
}

// Fetch returns one point per station name, averaging nodes that share a
// name such as interchange platforms. The client has no context support,
// so ctx is only checked before the request is sent.
func (s *OverpassStations) Fetch(ctx context.Context) ([]cluster.ReferencePoint, Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, Stats{}, err
	}

	result, err := s.client.Query(s.query())
	if err != nil {
		return nil, Stats{}, fmt.Errorf("overpass query failed: %w", err)
	}

	type acc struct {
		lat, lon float64
		n        int
	}
	stations := make(map[string]*acc)
	stats := Stats{Rows: len(result.Nodes)}

	for _, node := range result.Nodes {
		name := strings.ToUpper(strings.TrimSpace(node.Tags["name"]))
		if name == "" {
			stats.Skipped++
			continue
		}
		name = strings.TrimSuffix(name, " MRT STATION")
		name = strings.TrimSuffix(name, " LRT STATION")
		a, ok := stations[name]
		if !ok {
			a = &acc{}
			stations[name] = a
		}
		a.lat += node.Lat
		a.lon += node.Lon
		a.n++
	}

	points := centroids(stations, func(a *acc) (float64, float64) {
		return a.lat / float64(a.n), a.lon / float64(a.n)
	})
	stats.Points = len(points)
	return points, stats, nil
}
