package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"web/resalegeo/artifact"
	"web/resalegeo/cluster"
	"web/resalegeo/pipeline"
	"web/resalegeo/table"
)

// Status describes the active snapshot.
type Status struct {
	Loaded   bool           `json:"loaded"`
	RunID    string         `json:"runId,omitempty"`
	RunTime  time.Time      `json:"runTime,omitempty"`
	LoadedAt time.Time      `json:"loadedAt,omitempty"`
	Columns  int            `json:"columns"`
	Clusters map[string]int `json:"clusters,omitempty"`
	Cached   []string       `json:"cached"`
}

type VariationsResponse struct {
	RunID      string                     `json:"runId"`
	Variations []pipeline.VariationResult `json:"variations"`
}

// ClusterView is the active snapshot's summary table for one entity:
// an overview plus one GeoJSON point per cluster centroid.
type ClusterView struct {
	RunID    string                     `json:"runId"`
	Overview cluster.Overview           `json:"overview"`
	Clusters *geojson.FeatureCollection `json:"clusters"`
}

var ErrUnknownEntity = errors.New("runner: unknown entity")

type RunsResponse struct {
	Runs []artifact.RunInfo `json:"runs"`
}

// Service is the in-process feature backend. The gRPC server and the HTTP
// API both sit on top of it.
type Service struct {
	loader   *Loader
	enricher *pipeline.Enricher
}

func NewService(loader *Loader, enricher *pipeline.Enricher) *Service {
	return &Service{loader: loader, enricher: enricher}
}

func (s *Service) Enrich(ctx context.Context, rec table.Record) (*pipeline.Enrichment, error) {
	return s.enricher.Enrich(ctx, rec)
}

func (s *Service) Variations(ctx context.Context, rec table.Record) (*VariationsResponse, error) {
	runID, sets, err := s.enricher.Variations(ctx, rec)
	if err != nil {
		return nil, err
	}
	return &VariationsResponse{RunID: runID, Variations: sets}, nil
}

func (s *Service) ListRuns(ctx context.Context) ([]artifact.RunInfo, error) {
	return s.loader.Store().List()
}

// LoadRun activates run id for inference.
func (s *Service) LoadRun(ctx context.Context, id string) (artifact.RunInfo, error) {
	if _, err := s.loader.Activate(ctx, id); err != nil {
		return artifact.RunInfo{}, err
	}
	return s.loader.Store().Info(id)
}

func (s *Service) Status(ctx context.Context) (Status, error) {
	st := Status{}
	for id := range s.loader.Loaded() {
		st.Cached = append(st.Cached, id)
	}
	sort.Strings(st.Cached)

	snap, err := s.loader.Registry().Current()
	if err != nil {
		return st, nil
	}
	st.Loaded = true
	st.RunID = snap.RunID
	st.RunTime = snap.RunTime
	st.LoadedAt = snap.LoadedAt
	st.Columns = len(snap.Schema.Columns)
	st.Clusters = Clusters(snap)
	return st, nil
}

// Clusters describes the summary table the active snapshot joins entity
// against.
func (s *Service) Clusters(ctx context.Context, entity string) (*ClusterView, error) {
	snap, err := s.loader.Registry().Current()
	if err != nil {
		return nil, err
	}
	for _, j := range snap.Joiners {
		if j.Spec().Entity != entity {
			continue
		}
		t := j.Table()
		countColumn := ""
		if len(t.Columns) > 0 {
			countColumn = t.Columns[0]
		}
		return &ClusterView{
			RunID:    snap.RunID,
			Overview: cluster.Describe(t, countColumn),
			Clusters: featureCollection(t),
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
}

func featureCollection(t *cluster.SummaryTable) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, row := range t.Rows {
		f := geojson.NewFeature(orb.Point{row.Lon, row.Lat})
		f.ID = row.ClusterID
		f.Properties["cluster"] = row.ClusterID
		for _, col := range t.Columns {
			f.Properties[col] = row.Values[col]
		}
		fc.Append(f)
	}
	return fc
}
