// Package pipeline wires the stages together: training runs cluster the
// reference datasets and persist a run, and the enricher turns one
// inference request into an aligned feature vector.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"web/resalegeo/artifact"
	"web/resalegeo/cluster"
	"web/resalegeo/events"
	"web/resalegeo/features"
	"web/resalegeo/geocode"
	"web/resalegeo/join"
	"web/resalegeo/sink"
	"web/resalegeo/table"
)

// Uploader mirrors saved run files elsewhere, usually an object store.
type Uploader interface {
	Upload(ctx context.Context, runID string, paths []string) ([]string, error)
}

// TrainInput is the raw material of one run.
type TrainInput struct {
	// Points holds the reference points per entity, keyed like the jobs.
	Points map[string][]cluster.ReferencePoint
	Resale []table.Record
}

type TrainResult struct {
	Run        *artifact.Run
	Results    map[string]*cluster.Result
	Frame      *table.Frame
	Paths      []string
	ObjectKeys []string
	// Dropped counts resale records without coordinates after geocoding.
	Dropped  int
	Recorded int
	Elapsed  time.Duration
}

// Trainer runs the batch pipeline. Store and Engineer are required; the
// other collaborators are skipped when nil.
type Trainer struct {
	Jobs     []cluster.Job
	Joins    []join.Spec
	Target   string
	Store    *artifact.Store
	Engineer *features.Engineer
	Geocoder *geocode.Pool
	Sink     sink.TrainingRecorder
	Uploader Uploader
	Events   events.Publisher
	Logger   *slog.Logger
}

func (t *Trainer) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.Default()
	}
	return t.Logger
}

// Train clusters every entity, joins the resale records to the new
// summary tables, engineers the training frame and persists the run. The
// sink, upload and event steps run after the files are saved; their
// failures fail the run but leave the saved files in place.
func (t *Trainer) Train(ctx context.Context, in TrainInput) (*TrainResult, error) {
	start := time.Now()
	logger := t.logger()
	run := artifact.NewRun()
	logger = logger.With("run", run.ID)
	res := &TrainResult{Run: run, Results: make(map[string]*cluster.Result, len(t.Jobs))}

	for _, job := range t.Jobs {
		entity := job.Schema.Entity
		points := in.Points[entity]
		result, err := job.Run(points, logger)
		if err != nil {
			return nil, err
		}
		res.Results[entity] = result
		run.AddResult(result)
		logger.Info("clustered reference points", "entity", entity,
			"points", len(points), "clusters", result.Assignment.K, "score", result.Assignment.Score)
	}

	records := in.Resale
	if t.Geocoder != nil {
		var failed int
		records, failed = t.Geocoder.Annotate(ctx, records)
		if failed > 0 {
			logger.Warn("resale addresses not geocoded", "failed", failed)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	records, res.Dropped = join.FilterMissingCoordinates(records, join.DefaultLatField, join.DefaultLonField)
	if res.Dropped > 0 {
		logger.Warn("dropped records without coordinates", "dropped", res.Dropped, "kept", len(records))
	}

	for _, spec := range t.Joins {
		result, ok := res.Results[spec.Entity]
		if !ok {
			return nil, fmt.Errorf("pipeline: no %s clustering for join", spec.Entity)
		}
		j, err := join.New(spec, result.Table)
		if err != nil {
			return nil, err
		}
		if records, err = j.Join(records); err != nil {
			return nil, err
		}
	}

	frame, schema := t.Engineer.Batch(records, t.Target)
	run.Schema = schema
	res.Frame = frame

	paths, err := t.Store.Save(run)
	if err != nil {
		return nil, err
	}
	res.Paths = paths

	if t.Sink != nil {
		n, err := t.Sink.SaveTrainingData(ctx, run.ID, frame, schema)
		if err != nil {
			return res, fmt.Errorf("failed to record training features: %w", err)
		}
		res.Recorded = n
		logger.Info("recorded training features", "rows", n)
	}

	if t.Uploader != nil {
		keys, err := t.Uploader.Upload(ctx, run.ID, paths)
		if err != nil {
			return res, err
		}
		res.ObjectKeys = keys
		logger.Info("uploaded run files", "objects", len(keys))
	}

	if t.Events != nil {
		if err := t.Events.PublishRun(ctx, t.event(res)); err != nil {
			return res, err
		}
	}

	res.Elapsed = time.Since(start)
	logger.Info("training run complete", "records", len(frame.Rows),
		"columns", len(schema.Columns), "files", len(paths), "elapsed", res.Elapsed)
	return res, nil
}

func (t *Trainer) event(res *TrainResult) events.RunPublished {
	ev := events.RunPublished{
		RunID:      res.Run.ID,
		Timestamp:  res.Run.Timestamp,
		Clusters:   make(map[string]int, len(res.Results)),
		Rows:       len(res.Frame.Rows),
		ObjectKeys: res.ObjectKeys,
	}
	for _, job := range t.Jobs {
		entity := job.Schema.Entity
		ev.Entities = append(ev.Entities, entity)
		ev.Clusters[entity] = res.Results[entity].Assignment.K
	}
	return ev
}
