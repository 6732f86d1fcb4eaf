// Package app builds the collaborators the binaries share from a loaded
// configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"web/resalegeo/artifact"
	"web/resalegeo/cluster"
	"web/resalegeo/config"
	"web/resalegeo/events"
	"web/resalegeo/features"
	"web/resalegeo/geocode"
	"web/resalegeo/metrics"
	"web/resalegeo/pipeline"
	"web/resalegeo/runner"
	"web/resalegeo/sink"
	"web/resalegeo/source"
)

// Engineer loads the macro series and builds the feature engineer.
func Engineer(cfg config.Config, logger *slog.Logger, m *metrics.Metrics) (*features.Engineer, error) {
	stock, unemployment, err := pipeline.LoadMacro(cfg.Data, logger)
	if err != nil {
		return nil, err
	}
	opts := features.Options{Stock: stock, Unemployment: unemployment, Logger: logger}
	if m != nil {
		opts.Recorder = m
	}
	return features.NewEngineer(opts), nil
}

// Geocoder builds the OneMap pool, cached in Redis when an address is
// configured and in memory otherwise. The returned func releases the
// cache client.
func Geocoder(ctx context.Context, cfg config.Config, logger *slog.Logger, m *metrics.Metrics) (*geocode.Pool, func() error, error) {
	closeCache := func() error { return nil }

	var cache geocode.Cache = geocode.NewMemoryCache()
	if cfg.Geocode.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Geocode.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, closeCache, fmt.Errorf("failed to connect to redis %s: %w", cfg.Geocode.RedisAddr, err)
		}
		cache = geocode.NewRedisCache(rdb, "geocode:", cfg.Geocode.CacheTTL)
		closeCache = rdb.Close
		logger.Info("geocode cache", "backend", "redis", "addr", cfg.Geocode.RedisAddr)
	}

	opts := geocode.PoolOptions{Workers: cfg.Geocode.Workers, Cache: cache, Logger: logger}
	if m != nil {
		opts.Recorder = m
	}
	client := geocode.NewClient(cfg.Geocode.Config, &http.Client{Timeout: cfg.Geocode.Timeout})
	return geocode.NewPool(client, opts), closeCache, nil
}

// Objects returns the run mirror, or nil when no endpoint is configured.
func Objects(ctx context.Context, cfg config.Config) (*artifact.ObjectStore, error) {
	if cfg.Objects.Endpoint == "" {
		return nil, nil
	}
	objects, err := artifact.NewObjectStore(cfg.Objects)
	if err != nil {
		return nil, err
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return objects, nil
}

// Inference is the serving side: a loader over the artifact store and the
// service answering requests from its active snapshot.
type Inference struct {
	Loader  *runner.Loader
	Service *runner.Service
	close   func() error
}

func (i *Inference) Close() error {
	return i.close()
}

// NewInference wires the loader, enricher and service and activates the
// newest run on disk, if any.
func NewInference(ctx context.Context, cfg config.Config, logger *slog.Logger, m *metrics.Metrics) (*Inference, error) {
	store, err := artifact.NewStore(cfg.Data.ArtifactDir, cfg.Data.Compress, logger)
	if err != nil {
		return nil, err
	}

	engineer, err := Engineer(cfg, logger, m)
	if err != nil {
		return nil, err
	}

	pool, closeCache, err := Geocoder(ctx, cfg, logger, m)
	if err != nil {
		return nil, err
	}

	loaderOpts := runner.LoaderOptions{MaxRuns: cfg.Server.MaxLoadedRuns, Logger: logger}
	enricherOpts := pipeline.EnricherOptions{Geocoder: pool, Logger: logger}
	if m != nil {
		loaderOpts.Observer = m
		enricherOpts.Observer = m
	}
	objects, err := Objects(ctx, cfg)
	if err != nil {
		closeCache()
		return nil, err
	}
	if objects != nil {
		loaderOpts.Fetcher = objects
	}

	registry := &artifact.Registry{}
	loader := runner.NewLoader(store, registry, cfg.Joins, loaderOpts)
	enricher := pipeline.NewEnricher(registry, engineer, enricherOpts)

	if _, err := loader.ActivateLatest(ctx); err != nil {
		logger.Warn("no run activated at startup", "dir", store.Dir, "error", err)
	}

	return &Inference{
		Loader:  loader,
		Service: runner.NewService(loader, enricher),
		close:   closeCache,
	}, nil
}

// Training is a configured trainer plus the connections it holds.
type Training struct {
	Trainer  *pipeline.Trainer
	Stations pipeline.StationSource
	closers  []func() error
}

func (t *Training) Close() error {
	var first error
	for i := len(t.closers) - 1; i >= 0; i-- {
		if err := t.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewTraining wires the trainer. Geocoding, the Postgres sink, the object
// store mirror and NATS events are enabled by their configuration.
func NewTraining(ctx context.Context, cfg config.Config, logger *slog.Logger, m *metrics.Metrics) (*Training, error) {
	t := &Training{}
	fail := func(err error) (*Training, error) {
		t.Close()
		return nil, err
	}

	store, err := artifact.NewStore(cfg.Data.ArtifactDir, cfg.Data.Compress, logger)
	if err != nil {
		return nil, err
	}
	engineer, err := Engineer(cfg, logger, m)
	if err != nil {
		return nil, err
	}

	trainer := &pipeline.Trainer{
		Jobs:     []cluster.Job{cfg.Transit, cfg.School},
		Joins:    cfg.Joins,
		Target:   cfg.Data.Target,
		Store:    store,
		Engineer: engineer,
		Logger:   logger,
	}
	t.Trainer = trainer

	pool, closeCache, err := Geocoder(ctx, cfg, logger, m)
	if err != nil {
		return fail(err)
	}
	t.closers = append(t.closers, closeCache)
	trainer.Geocoder = pool

	if cfg.Overpass.Enabled {
		t.Stations = source.NewOverpassStations(cfg.Overpass.Endpoint, cfg.Overpass.Timeout)
	}

	if cfg.Postgres.DSN != "" {
		db, err := sink.Connect(ctx, cfg.Postgres.DSN)
		if err != nil {
			return fail(err)
		}
		t.closers = append(t.closers, db.Close)
		recorder := sink.NewPostgresTrainingRecorder(db)
		if err := recorder.EnsureSchema(ctx); err != nil {
			return fail(err)
		}
		trainer.Sink = recorder
	}

	objects, err := Objects(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	if objects != nil {
		trainer.Uploader = objects
	}

	if cfg.NATS.URL != "" {
		bus, err := events.Connect(cfg.NATS, logger)
		if err != nil {
			return fail(err)
		}
		t.closers = append(t.closers, bus.Close)
		trainer.Events = bus
	}

	return t, nil
}

// Train loads the configured datasets and runs the trainer once.
func (t *Training) Train(ctx context.Context, cfg config.Config, logger *slog.Logger) (*pipeline.TrainResult, error) {
	in, err := pipeline.LoadInput(ctx, cfg.Data, t.Stations, logger)
	if err != nil {
		return nil, err
	}
	return t.Trainer.Train(ctx, in)
}
