package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"web/resalegeo/artifact"
	"web/resalegeo/features"
	"web/resalegeo/geocode"
	"web/resalegeo/join"
	"web/resalegeo/table"
)

var ErrGeocode = errors.New("pipeline: address could not be geocoded")

// GeocodeError reports the address an inference request failed on.
type GeocodeError struct {
	Address string
	Err     error
}

func (e *GeocodeError) Error() string {
	if e.Address == "" {
		return "pipeline: request has no coordinates and no address"
	}
	return fmt.Sprintf("pipeline: geocode %q: %v", e.Address, e.Err)
}

func (e *GeocodeError) Is(target error) bool {
	return target == ErrGeocode
}

func (e *GeocodeError) Unwrap() error {
	return e.Err
}

// JoinObserver sees the distance of every inference join.
type JoinObserver interface {
	ObserveJoin(entity string, meters float64)
}

// Enrichment is the result of one request.
type Enrichment struct {
	RunID    string          `json:"runId"`
	Vector   features.Vector `json:"features"`
	Record   table.Record    `json:"record"`
	Geocoded bool            `json:"geocoded"`
}

// VariationResult pairs a parameter variation set with one vector per
// variant.
type VariationResult struct {
	Set     features.VariationSet `json:"set"`
	Vectors []features.Vector     `json:"vectors"`
}

// Enricher serves inference from the published snapshot.
type Enricher struct {
	registry *artifact.Registry
	engineer *features.Engineer
	geocoder *geocode.Pool
	observer JoinObserver
	logger   *slog.Logger
	now      func() time.Time
}

type EnricherOptions struct {
	Geocoder *geocode.Pool
	Observer JoinObserver
	Logger   *slog.Logger
	Now      func() time.Time
}

func NewEnricher(registry *artifact.Registry, engineer *features.Engineer, opts EnricherOptions) *Enricher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Enricher{
		registry: registry,
		engineer: engineer,
		geocoder: opts.Geocoder,
		observer: opts.Observer,
		logger:   opts.Logger,
		now:      opts.Now,
	}
}

func (e *Enricher) Registry() *artifact.Registry {
	return e.registry
}

// Enrich geocodes rec when it has no coordinates, joins it to the current
// snapshot and aligns it to the training schema. A failed geocode is an
// error; there is no default location.
func (e *Enricher) Enrich(ctx context.Context, rec table.Record) (*Enrichment, error) {
	snap, err := e.registry.Current()
	if err != nil {
		return nil, err
	}

	located, geocoded, err := e.locate(ctx, rec)
	if err != nil {
		return nil, err
	}

	vec, joined, err := e.vector(snap, located)
	if err != nil {
		return nil, err
	}
	return &Enrichment{RunID: snap.RunID, Vector: vec, Record: joined, Geocoded: geocoded}, nil
}

// Variations builds a vector for every parameter variation of rec. The
// address is geocoded once and shared by all variants.
func (e *Enricher) Variations(ctx context.Context, rec table.Record) (string, []VariationResult, error) {
	snap, err := e.registry.Current()
	if err != nil {
		return "", nil, err
	}

	located, _, err := e.locate(ctx, rec)
	if err != nil {
		return "", nil, err
	}

	sets := features.Variations(located, e.now().Year())
	out := make([]VariationResult, len(sets))
	for i, set := range sets {
		out[i] = VariationResult{Set: set, Vectors: make([]features.Vector, len(set.Variants))}
		for k, v := range set.Variants {
			vec, _, err := e.vector(snap, v.Record)
			if err != nil {
				return "", nil, err
			}
			out[i].Vectors[k] = vec
		}
	}
	return snap.RunID, out, nil
}

func (e *Enricher) vector(snap *artifact.Snapshot, rec table.Record) (features.Vector, table.Record, error) {
	joined, err := snap.Join(rec)
	if err != nil {
		return features.Vector{}, nil, err
	}
	if e.observer != nil {
		for _, j := range snap.Joiners {
			if m, ok := joined.Float(j.Spec().DistanceColumn); ok {
				e.observer.ObserveJoin(j.Spec().Entity, m)
			}
		}
	}
	vec := e.engineer.Vector(joined, snap.Schema)
	return vec, joined, nil
}

func (e *Enricher) locate(ctx context.Context, rec table.Record) (table.Record, bool, error) {
	if rec.HasCoordinates(join.DefaultLatField, join.DefaultLonField) {
		return rec, false, nil
	}

	addr := geocode.Address(rec)
	if addr == "" || e.geocoder == nil {
		return nil, false, &GeocodeError{Address: addr, Err: geocode.ErrNotFound}
	}

	results, failures := e.geocoder.Resolve(ctx, []string{addr})
	r, ok := results[addr]
	if !ok {
		err := failures[addr]
		if err == nil {
			err = ctx.Err()
		}
		if err == nil {
			err = geocode.ErrNotFound
		}
		return nil, false, &GeocodeError{Address: addr, Err: err}
	}

	out := rec.Clone()
	out[join.DefaultLatField] = r.Lat
	out[join.DefaultLonField] = r.Lon
	if r.Postal != "" {
		out[features.FieldPostalCode] = r.Postal
	}
	e.logger.Debug("geocoded request", "address", addr, "lat", r.Lat, "lon", r.Lon)
	return out, true, nil
}
