package geocode

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"web/resalegeo/table"
)

// Recorder counts lookup outcomes: "cache", "resolved" or "failed".
type Recorder interface {
	Geocoded(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) Geocoded(string) {}

// Pool resolves many addresses with a bounded number of concurrent
// lookups. Results are keyed by address, so completion order does not
// matter.
type Pool struct {
	geocoder Geocoder
	workers  int
	cache    Cache
	logger   *slog.Logger
	recorder Recorder
}

type PoolOptions struct {
	Workers  int
	Cache    Cache
	Logger   *slog.Logger
	Recorder Recorder
}

func NewPool(g Geocoder, opts PoolOptions) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	return &Pool{
		geocoder: g,
		workers:  opts.Workers,
		cache:    opts.Cache,
		logger:   opts.Logger,
		recorder: opts.Recorder,
	}
}

// Resolve looks up every distinct address. Per-address failures are
// returned in the second map and never abort the batch; only a cancelled
// ctx stops early.
func (p *Pool) Resolve(ctx context.Context, addresses []string) (map[string]Result, map[string]error) {
	var (
		mu       sync.Mutex
		results  = make(map[string]Result)
		failures = make(map[string]error)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	seen := make(map[string]struct{}, len(addresses))
	for _, addr := range addresses {
		if _, dup := seen[addr]; dup || strings.TrimSpace(addr) == "" {
			continue
		}
		seen[addr] = struct{}{}

		addr := addr
		g.Go(func() error {
			r, err := p.lookup(gctx, addr)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[addr] = err
				return nil
			}
			results[addr] = r
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) > 0 {
		p.logger.Warn("some addresses could not be geocoded",
			"resolved", len(results), "failed", len(failures))
	}
	return results, failures
}

func (p *Pool) lookup(ctx context.Context, addr string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	if p.cache != nil {
		r, ok, err := p.cache.Get(ctx, addr)
		if err != nil {
			p.logger.Warn("geocode cache read failed", "address", addr, "error", err)
		} else if ok {
			p.recorder.Geocoded("cache")
			return r, nil
		}
	}

	r, err := p.geocoder.Geocode(ctx, addr)
	if err != nil {
		p.recorder.Geocoded("failed")
		p.logger.Debug("geocode failed", "address", addr, "error", err)
		return Result{}, err
	}
	p.recorder.Geocoded("resolved")

	if p.cache != nil {
		if err := p.cache.Set(ctx, addr, r); err != nil {
			p.logger.Warn("geocode cache write failed", "address", addr, "error", err)
		}
	}
	return r, nil
}

// Address builds the search string for a resale record: block and street.
func Address(rec table.Record) string {
	block, _ := rec.String("block")
	street, _ := rec.String("street_name")
	return strings.TrimSpace(strings.TrimSpace(block) + " " + strings.TrimSpace(street))
}

// Annotate geocodes records that lack coordinates and returns copies with
// latitude, longitude and postal_code filled in. Records that cannot be
// resolved keep empty coordinates, for the join to filter out.
func (p *Pool) Annotate(ctx context.Context, records []table.Record) ([]table.Record, int) {
	var pending []string
	for _, rec := range records {
		if needsLookup(rec) {
			pending = append(pending, Address(rec))
		}
	}
	results, failures := p.Resolve(ctx, pending)

	out := make([]table.Record, len(records))
	for i, rec := range records {
		out[i] = rec
		if !needsLookup(rec) {
			continue
		}
		r, ok := results[Address(rec)]
		if !ok {
			continue
		}
		c := rec.Clone()
		c["latitude"] = r.Lat
		c["longitude"] = r.Lon
		if r.Postal != "" {
			c["postal_code"] = r.Postal
		}
		out[i] = c
	}
	return out, len(failures)
}

func needsLookup(rec table.Record) bool {
	return !rec.HasCoordinates("latitude", "longitude")
}
