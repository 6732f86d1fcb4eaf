// Package retry runs an operation with bounded attempts and exponential
// backoff. Each attempt can be given its own deadline.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

var (
	jitterMu  sync.Mutex
	jitterRNG = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// PermanentError marks a failure that another attempt cannot fix, such as
// a 4xx response.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so Do returns it without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

type Policy struct {
	Attempts     int           `yaml:"attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	// Timeout bounds each attempt. Zero leaves only the caller's deadline.
	Timeout time.Duration `yaml:"timeout"`
	Jitter  bool          `yaml:"jitter"`
	// OnRetry is called before sleeping after a failed attempt.
	OnRetry func(attempt int, err error) `yaml:"-"`
}

// DefaultPolicy is three attempts, 500ms doubling, 10s per attempt.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:     3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Multiplier:   2,
		Timeout:      10 * time.Second,
		Jitter:       true,
	}
}

func (p Policy) normalized() (Policy, error) {
	if p.InitialDelay < 0 || p.MaxDelay < 0 || p.Multiplier < 0 || p.Timeout < 0 {
		return p, errors.New("retry: negative policy value")
	}
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if p.InitialDelay == 0 {
		p.InitialDelay = 100 * time.Millisecond
	}
	if p.MaxDelay == 0 {
		p.MaxDelay = 5 * time.Second
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	return p, nil
}

// Backoff returns the sleep after the given failed attempt (1-based),
// without jitter.
func (p Policy) Backoff(attempt int) time.Duration {
	p, _ = p.normalized()
	d := float64(p.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
		if d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	return time.Duration(d)
}

// Do calls fn until it succeeds, returns a permanent error, the attempts
// run out or ctx is done. Each call receives a context bounded by
// p.Timeout.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	p, err := p.normalized()
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		lastErr = call(ctx, p.Timeout, fn)
		if lastErr == nil {
			return nil
		}
		if IsPermanent(lastErr) {
			return lastErr
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry: cancelled after attempt %d: %w", attempt, ctx.Err())
		}
		if attempt == p.Attempts {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, lastErr)
		}

		sleep := p.Backoff(attempt)
		if p.Jitter && sleep >= 4 {
			jitterMu.Lock()
			sleep += time.Duration(jitterRNG.Int63n(int64(sleep / 4)))
			jitterMu.Unlock()
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry: cancelled during backoff: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("retry: %d attempts failed: %w", p.Attempts, lastErr)
}

func call(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
