package geocode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"web/resalegeo/retry"
	"web/resalegeo/table"
)

func testRetry() retry.Policy {
	return retry.Policy{Attempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestClientGeocode(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/post/getToken":
			fmt.Fprint(w, `{"access_token":"tok-123"}`)
		case "/common/elastic/search":
			n := atomic.AddInt32(&calls, 1)
			if n == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
			assert.Equal(t, "406 ANG MO KIO AVE 10", r.URL.Query().Get("searchVal"))
			assert.Equal(t, "Y", r.URL.Query().Get("returnGeom"))
			fmt.Fprint(w, `{"found":1,"results":[{"LATITUDE":"1.36200","LONGITUDE":"103.85380","POSTAL":"560406"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{
		BaseURL:           srv.URL,
		Email:             "user@example.com",
		Password:          "secret",
		RequestsPerSecond: 1000,
		Retry:             testRetry(),
	}, srv.Client())

	r, err := c.Geocode(context.Background(), "406 ANG MO KIO AVE 10")
	require.NoError(t, err)
	assert.InDelta(t, 1.362, r.Lat, 1e-9)
	assert.InDelta(t, 103.8538, r.Lon, 1e-9)
	assert.Equal(t, "560406", r.Postal)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClientNotFoundIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"found":0,"results":[]}`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Token: "t", RequestsPerSecond: 1000, Retry: testRetry()}, srv.Client())
	_, err := c.Geocode(context.Background(), "NOWHERE")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClientGivesUpAfterThreeAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Token: "t", RequestsPerSecond: 1000, Retry: testRetry()}, srv.Client())
	_, err := c.Geocode(context.Background(), "1 TAMPINES ST 11")
	assert.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

type fakeGeocoder struct {
	mu       sync.Mutex
	active   int
	peak     int
	calls    map[string]int
	failures map[string]bool
}

func (f *fakeGeocoder) Geocode(ctx context.Context, address string) (Result, error) {
	f.mu.Lock()
	f.active++
	if f.active > f.peak {
		f.peak = f.active
	}
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[address]++
	fail := f.failures[address]
	f.mu.Unlock()

	time.Sleep(2 * time.Millisecond)

	f.mu.Lock()
	f.active--
	f.mu.Unlock()

	if fail {
		return Result{}, ErrNotFound
	}
	return Result{Address: address, Lat: 1.3, Lon: 103.8 + float64(len(address))/1000}, nil
}

func TestPoolResolveBoundedAndKeyed(t *testing.T) {
	g := &fakeGeocoder{failures: map[string]bool{"BAD ADDRESS": true}}
	p := NewPool(g, PoolOptions{Workers: 3})

	var addresses []string
	for i := 0; i < 20; i++ {
		addresses = append(addresses, fmt.Sprintf("%d BEDOK NTH RD", i))
	}
	addresses = append(addresses, addresses[0], "BAD ADDRESS", "")

	results, failures := p.Resolve(context.Background(), addresses)
	assert.Len(t, results, 20)
	require.Len(t, failures, 1)
	assert.True(t, errors.Is(failures["BAD ADDRESS"], ErrNotFound))
	assert.LessOrEqual(t, g.peak, 3)
	assert.Equal(t, 1, g.calls[addresses[0]])
}

func TestPoolUsesCache(t *testing.T) {
	g := &fakeGeocoder{}
	cache := NewMemoryCache()
	require.NoError(t, cache.Set(context.Background(), "10  pasir ris dr 1", Result{Lat: 1.37, Lon: 103.95}))

	p := NewPool(g, PoolOptions{Workers: 2, Cache: cache})
	results, _ := p.Resolve(context.Background(), []string{"10 PASIR RIS DR 1", "20 PASIR RIS DR 1"})

	assert.Equal(t, 1.37, results["10 PASIR RIS DR 1"].Lat)
	assert.Equal(t, 0, g.calls["10 PASIR RIS DR 1"])
	assert.Equal(t, 2, cache.Len())
}

func TestAnnotate(t *testing.T) {
	g := &fakeGeocoder{failures: map[string]bool{"9 UNKNOWN ST": true}}
	p := NewPool(g, PoolOptions{Workers: 2})

	records := []table.Record{
		{"block": "406", "street_name": "ANG MO KIO AVE 10"},
		{"block": "9", "street_name": "UNKNOWN ST"},
		{"block": "1", "street_name": "X", "latitude": 1.29, "longitude": 103.85},
	}
	out, failed := p.Annotate(context.Background(), records)

	assert.Equal(t, 1, failed)
	assert.Equal(t, 1.3, out[0]["latitude"])
	assert.NotContains(t, records[0], "latitude")
	assert.NotContains(t, out[1], "latitude")
	assert.Equal(t, 1.29, out[2]["latitude"])
	assert.Equal(t, 0, g.calls["1 X"])
}

func TestAddress(t *testing.T) {
	assert.Equal(t, "406 ANG MO KIO AVE 10", Address(table.Record{"block": " 406", "street_name": "ANG MO KIO AVE 10 "}))
	assert.Equal(t, "12 CHAI CHEE RD", Address(table.Record{"block": 12.0, "street_name": "CHAI CHEE RD"}))
}
