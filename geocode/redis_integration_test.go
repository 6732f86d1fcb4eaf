//go:build integration

package geocode

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available at %s: %v", addr, err)
	}

	cache := NewRedisCache(rdb, "geocode-test:", time.Minute)
	_, ok, err := cache.Get(ctx, "does not exist")
	require.NoError(t, err)
	assert.False(t, ok)

	want := Result{Address: "406 ANG MO KIO AVE 10", Lat: 1.362, Lon: 103.8538, Postal: "560406"}
	require.NoError(t, cache.Set(ctx, want.Address, want))

	got, ok, err := cache.Get(ctx, "406 ang mo kio ave 10")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)
}
