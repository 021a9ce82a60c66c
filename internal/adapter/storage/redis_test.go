package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *RedisAdapter {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisAdapter(client)
}

func TestSetIdempotency_FirstClaimWins(t *testing.T) {
	adapter := newTestRedis(t)
	ctx := context.Background()

	ok, err := adapter.SetIdempotency(ctx, "transfer:req-1")
	require.NoError(t, err)
	require.True(t, ok, "first claim should succeed")

	ok, err = adapter.SetIdempotency(ctx, "transfer:req-1")
	require.NoError(t, err)
	require.False(t, ok, "second claim should be rejected")
}

func TestSetIdempotency_DistinctKeys(t *testing.T) {
	adapter := newTestRedis(t)
	ctx := context.Background()

	ok, err := adapter.SetIdempotency(ctx, "transfer:req-1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = adapter.SetIdempotency(ctx, "transfer:req-2")
	require.NoError(t, err)
	require.True(t, ok, "a different request id is a different claim")
}

func TestSetIdempotency_Concurrent(t *testing.T) {
	adapter := newTestRedis(t)
	ctx := context.Background()

	var successCount atomic.Int32
	var wg sync.WaitGroup
	concurrency := 50

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := adapter.SetIdempotency(ctx, "transfer:contended")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				successCount.Add(1)
			}
		}()
	}

	wg.Wait()

	require.EqualValues(t, 1, successCount.Load(), "exactly one claim should win")
}
