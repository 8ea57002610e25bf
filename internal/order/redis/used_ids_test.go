package redis

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-service-orders/internal/config"
	"ms-service-orders/internal/logger"
	"ms-service-orders/internal/orderid"
)

// setupTestRedis creates a Redis client backed by miniredis.
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := Connect(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to connect to miniredis: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func newTestSet(t *testing.T) (*UsedIDs, *miniredis.Miniredis) {
	client, mr := setupTestRedis(t)
	return NewUsedIDs(client, "test:used_ids", logger.NewWithWriter(&bytes.Buffer{})), mr
}

func TestSaveAndLoadUsedIDs(t *testing.T) {
	set, mr := newTestSet(t)
	ctx := context.Background()

	ids, err := set.LoadUsedIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, set.SaveUsedIDs(ctx, []string{"777", "101", "450"}))
	ids, err = set.LoadUsedIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"101", "450", "777"}, ids)

	require.NoError(t, set.SaveUsedIDs(ctx, nil))
	assert.False(t, mr.Exists("test:used_ids"))
}

func TestClaim_OnlyFirstCallerWins(t *testing.T) {
	set, _ := newTestSet(t)
	ctx := context.Background()

	ok, err := set.Claim(ctx, "123")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = set.Claim(ctx, "123")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClaim_ConnectionError(t *testing.T) {
	set, mr := newTestSet(t)
	mr.Close()

	_, err := set.Claim(context.Background(), "123")
	assert.Error(t, err)
}

// Two allocators in different "processes" share one Redis set and must never hand out the same id.
func TestSharedAllocatorsNeverCollide(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()
	log := logger.NewWithWriter(&bytes.Buffer{})

	a1 := orderid.NewAllocator(NewUsedIDs(client, "shared", log), log, orderid.WithSeed(3))
	a2 := orderid.NewAllocator(NewUsedIDs(client, "shared", log), log, orderid.WithSeed(3))
	require.NoError(t, a1.Initialize(ctx))
	require.NoError(t, a2.Initialize(ctx))

	var mu sync.Mutex
	var wg sync.WaitGroup
	seen := make(map[string]int)

	for _, a := range []*orderid.Allocator{a1, a2} {
		wg.Add(1)
		go func(a *orderid.Allocator) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id, err := a.Allocate(ctx)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				seen[id]++
				mu.Unlock()
			}
		}(a)
	}
	wg.Wait()

	assert.Len(t, seen, 400)
	members, err := client.SCard(ctx, "shared").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(400), members)
}
