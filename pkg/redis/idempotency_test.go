package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*IdempotencyStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewIdempotencyStore(rdb, time.Hour), mr
}

func TestReserveBindReplay(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	first, err := store.Reserve(ctx, "Asha@X.com", "k1")
	require.NoError(t, err)
	assert.True(t, first.Acquired)
	assert.Equal(t, "donation:idem:asha@x.com:k1", first.Key)

	second, err := store.Reserve(ctx, "asha@x.com", "k1")
	require.NoError(t, err)
	assert.True(t, second.InProgress())

	require.NoError(t, store.Bind(ctx, first, "order_1"))

	third, err := store.Reserve(ctx, "asha@x.com", "k1")
	require.NoError(t, err)
	assert.False(t, third.Acquired)
	assert.Equal(t, "order_1", third.OrderID)

	assert.Greater(t, mr.TTL(first.Key), time.Duration(0))
}

func TestReleaseOnlyOwnReservation(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	res, err := store.Reserve(ctx, "a@b.co", "k1")
	require.NoError(t, err)

	// 占位过期后被别的请求拿走
	mr.FastForward(2 * time.Hour)
	other, err := store.Reserve(ctx, "a@b.co", "k1")
	require.NoError(t, err)
	require.True(t, other.Acquired)

	require.NoError(t, store.Release(ctx, res))
	assert.True(t, mr.Exists(res.Key), "stale release must not delete the new reservation")

	require.NoError(t, store.Release(ctx, other))
	assert.False(t, mr.Exists(res.Key))
}

func TestBindAfterLosingReservationIsNoop(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	res, err := store.Reserve(ctx, "a@b.co", "k1")
	require.NoError(t, err)
	mr.Del(res.Key)

	require.NoError(t, store.Bind(ctx, res, "order_1"))
	assert.False(t, mr.Exists(res.Key))
}

func TestReserveRedisDown(t *testing.T) {
	rdb := rd.NewClient(&rd.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	store := NewIdempotencyStore(rdb, time.Hour)

	_, err := store.Reserve(context.Background(), "a@b.co", "k1")
	assert.Error(t, err)
}

func TestTakeoverBoundKey(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	first, err := store.Reserve(ctx, "a@b.co", "k1")
	require.NoError(t, err)
	require.NoError(t, store.Bind(ctx, first, "order_1"))

	bound, err := store.Reserve(ctx, "a@b.co", "k1")
	require.NoError(t, err)
	require.Equal(t, "order_1", bound.OrderID)

	taken, err := store.Takeover(ctx, bound)
	require.NoError(t, err)
	require.True(t, taken.Acquired)

	// 第二个并发请求看到的还是旧绑定，接管失败
	again, err := store.Takeover(ctx, bound)
	require.NoError(t, err)
	assert.False(t, again.Acquired)
	assert.True(t, again.InProgress())

	require.NoError(t, store.Bind(ctx, taken, "order_2"))
	next, err := store.Reserve(ctx, "a@b.co", "k1")
	require.NoError(t, err)
	assert.Equal(t, "order_2", next.OrderID)
	assert.Greater(t, mr.TTL(first.Key), time.Duration(0))
}
