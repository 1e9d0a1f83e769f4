package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/webauth-service/internal/core/domain"
)

func newTestFlashStore(t *testing.T) (*RedisFlashStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewFlashStore(client, 24*time.Hour), mr
}

func TestFlashStorePushConsumeOrder(t *testing.T) {
	store, _ := newTestFlashStore(t)
	ctx := context.Background()

	require.NoError(t, store.Push(ctx, "tok", domain.Flash{Category: domain.FlashError, Text: "first"}))
	require.NoError(t, store.Push(ctx, "tok", domain.Flash{Category: domain.FlashSuccess, Text: "second"}))

	flashes, err := store.Consume(ctx, "tok")
	require.NoError(t, err)
	require.Len(t, flashes, 2)
	assert.Equal(t, domain.Flash{Category: domain.FlashError, Text: "first"}, flashes[0])
	assert.Equal(t, domain.Flash{Category: domain.FlashSuccess, Text: "second"}, flashes[1])
}

func TestFlashStoreSingleRead(t *testing.T) {
	store, _ := newTestFlashStore(t)
	ctx := context.Background()

	require.NoError(t, store.Push(ctx, "tok", domain.Flash{Category: domain.FlashError, Text: "once"}))

	first, err := store.Consume(ctx, "tok")
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := store.Consume(ctx, "tok")
	require.NoError(t, err)
	assert.Empty(t, second, "a flash is observed by exactly one response")
}

func TestFlashStoreConsumeEmpty(t *testing.T) {
	store, _ := newTestFlashStore(t)

	flashes, err := store.Consume(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Empty(t, flashes)
}

func TestFlashStoreIsolatedPerSession(t *testing.T) {
	store, _ := newTestFlashStore(t)
	ctx := context.Background()

	require.NoError(t, store.Push(ctx, "a", domain.Flash{Category: domain.FlashError, Text: "for a"}))
	require.NoError(t, store.Push(ctx, "b", domain.Flash{Category: domain.FlashError, Text: "for b"}))

	flashes, err := store.Consume(ctx, "a")
	require.NoError(t, err)
	require.Len(t, flashes, 1)
	assert.Equal(t, "for a", flashes[0].Text)

	flashes, err = store.Consume(ctx, "b")
	require.NoError(t, err)
	require.Len(t, flashes, 1)
	assert.Equal(t, "for b", flashes[0].Text)
}

func TestFlashStoreEntriesExpire(t *testing.T) {
	store, mr := newTestFlashStore(t)
	ctx := context.Background()

	require.NoError(t, store.Push(ctx, "tok", domain.Flash{Category: domain.FlashError, Text: "stale"}))
	require.Greater(t, mr.TTL("flash:tok"), time.Duration(0), "flash queue carries a TTL")

	mr.FastForward(25 * time.Hour)

	flashes, err := store.Consume(ctx, "tok")
	require.NoError(t, err)
	assert.Empty(t, flashes)
}
