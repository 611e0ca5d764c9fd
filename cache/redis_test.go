package cache

import (
	"context"
	"testing"
	"time"

	"github.com/moltasthornblom/beam/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestStreamListCacheRoundTrip(t *testing.T) {
	mr, client := newMiniRedis(t)
	c := NewStreamListCache(client, time.Minute)
	ctx := context.Background()

	_, ok := c.Get(ctx, "user-1", 10)
	assert.False(t, ok)

	gen, ok := c.Generation(ctx, "user-1")
	require.True(t, ok)
	assert.Equal(t, int64(0), gen)

	listing := []*model.Asset{
		{ID: "a2", OwnerID: "user-1", Status: model.StatusReady},
		{ID: "a1", OwnerID: "user-1", Status: model.StatusProcessing},
	}
	c.Set(ctx, "user-1", gen, 10, listing)

	got, ok := c.Get(ctx, "user-1", 10)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, "a2", got[0].ID)
	assert.Equal(t, model.StatusProcessing, got[1].Status)
	assert.Equal(t, time.Minute, mr.TTL(StreamListKey("user-1")))

	_, ok = c.Get(ctx, "user-1", 5)
	assert.False(t, ok, "other page sizes are cached separately")

	require.NoError(t, c.Invalidate(ctx, "user-1"))
	_, ok = c.Get(ctx, "user-1", 10)
	assert.False(t, ok)
	gen, ok = c.Generation(ctx, "user-1")
	require.True(t, ok)
	assert.Equal(t, int64(1), gen)
}

func TestStreamListCacheDropsListingReadBeforeInvalidate(t *testing.T) {
	_, client := newMiniRedis(t)
	c := NewStreamListCache(client, time.Minute)
	ctx := context.Background()

	gen, ok := c.Generation(ctx, "user-1")
	require.True(t, ok)
	require.NoError(t, c.Invalidate(ctx, "user-1"))

	c.Set(ctx, "user-1", gen, 10, []*model.Asset{{ID: "a1", Status: model.StatusProcessing}})
	_, ok = c.Get(ctx, "user-1", 10)
	assert.False(t, ok)

	// Other owners are unaffected.
	other, ok := c.Generation(ctx, "user-2")
	require.True(t, ok)
	c.Set(ctx, "user-2", other, 10, []*model.Asset{{ID: "b1"}})
	_, ok = c.Get(ctx, "user-2", 10)
	assert.True(t, ok)
}

func TestRedisWindowStoreCountsFixedWindow(t *testing.T) {
	mr, client := newMiniRedis(t)
	s := NewRedisWindowStore(client, "")
	ctx := context.Background()
	window := time.Minute

	for i := 0; i < 2; i++ {
		ok, _, err := s.Allow(ctx, "1.2.3.4", 2, window)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, retry, err := s.Allow(ctx, "1.2.3.4", 2, window)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, retry, time.Duration(0))
	assert.LessOrEqual(t, retry, window)

	ok, _, err = s.Allow(ctx, "5.6.7.8", 2, window)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(window)
	ok, _, err = s.Allow(ctx, "1.2.3.4", 2, window)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisWindowStoreRearmsMissingExpiry(t *testing.T) {
	mr, client := newMiniRedis(t)
	s := NewRedisWindowStore(client, "")
	window := time.Minute

	// A window whose expiry was never set.
	require.NoError(t, mr.Set("beam:ratelimit:1.2.3.4", "5"))

	ok, retry, err := s.Allow(context.Background(), "1.2.3.4", 2, window)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, window, retry)
	assert.Equal(t, window, mr.TTL("beam:ratelimit:1.2.3.4"))

	mr.FastForward(window)
	ok, _, err = s.Allow(context.Background(), "1.2.3.4", 2, window)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisEventsDelivery(t *testing.T) {
	mr, client := newMiniRedis(t)
	bus := NewRedisEvents(client)
	ctx := context.Background()

	events, cancel, err := bus.Subscribe(ctx, "a1")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, model.AssetEvent{AssetID: "a1", Type: model.EventJobStarted, Rendition: "854x480", Total: 4}))
	require.NoError(t, bus.Publish(ctx, model.AssetEvent{AssetID: "a1", Type: model.EventStalled, Total: 4}))

	for _, want := range []model.AssetEventType{model.EventJobStarted, model.EventStalled} {
		select {
		case ev := <-events:
			assert.Equal(t, want, ev.Type)
			assert.Equal(t, "a1", ev.AssetID)
		case <-time.After(2 * time.Second):
			t.Fatalf("no %s event", want)
		}
	}

	ev, ok := bus.Terminal(ctx, "a1")
	require.True(t, ok)
	assert.Equal(t, model.EventStalled, ev.Type)
	assert.Equal(t, terminalTTL, mr.TTL(TerminalKey("a1")))

	_, ok = bus.Terminal(ctx, "a2")
	assert.False(t, ok)

	cancel()
	select {
	case _, open := <-events:
		for open {
			_, open = <-events
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed after cancel")
	}
}

func TestLocalEventsRemembersTerminal(t *testing.T) {
	bus := NewLocalEvents()
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, model.AssetEvent{AssetID: "a1", Type: model.EventJobFailed}))
	_, ok := bus.Terminal(ctx, "a1")
	assert.False(t, ok)

	require.NoError(t, bus.Publish(ctx, model.AssetEvent{AssetID: "a1", Type: model.EventStalled}))
	ev, ok := bus.Terminal(ctx, "a1")
	require.True(t, ok)
	assert.Equal(t, model.EventStalled, ev.Type)
}
