package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roniherschmann/shorty-redirect/internal/core"
	"github.com/roniherschmann/shorty-redirect/internal/store"
)

func TestAggregator_CacheScenario(t *testing.T) {
	const ttl = 50 * time.Millisecond
	f := newFixture(t, ttl)
	l := f.link(t, core.NewLink{Code: "cache1"})
	ctx := context.Background()

	_, err := f.svc.Resolve(ctx, "cache1", "", visit("1.1.1.1"))
	require.NoError(t, err)

	// within the ttl the cached post-update values are served
	before := f.store.reads.Load()
	c, err := f.agg.CurrentCounters(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.TotalClicks)
	assert.Equal(t, int64(1), c.UniqueClicks)
	assert.Equal(t, before, f.store.reads.Load(), "store was read during ttl")

	time.Sleep(2 * ttl)

	after, err := f.agg.CurrentCounters(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, before+1, f.store.reads.Load())
	assert.GreaterOrEqual(t, after.TotalClicks, c.TotalClicks)

	// a miss does not warm the cache
	_, err = f.agg.CurrentCounters(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, before+2, f.store.reads.Load())
}

func TestAggregator_ApplyClickIsIdempotent(t *testing.T) {
	f := newFixture(t, time.Minute)
	l := f.link(t, core.NewLink{Code: "idem01"})
	ctx := context.Background()

	ev := store.ClickEvent{ID: "evt-1", LinkID: l.ID, IPAddress: "1.1.1.1", ClickedAt: time.Now().UTC()}
	require.NoError(t, f.rec.Record(ctx, ev))
	require.NoError(t, f.rec.Record(ctx, ev))

	c, err := f.agg.CurrentCounters(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.TotalClicks)
	assert.Equal(t, 1, f.store.ClickCount(l.ID))
}

// brokenCache fails every call; counters must still flow from the store.
type brokenCache struct{}

func (brokenCache) Get(context.Context, int64) (store.Counters, bool, error) {
	return store.Counters{}, false, assert.AnError
}

func (brokenCache) Put(context.Context, int64, store.Counters, time.Duration) error {
	return assert.AnError
}

func TestAggregator_CacheFailuresAreTolerated(t *testing.T) {
	st := store.NewMemory()
	l := &store.Link{ShortCode: "bc01", OriginalURL: "https://example.com", IsActive: true}
	require.NoError(t, st.CreateLink(context.Background(), l))
	agg := core.NewAggregator(st, brokenCache{}, time.Minute)
	rec := core.NewRecorder(st, agg)
	ctx := context.Background()

	require.NoError(t, rec.Record(ctx, store.ClickEvent{ID: "a", LinkID: l.ID, IPAddress: "1.1.1.1", ClickedAt: time.Now()}))
	c, err := agg.CurrentCounters(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.TotalClicks)
}

func TestRecorder_StoresFacets(t *testing.T) {
	f := newFixture(t, time.Minute)
	l := f.link(t, core.NewLink{Code: "facet1"})

	var seen store.ClickEvent
	rec := core.NewRecorder(clickLogFunc(func(ctx context.Context, ev store.ClickEvent) (bool, error) {
		seen = ev
		return f.store.AppendClick(ctx, ev)
	}), f.agg)
	require.NoError(t, rec.Record(context.Background(), store.ClickEvent{
		ID:        "facet-evt",
		LinkID:    l.ID,
		IPAddress: "1.1.1.1",
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
		ClickedAt: time.Now(),
	}))
	assert.Equal(t, core.DeviceDesktop, seen.Device)
	assert.Equal(t, "Firefox", seen.Browser)
	assert.Equal(t, "Linux", seen.OS)
}

func TestRecorder_AppendFailure(t *testing.T) {
	f := newFixture(t, time.Minute)
	rec := core.NewRecorder(clickLogFunc(func(context.Context, store.ClickEvent) (bool, error) {
		return false, assert.AnError
	}), f.agg)
	err := rec.Record(context.Background(), store.ClickEvent{ID: "x", LinkID: 1})
	assert.ErrorIs(t, err, assert.AnError)
}

type clickLogFunc func(ctx context.Context, ev store.ClickEvent) (bool, error)

func (f clickLogFunc) AppendClick(ctx context.Context, ev store.ClickEvent) (bool, error) {
	return f(ctx, ev)
}
