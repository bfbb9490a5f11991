package core_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roniherschmann/shorty-redirect/internal/cache"
	"github.com/roniherschmann/shorty-redirect/internal/core"
	"github.com/roniherschmann/shorty-redirect/internal/store"
)

// syncSink records clicks inline so tests can assert on counters right
// after Resolve returns.
type syncSink struct {
	t   *testing.T
	rec *core.Recorder
}

func (s syncSink) Submit(ev store.ClickEvent) bool {
	require.NoError(s.t, s.rec.Record(context.Background(), ev))
	return true
}

// countingStats counts reads that reach the durable store.
type countingStats struct {
	*store.Memory
	reads atomic.Int64
}

func (c *countingStats) Counters(ctx context.Context, linkID int64) (store.Counters, error) {
	c.reads.Add(1)
	return c.Memory.Counters(ctx, linkID)
}

type fixture struct {
	store *countingStats
	cache *cache.Memory
	agg   *core.Aggregator
	rec   *core.Recorder
	svc   *core.Service
}

func newFixture(t *testing.T, ttl time.Duration) *fixture {
	t.Helper()
	st := &countingStats{Memory: store.NewMemory()}
	c := cache.NewMemory(time.Minute)
	agg := core.NewAggregator(st, c, ttl)
	rec := core.NewRecorder(st, agg)
	svc := core.NewService(st, agg, syncSink{t: t, rec: rec}, core.BcryptVerifier{})
	return &fixture{store: st, cache: c, agg: agg, rec: rec, svc: svc}
}

func (f *fixture) link(t *testing.T, n core.NewLink) *store.Link {
	t.Helper()
	if n.Target == "" {
		n.Target = "https://example.com/" + n.Code
	}
	l, err := f.svc.CreateLink(context.Background(), n)
	require.NoError(t, err)
	return l
}

func visit(ip string) core.Visit {
	return core.Visit{IP: ip, UserAgent: "Mozilla/5.0 (Windows NT 10.0) Chrome/120.0", Referer: "https://ref.example"}
}
