package core

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/roniherschmann/shorty-redirect/internal/metrics"
	"github.com/roniherschmann/shorty-redirect/internal/store"
)

const DefaultStatsTTL = 5 * time.Minute

// StatsStore is the durable home of per-link counters.
type StatsStore interface {
	ApplyClick(ctx context.Context, ev store.ClickEvent, unique bool) (store.Counters, error)
	Counters(ctx context.Context, linkID int64) (store.Counters, error)
}

// StatsCache holds short-lived copies of counters. Implementations must not
// return expired entries and must not replace an entry with a lower total.
type StatsCache interface {
	Get(ctx context.Context, linkID int64) (store.Counters, bool, error)
	Put(ctx context.Context, linkID int64, c store.Counters, ttl time.Duration) error
}

// Aggregator keeps the durable counters and the stats cache in step.
type Aggregator struct {
	stats StatsStore
	cache StatsCache
	ttl   time.Duration
}

func NewAggregator(stats StatsStore, cache StatsCache, ttl time.Duration) *Aggregator {
	if ttl <= 0 {
		ttl = DefaultStatsTTL
	}
	return &Aggregator{stats: stats, cache: cache, ttl: ttl}
}

// ApplyClick bumps the counters for ev and refreshes the cache with the
// committed values. A failed cache write is logged, not returned.
func (a *Aggregator) ApplyClick(ctx context.Context, ev store.ClickEvent, unique bool) (store.Counters, error) {
	c, err := a.stats.ApplyClick(ctx, ev, unique)
	if err != nil {
		return store.Counters{}, fmt.Errorf("apply click: %w", err)
	}
	if err := a.cache.Put(ctx, ev.LinkID, c, a.ttl); err != nil {
		metrics.CacheErrors.WithLabelValues("put").Inc()
		log.Warn().Err(err).Int64("link_id", ev.LinkID).Msg("stats cache put")
	}
	return c, nil
}

// CurrentCounters serves from the cache when it can and falls back to the
// store. A miss does not populate the cache; only writes do.
func (a *Aggregator) CurrentCounters(ctx context.Context, linkID int64) (store.Counters, error) {
	c, ok, err := a.cache.Get(ctx, linkID)
	switch {
	case err != nil:
		metrics.CacheErrors.WithLabelValues("get").Inc()
		log.Warn().Err(err).Int64("link_id", linkID).Msg("stats cache get")
	case ok:
		metrics.CacheHit.WithLabelValues("stats").Inc()
		return c, nil
	}
	metrics.CacheMiss.WithLabelValues("stats").Inc()
	c, err = a.stats.Counters(ctx, linkID)
	if err != nil {
		return store.Counters{}, fmt.Errorf("read counters: %w", err)
	}
	return c, nil
}
