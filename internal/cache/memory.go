package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/roniherschmann/shorty-redirect/internal/store"
)

// Memory is an in-process stats cache. Expired entries are never returned;
// the janitor sweeps them every cleanup interval.
type Memory struct {
	mu sync.Mutex // serialises Put's compare-and-set
	c  *gocache.Cache
}

func NewMemory(cleanupInterval time.Duration) *Memory {
	return &Memory{c: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func memKey(linkID int64) string { return strconv.FormatInt(linkID, 10) }

func (m *Memory) Get(_ context.Context, linkID int64) (store.Counters, bool, error) {
	v, ok := m.c.Get(memKey(linkID))
	if !ok {
		return store.Counters{}, false, nil
	}
	return clone(v.(store.Counters)), true, nil
}

// Put stores c unless a live entry already holds a higher total.
func (m *Memory) Put(_ context.Context, linkID int64, c store.Counters, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memKey(linkID)
	if v, ok := m.c.Get(k); ok && v.(store.Counters).TotalClicks > c.TotalClicks {
		return nil
	}
	m.c.Set(k, clone(c), ttl)
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func clone(c store.Counters) store.Counters {
	if c.LastClickAt != nil {
		t := *c.LastClickAt
		c.LastClickAt = &t
	}
	return c
}
