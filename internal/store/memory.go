package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type visitorKey struct {
	linkID int64
	ip     string
}

type memClick struct {
	ev      ClickEvent
	unique  bool
	counted bool
}

// Memory keeps everything in process. It backs local runs and tests.
type Memory struct {
	mu       sync.Mutex
	nextID   int64
	links    map[int64]*Link
	byCode   map[string]int64
	clicks   map[string]*memClick
	visitors map[visitorKey]string
	stats    map[int64]Counters
}

func NewMemory() *Memory {
	return &Memory{
		links:    make(map[int64]*Link),
		byCode:   make(map[string]int64),
		clicks:   make(map[string]*memClick),
		visitors: make(map[visitorKey]string),
		stats:    make(map[int64]Counters),
	}
}

func (m *Memory) FindLinkByShortCode(_ context.Context, code string) (*Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byCode[code]
	if !ok {
		return nil, ErrNotFound
	}
	l := *m.links[id]
	return &l, nil
}

func (m *Memory) FindLinkByID(_ context.Context, id int64) (*Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *Memory) CreateLink(_ context.Context, l *Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byCode[l.ShortCode]; exists {
		return fmt.Errorf("insert link: short code %q already exists", l.ShortCode)
	}
	m.nextID++
	l.ID = m.nextID
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	cp := *l
	m.links[l.ID] = &cp
	m.byCode[l.ShortCode] = l.ID
	return nil
}

func (m *Memory) AppendClick(_ context.Context, ev ClickEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.clicks[ev.ID]; ok {
		return c.unique, nil
	}
	if _, ok := m.links[ev.LinkID]; !ok {
		return false, fmt.Errorf("insert click: link %d: %w", ev.LinkID, ErrNotFound)
	}
	key := visitorKey{linkID: ev.LinkID, ip: ev.IPAddress}
	_, seen := m.visitors[key]
	if !seen {
		m.visitors[key] = ev.ID
	}
	m.clicks[ev.ID] = &memClick{ev: ev, unique: !seen}
	return !seen, nil
}

func (m *Memory) ApplyClick(_ context.Context, ev ClickEvent, unique bool) (Counters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clicks[ev.ID]
	if !ok || c.counted {
		return copyCounters(m.stats[ev.LinkID]), nil
	}
	c.counted = true

	st := m.stats[ev.LinkID]
	st.TotalClicks++
	if unique {
		st.UniqueClicks++
	}
	at := ev.ClickedAt.UTC()
	if st.LastClickAt == nil || at.After(*st.LastClickAt) {
		st.LastClickAt = &at
	}
	m.stats[ev.LinkID] = st
	return copyCounters(st), nil
}

func (m *Memory) Counters(_ context.Context, linkID int64) (Counters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyCounters(m.stats[linkID]), nil
}

// ClickCount reports how many events are stored for linkID.
func (m *Memory) ClickCount(linkID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.clicks {
		if c.ev.LinkID == linkID {
			n++
		}
	}
	return n
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

func copyCounters(c Counters) Counters {
	if c.LastClickAt != nil {
		t := *c.LastClickAt
		c.LastClickAt = &t
	}
	return c
}
