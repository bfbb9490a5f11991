package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/roniherschmann/shorty-redirect/internal/metrics"
	"github.com/roniherschmann/shorty-redirect/internal/store"
)

// ClickRecorder is what the queue workers drive. *Recorder implements it.
type ClickRecorder interface {
	Record(ctx context.Context, ev store.ClickEvent) error
}

type QueueOptions struct {
	Size        int
	Workers     int
	Timeout     time.Duration // per attempt
	MaxAttempts int
	Backoff     time.Duration // doubled after every failed attempt
	OnFailure   func(*TelemetryError)
}

func (o *QueueOptions) defaults() {
	if o.Size <= 0 {
		o.Size = 10000
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = 100 * time.Millisecond
	}
}

// ClickQueue hands click events to a fixed pool of workers so the redirect
// path never waits on the store. When the buffer is full events are dropped
// and counted.
type ClickQueue struct {
	rec  ClickRecorder
	opts QueueOptions
	ch   chan store.ClickEvent

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

func NewClickQueue(rec ClickRecorder, opts QueueOptions) *ClickQueue {
	opts.defaults()
	return &ClickQueue{
		rec:  rec,
		opts: opts,
		ch:   make(chan store.ClickEvent, opts.Size),
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (q *ClickQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
}

// Submit enqueues ev without blocking. It reports false when ev was dropped.
func (q *ClickQueue) Submit(ev store.ClickEvent) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		metrics.ClicksDropped.Inc()
		return false
	}
	select {
	case q.ch <- ev:
		metrics.ClickQueueDepth.Inc()
		return true
	default:
		// Drop if buffer full to keep redirect fast
		metrics.ClicksDropped.Inc()
		log.Warn().Int64("link_id", ev.LinkID).Str("event_id", ev.ID).Msg("click queue full, dropping event")
		return false
	}
}

// Len is the number of events waiting for a worker.
func (q *ClickQueue) Len() int { return len(q.ch) }

// Shutdown stops accepting events and waits for the workers to drain the
// buffer, or for ctx to end.
func (q *ClickQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	started := q.started
	q.mu.Unlock()
	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *ClickQueue) worker() {
	defer q.wg.Done()
	for ev := range q.ch {
		metrics.ClickQueueDepth.Dec()
		q.process(ev)
	}
}

func (q *ClickQueue) process(ev store.ClickEvent) {
	start := time.Now()
	defer func() { metrics.TelemetryDuration.Observe(time.Since(start).Seconds()) }()

	backoff := q.opts.Backoff
	var err error
	for attempt := 1; attempt <= q.opts.MaxAttempts; attempt++ {
		// not derived from the request context
		ctx, cancel := context.WithTimeout(context.Background(), q.opts.Timeout)
		err = q.rec.Record(ctx, ev)
		cancel()
		if err == nil {
			return
		}
		if attempt == q.opts.MaxAttempts {
			break
		}
		metrics.TelemetryRetries.Inc()
		log.Debug().Err(err).Int("attempt", attempt).Str("event_id", ev.ID).Msg("record click, retrying")
		time.Sleep(backoff)
		backoff *= 2
	}

	te := &TelemetryError{EventID: ev.ID, LinkID: ev.LinkID, Attempts: q.opts.MaxAttempts, Err: err}
	metrics.TelemetryFailures.Inc()
	log.Error().Err(err).Str("event_id", ev.ID).Int64("link_id", ev.LinkID).Int("attempts", te.Attempts).Msg("record click")
	if q.opts.OnFailure != nil {
		q.opts.OnFailure(te)
	}
}
