package core

import (
	"context"
	"fmt"

	"github.com/roniherschmann/shorty-redirect/internal/metrics"
	"github.com/roniherschmann/shorty-redirect/internal/store"
)

// ClickLog stores click events. AppendClick reports whether the event's IP
// was seen for the first time on its link and must return the same answer
// when an event is appended twice.
type ClickLog interface {
	AppendClick(ctx context.Context, ev store.ClickEvent) (bool, error)
}

// Recorder persists one click and folds it into the counters.
type Recorder struct {
	clicks ClickLog
	agg    *Aggregator
}

func NewRecorder(clicks ClickLog, agg *Aggregator) *Recorder {
	return &Recorder{clicks: clicks, agg: agg}
}

// Record is safe to call again for an event whose earlier attempt failed
// part way: both the append and the counter update are keyed by ev.ID.
func (r *Recorder) Record(ctx context.Context, ev store.ClickEvent) error {
	f := ParseUserAgent(ev.UserAgent)
	ev.Device, ev.Browser, ev.OS = f.Device, f.Browser, f.OS

	unique, err := r.clicks.AppendClick(ctx, ev)
	if err != nil {
		return fmt.Errorf("append click: %w", err)
	}
	if _, err := r.agg.ApplyClick(ctx, ev, unique); err != nil {
		return err
	}
	metrics.ClicksRecorded.Inc()
	return nil
}
