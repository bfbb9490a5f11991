package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// Link is a shortened link as owned by the admin API. The redirect path only
// reads it.
type Link struct {
	ID           int64
	ShortCode    string
	OriginalURL  string
	Title        string
	Description  string
	Domain       string
	IsActive     bool
	ExpiresAt    *time.Time
	PasswordHash string
	MaxClicks    int64 // 0 means no quota
	CreatedAt    time.Time
}

func (l *Link) HasPassword() bool { return l.PasswordHash != "" }

// ClickEvent is one recorded redirect. ID is assigned before the event is
// queued so retried writes can be recognised.
type ClickEvent struct {
	ID        string
	LinkID    int64
	IPAddress string
	UserAgent string
	Device    string
	Browser   string
	OS        string
	Referer   string
	ClickedAt time.Time
}

// Counters is the running click total for one link.
type Counters struct {
	TotalClicks  int64      `json:"totalClicks"`
	UniqueClicks int64      `json:"uniqueClicks"`
	LastClickAt  *time.Time `json:"lastClickAt,omitempty"`
}

type Store interface {
	FindLinkByShortCode(ctx context.Context, code string) (*Link, error)
	FindLinkByID(ctx context.Context, id int64) (*Link, error)
	// CreateLink is used by the seed tool and tests; the admin API owns
	// link writes in production.
	CreateLink(ctx context.Context, l *Link) error

	// AppendClick stores ev and reports whether it is the first click from
	// ev.IPAddress for ev.LinkID. Appending an event ID that already exists
	// is a no-op that returns the uniqueness decided the first time.
	AppendClick(ctx context.Context, ev ClickEvent) (unique bool, err error)
	// ApplyClick folds a stored event into the link's counters. It is
	// idempotent per event ID and returns the counters after the update.
	ApplyClick(ctx context.Context, ev ClickEvent, unique bool) (Counters, error)
	// Counters returns the authoritative counters; a link without clicks
	// yields zero counters.
	Counters(ctx context.Context, linkID int64) (Counters, error)

	Ping(ctx context.Context) error
	Close() error
}
