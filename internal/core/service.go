package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roniherschmann/shorty-redirect/internal/store"
)

type LinkStore interface {
	FindLinkByShortCode(ctx context.Context, code string) (*store.Link, error)
	FindLinkByID(ctx context.Context, id int64) (*store.Link, error)
	CreateLink(ctx context.Context, l *store.Link) error
}

// ClickSink accepts click events for asynchronous recording. Submit must not
// block; it reports false when the event was dropped.
type ClickSink interface {
	Submit(ev store.ClickEvent) bool
}

// Visit carries the request facts recorded with a successful redirect.
type Visit struct {
	IP        string
	UserAgent string
	Referer   string
}

type Preview struct {
	ShortCode        string    `json:"shortCode"`
	OriginalURL      string    `json:"originalUrl"`
	Title            string    `json:"title"`
	Description      string    `json:"description,omitempty"`
	Domain           string    `json:"domain,omitempty"`
	IsActive         bool      `json:"isActive"`
	RequiresPassword bool      `json:"requiresPassword"`
	TotalClicks      int64     `json:"totalClicks"`
	CreatedAt        time.Time `json:"createdAt"`
}

type Service struct {
	links     LinkStore
	agg       *Aggregator
	clicks    ClickSink
	passwords PasswordVerifier
	now       func() time.Time
	newID     func() string
}

func NewService(links LinkStore, agg *Aggregator, clicks ClickSink, passwords PasswordVerifier) *Service {
	if passwords == nil {
		passwords = BcryptVerifier{}
	}
	return &Service{
		links:     links,
		agg:       agg,
		clicks:    clicks,
		passwords: passwords,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// SetClock replaces the time source used for expiry checks and click
// timestamps.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) findLink(ctx context.Context, code string) (*store.Link, error) {
	l, err := s.links.FindLinkByShortCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find link %q: %w", code, err)
	}
	return l, nil
}

// Resolve runs the redirect gates for code and returns the target URL. A
// disabled link is indistinguishable from a missing one, and a wrong
// password from a missing one. The click is queued, never awaited.
func (s *Service) Resolve(ctx context.Context, code, password string, v Visit) (string, error) {
	l, err := s.findLink(ctx, code)
	if err != nil {
		return "", err
	}
	if !l.IsActive {
		return "", ErrNotFound
	}
	now := s.now()
	if l.ExpiresAt != nil && l.ExpiresAt.Before(now) {
		return "", ErrExpired
	}
	if l.MaxClicks > 0 {
		c, err := s.agg.CurrentCounters(ctx, l.ID)
		if err != nil {
			return "", err
		}
		if c.TotalClicks >= l.MaxClicks {
			return "", ErrQuotaReached
		}
	}
	if l.HasPassword() {
		// compare even when no password was sent so both rejections cost the same
		ok := s.passwords.Verify(l.PasswordHash, password)
		if password == "" || !ok {
			return "", ErrPasswordRequired
		}
	}

	s.clicks.Submit(store.ClickEvent{
		ID:        s.newID(),
		LinkID:    l.ID,
		IPAddress: v.IP,
		UserAgent: v.UserAgent,
		Referer:   v.Referer,
		ClickedAt: now.UTC(),
	})
	return l.OriginalURL, nil
}

// Preview describes a link without redirecting, recording or checking a
// password. Disabled links still preview, flagged inactive.
func (s *Service) Preview(ctx context.Context, code string) (Preview, error) {
	l, err := s.findLink(ctx, code)
	if err != nil {
		return Preview{}, err
	}
	c, err := s.agg.CurrentCounters(ctx, l.ID)
	if err != nil {
		return Preview{}, err
	}
	return Preview{
		ShortCode:        l.ShortCode,
		OriginalURL:      l.OriginalURL,
		Title:            l.Title,
		Description:      l.Description,
		Domain:           l.Domain,
		IsActive:         l.IsActive,
		RequiresPassword: l.HasPassword(),
		TotalClicks:      c.TotalClicks,
		CreatedAt:        l.CreatedAt,
	}, nil
}

// Counters returns the current counters of an existing link.
func (s *Service) Counters(ctx context.Context, linkID int64) (store.Counters, error) {
	if _, err := s.links.FindLinkByID(ctx, linkID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Counters{}, ErrNotFound
		}
		return store.Counters{}, fmt.Errorf("find link %d: %w", linkID, err)
	}
	return s.agg.CurrentCounters(ctx, linkID)
}
