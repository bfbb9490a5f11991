package core

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/roniherschmann/shorty-redirect/internal/shortid"
	"github.com/roniherschmann/shorty-redirect/internal/store"
)

const codeLength = 7

// NewLink describes a link to create. Empty Code means generate one.
type NewLink struct {
	Code        string
	Target      string
	Title       string
	Description string
	Domain      string
	Password    string
	MaxClicks   int64
	ExpiresAt   *time.Time
	Disabled    bool
}

func normalizeURL(u string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(u))
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("only http/https allowed")
	}
	if parsed.Host == "" {
		return "", errors.New("missing host")
	}
	return parsed.String(), nil
}

// CreateLink validates n and stores it, hashing the password if one is set.
func (s *Service) CreateLink(ctx context.Context, n NewLink) (*store.Link, error) {
	target, err := normalizeURL(n.Target)
	if err != nil {
		return nil, err
	}
	if n.MaxClicks < 0 {
		return nil, errors.New("max clicks must not be negative")
	}
	code := n.Code
	if code == "" {
		code = shortid.Generate(codeLength)
	}
	l := &store.Link{
		ShortCode:   code,
		OriginalURL: target,
		Title:       n.Title,
		Description: n.Description,
		Domain:      n.Domain,
		IsActive:    !n.Disabled,
		MaxClicks:   n.MaxClicks,
		ExpiresAt:   n.ExpiresAt,
	}
	if n.Password != "" {
		if l.PasswordHash, err = HashPassword(n.Password); err != nil {
			return nil, err
		}
	}
	if err := s.links.CreateLink(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}
