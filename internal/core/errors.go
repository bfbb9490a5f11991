package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers both unknown and disabled short codes.
	ErrNotFound = errors.New("link not found")
	// ErrGone means the link exists but expired or used up its quota.
	ErrGone = errors.New("link gone")
	// ErrPasswordRequired is returned for a missing and for a wrong password.
	ErrPasswordRequired = errors.New("password required")

	ErrExpired      = fmt.Errorf("%w: link has expired", ErrGone)
	ErrQuotaReached = fmt.Errorf("%w: link has reached its maximum clicks", ErrGone)
)

// TelemetryError describes a click that could not be recorded. It never
// reaches the redirect caller.
type TelemetryError struct {
	EventID  string
	LinkID   int64
	Attempts int
	Err      error
}

func (e *TelemetryError) Error() string {
	return fmt.Sprintf("record click %s for link %d after %d attempt(s): %v", e.EventID, e.LinkID, e.Attempts, e.Err)
}

func (e *TelemetryError) Unwrap() error { return e.Err }
