package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when the requested user does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidCredentials hides whether email or password failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked signals temporary lockout after repeated failed attempts.
	// Callers that need the expiry should use errors.As with *LockedError.
	ErrAccountLocked = errors.New("account locked")
	// ErrDuplicateEmail is returned by registration when the email is already taken.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrInvalidToken covers malformed, unsigned, expired, wrong-kind and stale tokens alike.
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrInvalidInput = errors.New("invalid input")
)

// LockedError carries the lock expiry for ErrAccountLocked.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s until %s", ErrAccountLocked.Error(), e.Until.UTC().Format(time.RFC3339))
}

func (e *LockedError) Unwrap() error { return ErrAccountLocked }
