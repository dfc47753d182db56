package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the authentication identity record.
// Email is the natural key and is never renamed; TokenVersion only grows.
type User struct {
	UserID        uuid.UUID
	Email         string
	FullName      string
	PasswordHash  string
	IsActive      bool
	LoginAttempts int
	LockedUntil   *time.Time
	TokenVersion  int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsLocked reports whether a lock is in force at now. A lapsed lock counts as absent.
func (u User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// RecordFailedLogin bumps the attempt counter and imposes a lock once the
// threshold is reached. A lapsed lock starts a fresh counting window.
// It returns true when this failure imposed a new lock.
func (u *User) RecordFailedLogin(now time.Time, threshold int, lockFor time.Duration) bool {
	if u.LockedUntil != nil && !u.LockedUntil.After(now) {
		u.LockedUntil = nil
		u.LoginAttempts = 0
	}
	u.LoginAttempts++
	u.UpdatedAt = now
	if threshold > 0 && u.LoginAttempts >= threshold {
		until := now.Add(lockFor)
		u.LockedUntil = &until
		return true
	}
	return false
}

// RecordSuccessfulLogin resets lockout state.
func (u *User) RecordSuccessfulLogin(now time.Time) {
	u.LoginAttempts = 0
	u.LockedUntil = nil
	u.UpdatedAt = now
}

// RotateTokenVersion invalidates every token issued at the current version.
func (u *User) RotateTokenVersion(now time.Time) {
	u.TokenVersion++
	u.UpdatedAt = now
}

// ReplacePassword swaps the digest and logs the user out everywhere.
func (u *User) ReplacePassword(hash string, now time.Time) {
	u.PasswordHash = hash
	u.RotateTokenVersion(now)
}
