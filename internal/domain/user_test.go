package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidatePassword(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		password  string
		wantError bool
	}{
		{name: "valid", password: "pw1", wantError: false},
		{name: "empty", password: "", wantError: true},
		{name: "at bcrypt limit", password: strings.Repeat("a", 72), wantError: false},
		{name: "over bcrypt limit", password: strings.Repeat("a", 73), wantError: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := ValidatePassword(tc.password)
			if tc.wantError && !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if !tc.wantError && err != nil {
				t.Fatalf("expected nil error, got %v", err)
			}
		})
	}
}

func TestRecordFailedLoginLocksAtThreshold(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	u := User{}
	for i := 1; i < 3; i++ {
		if u.RecordFailedLogin(now, 3, time.Minute) {
			t.Fatalf("attempt %d locked early", i)
		}
	}
	if !u.RecordFailedLogin(now, 3, time.Minute) {
		t.Fatal("third failure should lock")
	}
	if !u.IsLocked(now) || !u.LockedUntil.Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected lock state: %v", u.LockedUntil)
	}
	if u.IsLocked(now.Add(time.Minute)) {
		t.Fatal("a lock is not in force at its expiry instant")
	}
}

func TestRecordFailedLoginAfterLapseResetsWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	expired := now.Add(-time.Second)
	u := User{LoginAttempts: 5, LockedUntil: &expired}

	if u.RecordFailedLogin(now, 5, time.Minute) {
		t.Fatal("first failure of a new window must not lock")
	}
	if u.LoginAttempts != 1 || u.LockedUntil != nil {
		t.Fatalf("expected fresh window, got attempts=%d locked=%v", u.LoginAttempts, u.LockedUntil)
	}
}

func TestSuccessAndRotation(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	until := now.Add(time.Hour)
	u := User{LoginAttempts: 4, LockedUntil: &until, TokenVersion: 2, PasswordHash: "old"}

	u.RecordSuccessfulLogin(now)
	if u.LoginAttempts != 0 || u.LockedUntil != nil || u.TokenVersion != 2 {
		t.Fatalf("success must clear lockout and keep version: %+v", u)
	}

	u.ReplacePassword("new", now)
	if u.PasswordHash != "new" || u.TokenVersion != 3 {
		t.Fatalf("password change must rotate version: %+v", u)
	}
	u.RotateTokenVersion(now)
	if u.TokenVersion != 4 {
		t.Fatalf("expected version 4, got %d", u.TokenVersion)
	}
}

func TestParseTokenClaims(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		raw     map[string]any
		wantOK  bool
		version int64
	}{
		{name: "json number", raw: map[string]any{"sub": "a@x.com", "type": "access", "token_version": json.Number("3")}, wantOK: true, version: 3},
		{name: "float", raw: map[string]any{"sub": "a@x.com", "token_version": float64(2)}, wantOK: true, version: 2},
		{name: "int64", raw: map[string]any{"sub": "a@x.com", "token_version": int64(0)}, wantOK: true, version: 0},
		{name: "missing sub", raw: map[string]any{"token_version": float64(1)}, wantOK: false},
		{name: "missing version", raw: map[string]any{"sub": "a@x.com"}, wantOK: false},
		{name: "fractional version", raw: map[string]any{"sub": "a@x.com", "token_version": 1.5}, wantOK: false},
		{name: "negative version", raw: map[string]any{"sub": "a@x.com", "token_version": float64(-1)}, wantOK: false},
		{name: "string version", raw: map[string]any{"sub": "a@x.com", "token_version": "1"}, wantOK: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			claims, ok := ParseTokenClaims(tc.raw)
			if ok != tc.wantOK {
				t.Fatalf("ok=%v want %v", ok, tc.wantOK)
			}
			if ok && claims.TokenVersion != tc.version {
				t.Fatalf("version=%d want %d", claims.TokenVersion, tc.version)
			}
		})
	}
}

func TestLockedErrorUnwraps(t *testing.T) {
	t.Parallel()

	err := error(&LockedError{Until: time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)})
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatal("LockedError must match ErrAccountLocked")
	}
	if !strings.Contains(err.Error(), "2026-04-01T09:30:00Z") {
		t.Fatalf("message should carry the expiry: %q", err.Error())
	}
}
