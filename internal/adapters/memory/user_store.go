// Package memory provides process-local adapters for local runs and tests.
// A single mutex serializes every scope, so it is only safe within one instance.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/sessionauth/internal/domain"
	"github.com/viralforge/sessionauth/internal/ports"
)

// Store keeps users in a map and outbox records in a slice, both guarded by one mutex.
type Store struct {
	mu     sync.Mutex
	users  map[string]domain.User
	outbox []*ports.OutboxRecord // insertion order
}

func NewStore() *Store {
	return &Store{
		users: make(map[string]domain.User),
	}
}

// InTx runs fn against a staged copy and applies it only when fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx ports.UserTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{store: s, staged: make(map[string]*domain.User)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for email, u := range tx.staged {
		if u == nil {
			delete(s.users, email)
			continue
		}
		s.users[email] = *u
	}
	for _, ev := range tx.events {
		s.outbox = append(s.outbox, &ports.OutboxRecord{
			OutboxID:     ev.EventID,
			EventType:    ev.EventType,
			PartitionKey: ev.PartitionKey,
			Payload:      append([]byte(nil), ev.Payload...),
			CreatedAt:    ev.OccurredAt,
		})
	}
	return nil
}

func (s *Store) GetByEmail(_ context.Context, email string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return cloneUser(u), nil
}

type memoryTx struct {
	store  *Store
	staged map[string]*domain.User // nil value marks a delete
	events []ports.OutboxEvent
}

func (t *memoryTx) lookup(email string) (domain.User, bool) {
	if u, ok := t.staged[email]; ok {
		if u == nil {
			return domain.User{}, false
		}
		return *u, true
	}
	u, ok := t.store.users[email]
	return u, ok
}

func (t *memoryTx) GetByEmail(_ context.Context, email string) (domain.User, error) {
	u, ok := t.lookup(email)
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return cloneUser(u), nil
}

func (t *memoryTx) Create(_ context.Context, user domain.User) (domain.User, error) {
	if _, ok := t.lookup(user.Email); ok {
		return domain.User{}, domain.ErrDuplicateEmail
	}
	if user.UserID == uuid.Nil {
		user.UserID = uuid.New()
	}
	u := cloneUser(user)
	t.staged[user.Email] = &u
	return cloneUser(u), nil
}

func (t *memoryTx) Save(_ context.Context, user domain.User) error {
	current, ok := t.lookup(user.Email)
	if !ok || current.UserID != user.UserID {
		return domain.ErrNotFound
	}
	u := cloneUser(user)
	t.staged[user.Email] = &u
	return nil
}

func (t *memoryTx) Delete(_ context.Context, userID uuid.UUID) error {
	emails := make([]string, 0, len(t.store.users)+len(t.staged))
	for email := range t.store.users {
		emails = append(emails, email)
	}
	for email := range t.staged {
		emails = append(emails, email)
	}
	for _, email := range emails {
		if u, ok := t.lookup(email); ok && u.UserID == userID {
			t.staged[email] = nil
			return nil
		}
	}
	return domain.ErrNotFound
}

func (t *memoryTx) Enqueue(_ context.Context, event ports.OutboxEvent) error {
	t.events = append(t.events, event)
	return nil
}

// ClaimUnpublished hands out pending records oldest first.
func (s *Store) ClaimUnpublished(_ context.Context, limit int, claimToken string, claimUntil time.Time) ([]ports.OutboxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	pending := make([]*ports.OutboxRecord, 0)
	for _, rec := range s.outbox {
		if rec.PublishedAt != nil || rec.DeadLetteredAt != nil {
			continue
		}
		if rec.ClaimUntil != nil && rec.ClaimUntil.After(now) {
			continue
		}
		pending = append(pending, rec)
	}
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	out := make([]ports.OutboxRecord, 0, len(pending))
	for _, rec := range pending {
		token, until := claimToken, claimUntil
		rec.ClaimToken, rec.ClaimUntil = &token, &until
		out = append(out, *rec)
	}
	return out, nil
}

func (s *Store) MarkPublished(_ context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error {
	return s.updateClaimed(outboxID, claimToken, func(rec *ports.OutboxRecord) {
		rec.PublishedAt = &at
	})
}

func (s *Store) MarkFailed(_ context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	return s.updateClaimed(outboxID, claimToken, func(rec *ports.OutboxRecord) {
		rec.RetryCount++
		rec.LastError, rec.LastErrorAt = &errMsg, &at
	})
}

func (s *Store) MarkDeadLettered(_ context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	return s.updateClaimed(outboxID, claimToken, func(rec *ports.OutboxRecord) {
		rec.RetryCount++
		rec.LastError, rec.LastErrorAt = &errMsg, &at
		rec.DeadLetteredAt = &at
	})
}

func (s *Store) updateClaimed(outboxID uuid.UUID, claimToken string, apply func(*ports.OutboxRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.outbox {
		if rec.OutboxID != outboxID {
			continue
		}
		if rec.ClaimToken == nil || *rec.ClaimToken != claimToken {
			return nil
		}
		apply(rec)
		rec.ClaimToken, rec.ClaimUntil = nil, nil
		return nil
	}
	return nil
}

// Outbox returns a snapshot of stored events in insertion order.
func (s *Store) Outbox() []ports.OutboxRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ports.OutboxRecord, 0, len(s.outbox))
	for _, rec := range s.outbox {
		out = append(out, *rec)
	}
	return out
}

func cloneUser(u domain.User) domain.User {
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		u.LockedUntil = &t
	}
	return u
}
