package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/viralforge/sessionauth/internal/domain"
	"github.com/viralforge/sessionauth/internal/ports"
)

const defaultTxAttempts = 3

// RedisUserStore implements ports.UserStore with optimistic WATCH/MULTI transactions.
// Keys read inside a scope are watched; writes are buffered and flushed in one
// MULTI/EXEC block. A conflicting writer aborts EXEC and the scope is replayed.
type RedisUserStore struct {
	client      *redis.Client
	maxAttempts int
}

func NewRedisUserStore(client *redis.Client) *RedisUserStore {
	return &RedisUserStore{client: client, maxAttempts: defaultTxAttempts}
}

func (s *RedisUserStore) InTx(ctx context.Context, fn func(ctx context.Context, tx ports.UserTx) error) error {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
			utx := &redisUserTx{rtx: rtx, staged: map[string]*userRecord{}, ids: map[uuid.UUID]string{}}
			if err := fn(ctx, utx); err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			_, err := rtx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				return utx.flush(ctx, p)
			})
			return err
		})
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		slog.Default().DebugContext(ctx, "redis user transaction conflict",
			"module", "cache",
			"layer", "adapter",
			"operation", "in_tx",
			"outcome", "retry",
			"attempt", attempt,
		)
	}
	return fmt.Errorf("redis user transaction: %w", redis.TxFailedErr)
}

func (s *RedisUserStore) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return readUser(ctx, s.client, email)
}

type redisUserTx struct {
	rtx *redis.Tx
	// staged holds the scope's view of each touched email; nil marks a delete.
	staged  map[string]*userRecord
	ids     map[uuid.UUID]string
	deleted []userRecord
	events  []ports.OutboxEvent
}

func (t *redisUserTx) lookup(ctx context.Context, email string) (*userRecord, error) {
	if rec, ok := t.staged[email]; ok {
		if rec == nil {
			return nil, domain.ErrNotFound
		}
		return rec, nil
	}
	if err := t.rtx.Watch(ctx, userKey(email)).Err(); err != nil {
		return nil, err
	}
	user, err := readUser(ctx, t.rtx, email)
	if err != nil {
		return nil, err
	}
	rec := newUserRecord(user)
	t.staged[email] = &rec
	t.ids[user.UserID] = email
	return &rec, nil
}

func (t *redisUserTx) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	rec, err := t.lookup(ctx, email)
	if err != nil {
		return domain.User{}, err
	}
	return rec.toDomain(), nil
}

func (t *redisUserTx) Create(ctx context.Context, user domain.User) (domain.User, error) {
	_, err := t.lookup(ctx, user.Email)
	switch {
	case err == nil:
		return domain.User{}, domain.ErrDuplicateEmail
	case !errors.Is(err, domain.ErrNotFound):
		return domain.User{}, err
	}
	if user.UserID == uuid.Nil {
		user.UserID = uuid.New()
	}
	rec := newUserRecord(user)
	t.staged[user.Email] = &rec
	t.ids[user.UserID] = user.Email
	return user, nil
}

func (t *redisUserTx) Save(ctx context.Context, user domain.User) error {
	current, err := t.lookup(ctx, user.Email)
	if err != nil {
		return err
	}
	if current.UserID != user.UserID {
		return domain.ErrNotFound
	}
	rec := newUserRecord(user)
	t.staged[user.Email] = &rec
	return nil
}

func (t *redisUserTx) Delete(ctx context.Context, userID uuid.UUID) error {
	email, ok := t.ids[userID]
	if !ok {
		idKey := userIDKey(userID)
		if err := t.rtx.Watch(ctx, idKey).Err(); err != nil {
			return err
		}
		stored, err := t.rtx.Get(ctx, idKey).Result()
		if errors.Is(err, redis.Nil) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read user id index: %w", err)
		}
		email = stored
	}
	rec, err := t.lookup(ctx, email)
	if err != nil {
		return err
	}
	t.deleted = append(t.deleted, *rec)
	t.staged[email] = nil
	delete(t.ids, userID)
	return nil
}

func (t *redisUserTx) Enqueue(_ context.Context, event ports.OutboxEvent) error {
	t.events = append(t.events, event)
	return nil
}

func (t *redisUserTx) flush(ctx context.Context, p redis.Pipeliner) error {
	for _, rec := range t.deleted {
		p.Del(ctx, userKey(rec.Email), userIDKey(rec.UserID))
	}
	for email, rec := range t.staged {
		if rec == nil {
			continue
		}
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode user: %w", err)
		}
		p.Set(ctx, userKey(email), raw, 0)
		p.Set(ctx, userIDKey(rec.UserID), email, 0)
	}
	for _, event := range t.events {
		raw, err := json.Marshal(newOutboxEntry(event))
		if err != nil {
			return fmt.Errorf("encode outbox event: %w", err)
		}
		id := event.EventID.String()
		p.Set(ctx, outboxKey(id), raw, 0)
		p.RPush(ctx, outboxQueueKey, id)
	}
	return nil
}

func readUser(ctx context.Context, c redis.Cmdable, email string) (domain.User, error) {
	raw, err := c.Get(ctx, userKey(email)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.User{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("read user: %w", err)
	}
	var rec userRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.User{}, fmt.Errorf("decode user: %w", err)
	}
	return rec.toDomain(), nil
}

type userRecord struct {
	UserID        uuid.UUID  `json:"user_id"`
	Email         string     `json:"email"`
	FullName      string     `json:"full_name"`
	PasswordHash  string     `json:"password_hash"`
	IsActive      bool       `json:"is_active"`
	LoginAttempts int        `json:"login_attempts"`
	LockedUntil   *time.Time `json:"locked_until,omitempty"`
	TokenVersion  int64      `json:"token_version"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func newUserRecord(u domain.User) userRecord {
	return userRecord{
		UserID:        u.UserID,
		Email:         u.Email,
		FullName:      u.FullName,
		PasswordHash:  u.PasswordHash,
		IsActive:      u.IsActive,
		LoginAttempts: u.LoginAttempts,
		LockedUntil:   u.LockedUntil,
		TokenVersion:  u.TokenVersion,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

func (r userRecord) toDomain() domain.User {
	return domain.User{
		UserID:        r.UserID,
		Email:         r.Email,
		FullName:      r.FullName,
		PasswordHash:  r.PasswordHash,
		IsActive:      r.IsActive,
		LoginAttempts: r.LoginAttempts,
		LockedUntil:   r.LockedUntil,
		TokenVersion:  r.TokenVersion,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}
