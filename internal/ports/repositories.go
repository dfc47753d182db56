package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/sessionauth/internal/domain"
)

// UserStore is the persistence contract for user records.
// Every mutating engine operation runs inside exactly one InTx scope: either
// all writes made through the UserTx commit together or none of them do.
type UserStore interface {
	// InTx opens a transactional scope and always releases it before returning.
	// An error returned by fn rolls the scope back.
	InTx(ctx context.Context, fn func(ctx context.Context, tx UserTx) error) error
	// GetByEmail is a non-locking read used by token resolution.
	GetByEmail(ctx context.Context, email string) (domain.User, error)
}

// UserTx is the view of the store inside a transactional scope.
// Reads through a UserTx are serialized against concurrent scopes touching the same row.
type UserTx interface {
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	// Create inserts a new record and assigns its id. It returns domain.ErrDuplicateEmail on a unique clash.
	Create(ctx context.Context, user domain.User) (domain.User, error)
	Save(ctx context.Context, user domain.User) error
	Delete(ctx context.Context, userID uuid.UUID) error
	// Enqueue stores an outbox event that commits with the rest of the scope.
	Enqueue(ctx context.Context, event OutboxEvent) error
}

// OutboxEvent is the write-side event payload prior to storage.
type OutboxEvent struct {
	EventID      uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	OccurredAt   time.Time
}

// OutboxRecord represents durable outbox state, including retry/error metadata.
type OutboxRecord struct {
	OutboxID       uuid.UUID
	EventType      string
	PartitionKey   string
	Payload        []byte
	RetryCount     int
	LastError      *string
	CreatedAt      time.Time
	PublishedAt    *time.Time
	LastErrorAt    *time.Time
	ClaimToken     *string
	ClaimUntil     *time.Time
	DeadLetteredAt *time.Time
}

// OutboxRepository controls the publish-retry workflow for stored events.
type OutboxRepository interface {
	ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
	MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
}
