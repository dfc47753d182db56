package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/viralforge/sessionauth/internal/ports"
)

// publishedRetention bounds how long delivered events stay readable.
const publishedRetention = 24 * time.Hour

var errClaimLost = errors.New("outbox claim no longer held")

// RedisOutboxRepository drains events written by RedisUserStore.
// Pending ids live in a list in insertion order; a claim is a SET NX key with a TTL.
type RedisOutboxRepository struct {
	client *redis.Client
}

func NewRedisOutboxRepository(client *redis.Client) *RedisOutboxRepository {
	return &RedisOutboxRepository{client: client}
}

func (r *RedisOutboxRepository) ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]ports.OutboxRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	if claimToken == "" {
		return nil, fmt.Errorf("claim token is required")
	}
	ttl := time.Until(claimUntil)
	if ttl <= 0 {
		return nil, nil
	}

	ids, err := r.client.LRange(ctx, outboxQueueKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list outbox queue: %w", err)
	}

	out := make([]ports.OutboxRecord, 0, limit)
	for _, id := range ids {
		if len(out) >= limit {
			break
		}
		ok, err := r.client.SetNX(ctx, outboxClaimKey(id), claimToken, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("claim outbox event: %w", err)
		}
		if !ok {
			continue
		}
		entry, err := r.read(ctx, r.client, id)
		if err != nil {
			return nil, err
		}
		if entry == nil || entry.PublishedAt != nil || entry.DeadLetteredAt != nil {
			_ = r.client.Del(ctx, outboxClaimKey(id)).Err()
			continue
		}
		rec := entry.toRecord()
		token := claimToken
		until := claimUntil
		rec.ClaimToken = &token
		rec.ClaimUntil = &until
		out = append(out, rec)
	}
	return out, nil
}

func (r *RedisOutboxRepository) MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error {
	return r.updateClaimed(ctx, outboxID, claimToken, true, func(e *outboxEntry) {
		e.PublishedAt = &at
	})
}

func (r *RedisOutboxRepository) MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	return r.updateClaimed(ctx, outboxID, claimToken, false, func(e *outboxEntry) {
		e.RetryCount++
		e.LastError = &errMsg
		e.LastErrorAt = &at
	})
}

func (r *RedisOutboxRepository) MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	return r.updateClaimed(ctx, outboxID, claimToken, true, func(e *outboxEntry) {
		e.RetryCount++
		e.LastError = &errMsg
		e.LastErrorAt = &at
		e.DeadLetteredAt = &at
	})
}

// updateClaimed mutates an entry while claimToken still owns it and releases the claim.
// Finished entries leave the pending queue.
func (r *RedisOutboxRepository) updateClaimed(ctx context.Context, outboxID uuid.UUID, claimToken string, finished bool, mutate func(*outboxEntry)) error {
	id := outboxID.String()
	claimKey := outboxClaimKey(id)
	entryKey := outboxKey(id)

	return r.client.Watch(ctx, func(tx *redis.Tx) error {
		holder, err := tx.Get(ctx, claimKey).Result()
		if errors.Is(err, redis.Nil) || (err == nil && holder != claimToken) {
			return errClaimLost
		}
		if err != nil {
			return fmt.Errorf("read outbox claim: %w", err)
		}
		entry, err := r.read(ctx, tx, id)
		if err != nil {
			return err
		}
		if entry == nil {
			return errClaimLost
		}
		mutate(entry)
		raw, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode outbox event: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			if finished {
				p.LRem(ctx, outboxQueueKey, 0, id)
				p.Set(ctx, entryKey, raw, publishedRetention)
			} else {
				p.Set(ctx, entryKey, raw, 0)
			}
			p.Del(ctx, claimKey)
			return nil
		})
		return err
	}, claimKey, entryKey)
}

func (r *RedisOutboxRepository) read(ctx context.Context, c redis.Cmdable, id string) (*outboxEntry, error) {
	raw, err := c.Get(ctx, outboxKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read outbox event: %w", err)
	}
	var entry outboxEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode outbox event: %w", err)
	}
	return &entry, nil
}

type outboxEntry struct {
	OutboxID       uuid.UUID  `json:"outbox_id"`
	EventType      string     `json:"event_type"`
	PartitionKey   string     `json:"partition_key"`
	Payload        []byte     `json:"payload"`
	CreatedAt      time.Time  `json:"created_at"`
	RetryCount     int        `json:"retry_count"`
	LastError      *string    `json:"last_error,omitempty"`
	LastErrorAt    *time.Time `json:"last_error_at,omitempty"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	DeadLetteredAt *time.Time `json:"dead_lettered_at,omitempty"`
}

func newOutboxEntry(event ports.OutboxEvent) outboxEntry {
	return outboxEntry{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      event.Payload,
		CreatedAt:    event.OccurredAt,
	}
}

func (e outboxEntry) toRecord() ports.OutboxRecord {
	return ports.OutboxRecord{
		OutboxID:       e.OutboxID,
		EventType:      e.EventType,
		PartitionKey:   e.PartitionKey,
		Payload:        e.Payload,
		RetryCount:     e.RetryCount,
		LastError:      e.LastError,
		CreatedAt:      e.CreatedAt,
		PublishedAt:    e.PublishedAt,
		LastErrorAt:    e.LastErrorAt,
		DeadLetteredAt: e.DeadLetteredAt,
	}
}
