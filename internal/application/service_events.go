package application

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/viralforge/sessionauth/internal/domain"
	"github.com/viralforge/sessionauth/internal/ports"
)

const (
	eventUserRegistered  = "user.registered"
	eventAccountLocked   = "auth.account_locked"
	eventPasswordChanged = "user.password_changed"
	eventUserDeleted     = "user.deleted"
)

// enqueueUserEvent writes an outbox event inside the caller's scope so the
// event and the state change it describes commit together.
func (s *Service) enqueueUserEvent(ctx context.Context, tx ports.UserTx, eventType string, user domain.User, extra map[string]any) error {
	now := s.nowFn()
	body := map[string]any{
		"user_id":     user.UserID.String(),
		"email":       user.Email,
		"occurred_at": now,
	}
	for k, v := range extra {
		body[k] = v
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	if err := tx.Enqueue(ctx, ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    eventType,
		PartitionKey: user.UserID.String(),
		Payload:      payload,
		OccurredAt:   now,
	}); err != nil {
		return fmt.Errorf("enqueue %s event: %w", eventType, err)
	}
	return nil
}
