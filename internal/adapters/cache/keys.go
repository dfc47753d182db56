package cache

import "github.com/google/uuid"

const (
	userKeyPrefix     = "auth:user:"
	userIDKeyPrefix   = "auth:user_id:"
	outboxQueueKey    = "auth:outbox:queue"
	outboxKeyPrefix   = "auth:outbox:"
	outboxClaimPrefix = "auth:outbox:claim:"
)

func userKey(email string) string { return userKeyPrefix + email }

func userIDKey(id uuid.UUID) string { return userIDKeyPrefix + id.String() }

func outboxKey(id string) string { return outboxKeyPrefix + id }

func outboxClaimKey(id string) string { return outboxClaimPrefix + id }
