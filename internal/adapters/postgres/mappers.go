package postgres

import (
	"errors"
	"time"

	"github.com/viralforge/sessionauth/internal/domain"
	"github.com/viralforge/sessionauth/internal/ports"
	"gorm.io/gorm"
)

func toDomainUser(row userModel) domain.User {
	return domain.User{
		UserID:        row.UserID,
		Email:         row.Email,
		FullName:      row.FullName,
		PasswordHash:  row.PasswordHash,
		IsActive:      row.IsActive,
		LoginAttempts: row.LoginAttempts,
		LockedUntil:   utcPtr(row.LockedUntil),
		TokenVersion:  row.TokenVersion,
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}
}

func toUserModel(u domain.User) userModel {
	return userModel{
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

func toOutboxRecord(row authOutboxModel) ports.OutboxRecord {
	return ports.OutboxRecord{
		OutboxID:       row.OutboxID,
		EventType:      row.EventType,
		PartitionKey:   row.PartitionKey,
		Payload:        []byte(row.Payload),
		RetryCount:     row.RetryCount,
		LastError:      row.LastError,
		CreatedAt:      row.CreatedAt,
		PublishedAt:    row.PublishedAt,
		LastErrorAt:    row.LastErrorAt,
		ClaimToken:     row.ClaimToken,
		ClaimUntil:     row.ClaimUntil,
		DeadLetteredAt: row.DeadLetteredAt,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
