package application

import (
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/sessionauth/internal/domain"
)

type Config struct {
	MaxLoginAttempts int
	LockDuration     time.Duration
}

// UserProfile is the read model returned for the authenticated caller.
type UserProfile struct {
	UserID    uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProfileFromUser projects a user record onto the public profile shape.
func ProfileFromUser(u domain.User) UserProfile {
	return UserProfile{
		UserID:    u.UserID,
		Email:     u.Email,
		FullName:  u.FullName,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
