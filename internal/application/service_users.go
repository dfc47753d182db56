package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/viralforge/sessionauth/internal/domain"
	"github.com/viralforge/sessionauth/internal/ports"
)

// Register creates a user record and its registration event in one scope.
// An existing record with the same email is left untouched.
func (s *Service) Register(ctx context.Context, email, password, fullName string) (userID uuid.UUID, err error) {
	ctx, span := startSpan(ctx, "register")
	defer func() { endSpan(span, err); logOutcome(ctx, "register", err) }()

	email, err = normalizeEmail(email)
	if err != nil {
		return uuid.Nil, err
	}
	if err := domain.ValidatePassword(password); err != nil {
		return uuid.Nil, err
	}
	fullName = strings.TrimSpace(fullName)
	if err := requireNonEmpty("full_name", fullName); err != nil {
		return uuid.Nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return uuid.Nil, fmt.Errorf("hash password: %w", err)
	}

	err = s.users.InTx(ctx, func(ctx context.Context, tx ports.UserTx) error {
		_, err := tx.GetByEmail(ctx, email)
		if err == nil {
			return domain.ErrDuplicateEmail
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("lookup email: %w", err)
		}

		now := s.nowFn()
		created, err := tx.Create(ctx, domain.User{
			Email:         email,
			FullName:      fullName,
			PasswordHash:  hash,
			IsActive:      true,
			LoginAttempts: 0,
			TokenVersion:  0,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		if err != nil {
			return err
		}
		userID = created.UserID
		return s.enqueueUserEvent(ctx, tx, eventUserRegistered, created, map[string]any{
			"full_name":     created.FullName,
			"registered_at": now,
		})
	})
	if err != nil {
		return uuid.Nil, err
	}
	return userID, nil
}

// ChangePassword replaces the digest and bumps the token version, which logs
// the user out of every session holding a token issued before the change.
func (s *Service) ChangePassword(ctx context.Context, email, oldPassword, newPassword string) (err error) {
	ctx, span := startSpan(ctx, "change_password")
	defer func() { endSpan(span, err); logOutcome(ctx, "change_password", err) }()

	if err := domain.ValidatePassword(newPassword); err != nil {
		return err
	}
	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return s.users.InTx(ctx, func(ctx context.Context, tx ports.UserTx) error {
		user, err := tx.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if !s.hasher.Verify(oldPassword, user.PasswordHash) {
			return domain.ErrInvalidCredentials
		}
		user.ReplacePassword(newHash, s.nowFn())
		if err := tx.Save(ctx, user); err != nil {
			return fmt.Errorf("save password: %w", err)
		}
		return s.enqueueUserEvent(ctx, tx, eventPasswordChanged, user, map[string]any{
			"token_version": user.TokenVersion,
		})
	})
}

// DeleteUser removes the record permanently.
func (s *Service) DeleteUser(ctx context.Context, email string) (err error) {
	ctx, span := startSpan(ctx, "delete_user")
	defer func() { endSpan(span, err); logOutcome(ctx, "delete_user", err) }()

	return s.users.InTx(ctx, func(ctx context.Context, tx ports.UserTx) error {
		user, err := tx.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if err := tx.Delete(ctx, user.UserID); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return s.enqueueUserEvent(ctx, tx, eventUserDeleted, user, map[string]any{
			"deleted_at": s.nowFn(),
		})
	})
}
