package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/viralforge/sessionauth/internal/domain"
	"github.com/viralforge/sessionauth/internal/ports"
)

// Login verifies credentials and issues a token pair at the user's current version.
// The lock check precedes password verification so a locked account never
// reveals whether the supplied password was right.
func (s *Service) Login(ctx context.Context, email, password string) (pair domain.TokenPair, err error) {
	ctx, span := startSpan(ctx, "login")
	defer func() { endSpan(span, err); logOutcome(ctx, "login", err) }()

	if err := requireNonEmpty("email", email); err != nil {
		return domain.TokenPair{}, err
	}
	if err := requireNonEmpty("password", password); err != nil {
		return domain.TokenPair{}, err
	}

	// outcome carries rejections whose state changes must still commit.
	var outcome error
	err = s.users.InTx(ctx, func(ctx context.Context, tx ports.UserTx) error {
		pair, outcome = domain.TokenPair{}, nil

		user, err := tx.GetByEmail(ctx, email)
		if errors.Is(err, domain.ErrNotFound) {
			outcome = domain.ErrInvalidCredentials
			return nil
		}
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}

		now := s.nowFn()
		if user.IsLocked(now) {
			outcome = &domain.LockedError{Until: *user.LockedUntil}
			return nil
		}

		if !s.hasher.Verify(password, user.PasswordHash) {
			locked := user.RecordFailedLogin(now, s.cfg.MaxLoginAttempts, s.cfg.LockDuration)
			if err := tx.Save(ctx, user); err != nil {
				return fmt.Errorf("save failed attempt: %w", err)
			}
			outcome = domain.ErrInvalidCredentials
			if locked {
				if err := s.enqueueUserEvent(ctx, tx, eventAccountLocked, user, map[string]any{
					"locked_until":   user.LockedUntil,
					"login_attempts": user.LoginAttempts,
				}); err != nil {
					return err
				}
				outcome = &domain.LockedError{Until: *user.LockedUntil}
			}
			return nil
		}

		user.RecordSuccessfulLogin(now)
		if err := tx.Save(ctx, user); err != nil {
			return fmt.Errorf("save login: %w", err)
		}
		pair, err = s.tokens.IssuePair(user.Email, user.TokenVersion)
		if err != nil {
			return fmt.Errorf("issue tokens: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.TokenPair{}, err
	}
	if outcome != nil {
		return domain.TokenPair{}, outcome
	}
	return pair, nil
}

// Refresh consumes a refresh token and rotates the user's token version, so the
// consumed token and every other token at the old version stop resolving.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (pair domain.TokenPair, err error) {
	ctx, span := startSpan(ctx, "refresh")
	defer func() { endSpan(span, err); logOutcome(ctx, "refresh", err) }()

	claims, err := s.decode(refreshToken)
	if err != nil {
		return domain.TokenPair{}, err
	}
	if claims.Kind != domain.TokenKindRefresh {
		return domain.TokenPair{}, domain.ErrInvalidToken
	}

	err = s.users.InTx(ctx, func(ctx context.Context, tx ports.UserTx) error {
		pair = domain.TokenPair{}

		user, err := tx.GetByEmail(ctx, claims.Subject)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrInvalidCredentials
		}
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		if claims.TokenVersion != user.TokenVersion {
			return domain.ErrInvalidToken
		}
		now := s.nowFn()
		if user.IsLocked(now) {
			return &domain.LockedError{Until: *user.LockedUntil}
		}

		user.RotateTokenVersion(now)
		if err := tx.Save(ctx, user); err != nil {
			return fmt.Errorf("save token version: %w", err)
		}
		pair, err = s.tokens.IssuePair(user.Email, user.TokenVersion)
		if err != nil {
			return fmt.Errorf("issue tokens: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.TokenPair{}, err
	}
	return pair, nil
}

// ResolveIdentity maps any token kind back to its user, provided the embedded
// version still matches. A single read needs no locking scope.
func (s *Service) ResolveIdentity(ctx context.Context, token string) (user domain.User, err error) {
	ctx, span := startSpan(ctx, "resolve_identity")
	defer func() { endSpan(span, err); logOutcome(ctx, "resolve_identity", err) }()

	claims, err := s.decode(token)
	if err != nil {
		return domain.User{}, err
	}
	user, err = s.users.GetByEmail(ctx, claims.Subject)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, domain.ErrInvalidToken
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	if user.TokenVersion != claims.TokenVersion {
		return domain.User{}, domain.ErrInvalidToken
	}
	return user, nil
}

// Me returns the profile of the token's owner.
func (s *Service) Me(ctx context.Context, token string) (UserProfile, error) {
	user, err := s.ResolveIdentity(ctx, token)
	if err != nil {
		return UserProfile{}, err
	}
	return ProfileFromUser(user), nil
}

func (s *Service) decode(token string) (domain.TokenClaims, error) {
	if token == "" {
		return domain.TokenClaims{}, domain.ErrInvalidToken
	}
	raw, err := s.tokens.Decode(token)
	if err != nil {
		return domain.TokenClaims{}, domain.ErrInvalidToken
	}
	claims, ok := domain.ParseTokenClaims(raw)
	if !ok {
		return domain.TokenClaims{}, domain.ErrInvalidToken
	}
	return claims, nil
}
