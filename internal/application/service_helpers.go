package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/viralforge/sessionauth/internal/domain"
)

// normalizeEmail trims and validates a bare address. Case is preserved: the
// stored email is the natural key exactly as registered.
func normalizeEmail(email string) (string, error) {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return "", fmt.Errorf("%w: email is required", domain.ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", fmt.Errorf("%w: invalid email", domain.ErrInvalidInput)
	}
	return trimmed, nil
}

func requireNonEmpty(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", domain.ErrInvalidInput, field)
	}
	return nil
}

// isInternal separates infrastructure failures from expected decision outcomes.
func isInternal(err error) bool {
	for _, known := range []error{
		domain.ErrInvalidCredentials,
		domain.ErrAccountLocked,
		domain.ErrDuplicateEmail,
		domain.ErrNotFound,
		domain.ErrInvalidToken,
		domain.ErrInvalidInput,
	} {
		if errors.Is(err, known) {
			return false
		}
	}
	return true
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, domain.ErrAccountLocked):
		return "account_locked"
	case errors.Is(err, domain.ErrDuplicateEmail):
		return "duplicate_email"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	default:
		return "error"
	}
}

// logOutcome emits one structured line per failed operation.
func logOutcome(ctx context.Context, operation string, err error) {
	if err == nil {
		return
	}
	fields := []any{
		"service", serviceName,
		"module", "application",
		"layer", "application",
		"operation", operation,
		"outcome", outcomeLabel(err),
	}
	if isInternal(err) {
		slog.Default().ErrorContext(ctx, "auth operation failed", append(fields, "error", err)...)
		return
	}
	slog.Default().InfoContext(ctx, "auth operation rejected", fields...)
}
