package domain

import "fmt"

// bcrypt rejects inputs longer than this many bytes.
const maxPasswordBytes = 72

// ValidatePassword enforces the minimal constraints the hasher can honour.
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if len(password) > maxPasswordBytes {
		return fmt.Errorf("%w: password must be <= %d bytes", ErrInvalidInput, maxPasswordBytes)
	}
	return nil
}
