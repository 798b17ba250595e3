package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidToken is the root of every token rejection.
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrMalformed    = fmt.Errorf("%w: malformed", ErrInvalidToken)
	ErrBadSignature = fmt.Errorf("%w: bad signature", ErrInvalidToken)
	ErrExpired      = fmt.Errorf("%w: expired", ErrInvalidToken)
	// ErrReplayDetected reports a second redemption of the same refresh token.
	ErrReplayDetected = fmt.Errorf("%w: refresh token reuse", ErrInvalidToken)

	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrForbidden          = errors.New("auth: forbidden")
	ErrNotFound           = errors.New("auth: not found")
	ErrConflict           = errors.New("auth: already exists")
	ErrInvalidInput       = errors.New("auth: invalid input")
)

// ValidationError names the offending field of a rejected payload.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is makes ValidationError match ErrInvalidInput.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}
