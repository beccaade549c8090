package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input. Use errors.As with *ValidationError for the message.
	ErrValidation       = errors.New("auth: validation failed")
	ErrAlreadyExists    = errors.New("auth: already exists")
	ErrNotFound         = errors.New("auth: not found")
	ErrUnauthenticated  = errors.New("auth: unauthenticated")
	ErrEmailNotVerified = errors.New("auth: email not verified")
	ErrForbidden        = errors.New("auth: forbidden")
	ErrThrottled        = errors.New("auth: throttled")
	ErrDependency       = errors.New("auth: dependency failure")

	// The following are reported to clients as ErrUnauthenticated.
	ErrIncorrectCredentials = fmt.Errorf("%w: incorrect credentials", ErrUnauthenticated)
	ErrInvalidCode          = fmt.Errorf("%w: invalid or expired code", ErrUnauthenticated)
	ErrInvalidResetToken    = fmt.Errorf("%w: invalid or expired reset token", ErrUnauthenticated)
	ErrChallengeFailed      = fmt.Errorf("%w: challenge verification failed", ErrValidation)
)

// ValidationError carries a message safe to show to the caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "auth: " + e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(message string) error {
	return &ValidationError{Message: message}
}
