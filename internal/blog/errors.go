package blog

import "errors"

var (
	// ErrValidation marks malformed input. Use errors.As with *ValidationError for the message.
	ErrValidation = errors.New("blog: validation failed")
	ErrNotFound   = errors.New("blog: not found")
	ErrForbidden  = errors.New("blog: forbidden")
)

// ValidationError carries a message safe to show to the caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "blog: " + e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(message string) error {
	return &ValidationError{Message: message}
}
