package services

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// Outcomes the HTTP layer maps to status codes. InvalidCredentials and
// InvalidOrExpiredToken are deliberately vague: callers cannot tell an unknown
// email from a wrong password, or an expired token from one that never existed.
var (
	ErrDuplicateAccount      = errors.New("user already exists with this email")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrAccountNotFound       = errors.New("account not found")
	ErrStoreUnavailable      = errors.New("account store unavailable")
	ErrEmailDispatchFailed   = errors.New("email could not be sent")
)

// ValidationError names the input field that failed a check.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// storeFailure wraps a persistence error so errors.Is(err, ErrStoreUnavailable)
// holds while keeping the cause and operation for the logs.
func storeFailure(operation string, err error) error {
	return oops.Code("STORE_UNAVAILABLE").
		With("operation", operation).
		Wrap(fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
}

// internalFailure wraps an unexpected error from hashing, randomness or signing.
func internalFailure(code, operation string, err error) error {
	return oops.Code(code).
		With("operation", operation).
		Wrap(err)
}
