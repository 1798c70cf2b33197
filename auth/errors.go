package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials covers both a wrong password and an unknown
	// identifier. The two are intentionally indistinguishable to callers
	// so the login surface cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrLocked indicates the identifier is throttled; authentication is
	// refused regardless of credential correctness.
	ErrLocked = errors.New("account locked")
	// ErrDuplicateIdentifier indicates the email is already registered.
	ErrDuplicateIdentifier = errors.New("email already registered")
	// ErrUserNotFound is returned by Directory implementations when no
	// account exists for an identifier.
	ErrUserNotFound = errors.New("user not found")
	// ErrNoSession indicates there is no active session.
	ErrNoSession = errors.New("no active session")
	// ErrHashUnavailable indicates the credential transform could not run.
	ErrHashUnavailable = errors.New("credential hashing unavailable")
)

// ValidationError reports a user-correctable input problem. It is always
// recovered at the boundary and rendered as a field-level message.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationErrorf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// AsValidationError unwraps err into a *ValidationError if it is one.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
