package transport

import (
	"errors"
)

// Sentinel errors for easy checking.
var (
	// ErrAuthFailed is matched by every error that ended the session.
	ErrAuthFailed = errors.New("authentication failed, please log in again")

	// ErrNoRefreshToken is returned when a refresh is needed but no refresh
	// credential is held.
	ErrNoRefreshToken = errors.New("no refresh token available")
)

// AuthError reports an irrecoverable refresh failure. The credential store
// has been cleared by the time callers see it.
type AuthError struct {
	Cause error
}

func (e *AuthError) Error() string {
	if e.Cause != nil {
		return ErrAuthFailed.Error() + ": " + e.Cause.Error()
	}
	return ErrAuthFailed.Error()
}

// Unwrap exposes both ErrAuthFailed and the underlying cause.
func (e *AuthError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrAuthFailed}
	}
	return []error{ErrAuthFailed, e.Cause}
}

// IsAuthFailed reports whether err means the user must log in again.
func IsAuthFailed(err error) bool {
	return errors.Is(err, ErrAuthFailed)
}
