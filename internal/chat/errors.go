package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyMessage is returned by Send for blank input.
	ErrEmptyMessage = &ValidationError{Field: "message", Reason: "must not be empty"}

	ErrTurnInProgress            = errors.New("a turn is already in progress")
	ErrNoModelConfig             = errors.New("no model configuration available, create one first")
	ErrConversationCreateTimeout = errors.New("timed out creating conversation")
	ErrNothingToRetry            = errors.New("nothing to retry")

	// ErrAborted is the cancellation cause set by Cancel.
	ErrAborted = errors.New("turn aborted")
)

// ServerError is an error event reported by the backend mid-stream.
type ServerError struct {
	Detail string
}

func (e *ServerError) Error() string {
	return "server error: " + e.Detail
}

// ValidationError is returned for input rejected before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
