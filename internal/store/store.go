// Package store persists client-side state: the credential pair and the
// user's current selections.
package store

import (
	"context"

	"github.com/longkey1/chatc/internal/credential"
)

// Preference keys.
const (
	KeyCurrentConversation = "current_conversation_id"
	KeySelectedConfig      = "selected_config_id"
)

// Repository defines the interface for persisting client state.
type Repository interface {
	credential.Persister

	// Preference returns the value stored under key. ok is false when unset.
	Preference(ctx context.Context, key string) (value string, ok bool, err error)

	// SetPreference creates or replaces the value stored under key.
	SetPreference(ctx context.Context, key, value string) error

	// DeletePreference removes key. Removing an unset key is not an error.
	DeletePreference(ctx context.Context, key string) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
