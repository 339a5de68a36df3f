// Package chatc provides the core domain types shared by the chat client.
// This package defines turns, content parts, model configurations and
// conversations as they travel over the wire to and from the chat backend.
package chatc

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// ModelConfig is a user-owned model configuration stored on the backend.
// A chat turn always runs against exactly one model configuration.
type ModelConfig struct {
	ConfigID  int64          `json:"config_id"`
	Name      *string        `json:"name"`
	BaseURL   string         `json:"base_url"`
	ModelName *string        `json:"model_name"`
	APIKey    *string        `json:"api_key"`
	Params    map[string]any `json:"params,omitempty"`
}

// DisplayName returns the configured name, falling back to the model name
// and finally to the base URL.
func (c ModelConfig) DisplayName() string {
	if c.Name != nil && *c.Name != "" {
		return *c.Name
	}
	if c.ModelName != nil && *c.ModelName != "" {
		return *c.ModelName
	}
	return c.BaseURL
}

// Conversation is a titled sequence of turns bound to a model configuration.
type Conversation struct {
	ConversationID int64   `json:"conversation_id"`
	Title          *string `json:"title"`
	UpdateAt       string  `json:"update_at"`
	ModelConfigID  *int64  `json:"model_config_id"`
}

// DisplayTitle returns the title or a placeholder for untitled conversations.
func (c Conversation) DisplayTitle() string {
	if c.Title == nil || *c.Title == "" {
		return "(untitled)"
	}
	return *c.Title
}

// UpdatedAt parses the backend timestamp. Zero time is returned when the
// timestamp is missing or malformed.
func (c Conversation) UpdatedAt() time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, c.UpdateAt); err == nil {
			return t
		}
	}
	return time.Time{}
}

// User is the profile of the authenticated account.
type User struct {
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Groups   []string `json:"groups"`
}

// Tokens is the credential pair issued by login, registration, refresh and
// credential-changing profile updates.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
}

// ParseDataURL splits an inline "data:<mime>;base64,<payload>" URL.
// Returns (mime type, file suffix, decoded bytes, error).
//
// Example:
//
//	mime, suffix, data, err := ParseDataURL("data:image/png;base64,iVBORw0KGgo=")
//	// mime = "image/png", suffix = "png"
func ParseDataURL(s string) (string, string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", "", nil, fmt.Errorf("not a data URL")
	}

	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", "", nil, fmt.Errorf("data URL has no payload separator")
	}

	mime, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return "", "", nil, fmt.Errorf("data URL is not base64 encoded")
	}
	mime = strings.TrimSpace(mime)
	if mime == "" {
		return "", "", nil, fmt.Errorf("data URL has no media type")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", "", nil, fmt.Errorf("decoding data URL payload: %w", err)
	}

	return mime, SuffixForMIME(mime), data, nil
}

// IsDataURL reports whether s is an inline data URL.
func IsDataURL(s string) bool {
	return strings.HasPrefix(s, "data:")
}

// SuffixForMIME returns the file suffix used when asking the backend for an
// upload slot, e.g. "image/jpeg" -> "jpg".
func SuffixForMIME(mime string) string {
	_, sub, ok := strings.Cut(mime, "/")
	if !ok || sub == "" {
		return "bin"
	}
	sub, _, _ = strings.Cut(sub, "+")
	if sub == "jpeg" {
		return "jpg"
	}
	return sub
}

// StripQuery returns the durable form of a presigned URL: the URL without
// its query string and fragment.
func StripQuery(rawURL string) string {
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
