package chatc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Part types understood by the backend.
const (
	PartText  = "text"
	PartImage = "image_url"
)

// ContentPart is one element of a multi-part turn body.
type ContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// TextPart returns a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartText, Text: text}
}

// ImagePart returns an image content part referencing url, which is either a
// durable URL or an inline data URL.
func ImagePart(url string) ContentPart {
	return ContentPart{Type: PartImage, ImageURL: url}
}

// Content is the body of a turn: either plain text or an ordered list of
// parts. It marshals to a JSON string or a JSON array respectively.
type Content struct {
	Text  string
	Parts []ContentPart
}

// TextContent returns plain text content.
func TextContent(text string) Content {
	return Content{Text: text}
}

// PartsContent returns multi-part content.
func PartsContent(parts ...ContentPart) Content {
	if parts == nil {
		parts = []ContentPart{}
	}
	return Content{Parts: parts}
}

// IsParts reports whether the content is multi-part.
func (c Content) IsParts() bool {
	return c.Parts != nil
}

// PlainText returns the text of the content, joining the text parts of
// multi-part content with newlines.
func (c Content) PlainText() string {
	if !c.IsParts() {
		return c.Text
	}
	var texts []string
	for _, p := range c.Parts {
		if p.Type == PartText && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Images returns the image URLs referenced by the content, in order.
func (c Content) Images() []string {
	var urls []string
	for _, p := range c.Parts {
		if p.Type == PartImage {
			urls = append(urls, p.ImageURL)
		}
	}
	return urls
}

// MapImages returns a copy of the content with every image URL replaced by
// fn(url). Text content is returned unchanged.
func (c Content) MapImages(fn func(string) string) Content {
	if !c.IsParts() {
		return c
	}
	parts := make([]ContentPart, len(c.Parts))
	for i, p := range c.Parts {
		if p.Type == PartImage {
			p.ImageURL = fn(p.ImageURL)
		}
		parts[i] = p
	}
	return Content{Parts: parts}
}

// MarshalJSON implements json.Marshaler.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsParts() {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*c = Content{}
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Content{Text: s}
		return nil
	case len(data) > 0 && data[0] == '[':
		var parts []ContentPart
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		*c = PartsContent(parts...)
		return nil
	default:
		return fmt.Errorf("content must be a string or an array of parts")
	}
}

// Turn represents a single message in a conversation.
type Turn struct {
	MessageID *int64  `json:"message_id,omitempty"` // Backend ID, absent until acknowledged
	Role      Role    `json:"role"`                 // "user" or "assistant"
	Content   Content `json:"content"`              // Text or ordered parts
	Timestamp *string `json:"timestamp,omitempty"`  // Only set on history fetched from the backend
}

// HasID reports whether the backend has acknowledged the turn.
func (t Turn) HasID() bool {
	return t.MessageID != nil
}

// Clone returns a deep copy of the turn.
func (t Turn) Clone() Turn {
	out := t
	if t.MessageID != nil {
		id := *t.MessageID
		out.MessageID = &id
	}
	if t.Content.Parts != nil {
		out.Content.Parts = append([]ContentPart(nil), t.Content.Parts...)
	}
	return out
}

// CloneTurns returns a deep copy of turns.
func CloneTurns(turns []Turn) []Turn {
	if turns == nil {
		return nil
	}
	out := make([]Turn, len(turns))
	for i, t := range turns {
		out[i] = t.Clone()
	}
	return out
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}
