// Package stream decodes the newline-delimited JSON event stream produced by
// the chat send endpoint.
//
// Each line is one JSON object with a "type" field. The decoder tolerates
// arbitrary chunking of the byte stream, drops lines it cannot understand and
// stops at the first terminal event.
package stream

// Wire values of the "type" field.
const (
	TypeUserMessageID = "user_message_id"
	TypeChunk         = "ai_chunk"
	TypeComplete      = "complete"
	TypeError         = "error"
)

// DefaultErrorDetail is reported when an error event carries no detail.
const DefaultErrorDetail = "Server error"

// Event is one decoded stream event. The concrete type is one of
// UserMessageID, Chunk, Complete or Error.
type Event interface {
	// Terminal reports whether no further events follow this one.
	Terminal() bool
	isEvent()
}

// UserMessageID carries the backend ID assigned to the user turn being sent.
type UserMessageID struct {
	ID int64
}

// Chunk is a fragment of assistant output.
type Chunk struct {
	Text string
}

// Complete ends a successful turn. FinalMessageID is nil when the backend did
// not report an ID for the assistant turn.
type Complete struct {
	FinalMessageID *int64
}

// Error ends a turn with a server-side failure.
type Error struct {
	Detail string
}

func (UserMessageID) Terminal() bool { return false }
func (Chunk) Terminal() bool         { return false }
func (Complete) Terminal() bool      { return true }
func (Error) Terminal() bool         { return true }

func (UserMessageID) isEvent() {}
func (Chunk) isEvent()         {}
func (Complete) isEvent()      {}
func (Error) isEvent()         {}
