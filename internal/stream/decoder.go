package stream

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
)

// wireEvent is the union of all fields any event line may carry.
type wireEvent struct {
	Type          string          `json:"type"`
	UserMessageID *int64          `json:"user_message_id"`
	Content       string          `json:"content"`
	AIMessageID   *int64          `json:"ai_message_id"`
	Detail        json.RawMessage `json:"detail"`
}

// Decoder turns arbitrarily chunked bytes into events.
//
// A Decoder is used for exactly one turn and is not safe for concurrent use.
// Once a terminal event has been produced, or Finish has been called, every
// further call returns nil.
type Decoder struct {
	buf      []byte
	done     bool
	finished bool
	skipped  int
	logger   *slog.Logger
}

// NewDecoder creates a decoder. A nil logger uses slog.Default().
func NewDecoder(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{logger: logger}
}

// Feed appends p to the internal buffer and returns the events of every
// complete line now available, in order. A trailing partial line is kept
// until more bytes arrive or Finish is called.
func (d *Decoder) Feed(p []byte) []Event {
	if d.done || d.finished {
		return nil
	}
	d.buf = append(d.buf, p...)

	var events []Event
	for !d.done {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := d.buf[:i]
		if ev, ok := d.parseLine(line); ok {
			events = append(events, ev)
			d.done = ev.Terminal()
		}
		d.buf = d.buf[i+1:]
	}

	if d.done {
		d.buf = nil
	} else if len(d.buf) == 0 {
		d.buf = d.buf[:0:0]
	}
	return events
}

// Finish decodes whatever remains in the buffer as a final line. It is
// idempotent and yields nothing when the buffer is empty.
func (d *Decoder) Finish() []Event {
	if d.done || d.finished {
		return nil
	}
	d.finished = true

	rest := d.buf
	d.buf = nil
	if ev, ok := d.parseLine(rest); ok {
		d.done = ev.Terminal()
		return []Event{ev}
	}
	return nil
}

// Done reports whether a terminal event has been produced.
func (d *Decoder) Done() bool {
	return d.done
}

// Skipped returns the number of non-empty lines dropped as malformed or
// unrecognised.
func (d *Decoder) Skipped() int {
	return d.skipped
}

// Buffered returns the number of bytes waiting for a line terminator.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

func (d *Decoder) parseLine(line []byte) (Event, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, false
	}

	var w wireEvent
	if err := json.Unmarshal(line, &w); err != nil {
		d.skipped++
		d.logger.Warn("skipping malformed stream line", "error", err, "line", truncate(line, 200))
		return nil, false
	}

	switch w.Type {
	case TypeUserMessageID:
		if w.UserMessageID == nil || *w.UserMessageID == 0 {
			d.logger.Debug("user_message_id event without id")
			return nil, false
		}
		return UserMessageID{ID: *w.UserMessageID}, true
	case TypeChunk:
		if w.Content == "" {
			return nil, false
		}
		return Chunk{Text: w.Content}, true
	case TypeComplete:
		return Complete{FinalMessageID: w.AIMessageID}, true
	case TypeError:
		return Error{Detail: errorDetail(w.Detail)}, true
	default:
		d.skipped++
		d.logger.Warn("skipping unknown stream event", "type", w.Type)
		return nil, false
	}
}

// errorDetail renders the detail field of an error event. Non-string details
// are reported as their JSON text.
func errorDetail(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return DefaultErrorDetail
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return DefaultErrorDetail
		}
		return s
	}
	return string(raw)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
