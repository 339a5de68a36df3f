package stream

import (
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeAll(chunks ...string) []Event {
	d := NewDecoder(quietLogger())
	var events []Event
	for _, c := range chunks {
		events = append(events, d.Feed([]byte(c))...)
	}
	return append(events, d.Finish()...)
}

func int64p(v int64) *int64 { return &v }

const sampleStream = `{"type":"user_message_id","user_message_id":5}
{"type":"ai_chunk","content":"hé"}
{"type":"ai_chunk","content":"llo 世界"}
{"type":"complete","ai_message_id":6}
`

func TestDecoderChunkBoundaryIndependence(t *testing.T) {
	want := []Event{
		UserMessageID{ID: 5},
		Chunk{Text: "hé"},
		Chunk{Text: "llo 世界"},
		Complete{FinalMessageID: int64p(6)},
	}

	if got := decodeAll(sampleStream); !reflect.DeepEqual(got, want) {
		t.Fatalf("single feed = %#v, want %#v", got, want)
	}

	// Every two-way split, including splits inside multi-byte characters.
	for i := 0; i <= len(sampleStream); i++ {
		got := decodeAll(sampleStream[:i], sampleStream[i:])
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("split at %d = %#v, want %#v", i, got, want)
		}
	}

	// Byte at a time.
	var bytewise []string
	for i := 0; i < len(sampleStream); i++ {
		bytewise = append(bytewise, sampleStream[i:i+1])
	}
	if got := decodeAll(bytewise...); !reflect.DeepEqual(got, want) {
		t.Fatalf("bytewise = %#v, want %#v", got, want)
	}
}

func TestDecoderClassification(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		want        []Event
		wantSkipped int
	}{
		{
			name:  "chunks then finish without terminator",
			input: "{\"type\":\"ai_chunk\",\"content\":\"hi \"}\n{\"type\":\"ai_chunk\",\"content\":\"there\"}",
			want:  []Event{Chunk{Text: "hi "}, Chunk{Text: "there"}},
		},
		{
			name:  "complete without id",
			input: "{\"type\":\"complete\"}\n",
			want:  []Event{Complete{}},
		},
		{
			name:  "error with detail",
			input: "{\"type\":\"ai_chunk\",\"content\":\"par\"}\n{\"type\":\"error\",\"detail\":\"model overloaded\"}\n",
			want:  []Event{Chunk{Text: "par"}, Error{Detail: "model overloaded"}},
		},
		{
			name:  "error without detail",
			input: "{\"type\":\"error\"}\n",
			want:  []Event{Error{Detail: DefaultErrorDetail}},
		},
		{
			name:  "error with structured detail",
			input: "{\"type\":\"error\",\"detail\":{\"code\":429}}\n",
			want:  []Event{Error{Detail: `{"code":429}`}},
		},
		{
			name:  "empty chunk and missing user id are ignored",
			input: "{\"type\":\"ai_chunk\",\"content\":\"\"}\n{\"type\":\"user_message_id\"}\n{\"type\":\"ai_chunk\",\"content\":\"x\"}\n",
			want:  []Event{Chunk{Text: "x"}},
		},
		{
			name:        "malformed and unknown lines are skipped",
			input:       "{\"type\":\"ai_chunk\",\"content\":\"a\"}\nnot json\n{\"type\":\"ping\"}\n{\"type\":\"ai_chunk\",\"content\":\"b\"}\n",
			want:        []Event{Chunk{Text: "a"}, Chunk{Text: "b"}},
			wantSkipped: 2,
		},
		{
			name:  "blank and CRLF lines",
			input: "\n\r\n{\"type\":\"ai_chunk\",\"content\":\"a\"}\r\n\n",
			want:  []Event{Chunk{Text: "a"}},
		},
		{
			name:  "events after terminal are dropped",
			input: "{\"type\":\"complete\",\"ai_message_id\":1}\n{\"type\":\"ai_chunk\",\"content\":\"late\"}\n",
			want:  []Event{Complete{FinalMessageID: int64p(1)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder(quietLogger())
			got := append(d.Feed([]byte(tt.input)), d.Finish()...)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("events = %#v, want %#v", got, tt.want)
			}
			if d.Skipped() != tt.wantSkipped {
				t.Errorf("Skipped() = %d, want %d", d.Skipped(), tt.wantSkipped)
			}
		})
	}
}

func TestDecoderHiThere(t *testing.T) {
	d := NewDecoder(quietLogger())
	var text strings.Builder
	for _, chunk := range []string{"{\"type\":\"ai_chu", "nk\",\"content\":\"hi \"}\n{\"type\":\"ai_chunk\",\"content\":\"there\"}\n"} {
		for _, ev := range d.Feed([]byte(chunk)) {
			if c, ok := ev.(Chunk); ok {
				text.WriteString(c.Text)
			}
		}
	}
	events := d.Feed([]byte("{\"type\":\"complete\",\"ai_message_id\":42}\n"))

	if text.String() != "hi there" {
		t.Errorf("accumulated text = %q, want %q", text.String(), "hi there")
	}
	if len(events) != 1 {
		t.Fatalf("events = %#v, want one complete event", events)
	}
	c, ok := events[0].(Complete)
	if !ok || c.FinalMessageID == nil || *c.FinalMessageID != 42 {
		t.Errorf("complete = %#v, want FinalMessageID 42", events[0])
	}
	if !d.Done() {
		t.Error("Done() = false after complete")
	}
	if got := d.Feed([]byte("{\"type\":\"ai_chunk\",\"content\":\"x\"}\n")); got != nil {
		t.Errorf("Feed() after terminal = %#v, want nil", got)
	}
}

func TestDecoderFinishIdempotent(t *testing.T) {
	d := NewDecoder(quietLogger())
	if got := d.Finish(); got != nil {
		t.Errorf("Finish() on empty buffer = %#v, want nil", got)
	}
	if got := d.Finish(); got != nil {
		t.Errorf("second Finish() = %#v, want nil", got)
	}

	d = NewDecoder(quietLogger())
	d.Feed([]byte(`{"type":"ai_chunk","content":"tail"}`))
	if d.Buffered() == 0 {
		t.Fatal("Buffered() = 0, want partial line retained")
	}
	first := d.Finish()
	if !reflect.DeepEqual(first, []Event{Chunk{Text: "tail"}}) {
		t.Errorf("Finish() = %#v, want tail chunk", first)
	}
	if got := d.Finish(); got != nil {
		t.Errorf("second Finish() = %#v, want nil", got)
	}
	if got := d.Feed([]byte("{\"type\":\"ai_chunk\",\"content\":\"x\"}\n")); got != nil {
		t.Errorf("Feed() after Finish = %#v, want nil", got)
	}
}

func TestDecoderFinishMalformedTail(t *testing.T) {
	d := NewDecoder(quietLogger())
	d.Feed([]byte(`{"type":"ai_chunk","content":"trunc`))
	if got := d.Finish(); got != nil {
		t.Errorf("Finish() = %#v, want nil for truncated line", got)
	}
	if d.Skipped() != 1 {
		t.Errorf("Skipped() = %d, want 1", d.Skipped())
	}
}
