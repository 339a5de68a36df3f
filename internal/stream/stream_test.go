package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// trickleReader returns at most n bytes per Read.
type trickleReader struct {
	r      io.Reader
	n      int
	closed bool
	err    error
}

func (t *trickleReader) Read(p []byte) (int, error) {
	if len(p) > t.n {
		p = p[:t.n]
	}
	n, err := t.r.Read(p)
	if errors.Is(err, io.EOF) && t.err != nil {
		return n, t.err
	}
	return n, err
}

func (t *trickleReader) Close() error {
	t.closed = true
	return nil
}

func TestStreamEvents(t *testing.T) {
	body := &trickleReader{r: strings.NewReader(sampleStream), n: 3}
	s := NewStream(body, quietLogger())

	var got []Event
	for ev, err := range s.Events(context.Background()) {
		require.NoError(t, err)
		got = append(got, ev)
	}

	require.Len(t, got, 4)
	require.Equal(t, UserMessageID{ID: 5}, got[0])
	require.Equal(t, Complete{FinalMessageID: int64p(6)}, got[3])
	require.True(t, body.closed, "body must be closed after iteration")
}

func TestStreamStopsAtTerminal(t *testing.T) {
	input := "{\"type\":\"error\",\"detail\":\"boom\"}\n{\"type\":\"ai_chunk\",\"content\":\"never\"}\n"
	s := NewStream(io.NopCloser(strings.NewReader(input)), quietLogger())

	var got []Event
	for ev, err := range s.Events(context.Background()) {
		require.NoError(t, err)
		got = append(got, ev)
	}
	require.Equal(t, []Event{Error{Detail: "boom"}}, got)
}

func TestStreamFinishesPartialLineAtEOF(t *testing.T) {
	s := NewStream(io.NopCloser(strings.NewReader(`{"type":"ai_chunk","content":"end"}`)), quietLogger())

	var got []Event
	for ev, err := range s.Events(context.Background()) {
		require.NoError(t, err)
		got = append(got, ev)
	}
	require.Equal(t, []Event{Chunk{Text: "end"}}, got)
}

func TestStreamReadError(t *testing.T) {
	boom := errors.New("connection reset")
	body := &trickleReader{r: strings.NewReader("{\"type\":\"ai_chunk\",\"content\":\"a\"}\n"), n: 64, err: boom}
	s := NewStream(body, quietLogger())

	var events []Event
	var gotErr error
	for ev, err := range s.Events(context.Background()) {
		if err != nil {
			gotErr = err
			continue
		}
		events = append(events, ev)
	}
	require.Equal(t, []Event{Chunk{Text: "a"}}, events)
	require.ErrorIs(t, gotErr, boom)
}

func TestStreamCancelledContextYieldsCause(t *testing.T) {
	aborted := errors.New("aborted by user")
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(aborted)

	s := NewStream(io.NopCloser(strings.NewReader(sampleStream)), quietLogger())
	var gotErr error
	for ev, err := range s.Events(ctx) {
		require.Nil(t, ev)
		gotErr = err
	}
	require.ErrorIs(t, gotErr, aborted)
}

func TestStreamEarlyBreakCloses(t *testing.T) {
	body := &trickleReader{r: strings.NewReader(sampleStream), n: 4096}
	s := NewStream(body, quietLogger())
	for range s.Events(context.Background()) {
		break
	}
	require.True(t, body.closed)
	require.NoError(t, s.Close())
}
