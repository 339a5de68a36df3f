package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"
)

const readSize = 4096

// Stream is an open event stream over a response body.
type Stream struct {
	body      io.ReadCloser
	dec       *Decoder
	closeOnce sync.Once
	closeErr  error
}

// NewStream wraps body. The stream owns body and closes it when iteration
// ends or Close is called. A nil logger uses slog.Default().
func NewStream(body io.ReadCloser, logger *slog.Logger) *Stream {
	return &Stream{body: body, dec: NewDecoder(logger)}
}

// Events returns a single-use sequence of decoded events. Iteration stops
// after a terminal event, at end of input, or at the first read error, which
// is yielded with a nil event. When ctx is done the cause of its
// cancellation is yielded.
func (s *Stream) Events(ctx context.Context) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		defer s.Close()

		buf := make([]byte, readSize)
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, context.Cause(ctx))
				return
			}

			n, err := s.body.Read(buf)
			if n > 0 {
				for _, ev := range s.dec.Feed(buf[:n]) {
					if !yield(ev, nil) {
						return
					}
				}
				if s.dec.Done() {
					return
				}
			}

			if err != nil {
				if errors.Is(err, io.EOF) {
					for _, ev := range s.dec.Finish() {
						if !yield(ev, nil) {
							return
						}
					}
					return
				}
				if ctx.Err() != nil {
					yield(nil, context.Cause(ctx))
					return
				}
				yield(nil, fmt.Errorf("reading event stream: %w", err))
				return
			}
		}
	}
}

// Skipped returns the number of lines dropped so far.
func (s *Stream) Skipped() int {
	return s.dec.Skipped()
}

// Close releases the underlying body. It is safe to call more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
