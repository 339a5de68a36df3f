package chat

import (
	"context"
	"sync"
)

type gateResult struct {
	id  int64
	err error
}

// ConversationGate lets concurrent senders share a single conversation
// creation. The first caller creates; callers arriving while that creation
// is in flight wait for it and reuse its result. A gate may be shared by
// several orchestrators.
type ConversationGate struct {
	mu       sync.Mutex
	inflight bool
	waiters  []chan gateResult
}

// NewConversationGate creates an idle gate.
func NewConversationGate() *ConversationGate {
	return &ConversationGate{}
}

// Do runs create unless a creation is already in flight, in which case it
// waits for that one. created reports whether this caller ran create.
// A waiter whose ctx ends stops waiting without affecting the creation.
func (g *ConversationGate) Do(ctx context.Context, create func(context.Context) (int64, error)) (id int64, created bool, err error) {
	g.mu.Lock()
	if g.inflight {
		ch := make(chan gateResult, 1)
		g.waiters = append(g.waiters, ch)
		g.mu.Unlock()

		select {
		case r := <-ch:
			return r.id, false, r.err
		case <-ctx.Done():
			return 0, false, context.Cause(ctx)
		}
	}
	g.inflight = true
	g.mu.Unlock()

	id, err = create(ctx)

	g.mu.Lock()
	waiters := g.waiters
	g.waiters = nil
	g.inflight = false
	g.mu.Unlock()

	for _, ch := range waiters {
		ch <- gateResult{id: id, err: err}
	}
	return id, true, err
}
