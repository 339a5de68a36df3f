package chat

import (
	"strings"
	"sync"

	"github.com/longkey1/chatc/internal/chatc"
)

// Snapshot is a point-in-time copy of a transcript.
type Snapshot struct {
	Turns        []chatc.Turn
	Pending      string
	Failed       bool
	ErrorMessage string
}

// Transcript is the ordered history of a conversation plus the assistant
// reply currently being streamed.
type Transcript struct {
	mu        sync.Mutex
	turns     []chatc.Turn
	pending   strings.Builder
	failed    bool
	errMsg    string
	observers []func(Snapshot)
}

// NewTranscript creates a transcript holding a copy of turns.
func NewTranscript(turns []chatc.Turn) *Transcript {
	return &Transcript{turns: chatc.CloneTurns(turns)}
}

// OnChange registers fn to be called after every mutation.
// Observers run outside the transcript lock, in registration order.
func (t *Transcript) OnChange(fn func(Snapshot)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, fn)
}

// Turns returns a copy of the completed turns.
func (t *Transcript) Turns() []chatc.Turn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return chatc.CloneTurns(t.turns)
}

// Pending returns the in-progress assistant text.
func (t *Transcript) Pending() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending.String()
}

// Snapshot returns a copy of the whole transcript state.
func (t *Transcript) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Replace swaps the turns and clears the pending buffer and error.
func (t *Transcript) Replace(turns []chatc.Turn) {
	t.update(func() bool {
		t.turns = chatc.CloneTurns(turns)
		t.resetLocked()
		return true
	})
}

// Begin clears the pending buffer and error at the start of a turn.
func (t *Transcript) Begin() {
	t.update(func() bool {
		t.resetLocked()
		return true
	})
}

// AppendUser appends a user turn.
func (t *Transcript) AppendUser(turn chatc.Turn) {
	t.update(func() bool {
		t.turns = append(t.turns, turn.Clone())
		return true
	})
}

// AppendChunk appends text to the pending assistant reply.
func (t *Transcript) AppendChunk(text string) {
	if text == "" {
		return
	}
	t.update(func() bool {
		t.pending.WriteString(text)
		return true
	})
}

// BackfillUserMessageID assigns id to the most recent user turn if it has
// none yet. An existing ID is never overwritten. Reports whether a turn
// was updated.
func (t *Transcript) BackfillUserMessageID(id int64) bool {
	var updated bool
	t.update(func() bool {
		for i := len(t.turns) - 1; i >= 0; i-- {
			if t.turns[i].Role != chatc.RoleUser {
				continue
			}
			if !t.turns[i].HasID() {
				t.turns[i].MessageID = chatc.Int64(id)
				updated = true
			}
			break
		}
		return updated
	})
	return updated
}

// Finalize moves a non-empty pending buffer into a new assistant turn with
// the given message ID. An empty buffer produces no turn.
func (t *Transcript) Finalize(messageID *int64) (chatc.Turn, bool) {
	var turn chatc.Turn
	var ok bool
	t.update(func() bool {
		if t.pending.Len() == 0 {
			return false
		}
		turn = chatc.Turn{Role: chatc.RoleAssistant, Content: chatc.TextContent(t.pending.String())}
		if messageID != nil {
			turn.MessageID = chatc.Int64(*messageID)
		}
		t.turns = append(t.turns, turn)
		t.pending.Reset()
		ok = true
		return true
	})
	return turn, ok
}

// Discard drops the pending buffer.
func (t *Transcript) Discard() {
	t.update(func() bool {
		if t.pending.Len() == 0 {
			return false
		}
		t.pending.Reset()
		return true
	})
}

// Fail records an error. The pending buffer is left untouched.
func (t *Transcript) Fail(message string) {
	t.update(func() bool {
		t.failed = true
		t.errMsg = message
		return true
	})
}

func (t *Transcript) update(mutate func() bool) {
	t.mu.Lock()
	if !mutate() {
		t.mu.Unlock()
		return
	}
	snap := t.snapshotLocked()
	observers := t.observers
	t.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}

func (t *Transcript) resetLocked() {
	t.pending.Reset()
	t.failed = false
	t.errMsg = ""
}

func (t *Transcript) snapshotLocked() Snapshot {
	return Snapshot{
		Turns:        chatc.CloneTurns(t.turns),
		Pending:      t.pending.String(),
		Failed:       t.failed,
		ErrorMessage: t.errMsg,
	}
}
