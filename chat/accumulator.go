package chat

import (
	"context"
	"errors"
	"time"
)

// State is the lifecycle position of one stream.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateDone
	StateAborted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further blocks will be accepted.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted || s == StateFailed
}

// IsCanceled reports whether err is a user cancellation rather than a
// transport failure.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// Update describes the effect of one accumulator step.
type Update struct {
	// Messages is the transcript after the step. It is a fresh slice and
	// is never modified afterwards.
	Messages []Message

	// Open is the assistant message being built, as of this step.
	Open Message

	// ConversationID is set on the first block that reports one, and only
	// then.
	ConversationID  int64
	NewConversation bool

	// Finished is true on the step that moved the stream to StateDone.
	Finished bool
}

// Accumulator builds the assistant turn for a single stream on top of
// an existing transcript. It is not safe for concurrent use; one
// goroutine feeds it blocks in wire order.
type Accumulator struct {
	msgs     []Message
	open     int
	state    State
	reported bool
	now      func() time.Time
}

// NewAccumulator starts from base, which is copied.
func NewAccumulator(base []Message) *Accumulator {
	msgs := make([]Message, len(base))
	copy(msgs, base)
	return &Accumulator{msgs: msgs, open: -1, now: time.Now}
}

// State returns the current lifecycle state.
func (a *Accumulator) State() State {
	return a.state
}

// Messages returns the current transcript snapshot.
func (a *Accumulator) Messages() []Message {
	return a.msgs
}

// Begin moves Idle to Streaming and appends the empty assistant message
// that subsequent blocks fill in. It returns false in any other state.
func (a *Accumulator) Begin() (Update, bool) {
	if a.state != StateIdle {
		return Update{}, false
	}
	a.state = StateStreaming
	next := make([]Message, len(a.msgs), len(a.msgs)+1)
	copy(next, a.msgs)
	a.msgs = append(next, Message{
		ID:        "pending-" + a.now().Format("150405.000000"),
		Role:      RoleAssistant,
		Timestamp: a.now(),
	})
	a.open = len(a.msgs) - 1
	return Update{Messages: a.msgs, Open: a.msgs[a.open]}, true
}

// Apply incorporates one block. Blocks outside StateStreaming, which
// includes anything after the first done marker, are ignored and Apply
// returns false.
func (a *Accumulator) Apply(b Block) (Update, bool) {
	if a.state != StateStreaming {
		return Update{}, false
	}

	var u Update
	if b.ConversationID != nil && !a.reported {
		a.reported = true
		u.ConversationID = *b.ConversationID
		u.NewConversation = true
	}

	a.replaceOpen(a.msgs[a.open].withBlock(b))

	if b.Done {
		a.state = StateDone
		u.Finished = true
	}
	u.Messages = a.msgs
	u.Open = a.msgs[a.open]
	return u, true
}

// Close handles the body ending without a done marker. The open message
// is finalized as if done had arrived.
func (a *Accumulator) Close() (Update, bool) {
	if a.state != StateStreaming {
		return Update{}, false
	}
	a.state = StateDone
	return Update{Messages: a.msgs, Open: a.msgs[a.open], Finished: true}, true
}

// Abort records a user cancellation. Partial content stays in the
// transcript. Aborting a finished stream is a no-op.
func (a *Accumulator) Abort() bool {
	if a.state.Terminal() {
		return false
	}
	a.state = StateAborted
	return true
}

// Fail records a transport failure. As with Abort, nothing already
// appended is rolled back.
func (a *Accumulator) Fail() bool {
	if a.state.Terminal() {
		return false
	}
	a.state = StateFailed
	return true
}

func (a *Accumulator) replaceOpen(m Message) {
	next := make([]Message, len(a.msgs))
	copy(next, a.msgs)
	next[a.open] = m
	a.msgs = next
}
