// runner.go connects an SSE response body to the Accumulator.
//
// Flow:
//  1. Open the stream (the Opener handles auth and the one refresh retry)
//  2. On success, append the empty assistant message (Streaming)
//  3. Pull frames, parse blocks, apply them in wire order
//  4. Stop at the first done marker, body close, error, or Cancel
package chat

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/DachengChen/paiconsole/applog"
	"github.com/DachengChen/paiconsole/chat/sse"
)

// Request is the body of a chat submission. Fields beyond Message and
// ConversationID are passed through to the server untouched.
type Request struct {
	Message        string `json:"message"`
	ConversationID *int64 `json:"conversationId,omitempty"`
	ConnectionID   int64  `json:"connectionId,omitempty"`
	DatabaseName   string `json:"databaseName,omitempty"`
	SchemaName     string `json:"schemaName,omitempty"`
}

// Opener starts a chat stream. A returned body is a 2xx SSE response.
type Opener interface {
	OpenStream(ctx context.Context, req Request) (io.ReadCloser, error)
}

// Hooks receive stream progress. Any of them may be nil. Snapshot,
// Conversation and Finish run on the goroutine that called Run; Waiting
// may also run on a timer goroutine.
type Hooks struct {
	Snapshot     func(messages []Message)
	Conversation func(id int64)
	Finish       func(msg Message)
	Waiting      func(waiting bool)
}

// Runner drives a single stream. Create one per submission.
type Runner struct {
	opener Opener
	hooks  Hooks
	gap    time.Duration

	mu       sync.Mutex
	cancel   context.CancelFunc
	canceled bool
}

// NewRunner creates a runner. gap is the waiting-indicator threshold.
func NewRunner(opener Opener, hooks Hooks, gap time.Duration) *Runner {
	return &Runner{opener: opener, hooks: hooks, gap: gap}
}

// Cancel aborts the stream. It is safe to call at any time, from any
// goroutine, any number of times.
func (r *Runner) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.canceled = true
	if r.cancel != nil {
		r.cancel()
	}
}

// Run streams the assistant's answer to req on top of base. It blocks
// until the stream ends and returns the terminal state. The error is
// nil for done, clean close and cancellation; otherwise it is the
// transport error, and the partial transcript has already been
// published through Snapshot.
func (r *Runner) Run(ctx context.Context, base []Message, req Request) (State, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	if r.canceled {
		r.mu.Unlock()
		return StateAborted, nil
	}
	r.cancel = cancel
	r.mu.Unlock()

	acc := NewAccumulator(base)

	body, err := r.opener.OpenStream(ctx, req)
	if err != nil {
		if IsCanceled(err) || ctx.Err() != nil {
			acc.Abort()
			return acc.State(), nil
		}
		acc.Fail()
		applog.Error("chat stream open: %v", err)
		return acc.State(), err
	}
	defer body.Close()

	gap := NewGapDetector(r.gap, r.hooks.Waiting)
	defer gap.Stop()

	u, _ := acc.Begin()
	r.publish(u)
	gap.Start()

	start := time.Now()
	frames := 0
	dec := sse.NewDecoder(body)
	for {
		frame, err := dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				applog.Debug("chat stream closed without done after %d frames", frames)
				if u, ok := acc.Close(); ok {
					r.publish(u)
				}
				return acc.State(), nil
			}
			if ctx.Err() != nil || IsCanceled(err) {
				acc.Abort()
				applog.Debug("chat stream canceled after %d frames", frames)
				return acc.State(), nil
			}
			acc.Fail()
			applog.Error("chat stream read: %v", err)
			return acc.State(), err
		}
		frames++

		block, ok := ParseBlock(frame.Data)
		if !ok {
			applog.Debug("chat stream: skipped malformed frame %d", frames)
			continue
		}
		gap.OnEvent()

		u, ok := acc.Apply(block)
		if !ok {
			continue
		}
		r.publish(u)
		if u.Finished {
			applog.Debug("chat stream done frames=%d dur=%s", frames, time.Since(start))
			return acc.State(), nil
		}
	}
}

func (r *Runner) publish(u Update) {
	if u.NewConversation && r.hooks.Conversation != nil {
		r.hooks.Conversation(u.ConversationID)
	}
	if r.hooks.Snapshot != nil {
		r.hooks.Snapshot(u.Messages)
	}
	if u.Finished && r.hooks.Finish != nil {
		r.hooks.Finish(u.Open)
	}
}
