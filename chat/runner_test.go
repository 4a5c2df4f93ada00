package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

type openerFunc func(ctx context.Context, req Request) (io.ReadCloser, error)

func (f openerFunc) OpenStream(ctx context.Context, req Request) (io.ReadCloser, error) {
	return f(ctx, req)
}

func bodyOpener(body string) Opener {
	return openerFunc(func(context.Context, Request) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(body)), nil
	})
}

type hookLog struct {
	mu        sync.Mutex
	snapshots [][]Message
	convIDs   []int64
	finished  []Message
}

func (h *hookLog) hooks() Hooks {
	return Hooks{
		Snapshot: func(m []Message) {
			h.mu.Lock()
			h.snapshots = append(h.snapshots, m)
			h.mu.Unlock()
		},
		Conversation: func(id int64) {
			h.mu.Lock()
			h.convIDs = append(h.convIDs, id)
			h.mu.Unlock()
		},
		Finish: func(m Message) {
			h.mu.Lock()
			h.finished = append(h.finished, m)
			h.mu.Unlock()
		},
	}
}

func (h *hookLog) last() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.snapshots) == 0 {
		return nil
	}
	return h.snapshots[len(h.snapshots)-1]
}

func TestRunnerStreamsToDone(t *testing.T) {
	body := "data: {\"type\":\"TEXT\",\"data\":\"Hel\",\"conversationId\":42}\n\n" +
		": keep-alive\n\n" +
		"data: {\"type\":\"TEXT\",\"data\":\"lo\"}\n\n" +
		"data: {\"done\":true}\n\n" +
		"data: {\"type\":\"TEXT\",\"data\":\"ignored\"}\n\n"

	log := &hookLog{}
	r := NewRunner(bodyOpener(body), log.hooks(), time.Hour)
	base := []Message{user("u1", "hello")}
	state, err := r.Run(context.Background(), base, Request{Message: "hello"})
	if err != nil || state != StateDone {
		t.Fatalf("Run = %s, %v", state, err)
	}

	msgs := log.last()
	if len(msgs) != 2 || msgs[1].Content != "Hello" {
		t.Fatalf("final transcript = %+v", msgs)
	}
	if len(log.convIDs) != 1 || log.convIDs[0] != 42 {
		t.Fatalf("conversation ids = %v", log.convIDs)
	}
	if len(log.finished) != 1 || log.finished[0].Content != "Hello" {
		t.Fatalf("finish calls = %+v", log.finished)
	}
	if len(base) != 1 {
		t.Fatal("base transcript modified")
	}
}

func TestRunnerSkipsMalformedFrame(t *testing.T) {
	body := "data: {\"type\":\"TEXT\",\"data\":\"a\"}\n\n" +
		"data: {not json\n\n" +
		"data: {\"type\":\"TEXT\",\"data\":\"b\"}\n\n" +
		"data: {\"done\":true}\n\n"

	log := &hookLog{}
	state, err := NewRunner(bodyOpener(body), log.hooks(), time.Hour).
		Run(context.Background(), nil, Request{Message: "x"})
	if err != nil || state != StateDone {
		t.Fatalf("Run = %s, %v", state, err)
	}
	if got := log.last()[0].Content; got != "ab" {
		t.Fatalf("content = %q, want ab", got)
	}
}

func TestRunnerCloseWithoutDone(t *testing.T) {
	log := &hookLog{}
	state, err := NewRunner(bodyOpener("data: {\"type\":\"TEXT\",\"data\":\"partial\"}\n\n"), log.hooks(), time.Hour).
		Run(context.Background(), nil, Request{Message: "x"})
	if err != nil || state != StateDone {
		t.Fatalf("Run = %s, %v", state, err)
	}
	if len(log.finished) != 1 || log.finished[0].Content != "partial" {
		t.Fatalf("finish calls = %+v", log.finished)
	}
}

func TestRunnerOpenError(t *testing.T) {
	boom := errors.New("502 bad gateway")
	log := &hookLog{}
	r := NewRunner(openerFunc(func(context.Context, Request) (io.ReadCloser, error) {
		return nil, boom
	}), log.hooks(), time.Hour)

	state, err := r.Run(context.Background(), []Message{user("u", "q")}, Request{Message: "q"})
	if !errors.Is(err, boom) || state != StateFailed {
		t.Fatalf("Run = %s, %v", state, err)
	}
	if len(log.snapshots) != 0 {
		t.Fatalf("no assistant message should be appended on open failure: %+v", log.snapshots)
	}
}

func TestRunnerReadError(t *testing.T) {
	boom := errors.New("connection reset")
	log := &hookLog{}
	r := NewRunner(openerFunc(func(context.Context, Request) (io.ReadCloser, error) {
		return io.NopCloser(io.MultiReader(
			strings.NewReader("data: {\"type\":\"TEXT\",\"data\":\"kept\"}\n\n"),
			errReader{boom},
		)), nil
	}), log.hooks(), time.Hour)

	state, err := r.Run(context.Background(), nil, Request{Message: "q"})
	if !errors.Is(err, boom) || state != StateFailed {
		t.Fatalf("Run = %s, %v", state, err)
	}
	if got := log.last(); len(got) != 1 || got[0].Content != "kept" {
		t.Fatalf("partial transcript lost: %+v", got)
	}
	if len(log.finished) != 0 {
		t.Fatal("failed stream should not finish")
	}
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }

func TestRunnerCancelKeepsPartialContent(t *testing.T) {
	pr, pw := io.Pipe()
	opener := openerFunc(func(ctx context.Context, _ Request) (io.ReadCloser, error) {
		go func() {
			<-ctx.Done()
			pw.CloseWithError(ctx.Err())
		}()
		return pr, nil
	})

	log := &hookLog{}
	r := NewRunner(opener, log.hooks(), time.Hour)

	type outcome struct {
		state State
		err   error
	}
	out := make(chan outcome, 1)
	go func() {
		s, err := r.Run(context.Background(), nil, Request{Message: "q"})
		out <- outcome{s, err}
	}()

	if _, err := io.WriteString(pw, "data: {\"type\":\"TEXT\",\"data\":\"part\"}\n\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, func() bool {
		m := log.last()
		return len(m) == 1 && m[0].Content == "part"
	})

	r.Cancel()
	r.Cancel()

	select {
	case res := <-out:
		if res.err != nil || res.state != StateAborted {
			t.Fatalf("Run = %s, %v", res.state, res.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Cancel")
	}
	if got := log.last()[0].Content; got != "part" {
		t.Fatalf("content = %q, want part", got)
	}
	if len(log.finished) != 0 {
		t.Fatal("canceled stream should not finish")
	}
}

func TestRunnerCancelBeforeRun(t *testing.T) {
	called := false
	r := NewRunner(openerFunc(func(context.Context, Request) (io.ReadCloser, error) {
		called = true
		return nil, errors.New("unreachable")
	}), Hooks{}, time.Hour)
	r.Cancel()
	state, err := r.Run(context.Background(), nil, Request{Message: "q"})
	if err != nil || state != StateAborted || called {
		t.Fatalf("Run = %s, %v, opened=%v", state, err, called)
	}
}
