package chat

import "sync"

// Queue holds follow-up messages typed while a stream is running and
// releases them one at a time. At most one submission is in flight:
// Submit only starts immediately when nothing is streaming, and Drain
// only hands out the next item once the current stream has finished.
type Queue struct {
	mu       sync.Mutex
	items    []string
	inFlight bool
}

// Enqueue appends text to the queue without submitting it.
func (q *Queue) Enqueue(text string) {
	q.mu.Lock()
	q.items = append(q.items, text)
	q.mu.Unlock()
}

// DequeueOne removes and returns the head of the queue.
func (q *Queue) DequeueOne() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// Submit offers text for sending. If a stream is in flight the text is
// queued and ok is false. Otherwise ok is true and send is what to send
// now: the head of the queue when items were left behind by a Release,
// with text appended behind them, or text itself.
func (q *Queue) Submit(text string) (send string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inFlight {
		q.items = append(q.items, text)
		return "", false
	}
	q.inFlight = true
	if len(q.items) == 0 {
		return text, true
	}
	q.items = append(q.items, text)
	head, _ := q.popLocked()
	return head, true
}

// Drain is called when a stream finishes. If anything is queued, the
// head is popped and passed to submit on a new goroutine, so the
// finishing callback returns before the next stream starts. It reports
// whether a message was handed out.
func (q *Queue) Drain(submit func(text string)) bool {
	q.mu.Lock()
	q.inFlight = false
	text, ok := q.popLocked()
	if ok {
		q.inFlight = true
	}
	q.mu.Unlock()

	if ok {
		go submit(text)
	}
	return ok
}

// Release marks the current stream as over without draining. Used when
// a stream is cancelled or fails; queued items go out ahead of the next
// submission.
func (q *Queue) Release() {
	q.mu.Lock()
	q.inFlight = false
	q.mu.Unlock()
}

// InFlight reports whether a submission is running.
func (q *Queue) InFlight() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlight
}

// Items returns a copy of the queued texts, head first.
func (q *Queue) Items() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.items))
	copy(out, q.items)
	return out
}

// Clear drops every queued item.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}

func (q *Queue) popLocked() (string, bool) {
	if len(q.items) == 0 {
		return "", false
	}
	head := q.items[0]
	q.items = q.items[1:]
	return head, true
}
