package chat

import (
	"sync"
	"time"
)

// DefaultGapThreshold is how long the stream may stay silent before the
// waiting indicator turns on.
const DefaultGapThreshold = 800 * time.Millisecond

// GapDetector raises a waiting signal when no block has arrived for
// longer than its threshold. Start arms it, OnEvent re-arms it, Stop
// disarms it and forces the signal off.
//
// onChange runs on the timer goroutine for the rising edge and on the
// caller's goroutine otherwise. Calls are serialized and arrive in the
// order the state changed; onChange must not call back into the
// detector.
type GapDetector struct {
	threshold time.Duration
	onChange  func(waiting bool)

	// deliver is held across a state change and its callback.
	deliver sync.Mutex

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	waiting bool
	active  bool
}

// NewGapDetector creates a disarmed detector. A non-positive threshold
// uses DefaultGapThreshold.
func NewGapDetector(threshold time.Duration, onChange func(waiting bool)) *GapDetector {
	if threshold <= 0 {
		threshold = DefaultGapThreshold
	}
	if onChange == nil {
		onChange = func(bool) {}
	}
	return &GapDetector{threshold: threshold, onChange: onChange}
}

// Start arms the detector at the beginning of a stream.
func (g *GapDetector) Start() {
	g.mu.Lock()
	g.active = true
	g.scheduleLocked()
	g.mu.Unlock()
}

// OnEvent records a block arrival: the indicator drops and the timer
// starts over.
func (g *GapDetector) OnEvent() {
	g.deliver.Lock()
	defer g.deliver.Unlock()

	g.mu.Lock()
	if !g.active {
		g.mu.Unlock()
		return
	}
	wasWaiting := g.waiting
	g.waiting = false
	g.scheduleLocked()
	g.mu.Unlock()

	if wasWaiting {
		g.onChange(false)
	}
}

// Stop disarms the detector at stream end. It always reports false so
// the consumer ends in a known state. Calling Stop twice is harmless.
func (g *GapDetector) Stop() {
	g.deliver.Lock()
	defer g.deliver.Unlock()

	g.mu.Lock()
	wasActive := g.active
	g.active = false
	g.waiting = false
	g.gen++
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.mu.Unlock()

	if wasActive {
		g.onChange(false)
	}
}

// Waiting reports the current signal.
func (g *GapDetector) Waiting() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waiting
}

func (g *GapDetector) scheduleLocked() {
	if g.timer != nil {
		g.timer.Stop()
	}
	g.gen++
	gen := g.gen
	g.timer = time.AfterFunc(g.threshold, func() { g.fire(gen) })
}

func (g *GapDetector) fire(gen uint64) {
	g.deliver.Lock()
	defer g.deliver.Unlock()

	g.mu.Lock()
	if !g.active || gen != g.gen || g.waiting {
		g.mu.Unlock()
		return
	}
	g.waiting = true
	g.mu.Unlock()

	g.onChange(true)
}
