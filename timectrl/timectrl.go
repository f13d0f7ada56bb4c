package timectrl

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// FrameScheduler defers work to the next frame. Components such as the
// heatmap engine depend on this interface rather than a concrete clock so
// tests can drive frames by hand.
type FrameScheduler interface {
	// RequestFrame schedules fn to run once on a later frame. The returned
	// cancel prevents fn from running if it has not started yet.
	RequestFrame(fn func()) (cancel func())
}

// Mode describes how a FrameClock paces frames.
type Mode int

const (
	// RealTime fires each frame after the frame interval of wall-clock time.
	RealTime Mode = iota
	// Accelerated yields once and fires as soon as the goroutine is scheduled.
	Accelerated
)

// DefaultFrameInterval approximates a 60 Hz display.
const DefaultFrameInterval = 16 * time.Millisecond

// FrameClock is the production FrameScheduler.
type FrameClock struct {
	Interval time.Duration
	Mode     Mode

	frames atomic.Uint64
}

// NewFrameClock constructs a clock. A non-positive interval uses the default.
func NewFrameClock(interval time.Duration, mode Mode) *FrameClock {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &FrameClock{Interval: interval, Mode: mode}
}

// Frames returns how many callbacks have run.
func (c *FrameClock) Frames() uint64 {
	return c.frames.Load()
}

// RequestFrame implements FrameScheduler.
func (c *FrameClock) RequestFrame(fn func()) (cancel func()) {
	var cancelled atomic.Bool
	run := func() {
		if cancelled.Load() {
			return
		}
		c.frames.Add(1)
		fn()
	}

	if c.Mode == Accelerated {
		go func() {
			runtime.Gosched()
			run()
		}()
		return func() { cancelled.Store(true) }
	}

	timer := time.AfterFunc(c.Interval, run)
	return func() {
		cancelled.Store(true)
		timer.Stop()
	}
}

// ManualScheduler queues frames until Step is called. It is meant for
// tests that need to observe intermediate states.
type ManualScheduler struct {
	mu     sync.Mutex
	queue  []*manualFrame
	frames int
}

type manualFrame struct {
	fn        func()
	cancelled bool
}

// RequestFrame implements FrameScheduler.
func (m *ManualScheduler) RequestFrame(fn func()) (cancel func()) {
	f := &manualFrame{fn: fn}
	m.mu.Lock()
	m.queue = append(m.queue, f)
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		f.cancelled = true
		m.mu.Unlock()
	}
}

// Pending returns the number of queued, uncancelled frames.
func (m *ManualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, f := range m.queue {
		if !f.cancelled {
			n++
		}
	}
	return n
}

// Step runs every frame queued before the call and returns how many ran.
// Frames requested by those callbacks wait for the next Step.
func (m *ManualScheduler) Step() int {
	m.mu.Lock()
	batch := m.queue
	m.queue = nil
	m.mu.Unlock()

	ran := 0
	for _, f := range batch {
		m.mu.Lock()
		skip := f.cancelled
		m.mu.Unlock()
		if skip {
			continue
		}
		f.fn()
		ran++
	}
	m.mu.Lock()
	m.frames += ran
	m.mu.Unlock()
	return ran
}

// Drain steps until no frames remain or limit steps have run.
func (m *ManualScheduler) Drain(limit int) int {
	total := 0
	for i := 0; i < limit && m.Pending() > 0; i++ {
		total += m.Step()
	}
	return total
}
