package monitor

import (
	"sync"
	"time"
)

// Timer is the single countdown timer shared by every debouncing pin.
type Timer interface {
	// Reset arms the timer to fire after d, replacing any pending deadline.
	Reset(d time.Duration)
	// Stop disarms the timer.
	Stop()
	// Remaining returns the time left until the deadline and whether the
	// timer is armed. A timer that fired but was not re-armed is still armed
	// with zero remaining.
	Remaining() (time.Duration, bool)
	// C delivers the fire time.
	C() <-chan time.Time
}

// SystemTimer implements Timer with a time.Timer.
type SystemTimer struct {
	t        *time.Timer
	deadline time.Time
	armed    bool
}

// NewSystemTimer returns a stopped SystemTimer.
func NewSystemTimer() *SystemTimer {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return &SystemTimer{t: t}
}

func (s *SystemTimer) Reset(d time.Duration) {
	s.t.Reset(d)
	s.deadline = time.Now().Add(d)
	s.armed = true
}

func (s *SystemTimer) Stop() {
	s.t.Stop()
	s.armed = false
}

func (s *SystemTimer) Remaining() (time.Duration, bool) {
	if !s.armed {
		return 0, false
	}
	return max(time.Until(s.deadline), 0), true
}

func (s *SystemTimer) C() <-chan time.Time {
	return s.t.C
}

// FakeTimer is a Timer driven by an injected clock, for tests.
// It never fires on its own; tests check Due and call Monitor.Sweep.
type FakeTimer struct {
	Clock func() time.Time

	mu       sync.Mutex
	deadline time.Time
	armed    bool
	arms     []time.Duration
	stops    int
	c        chan time.Time
}

// NewFakeTimer returns a stopped FakeTimer reading time from clock.
func NewFakeTimer(clock func() time.Time) *FakeTimer {
	return &FakeTimer{Clock: clock, c: make(chan time.Time)}
}

func (f *FakeTimer) Reset(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadline = f.Clock().Add(d)
	f.armed = true
	f.arms = append(f.arms, d)
}

func (f *FakeTimer) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed = false
	f.stops++
}

func (f *FakeTimer) Remaining() (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.armed {
		return 0, false
	}
	return max(f.deadline.Sub(f.Clock()), 0), true
}

func (f *FakeTimer) C() <-chan time.Time {
	return f.c
}

// Fire delivers the current clock time on C. It blocks until received.
func (f *FakeTimer) Fire() {
	f.c <- f.Clock()
}

// Due reports whether the timer is armed and its deadline has passed.
func (f *FakeTimer) Due() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.armed && !f.Clock().Before(f.deadline)
}

// Armed reports whether the timer is armed.
func (f *FakeTimer) Armed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.armed
}

// Arms returns every duration passed to Reset, in order.
func (f *FakeTimer) Arms() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.arms...)
}

// Stops returns how many times Stop was called.
func (f *FakeTimer) Stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}
