package gpio

import (
	"errors"
	"sync"
	"time"
)

// FakeDriver is a test double that simulates input pins in memory.
// Pins that are not driven follow their pull resistor.
type FakeDriver struct {
	// Clock stamps edge callbacks. Defaults to time.Now.
	Clock func() time.Time

	// ReadError, if set, will be returned by Read().
	ReadError error

	// ConfigureError, if set, will be returned by Configure().
	ConfigureError error

	// AttachError, if set, will be returned by Attach().
	AttachError error

	// Closed tracks if Close was called
	Closed bool

	mu   sync.Mutex
	pins map[uint8]*fakePin
}

type fakePin struct {
	pull       Pull
	configured bool
	driven     bool
	level      bool
	handler    EdgeFunc
}

func (p *fakePin) effective() bool {
	if p.driven {
		return p.level
	}
	return p.pull == PullUp
}

// NewFakeDriver creates a FakeDriver with no pins configured.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{pins: make(map[uint8]*fakePin)}
}

func (f *FakeDriver) pin(n uint8) *fakePin {
	p, ok := f.pins[n]
	if !ok {
		p = &fakePin{}
		f.pins[n] = p
	}
	return p
}

func (f *FakeDriver) now() time.Time {
	if f.Clock != nil {
		return f.Clock()
	}
	return time.Now()
}

// change applies fn to pin n and fires its callback if the level changed.
func (f *FakeDriver) change(n uint8, fn func(p *fakePin)) {
	f.mu.Lock()
	p := f.pin(n)
	before := p.effective()
	fn(p)
	after := p.effective()
	handler := p.handler
	f.mu.Unlock()

	if before != after && handler != nil {
		handler(after, f.now())
	}
}

// Drive sets the externally driven level of a pin, as a wired output would.
func (f *FakeDriver) Drive(n uint8, level bool) {
	f.change(n, func(p *fakePin) {
		p.driven = true
		p.level = level
	})
}

// Float stops driving a pin so that it follows its pull resistor again.
func (f *FakeDriver) Float(n uint8) {
	f.change(n, func(p *fakePin) { p.driven = false })
}

// Toggle inverts the driven level of a pin.
func (f *FakeDriver) Toggle(n uint8) {
	f.change(n, func(p *fakePin) {
		p.level = !p.effective()
		p.driven = true
	})
}

// Level returns the level the pin would read right now.
func (f *FakeDriver) Level(n uint8) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pin(n).effective()
}

// PullOf returns the pull resistor a pin was configured with.
func (f *FakeDriver) PullOf(n uint8) (Pull, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pins[n]
	if !ok || !p.configured {
		return PullDown, false
	}
	return p.pull, true
}

// Attached reports whether an edge callback is attached to the pin.
func (f *FakeDriver) Attached(n uint8) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pins[n]
	return ok && p.handler != nil
}

// Configure records the pull resistor of the pin.
func (f *FakeDriver) Configure(n uint8, pull Pull) error {
	if f.ConfigureError != nil {
		return f.ConfigureError
	}
	f.change(n, func(p *fakePin) {
		p.pull = pull
		p.configured = true
	})
	return nil
}

// Read returns the current level of a configured pin.
func (f *FakeDriver) Read(n uint8) (bool, error) {
	if f.ReadError != nil {
		return false, f.ReadError
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pins[n]
	if !ok || !p.configured {
		return false, errors.New("pin not configured")
	}
	return p.effective(), nil
}

// Attach stores the edge callback of the pin.
func (f *FakeDriver) Attach(n uint8, fn EdgeFunc) error {
	if f.AttachError != nil {
		return f.AttachError
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pin(n).handler = fn
	return nil
}

// Detach removes the edge callback of the pin.
func (f *FakeDriver) Detach(n uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.pins[n]; ok {
		p.handler = nil
	}
	return nil
}

// Release forgets the configuration of the pin but keeps its driven level.
func (f *FakeDriver) Release(n uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.pins[n]; ok {
		p.handler = nil
		p.configured = false
	}
	return nil
}

// Close marks the driver as closed.
func (f *FakeDriver) Close() error {
	f.Closed = true
	return nil
}
