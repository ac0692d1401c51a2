package monitor

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sweeney/gpio-monitor/internal/gpio"
)

// DefaultDebounce is the debounce window used when none is configured.
const DefaultDebounce = 10 * time.Millisecond

const defaultEdgeCapacity = 64

// Monitor is the registry of watched pins together with the edge detector
// and the debounce scheduler that maintain their state. It is safe for
// concurrent use.
type Monitor struct {
	mu         sync.Mutex
	hw         gpio.Driver
	board      gpio.Board
	now        func() time.Time
	store      Persister
	pins       map[uint8]*watched
	gen        uint32
	interrupts bool
	dirty      bool

	edges   *edgeQueue
	scratch []edge
	sched   scheduler
	changes []Change
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock sets the time source. Defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithTimer sets the shared debounce timer. Defaults to a SystemTimer.
func WithTimer(t Timer) Option {
	return func(m *Monitor) { m.sched.timer = t }
}

// WithDebounce sets the initial debounce window. Zero disables debouncing.
func WithDebounce(d time.Duration) Option {
	return func(m *Monitor) { m.sched.window = max(d, 0) }
}

// WithPersister sets where topology changes are written.
func WithPersister(p Persister) Option {
	return func(m *Monitor) { m.store = p }
}

// WithEdgeCapacity sets how many edges can queue between two DrainEdges calls.
func WithEdgeCapacity(n int) Option {
	return func(m *Monitor) { m.edges = newEdgeQueue(n) }
}

// WithInterrupts sets whether edge callbacks are attached. Defaults to true.
func WithInterrupts(enabled bool) Option {
	return func(m *Monitor) { m.interrupts = enabled }
}

// New creates a Monitor for the given driver and board.
func New(hw gpio.Driver, board gpio.Board, opts ...Option) *Monitor {
	m := &Monitor{
		hw:         hw,
		board:      board,
		now:        time.Now,
		pins:       make(map[uint8]*watched),
		interrupts: true,
		sched:      newScheduler(DefaultDebounce),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.edges == nil {
		m.edges = newEdgeQueue(defaultEdgeCapacity)
	}
	if m.sched.timer == nil {
		m.sched.timer = NewSystemTimer()
	}
	m.scratch = make([]edge, 0, len(m.edges.buf))
	return m
}

// lookup checks pin identity first, then whether the pin is watched.
func (m *Monitor) lookup(id uint8) (*watched, error) {
	if err := m.board.Check(id); err != nil {
		return nil, err
	}
	w, ok := m.pins[id]
	if !ok {
		return nil, ErrNotWatched
	}
	return w, nil
}

// Register starts watching a pin.
// The pin is configured with the given pull resistor and its current level
// becomes both the raw and the debounced state.
func (m *Monitor) Register(id uint8, label string, pull gpio.Pull) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.register(id, label, pull); err != nil {
		return err
	}
	return m.persist()
}

func (m *Monitor) register(id uint8, label string, pull gpio.Pull) error {
	if err := m.board.Check(id); err != nil {
		return err
	}
	if _, ok := m.pins[id]; ok {
		return ErrAlreadyWatched
	}
	label, ok := cleanLabel(label)
	if !ok {
		return ErrInvalidLabel
	}

	if err := m.hw.Configure(id, pull); err != nil {
		return fmt.Errorf("configure pin %d: %w", id, err)
	}
	level, err := m.hw.Read(id)
	if err != nil {
		m.hw.Release(id)
		return fmt.Errorf("read pin %d: %w", id, err)
	}

	now := m.now()
	w := &watched{Pin: Pin{
		ID:      id,
		Label:   label,
		Pull:    pull,
		State:   level,
		StateAt: now,
		Raw:     level,
		RawAt:   now,
	}}
	if m.interrupts {
		if err := m.attach(w); err != nil {
			m.hw.Release(id)
			return err
		}
	}
	m.pins[id] = w
	return nil
}

// Unregister stops watching a pin and forgets its state.
func (m *Monitor) Unregister(id uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.unregister(id); err != nil {
		return err
	}
	return m.persist()
}

func (m *Monitor) unregister(id uint8) error {
	if _, err := m.lookup(id); err != nil {
		return err
	}
	if m.interrupts {
		if err := m.hw.Detach(id); err != nil {
			return fmt.Errorf("detach pin %d: %w", id, err)
		}
	}
	m.sched.remove(id)
	delete(m.pins, id)
	m.hw.Release(id)
	return nil
}

// Update changes the label and pull resistor of a watched pin.
// A pull change reconfigures the hardware and re-samples the pin.
func (m *Monitor) Update(id uint8, label string, pull gpio.Pull) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.wake()

	changed, err := m.update(id, label, pull)
	if err != nil || !changed {
		return err
	}
	return m.persist()
}

func (m *Monitor) update(id uint8, label string, pull gpio.Pull) (bool, error) {
	w, err := m.lookup(id)
	if err != nil {
		return false, err
	}
	label, ok := cleanLabel(label)
	if !ok {
		return false, ErrInvalidLabel
	}

	changed := false
	if w.Pull != pull {
		if err := m.repull(w, pull); err != nil {
			return false, err
		}
		changed = true
	}
	if w.Label != label {
		w.Label = label
		changed = true
	}
	return changed, nil
}

// repull reconfigures the resistor with the pin's edge callback detached.
func (m *Monitor) repull(w *watched, pull gpio.Pull) error {
	if m.interrupts {
		if err := m.hw.Detach(w.ID); err != nil {
			return fmt.Errorf("detach pin %d: %w", w.ID, err)
		}
	}
	if err := m.hw.Configure(w.ID, pull); err != nil {
		if m.interrupts {
			m.attach(w)
		}
		return fmt.Errorf("configure pin %d: %w", w.ID, err)
	}
	if m.interrupts {
		if err := m.attach(w); err != nil {
			// Restore the previous resistor.
			if rerr := m.hw.Configure(w.ID, w.Pull); rerr == nil {
				m.attach(w)
			}
			return err
		}
	}
	w.Pull = pull

	if level, err := m.hw.Read(w.ID); err == nil {
		m.observe(w, level, m.now())
	}
	return nil
}

// SetLabel changes the label of a watched pin.
func (m *Monitor) SetLabel(id uint8, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, err := m.lookup(id)
	if err != nil {
		return err
	}
	label, ok := cleanLabel(label)
	if !ok {
		return ErrInvalidLabel
	}
	if w.Label == label {
		return nil
	}
	w.Label = label
	return m.persist()
}

// SetChanges overrides the change counter of a watched pin.
// It does not persist; the next Flush writes it.
func (m *Monitor) SetChanges(id uint8, changes uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, err := m.lookup(id)
	if err != nil {
		return err
	}
	w.Changes = changes
	m.dirty = true
	return nil
}

// attach connects a fresh edge callback to the pin. Edges queued by an
// earlier callback carry an older generation and are discarded.
func (m *Monitor) attach(w *watched) error {
	m.gen++
	w.gen = m.gen
	id, gen, q := w.ID, w.gen, m.edges
	err := m.hw.Attach(id, func(level bool, at time.Time) {
		q.push(edge{pin: id, gen: gen, level: level, at: at})
	})
	if err != nil {
		return fmt.Errorf("attach pin %d: %w", id, err)
	}
	return nil
}

// EnableInterrupts attaches edge callbacks to every watched pin.
func (m *Monitor) EnableInterrupts() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enableInterrupts()
}

func (m *Monitor) enableInterrupts() error {
	m.interrupts = true
	var errs []error
	for _, w := range m.pins {
		if err := m.attach(w); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DisableInterrupts detaches every edge callback. Pins are then only
// sampled by Poll and by the debounce sweep.
func (m *Monitor) DisableInterrupts() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disableInterrupts()
}

func (m *Monitor) disableInterrupts() error {
	m.interrupts = false
	var errs []error
	for id := range m.pins {
		if err := m.hw.Detach(id); err != nil {
			errs = append(errs, fmt.Errorf("detach pin %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// InterruptsEnabled reports whether edge callbacks are in use.
func (m *Monitor) InterruptsEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interrupts
}

// SetPersister replaces the persistence target. nil disables persistence.
func (m *Monitor) SetPersister(p Persister) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store = p
}

// Flush writes all pins if any state changed since the last write, or
// unconditionally if force is set.
func (m *Monitor) Flush(force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !force && !m.dirty {
		return nil
	}
	return m.persist()
}

// Dirty reports whether there are changes not yet written.
func (m *Monitor) Dirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty
}

// persist writes the current snapshot. A failed write leaves the in-memory
// registry as is and keeps it dirty.
func (m *Monitor) persist() error {
	if m.store == nil {
		m.dirty = true
		return nil
	}
	if err := m.store.Store(m.snapshot()); err != nil {
		m.dirty = true
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	m.dirty = false
	return nil
}

// Snapshot returns copies of all watched pins ordered by pin number.
func (m *Monitor) Snapshot() []Pin {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot()
}

func (m *Monitor) snapshot() []Pin {
	pins := make([]Pin, 0, len(m.pins))
	for _, w := range m.pins {
		pins = append(pins, w.Pin)
	}
	sort.Slice(pins, func(i, j int) bool { return pins[i].ID < pins[j].ID })
	return pins
}

// Pin returns a copy of one watched pin.
func (m *Monitor) Pin(id uint8) (Pin, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.pins[id]
	if !ok {
		return Pin{}, false
	}
	return w.Pin, true
}

// IsWatched reports whether the pin is registered.
func (m *Monitor) IsWatched(id uint8) bool {
	_, ok := m.Pin(id)
	return ok
}

// State returns the debounced level of the pin, false if it is not watched.
func (m *Monitor) State(id uint8) bool {
	p, _ := m.Pin(id)
	return p.State
}

// Changes returns the change counter of the pin, or NotWatched.
func (m *Monitor) Changes(id uint8) uint64 {
	p, ok := m.Pin(id)
	if !ok {
		return NotWatched
	}
	return p.Changes
}

// Label returns the label of the pin, empty if it is not watched.
func (m *Monitor) Label(id uint8) string {
	p, _ := m.Pin(id)
	return p.Label
}

// Board returns the pin map the monitor validates against.
func (m *Monitor) Board() gpio.Board {
	return m.board
}
