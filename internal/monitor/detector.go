package monitor

import (
	"errors"
	"fmt"
	"time"
)

// observe resolves one sampled level of a pin. An unchanged level is
// ignored. With debouncing disabled the change is committed at once,
// otherwise the pin joins the debounce set.
func (m *Monitor) observe(w *watched, level bool, at time.Time) {
	if level == w.Raw {
		return
	}
	w.Raw = level
	w.RawAt = at

	if m.sched.window == 0 {
		m.commit(w)
		return
	}
	m.sched.add(w.ID)
	m.sched.arm(m.sched.window)
}

// commit makes the raw level the debounced state.
func (m *Monitor) commit(w *watched) {
	w.State = w.Raw
	w.StateAt = w.RawAt
	w.Changes++
	m.dirty = true
	m.changes = append(m.changes, Change{
		Pin:     w.ID,
		Label:   w.Label,
		State:   w.State,
		Changes: w.Changes,
		At:      w.StateAt,
	})
}

// take returns and clears the committed changes.
func (m *Monitor) take() []Change {
	if len(m.changes) == 0 {
		return nil
	}
	out := make([]Change, len(m.changes))
	copy(out, m.changes)
	m.changes = m.changes[:0]
	return out
}

// wake signals EdgeReady when changes are waiting, so that commits made by
// configuration calls reach the loop without an edge.
func (m *Monitor) wake() {
	if len(m.changes) > 0 {
		m.edges.signal()
	}
}

// EdgeReady delivers a value whenever edges or changes are waiting for DrainEdges.
func (m *Monitor) EdgeReady() <-chan struct{} {
	return m.edges.ready
}

// DrainEdges processes every queued edge and returns committed changes.
// If edges were lost to a full queue, all pins are re-sampled.
func (m *Monitor) DrainEdges() []Change {
	m.mu.Lock()
	defer m.mu.Unlock()

	edges, overflow := m.edges.drainInto(m.scratch[:0])
	for _, e := range edges {
		w, ok := m.pins[e.pin]
		if !ok || w.gen != e.gen {
			continue
		}
		m.observe(w, e.level, e.at)
	}
	m.scratch = edges[:0]

	if overflow {
		m.poll()
	}
	return m.take()
}

// Poll samples every watched pin and returns committed changes.
// It is the fallback when interrupts are disabled or edges were missed.
func (m *Monitor) Poll() ([]Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.poll()
	return m.take(), err
}

func (m *Monitor) poll() error {
	now := m.now()
	var errs []error
	for id, w := range m.pins {
		level, err := m.hw.Read(id)
		if err != nil {
			errs = append(errs, fmt.Errorf("read pin %d: %w", id, err))
			continue
		}
		m.observe(w, level, now)
	}
	return errors.Join(errs...)
}

// TakeChanges returns changes committed since the last loop call.
func (m *Monitor) TakeChanges() []Change {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.take()
}
