package monitor

import (
	"errors"
	"fmt"
)

// Restore reconciles the registry with pins loaded from storage.
// Stored pins are registered or updated, live pins missing from records are
// unregistered. A live pin whose record fails to apply is kept as it is. Each counter is taken from its record, plus one when the
// stored state differs from the level sampled now. Nothing is written back
// while restoring. Rows that cannot be applied are skipped and reported
// together in the returned error.
func (m *Monitor) Restore(records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.wake()

	store := m.store
	m.store = nil
	defer func() { m.store = store }()

	interrupts := m.interrupts
	window := m.sched.window
	var errs []error
	if interrupts {
		if err := m.disableInterrupts(); err != nil {
			errs = append(errs, err)
		}
	}
	m.setDebounce(0)

	keep := make(map[uint8]bool, len(records))
	for _, rec := range records {
		keep[rec.ID] = true
		if err := m.restore(rec); err != nil {
			errs = append(errs, fmt.Errorf("restore pin %d: %w", rec.ID, err))
		}
	}
	for id := range m.pins {
		if keep[id] {
			continue
		}
		if err := m.unregister(id); err != nil {
			errs = append(errs, fmt.Errorf("remove pin %d: %w", id, err))
		}
	}

	m.sched.window = window
	// Restored counters already account for the transitions committed above.
	m.changes = m.changes[:0]
	if interrupts {
		if err := m.enableInterrupts(); err != nil {
			errs = append(errs, err)
		}
		if err := m.poll(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Monitor) restore(rec Record) error {
	if _, ok := m.pins[rec.ID]; ok {
		if _, err := m.update(rec.ID, rec.Label, rec.Pull); err != nil {
			return err
		}
	} else if err := m.register(rec.ID, rec.Label, rec.Pull); err != nil {
		return err
	}

	w := m.pins[rec.ID]
	w.Changes = rec.Changes
	if rec.State != w.State {
		w.Changes++
	}
	m.dirty = true
	return nil
}
