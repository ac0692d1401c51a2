package monitor

import "time"

// minWait is the shortest delay the timer is armed for.
const minWait = time.Millisecond

// scheduler multiplexes one Timer across all pins in the debounce set.
// The set holds pin numbers, resolved through the registry on each sweep,
// so unregistering a pin cannot leave a dangling reference.
type scheduler struct {
	window time.Duration
	timer  Timer
	member [256]bool
	queue  []uint8
}

func newScheduler(window time.Duration) scheduler {
	return scheduler{
		window: window,
		queue:  make([]uint8, 0, 256),
	}
}

func (s *scheduler) add(id uint8) {
	if s.member[id] {
		return
	}
	s.member[id] = true
	s.queue = append(s.queue, id)
}

func (s *scheduler) remove(id uint8) {
	if !s.member[id] {
		return
	}
	s.member[id] = false
	for i, q := range s.queue {
		if q == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			break
		}
	}
	if len(s.queue) == 0 {
		s.timer.Stop()
	}
}

func (s *scheduler) clear() {
	for _, id := range s.queue {
		s.member[id] = false
	}
	s.queue = s.queue[:0]
	s.timer.Stop()
}

// arm makes sure the timer fires within d. It never pushes out an earlier deadline.
func (s *scheduler) arm(d time.Duration) {
	d = max(d, minWait)
	if left, ok := s.timer.Remaining(); ok && left <= d {
		return
	}
	s.timer.Reset(d)
}

// TimerC delivers a value when the debounce timer fires; call Sweep then.
func (m *Monitor) TimerC() <-chan time.Time {
	return m.sched.timer.C()
}

// Sweep resolves every pin in the debounce set and returns committed changes.
func (m *Monitor) Sweep() []Change {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweep(m.now())
	return m.take()
}

// sweep re-samples each pin whose window has elapsed. A pin whose level moved
// again stays pending for another window; a stable pin leaves the set,
// committing if it differs from its debounced state. The timer is then armed
// for the shortest remaining wait, or stopped when the set is empty.
func (m *Monitor) sweep(now time.Time) {
	s := &m.sched
	var next time.Duration
	wait := func(d time.Duration) {
		if next == 0 || d < next {
			next = d
		}
	}

	kept := s.queue[:0]
	for _, id := range s.queue {
		w, ok := m.pins[id]
		if !ok {
			s.member[id] = false
			continue
		}

		if elapsed := now.Sub(w.RawAt); elapsed < s.window {
			wait(s.window - elapsed)
			kept = append(kept, id)
			continue
		}

		level, err := m.hw.Read(id)
		if err != nil {
			wait(s.window)
			kept = append(kept, id)
			continue
		}
		if level != w.Raw {
			w.Raw = level
			w.RawAt = now
			wait(s.window)
			kept = append(kept, id)
			continue
		}

		s.member[id] = false
		if w.State != w.Raw {
			m.commit(w)
		}
	}
	s.queue = kept

	if len(s.queue) == 0 {
		s.timer.Stop()
		return
	}
	s.timer.Reset(max(next, minWait))
}

// SetDebounce changes the debounce window. Setting it to zero commits every
// pending pin from its raw level and stops the timer.
func (m *Monitor) SetDebounce(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.wake()
	m.setDebounce(d)
}

func (m *Monitor) setDebounce(d time.Duration) {
	s := &m.sched
	s.window = max(d, 0)

	if s.window == 0 {
		for _, id := range s.queue {
			if w, ok := m.pins[id]; ok && w.State != w.Raw {
				m.commit(w)
			}
		}
		s.clear()
		return
	}
	if len(s.queue) > 0 {
		m.sweep(m.now())
	}
}

// Debounce returns the debounce window.
func (m *Monitor) Debounce() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sched.window
}

// Pending returns the pins currently awaiting settlement.
func (m *Monitor) Pending() []uint8 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint8(nil), m.sched.queue...)
}
