package monitor

import (
	"errors"
	"testing"
	"time"

	"github.com/sweeney/gpio-monitor/internal/gpio"
)

func TestRestoreReconciles(t *testing.T) {
	h := newHarness(t)
	h.register(t, 4, "Old Name", gpio.PullDown)
	h.register(t, 5, "Going Away", gpio.PullDown)
	before := h.store.calls

	err := h.m.Restore([]Record{
		// pin 4 reads high with pull-up, stored low: one missed transition
		{ID: 4, Label: "Kitchen", Pull: gpio.PullUp, State: false, Changes: 7},
		// pin 12 reads low with pull-down, stored low
		{ID: 12, Label: "Hall", Pull: gpio.PullDown, State: false, Changes: 3},
	})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if h.store.calls != before {
		t.Errorf("restore should not write, got %d new calls", h.store.calls-before)
	}
	if h.m.IsWatched(5) {
		t.Error("pin 5 is not in storage and should be removed")
	}

	p, ok := h.m.Pin(4)
	if !ok {
		t.Fatal("pin 4 should be watched")
	}
	if p.Label != "Kitchen" || p.Pull != gpio.PullUp {
		t.Errorf("pin 4 not updated: %+v", p)
	}
	if !p.State {
		t.Error("pin 4 state should be the live level")
	}
	if p.Changes != 8 {
		t.Errorf("pin 4: expected 8 changes, got %d", p.Changes)
	}

	if got := h.m.Changes(12); got != 3 {
		t.Errorf("pin 12: expected 3 changes, got %d", got)
	}
	if got := h.m.Label(12); got != "Hall" {
		t.Errorf("pin 12: expected label Hall, got %q", got)
	}

	if !h.m.InterruptsEnabled() || !h.hw.Attached(4) || !h.hw.Attached(12) {
		t.Error("interrupts should be re-enabled on every pin")
	}
	if got := h.m.Debounce(); got != DefaultDebounce {
		t.Errorf("debounce should be restored, got %v", got)
	}
	if got := h.m.TakeChanges(); len(got) != 0 {
		t.Errorf("restore should not report changes, got %+v", got)
	}
	if !h.m.Dirty() {
		t.Error("restored counters should be marked dirty")
	}
}

func TestRestoreIntoEmpty(t *testing.T) {
	h := newHarness(t)
	h.hw.Drive(18, true)

	err := h.m.Restore([]Record{
		{ID: 18, Label: "Garage", Pull: gpio.PullDown, State: true, Changes: 100},
	})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := h.m.Changes(18); got != 100 {
		t.Errorf("expected 100 changes, got %d", got)
	}
	if !h.m.State(18) {
		t.Error("expected high state")
	}
}

func TestRestoreBadRecords(t *testing.T) {
	h := newHarness(t)

	err := h.m.Restore([]Record{
		{ID: 6, Label: "Flash", Pull: gpio.PullDown},
		{ID: 4, Label: "x", Pull: gpio.PullDown},
		{ID: 5, Label: "Good Pin", Pull: gpio.PullDown, Changes: 2},
	})
	if !errors.Is(err, ErrReservedPin) {
		t.Errorf("expected ErrReservedPin in %v", err)
	}
	if !errors.Is(err, ErrInvalidLabel) {
		t.Errorf("expected ErrInvalidLabel in %v", err)
	}
	if !h.m.IsWatched(5) || h.m.Changes(5) != 2 {
		t.Error("valid record should still be restored")
	}
	if h.m.IsWatched(4) {
		t.Error("invalid record should be skipped")
	}
}

func TestRestoreBadRecordKeepsWatchedPin(t *testing.T) {
	h := newHarness(t)
	h.register(t, 4, "Kitchen", gpio.PullDown)
	h.m.SetChanges(4, 5)

	err := h.m.Restore([]Record{{ID: 4, Label: "x,", Pull: gpio.PullUp, Changes: 9}})
	if !errors.Is(err, ErrInvalidLabel) {
		t.Errorf("expected ErrInvalidLabel, got %v", err)
	}
	p, ok := h.m.Pin(4)
	if !ok {
		t.Fatal("pin 4 is in storage and should stay watched")
	}
	if p.Label != "Kitchen" || p.Pull != gpio.PullDown || p.Changes != 5 {
		t.Errorf("pin 4 should be left as it was, got %+v", p)
	}
}

func TestRestoreWithInterruptsDisabled(t *testing.T) {
	h := newHarness(t, WithInterrupts(false), WithDebounce(20*time.Millisecond))

	if err := h.m.Restore([]Record{{ID: 4, Label: "Boiler", Pull: gpio.PullDown}}); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if h.m.InterruptsEnabled() || h.hw.Attached(4) {
		t.Error("interrupts should stay disabled")
	}
	if got := h.m.Debounce(); got != 20*time.Millisecond {
		t.Errorf("expected 20ms window, got %v", got)
	}
}
