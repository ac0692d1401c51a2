package internal

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/gpio-monitor/internal/gpio"
	"github.com/sweeney/gpio-monitor/internal/monitor"
	"github.com/sweeney/gpio-monitor/internal/mqtt"
	"github.com/sweeney/gpio-monitor/internal/status"
	"github.com/sweeney/gpio-monitor/internal/storage"
	"github.com/sweeney/gpio-monitor/internal/web"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// system wires a monitor to a storage file and a fake publisher the way the
// daemon does, and steps the main loop by hand.
type system struct {
	hw    *gpio.FakeDriver
	clock *clock
	timer *monitor.FakeTimer
	m     *monitor.Monitor
	store *storage.File
	pub   *mqtt.FakePublisher
}

func newSystem(t *testing.T, hw *gpio.FakeDriver, path string, debounce time.Duration) *system {
	t.Helper()
	s := &system{
		hw:    hw,
		clock: &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)},
		store: storage.New(path),
		pub:   mqtt.NewFakePublisher(),
	}
	hw.Clock = s.clock.Now
	s.timer = monitor.NewFakeTimer(s.clock.Now)
	s.m = monitor.New(hw, gpio.ESP32,
		monitor.WithClock(s.clock.Now),
		monitor.WithTimer(s.timer),
		monitor.WithDebounce(debounce),
	)
	if err := s.store.LoadInto(s.m); err != nil && !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("LoadInto: %v", err)
	}
	s.m.SetPersister(s.store)
	return s
}

func (s *system) publish(t *testing.T, changes []monitor.Change) {
	t.Helper()
	for _, c := range changes {
		if err := s.pub.Publish(c); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
}

// step drains edges, then advances the clock and sweeps if the timer is due.
func (s *system) step(t *testing.T, d time.Duration) {
	t.Helper()
	s.publish(t, s.m.DrainEdges())
	s.clock.Advance(d)
	if s.timer.Due() {
		s.publish(t, s.m.Sweep())
	}
}

func (s *system) register(t *testing.T, id uint8, label string, pull gpio.Pull) {
	t.Helper()
	if err := s.m.Register(id, label, pull); err != nil {
		t.Fatalf("Register(%d): %v", id, err)
	}
}

// TestIntegrationFullFlow drives two pins through debounced transitions and
// checks what reaches MQTT and the storage file.
func TestIntegrationFullFlow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pins.csv")
	s := newSystem(t, gpio.NewFakeDriver(), path, 10*time.Millisecond)
	s.register(t, 34, "Front Door", gpio.PullDown)
	s.register(t, 4, "Boiler", gpio.PullUp)

	// Door opens with contact bounce.
	s.hw.Drive(34, true)
	s.step(t, 2*time.Millisecond)
	s.hw.Drive(34, false)
	s.step(t, 1*time.Millisecond)
	s.hw.Drive(34, true)
	for i := 0; i < 3; i++ {
		s.step(t, 5*time.Millisecond)
	}
	s.step(t, 5*time.Millisecond)

	// Boiler pulls its pull-up line low.
	s.hw.Drive(4, false)
	for i := 0; i < 3; i++ {
		s.step(t, 5*time.Millisecond)
	}
	s.step(t, 5*time.Millisecond)

	if len(s.pub.Changes) != 2 {
		t.Fatalf("expected 2 changes, got %+v", s.pub.Changes)
	}
	if c := s.pub.Changes[0]; c.Pin != 34 || !c.State || c.Changes != 1 {
		t.Errorf("change 0: got %+v", c)
	}
	if c := s.pub.Changes[1]; c.Pin != 4 || c.State || c.Changes != 1 {
		t.Errorf("change 1: got %+v", c)
	}
	if p := s.m.Pending(); len(p) != 0 {
		t.Errorf("debounce set should be empty, got %v", p)
	}

	if err := s.m.Flush(false); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read storage: %v", err)
	}
	want := storage.Header + "\n4,Boiler,1,0,1\n34,Front Door,0,1,1\n"
	if string(data) != want {
		t.Errorf("storage file:\ngot  %q\nwant %q", data, want)
	}
}

func TestIntegrationBounceRejection(t *testing.T) {
	s := newSystem(t, gpio.NewFakeDriver(), filepath.Join(t.TempDir(), "pins.csv"), 10*time.Millisecond)
	s.register(t, 34, "Front Door", gpio.PullDown)
	s.register(t, 35, "Back Door", gpio.PullDown)

	// Two glitches shorter than the window on both pins.
	s.hw.Drive(34, true)
	s.hw.Drive(35, true)
	s.step(t, 3*time.Millisecond)
	s.hw.Drive(34, false)
	s.hw.Drive(35, false)
	for i := 0; i < 6; i++ {
		s.step(t, 5*time.Millisecond)
	}

	if len(s.pub.Changes) != 0 {
		t.Errorf("expected bounces to be rejected, got %+v", s.pub.Changes)
	}
	if s.m.Changes(34) != 0 || s.m.Changes(35) != 0 {
		t.Error("change counters should not move")
	}
	if s.timer.Armed() {
		t.Error("timer should stop once every pin settled")
	}
}

func TestIntegrationTogglesWithoutDebounce(t *testing.T) {
	s := newSystem(t, gpio.NewFakeDriver(), filepath.Join(t.TempDir(), "pins.csv"), 0)
	s.register(t, 13, "Counter", gpio.PullDown)

	for i := 0; i < 19; i++ {
		s.hw.Toggle(13)
	}
	s.publish(t, s.m.DrainEdges())

	if len(s.pub.Changes) != 19 {
		t.Fatalf("expected 19 changes, got %d", len(s.pub.Changes))
	}
	if got := s.m.Changes(13); got != 19 {
		t.Errorf("Changes: got %d, want 19", got)
	}
	if !s.m.State(13) {
		t.Error("an odd number of toggles should leave the pin high")
	}
}

// TestIntegrationRestart stores pins, changes a level while "powered off" and
// checks the restarted system counts that change.
func TestIntegrationRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pins.csv")
	hw := gpio.NewFakeDriver()

	first := newSystem(t, hw, path, 10*time.Millisecond)
	first.register(t, 4, "Boiler", gpio.PullDown)
	first.register(t, 12, "Pump", gpio.PullDown)
	if err := first.m.SetChanges(4, 7); err != nil {
		t.Fatalf("SetChanges: %v", err)
	}
	if err := first.m.SetChanges(12, 3); err != nil {
		t.Fatalf("SetChanges: %v", err)
	}
	if err := first.m.Flush(false); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	// Power off: the old monitor is gone, the line of pin 4 goes high.
	hw.Drive(4, true)
	second := newSystem(t, hw, path, 10*time.Millisecond)

	if got := second.m.Changes(4); got != 8 {
		t.Errorf("pin 4 changed while down: Changes = %d, want 8", got)
	}
	if !second.m.State(4) {
		t.Error("pin 4 should restore to its live level")
	}
	if got := second.m.Changes(12); got != 3 {
		t.Errorf("pin 12 unchanged: Changes = %d, want 3", got)
	}
	if len(second.pub.Changes) != 0 {
		t.Errorf("restore should not publish, got %+v", second.pub.Changes)
	}
}

func TestIntegrationPayloadFormat(t *testing.T) {
	s := newSystem(t, gpio.NewFakeDriver(), filepath.Join(t.TempDir(), "pins.csv"), 0)
	s.register(t, 34, "Front Door", gpio.PullDown)
	s.hw.Drive(34, true)
	s.publish(t, s.m.DrainEdges())

	if len(s.pub.Payloads) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(s.pub.Payloads))
	}
	var p mqtt.Payload
	if err := json.Unmarshal(s.pub.Payloads[0], &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	want := mqtt.PinPayload{
		Timestamp: "2026-01-01T12:00:00Z",
		Pin:       34,
		Name:      "Front Door",
		State:     "High",
		Changes:   1,
	}
	if p.Pin != want {
		t.Errorf("payload: got %+v, want %+v", p.Pin, want)
	}
	if topic := mqtt.NewTopics("home/io").Pin(34); topic != "home/io/pins/34" {
		t.Errorf("topic: got %q", topic)
	}
}

func TestIntegrationStartupAndShutdownPayloads(t *testing.T) {
	s := newSystem(t, gpio.NewFakeDriver(), filepath.Join(t.TempDir(), "pins.csv"), 0)
	s.register(t, 4, "Boiler", gpio.PullDown)
	tracker := status.NewTracker(s.clock.Now(), status.Config{Board: "esp32"}, s.m)
	tracker.SetNetwork(&status.NetworkInfo{Status: "connected", IP: "192.168.1.42"})

	for _, ev := range []struct{ event, reason string }{{"STARTUP", ""}, {"SHUTDOWN", "SIGTERM"}} {
		snap := tracker.Snapshot()
		err := s.pub.PublishSystem(mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      ev.event,
			Reason:     ev.reason,
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, ev.event, ev.reason),
		})
		if err != nil {
			t.Fatalf("PublishSystem: %v", err)
		}
	}

	if len(s.pub.SystemPayloads) != 2 {
		t.Fatalf("expected 2 system payloads, got %d", len(s.pub.SystemPayloads))
	}
	for i, want := range []string{"STARTUP", "SHUTDOWN"} {
		var sj status.StatusJSON
		if err := json.Unmarshal(s.pub.SystemPayloads[i], &sj); err != nil {
			t.Fatalf("decode payload %d: %v", i, err)
		}
		if sj.Status.Event != want {
			t.Errorf("payload %d event: got %q, want %q", i, sj.Status.Event, want)
		}
		if len(sj.Status.Pins) != 1 || sj.Status.Pins[0].Pin != 4 {
			t.Errorf("payload %d pins: got %+v", i, sj.Status.Pins)
		}
		if sj.Status.Network == nil || sj.Status.Network.IP != "192.168.1.42" {
			t.Errorf("payload %d network: got %+v", i, sj.Status.Network)
		}
	}
	var last status.StatusJSON
	json.Unmarshal(s.pub.SystemPayloads[1], &last)
	if last.Status.Reason != "SIGTERM" {
		t.Errorf("shutdown reason: got %q, want SIGTERM", last.Status.Reason)
	}
}

// TestIntegrationWebSettingsPersist adds a pin through the settings page and
// checks it lands in the storage file and in pins.json.
func TestIntegrationWebSettingsPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pins.csv")
	s := newSystem(t, gpio.NewFakeDriver(), path, 0)
	ts := httptest.NewServer(web.New(":0", s.m, nil).Handler())
	defer ts.Close()

	resp, err := http.PostForm(ts.URL+"/settings.html", map[string][]string{
		"action":   {"add"},
		"pin":      {"27"},
		"name":     {"Garage"},
		"resistor": {"Pull Up"},
	})
	if err != nil {
		t.Fatalf("POST settings: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read storage: %v", err)
	}
	if !strings.Contains(string(data), "\n27,Garage,1,1,0\n") {
		t.Errorf("storage file should hold the new pin:\n%s", data)
	}

	resp, err = http.Get(ts.URL + "/pins.json")
	if err != nil {
		t.Fatalf("GET pins.json: %v", err)
	}
	defer resp.Body.Close()
	var pins status.PinsJSON
	if err := json.NewDecoder(resp.Body).Decode(&pins); err != nil {
		t.Fatalf("decode pins.json: %v", err)
	}
	if p := pins["27"]; p.Name != "Garage" || !p.PullUp || p.State != "High" {
		t.Errorf("pins.json entry: got %+v", p)
	}
}
