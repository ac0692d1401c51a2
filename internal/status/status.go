// Package status provides a thread-safe status tracker for the gpio-monitor daemon.
// It is read by the HTTP handlers and used for MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/gpio-monitor/internal/monitor"
)

// NetworkInfo contains network state.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs      int64
	HeartbeatMs int64
	Board       string
	Driver      string
	Broker      string
	HTTPAddr    string
	StoragePath string
}

// PinSource provides the live pin view. *monitor.Monitor implements it.
type PinSource interface {
	Snapshot() []monitor.Pin
	Pending() []uint8
	Debounce() time.Duration
	InterruptsEnabled() bool
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and can be used after the lock is released.
type Snapshot struct {
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config

	Pins       []monitor.Pin
	Pending    []uint8
	Debounce   time.Duration
	Interrupts bool

	// Commits counts state changes seen since start, LastChange is the latest.
	Commits    uint64
	LastChange *monitor.Change
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	pins PinSource
}

// NewTracker creates a Tracker with the given start time and config.
// pins may be nil.
func NewTracker(startTime time.Time, cfg Config, pins PinSource) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		pins: pins,
	}
}

// RecordChange counts a committed pin change.
// Called from runLoop for every change it publishes.
func (t *Tracker) RecordChange(c monitor.Change) {
	t.mu.Lock()
	t.snap.Commits++
	t.snap.LastChange = &c
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.LastChange != nil {
		c := *s.LastChange
		s.LastChange = &c
	}
	t.mu.RUnlock()

	if t.pins != nil {
		s.Pins = t.pins.Snapshot()
		s.Pending = t.pins.Pending()
		s.Debounce = t.pins.Debounce()
		s.Interrupts = t.pins.InterruptsEnabled()
	}
	s.Now = time.Now()
	return s
}
