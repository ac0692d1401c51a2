// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/sweeney/gpio-monitor/internal/monitor"
)

// DefaultPrefix is the topic prefix used when none is configured.
const DefaultPrefix = "gpio-monitor"

// Topics holds the topics a publisher writes to.
type Topics struct {
	prefix string
}

// NewTopics returns the topics under prefix.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{prefix: prefix}
}

// Pin returns the topic for changes of one pin.
func (t Topics) Pin(id uint8) string {
	return t.prefix + "/pins/" + strconv.Itoa(int(id))
}

// System returns the topic for system lifecycle events.
func (t Topics) System() string {
	return t.prefix + "/system"
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a pin change to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(change monitor.Change) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Pin PinPayload `json:"pin"`
}

// PinPayload contains the pin change details.
type PinPayload struct {
	Timestamp string `json:"timestamp"`
	Pin       uint8  `json:"pin"`
	Name      string `json:"name"`
	State     string `json:"state"`
	Changes   uint64 `json:"changes"`
}

func stateString(high bool) string {
	if high {
		return "High"
	}
	return "Low"
}

// FormatPayload creates the JSON payload for a pin change.
func FormatPayload(change monitor.Change) ([]byte, error) {
	payload := Payload{
		Pin: PinPayload{
			Timestamp: change.At.UTC().Format(time.RFC3339),
			Pin:       change.Pin,
			Name:      change.Label,
			State:     stateString(change.State),
			Changes:   change.Changes,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// NopPublisher discards everything. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(monitor.Change) error    { return nil }
func (NopPublisher) PublishSystem(SystemEvent) error { return nil }
func (NopPublisher) Close() error                    { return nil }
func (NopPublisher) IsConnected() bool               { return false }
