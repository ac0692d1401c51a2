package status

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/sweeney/gpio-monitor/internal/gpio"
	"github.com/sweeney/gpio-monitor/internal/monitor"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Pins          []PinJSON    `json:"pins"`
	Pending       []int        `json:"pending"`
	DebounceMs    int64        `json:"debounce_ms"`
	Interrupts    bool         `json:"interrupts"`
	Commits       uint64       `json:"commits"`
	LastChange    *ChangeJSON  `json:"last_change,omitempty"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// PinJSON is the JSON representation of a watched pin.
type PinJSON struct {
	Pin      uint8  `json:"pin"`
	Name     string `json:"name"`
	Resistor string `json:"resistor"`
	State    string `json:"state"`
	Since    string `json:"since,omitempty"`
	Changes  uint64 `json:"changes"`
}

// ChangeJSON is the JSON representation of a committed change.
type ChangeJSON struct {
	Pin       uint8  `json:"pin"`
	Name      string `json:"name"`
	State     string `json:"state"`
	Changes   uint64 `json:"changes"`
	Timestamp string `json:"timestamp"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs      int64  `json:"poll_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Board       string `json:"board"`
	Driver      string `json:"driver"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	StoragePath string `json:"storage_path"`
}

// Level returns "High" or "Low".
func Level(high bool) string {
	if high {
		return "High"
	}
	return "Low"
}

func buildPin(p monitor.Pin) PinJSON {
	pj := PinJSON{
		Pin:      p.ID,
		Name:     p.Label,
		Resistor: p.Pull.String(),
		State:    Level(p.State),
		Changes:  p.Changes,
	}
	if !p.StateAt.IsZero() {
		pj.Since = p.StateAt.UTC().Format(time.RFC3339)
	}
	return pj
}

func buildInner(snap Snapshot) StatusInner {
	pins := make([]PinJSON, 0, len(snap.Pins))
	for _, p := range snap.Pins {
		pins = append(pins, buildPin(p))
	}
	// []uint8 would encode as base64.
	pending := make([]int, 0, len(snap.Pending))
	for _, id := range snap.Pending {
		pending = append(pending, int(id))
	}

	inner := StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Pins:          pins,
		Pending:       pending,
		DebounceMs:    snap.Debounce.Milliseconds(),
		Interrupts:    snap.Interrupts,
		Commits:       snap.Commits,
		Config: ConfigJSON{
			PollMs:      snap.Config.PollMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Board:       snap.Config.Board,
			Driver:      snap.Config.Driver,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			StoragePath: snap.Config.StoragePath,
		},
	}
	if c := snap.LastChange; c != nil {
		inner.LastChange = &ChangeJSON{
			Pin:       c.Pin,
			Name:      c.Label,
			State:     Level(c.State),
			Changes:   c.Changes,
			Timestamp: c.At.UTC().Format(time.RFC3339),
		}
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

// PinsJSON is the pins.json body: one object per pin keyed by pin number.
type PinsJSON map[string]PinStateJSON

// PinStateJSON is one entry of PinsJSON.
type PinStateJSON struct {
	Pin     uint8  `json:"pin"`
	Name    string `json:"name"`
	PullUp  bool   `json:"pull_up"`
	State   string `json:"state"`
	Changes uint64 `json:"changes"`
}

// FormatPins returns the pins.json body for the given pins.
func FormatPins(pins []monitor.Pin) []byte {
	out := make(PinsJSON, len(pins))
	for _, p := range pins {
		out[strconv.Itoa(int(p.ID))] = PinStateJSON{
			Pin:     p.ID,
			Name:    p.Label,
			PullUp:  p.Pull == gpio.PullUp,
			State:   Level(p.State),
			Changes: p.Changes,
		}
	}
	data, _ := json.Marshal(out)
	return data
}
