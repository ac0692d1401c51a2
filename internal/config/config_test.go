package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/gpio-monitor/internal/gpio"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Debounce != 10*time.Millisecond {
		t.Errorf("Debounce = %v, want 10ms", cfg.Debounce)
	}
	if cfg.PollInterval != 5*time.Minute {
		t.Errorf("PollInterval = %v, want 5m", cfg.PollInterval)
	}
	if cfg.StoragePath != "pins.csv" {
		t.Errorf("StoragePath = %q, want %q", cfg.StoragePath, "pins.csv")
	}
	if cfg.HTTPAddr != ":80" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":80")
	}
	if !cfg.Interrupts {
		t.Error("interrupts should default to enabled")
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Debounce != 10*time.Millisecond {
		t.Errorf("expected defaults, got debounce %v", cfg.Debounce)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
http_addr: ":8080"
board: esp32
driver: periph
debounce: 25ms
poll_interval: 30s
interrupts: false
storage_path: /var/lib/gpio-monitor/pins.csv
mqtt:
  broker: tcp://broker.local:1883
  topic_prefix: house/gpio
pins:
  - pin: 34
    name: Test Pin
    resistor: pull_down
  - pin: 35
    name: Door
    resistor: Pull Up
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.Board != "esp32" || cfg.Driver != "periph" {
		t.Errorf("board/driver = %q/%q", cfg.Board, cfg.Driver)
	}
	if cfg.Debounce != 25*time.Millisecond {
		t.Errorf("Debounce = %v, want 25ms", cfg.Debounce)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %v, want 30s", cfg.PollInterval)
	}
	if cfg.Interrupts {
		t.Error("interrupts should be disabled")
	}
	if cfg.MQTT.Broker != "tcp://broker.local:1883" || cfg.MQTT.TopicPrefix != "house/gpio" {
		t.Errorf("mqtt = %+v", cfg.MQTT)
	}
	if cfg.MQTT.ClientID != "gpio-monitor" {
		t.Errorf("unset client_id should keep default, got %q", cfg.MQTT.ClientID)
	}
	if len(cfg.Pins) != 2 {
		t.Fatalf("expected 2 pins, got %d", len(cfg.Pins))
	}
	if pull, _ := cfg.Pins[1].Pull(); pull != gpio.PullUp {
		t.Errorf("pins[1] pull = %v, want Pull Up", pull)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "debounce: [not a duration\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"unknown board", func(c *Config) { c.Board = "arduino" }, "board"},
		{"unknown driver", func(c *Config) { c.Driver = "sysfs" }, "driver"},
		{"negative debounce", func(c *Config) { c.Debounce = -time.Millisecond }, "debounce"},
		{"zero poll", func(c *Config) { c.PollInterval = 0 }, "poll_interval"},
		{"negative heartbeat", func(c *Config) { c.Heartbeat = -time.Second }, "heartbeat"},
		{"missing prefix", func(c *Config) {
			c.MQTT.Broker = "tcp://localhost:1883"
			c.MQTT.TopicPrefix = ""
		}, "topic_prefix"},
		{"reserved pin", func(c *Config) {
			c.Pins = []PinConfig{{Pin: 0, Name: "EEPROM"}}
		}, "pins[0]"},
		{"duplicate pin", func(c *Config) {
			c.Pins = []PinConfig{{Pin: 4, Name: "One"}, {Pin: 4, Name: "Two"}}
		}, "listed twice"},
		{"bad resistor", func(c *Config) {
			c.Pins = []PinConfig{{Pin: 4, Name: "One", Resistor: "floating"}}
		}, "resistor"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(cfg)
			err := Validate(cfg)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestZeroDebounceAllowed(t *testing.T) {
	cfg := Defaults()
	cfg.Debounce = 0
	if err := Validate(cfg); err != nil {
		t.Errorf("zero debounce disables debouncing and should be valid: %v", err)
	}
}
