// Package config loads the daemon configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/gpio-monitor/internal/gpio"
)

// Config is the daemon configuration.
type Config struct {
	HTTPAddr string `yaml:"http_addr"` // empty disables the web interface
	Hostname string `yaml:"hostname"`  // mDNS instance name, defaults to the host name
	MDNS     bool   `yaml:"mdns"`

	Board  string `yaml:"board"`  // "rpi" or "esp32"
	Driver string `yaml:"driver"` // "gpiocdev" or "periph"
	Chip   string `yaml:"chip"`   // gpiocdev chip, e.g. "gpiochip0"

	Debounce     time.Duration `yaml:"debounce"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Interrupts   bool          `yaml:"interrupts"`

	StoragePath string        `yaml:"storage_path"` // empty disables persistence
	Heartbeat   time.Duration `yaml:"heartbeat"`    // 0 disables

	MQTT MQTTConfig  `yaml:"mqtt"`
	Pins []PinConfig `yaml:"pins"`
}

// MQTTConfig holds broker settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"`
	BufferSize  int    `yaml:"buffer_size"`
}

// PinConfig seeds a watched pin when no storage file exists yet.
type PinConfig struct {
	Pin      uint8  `yaml:"pin"`
	Name     string `yaml:"name"`
	Resistor string `yaml:"resistor"`
}

// Pull returns the parsed resistor, pull-down when unset.
func (p PinConfig) Pull() (gpio.Pull, error) {
	if p.Resistor == "" {
		return gpio.PullDown, nil
	}
	return gpio.ParsePull(p.Resistor)
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		HTTPAddr:     ":80",
		MDNS:         true,
		Board:        gpio.RaspberryPi.Name,
		Driver:       gpio.DriverGPIOCDev,
		Chip:         "gpiochip0",
		Debounce:     10 * time.Millisecond,
		PollInterval: 5 * time.Minute,
		Interrupts:   true,
		StoragePath:  "pins.csv",
		Heartbeat:    15 * time.Minute,
		MQTT: MQTTConfig{
			TopicPrefix: "gpio-monitor",
			ClientID:    "gpio-monitor",
			BufferSize:  64,
		},
	}
}

// Load reads the YAML file at path over the defaults.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, Validate(cfg)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

func (v *ValidationError) add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg and returns a *ValidationError listing every problem.
func Validate(cfg *Config) error {
	ve := &ValidationError{}

	board, err := gpio.LookupBoard(cfg.Board)
	if err != nil {
		ve.add("board: %v", err)
	}
	switch cfg.Driver {
	case gpio.DriverGPIOCDev, gpio.DriverPeriph:
	default:
		ve.add("driver must be %q or %q, got %q", gpio.DriverGPIOCDev, gpio.DriverPeriph, cfg.Driver)
	}
	if cfg.Debounce < 0 {
		ve.add("debounce must be >= 0")
	}
	if cfg.PollInterval <= 0 {
		ve.add("poll_interval must be > 0")
	}
	if cfg.Heartbeat < 0 {
		ve.add("heartbeat must be >= 0")
	}
	if cfg.MQTT.Broker != "" && cfg.MQTT.TopicPrefix == "" {
		ve.add("mqtt.topic_prefix is required when mqtt.broker is set")
	}
	if cfg.MQTT.BufferSize < 0 {
		ve.add("mqtt.buffer_size must be >= 0")
	}

	seen := make(map[uint8]bool, len(cfg.Pins))
	for i, p := range cfg.Pins {
		if err == nil {
			if perr := board.Check(p.Pin); perr != nil {
				ve.add("pins[%d]: pin %d: %v", i, p.Pin, perr)
			}
		}
		if seen[p.Pin] {
			ve.add("pins[%d]: pin %d listed twice", i, p.Pin)
		}
		seen[p.Pin] = true
		if _, perr := p.Pull(); perr != nil {
			ve.add("pins[%d]: %v", i, perr)
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}
