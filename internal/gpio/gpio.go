// Package gpio provides digital input access with hardware abstraction.
// The real implementations use the Linux GPIO character device or periph.io.
// The fake implementation allows testing without hardware.
package gpio

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Pull selects the internal bias resistor of an input pin.
type Pull uint8

const (
	PullDown Pull = 0
	PullUp   Pull = 1
)

func (p Pull) String() string {
	if p == PullUp {
		return "Pull Up"
	}
	return "Pull Down"
}

// ParsePull accepts "pull_up", "pull_down", "Pull Up", "Pull Down" and the
// CSV digits "1" and "0".
func ParsePull(s string) (Pull, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pull_up", "pull up", "up", "1":
		return PullUp, nil
	case "pull_down", "pull down", "down", "0":
		return PullDown, nil
	}
	return PullDown, fmt.Errorf("unknown resistor %q", s)
}

// EdgeFunc is called by a driver whenever the level of an attached pin changes.
// It runs in driver context (an event goroutine) and must not block.
type EdgeFunc func(level bool, at time.Time)

// Driver configures and samples input pins.
type Driver interface {
	// Configure sets the pin to input mode with the given pull resistor.
	Configure(pin uint8, pull Pull) error

	// Read returns the current level of the pin, true = high.
	Read(pin uint8) (bool, error)

	// Attach enables level-change notification for a configured pin.
	// Attaching an already attached pin replaces its callback.
	Attach(pin uint8, fn EdgeFunc) error

	// Detach disables level-change notification. Detaching a pin that is
	// not attached is a no-op.
	Detach(pin uint8) error

	// Release returns the pin to the system.
	Release(pin uint8) error

	// Close releases all pins.
	Close() error
}

var (
	// ErrInvalidPin reports a pin number that is not a usable input.
	ErrInvalidPin = errors.New("not an input pin")

	// ErrReservedPin reports an input pin wired to an internal function.
	ErrReservedPin = errors.New("pin is reserved for internal use")
)
