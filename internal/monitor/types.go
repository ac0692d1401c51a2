// Package monitor turns noisy input pin edges into debounced, counted state.
//
// A Monitor owns the registry of watched pins. Driver edge callbacks only
// enqueue observations into a fixed-size queue; all state is mutated by the
// caller's loop through DrainEdges, Sweep and Poll, or by configuration calls.
// Time is injectable for tests.
package monitor

import (
	"errors"
	"math"
	"time"

	"github.com/sweeney/gpio-monitor/internal/gpio"
)

// NotWatched is returned by Changes for pins that are not watched.
const NotWatched uint64 = math.MaxUint64

var (
	ErrInvalidPin     = gpio.ErrInvalidPin
	ErrReservedPin    = gpio.ErrReservedPin
	ErrInvalidLabel   = errors.New("invalid pin label")
	ErrAlreadyWatched = errors.New("pin is already watched")
	ErrNotWatched     = errors.New("pin is not watched")

	// ErrPersist wraps a failed write. The in-memory change it follows
	// has already been applied.
	ErrPersist = errors.New("persist pins")
)

// Pin is a point-in-time copy of a watched pin.
type Pin struct {
	ID    uint8
	Label string
	Pull  gpio.Pull

	// State is the debounced level, StateAt the time it last changed.
	State   bool
	StateAt time.Time
	// Changes counts committed State transitions.
	Changes uint64

	// Raw is the last observed hardware level, RawAt the time it last changed.
	Raw   bool
	RawAt time.Time
}

// Change is a committed state transition of one pin.
type Change struct {
	Pin     uint8
	Label   string
	State   bool
	Changes uint64
	At      time.Time
}

// Record is the persisted form of a watched pin.
type Record struct {
	ID      uint8
	Label   string
	Pull    gpio.Pull
	State   bool
	Changes uint64
}

// Persister stores a snapshot of all watched pins.
type Persister interface {
	Store(pins []Pin) error
}

// watched is the registry's live record of one pin.
type watched struct {
	Pin
	// gen identifies the edge callback currently attached to the pin.
	gen uint32
}
