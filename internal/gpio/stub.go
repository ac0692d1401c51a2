//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported")

// RealDriver is not available on non-Linux platforms.
type RealDriver struct{}

// NewRealDriver returns an error on non-Linux platforms.
func NewRealDriver(chipName string) (*RealDriver, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

func (d *RealDriver) Configure(pin uint8, pull Pull) error { return errUnsupported }
func (d *RealDriver) Read(pin uint8) (bool, error)         { return false, errUnsupported }
func (d *RealDriver) Attach(pin uint8, fn EdgeFunc) error  { return errUnsupported }
func (d *RealDriver) Detach(pin uint8) error               { return nil }
func (d *RealDriver) Release(pin uint8) error              { return nil }

// Close is not implemented on non-Linux platforms.
func (d *RealDriver) Close() error {
	return nil
}
