//go:build linux

package gpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// RealDriver reads GPIO from actual hardware using the Linux GPIO character device.
type RealDriver struct {
	chip *gpiocdev.Chip

	mu    sync.Mutex
	lines map[uint8]*realLine
}

type realLine struct {
	line *gpiocdev.Line
	pull Pull
}

// NewRealDriver opens the named GPIO chip, e.g. "gpiochip0".
func NewRealDriver(chipName string) (*RealDriver, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &RealDriver{
		chip:  chip,
		lines: make(map[uint8]*realLine),
	}, nil
}

func pullOption(pull Pull) gpiocdev.LineBias {
	if pull == PullUp {
		return gpiocdev.WithPullUp
	}
	return gpiocdev.WithPullDown
}

// request (re)requests a line. Edge detection cannot be toggled on a live
// request, so attaching and detaching replace the request.
func (d *RealDriver) request(pin uint8, pull Pull, fn EdgeFunc) error {
	if l, ok := d.lines[pin]; ok {
		if err := l.line.Close(); err != nil {
			return fmt.Errorf("close pin %d: %w", pin, err)
		}
		delete(d.lines, pin)
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput, pullOption(pull)}
	if fn != nil {
		opts = append(opts,
			gpiocdev.WithBothEdges,
			gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
				fn(evt.Type == gpiocdev.LineEventRisingEdge, time.Now())
			}))
	}

	line, err := d.chip.RequestLine(int(pin), opts...)
	if err != nil {
		return fmt.Errorf("request pin %d: %w", pin, err)
	}
	d.lines[pin] = &realLine{line: line, pull: pull}
	return nil
}

// Configure requests the pin as input with the given pull resistor, or
// reconfigures the resistor of an already requested pin.
func (d *RealDriver) Configure(pin uint8, pull Pull) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if l, ok := d.lines[pin]; ok {
		if err := l.line.Reconfigure(gpiocdev.AsInput, pullOption(pull)); err != nil {
			return fmt.Errorf("reconfigure pin %d: %w", pin, err)
		}
		l.pull = pull
		return nil
	}
	return d.request(pin, pull, nil)
}

// Read returns the level of the pin, true = high.
func (d *RealDriver) Read(pin uint8) (bool, error) {
	d.mu.Lock()
	l, ok := d.lines[pin]
	d.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("read pin %d: not requested", pin)
	}

	v, err := l.line.Value()
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w", pin, err)
	}
	return v == 1, nil
}

// Attach re-requests the pin with edge detection on both edges.
func (d *RealDriver) Attach(pin uint8, fn EdgeFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.lines[pin]
	if !ok {
		return fmt.Errorf("attach pin %d: not requested", pin)
	}
	return d.request(pin, l.pull, fn)
}

// Detach re-requests the pin without edge detection.
func (d *RealDriver) Detach(pin uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.lines[pin]
	if !ok {
		return nil
	}
	return d.request(pin, l.pull, nil)
}

// Release reconfigures the pin to input with pull-down (matching Pi boot
// defaults) and closes it.
func (d *RealDriver) Release(pin uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.release(pin)
}

func (d *RealDriver) release(pin uint8) error {
	l, ok := d.lines[pin]
	if !ok {
		return nil
	}
	delete(d.lines, pin)

	var errs []error
	if err := l.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", pin, err))
	}
	if err := l.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("release errors: %v", errs)
	}
	return nil
}

// Close releases all pins and the chip.
func (d *RealDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for pin := range d.lines {
		if err := d.release(pin); err != nil {
			errs = append(errs, err)
		}
	}
	if d.chip != nil {
		if err := d.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
