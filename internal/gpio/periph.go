package gpio

import (
	"fmt"
	"sync"
	"time"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// edgeWait bounds each WaitForEdge call so a detached watcher exits promptly.
const edgeWait = 100 * time.Millisecond

// PeriphDriver implements Driver using periph.io for real hardware GPIO.
type PeriphDriver struct {
	mu   sync.Mutex
	pins map[uint8]*periphPin
}

type periphPin struct {
	io   pgpio.PinIO
	pull Pull
	stop chan struct{}
	done chan struct{}
}

// NewPeriphDriver initializes periph.io and returns a real GPIO driver.
func NewPeriphDriver() (*PeriphDriver, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	return &PeriphDriver{pins: make(map[uint8]*periphPin)}, nil
}

func periphPull(pull Pull) pgpio.Pull {
	if pull == PullUp {
		return pgpio.PullUp
	}
	return pgpio.PullDown
}

// resolve looks up a pin by BCM number, caching the result.
func (d *PeriphDriver) resolve(pin uint8) (*periphPin, error) {
	if p, ok := d.pins[pin]; ok {
		return p, nil
	}
	name := fmt.Sprintf("GPIO%d", pin)
	io := gpioreg.ByName(name)
	if io == nil {
		return nil, fmt.Errorf("pin %d (%s) not found in hardware", pin, name)
	}
	p := &periphPin{io: io}
	d.pins[pin] = p
	return p, nil
}

// Configure sets the pin to input with the given pull resistor.
// An attached pin keeps its edge detection.
func (d *PeriphDriver) Configure(pin uint8, pull Pull) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, err := d.resolve(pin)
	if err != nil {
		return err
	}
	edge := pgpio.NoEdge
	if p.stop != nil {
		edge = pgpio.BothEdges
	}
	if err := p.io.In(periphPull(pull), edge); err != nil {
		return fmt.Errorf("set pin %d to input: %w", pin, err)
	}
	p.pull = pull
	return nil
}

// Read returns the level of the pin, true = high.
func (d *PeriphDriver) Read(pin uint8) (bool, error) {
	d.mu.Lock()
	p, ok := d.pins[pin]
	d.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("read pin %d: not configured", pin)
	}
	return p.io.Read() == pgpio.High, nil
}

// Attach enables edge detection and starts a watcher goroutine for the pin.
func (d *PeriphDriver) Attach(pin uint8, fn EdgeFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.pins[pin]
	if !ok {
		return fmt.Errorf("attach pin %d: not configured", pin)
	}
	p.halt()
	if err := p.io.In(periphPull(p.pull), pgpio.BothEdges); err != nil {
		return fmt.Errorf("enable edges on pin %d: %w", pin, err)
	}

	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.watch(fn)
	return nil
}

func (p *periphPin) watch(fn EdgeFunc) {
	defer close(p.done)
	for {
		select {
		case <-p.stop:
			return
		default:
		}
		if p.io.WaitForEdge(edgeWait) {
			fn(p.io.Read() == pgpio.High, time.Now())
		}
	}
}

// halt stops the watcher goroutine, if any, and waits for it to exit.
func (p *periphPin) halt() {
	if p.stop == nil {
		return
	}
	close(p.stop)
	<-p.done
	p.stop, p.done = nil, nil
}

// Detach stops the watcher and disables edge detection.
func (d *PeriphDriver) Detach(pin uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.pins[pin]
	if !ok || p.stop == nil {
		return nil
	}
	p.halt()
	if err := p.io.In(periphPull(p.pull), pgpio.NoEdge); err != nil {
		return fmt.Errorf("disable edges on pin %d: %w", pin, err)
	}
	return nil
}

// Release detaches the pin and returns it to input with pull-down.
func (d *PeriphDriver) Release(pin uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.release(pin)
}

func (d *PeriphDriver) release(pin uint8) error {
	p, ok := d.pins[pin]
	if !ok {
		return nil
	}
	p.halt()
	delete(d.pins, pin)
	if err := p.io.In(pgpio.PullDown, pgpio.NoEdge); err != nil {
		return fmt.Errorf("release pin %d: %w", pin, err)
	}
	return nil
}

// Close releases all pins.
func (d *PeriphDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for pin := range d.pins {
		if err := d.release(pin); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
