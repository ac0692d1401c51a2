package gpio

import "fmt"

// Driver names accepted by Open.
const (
	DriverGPIOCDev = "gpiocdev"
	DriverPeriph   = "periph"
)

// Open returns the hardware driver with the given name.
// chip is only used by the gpiocdev driver.
func Open(name, chip string) (Driver, error) {
	switch name {
	case DriverGPIOCDev, "":
		d, err := NewRealDriver(chip)
		if err != nil {
			return nil, err
		}
		return d, nil
	case DriverPeriph:
		d, err := NewPeriphDriver()
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	return nil, fmt.Errorf("unknown gpio driver %q", name)
}
