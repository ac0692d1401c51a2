package gpio

import "fmt"

// Board describes which pin numbers of a board can serve as inputs.
type Board struct {
	Name     string
	missing  map[uint8]bool
	reserved map[uint8]bool
	count    int
}

// Check reports whether pin can be watched on this board.
// It returns ErrInvalidPin, ErrReservedPin or nil.
func (b Board) Check(pin uint8) error {
	if int(pin) >= b.count || b.missing[pin] {
		return ErrInvalidPin
	}
	if b.reserved[pin] {
		return ErrReservedPin
	}
	return nil
}

// Pins returns every pin number that passes Check, in ascending order.
func (b Board) Pins() []uint8 {
	var pins []uint8
	for i := 0; i < b.count; i++ {
		if b.Check(uint8(i)) == nil {
			pins = append(pins, uint8(i))
		}
	}
	return pins
}

// ESP32 is the pin map of an ESP32-WROOM module.
// GPIO 6 to 11 are connected to the internal SPI flash.
var ESP32 = Board{
	Name:     "esp32",
	count:    40,
	missing:  set(20, 24, 28, 29, 30, 31),
	reserved: set(6, 7, 8, 9, 10, 11),
}

// RaspberryPi is the BCM pin map of the 40-pin Raspberry Pi header.
// BCM 0 and 1 carry the HAT ID EEPROM bus.
var RaspberryPi = Board{
	Name:     "rpi",
	count:    28,
	reserved: set(0, 1),
}

// LookupBoard returns the board with the given name.
func LookupBoard(name string) (Board, error) {
	switch name {
	case ESP32.Name:
		return ESP32, nil
	case RaspberryPi.Name, "":
		return RaspberryPi, nil
	}
	return Board{}, fmt.Errorf("unknown board %q", name)
}

func set(pins ...uint8) map[uint8]bool {
	m := make(map[uint8]bool, len(pins))
	for _, p := range pins {
		m[p] = true
	}
	return m
}
