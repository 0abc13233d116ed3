package gpio

import (
	"fmt"

	"github.com/cjeanneret/evetouch/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// PinMode indicates whether a GPIO is input or output.
// Inputs are pulled up: the FT800 INT_N line is open-drain.
type PinMode int

const (
	Input PinMode = iota
	Output
)

// Driver defines the abstract interface for controlling GPIOs.
// This allows plugging in a real Raspberry Pi implementation
// or a mock for development on PC.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	Close() error
}

// NewDriver creates a GPIO driver for the given backend:
// "rpio" (go-rpio, /dev/gpiomem), "periph" (periph.io) or "mock".
func NewDriver(backend string) (Driver, error) {
	switch backend {
	case "mock":
		debug.Info("Using MOCK GPIO driver (development mode)")
		return NewMockDriver(), nil
	case "rpio":
		return NewRPiRealDriver()
	case "periph":
		return NewPeriphDriver()
	default:
		return nil, fmt.Errorf("unknown GPIO backend: %q", backend)
	}
}

// MockDriver is a test implementation that logs actions and remembers
// the last level written to each pin. Unwritten pins read High, which
// is the idle state of an active-low interrupt line.
type MockDriver struct {
	levels map[int]Level
}

// NewMockDriver returns an empty MockDriver.
func NewMockDriver() *MockDriver {
	return &MockDriver{levels: make(map[int]Level)}
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	if m.levels == nil {
		m.levels = make(map[int]Level)
	}
	m.levels[pin] = level
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)
	if l, ok := m.levels[pin]; ok {
		return l, nil
	}
	return High, nil
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}
