package gpio

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/evetouch/internal/debug"
	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// PeriphDriver drives GPIOs through periph.io. Pins are addressed by their
// BCM number and resolved as "GPIO<n>" in the periph registry.
type PeriphDriver struct {
	mu   sync.Mutex
	pins map[int]pgpio.PinIO
}

// NewPeriphDriver initializes the periph.io host drivers.
func NewPeriphDriver() (*PeriphDriver, error) {
	debug.Info("Initializing real GPIO driver (periph.io)")

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	return &PeriphDriver{pins: make(map[int]pgpio.PinIO)}, nil
}

func (p *PeriphDriver) lookup(pin int) (pgpio.PinIO, error) {
	if gp, ok := p.pins[pin]; ok {
		return gp, nil
	}
	name := fmt.Sprintf("GPIO%d", pin)
	gp := gpioreg.ByName(name)
	if gp == nil {
		return nil, fmt.Errorf("gpio %s not found", name)
	}
	p.pins[pin] = gp
	return gp, nil
}

func (p *PeriphDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)

	p.mu.Lock()
	defer p.mu.Unlock()

	gp, err := p.lookup(pin)
	if err != nil {
		return err
	}
	switch mode {
	case Input:
		return gp.In(pgpio.PullUp, pgpio.NoEdge)
	case Output:
		return gp.Out(pgpio.High)
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}
}

func (p *PeriphDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)

	p.mu.Lock()
	defer p.mu.Unlock()

	gp, err := p.lookup(pin)
	if err != nil {
		return err
	}
	return gp.Out(pgpio.Level(level))
}

func (p *PeriphDriver) ReadPin(pin int) (Level, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	gp, err := p.lookup(pin)
	if err != nil {
		return Low, err
	}
	return Level(gp.Read()), nil
}

func (p *PeriphDriver) Close() error {
	debug.Trace("GPIO Close (periph)")

	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for pin, gp := range p.pins {
		debug.Verbose("Resetting pin %d to input", pin)
		if err := gp.In(pgpio.Float, pgpio.NoEdge); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
