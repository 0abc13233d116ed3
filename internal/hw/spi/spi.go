package spi

import (
	"fmt"
)

// Bus is a full-duplex SPI connection to a single device. Chip select is
// asserted for the whole of one Tx call, so a command and its response
// must be exchanged in the same call.
type Bus interface {
	// Tx writes w and reads len(w) bytes into r. r may be nil.
	Tx(w, r []byte) error
	Close() error
}

// Options selects and configures a bus backend.
type Options struct {
	Backend    string // "rpio" or "periph"
	Device     string // periph port name ("" = first registered port)
	ChipSelect int    // rpio chip select line
	SpeedHz    int
	Mode       int // 0-3, clock polarity << 1 | clock phase
}

// Open returns a bus for the configured backend.
func Open(opts Options) (Bus, error) {
	if opts.Mode < 0 || opts.Mode > 3 {
		return nil, fmt.Errorf("spi mode must be 0-3, got %d", opts.Mode)
	}
	if opts.SpeedHz <= 0 {
		return nil, fmt.Errorf("spi speed must be > 0, got %d", opts.SpeedHz)
	}
	switch opts.Backend {
	case "rpio":
		return OpenRPi(opts)
	case "periph":
		return OpenPeriph(opts)
	default:
		return nil, fmt.Errorf("unknown SPI backend: %q", opts.Backend)
	}
}

func checkLen(w, r []byte) error {
	if r != nil && len(r) != len(w) {
		return fmt.Errorf("spi: read buffer length %d != write length %d", len(r), len(w))
	}
	return nil
}
