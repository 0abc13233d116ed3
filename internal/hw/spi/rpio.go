package spi

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/evetouch/internal/debug"
	"github.com/cjeanneret/evetouch/internal/hw/rpimem"
	"github.com/stianeikeland/go-rpio/v4"
)

// RPiBus is the BCM283x SPI0 controller driven through go-rpio.
type RPiBus struct {
	mu  sync.Mutex
	buf []byte
}

// OpenRPi maps GPIO memory, shared with the rpio GPIO driver, and claims
// SPI0.
func OpenRPi(opts Options) (*RPiBus, error) {
	debug.Info("Initializing SPI0 (go-rpio)")

	if err := rpimem.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO memory: %w (are you running on a Raspberry Pi?)", err)
	}
	if err := rpio.SpiBegin(rpio.Spi0); err != nil {
		_ = rpimem.Close()
		return nil, fmt.Errorf("spi begin: %w (is SPI enabled and are you root?)", err)
	}
	rpio.SpiChipSelect(uint8(opts.ChipSelect))
	rpio.SpiSpeed(opts.SpeedHz)
	rpio.SpiMode(uint8(opts.Mode>>1), uint8(opts.Mode&1))

	debug.Verbose("SPI0 cs=%d speed=%dHz mode=%d", opts.ChipSelect, opts.SpeedHz, opts.Mode)
	return &RPiBus{}, nil
}

func (b *RPiBus) Tx(w, r []byte) error {
	if err := checkLen(w, r); err != nil {
		return err
	}
	debug.SPI(w)

	b.mu.Lock()
	defer b.mu.Unlock()

	// SpiExchange works in place
	if cap(b.buf) < len(w) {
		b.buf = make([]byte, len(w))
	}
	buf := b.buf[:len(w)]
	copy(buf, w)
	rpio.SpiExchange(buf)
	if r != nil {
		copy(r, buf)
	}
	return nil
}

func (b *RPiBus) Close() error {
	debug.Trace("SPI Close (rpio)")
	rpio.SpiEnd(rpio.Spi0)
	return rpimem.Close()
}
