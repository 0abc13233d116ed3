package spi

import (
	"fmt"

	"github.com/cjeanneret/evetouch/internal/debug"
	"periph.io/x/conn/v3/physic"
	pspi "periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// PeriphBus is a spidev port opened through periph.io.
type PeriphBus struct {
	port pspi.PortCloser
	conn pspi.Conn
}

// OpenPeriph initializes periph.io and connects to opts.Device.
func OpenPeriph(opts Options) (*PeriphBus, error) {
	debug.Info("Initializing SPI (periph.io) port=%q", opts.Device)

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	port, err := spireg.Open(opts.Device)
	if err != nil {
		return nil, fmt.Errorf("open spi port %q: %w", opts.Device, err)
	}
	conn, err := port.Connect(physic.Frequency(opts.SpeedHz)*physic.Hertz, pspi.Mode(opts.Mode), 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("connect spi port %q: %w", opts.Device, err)
	}

	debug.Verbose("SPI port=%q speed=%dHz mode=%d", opts.Device, opts.SpeedHz, opts.Mode)
	return &PeriphBus{port: port, conn: conn}, nil
}

func (b *PeriphBus) Tx(w, r []byte) error {
	if err := checkLen(w, r); err != nil {
		return err
	}
	debug.SPI(w)
	return b.conn.Tx(w, r)
}

func (b *PeriphBus) Close() error {
	debug.Trace("SPI Close (periph)")
	return b.port.Close()
}
