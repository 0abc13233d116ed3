// Package rpimem shares the go-rpio memory mapping between the GPIO driver
// and the SPI bus. go-rpio keeps a single process-wide mapping, so it is
// opened by the first user and unmapped when the last one closes.
package rpimem

import (
	"sync"

	"github.com/cjeanneret/evetouch/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

var (
	mu      sync.Mutex
	refs    int
	openFn  = rpio.Open
	closeFn = rpio.Close
)

// Open maps GPIO memory unless it is already mapped.
func Open() error {
	mu.Lock()
	defer mu.Unlock()

	if refs == 0 {
		if err := openFn(); err != nil {
			return err
		}
		debug.Verbose("GPIO memory mapped")
	}
	refs++
	return nil
}

// Close releases one reference and unmaps with the last one.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	if refs == 0 {
		return nil
	}
	refs--
	if refs > 0 {
		return nil
	}
	debug.Verbose("GPIO memory unmapped")
	return closeFn()
}
