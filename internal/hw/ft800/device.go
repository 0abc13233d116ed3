package ft800

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/evetouch/internal/debug"
	"github.com/cjeanneret/evetouch/internal/hw/gpio"
	"github.com/cjeanneret/evetouch/internal/hw/spi"
)

var (
	// ErrNotDetected is returned by Enable when REG_ID never reads ChipID.
	ErrNotDetected = errors.New("ft800: chip not detected")
	// ErrCalibration is returned by Calibrate when the coprocessor reports failure.
	ErrCalibration = errors.New("ft800: touch calibration failed")
	// ErrDisabled is returned by operations that need an enabled device.
	ErrDisabled = errors.New("ft800: device not enabled")
	// ErrCoprocessorFault is returned when the coprocessor flags an invalid command.
	ErrCoprocessorFault = errors.New("ft800: coprocessor fault")
)

// Pins are the BCM numbers of the board control lines. 0 means not wired.
type Pins struct {
	PowerDown int // PD_N, active low
	Interrupt int // INT_N, active low, open drain
}

// Options tune the panel and the driver timings.
type Options struct {
	Width            int // pixels, default 480
	Height           int // pixels, default 272
	Backlight        int // PWM duty 0-128, default 128
	PollInterval     time.Duration
	EnableTimeout    time.Duration
	CalibrateTimeout time.Duration
}

func (o *Options) setDefaults() {
	if o.Width <= 0 {
		o.Width = 480
	}
	if o.Height <= 0 {
		o.Height = 272
	}
	if o.Backlight <= 0 || o.Backlight > 128 {
		o.Backlight = 128
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 10 * time.Millisecond
	}
	if o.EnableTimeout <= 0 {
		o.EnableTimeout = time.Second
	}
	if o.CalibrateTimeout <= 0 {
		o.CalibrateTimeout = time.Minute
	}
}

// TouchFunc receives calibrated screen coordinates.
type TouchFunc func(x, y uint16)

// Device is an FT800 display controller with its resistive touch panel.
// All bus traffic is serialized, so Watch may run while another goroutine
// draws.
type Device struct {
	mu       sync.Mutex
	bus      spi.Bus
	gpio     gpio.Driver
	pins     Pins
	opts     Options
	enabled  bool
	list     []uint32 // pending coprocessor commands
	cmdWrite uint16   // mirror of REG_CMD_WRITE
	xform    [6]uint32

	cbMu     sync.RWMutex
	callback TouchFunc
}

// New returns a Device using bus for SPI traffic and g for the control
// lines. Nothing is sent to the chip until Enable.
func New(bus spi.Bus, g gpio.Driver, pins Pins, opts Options) *Device {
	opts.setDefaults()
	return &Device{
		bus:  bus,
		gpio: g,
		pins: pins,
		opts: opts,
	}
}

// Enable powers the chip up, waits for it to answer and programs the
// panel timings, backlight and touch engine. On failure, including a
// cancelled ctx, the chip is left powered down.
func (d *Device) Enable(ctx context.Context) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.enabled {
		return nil
	}
	debug.Section("Enabling FT800")
	defer func() {
		if err != nil {
			d.powerDown()
		}
	}()

	if d.pins.PowerDown > 0 {
		debug.Step(1, "Power cycling through PD_N")
		if err := d.gpio.SetupPin(d.pins.PowerDown, gpio.Output); err != nil {
			return fmt.Errorf("setup PD_N: %w", err)
		}
		if err := d.gpio.WritePin(d.pins.PowerDown, gpio.Low); err != nil {
			return fmt.Errorf("PD_N low: %w", err)
		}
		if err := sleep(ctx, 20*time.Millisecond); err != nil {
			return err
		}
		if err := d.gpio.WritePin(d.pins.PowerDown, gpio.High); err != nil {
			return fmt.Errorf("PD_N high: %w", err)
		}
		if err := sleep(ctx, 20*time.Millisecond); err != nil {
			return err
		}
	}

	debug.Step(2, "Waking up the chip")
	if err := d.hostCommand(hostActive); err != nil {
		return err
	}
	if err := sleep(ctx, 20*time.Millisecond); err != nil {
		return err
	}
	if err := d.hostCommand(hostClkExt); err != nil {
		return err
	}
	if err := d.hostCommand(hostClk48M); err != nil {
		return err
	}

	if err := d.waitChipID(ctx); err != nil {
		return err
	}
	debug.Info("FT800 detected (REG_ID=0x%02x)", ChipID)

	debug.Step(3, "Programming panel timings")
	w := &regWriter{d: d}
	w.wr8(RegPCLK, 0)
	w.wr8(RegPWMDuty, 0)
	w.wr16(RegHSize, uint16(d.opts.Width))
	w.wr16(RegHCycle, uint16(d.opts.Width+68))
	w.wr16(RegHOffset, 43)
	w.wr16(RegHSync0, 0)
	w.wr16(RegHSync1, 41)
	w.wr16(RegVSize, uint16(d.opts.Height))
	w.wr16(RegVCycle, uint16(d.opts.Height+20))
	w.wr16(RegVOffset, 12)
	w.wr16(RegVSync0, 0)
	w.wr16(RegVSync1, 10)
	w.wr8(RegSwizzle, 0)
	w.wr8(RegPCLKPol, 1)
	w.wr8(RegCSpread, 1)

	// Black first frame so the panel does not show garbage
	w.wr32(RAMDL, dlClearColorRGB(0, 0, 0))
	w.wr32(RAMDL+4, dlClear(true, true, true))
	w.wr32(RAMDL+8, dlDisplay())
	w.wr8(RegDLSwap, dlSwapFrame)
	if w.err != nil {
		return w.err
	}

	debug.Step(4, "Turning the display on")
	dir, err := d.rd8(RegGPIODir)
	if err != nil {
		return err
	}
	val, err := d.rd8(RegGPIO)
	if err != nil {
		return err
	}
	w.wr8(RegGPIODir, dir|gpioDisplay)
	w.wr8(RegGPIO, val|gpioDisplay)
	w.wr8(RegPCLK, 5)
	w.wr8(RegPWMDuty, uint8(d.opts.Backlight))

	debug.Step(5, "Configuring touch engine")
	w.wr16(RegTouchRZThresh, touchRZThreshold)
	w.wr8(RegIntMask, IntTouch)
	w.wr8(RegIntEn, 1)
	if w.err != nil {
		return w.err
	}
	if _, err := d.rd8(RegIntFlags); err != nil { // read clears stale flags
		return err
	}
	if d.cmdWrite, err = d.rd16(RegCmdWrite); err != nil {
		return err
	}
	if d.pins.Interrupt > 0 {
		if err := d.gpio.SetupPin(d.pins.Interrupt, gpio.Input); err != nil {
			return fmt.Errorf("setup INT_N: %w", err)
		}
	}

	d.enabled = true
	d.list = d.list[:0]
	return nil
}

func (d *Device) waitChipID(ctx context.Context) error {
	deadline := time.Now().Add(d.opts.EnableTimeout)
	for {
		id, err := d.rd8(RegID)
		if err != nil {
			return err
		}
		if id == ChipID {
			return nil
		}
		debug.Trace("REG_ID=0x%02x, waiting", id)
		if time.Now().After(deadline) {
			return fmt.Errorf("%w (REG_ID=0x%02x)", ErrNotDetected, id)
		}
		if err := sleep(ctx, 5*time.Millisecond); err != nil {
			return err
		}
	}
}

// Disable switches the panel off and puts the chip in power down.
// It stops Watch and is safe to call more than once.
func (d *Device) Disable() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.enabled {
		return nil
	}
	d.enabled = false
	debug.Verbose("Disabling FT800")

	w := &regWriter{d: d}
	w.wr8(RegIntEn, 0)
	w.wr8(RegPWMDuty, 0)
	w.wr8(RegGPIO, 0)
	w.wr8(RegPCLK, 0)
	if perr := d.powerDown(); perr != nil && w.err == nil {
		return perr
	}
	return w.err
}

// powerDown sends PWRDOWN and holds PD_N low. Both are attempted.
func (d *Device) powerDown() error {
	err := d.hostCommand(hostPwrDown)
	if d.pins.PowerDown > 0 {
		if perr := d.gpio.WritePin(d.pins.PowerDown, gpio.Low); perr != nil && err == nil {
			err = perr
		}
	}
	return err
}

// Enabled reports whether Enable succeeded and Disable was not called since.
func (d *Device) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// AttachTouchCallback sets the function called by Watch for every touch.
// Attach it after Calibrate: before calibration the coordinates are raw.
// A nil fn detaches the callback.
func (d *Device) AttachTouchCallback(fn TouchFunc) {
	d.cbMu.Lock()
	d.callback = fn
	d.cbMu.Unlock()
}

// Watch polls the touch interrupt until ctx is done or the device is
// disabled, calling the attached callback for each touch.
func (d *Device) Watch(ctx context.Context) error {
	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		x, y, ok, err := d.pollTouch()
		if errors.Is(err, ErrDisabled) {
			return nil
		}
		if err != nil {
			debug.Error(fmt.Errorf("touch poll: %w", err))
			continue
		}
		if !ok {
			continue
		}

		debug.Touch(x, y)
		d.cbMu.RLock()
		cb := d.callback
		d.cbMu.RUnlock()
		if cb != nil {
			cb(x, y)
		}
	}
}

// pollTouch returns the screen coordinates of a pending touch, if any.
func (d *Device) pollTouch() (x, y uint16, ok bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.enabled {
		return 0, 0, false, ErrDisabled
	}
	if d.pins.Interrupt > 0 {
		lvl, err := d.gpio.ReadPin(d.pins.Interrupt)
		if err != nil {
			return 0, 0, false, err
		}
		if lvl == gpio.High {
			return 0, 0, false, nil
		}
	}
	flags, err := d.rd8(RegIntFlags)
	if err != nil {
		return 0, 0, false, err
	}
	if flags&IntTouch == 0 {
		return 0, 0, false, nil
	}
	xy, err := d.rd32(RegTouchScreenXY)
	if err != nil {
		return 0, 0, false, err
	}
	x, y = uint16(xy>>16), uint16(xy)
	if x == noTouch && y == noTouch {
		return 0, 0, false, nil
	}
	return x, y, true, nil
}

// Size returns the configured panel size in pixels.
func (d *Device) Size() (width, height int) {
	return d.opts.Width, d.opts.Height
}

func sleep(ctx context.Context, dur time.Duration) error {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
