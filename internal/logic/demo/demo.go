package demo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cjeanneret/evetouch/internal/debug"
	"github.com/cjeanneret/evetouch/internal/hw/ft800"
	"github.com/cjeanneret/evetouch/internal/logic/touch"
)

// Screen is the part of the display driver the demo needs.
// *ft800.Device implements it.
type Screen interface {
	Enable(ctx context.Context) error
	Calibrate(ctx context.Context) error
	AttachTouchCallback(fn ft800.TouchFunc)
	Clear(r, g, b uint8) error
	Draw(p ft800.Primitive) error
	Display() error
	Watch(ctx context.Context) error
	Disable() error
}

// Options configure the texts and layout.
type Options struct {
	Width, Height int    // panel size, default 480x272
	IdlePrompt    string // default "Tap on the screen"
	IdleFont      int16  // default 31
	EventFont     int16  // default 25
	Console       io.Writer
	// OnTouch, if set, is called for every touch the loop renders.
	OnTouch func(touch.Event)
}

func (o *Options) setDefaults() {
	if o.Width <= 0 {
		o.Width = 480
	}
	if o.Height <= 0 {
		o.Height = 272
	}
	if o.IdlePrompt == "" {
		o.IdlePrompt = "Tap on the screen"
	}
	if o.IdleFont == 0 {
		o.IdleFont = 31
	}
	if o.EventFont == 0 {
		o.EventFont = 25
	}
	if o.Console == nil {
		o.Console = os.Stdout
	}
}

// Run enables and calibrates the screen, then redraws the coordinates of
// every touch until ctx is done. The screen is disabled before Run
// returns, on every path where Enable succeeded. A cancelled ctx is a
// clean exit and returns nil.
func Run(ctx context.Context, s Screen, opts Options) (err error) {
	opts.setDefaults()

	debug.Step(1, "Enabling display")
	if err := s.Enable(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("enable display: %w", err)
	}
	defer func() {
		if derr := s.Disable(); derr != nil && err == nil {
			err = fmt.Errorf("disable display: %w", derr)
		}
	}()

	debug.Step(2, "Calibrating touch screen")
	if err := s.Calibrate(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("calibrate touch screen: %w", err)
	}

	fmt.Fprintln(opts.Console, "Press Ctrl+C to exit program.")

	// Attach after calibration, otherwise coordinates are raw
	latch := touch.NewLatch()
	s.AttachTouchCallback(latch.Post)

	watchCtx, stopWatch := context.WithCancel(ctx)
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		if err := s.Watch(watchCtx); err != nil {
			debug.Error(fmt.Errorf("touch watch: %w", err))
		}
	}()
	defer func() {
		stopWatch()
		<-watchDone
	}()

	debug.Step(3, "Rendering idle prompt")
	cx, cy := int16(opts.Width/2), int16(opts.Height/2)
	render(s, ft800.Text{X: cx, Y: cy, Font: opts.IdleFont, Options: ft800.OptCenter, S: opts.IdlePrompt})

	debug.Summary("Waiting for touch events")
	for {
		ev, err := latch.Wait(ctx)
		if err == nil {
			// A touch may be pending when the signal arrives
			err = ctx.Err()
		}
		if err != nil {
			debug.Verbose("Render loop stopped: %v", err)
			return nil
		}

		debug.Live("Redrawing for touch x=%d y=%d", ev.X, ev.Y)
		render(s,
			ft800.Text{X: cx, Y: cy, Font: opts.EventFont, Options: ft800.OptCenter, S: "Touch event detected at:"},
			ft800.Text{X: cx, Y: cy + 44, Font: opts.EventFont, Options: ft800.OptCenter, S: Coordinates(ev)},
		)
		if opts.OnTouch != nil {
			opts.OnTouch(ev)
		}
	}
}

// Coordinates formats a touch the way it is shown on screen.
func Coordinates(ev touch.Event) string {
	return fmt.Sprintf("x: %d, y: %d", ev.X, ev.Y)
}

// render draws one black frame with the given texts. Drawing failures are
// logged and otherwise ignored.
func render(s Screen, texts ...ft800.Text) {
	if err := s.Clear(0, 0, 0); err != nil {
		debug.Error(fmt.Errorf("clear: %w", err))
		return
	}
	for _, t := range texts {
		if err := s.Draw(t); err != nil {
			debug.Error(fmt.Errorf("draw: %w", err))
		}
	}
	if err := s.Display(); err != nil {
		debug.Error(fmt.Errorf("display: %w", err))
	}
}
