package demo

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cjeanneret/evetouch/internal/hw/ft800"
	"github.com/cjeanneret/evetouch/internal/logic/touch"
)

// fakeScreen records calls for verification.
type fakeScreen struct {
	mu           sync.Mutex
	calls        []string
	frames       [][]ft800.Text
	current      []ft800.Text
	callback     ft800.TouchFunc
	enableErr    error
	calibrateErr error
	drawErr      error
	watching     chan struct{}
	displayed    chan struct{}
	onDisplay    func() // runs after each frame is recorded
}

func newFakeScreen() *fakeScreen {
	return &fakeScreen{
		watching:  make(chan struct{}),
		displayed: make(chan struct{}, 16),
	}
}

func (f *fakeScreen) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeScreen) Enable(ctx context.Context) error {
	f.record("enable")
	return f.enableErr
}

func (f *fakeScreen) Calibrate(ctx context.Context) error {
	f.record("calibrate")
	return f.calibrateErr
}

func (f *fakeScreen) AttachTouchCallback(fn ft800.TouchFunc) {
	f.record("attach")
	f.mu.Lock()
	f.callback = fn
	f.mu.Unlock()
}

func (f *fakeScreen) Clear(r, g, b uint8) error {
	f.mu.Lock()
	f.current = nil
	f.mu.Unlock()
	return nil
}

func (f *fakeScreen) Draw(p ft800.Primitive) error {
	if f.drawErr != nil {
		return f.drawErr
	}
	f.mu.Lock()
	if t, ok := p.(ft800.Text); ok {
		f.current = append(f.current, t)
	}
	f.mu.Unlock()
	return nil
}

func (f *fakeScreen) Display() error {
	f.mu.Lock()
	f.frames = append(f.frames, f.current)
	hook := f.onDisplay
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	f.displayed <- struct{}{}
	return nil
}

func (f *fakeScreen) Watch(ctx context.Context) error {
	close(f.watching)
	<-ctx.Done()
	return nil
}

func (f *fakeScreen) Disable() error {
	f.record("disable")
	return nil
}

func (f *fakeScreen) touch(x, y uint16) {
	f.mu.Lock()
	cb := f.callback
	f.mu.Unlock()
	cb(x, y)
}

func (f *fakeScreen) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeScreen) lastFrame() []ft800.Text {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames[len(f.frames)-1]
}

func waitDisplayed(t *testing.T, f *fakeScreen) {
	t.Helper()
	select {
	case <-f.displayed:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for a frame")
	}
}

func TestRun_EnableFailure(t *testing.T) {
	f := newFakeScreen()
	f.enableErr = errors.New("no chip")

	err := Run(context.Background(), f, Options{Console: &bytes.Buffer{}})
	if err == nil || !errors.Is(err, f.enableErr) {
		t.Fatalf("Run error = %v, want wrapping %v", err, f.enableErr)
	}
	if n := f.count("disable"); n != 0 {
		t.Errorf("disable called %d times after failed enable, want 0", n)
	}
	if n := f.count("calibrate"); n != 0 {
		t.Errorf("calibrate called %d times after failed enable, want 0", n)
	}
}

func TestRun_EnableCancelledIsCleanExit(t *testing.T) {
	f := newFakeScreen()
	f.enableErr = context.Canceled

	if err := Run(context.Background(), f, Options{Console: &bytes.Buffer{}}); err != nil {
		t.Fatalf("Run error = %v, want nil", err)
	}
	if n := f.count("calibrate"); n != 0 {
		t.Errorf("calibrate called %d times after cancelled enable, want 0", n)
	}
}

func TestRun_CalibrationFailureDisables(t *testing.T) {
	f := newFakeScreen()
	f.calibrateErr = ft800.ErrCalibration
	var console bytes.Buffer

	err := Run(context.Background(), f, Options{Console: &console})
	if !errors.Is(err, ft800.ErrCalibration) {
		t.Fatalf("Run error = %v, want ErrCalibration", err)
	}
	if n := f.count("disable"); n != 1 {
		t.Errorf("disable called %d times, want 1", n)
	}
	if n := f.count("attach"); n != 0 {
		t.Errorf("callback attached %d times after failed calibration, want 0", n)
	}
	if console.Len() != 0 {
		t.Errorf("console = %q, want nothing before calibration succeeds", console.String())
	}
}

func TestRun_IdlePromptThenTouch(t *testing.T) {
	f := newFakeScreen()
	var console bytes.Buffer
	var touched []touch.Event
	var mu sync.Mutex

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- Run(ctx, f, Options{
			Console: &console,
			OnTouch: func(ev touch.Event) {
				mu.Lock()
				touched = append(touched, ev)
				mu.Unlock()
			},
		})
	}()

	waitDisplayed(t, f)
	idle := f.lastFrame()
	want := ft800.Text{X: 240, Y: 136, Font: 31, Options: ft800.OptCenter, S: "Tap on the screen"}
	if len(idle) != 1 || idle[0] != want {
		t.Fatalf("idle frame = %+v, want [%+v]", idle, want)
	}

	f.touch(100, 200)
	waitDisplayed(t, f)
	got := f.lastFrame()
	wantEvent := []ft800.Text{
		{X: 240, Y: 136, Font: 25, Options: ft800.OptCenter, S: "Touch event detected at:"},
		{X: 240, Y: 180, Font: 25, Options: ft800.OptCenter, S: "x: 100, y: 200"},
	}
	if len(got) != 2 || got[0] != wantEvent[0] || got[1] != wantEvent[1] {
		t.Errorf("event frame = %+v, want %+v", got, wantEvent)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run returned %v after cancel, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if !strings.Contains(console.String(), "Press Ctrl+C to exit program.") {
		t.Errorf("console = %q, want exit hint", console.String())
	}
	if n := f.count("disable"); n != 1 {
		t.Errorf("disable called %d times, want 1", n)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(touched) != 1 || touched[0] != (touch.Event{X: 100, Y: 200}) {
		t.Errorf("OnTouch events = %+v", touched)
	}
}

func TestRun_CallbackAttachedAfterCalibration(t *testing.T) {
	f := newFakeScreen()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-f.watching
		cancel()
	}()

	if err := Run(ctx, f, Options{Console: &bytes.Buffer{}}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	want := []string{"enable", "calibrate", "attach", "disable"}
	if strings.Join(f.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", f.calls, want)
	}
}

func TestRun_CancelExitsWithinOneIteration(t *testing.T) {
	f := newFakeScreen()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- Run(ctx, f, Options{Console: &bytes.Buffer{}}) }()

	waitDisplayed(t, f)
	start := time.Now()
	cancel()
	cancel() // a second signal changes nothing

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run error = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after cancel")
	}
	if d := time.Since(start); d > 500*time.Millisecond {
		t.Errorf("exit took %v", d)
	}
	if n := f.count("disable"); n != 1 {
		t.Errorf("disable called %d times, want exactly 1", n)
	}
}

func TestRun_TouchPendingAtCancelIsNotDrawn(t *testing.T) {
	f := newFakeScreen()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var once sync.Once
	f.onDisplay = func() {
		once.Do(func() {
			cancel()
			f.touch(7, 8)
		})
	}

	if err := Run(ctx, f, Options{Console: &bytes.Buffer{}}); err != nil {
		t.Fatalf("Run error = %v, want nil", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) != 1 {
		t.Errorf("frames drawn = %d (%+v), want only the idle prompt", len(f.frames), f.frames)
	}
	if n := len(f.calls); n == 0 || f.calls[n-1] != "disable" {
		t.Errorf("calls = %v, want disable last", f.calls)
	}
}

func TestRun_DrawErrorsAreNotFatal(t *testing.T) {
	f := newFakeScreen()
	f.drawErr = errors.New("fifo fault")
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- Run(ctx, f, Options{Console: &bytes.Buffer{}}) }()

	waitDisplayed(t, f)
	cancel()
	if err := <-errCh; err != nil {
		t.Errorf("Run error = %v, want nil", err)
	}
}

func TestRun_CustomLayout(t *testing.T) {
	f := newFakeScreen()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = Run(ctx, f, Options{Width: 320, Height: 240, IdlePrompt: "Touch me", IdleFont: 28, Console: &bytes.Buffer{}})
	}()

	waitDisplayed(t, f)
	idle := f.lastFrame()
	want := ft800.Text{X: 160, Y: 120, Font: 28, Options: ft800.OptCenter, S: "Touch me"}
	if len(idle) != 1 || idle[0] != want {
		t.Errorf("idle frame = %+v, want [%+v]", idle, want)
	}
}

func TestCoordinates(t *testing.T) {
	if got := Coordinates(touch.Event{X: 0, Y: 271}); got != "x: 0, y: 271" {
		t.Errorf("Coordinates() = %q", got)
	}
}
