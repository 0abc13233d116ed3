package ft800

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

const (
	testPD  = 25
	testInt = 24
)

func newTestDevice(t *testing.T) (*Device, *Sim) {
	t.Helper()
	sim := NewSim(Pins{PowerDown: testPD, Interrupt: testInt})
	dev := New(sim, sim, Pins{PowerDown: testPD, Interrupt: testInt}, Options{
		PollInterval:     time.Millisecond,
		EnableTimeout:    50 * time.Millisecond,
		CalibrateTimeout: time.Second,
	})
	return dev, sim
}

func enabledDevice(t *testing.T) (*Device, *Sim) {
	t.Helper()
	dev, sim := newTestDevice(t)
	qt.New(t).Assert(dev.Enable(context.Background()), qt.IsNil)
	return dev, sim
}

// deadBus never answers: reads return zeros.
type deadBus struct{}

func (deadBus) Tx(w, r []byte) error { return nil }
func (deadBus) Close() error         { return nil }

func TestEnable_ProgramsPanel(t *testing.T) {
	c := qt.New(t)
	dev, sim := enabledDevice(t)

	c.Assert(dev.Enabled(), qt.IsTrue)
	c.Assert(sim.Active(), qt.IsTrue)
	c.Assert(sim.HostCommands(), qt.DeepEquals, []byte{hostActive, hostClkExt, hostClk48M})
	c.Assert(sim.Reg(RegHSize)&0xFFFF, qt.Equals, uint32(480))
	c.Assert(sim.Reg(RegHCycle)&0xFFFF, qt.Equals, uint32(548))
	c.Assert(sim.Reg(RegVSize)&0xFFFF, qt.Equals, uint32(272))
	c.Assert(sim.Reg(RegVCycle)&0xFFFF, qt.Equals, uint32(292))
	c.Assert(sim.Reg(RegPCLK)&0xFF, qt.Equals, uint32(5))
	c.Assert(sim.Reg(RegPWMDuty)&0xFF, qt.Equals, uint32(128))
	c.Assert(sim.Reg(RegGPIO)&gpioDisplay, qt.Equals, uint32(gpioDisplay))
	c.Assert(sim.Reg(RegIntMask)&0xFF, qt.Equals, uint32(IntTouch))
	c.Assert(sim.Reg(RegTouchRZThresh)&0xFFFF, qt.Equals, uint32(touchRZThreshold))
}

func TestEnable_Twice(t *testing.T) {
	dev, sim := enabledDevice(t)
	qt.New(t).Assert(dev.Enable(context.Background()), qt.IsNil)
	qt.New(t).Assert(sim.HostCommands(), qt.HasLen, 3)
}

func TestEnable_NotDetected(t *testing.T) {
	dev := New(deadBus{}, NewSim(Pins{}), Pins{}, Options{EnableTimeout: 10 * time.Millisecond})
	err := dev.Enable(context.Background())
	qt.New(t).Assert(err, qt.ErrorIs, ErrNotDetected)
	qt.New(t).Assert(dev.Enabled(), qt.IsFalse)
}

func TestEnable_Cancelled(t *testing.T) {
	dev := New(deadBus{}, NewSim(Pins{}), Pins{}, Options{EnableTimeout: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := dev.Enable(ctx)
	qt.New(t).Assert(err, qt.ErrorIs, context.Canceled)
}

// cancelOnWake cancels a context once the chip has been sent ACTIVE.
type cancelOnWake struct {
	*Sim
	cancel context.CancelFunc
}

func (b cancelOnWake) Tx(w, r []byte) error {
	err := b.Sim.Tx(w, r)
	if len(w) == 3 && w[0] == hostActive {
		b.cancel()
	}
	return err
}

func TestEnable_CancelledAfterWakeUpPowersDown(t *testing.T) {
	c := qt.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pins := Pins{PowerDown: testPD, Interrupt: testInt}
	sim := NewSim(pins)
	dev := New(cancelOnWake{Sim: sim, cancel: cancel}, sim, pins, Options{})

	err := dev.Enable(ctx)
	c.Assert(err, qt.ErrorIs, context.Canceled)
	c.Assert(dev.Enabled(), qt.IsFalse)
	c.Assert(sim.Active(), qt.IsFalse)
	cmds := sim.HostCommands()
	c.Assert(cmds[len(cmds)-1], qt.Equals, byte(hostPwrDown))
}

func TestEnable_BusFailure(t *testing.T) {
	dev, sim := newTestDevice(t)
	sim.FailAfter(1)
	qt.New(t).Assert(dev.Enable(context.Background()), qt.IsNotNil)
	qt.New(t).Assert(dev.Enabled(), qt.IsFalse)
}

func TestDisable_PowersDown(t *testing.T) {
	c := qt.New(t)
	dev, sim := enabledDevice(t)

	c.Assert(dev.Disable(), qt.IsNil)
	c.Assert(dev.Enabled(), qt.IsFalse)
	c.Assert(sim.Active(), qt.IsFalse)
	cmds := sim.HostCommands()
	c.Assert(cmds[len(cmds)-1], qt.Equals, byte(hostPwrDown))

	// Second call is a no-op
	c.Assert(dev.Disable(), qt.IsNil)
	c.Assert(sim.HostCommands(), qt.HasLen, len(cmds))
}

func TestDisable_ThenEnableAgain(t *testing.T) {
	dev, sim := enabledDevice(t)
	qt.New(t).Assert(dev.Disable(), qt.IsNil)
	qt.New(t).Assert(dev.Enable(context.Background()), qt.IsNil)
	qt.New(t).Assert(sim.Active(), qt.IsTrue)
}

func TestCalibrate_Success(t *testing.T) {
	c := qt.New(t)
	dev, _ := enabledDevice(t)

	c.Assert(dev.Calibrate(context.Background()), qt.IsNil)
	xf := dev.Transform()
	c.Assert(xf[0], qt.Equals, uint32(0x10000))
	c.Assert(xf[4], qt.Equals, uint32(0x10000))
}

func TestCalibrate_Failure(t *testing.T) {
	dev, sim := enabledDevice(t)
	sim.FailCalibration(true)
	qt.New(t).Assert(dev.Calibrate(context.Background()), qt.ErrorIs, ErrCalibration)
}

func TestCalibrate_NotEnabled(t *testing.T) {
	dev, _ := newTestDevice(t)
	qt.New(t).Assert(dev.Calibrate(context.Background()), qt.ErrorIs, ErrDisabled)
}

func TestDrawDisplay_ShowsTexts(t *testing.T) {
	c := qt.New(t)
	dev, sim := enabledDevice(t)

	c.Assert(dev.Clear(0, 0, 0), qt.IsNil)
	c.Assert(dev.Draw(Text{X: 240, Y: 136, Font: 25, Options: OptCenter, S: "Touch event detected at:"}), qt.IsNil)
	c.Assert(dev.Draw(Text{X: 240, Y: 180, Font: 25, Options: OptCenter, S: "x: 12, y: 34"}), qt.IsNil)
	c.Assert(dev.Display(), qt.IsNil)

	c.Assert(sim.Frames(), qt.Equals, 1)
	c.Assert(sim.Shown(), qt.DeepEquals, []Text{
		{X: 240, Y: 136, Font: 25, Options: OptCenter, S: "Touch event detected at:"},
		{X: 240, Y: 180, Font: 25, Options: OptCenter, S: "x: 12, y: 34"},
	})
	c.Assert(sim.Reg(RegCmdRead)&0xFFFF, qt.Equals, sim.Reg(RegCmdWrite)&0xFFFF)
}

func TestDraw_NotEnabled(t *testing.T) {
	dev, _ := newTestDevice(t)
	qt.New(t).Assert(dev.Clear(0, 0, 0), qt.ErrorIs, ErrDisabled)
	qt.New(t).Assert(dev.Draw(Text{S: "x"}), qt.ErrorIs, ErrDisabled)
	qt.New(t).Assert(dev.Display(), qt.ErrorIs, ErrDisabled)
}

func TestDisplay_FIFOWraps(t *testing.T) {
	c := qt.New(t)
	dev, sim := enabledDevice(t)

	long := strings.Repeat("w", 200)
	for i := 0; i < 60; i++ {
		c.Assert(dev.Clear(0, 0, 0), qt.IsNil)
		c.Assert(dev.Draw(Color{R: 255, G: 255, B: 255}), qt.IsNil)
		c.Assert(dev.Draw(Text{X: 1, Y: 2, Font: 16, S: long}), qt.IsNil)
		c.Assert(dev.Display(), qt.IsNil)
	}
	c.Assert(sim.Frames(), qt.Equals, 60)
	c.Assert(sim.Shown(), qt.DeepEquals, []Text{{X: 1, Y: 2, Font: 16, S: long}})
}

func TestAppendString_Padding(t *testing.T) {
	cases := []struct {
		s     string
		words int
	}{
		{"", 1},
		{"abc", 1},
		{"abcd", 2},
		{"abcdefg", 2},
		{"abcdefgh", 3},
	}
	for _, tc := range cases {
		got := appendString(nil, tc.s)
		if len(got) != tc.words {
			t.Errorf("appendString(%q) = %d words, want %d", tc.s, len(got), tc.words)
		}
	}
}

func TestWatch_DeliversTouches(t *testing.T) {
	c := qt.New(t)
	dev, sim := enabledDevice(t)
	c.Assert(dev.Calibrate(context.Background()), qt.IsNil)

	got := make(chan [2]uint16, 4)
	dev.AttachTouchCallback(func(x, y uint16) { got <- [2]uint16{x, y} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = dev.Watch(ctx)
	}()

	sim.Touch(120, 45)
	select {
	case xy := <-got:
		c.Assert(xy, qt.Equals, [2]uint16{120, 45})
	case <-time.After(time.Second):
		c.Fatal("timeout waiting for touch callback")
	}

	cancel()
	wg.Wait()
}

func TestWatch_IgnoresRelease(t *testing.T) {
	dev, sim := enabledDevice(t)
	calls := 0
	var mu sync.Mutex
	dev.AttachTouchCallback(func(x, y uint16) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	// Interrupt raised with the "no touch" coordinates
	sim.Touch(noTouch, noTouch)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	qt.New(t).Assert(dev.Watch(ctx), qt.IsNil)

	mu.Lock()
	defer mu.Unlock()
	qt.New(t).Assert(calls, qt.Equals, 0)
}

func TestWatch_StopsOnDisable(t *testing.T) {
	dev, _ := enabledDevice(t)
	done := make(chan error, 1)
	go func() { done <- dev.Watch(context.Background()) }()

	qt.New(t).Assert(dev.Disable(), qt.IsNil)
	select {
	case err := <-done:
		qt.New(t).Assert(err, qt.IsNil)
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after Disable")
	}
}

func TestPollTouch_InterruptLineIdle(t *testing.T) {
	dev, sim := enabledDevice(t)
	// No pending interrupt: INT_N is high and the flags are not read
	_, _, ok, err := dev.pollTouch()
	qt.New(t).Assert(err, qt.IsNil)
	qt.New(t).Assert(ok, qt.IsFalse)

	sim.Touch(1, 2)
	x, y, ok, err := dev.pollTouch()
	qt.New(t).Assert(err, qt.IsNil)
	qt.New(t).Assert(ok, qt.IsTrue)
	qt.New(t).Assert([2]uint16{x, y}, qt.Equals, [2]uint16{1, 2})

	// Flags cleared by the read
	_, _, ok, _ = dev.pollTouch()
	qt.New(t).Assert(ok, qt.IsFalse)
}

func TestTextEncoding(t *testing.T) {
	list := Text{X: -1, Y: 272, Font: 31, Options: OptCenter, S: "hi"}.appendCommands(nil)
	qt.New(t).Assert(list, qt.DeepEquals, []uint32{
		cmdText,
		0xFFFF | 272<<16,
		31 | OptCenter<<16,
		uint32('h') | uint32('i')<<8,
	})
}
