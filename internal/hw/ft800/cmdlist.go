package ft800

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/cjeanneret/evetouch/internal/debug"
)

// displayTimeout bounds how long Display waits for the coprocessor to
// render a frame.
const displayTimeout = time.Second

// Primitive is something that can be drawn with Draw.
type Primitive interface {
	appendCommands(list []uint32) []uint32
}

// Text draws a string with a ROM font (16-31).
type Text struct {
	X, Y    int16
	Font    int16
	Options uint16 // OptCenter, OptCenterX, ...
	S       string
}

func (t Text) appendCommands(list []uint32) []uint32 {
	list = append(list,
		cmdText,
		uint32(uint16(t.X))|uint32(uint16(t.Y))<<16,
		uint32(uint16(t.Font))|uint32(t.Options)<<16,
	)
	return appendString(list, t.S)
}

// Color sets the color of the primitives drawn after it.
type Color struct {
	R, G, B uint8
}

func (c Color) appendCommands(list []uint32) []uint32 {
	return append(list, dlColorRGB(c.R, c.G, c.B))
}

// appendString appends s NUL-terminated and padded to a word boundary.
func appendString(list []uint32, s string) []uint32 {
	b := make([]byte, (len(s)+4)&^3)
	copy(b, s)
	for i := 0; i < len(b); i += 4 {
		list = append(list, binary.LittleEndian.Uint32(b[i:]))
	}
	return list
}

// Clear starts a new frame filled with the given color.
func (d *Device) Clear(r, g, b uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.enabled {
		return ErrDisabled
	}
	d.list = append(d.list[:0], cmdDLStart, dlClearColorRGB(r, g, b), dlClear(true, true, true))
	return nil
}

// Draw adds p to the current frame. It is shown by the next Display.
func (d *Device) Draw(p Primitive) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.enabled {
		return ErrDisabled
	}
	if len(d.list) == 0 {
		d.list = append(d.list, cmdDLStart)
	}
	d.list = p.appendCommands(d.list)
	return nil
}

// Display sends the current frame to the coprocessor and swaps it in.
func (d *Device) Display() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.enabled {
		return ErrDisabled
	}
	if len(d.list) == 0 {
		d.list = append(d.list, cmdDLStart)
	}
	d.list = append(d.list, dlDisplay(), cmdSwap)
	list := d.list
	d.list = d.list[:0]

	ctx, cancel := context.WithTimeout(context.Background(), displayTimeout)
	defer cancel()
	if err := d.sendCommands(ctx, list); err != nil {
		return err
	}
	return d.waitIdle(ctx)
}

// Calibrate runs the coprocessor's three-point touch calibration. The
// user has to tap the dots shown on screen.
func (d *Device) Calibrate(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.enabled {
		return ErrDisabled
	}
	debug.Section("Touch calibration")

	ctx, cancel := context.WithTimeout(ctx, d.opts.CalibrateTimeout)
	defer cancel()

	list := []uint32{cmdDLStart, dlClearColorRGB(0, 0, 0), dlClear(true, true, true)}
	list = Text{
		X:       int16(d.opts.Width / 2),
		Y:       int16(d.opts.Height / 2),
		Font:    27,
		Options: OptCenter,
		S:       "Please tap on the dots",
	}.appendCommands(list)
	list = append(list, cmdCalibrate, 0)

	// The coprocessor overwrites the trailing word with the result.
	resultOffset := (uint32(d.cmdWrite) + uint32(len(list)-1)*4) & cmdFIFOMask
	if err := d.sendCommands(ctx, list); err != nil {
		return err
	}
	if err := d.waitIdle(ctx); err != nil {
		return fmt.Errorf("calibrate: %w", err)
	}

	result, err := d.rd32(RAMCmd + resultOffset)
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrCalibration
	}

	b, err := d.readMem(RegTouchTransformA, 24)
	if err != nil {
		return err
	}
	for i := range d.xform {
		d.xform[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	debug.Info("Touch calibration complete")
	debug.PrintStruct("Touch transform", d.xform)
	return nil
}

// Transform returns REG_TOUCH_TRANSFORM_A..F as set by the last Calibrate.
func (d *Device) Transform() [6]uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.xform
}

// sendCommands copies words into the command FIFO, waiting for room when
// it is full, and advances REG_CMD_WRITE.
func (d *Device) sendCommands(ctx context.Context, words []uint32) error {
	for len(words) > 0 {
		free, err := d.fifoFree()
		if err != nil {
			return err
		}
		if free == 0 {
			if err := sleep(ctx, time.Millisecond); err != nil {
				return err
			}
			continue
		}

		n := min(len(words), free/4)
		// Do not cross the end of the ring in one write
		if room := (cmdFIFOSize - int(d.cmdWrite)) / 4; n > room {
			n = room
		}
		b := make([]byte, n*4)
		for i, w := range words[:n] {
			binary.LittleEndian.PutUint32(b[i*4:], w)
		}
		if err := d.writeMem(RAMCmd+uint32(d.cmdWrite), b); err != nil {
			return err
		}
		d.cmdWrite = uint16((int(d.cmdWrite) + n*4) & cmdFIFOMask)
		if err := d.wr16(RegCmdWrite, d.cmdWrite); err != nil {
			return err
		}
		words = words[n:]
	}
	return nil
}

// fifoFree returns the free space of the command FIFO in bytes.
func (d *Device) fifoFree() (int, error) {
	rd, err := d.rd16(RegCmdRead)
	if err != nil {
		return 0, err
	}
	if rd == 0xFFF {
		return 0, ErrCoprocessorFault
	}
	used := (int(d.cmdWrite) - int(rd)) & cmdFIFOMask
	return cmdFIFOSize - 4 - used, nil
}

// waitIdle waits until the coprocessor has consumed every command.
func (d *Device) waitIdle(ctx context.Context) error {
	for {
		rd, err := d.rd16(RegCmdRead)
		if err != nil {
			return err
		}
		if rd == 0xFFF {
			return ErrCoprocessorFault
		}
		if rd == d.cmdWrite {
			return nil
		}
		if err := sleep(ctx, time.Millisecond); err != nil {
			return err
		}
	}
}
