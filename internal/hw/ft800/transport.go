package ft800

import (
	"encoding/binary"
	"fmt"
)

// The helpers below assume d.mu is held.

func (d *Device) hostCommand(cmd byte) error {
	if err := d.bus.Tx([]byte{cmd, 0, 0}, nil); err != nil {
		return fmt.Errorf("host command 0x%02x: %w", cmd, err)
	}
	return nil
}

// writeMem writes data at addr: 22-bit address, big-endian, bit 23 set.
func (d *Device) writeMem(addr uint32, data []byte) error {
	w := make([]byte, 3+len(data))
	w[0] = byte(addr>>16)&0x3F | 0x80
	w[1] = byte(addr >> 8)
	w[2] = byte(addr)
	copy(w[3:], data)
	if err := d.bus.Tx(w, nil); err != nil {
		return fmt.Errorf("write 0x%06x: %w", addr, err)
	}
	return nil
}

// readMem reads n bytes at addr. A dummy byte follows the address.
func (d *Device) readMem(addr uint32, n int) ([]byte, error) {
	w := make([]byte, 4+n)
	w[0] = byte(addr>>16) & 0x3F
	w[1] = byte(addr >> 8)
	w[2] = byte(addr)
	r := make([]byte, len(w))
	if err := d.bus.Tx(w, r); err != nil {
		return nil, fmt.Errorf("read 0x%06x: %w", addr, err)
	}
	return r[4:], nil
}

func (d *Device) wr8(addr uint32, v uint8) error {
	return d.writeMem(addr, []byte{v})
}

func (d *Device) wr16(addr uint32, v uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return d.writeMem(addr, b[:])
}

func (d *Device) wr32(addr uint32, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return d.writeMem(addr, b[:])
}

func (d *Device) rd8(addr uint32) (uint8, error) {
	b, err := d.readMem(addr, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Device) rd16(addr uint32) (uint16, error) {
	b, err := d.readMem(addr, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *Device) rd32(addr uint32) (uint32, error) {
	b, err := d.readMem(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// regWriter batches register writes and keeps the first error.
type regWriter struct {
	d   *Device
	err error
}

func (w *regWriter) wr8(addr uint32, v uint8) {
	if w.err == nil {
		w.err = w.d.wr8(addr, v)
	}
}

func (w *regWriter) wr16(addr uint32, v uint16) {
	if w.err == nil {
		w.err = w.d.wr16(addr, v)
	}
}

func (w *regWriter) wr32(addr uint32, v uint32) {
	if w.err == nil {
		w.err = w.d.wr32(addr, v)
	}
}
