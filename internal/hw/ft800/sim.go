package ft800

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/cjeanneret/evetouch/internal/hw/gpio"
)

// Sim is an in-process FT800 good enough to run the driver without
// hardware. It answers SPI traffic like the chip (register file, command
// FIFO, calibration, touch reports) and plays the board's control lines:
// writing PD_N low powers it down, reading INT_N reflects pending
// interrupts. Sim satisfies both spi.Bus and gpio.Driver.
type Sim struct {
	mu        sync.Mutex
	mem       map[uint32]byte
	pins      Pins
	active    bool
	closed    bool
	calFails  bool
	frames    int
	pending   []Text
	shown     []Text
	hostCmds  []byte
	txCount   int
	failAfter int // fail every Tx once txCount reaches it; 0 = never
}

// ErrSimClosed is returned by a closed simulator.
var ErrSimClosed = errors.New("ft800 sim: closed")

var errSimInjected = errors.New("ft800 sim: injected bus failure")

// NewSim returns a powered-down simulator wired to the given pins.
func NewSim(pins Pins) *Sim {
	return &Sim{
		mem:  make(map[uint32]byte),
		pins: pins,
	}
}

// FailCalibration makes the next calibrations report failure.
func (s *Sim) FailCalibration(fail bool) {
	s.mu.Lock()
	s.calFails = fail
	s.mu.Unlock()
}

// FailAfter makes every bus transfer fail once n transfers have been made.
func (s *Sim) FailAfter(n int) {
	s.mu.Lock()
	s.failAfter = n
	s.mu.Unlock()
}

// Touch reports a press at screen coordinates x, y.
func (s *Sim) Touch(x, y uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put32(RegTouchScreenXY, uint32(x)<<16|uint32(y))
	s.mem[RegIntFlags] |= IntTouch
}

// Release reports that nothing touches the panel any more.
func (s *Sim) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put32(RegTouchScreenXY, noTouch<<16|noTouch)
}

// Frames returns how many CMD_SWAP the coprocessor executed.
func (s *Sim) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Shown returns the texts of the frame on screen.
func (s *Sim) Shown() []Text {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Text(nil), s.shown...)
}

// Active reports whether the chip is awake.
func (s *Sim) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// HostCommands returns the host commands received so far.
func (s *Sim) HostCommands() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.hostCmds...)
}

// Reg returns the 32-bit little-endian word at addr.
func (s *Sim) Reg(addr uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get32(addr)
}

// Tx implements spi.Bus.
func (s *Sim) Tx(w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSimClosed
	}
	s.txCount++
	if s.failAfter > 0 && s.txCount >= s.failAfter {
		return errSimInjected
	}

	switch {
	case len(w) == 3:
		s.host(w[0])
	case len(w) < 3:
		return nil
	case w[0]&0xC0 == 0x80:
		addr := uint32(w[0]&0x3F)<<16 | uint32(w[1])<<8 | uint32(w[2])
		s.write(addr, w[3:])
	case w[0]&0xC0 == 0x00 && len(w) > 4:
		addr := uint32(w[0]&0x3F)<<16 | uint32(w[1])<<8 | uint32(w[2])
		s.read(addr, r, len(w)-4)
	}
	return nil
}

func (s *Sim) host(cmd byte) {
	s.hostCmds = append(s.hostCmds, cmd)
	switch cmd {
	case hostActive:
		s.active = true
		s.put32(RegTouchScreenXY, noTouch<<16|noTouch)
	case hostPwrDown, hostSleep, hostStandby:
		s.active = false
	case hostCoreRst:
		s.put16(RegCmdRead, 0)
		s.put16(RegCmdWrite, 0)
	}
}

func (s *Sim) read(addr uint32, r []byte, n int) {
	if r == nil {
		return
	}
	for i := 0; i < n; i++ {
		a := addr + uint32(i)
		v := s.mem[a]
		if a == RegID {
			v = 0
			if s.active {
				v = ChipID
			}
		}
		r[4+i] = v
	}
	// REG_INT_FLAGS clears on read
	if addr <= RegIntFlags && RegIntFlags < addr+uint32(n) {
		s.mem[RegIntFlags] = 0
	}
}

func (s *Sim) write(addr uint32, data []byte) {
	if !s.active {
		return
	}
	for i, b := range data {
		s.mem[addr+uint32(i)] = b
	}
	if addr <= RegCmdWrite && RegCmdWrite < addr+uint32(len(data)) {
		s.runCoprocessor()
	}
}

// runCoprocessor executes the complete commands between REG_CMD_READ and
// REG_CMD_WRITE. A command whose words are not all written yet waits.
func (s *Sim) runCoprocessor() {
	rd := s.get16(RegCmdRead) & cmdFIFOMask
	wr := s.get16(RegCmdWrite) & cmdFIFOMask
	for rd != wr {
		avail := int((wr - rd) & cmdFIFOMask)
		n := s.commandLen(rd, avail)
		if n == 0 || n > avail {
			break
		}
		s.execute(rd)
		rd = (rd + uint16(n)) & cmdFIFOMask
	}
	s.put16(RegCmdRead, rd)
}

// commandLen returns the size in bytes of the command at rd, or 0 when its
// string terminator is not within the avail bytes written so far.
func (s *Sim) commandLen(rd uint16, avail int) int {
	switch s.fifo32(rd) {
	case cmdCalibrate:
		return 8
	case cmdText:
		for off := 12; off < avail; off += 4 {
			var word [4]byte
			binary.LittleEndian.PutUint32(word[:], s.fifo32((rd+uint16(off))&cmdFIFOMask))
			for _, c := range word {
				if c == 0 {
					return off + 4
				}
			}
		}
		return 0
	default:
		// Display list instructions and argument-less commands
		return 4
	}
}

func (s *Sim) execute(rd uint16) {
	at := func(off int) uint32 { return s.fifo32((rd + uint16(off)) & cmdFIFOMask) }

	switch at(0) {
	case cmdDLStart:
		s.pending = s.pending[:0]
	case cmdSwap:
		s.frames++
		s.shown = append(s.shown[:0], s.pending...)
	case cmdText:
		xy, fo := at(4), at(8)
		var str []byte
	scan:
		for off := 12; ; off += 4 {
			var word [4]byte
			binary.LittleEndian.PutUint32(word[:], at(off))
			for _, c := range word {
				if c == 0 {
					break scan
				}
				str = append(str, c)
			}
		}
		s.pending = append(s.pending, Text{
			X:       int16(uint16(xy)),
			Y:       int16(uint16(xy >> 16)),
			Font:    int16(uint16(fo)),
			Options: uint16(fo >> 16),
			S:       string(str),
		})
	case cmdCalibrate:
		result := uint32(1)
		if s.calFails {
			result = 0
		} else {
			// Identity transform in 16.16 fixed point
			s.put32(RegTouchTransformA, 0x10000)
			s.put32(RegTouchTransformA+16, 0x10000)
		}
		s.put32(RAMCmd+uint32((rd+4)&cmdFIFOMask), result)
	}
}

func (s *Sim) fifo32(off uint16) uint32 {
	return s.get32(RAMCmd + uint32(off))
}

func (s *Sim) get16(addr uint32) uint16 {
	return uint16(s.mem[addr]) | uint16(s.mem[addr+1])<<8
}

func (s *Sim) get32(addr uint32) uint32 {
	return uint32(s.get16(addr)) | uint32(s.get16(addr+2))<<16
}

func (s *Sim) put16(addr uint32, v uint16) {
	s.mem[addr] = byte(v)
	s.mem[addr+1] = byte(v >> 8)
}

func (s *Sim) put32(addr uint32, v uint32) {
	s.put16(addr, uint16(v))
	s.put16(addr+2, uint16(v>>16))
}

// SetupPin implements gpio.Driver.
func (s *Sim) SetupPin(pin int, mode gpio.PinMode) error { return nil }

// WritePin implements gpio.Driver. PD_N low powers the chip down.
func (s *Sim) WritePin(pin int, level gpio.Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pin == s.pins.PowerDown && level == gpio.Low {
		s.active = false
	}
	return nil
}

// ReadPin implements gpio.Driver. INT_N is low while an enabled
// interrupt is pending.
func (s *Sim) ReadPin(pin int) (gpio.Level, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pin == s.pins.Interrupt && s.mem[RegIntEn] != 0 && s.mem[RegIntFlags]&s.mem[RegIntMask] != 0 {
		return gpio.Low, nil
	}
	return gpio.High, nil
}

// Close implements spi.Bus and gpio.Driver.
func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
