package ft800

// Memory map.
const (
	RAMDL  = 0x100000
	RAMCmd = 0x108000

	cmdFIFOSize = 4096
	cmdFIFOMask = cmdFIFOSize - 1
)

// Registers.
const (
	RegID              = 0x102400
	RegHCycle          = 0x102428
	RegHOffset         = 0x10242C
	RegHSize           = 0x102430
	RegHSync0          = 0x102434
	RegHSync1          = 0x102438
	RegVCycle          = 0x10243C
	RegVOffset         = 0x102440
	RegVSize           = 0x102444
	RegVSync0          = 0x102448
	RegVSync1          = 0x10244C
	RegDLSwap          = 0x102450
	RegSwizzle         = 0x102460
	RegCSpread         = 0x102464
	RegPCLKPol         = 0x102468
	RegPCLK            = 0x10246C
	RegGPIODir         = 0x10248C
	RegGPIO            = 0x102490
	RegIntFlags        = 0x102498
	RegIntEn           = 0x10249C
	RegIntMask         = 0x1024A0
	RegPWMDuty         = 0x1024C4
	RegCmdRead         = 0x1024E4
	RegCmdWrite        = 0x1024E8
	RegTouchRZThresh   = 0x102504
	RegTouchScreenXY   = 0x102510
	RegTouchTransformA = 0x10251C // A..F are consecutive words
)

// ChipID is the value of REG_ID once the FT800 is awake.
const ChipID = 0x7C

// Host commands, sent as {cmd, 0, 0}.
const (
	hostActive  = 0x00
	hostStandby = 0x41
	hostSleep   = 0x42
	hostClkExt  = 0x44
	hostPwrDown = 0x50
	hostClk48M  = 0x62
	hostCoreRst = 0x68
)

// IntTouch is the touch-detected bit of REG_INT_FLAGS and REG_INT_MASK.
const IntTouch = 0x02

// dlSwapFrame swaps the display list after the current frame.
const dlSwapFrame = 2

// gpioDisplay is the bit of REG_GPIO wired to the panel's DISP line.
const gpioDisplay = 0x80

// noTouch is reported in both halves of REG_TOUCH_SCREEN_XY when nothing
// touches the panel.
const noTouch = 0x8000

// Touch threshold used by the EVE Click resistive panel.
const touchRZThreshold = 1200

// Coprocessor commands.
const (
	cmdDLStart   = 0xFFFFFF00
	cmdSwap      = 0xFFFFFF01
	cmdText      = 0xFFFFFF0C
	cmdCalibrate = 0xFFFFFF15
)

// Options for widgets such as Text.
const (
	OptCenterX = 512
	OptCenterY = 1024
	OptCenter  = 1536
)

// Display list instructions.

func dlDisplay() uint32 { return 0x00000000 }

func dlClearColorRGB(r, g, b uint8) uint32 {
	return 0x02<<24 | uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

func dlColorRGB(r, g, b uint8) uint32 {
	return 0x04<<24 | uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

func dlClear(color, stencil, tag bool) uint32 {
	v := uint32(0x26 << 24)
	if color {
		v |= 4
	}
	if stencil {
		v |= 2
	}
	if tag {
		v |= 1
	}
	return v
}
