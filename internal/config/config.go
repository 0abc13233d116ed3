package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported hardware backends.
const (
	BackendRPi    = "rpio"   // go-rpio, /dev/gpiomem + BCM2835 SPI0
	BackendPeriph = "periph" // periph.io, /dev/spidev* + sysfs/gpiomem
	BackendMock   = "mock"   // in-process FT800 simulator
)

// BusConfig describes the SPI bus the EVE Click is plugged into.
type BusConfig struct {
	Backend    string `yaml:"backend"`     // rpio, periph or mock
	Device     string `yaml:"device"`      // periph port name, e.g. "/dev/spidev0.0" ("" = first available)
	ChipSelect int    `yaml:"chip_select"` // rpio chip select line (0 or 1)
	SpeedHz    int    `yaml:"speed_hz"`    // SPI clock
	Mode       int    `yaml:"mode"`        // SPI mode 0-3
}

// PinsConfig holds the BCM pin numbers of the board's control lines.
type PinsConfig struct {
	PowerDown int `yaml:"power_down"` // PD_N (mikroBUS RST). 0 = not wired.
	Interrupt int `yaml:"interrupt"`  // INT_N (mikroBUS INT), active LOW. 0 = poll registers only.
}

// DisplayConfig describes the attached panel and the demo texts.
type DisplayConfig struct {
	Width      int    `yaml:"width"`       // pixels (WQVGA: 480)
	Height     int    `yaml:"height"`      // pixels (WQVGA: 272)
	IdlePrompt string `yaml:"idle_prompt"` // text shown before the first touch
	IdleFont   int    `yaml:"idle_font"`   // ROM font handle (16-31)
	EventFont  int    `yaml:"event_font"`  // ROM font handle for touch reports
	Backlight  int    `yaml:"backlight"`   // PWM duty 0-128
}

// DefaultsConfig contains generic parameters (timings, debug).
type DefaultsConfig struct {
	PollIntervalMs     int `yaml:"poll_interval_ms"`     // touch interrupt poll period
	EnableTimeoutMs    int `yaml:"enable_timeout_ms"`    // max wait for the chip ID after wake-up
	CalibrateTimeoutMs int `yaml:"calibrate_timeout_ms"` // max wait for the user to tap the 3 dots
	DebugLevel         int `yaml:"debug_level"`          // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
}

// Config aggregates all application configuration.
type Config struct {
	Bus      BusConfig      `yaml:"bus"`
	Pins     PinsConfig     `yaml:"pins"`
	Display  DisplayConfig  `yaml:"display"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath checks that path points to a .yaml file inside a
// configs/ directory and does not escape it.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config path must have .yaml extension: %s", path)
	}
	for _, elem := range strings.Split(filepath.ToSlash(path), "/") {
		if elem == ".." {
			return fmt.Errorf("config path must not contain '..': %s", path)
		}
	}
	if filepath.Base(filepath.Dir(filepath.Clean(path))) != "configs" {
		return fmt.Errorf("config path must be inside configs/: %s", path)
	}
	return nil
}

// MaxConfigFileBytes bounds the size of a config file.
const MaxConfigFileBytes = 64 * 1024

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxConfigFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	switch c.Bus.Backend {
	case "":
		return fmt.Errorf("bus.backend is required")
	case BackendRPi, BackendPeriph, BackendMock:
	default:
		return fmt.Errorf("bus.backend must be one of rpio, periph, mock, got %q", c.Bus.Backend)
	}
	if c.Bus.Mode < 0 || c.Bus.Mode > 3 {
		return fmt.Errorf("bus.mode must be between 0 and 3, got %d", c.Bus.Mode)
	}
	if c.Bus.ChipSelect < 0 || c.Bus.ChipSelect > 1 {
		return fmt.Errorf("bus.chip_select must be 0 or 1, got %d", c.Bus.ChipSelect)
	}
	if c.Bus.SpeedHz < 0 {
		return fmt.Errorf("bus.speed_hz must be > 0, got %d", c.Bus.SpeedHz)
	}
	if c.Bus.SpeedHz == 0 {
		c.Bus.SpeedHz = 10000000 // 10 MHz, below the FT800 30 MHz limit
	}
	if c.Pins.PowerDown < 0 || c.Pins.Interrupt < 0 {
		return fmt.Errorf("pins must be >= 0")
	}

	if c.Display.Width <= 0 {
		c.Display.Width = 480 // WQVGA
	}
	if c.Display.Height <= 0 {
		c.Display.Height = 272
	}
	if c.Display.Width > 512 || c.Display.Height > 512 {
		return fmt.Errorf("display size %dx%d exceeds FT800 limit 512x512", c.Display.Width, c.Display.Height)
	}
	if c.Display.IdlePrompt == "" {
		c.Display.IdlePrompt = "Tap on the screen"
	}
	if c.Display.IdleFont == 0 {
		c.Display.IdleFont = 31
	}
	if c.Display.EventFont == 0 {
		c.Display.EventFont = 25
	}
	for _, f := range []int{c.Display.IdleFont, c.Display.EventFont} {
		if f < 16 || f > 31 {
			return fmt.Errorf("display fonts must be ROM fonts 16-31, got %d", f)
		}
	}
	if c.Display.Backlight < 0 || c.Display.Backlight > 128 {
		return fmt.Errorf("display.backlight must be between 0 and 128, got %d", c.Display.Backlight)
	}
	if c.Display.Backlight == 0 {
		c.Display.Backlight = 128
	}

	if c.Defaults.PollIntervalMs <= 0 {
		c.Defaults.PollIntervalMs = 10
	}
	if c.Defaults.EnableTimeoutMs <= 0 {
		c.Defaults.EnableTimeoutMs = 1000
	}
	if c.Defaults.CalibrateTimeoutMs <= 0 {
		c.Defaults.CalibrateTimeoutMs = 60000 // a human has to tap three dots
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// PollInterval returns the touch interrupt poll period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Defaults.PollIntervalMs) * time.Millisecond
}

// EnableTimeout returns how long to wait for the chip to answer after wake-up.
func (c *Config) EnableTimeout() time.Duration {
	return time.Duration(c.Defaults.EnableTimeoutMs) * time.Millisecond
}

// CalibrateTimeout returns how long the calibration screen waits for taps.
func (c *Config) CalibrateTimeout() time.Duration {
	return time.Duration(c.Defaults.CalibrateTimeoutMs) * time.Millisecond
}

// IsMock reports whether the simulator backend is selected.
func (c *Config) IsMock() bool {
	return c.Bus.Backend == BackendMock
}
