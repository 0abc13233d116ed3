package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/cjeanneret/evetouch/internal/config"
	"github.com/cjeanneret/evetouch/internal/debug"
	"github.com/cjeanneret/evetouch/internal/hw/ft800"
	"github.com/cjeanneret/evetouch/internal/hw/gpio"
	"github.com/cjeanneret/evetouch/internal/hw/spi"
	"github.com/cjeanneret/evetouch/internal/logic/demo"
	"github.com/cjeanneret/evetouch/internal/logic/touch"
	"github.com/cjeanneret/evetouch/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	backend := flag.String("backend", "", "override bus.backend (rpio, periph, mock)")
	debugLevel := flag.Int("debug", -1, "override debug level (0-4)")
	flag.Parse()

	ctx, stop := newSignalContext()
	defer stop()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if err := applyOverrides(cfg, *backend, *debugLevel); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Backend", cfg.Bus.Backend)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	if err := run(ctx, cfg, webPort.port(), os.Stdout); err != nil {
		log.Fatalf("evetouch: %v", err)
	}
}

// newSignalContext returns a context cancelled by the first SIGINT or
// SIGTERM. Later signals are absorbed until stop is called.
func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// run opens the hardware, runs the touch demo until ctx is done and
// releases the bus on every path.
func run(ctx context.Context, cfg *config.Config, port int, console io.Writer) error {
	hw, err := openHardware(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := hw.Close(); err != nil {
			log.Printf("closing hardware failed: %v", err)
		}
	}()

	pins := ft800.Pins{PowerDown: cfg.Pins.PowerDown, Interrupt: cfg.Pins.Interrupt}
	dev := ft800.New(hw.bus, hw.gpio, pins, ft800.Options{
		Width:            cfg.Display.Width,
		Height:           cfg.Display.Height,
		Backlight:        cfg.Display.Backlight,
		PollInterval:     cfg.PollInterval(),
		EnableTimeout:    cfg.EnableTimeout(),
		CalibrateTimeout: cfg.CalibrateTimeout(),
	})
	debug.PrintStruct("Pins", pins)

	width, height := dev.Size()
	opts := demo.Options{
		Width:      width,
		Height:     height,
		IdlePrompt: cfg.Display.IdlePrompt,
		IdleFont:   int16(cfg.Display.IdleFont),
		EventFont:  int16(cfg.Display.EventFont),
		Console:    console,
	}

	if port <= 0 {
		return demo.Run(ctx, dev, opts)
	}

	broadcaster := web.NewStatusBroadcaster()
	debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
	opts.OnTouch = func(ev touch.Event) {
		broadcaster.BroadcastTouch(ev.X, ev.Y, demo.Coordinates(ev))
	}

	var inject web.InjectTouchFunc
	if hw.sim != nil {
		inject = func(x, y uint16) error {
			hw.sim.Touch(x, y)
			return nil
		}
	}
	srv := web.NewServer(fmt.Sprintf(":%d", port), broadcaster, inject, web.DisplayInfo{
		Backend:    cfg.Bus.Backend,
		Width:      width,
		Height:     height,
		IdlePrompt: cfg.Display.IdlePrompt,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return demo.Run(gctx, dev, opts) })
	g.Go(func() error {
		if err := srv.Run(gctx); err != nil {
			return fmt.Errorf("web server: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// hardware bundles the bus and control lines of one EVE Click.
type hardware struct {
	bus  spi.Bus
	gpio gpio.Driver
	sim  *ft800.Sim // set for the mock backend
}

// openHardware selects the bus and GPIO implementations from cfg.
func openHardware(cfg *config.Config) (*hardware, error) {
	if cfg.IsMock() {
		debug.Info("Using simulated FT800 (mock backend)")
		sim := ft800.NewSim(ft800.Pins{PowerDown: cfg.Pins.PowerDown, Interrupt: cfg.Pins.Interrupt})
		return &hardware{bus: sim, gpio: sim, sim: sim}, nil
	}

	debug.Step(1, "Initializing GPIO driver")
	g, err := gpio.NewDriver(cfg.Bus.Backend)
	if err != nil {
		return nil, fmt.Errorf("init GPIO failed: %w", err)
	}

	debug.Step(2, "Initializing SPI bus")
	bus, err := spi.Open(spi.Options{
		Backend:    cfg.Bus.Backend,
		Device:     cfg.Bus.Device,
		ChipSelect: cfg.Bus.ChipSelect,
		SpeedHz:    cfg.Bus.SpeedHz,
		Mode:       cfg.Bus.Mode,
	})
	if err != nil {
		_ = g.Close()
		return nil, fmt.Errorf("init SPI failed: %w", err)
	}
	return &hardware{bus: bus, gpio: g}, nil
}

// Close releases the bus, then the GPIO driver.
func (h *hardware) Close() error {
	busErr := h.bus.Close()
	gpioErr := h.gpio.Close()
	if busErr != nil {
		return busErr
	}
	return gpioErr
}

// applyOverrides applies CLI flags to cfg. An empty backend and a negative
// debug level mean "use config value".
func applyOverrides(cfg *config.Config, backend string, debugLevel int) error {
	if backend != "" {
		switch backend {
		case config.BackendRPi, config.BackendPeriph, config.BackendMock:
			cfg.Bus.Backend = backend
		default:
			return fmt.Errorf("backend must be one of rpio, periph, mock, got %q", backend)
		}
	}
	if debugLevel >= 0 {
		if debugLevel > debug.LevelTrace {
			return fmt.Errorf("debug level must be between 0 and %d, got %d", debug.LevelTrace, debugLevel)
		}
		cfg.Defaults.DebugLevel = debugLevel
	}
	return nil
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
