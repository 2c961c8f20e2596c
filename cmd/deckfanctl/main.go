package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/deckfanctl/internal/config"
	"codeberg.org/mutker/deckfanctl/internal/controller"
	"codeberg.org/mutker/deckfanctl/internal/ec"
	"codeberg.org/mutker/deckfanctl/internal/errors"
	"codeberg.org/mutker/deckfanctl/internal/fan"
	"codeberg.org/mutker/deckfanctl/internal/hardware"
	"codeberg.org/mutker/deckfanctl/internal/logger"
	"codeberg.org/mutker/deckfanctl/internal/metrics"
	"codeberg.org/mutker/deckfanctl/internal/pid"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
)

type app struct {
	cfg      *config.Config
	loader   *config.Loader
	ctrl     *controller.Controller
	provider hardware.Provider
	metrics  metrics.Collector
	modes    chan fan.Mode
	failures int
}

func main() {
	loader, err := config.NewLoader()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	cfg, err := loader.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Level(), logger.IsService())
	logger.Debug().Str("file", loader.ConfigFile()).Msg("Config loaded")

	if err := pid.Write(cfg.PIDFile); err != nil {
		fatal(err, "Failed to write PID file")
	}
	defer pid.Remove(cfg.PIDFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	a, err := newApp(cfg, loader)
	if err != nil {
		pid.Remove(cfg.PIDFile)
		fatal(err, "Failed to initialize")
	}

	if err := a.loop(ctx); err != nil {
		logErr(err, "Error in main loop")
	}
	a.cleanup()
}

func newApp(cfg *config.Config, loader *config.Loader) (*app, error) {
	errFactory := errors.New()

	embedded, err := ec.NewSysfs(afero.NewOsFs(), cfg.EC, logger.Get().With("ec"))
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}

	if info, err := embedded.Info(); err != nil {
		logger.Warn().Err(err).Msg("Failed to read board identity")
	} else {
		logger.Info().
			Str("firmware", info.FirmwareVersion).
			Str("board_id", info.BoardID).
			Str("pdcs", info.PDCS).
			Str("path", embedded.Path()).
			Msg("Embedded controller detected")
	}

	provider := buildProviders(cfg)

	registry, err := fan.NewRegistryFromConfig(cfg.Zones)
	if err != nil {
		provider.Close()
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}
	logger.Debug().Str("zones", registry.String()).Msg("Zones configured")

	collector, err := metrics.NewService(cfg.Metrics, logger.Get().With("metrics"))
	if err != nil {
		provider.Close()
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}

	ctrl, err := controller.New(controller.Params{
		Registry: registry,
		Provider: provider,
		EC:       embedded,
		Metrics:  collector,
		Feeds:    cfg.Feeds(),
		Monitor:  cfg.Monitor,
		Logger:   logger.Get().With("controller"),
	})
	if err != nil {
		provider.Close()
		collector.Close()
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}

	return &app{
		cfg:      cfg,
		loader:   loader,
		ctrl:     ctrl,
		provider: provider,
		metrics:  collector,
		modes:    make(chan fan.Mode, 1),
	}, nil
}

func buildProviders(cfg *config.Config) hardware.Providers {
	var providers hardware.Providers

	if cfg.Telemetry.Hwmon {
		providers = append(providers, hardware.NewHwmonProvider(logger.Get().With("hwmon")))
	}
	if cfg.Telemetry.NVML {
		p, err := hardware.NewNVMLProvider(logger.Get().With("nvml"))
		if err != nil {
			logger.Warn().Err(err).Msg("NVML unavailable, continuing without it")
		} else {
			providers = append(providers, p)
		}
	}

	return providers
}

func (a *app) loop(ctx context.Context) error {
	if err := a.ctrl.SetMode(a.cfg.FanMode()); err != nil {
		return errors.New().Wrap(errors.ErrMainLoop, err)
	}

	if err := a.loader.Watch(ctx, a.queueMode); err != nil {
		logger.Warn().Err(err).Msg("Failed to watch configuration file")
	}

	if a.cfg.Monitor {
		logger.Info().Msg("Monitor mode activated. Logging fan status...")
	}

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	a.pass(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case mode := <-a.modes:
			if err := a.ctrl.SetMode(mode); err != nil {
				logErr(err, "Failed to change mode")
			}
		case <-ticker.C:
			a.pass(ctx)
		}
	}
}

// queueMode keeps only the latest requested mode; it is applied by the
// loop between passes.
func (a *app) queueMode(cfg *config.Config) {
	mode := cfg.FanMode()
	select {
	case <-a.modes:
	default:
	}
	a.modes <- mode
}

func (a *app) pass(ctx context.Context) {
	res, err := a.ctrl.Update(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		a.failures++
		logErr(err, "Sampling pass failed")
		a.fallback()
		return
	}
	a.failures = 0

	if res.AnyInvalid {
		logger.Warn().
			Strs("zones", res.Invalid).
			Str("mode", res.Mode.String()).
			Msg("Zones without usable readings")
	}

	logResult(res, a.cfg)
}

// fallback hands the fan back to the embedded controller after too many
// consecutive failed passes.
func (a *app) fallback() {
	if a.cfg.MaxFailures == 0 || a.failures < a.cfg.MaxFailures {
		return
	}
	if a.ctrl.Mode() == fan.ModeDefault {
		return
	}

	logger.Warn().Int("failures", a.failures).Msg("Too many failed passes, returning to default mode")
	if err := a.ctrl.SetMode(fan.ModeDefault); err != nil {
		logErr(err, "Failed to return to default mode")
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func (a *app) cleanup() {
	if err := a.ctrl.Restore(); err != nil {
		logErr(err, "Failed to enable auto fan control")
	}
	if err := a.metrics.Close(); err != nil {
		logErr(err, "Failed to close metrics")
	}
	if err := a.provider.Close(); err != nil {
		logErr(err, "Failed to close telemetry providers")
	}
	logger.Info().Msg("Exiting...")
}

func logResult(res controller.Result, cfg *config.Config) {
	if cfg.Debug {
		for _, z := range res.Zones {
			ev := logger.Debug().
				Str("zone", z.Zone).
				Str("policy", z.Policy.String()).
				Bool("valid", z.Valid)
			if z.HasReading {
				ev = ev.Float64("reading", z.Reading)
			}
			if z.HasRPM {
				ev = ev.Int("rpm", int(z.RPM))
			}
			ev.Msg("")
		}
		logger.Debug().
			Str("mode", res.Mode.String()).
			Int("desired_rpm", int(res.Desired)).
			Int("target_rpm", int(res.Target)).
			Int("current_rpm", int(res.Current)).
			Int("nodes", res.Walk.Nodes).
			Int("refresh_failures", res.Walk.RefreshFailures).
			Dur("duration", res.Duration).
			Msg("")
	} else if cfg.Verbose || cfg.Monitor {
		logger.Info().
			Str("mode", res.Mode.String()).
			Int("desired_rpm", int(res.Desired)).
			Int("current_rpm", int(res.Current)).
			Msg("")
	}
}

func logErr(err error, msg string) {
	var coded errors.Error
	if errors.As(err, &coded) {
		logger.ErrorWithCode(coded).Msg(msg)
		return
	}
	logger.Error().Err(err).Msg(msg)
}

func fatal(err error, msg string) {
	var coded errors.Error
	if errors.As(err, &coded) {
		logger.FatalWithCode(coded).Msg(msg)
	}
	logger.Fatal().Err(err).Msg(msg)
}
