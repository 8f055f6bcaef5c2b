package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/thermalctl/internal/config"
	"codeberg.org/mutker/thermalctl/internal/control"
	"codeberg.org/mutker/thermalctl/internal/driver"
	"codeberg.org/mutker/thermalctl/internal/errors"
	"codeberg.org/mutker/thermalctl/internal/gateway"
	"codeberg.org/mutker/thermalctl/internal/logger"
	"codeberg.org/mutker/thermalctl/internal/metrics"
	"codeberg.org/mutker/thermalctl/internal/pid"
	"codeberg.org/mutker/thermalctl/internal/report"
	"codeberg.org/mutker/thermalctl/internal/thermal"
)

// Shutdown writes get their own deadline since the loop context is already
// cancelled by then.
const cleanupTimeout = 5 * time.Second

var (
	cfg       *config.Config
	drv       *driver.Driver
	collector metrics.Collector
)

func main() {
	os.Exit(run())
}

func run() int {
	var err error
	cfg, err = config.Load()
	if err != nil {
		if errors.Is(err, config.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	logger.Init(string(cfg.LogLevel), logger.IsService())
	logger.Debug().Msg("Config loaded")

	gw, err := newGateway()
	if err != nil {
		logger.ErrorWithCode(asError(err, errors.ErrInitApp)).Msg("Failed to initialize host gateway")
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.SetMode != "" || cfg.FanBoost != "" {
		return oneShot(ctx, gw)
	}

	if !cfg.Once {
		pidPath := pid.DefaultPath()
		if err := pid.Write(pidPath); err != nil {
			logger.ErrorWithCode(asError(err, errors.ErrInitApp)).Msg("Failed to write pid file")
			return 1
		}
		defer func() {
			if err := pid.Remove(pidPath); err != nil {
				logger.Warn().Err(err).Msg("Failed to remove pid file")
			}
		}()
	}

	policy, err := control.ParseUnknownPolicy(cfg.Control.UnknownMode)
	if err != nil {
		logger.Error().Err(err).Msg("Invalid control policy")
		return 1
	}

	log := logger.Default()
	drv = driver.New(gw, control.New(gw, policy, log), driver.Options{
		Target:        cfg.TargetTemperature,
		AutoControl:   cfg.AutoControl && !cfg.Monitor,
		HistorySize:   cfg.HistorySize,
		Period:        cfg.IntervalDuration(),
		StatusTTL:     cfg.StatusTTL,
		RestoreOnExit: cfg.RestoreOnExit && !cfg.Monitor,
	}, log)

	if err := drv.Init(ctx, time.Now()); err != nil {
		logger.ErrorWithCode(asError(err, errors.ErrReadState)).Msg("Failed to read initial state")
		return 1
	}

	if cfg.Once {
		return printSnapshot(time.Now())
	}

	collector, err = metrics.NewService(metrics.Config{
		DBPath:       cfg.Metrics.DBPath,
		BatchSize:    cfg.Metrics.BatchSize,
		BatchTimeout: cfg.Metrics.BatchTimeout,
		Enabled:      cfg.Metrics.Enabled,
	}, log)
	if err != nil {
		logger.ErrorWithCode(asError(err, errors.ErrInitMetrics)).Msg("Failed to initialize metrics")
		return 1
	}

	go handleSignals(cancel)

	if err := loop(ctx); err != nil {
		logger.ErrorWithCode(asError(err, errors.ErrMainLoop)).Msg("Error in main loop")
	}
	cleanup()

	return 0
}

func newGateway() (gateway.Gateway, error) {
	host, err := gateway.NewHost(cfg.Gateway(), logger.Default())
	if err != nil {
		return nil, err
	}

	if cfg.Monitor {
		return gateway.ReadOnly(host), nil
	}

	return host, nil
}

// oneShot applies --set-mode and --fan-boost and exits.
func oneShot(ctx context.Context, gw gateway.Gateway) int {
	if cfg.SetMode != "" {
		mode, err := thermal.ParseMode(cfg.SetMode)
		if err != nil {
			logger.Error().Err(err).Msg("Invalid mode")
			return 1
		}
		if err := gw.SetMode(ctx, mode); err != nil {
			logger.ErrorWithCode(asError(err, errors.ErrChangeMode)).Str("mode", mode.Label()).Msg("Failed to set mode")
			return 1
		}
		logger.Info().Str("mode", mode.Label()).Msg("Mode set")
	}

	if cfg.FanBoost != "" {
		enabled := cfg.FanBoost == "on"
		if err := gw.SetFanBoost(ctx, enabled); err != nil {
			logger.ErrorWithCode(asError(err, errors.ErrChangeFanBoost)).Bool("fan_boost", enabled).Msg("Failed to set fan boost")
			return 1
		}
		logger.Info().Bool("fan_boost", enabled).Msg("Fan boost set")
	}

	return 0
}

func printSnapshot(now time.Time) int {
	format, err := report.ParseFormat(cfg.Format)
	if err != nil {
		logger.Error().Err(err).Msg("Invalid output format")
		return 1
	}

	snap := report.New(now, drv.State(), drv.History(), drv.Target(), drv.AutoControl(), drv.Status(now))
	if err := report.Render(os.Stdout, format, snap); err != nil {
		logger.Error().Err(err).Msg("Failed to render snapshot")
		return 1
	}

	return 0
}

func loop(ctx context.Context) error {
	ticker := time.NewTicker(cfg.IntervalDuration())
	defer ticker.Stop()

	if cfg.Monitor {
		logger.Info().Msg("Monitor mode activated. Logging thermal state...")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			result := drv.Tick(ctx, now)
			if !result.Ran {
				continue
			}

			logTick(result)
			record(ctx, now, result)
		}
	}
}

func logTick(result driver.TickResult) {
	if result.ReadErr != nil {
		logger.Warn().Err(result.ReadErr).Msg("Failed to read thermal state, keeping previous")
		return
	}

	if result.ControlErr != nil {
		logger.ErrorWithCode(asError(result.ControlErr, control.ErrControl)).Msg("Control action failed")
	}

	state := result.State
	logger.Debug().
		Float64("cpu_temp", state.CPUTemp).
		Float64("keyboard_temp", state.KeyboardTemp).
		Str("zone", state.Zone().Label()).
		Str("mode", state.Mode.Label()).
		Str("platform_profile", state.PlatformProfile).
		Int("perf_pct", state.PerfPct).
		Float64("freq_ghz", state.FreqGHz()).
		Bool("fan_boost", state.FanBoost).
		Float64("target_temp", drv.Target()).
		Bool("auto_control", drv.AutoControl()).
		Str("action", result.Action).
		Msg("")

	if result.Action != "" && result.Action != control.OnTarget && result.Action != control.AlreadyMinimal {
		logger.Info().Str("zone", state.Zone().Label()).Msg(result.Action)
	}
}

func record(ctx context.Context, now time.Time, result driver.TickResult) {
	state := result.State
	sample := &metrics.Sample{
		Timestamp:    now,
		CPUTemp:      state.CPUTemp,
		KeyboardTemp: state.KeyboardTemp,
		Zone:         state.Zone(),
		Mode:         state.Mode,
		PerfPct:      state.PerfPct,
		FanBoost:     state.FanBoost,
		Target:       drv.Target(),
		AutoControl:  drv.AutoControl(),
		Action:       result.Action,
	}
	if err := firstErr(result.ReadErr, result.ControlErr); err != nil {
		sample.Error = err.Error()
	}

	if err := collector.Record(ctx, sample); err != nil {
		logger.Warn().Err(err).Msg("Failed to record metrics")
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if err := drv.Restore(ctx); err != nil {
		logger.Default().ErrorWithContext(asError(err, errors.ErrRestoreState), "driver", "restore").
			Msg("Failed to restore initial state")
	}
	if err := collector.Close(); err != nil {
		logger.ErrorWithCode(asError(err, errors.ErrCloseMetrics)).Msg("Failed to close metrics")
	}
	logger.Info().Msg("Exiting...")
}

// asError returns err as a domain error, wrapping it with code when it
// carries none.
func asError(err error, code errors.ErrorCode) errors.Error {
	var e errors.Error
	if errors.As(err, &e) {
		return e
	}

	return errors.New().Wrap(code, err)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	return nil
}
