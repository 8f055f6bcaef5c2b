// Package driver runs one poll/update cycle per tick: read the host, record
// the sample and, when automatic control is on, let the controller correct
// the mode. It has no timer of its own; the caller supplies the clock.
package driver

import (
	"context"
	"math"
	"time"

	"codeberg.org/mutker/thermalctl/internal/control"
	"codeberg.org/mutker/thermalctl/internal/errors"
	"codeberg.org/mutker/thermalctl/internal/gateway"
	"codeberg.org/mutker/thermalctl/internal/history"
	"codeberg.org/mutker/thermalctl/internal/logger"
	"codeberg.org/mutker/thermalctl/internal/thermal"
)

const (
	MinTarget = 40.0
	MaxTarget = 80.0

	DefaultTarget    = 55.0
	DefaultPeriod    = 2 * time.Second
	DefaultStatusTTL = 3 * time.Second
)

// Status messages set by user-initiated operations.
const (
	StatusAutoOn      = "Auto ON"
	StatusAutoOff     = "Auto OFF"
	StatusFanBoost    = "Fan boost"
	StatusFanAuto     = "Fan auto"
	statusModeChanged = "Mode changed to "
	statusError       = "Error: "
)

// Options configure a Driver. Zero values select the defaults.
type Options struct {
	Target        float64
	AutoControl   bool
	HistorySize   int
	Period        time.Duration
	StatusTTL     time.Duration
	RestoreOnExit bool
}

// TickResult describes what one Tick did. Ran is false when the tick was
// skipped because a full period had not yet elapsed.
type TickResult struct {
	Ran        bool
	State      thermal.State
	ReadErr    error
	Action     string
	ControlErr error
}

// Driver owns the current State and the History. Callers serialize access.
type Driver struct {
	gw   gateway.Gateway
	ctrl *control.Controller
	opts Options

	state   thermal.State
	history *history.History
	lastRun time.Time

	status   string
	statusAt time.Time

	initial     thermal.State
	initialized bool

	logger logger.Logger
}

func New(gw gateway.Gateway, ctrl *control.Controller, opts Options, log logger.Logger) *Driver {
	if opts.Period <= 0 {
		opts.Period = DefaultPeriod
	}
	if opts.StatusTTL <= 0 {
		opts.StatusTTL = DefaultStatusTTL
	}
	if opts.Target == 0 {
		opts.Target = DefaultTarget
	}
	opts.Target = clampTarget(opts.Target)

	return &Driver{
		gw:      gw,
		ctrl:    ctrl,
		opts:    opts,
		history: history.New(opts.HistorySize),
		logger:  log,
	}
}

// Init performs the first read, seeds the history with it and remembers the
// host mode and fan state for Restore.
func (d *Driver) Init(ctx context.Context, now time.Time) error {
	state, err := d.gw.ReadState(ctx)
	if err != nil {
		return errors.New().Wrap(errors.ErrReadState, err)
	}

	d.state = state
	d.initial = state
	d.initialized = true
	d.history.Push(state.CPUTemp, state.KeyboardTemp)
	d.lastRun = now

	d.logger.Debug().
		Float64("cpu_temp", state.CPUTemp).
		Float64("keyboard_temp", state.KeyboardTemp).
		Str("mode", state.Mode.Label()).
		Bool("fan_boost", state.FanBoost).
		Msg("Initial state read")

	return nil
}

// Tick executes one cycle unless less than a period has passed since the
// last executed one. Executions are aligned to a grid of whole periods
// starting at Init.
func (d *Driver) Tick(ctx context.Context, now time.Time) TickResult {
	if d.lastRun.IsZero() {
		d.lastRun = now
	} else {
		elapsed := now.Sub(d.lastRun)
		if elapsed < d.opts.Period {
			return TickResult{State: d.state}
		}
		// stay on the period grid so a late tick does not delay the next one
		d.lastRun = d.lastRun.Add(elapsed - elapsed%d.opts.Period)
	}

	result := TickResult{Ran: true}

	state, err := d.gw.ReadState(ctx)
	if err != nil {
		result.ReadErr = err
		result.State = d.state

		return result
	}

	d.state = state
	d.history.Push(state.CPUTemp, state.KeyboardTemp)
	result.State = state

	if !d.opts.AutoControl {
		return result
	}

	action, err := d.ctrl.Step(ctx, state, d.opts.Target)
	if err != nil {
		result.ControlErr = err
		d.setStatus(statusError+err.Error(), now)

		return result
	}

	result.Action = action
	if action != control.OnTarget && action != control.AlreadyMinimal {
		d.setStatus(action, now)
	}

	return result
}

// SetTarget clamps t to the supported range.
func (d *Driver) SetTarget(t float64) {
	d.opts.Target = clampTarget(t)
}

func (d *Driver) Target() float64 {
	return d.opts.Target
}

func (d *Driver) SetAutoControl(enabled bool, now time.Time) {
	d.opts.AutoControl = enabled
	if enabled {
		d.setStatus(StatusAutoOn, now)
	} else {
		d.setStatus(StatusAutoOff, now)
	}
}

func (d *Driver) AutoControl() bool {
	return d.opts.AutoControl
}

// ChangeMode requests mode from the host and refreshes the State without
// recording a history sample.
func (d *Driver) ChangeMode(ctx context.Context, mode thermal.Mode, now time.Time) error {
	errFactory := errors.New()

	if !mode.Requestable() {
		err := errFactory.WithData(errors.ErrInvalidArgument, "mode "+mode.Label()+" cannot be requested")
		d.setStatus(statusError+err.Error(), now)

		return err
	}

	if err := d.gw.SetMode(ctx, mode); err != nil {
		wrapped := errFactory.Wrap(errors.ErrChangeMode, err)
		d.setStatus(statusError+err.Error(), now)

		return wrapped
	}

	d.setStatus(statusModeChanged+mode.Label(), now)
	d.refresh(ctx)

	return nil
}

// SetFanBoost switches fan boost and refreshes the State.
func (d *Driver) SetFanBoost(ctx context.Context, enabled bool, now time.Time) error {
	if err := d.gw.SetFanBoost(ctx, enabled); err != nil {
		d.setStatus(statusError+err.Error(), now)

		return errors.New().Wrap(errors.ErrChangeFanBoost, err)
	}

	if enabled {
		d.setStatus(StatusFanBoost, now)
	} else {
		d.setStatus(StatusFanAuto, now)
	}
	d.refresh(ctx)

	return nil
}

func (d *Driver) refresh(ctx context.Context) {
	state, err := d.gw.ReadState(ctx)
	if err != nil {
		d.logger.Debug().Err(err).Msg("State refresh failed")
		return
	}

	d.state = state
}

// Restore puts back the mode found at Init and clears a fan boost that was
// not active then. Both are attempted and the first failure is returned. It
// does nothing unless RestoreOnExit is set.
func (d *Driver) Restore(ctx context.Context) error {
	if !d.opts.RestoreOnExit || !d.initialized {
		return nil
	}

	current := d.state
	if state, err := d.gw.ReadState(ctx); err == nil {
		current = state
	}

	var first error

	if d.initial.Mode.Requestable() && current.Mode != d.initial.Mode {
		if err := d.gw.SetMode(ctx, d.initial.Mode); err != nil {
			first = errors.New().Wrap(errors.ErrRestoreState, err)
		}
	}

	if !d.initial.FanBoost && current.FanBoost {
		if err := d.gw.SetFanBoost(ctx, false); err != nil && first == nil {
			first = errors.New().Wrap(errors.ErrRestoreState, err)
		}
	}

	return first
}

// Status returns the latest status message while it is younger than the TTL.
func (d *Driver) Status(now time.Time) string {
	if d.status == "" || now.Sub(d.statusAt) >= d.opts.StatusTTL {
		return ""
	}

	return d.status
}

func (d *Driver) State() thermal.State {
	return d.state
}

func (d *Driver) History() *history.History {
	return d.history
}

func (d *Driver) setStatus(msg string, now time.Time) {
	d.status = msg
	d.statusAt = now
}

func clampTarget(t float64) float64 {
	if math.IsNaN(t) {
		return DefaultTarget
	}
	if t < MinTarget {
		return MinTarget
	}
	if t > MaxTarget {
		return MaxTarget
	}

	return t
}
