// Package control implements the step-wise corrective thermal policy. When the
// CPU runs above the target it backs the mode off one step at a time and, once
// no calmer mode is left, engages fan boost.
package control

import (
	"context"
	"fmt"
	"strings"

	"codeberg.org/mutker/thermalctl/internal/errors"
	"codeberg.org/mutker/thermalctl/internal/gateway"
	"codeberg.org/mutker/thermalctl/internal/logger"
	"codeberg.org/mutker/thermalctl/internal/thermal"
)

const ErrControl = errors.ErrorCode("control_action_failed")

// Sentinel results. Neither is meant to be shown as a status message.
const (
	OnTarget       = "On target"
	AlreadyMinimal = "Already minimal"
)

// UnknownPolicy decides how an unrecognized host mode is treated.
type UnknownPolicy string

const (
	// UnknownAsFloor treats an unknown mode as the calmest one and goes
	// straight to fan boost.
	UnknownAsFloor UnknownPolicy = "floor"
	// UnknownToQuiet requests Quiet first.
	UnknownToQuiet UnknownPolicy = "quiet"
)

// ParseUnknownPolicy accepts "floor" and "quiet". An empty string is the
// default floor policy.
func ParseUnknownPolicy(s string) (UnknownPolicy, error) {
	switch p := UnknownPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", UnknownAsFloor:
		return UnknownAsFloor, nil
	case UnknownToQuiet:
		return p, nil
	default:
		return "", fmt.Errorf("unknown mode policy %q", s)
	}
}

// Controller issues at most one gateway write per decision.
type Controller struct {
	gw      gateway.Gateway
	unknown UnknownPolicy
	logger  logger.Logger
}

func New(gw gateway.Gateway, unknown UnknownPolicy, log logger.Logger) *Controller {
	if unknown == "" {
		unknown = UnknownAsFloor
	}

	return &Controller{gw: gw, unknown: unknown, logger: log}
}

// Apply compares cpuTemp against targetTemp and corrects the host when it is
// too warm. The gateway is not touched at all when on target.
func (c *Controller) Apply(ctx context.Context, cpuTemp, targetTemp float64) (string, error) {
	if cpuTemp <= targetTemp {
		return OnTarget, nil
	}

	state, err := c.gw.ReadState(ctx)
	if err != nil {
		return "", errors.New().Wrap(ErrControl, err)
	}
	state.CPUTemp = cpuTemp

	return c.Step(ctx, state, targetTemp)
}

// Step decides from an already read snapshot.
func (c *Controller) Step(ctx context.Context, state thermal.State, targetTemp float64) (string, error) {
	if state.CPUTemp <= targetTemp {
		return OnTarget, nil
	}

	errFactory := errors.New()

	if next, ok := c.nextMode(state.Mode); ok {
		if err := c.gw.SetMode(ctx, next); err != nil {
			return "", errFactory.Wrap(ErrControl, err)
		}

		c.logger.Info().
			Str("from", state.Mode.Label()).
			Str("to", next.Label()).
			Float64("cpu_temp", state.CPUTemp).
			Float64("target_temp", targetTemp).
			Msg("Stepped mode down")

		return fmt.Sprintf("Mode %s → %s (%s)",
			state.Mode.Label(), next.Label(), overTarget(state.CPUTemp, targetTemp)), nil
	}

	if state.FanBoost {
		return AlreadyMinimal, nil
	}

	if err := c.gw.SetFanBoost(ctx, true); err != nil {
		return "", errFactory.Wrap(ErrControl, err)
	}

	c.logger.Info().
		Float64("cpu_temp", state.CPUTemp).
		Float64("target_temp", targetTemp).
		Msg("Engaged fan boost")

	return fmt.Sprintf("Fan boost engaged (%s)", overTarget(state.CPUTemp, targetTemp)), nil
}

// nextMode returns the next less aggressive mode, or false at the floor.
func (c *Controller) nextMode(m thermal.Mode) (thermal.Mode, bool) {
	switch m {
	case thermal.ModePerformance:
		return thermal.ModeComfort, true
	case thermal.ModeComfort:
		return thermal.ModeBalanced, true
	case thermal.ModeBalanced, thermal.ModeAuto:
		return thermal.ModeQuiet, true
	case thermal.ModeUnknown:
		if c.unknown == UnknownToQuiet {
			return thermal.ModeQuiet, true
		}
	}

	return m, false
}

func overTarget(cpu, target float64) string {
	return fmt.Sprintf("cpu %.0f° > target %.0f°", cpu, target)
}
