// Package gatewaytest provides a scripted in-memory Gateway for tests.
package gatewaytest

import (
	"context"

	"codeberg.org/mutker/thermalctl/internal/gateway"
	"codeberg.org/mutker/thermalctl/internal/thermal"
)

// Reading is one scripted temperature sample. A non-nil Err fails that read.
type Reading struct {
	CPU      float64
	Keyboard float64
	Err      error
}

// Fake is a Gateway whose temperatures follow Script, one reading per
// ReadState call. When the script is exhausted the last State is repeated.
// Successful writes update State unless IgnoreWrites is set.
type Fake struct {
	State          thermal.State
	Script         []Reading
	IgnoreWrites   bool
	SetModeErr     error
	SetFanBoostErr error

	ReadCalls     int
	ModeCalls     []thermal.Mode
	FanBoostCalls []bool
}

var _ gateway.Gateway = (*Fake)(nil)

func (f *Fake) ReadState(context.Context) (thermal.State, error) {
	f.ReadCalls++

	if len(f.Script) > 0 {
		r := f.Script[0]
		f.Script = f.Script[1:]
		if r.Err != nil {
			return thermal.State{}, r.Err
		}
		f.State.CPUTemp = r.CPU
		f.State.KeyboardTemp = r.Keyboard
	}

	return f.State, nil
}

func (f *Fake) SetMode(_ context.Context, mode thermal.Mode) error {
	f.ModeCalls = append(f.ModeCalls, mode)
	if f.SetModeErr != nil {
		return f.SetModeErr
	}
	if !f.IgnoreWrites {
		f.State.Mode = mode
	}

	return nil
}

func (f *Fake) SetFanBoost(_ context.Context, enabled bool) error {
	f.FanBoostCalls = append(f.FanBoostCalls, enabled)
	if f.SetFanBoostErr != nil {
		return f.SetFanBoostErr
	}
	if !f.IgnoreWrites {
		f.State.FanBoost = enabled
	}

	return nil
}

// Calls counts every Gateway call, reads included.
func (f *Fake) Calls() int {
	return f.ReadCalls + f.Writes()
}

// Writes counts mode and fan-boost requests.
func (f *Fake) Writes() int {
	return len(f.ModeCalls) + len(f.FanBoostCalls)
}
