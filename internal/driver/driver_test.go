package driver

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"codeberg.org/mutker/thermalctl/internal/control"
	"codeberg.org/mutker/thermalctl/internal/errors"
	"codeberg.org/mutker/thermalctl/internal/gateway"
	"codeberg.org/mutker/thermalctl/internal/gateway/gatewaytest"
	"codeberg.org/mutker/thermalctl/internal/logger"
	"codeberg.org/mutker/thermalctl/internal/thermal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newDriver(fake *gatewaytest.Fake, opts Options) *Driver {
	log := logger.Default()
	return New(fake, control.New(fake, control.UnknownAsFloor, log), opts, log)
}

func TestInitSeedsHistory(t *testing.T) {
	fake := &gatewaytest.Fake{
		State:  thermal.State{Mode: thermal.ModeBalanced},
		Script: []gatewaytest.Reading{{CPU: 48, Keyboard: 31}},
	}
	d := newDriver(fake, Options{})

	require.NoError(t, d.Init(context.Background(), t0))

	assert.Equal(t, 1, d.History().Len())
	last, ok := d.History().Last()
	require.True(t, ok)
	assert.InDelta(t, 48.0, last.CPU, 1e-9)
	assert.InDelta(t, 31.0, last.Keyboard, 1e-9)
	assert.Equal(t, thermal.ModeBalanced, d.State().Mode)
}

func TestInitReadFailure(t *testing.T) {
	fake := &gatewaytest.Fake{Script: []gatewaytest.Reading{{Err: fmt.Errorf("no zones")}}}
	d := newDriver(fake, Options{})

	err := d.Init(context.Background(), t0)
	assert.True(t, errors.HasCode(err, errors.ErrReadState))
	assert.True(t, d.History().IsEmpty())
}

func TestTickGating(t *testing.T) {
	fake := &gatewaytest.Fake{State: thermal.State{CPUTemp: 50}}
	d := newDriver(fake, Options{Period: 2 * time.Second})
	ctx := context.Background()
	require.NoError(t, d.Init(ctx, t0))

	assert.False(t, d.Tick(ctx, t0.Add(500*time.Millisecond)).Ran)
	assert.False(t, d.Tick(ctx, t0.Add(1999*time.Millisecond)).Ran)
	assert.Equal(t, 1, fake.ReadCalls)
	assert.Equal(t, 1, d.History().Len())

	assert.True(t, d.Tick(ctx, t0.Add(2*time.Second)).Ran)
	assert.False(t, d.Tick(ctx, t0.Add(3*time.Second)).Ran)
	assert.True(t, d.Tick(ctx, t0.Add(4*time.Second)).Ran)

	assert.Equal(t, 3, fake.ReadCalls)
	assert.Equal(t, 3, d.History().Len())
}

func TestTickWithoutInitRuns(t *testing.T) {
	fake := &gatewaytest.Fake{State: thermal.State{CPUTemp: 50}}
	d := newDriver(fake, Options{})

	res := d.Tick(context.Background(), t0)
	assert.True(t, res.Ran)
	assert.Equal(t, 1, d.History().Len())
}

func TestTickReadErrorKeepsState(t *testing.T) {
	fake := &gatewaytest.Fake{
		State: thermal.State{Mode: thermal.ModeQuiet},
		Script: []gatewaytest.Reading{
			{CPU: 52, Keyboard: 30},
			{Err: errors.New().New(gateway.ErrRead)},
			{CPU: 53, Keyboard: 30},
		},
	}
	d := newDriver(fake, Options{Period: time.Second})
	ctx := context.Background()
	require.NoError(t, d.Init(ctx, t0))

	res := d.Tick(ctx, t0.Add(time.Second))
	assert.True(t, res.Ran)
	require.Error(t, res.ReadErr)
	assert.True(t, gateway.IsReadError(res.ReadErr))
	assert.InDelta(t, 52.0, res.State.CPUTemp, 1e-9)
	assert.InDelta(t, 52.0, d.State().CPUTemp, 1e-9)
	assert.Equal(t, 1, d.History().Len())

	res = d.Tick(ctx, t0.Add(2*time.Second))
	require.NoError(t, res.ReadErr)
	assert.InDelta(t, 53.0, d.State().CPUTemp, 1e-9)
	assert.Equal(t, 2, d.History().Len())
}

func TestTickAutoControl(t *testing.T) {
	fake := &gatewaytest.Fake{
		State: thermal.State{Mode: thermal.ModePerformance},
		Script: []gatewaytest.Reading{
			{CPU: 60}, {CPU: 72}, {CPU: 66},
		},
	}
	d := newDriver(fake, Options{Target: 65, AutoControl: true, Period: time.Second})
	ctx := context.Background()
	require.NoError(t, d.Init(ctx, t0))

	now := t0.Add(time.Second)
	res := d.Tick(ctx, now)
	require.NoError(t, res.ControlErr)
	assert.Equal(t, "Mode Performance → Comfort (cpu 72° > target 65°)", res.Action)
	assert.Equal(t, res.Action, d.Status(now))
	assert.Equal(t, 2, fake.ReadCalls, "one read per tick")

	now = now.Add(time.Second)
	res = d.Tick(ctx, now)
	assert.Equal(t, "Mode Comfort → Balanced (cpu 66° > target 65°)", res.Action)
	assert.Equal(t, []thermal.Mode{thermal.ModeComfort, thermal.ModeBalanced}, fake.ModeCalls)
}

func TestTickOnTargetKeepsStatus(t *testing.T) {
	fake := &gatewaytest.Fake{State: thermal.State{CPUTemp: 50, Mode: thermal.ModeBalanced}}
	d := newDriver(fake, Options{Target: 60, AutoControl: true, Period: time.Second})
	ctx := context.Background()

	d.SetAutoControl(true, t0)
	res := d.Tick(ctx, t0)
	assert.Equal(t, control.OnTarget, res.Action)
	assert.Equal(t, StatusAutoOn, d.Status(t0))
	assert.Zero(t, fake.Writes())
}

func TestTickControlError(t *testing.T) {
	fake := &gatewaytest.Fake{
		State:          thermal.State{CPUTemp: 80, Mode: thermal.ModeQuiet},
		SetFanBoostErr: errors.New().New(gateway.ErrUnsupported),
	}
	d := newDriver(fake, Options{Target: 60, AutoControl: true})

	res := d.Tick(context.Background(), t0)
	require.Error(t, res.ControlErr)
	assert.True(t, errors.HasCode(res.ControlErr, control.ErrControl))
	assert.Contains(t, d.Status(t0), "Error: ")
	assert.Equal(t, 1, d.History().Len(), "sample recorded before control")
}

func TestTickAutoControlOff(t *testing.T) {
	fake := &gatewaytest.Fake{State: thermal.State{CPUTemp: 90, Mode: thermal.ModePerformance}}
	d := newDriver(fake, Options{Target: 60})

	res := d.Tick(context.Background(), t0)
	assert.True(t, res.Ran)
	assert.Empty(t, res.Action)
	assert.Zero(t, fake.Writes())
}

func TestSetTargetClamps(t *testing.T) {
	d := newDriver(&gatewaytest.Fake{}, Options{})
	assert.InDelta(t, DefaultTarget, d.Target(), 1e-9)

	tests := []struct{ in, want float64 }{
		{10, MinTarget},
		{40, 40},
		{62.5, 62.5},
		{80, 80},
		{120, MaxTarget},
		{math.NaN(), DefaultTarget},
	}
	for _, tt := range tests {
		d.SetTarget(tt.in)
		assert.InDelta(t, tt.want, d.Target(), 1e-9)
	}
}

func TestStatusTTL(t *testing.T) {
	d := newDriver(&gatewaytest.Fake{}, Options{})

	assert.Empty(t, d.Status(t0))

	d.SetAutoControl(false, t0)
	assert.Equal(t, StatusAutoOff, d.Status(t0.Add(2999*time.Millisecond)))
	assert.Empty(t, d.Status(t0.Add(3*time.Second)))
	assert.False(t, d.AutoControl())
}

func TestChangeMode(t *testing.T) {
	fake := &gatewaytest.Fake{State: thermal.State{CPUTemp: 50, Mode: thermal.ModeBalanced}}
	d := newDriver(fake, Options{})
	ctx := context.Background()
	require.NoError(t, d.Init(ctx, t0))

	require.NoError(t, d.ChangeMode(ctx, thermal.ModePerformance, t0))
	assert.Equal(t, "Mode changed to Performance", d.Status(t0))
	assert.Equal(t, thermal.ModePerformance, d.State().Mode)
	assert.Equal(t, 1, d.History().Len(), "refresh does not record a sample")
}

func TestChangeModeRejectsUnknown(t *testing.T) {
	fake := &gatewaytest.Fake{}
	d := newDriver(fake, Options{})

	err := d.ChangeMode(context.Background(), thermal.ModeUnknown, t0)
	require.Error(t, err)
	assert.Zero(t, fake.Calls())
	assert.Contains(t, d.Status(t0), "Error: ")
}

func TestChangeModeFailure(t *testing.T) {
	fake := &gatewaytest.Fake{
		State:      thermal.State{Mode: thermal.ModeBalanced},
		SetModeErr: errors.New().New(gateway.ErrSetMode),
	}
	d := newDriver(fake, Options{})
	ctx := context.Background()
	require.NoError(t, d.Init(ctx, t0))

	err := d.ChangeMode(ctx, thermal.ModeQuiet, t0)
	assert.True(t, errors.HasCode(err, errors.ErrChangeMode))
	assert.True(t, errors.HasCode(err, gateway.ErrSetMode))
	assert.Equal(t, thermal.ModeBalanced, d.State().Mode)
	assert.Contains(t, d.Status(t0), "Error: ")
}

func TestSetFanBoost(t *testing.T) {
	fake := &gatewaytest.Fake{}
	d := newDriver(fake, Options{})
	ctx := context.Background()

	require.NoError(t, d.SetFanBoost(ctx, true, t0))
	assert.Equal(t, StatusFanBoost, d.Status(t0))
	assert.True(t, d.State().FanBoost)

	require.NoError(t, d.SetFanBoost(ctx, false, t0))
	assert.Equal(t, StatusFanAuto, d.Status(t0))
	assert.False(t, d.State().FanBoost)

	fake.SetFanBoostErr = errors.New().New(gateway.ErrUnsupported)
	err := d.SetFanBoost(ctx, true, t0)
	assert.True(t, errors.HasCode(err, errors.ErrChangeFanBoost))
}

func TestRestore(t *testing.T) {
	fake := &gatewaytest.Fake{State: thermal.State{CPUTemp: 90, Mode: thermal.ModeBalanced}}
	d := newDriver(fake, Options{Target: 60, AutoControl: true, RestoreOnExit: true, Period: time.Second})
	ctx := context.Background()
	require.NoError(t, d.Init(ctx, t0))

	d.Tick(ctx, t0.Add(time.Second))
	d.Tick(ctx, t0.Add(2*time.Second))
	require.Equal(t, thermal.ModeQuiet, fake.State.Mode)
	require.True(t, fake.State.FanBoost)

	require.NoError(t, d.Restore(ctx))
	assert.Equal(t, thermal.ModeBalanced, fake.State.Mode)
	assert.False(t, fake.State.FanBoost)
}

func TestRestoreDisabled(t *testing.T) {
	fake := &gatewaytest.Fake{State: thermal.State{CPUTemp: 90, Mode: thermal.ModeBalanced}}
	d := newDriver(fake, Options{Target: 60, AutoControl: true, Period: time.Second})
	ctx := context.Background()
	require.NoError(t, d.Init(ctx, t0))
	d.Tick(ctx, t0.Add(time.Second))

	writes := fake.Writes()
	require.NoError(t, d.Restore(ctx))
	assert.Equal(t, writes, fake.Writes())
}

func TestTickLateTickKeepsGrid(t *testing.T) {
	fake := &gatewaytest.Fake{State: thermal.State{CPUTemp: 50}}
	d := newDriver(fake, Options{Period: 2 * time.Second})
	ctx := context.Background()
	require.NoError(t, d.Init(ctx, t0))

	assert.True(t, d.Tick(ctx, t0.Add(2100*time.Millisecond)).Ran)
	assert.True(t, d.Tick(ctx, t0.Add(4*time.Second)).Ran)
	assert.False(t, d.Tick(ctx, t0.Add(5900*time.Millisecond)).Ran)
	assert.True(t, d.Tick(ctx, t0.Add(7*time.Second)).Ran)
}
