package report

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"
	"time"

	"codeberg.org/mutker/thermalctl/internal/errors"
	"codeberg.org/mutker/thermalctl/internal/history"
	"codeberg.org/mutker/thermalctl/internal/thermal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func testSnapshot() Snapshot {
	h := history.New(10)
	h.Push(60, 30)
	h.Push(70, 32)
	h.Push(68.26, 31)

	state := thermal.State{
		CPUTemp:         68.26,
		KeyboardTemp:    31,
		Mode:            thermal.ModeBalanced,
		PlatformProfile: "balanced",
		PerfPct:         50,
		MaxFreqMHz:      4600,
		FanBoost:        true,
	}

	return New(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), state, h, 65, true, "Fan boost")
}

func TestNew(t *testing.T) {
	snap := testSnapshot()

	assert.InDelta(t, 68.3, snap.CPUTemp, 1e-9)
	assert.Equal(t, thermal.ZoneWarm, snap.Zone)
	assert.InDelta(t, 2.3, snap.FreqGHz, 1e-9)
	require.NotNil(t, snap.History)
	assert.Equal(t, 3, snap.History.Samples)
	assert.InDelta(t, 60.0, snap.History.CPU.Min, 1e-9)
	assert.InDelta(t, 70.0, snap.History.CPU.Max, 1e-9)
	assert.Len(t, snap.cpuSeries, 3)
}

func TestNewWithoutHistory(t *testing.T) {
	snap := New(time.Now(), thermal.State{Mode: thermal.ModeUnknown}, nil, 70, false, "")
	assert.Nil(t, snap.History)
	assert.Equal(t, thermal.ZoneCool, snap.Zone)
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatJSON, testSnapshot()))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "warm", got["zone"])
	assert.Equal(t, "balanced", got["mode"])
	assert.Equal(t, true, got["fan_boost"])
	assert.Equal(t, "Fan boost", got["status"])
	assert.Contains(t, got, "history")
}

func TestRenderYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatYAML, testSnapshot()))

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "warm", got["zone"])
	assert.Equal(t, "balanced", got["mode"])
	assert.Equal(t, 50, got["perf_pct"])
}

func TestRenderText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatText, testSnapshot()))

	out := buf.String()
	for _, want := range []string{"68.3°C", "Warm", "Balanced (balanced)", "50%", "boost", "auto on", "Fan boost"} {
		assert.Contains(t, out, want)
	}
}

func TestRenderUnknownFormat(t *testing.T) {
	err := Render(&bytes.Buffer{}, Format("xml"), testSnapshot())
	assert.True(t, errors.HasCode(err, ErrUnknownFormat))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("YAML")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)

	_, err = ParseFormat("csv")
	assert.Error(t, err)
}

func TestSparkline(t *testing.T) {
	assert.Equal(t, "▁█▄", sparkline([]float64{0, 10, 5}))
	assert.Equal(t, "▁▁", sparkline([]float64{3, 3}))
	assert.Empty(t, sparkline(nil))
}

func TestSparklineNonFinite(t *testing.T) {
	assert.Equal(t, "▁ █ ", sparkline([]float64{0, math.NaN(), 10, math.Inf(1)}))
	assert.Equal(t, "  ", sparkline([]float64{math.NaN(), math.NaN()}))
}
