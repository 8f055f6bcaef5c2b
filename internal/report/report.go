// Package report renders a thermal snapshot as coloured text, JSON or YAML.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"codeberg.org/mutker/thermalctl/internal/errors"
	"codeberg.org/mutker/thermalctl/internal/history"
	"codeberg.org/mutker/thermalctl/internal/thermal"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

const ErrUnknownFormat = errors.ErrorCode("report_unknown_format")

// Snapshot is the rendered view of the driver state.
type Snapshot struct {
	Time            time.Time    `json:"time" yaml:"time"`
	CPUTemp         float64      `json:"cpu_temp" yaml:"cpu_temp"`
	KeyboardTemp    float64      `json:"keyboard_temp" yaml:"keyboard_temp"`
	Zone            thermal.Zone `json:"zone" yaml:"zone"`
	Mode            thermal.Mode `json:"mode" yaml:"mode"`
	PlatformProfile string       `json:"platform_profile,omitempty" yaml:"platform_profile,omitempty"`
	PerfPct         int          `json:"perf_pct" yaml:"perf_pct"`
	FreqGHz         float64      `json:"freq_ghz" yaml:"freq_ghz"`
	FanBoost        bool         `json:"fan_boost" yaml:"fan_boost"`
	Target          float64      `json:"target_temp" yaml:"target_temp"`
	AutoControl     bool         `json:"auto_control" yaml:"auto_control"`
	Status          string       `json:"status,omitempty" yaml:"status,omitempty"`
	History         *Trend       `json:"history,omitempty" yaml:"history,omitempty"`

	cpuSeries []float64
}

// Trend summarizes the rolling history.
type Trend struct {
	Samples  int  `json:"samples" yaml:"samples"`
	CPU      Span `json:"cpu" yaml:"cpu"`
	Keyboard Span `json:"keyboard" yaml:"keyboard"`
}

type Span struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
	Avg float64 `json:"avg" yaml:"avg"`
}

func spanOf(s history.Series) Span {
	return Span{Min: round1(s.Min), Max: round1(s.Max), Avg: round1(s.Avg)}
}

// New builds a snapshot. h may be nil.
func New(now time.Time, state thermal.State, h *history.History, target float64, auto bool, status string) Snapshot {
	snap := Snapshot{
		Time:            now,
		CPUTemp:         round1(state.CPUTemp),
		KeyboardTemp:    round1(state.KeyboardTemp),
		Zone:            state.Zone(),
		Mode:            state.Mode,
		PlatformProfile: state.PlatformProfile,
		PerfPct:         state.PerfPct,
		FreqGHz:         round1(state.FreqGHz()),
		FanBoost:        state.FanBoost,
		Target:          target,
		AutoControl:     auto,
		Status:          status,
	}

	if h != nil && !h.IsEmpty() {
		stats := h.Stats()
		snap.History = &Trend{Samples: h.Len(), CPU: spanOf(stats.CPU), Keyboard: spanOf(stats.Keyboard)}
		snap.cpuSeries = make([]float64, 0, h.Len())
		for _, v := range h.CPUPoints() {
			snap.cpuSeries = append(snap.cpuSeries, v)
		}
	}

	return snap
}

// ParseFormat accepts text, json and yaml.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", errors.New().WithData(ErrUnknownFormat, s)
	}
}

func Render(w io.Writer, format Format, snap Snapshot) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return err
		}
		return enc.Close()
	case FormatText, "":
		_, err := io.WriteString(w, Text(snap)+"\n")
		return err
	default:
		return errors.New().WithData(ErrUnknownFormat, string(format))
	}
}

var (
	labelStyle = lipgloss.NewStyle().Width(10).Foreground(lipgloss.Color("245"))
	boldStyle  = lipgloss.NewStyle().Bold(true)
)

func colored(rgb thermal.RGB) lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(rgb.Hex()))
}

// Text renders the snapshot as a short coloured block.
func Text(snap Snapshot) string {
	lines := []string{
		row("CPU", colored(snap.Zone.RGB()).Render(fmt.Sprintf("%.1f°C", snap.CPUTemp))+
			"  "+colored(snap.Zone.RGB()).Render(snap.Zone.Label())),
		row("Keyboard", fmt.Sprintf("%.1f°C", snap.KeyboardTemp)),
		row("Mode", colored(snap.Mode.RGB()).Render(snap.Mode.Label())+profileSuffix(snap.PlatformProfile)),
		row("Perf", fmt.Sprintf("%d%%  %.1f GHz", snap.PerfPct, snap.FreqGHz)),
		row("Fan", onOff(snap.FanBoost, "boost", "auto")),
		row("Target", fmt.Sprintf("%.0f°C  auto %s", snap.Target, onOff(snap.AutoControl, "on", "off"))),
	}

	if snap.History != nil {
		lines = append(lines, row("Trend", fmt.Sprintf("%s  min %.1f  avg %.1f  max %.1f",
			sparkline(snap.cpuSeries), snap.History.CPU.Min, snap.History.CPU.Avg, snap.History.CPU.Max)))
	}

	if snap.Status != "" {
		lines = append(lines, row("Status", boldStyle.Render(snap.Status)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
}

func profileSuffix(profile string) string {
	if profile == "" {
		return ""
	}

	return " (" + profile + ")"
}

func onOff(v bool, on, off string) string {
	if v {
		return on
	}

	return off
}

var sparkBars = []rune("▁▂▃▄▅▆▇█")

// sparkline draws one bar per value. Non-finite values are drawn as blanks
// and do not affect the scale.
func sparkline(values []float64) string {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if finite(v) {
			lo = min(lo, v)
			hi = max(hi, v)
		}
	}

	var b strings.Builder
	for _, v := range values {
		if !finite(v) {
			b.WriteRune(' ')
			continue
		}

		i := 0
		if hi > lo {
			i = int((v - lo) / (hi - lo) * float64(len(sparkBars)-1))
		}
		b.WriteRune(sparkBars[i])
	}

	return b.String()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// round1 rounds to one decimal. Non-finite readings become zero so the
// snapshot always encodes.
func round1(v float64) float64 {
	if !finite(v) {
		return 0
	}

	return math.Round(v*10) / 10
}
