package gateway

import (
	"context"

	"codeberg.org/mutker/thermalctl/internal/thermal"
)

// Gateway reads host thermal state and issues mode and fan-boost requests.
// Implementations hold no state shared with the caller.
type Gateway interface {
	// ReadState returns a fresh snapshot of the host readings.
	ReadState(ctx context.Context) (thermal.State, error)
	// SetMode requests a mode change. The host may ignore or override it,
	// so a later ReadState is not guaranteed to report the requested mode.
	SetMode(ctx context.Context, mode thermal.Mode) error
	// SetFanBoost requests maximum fan speed on or off.
	SetFanBoost(ctx context.Context, enabled bool) error
}

// Config locates the host attributes. Paths are relative to SysRoot.
type Config struct {
	SysRoot            string
	CPUZoneType        string
	KeyboardSensor     string
	ProfilePath        string
	ProfileChoicesPath string
	PerfPctPath        string
	MaxFreqPath        string
	FanBoostPath       string
	FanBoostOn         string
	FanBoostOff        string
	// Profiles maps every requestable mode to the host profile label.
	Profiles map[thermal.Mode]string
}

func DefaultConfig() Config {
	return Config{
		SysRoot:            "/sys",
		CPUZoneType:        "x86_pkg_temp",
		ProfilePath:        "firmware/acpi/platform_profile",
		ProfileChoicesPath: "firmware/acpi/platform_profile_choices",
		PerfPctPath:        "devices/system/cpu/intel_pstate/max_perf_pct",
		MaxFreqPath:        "devices/system/cpu/cpu0/cpufreq/cpuinfo_max_freq",
		FanBoostOn:         "0",
		FanBoostOff:        "2",
		Profiles:           DefaultProfiles(),
	}
}

// DefaultProfiles returns the ACPI platform_profile labels used when no
// mapping is configured.
func DefaultProfiles() map[thermal.Mode]string {
	return map[thermal.Mode]string{
		thermal.ModePerformance: "performance",
		thermal.ModeComfort:     "cool",
		thermal.ModeBalanced:    "balanced",
		thermal.ModeQuiet:       "quiet",
		thermal.ModeAuto:        "balanced-performance",
	}
}
