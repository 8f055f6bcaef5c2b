// Package thermal holds the thermal state snapshot, zone classification and
// the registry of performance modes.
package thermal

import (
	"fmt"
	"strings"
)

// Mode is a performance profile the host may honour, ordered from most to
// least aggressive.
type Mode int

const (
	ModePerformance Mode = iota
	ModeComfort
	ModeBalanced
	ModeQuiet
	ModeAuto
	// ModeUnknown is observed when the host reports a profile outside the known
	// set. It is never requested.
	ModeUnknown
)

var allModes = [...]Mode{ModePerformance, ModeComfort, ModeBalanced, ModeQuiet, ModeAuto}

var modeLabels = [...]string{
	ModePerformance: "Performance",
	ModeComfort:     "Comfort",
	ModeBalanced:    "Balanced",
	ModeQuiet:       "Quiet",
	ModeAuto:        "Auto",
	ModeUnknown:     "Unknown",
}

var modeColors = [...]RGB{
	ModePerformance: {255, 100, 100},
	ModeComfort:     {100, 200, 255},
	ModeBalanced:    {150, 220, 100},
	ModeQuiet:       {180, 180, 220},
	ModeAuto:        {255, 200, 100},
	ModeUnknown:     {160, 160, 160},
}

// AllModes returns the requestable modes in their fixed order. The slice is a
// copy and may be modified by the caller.
func AllModes() []Mode {
	modes := make([]Mode, len(allModes))
	copy(modes, allModes[:])

	return modes
}

// Label returns the display label of the mode.
func (m Mode) Label() string {
	if !m.valid() {
		return modeLabels[ModeUnknown]
	}

	return modeLabels[m]
}

func (m Mode) String() string {
	return m.Label()
}

// RGB returns the display colour identity of the mode.
func (m Mode) RGB() RGB {
	if !m.valid() {
		return modeColors[ModeUnknown]
	}

	return modeColors[m]
}

// Requestable reports whether the mode may be sent to the host.
func (m Mode) Requestable() bool {
	return m >= ModePerformance && m < ModeUnknown
}

func (m Mode) valid() bool {
	return m >= ModePerformance && m <= ModeUnknown
}

// ParseMode returns the requestable mode with the given label, ignoring case.
func ParseMode(s string) (Mode, error) {
	name := strings.TrimSpace(s)
	for _, m := range allModes {
		if strings.EqualFold(name, m.Label()) {
			return m, nil
		}
	}

	return ModeUnknown, fmt.Errorf("unknown mode %q", s)
}

// MarshalText encodes the mode as its lower-case label.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(m.Label())), nil
}
