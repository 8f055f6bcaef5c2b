package thermal

// Nominal clock used when the host does not report a maximum frequency.
const nominalMaxFreqGHz = 4.0

// State is a snapshot of the host thermal readings. A new State replaces the
// previous one on every successful poll.
type State struct {
	CPUTemp         float64
	KeyboardTemp    float64
	Mode            Mode
	PerfPct         int
	FanBoost        bool
	PlatformProfile string
	MaxFreqMHz      int
}

// Zone classifies the CPU temperature.
func (s State) Zone() Zone {
	return Classify(s.CPUTemp)
}

// FreqGHz estimates the current clock ceiling from the performance
// percentage. It never decreases as PerfPct grows.
func (s State) FreqGHz() float64 {
	maxGHz := nominalMaxFreqGHz
	if s.MaxFreqMHz > 0 {
		maxGHz = float64(s.MaxFreqMHz) / 1000
	}

	pct := s.PerfPct
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	return maxGHz * float64(pct) / 100
}
