package metrics

import (
	"context"
	"time"

	"codeberg.org/mutker/thermalctl/internal/thermal"
)

// Collector records one sample per executed poll tick. Samples are never
// read back by the daemon.
type Collector interface {
	Record(ctx context.Context, sample *Sample) error
	Close() error
}

// Repository defines the interface for sample storage
type Repository interface {
	Record(sample *Sample) error
	Close() error
}

// Sample is one telemetry row.
type Sample struct {
	Timestamp    time.Time
	RunID        string
	CPUTemp      float64
	KeyboardTemp float64
	Zone         thermal.Zone
	Mode         thermal.Mode
	PerfPct      int
	FanBoost     bool
	Target       float64
	AutoControl  bool
	Action       string
	Error        string
}
