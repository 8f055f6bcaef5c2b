// Package history keeps a fixed-capacity rolling window of paired CPU and
// keyboard temperature samples.
package history

import (
	"iter"
	"math"
)

// DefaultCapacity covers two minutes at the default two second poll period.
const DefaultCapacity = 60

// Sample is one paired reading.
type Sample struct {
	CPU      float64
	Keyboard float64
}

// Series summarizes one temperature series.
type Series struct {
	Min, Max, Avg float64
}

// Stats summarizes both series of the window.
type Stats struct {
	CPU      Series
	Keyboard Series
}

// History is a ring buffer of samples. Once full, every push overwrites the
// oldest sample, so both series always have the same length.
type History struct {
	buf   []Sample
	start int
	n     int
}

// New creates an empty history. A capacity below one uses DefaultCapacity.
func New(capacity int) *History {
	if capacity < 1 {
		capacity = DefaultCapacity
	}

	return &History{buf: make([]Sample, capacity)}
}

// Push appends a sample, evicting the oldest one when the window is full.
func (h *History) Push(cpu, kbd float64) {
	s := Sample{CPU: cpu, Keyboard: kbd}
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = s
		h.n++
		return
	}

	h.buf[h.start] = s
	h.start = (h.start + 1) % len(h.buf)
}

func (h *History) Len() int { return h.n }

func (h *History) Cap() int { return len(h.buf) }

func (h *History) IsEmpty() bool { return h.n == 0 }

// At returns the i-th retained sample, 0 being the oldest. ok is false when
// i is outside [0, Len()).
func (h *History) At(i int) (Sample, bool) {
	if i < 0 || i >= h.n {
		return Sample{}, false
	}

	return h.at(i), true
}

func (h *History) at(i int) Sample {
	return h.buf[(h.start+i)%len(h.buf)]
}

// Last returns the newest sample.
func (h *History) Last() (Sample, bool) {
	if h.n == 0 {
		return Sample{}, false
	}

	return h.at(h.n - 1), true
}

// Samples returns a copy of the retained samples, oldest first.
func (h *History) Samples() []Sample {
	out := make([]Sample, h.n)
	for i := range out {
		out[i] = h.at(i)
	}

	return out
}

// CPUPoints yields (index, cpu temperature) pairs, oldest first.
func (h *History) CPUPoints() iter.Seq2[int, float64] {
	return h.points(func(s Sample) float64 { return s.CPU })
}

// KbdPoints yields (index, keyboard temperature) pairs, oldest first.
func (h *History) KbdPoints() iter.Seq2[int, float64] {
	return h.points(func(s Sample) float64 { return s.Keyboard })
}

func (h *History) points(pick func(Sample) float64) iter.Seq2[int, float64] {
	return func(yield func(int, float64) bool) {
		for i := 0; i < h.n; i++ {
			if !yield(i, pick(h.at(i))) {
				return
			}
		}
	}
}

// Stats returns min/max/avg for both series. It is the zero value when the
// history is empty.
func (h *History) Stats() Stats {
	if h.n == 0 {
		return Stats{}
	}

	return Stats{
		CPU:      summarize(h.CPUPoints()),
		Keyboard: summarize(h.KbdPoints()),
	}
}

func summarize(points iter.Seq2[int, float64]) Series {
	s := Series{Min: math.MaxFloat64, Max: -math.MaxFloat64}
	count := 0
	sum := 0.0
	for _, v := range points {
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
		sum += v
		count++
	}
	s.Avg = sum / float64(count)

	return s
}
