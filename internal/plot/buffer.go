package plot

import "fmt"

type State int

const (
	// StateIdle means at most one sample is staged; nothing is drained.
	StateIdle State = iota
	StateDraining
)

func (s State) String() string {
	if s == StateDraining {
		return "draining"
	}
	return "idle"
}

// SampleBuffer stages (time, value) pairs between bursty arrivals and the
// fixed-cadence drain. It is owned by a single goroutine.
type SampleBuffer struct {
	times  []float64
	values []float64
}

func NewSampleBuffer() *SampleBuffer {
	return &SampleBuffer{}
}

// Append adds pairs in arrival order. Mismatched lengths are rejected whole.
func (b *SampleBuffer) Append(times, values []float64) error {
	if len(times) != len(values) {
		return fmt.Errorf("sample buffer: %d times for %d values", len(times), len(values))
	}
	b.times = append(b.times, times...)
	b.values = append(b.values, values...)
	return nil
}

func (b *SampleBuffer) Len() int {
	return len(b.times)
}

func (b *SampleBuffer) State() State {
	if len(b.times) > 1 {
		return StateDraining
	}
	return StateIdle
}

// Pop removes up to n pairs from the front. It returns nothing while Idle.
func (b *SampleBuffer) Pop(n int) (times, values []float64) {
	if b.State() != StateDraining || n <= 0 {
		return nil, nil
	}
	if n > len(b.times) {
		n = len(b.times)
	}
	times = append([]float64(nil), b.times[:n]...)
	values = append([]float64(nil), b.values[:n]...)

	b.times = compact(b.times, n)
	b.values = compact(b.values, n)
	return times, values
}

// compact drops the first n entries, reusing the backing array once the
// remainder is small enough to move cheaply.
func compact(s []float64, n int) []float64 {
	rest := s[n:]
	if len(rest) == 0 {
		return s[:0]
	}
	if cap(rest) < cap(s)/2 {
		return append(s[:0], rest...)
	}
	return rest
}
