package plot

import "rppg-dashboard/internal/config"

// SyntheticStep is the time span assigned to each synthesized batch.
const SyntheticStep = 10.0

// Axis assigns plot times to incoming samples.
type Axis struct {
	mode  config.TimeAxis
	begin float64
}

func NewAxis(mode config.TimeAxis) *Axis {
	if mode == "" {
		mode = config.TimeAxisSynthetic
	}
	return &Axis{mode: mode}
}

// Assign pairs every sample with a time, keeping arrival order. Backend mode
// uses the reply's timestamps as sent; when their count does not match the
// samples the batch gets synthetic times instead.
func (a *Axis) Assign(samples, timestamps []float64) (times, values []float64) {
	if len(samples) == 0 {
		return nil, nil
	}
	if a.mode == config.TimeAxisBackend && len(timestamps) == len(samples) {
		times = append([]float64(nil), timestamps...)
		values = append([]float64(nil), samples...)
		return times, values
	}
	return a.synthesize(samples)
}

func (a *Axis) synthesize(samples []float64) (times, values []float64) {
	times = linspace(a.begin, a.begin+SyntheticStep, len(samples))
	values = append([]float64(nil), samples...)
	a.begin += SyntheticStep
	return times, values
}

func linspace(start, stop float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return out
	}
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	out[n-1] = stop
	return out
}
