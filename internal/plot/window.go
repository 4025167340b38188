package plot

import "rppg-dashboard/internal/model"

// DefaultWindowSize is the number of points kept on the chart.
const DefaultWindowSize = 500

// Window is the sliding window of the most recent samples driving the chart.
type Window struct {
	size   int
	times  []float64
	values []float64
}

func NewWindow(size int) *Window {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &Window{
		size:   size,
		times:  make([]float64, 0, size*2),
		values: make([]float64, 0, size*2),
	}
}

func (w *Window) Size() int {
	return w.size
}

func (w *Window) Len() int {
	return len(w.times)
}

// Append adds pairs and then discards the oldest entries beyond the cap.
func (w *Window) Append(times, values []float64) {
	n := len(times)
	if len(values) < n {
		n = len(values)
	}
	w.times = append(w.times, times[:n]...)
	w.values = append(w.values, values[:n]...)
	if over := len(w.times) - w.size; over > 0 {
		w.times = append(w.times[:0], w.times[over:]...)
		w.values = append(w.values[:0], w.values[over:]...)
	}
}

// Series returns a copy safe to hand to another goroutine.
func (w *Window) Series() model.PlotSeries {
	return model.PlotSeries{
		Times:  append([]float64(nil), w.times...),
		Values: append([]float64(nil), w.values...),
	}
}

func (w *Window) Reset() {
	w.times = w.times[:0]
	w.values = w.values[:0]
}
