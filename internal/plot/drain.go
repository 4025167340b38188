package plot

// DefaultChunk is how many pairs one tick moves into the window.
const DefaultChunk = 3

// Drain runs one tick of the drain cycle. It reports whether the window
// changed and the chart needs a push.
func Drain(buf *SampleBuffer, win *Window, chunk int) bool {
	times, values := buf.Pop(chunk)
	if len(times) == 0 {
		return false
	}
	win.Append(times, values)
	return true
}
