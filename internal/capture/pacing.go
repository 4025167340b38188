package capture

import "time"

// Deadline is the due time of frame index counted from a fixed start, so
// oversleeping on one frame does not push back the ones after it.
func Deadline(start time.Time, index uint64, fps float64) time.Time {
	return start.Add(time.Duration(float64(index) * float64(time.Second) / fps))
}

// untilDeadline clamps at zero when the loop is running late.
func untilDeadline(now, deadline time.Time) time.Duration {
	if d := deadline.Sub(now); d > 0 {
		return d
	}
	return 0
}
