package capture

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"rppg-dashboard/internal/model"
)

// syntheticPulseHz is 72 bpm.
const syntheticPulseHz = 1.2

// SyntheticDevice renders a moving gradient whose brightness pulses at a
// resting heart rate, for running without a camera.
type SyntheticDevice struct {
	width  int
	height int
	fps    float64
	frame  uint64
	closed atomic.Bool
}

func OpenSynthetic(_ context.Context, cfg DeviceConfig) (Device, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: synthetic size %dx%d", ErrDeviceUnavailable, cfg.Width, cfg.Height)
	}
	fps := cfg.FPS
	if fps <= 0 {
		fps = 30
	}
	return &SyntheticDevice{width: cfg.Width, height: cfg.Height, fps: fps}, nil
}

func (d *SyntheticDevice) Read() (model.Frame, error) {
	if d.closed.Load() {
		return model.Frame{}, fmt.Errorf("%w: synthetic device closed", ErrDeviceLost)
	}

	t := float64(d.frame) / d.fps
	pulse := 12 * math.Sin(2*math.Pi*syntheticPulseHz*t)
	shift := int(d.frame) % d.width
	d.frame++

	data := make([]byte, d.width*d.height*3)
	for y := 0; y < d.height; y++ {
		for x := 0; x < d.width; x++ {
			i := (y*d.width + x) * 3
			g := float64((x+shift)%d.width) / float64(d.width)
			data[i] = clampByte(80 + 60*g + pulse/2)
			data[i+1] = clampByte(110 + 40*g + pulse)
			data[i+2] = clampByte(150 + float64(y%64) + pulse)
		}
	}
	return model.Frame{
		CapturedAt: time.Now(),
		Width:      d.width,
		Height:     d.height,
		Format:     model.PixelFormatBGR24,
		Data:       data,
	}, nil
}

func (d *SyntheticDevice) Close() error {
	d.closed.Store(true)
	return nil
}

func clampByte(v float64) byte {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return byte(v)
	}
}
