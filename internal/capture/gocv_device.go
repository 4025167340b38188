//go:build gocv

package capture

import (
	"context"
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"rppg-dashboard/internal/model"
)

type gocvDevice struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
}

func OpenGoCV(_ context.Context, cfg DeviceConfig) (Device, error) {
	capture, err := gocv.OpenVideoCapture(cfg.Index)
	if err != nil {
		return nil, fmt.Errorf("%w: open camera %d: %v", ErrDeviceUnavailable, cfg.Index, err)
	}
	if !capture.IsOpened() {
		_ = capture.Close()
		return nil, fmt.Errorf("%w: camera %d did not open", ErrDeviceUnavailable, cfg.Index)
	}
	if cfg.Width > 0 && cfg.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	if cfg.FPS > 0 {
		capture.Set(gocv.VideoCaptureFPS, cfg.FPS)
	}
	return &gocvDevice{capture: capture, mat: gocv.NewMat()}, nil
}

func (d *gocvDevice) Read() (model.Frame, error) {
	if ok := d.capture.Read(&d.mat); !ok {
		if !d.capture.IsOpened() {
			return model.Frame{}, fmt.Errorf("%w: capture closed", ErrDeviceLost)
		}
		return model.Frame{}, fmt.Errorf("%w: no frame", ErrFrameRead)
	}
	if d.mat.Empty() {
		return model.Frame{}, fmt.Errorf("%w: empty frame", ErrFrameRead)
	}

	var format model.PixelFormat
	switch d.mat.Channels() {
	case 3:
		format = model.PixelFormatBGR24
	case 1:
		format = model.PixelFormatGray8
	default:
		return model.Frame{}, fmt.Errorf("%w: %d channels", ErrFrameRead, d.mat.Channels())
	}
	return model.Frame{
		CapturedAt: time.Now(),
		Width:      d.mat.Cols(),
		Height:     d.mat.Rows(),
		Format:     format,
		Data:       d.mat.ToBytes(),
	}, nil
}

func (d *gocvDevice) Close() error {
	_ = d.mat.Close()
	return d.capture.Close()
}
