package capture

import (
	"context"
	"errors"
	"time"

	"rppg-dashboard/internal/config"
	"rppg-dashboard/internal/model"
)

var (
	ErrDeviceUnavailable = errors.New("camera device unavailable")
	ErrFrameRead         = errors.New("camera frame read failed")
	ErrDeviceLost        = errors.New("camera device lost")
)

// Device is an opened camera. Read returns an error wrapping ErrFrameRead for
// transient failures and ErrDeviceLost once the device is gone.
type Device interface {
	Read() (model.Frame, error)
	Close() error
}

type DeviceConfig struct {
	Index  int
	Width  int
	Height int
	FPS    float64
}

type OpenFunc func(ctx context.Context, cfg DeviceConfig) (Device, error)

func DeviceConfigFrom(cfg config.Config) DeviceConfig {
	return DeviceConfig{
		Index:  cfg.CameraIndex,
		Width:  cfg.CameraWidth,
		Height: cfg.CameraHeight,
		FPS:    cfg.FPS,
	}
}

func OpenerFor(source config.CameraSource) OpenFunc {
	if source == config.CameraSourceSynthetic {
		return OpenSynthetic
	}
	return OpenGoCV
}

type Clock interface {
	Now() time.Time
	// Sleep returns ctx.Err() if ctx ends first.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
