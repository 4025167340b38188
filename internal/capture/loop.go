package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"rppg-dashboard/internal/model"
)

const (
	DefaultRetryDelay = 10 * time.Millisecond
	readWarnEvery     = time.Second
)

type Encoder interface {
	Encode(frame model.Frame) (model.EncodedFrameMessage, error)
}

// FrameSink receives encoded frames. Push must not block.
type FrameSink interface {
	Push(msg model.EncodedFrameMessage) bool
}

// DisplayFunc receives display frames. It must not block.
type DisplayFunc func(frame model.DisplayFrame)

type Stats struct {
	FramesCaptured uint64
	ReadFailures   uint64
	EncodeFailures uint64
	DisplayErrors  uint64
}

// Loop owns the camera for the duration of Run: it captures at a fixed
// cadence, hands a display copy of each frame to the UI side and queues the
// encoded frame for the uplink.
type Loop struct {
	logger       *slog.Logger
	open         OpenFunc
	device       DeviceConfig
	encoder      Encoder
	sink         FrameSink
	display      DisplayFunc
	previewWidth int
	clock        Clock
	retryDelay   time.Duration

	captured       atomic.Uint64
	readFailures   atomic.Uint64
	encodeFailures atomic.Uint64
	displayErrors  atomic.Uint64
}

func NewLoop(
	logger *slog.Logger,
	open OpenFunc,
	device DeviceConfig,
	encoder Encoder,
	sink FrameSink,
	display DisplayFunc,
	previewWidth int,
) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if device.FPS <= 0 {
		device.FPS = 30
	}
	return &Loop{
		logger:       logger,
		open:         open,
		device:       device,
		encoder:      encoder,
		sink:         sink,
		display:      display,
		previewWidth: previewWidth,
		clock:        RealClock(),
		retryDelay:   DefaultRetryDelay,
	}
}

// SetClock replaces the wall clock used for pacing.
func (l *Loop) SetClock(c Clock) {
	l.clock = c
}

// Run returns nil when ctx ends, an error wrapping ErrDeviceUnavailable when
// the camera cannot be opened, and an error wrapping ErrDeviceLost when the
// camera goes away mid-stream. The device is closed on every return path.
func (l *Loop) Run(ctx context.Context) error {
	dev, err := l.open(ctx, l.device)
	if err != nil {
		if errors.Is(err, ErrDeviceUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	defer func() {
		if err := dev.Close(); err != nil {
			l.logger.Warn("camera close failed", "error", err)
		}
		l.logger.Info("camera released", "frames", l.captured.Load(), "read_failures", l.readFailures.Load())
	}()
	l.logger.Info("camera opened", "index", l.device.Index, "fps", l.device.FPS)

	start := l.clock.Now()
	var (
		index        uint64
		lastReadWarn time.Time
	)
	for {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := dev.Read()
		if err != nil {
			if errors.Is(err, ErrDeviceLost) {
				return err
			}
			l.readFailures.Add(1)
			if now := l.clock.Now(); now.Sub(lastReadWarn) >= readWarnEvery {
				l.logger.Warn("camera read failed", "error", err, "failures", l.readFailures.Load())
				lastReadWarn = now
			}
			if l.clock.Sleep(ctx, l.retryDelay) != nil {
				return nil
			}
			continue
		}

		frame.Seq = index
		if frame.CapturedAt.IsZero() {
			frame.CapturedAt = l.clock.Now()
		}
		l.captured.Add(1)
		l.handle(frame)

		index++
		wait := untilDeadline(l.clock.Now(), Deadline(start, index, l.device.FPS))
		if l.clock.Sleep(ctx, wait) != nil {
			return nil
		}
	}
}

func (l *Loop) handle(frame model.Frame) {
	if l.display != nil {
		df, err := ToDisplay(frame, l.previewWidth)
		if err != nil {
			l.displayErrors.Add(1)
			l.logger.Debug("display conversion failed", "error", err)
		} else {
			l.display(df)
		}
	}

	msg, err := l.encoder.Encode(frame)
	if err != nil {
		l.encodeFailures.Add(1)
		l.logger.Warn("dropping frame", "seq", frame.Seq, "error", err)
		return
	}
	if evicted := l.sink.Push(msg); evicted {
		l.logger.Debug("uplink queue full, oldest frame evicted", "seq", frame.Seq)
	}
}

func (l *Loop) Stats() Stats {
	return Stats{
		FramesCaptured: l.captured.Load(),
		ReadFailures:   l.readFailures.Load(),
		EncodeFailures: l.encodeFailures.Load(),
		DisplayErrors:  l.displayErrors.Load(),
	}
}
