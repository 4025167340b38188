package dashboard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"rppg-dashboard/internal/capture"
	"rppg-dashboard/internal/config"
	"rppg-dashboard/internal/model"
	"rppg-dashboard/internal/stream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.Config {
	return config.Config{
		ClientID:        "goClient",
		FPS:             30,
		JPEGQuality:     70,
		FrameBufferSize: 30,
		CameraSource:    config.CameraSourceSynthetic,
		CameraWidth:     8,
		CameraHeight:    6,
		StreamMode:      config.StreamModeWebSocket,
		ShutdownTimeout: 2 * time.Second,
		DrainInterval:   5 * time.Millisecond,
		DrainChunk:      3,
		PlotWindow:      500,
		PlotTimeAxis:    config.TimeAxisSynthetic,
		ClockInterval:   time.Hour,
		SpeedInterval:   time.Hour,
		HealthInterval:  time.Hour,
		Version:         config.HardcodedVersion,
	}
}

var errFakeClosed = errors.New("fake conn closed")

type fakeConn struct {
	inbound     chan []byte
	readErr     error
	blockWrites bool
	reply       func(payload []byte) []byte

	writeStarted chan struct{}
	startOnce    sync.Once
	writes       atomic.Uint64

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound:      make(chan []byte, 64),
		writeStarted: make(chan struct{}),
		closed:       make(chan struct{}),
	}
}

func (c *fakeConn) Write(ctx context.Context, payload []byte) error {
	c.startOnce.Do(func() { close(c.writeStarted) })
	if c.blockWrites {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closed:
			return errFakeClosed
		}
	}
	c.writes.Add(1)
	if c.reply != nil {
		select {
		case c.inbound <- c.reply(payload):
		default:
		}
	}
	return nil
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	if c.readErr != nil {
		return nil, c.readErr
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, errFakeClosed
	case p := <-c.inbound:
		return p, nil
	}
}

func (c *fakeConn) Close(string) error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type fakeDialer struct {
	dials atomic.Int64
	dial  func(n int64) (stream.Conn, error)
}

func (d *fakeDialer) Dial(ctx context.Context) (stream.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.dial(d.dials.Add(1))
}

func (d *fakeDialer) Target() string { return "fake-backend" }

func dialerFor(conn *fakeConn) *fakeDialer {
	return &fakeDialer{dial: func(int64) (stream.Conn, error) { return conn, nil }}
}

type fakeCamera struct {
	closed atomic.Bool
}

func (c *fakeCamera) Read() (model.Frame, error) {
	if c.closed.Load() {
		return model.Frame{}, capture.ErrDeviceLost
	}
	return model.Frame{Width: 4, Height: 2, Format: model.PixelFormatBGR24, Data: make([]byte, 4*2*3)}, nil
}

func (c *fakeCamera) Close() error {
	c.closed.Store(true)
	return nil
}

func openCamera(cam *fakeCamera) capture.OpenFunc {
	return func(context.Context, capture.DeviceConfig) (capture.Device, error) { return cam, nil }
}

func drainStatuses(m *Mailbox) []string {
	var out []string
	for {
		select {
		case msg := <-m.status:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
