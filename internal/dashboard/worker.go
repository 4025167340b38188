package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"rppg-dashboard/internal/capture"
	"rppg-dashboard/internal/config"
	"rppg-dashboard/internal/inference"
	"rppg-dashboard/internal/stream"
)

// Worker runs the capture loop and the backend session as one unit. Either
// side failing stops the other; the camera and the connection are released
// before Run returns.
type Worker struct {
	cfg     config.Config
	logger  *slog.Logger
	mailbox *Mailbox
	health  *HealthStatus
	parser  *inference.Parser
	open    capture.OpenFunc
	encoder capture.Encoder
	dialer  stream.Dialer
}

func NewWorker(
	cfg config.Config,
	logger *slog.Logger,
	mailbox *Mailbox,
	health *HealthStatus,
	open capture.OpenFunc,
	encoder capture.Encoder,
	dialer stream.Dialer,
) *Worker {
	return &Worker{
		cfg:     cfg,
		logger:  logger,
		mailbox: mailbox,
		health:  health,
		parser:  inference.NewParser(logger),
		open:    open,
		encoder: encoder,
		dialer:  dialer,
	}
}

func (w *Worker) Run(ctx context.Context) error {
	queue := stream.NewFrameQueue(w.cfg.FrameBufferSize)
	loop := capture.NewLoop(
		w.logger.With("component", "capture"),
		w.openCamera,
		capture.DeviceConfigFrom(w.cfg),
		w.encoder,
		queue,
		w.mailbox.OfferFrame,
		w.cfg.PreviewWidth,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer queue.Close()
		err := loop.Run(gctx)
		w.health.SetCameraOpen(false)
		switch {
		case errors.Is(err, capture.ErrDeviceUnavailable):
			w.status(fmt.Sprintf("Cannot open camera: %v", err))
		case err != nil:
			w.status(fmt.Sprintf("Camera disconnected: %v", err))
		}
		return err
	})
	g.Go(func() error {
		return w.runUplink(gctx, queue)
	})

	err := g.Wait()
	stats := loop.Stats()
	w.logger.Info("worker stopped",
		"frames", stats.FramesCaptured,
		"read_failures", stats.ReadFailures,
		"encode_failures", stats.EncodeFailures,
		"queue_evicted", queue.Evicted(),
		"parse_failures", w.parser.Failures())
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (w *Worker) openCamera(ctx context.Context, dc capture.DeviceConfig) (capture.Device, error) {
	dev, err := w.open(ctx, dc)
	if err != nil {
		return nil, err
	}
	w.health.SetCameraOpen(true)
	return dev, nil
}

// runUplink owns the backend connection. With RECONNECT_INTERVAL unset a
// failed session ends the worker.
func (w *Worker) runUplink(ctx context.Context, queue *stream.FrameQueue) error {
	for {
		connected, err := w.runSession(ctx, queue)
		if ctx.Err() != nil || queue.Closed() {
			return nil
		}
		if err == nil {
			err = errors.New("session ended")
		}
		if connected {
			w.status(fmt.Sprintf("Server connection closed: %v", err))
		} else {
			w.status(fmt.Sprintf("Cannot connect to server: %v", err))
		}
		if w.cfg.ReconnectInterval <= 0 {
			return err
		}

		w.logger.Warn("backend session failed, reconnecting", "error", err, "in", w.cfg.ReconnectInterval)
		t := time.NewTimer(w.cfg.ReconnectInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (w *Worker) runSession(ctx context.Context, queue *stream.FrameQueue) (bool, error) {
	w.status(fmt.Sprintf("Connecting to %s", w.dialer.Target()))
	conn, err := w.dialer.Dial(ctx)
	if err != nil {
		return false, err
	}
	w.health.SetStreamConnected(true)
	defer w.health.SetStreamConnected(false)
	w.status("Connected to server")

	session := stream.NewSession(conn, queue, func(payload []byte) {
		w.deliver(ctx, payload)
	}, w.logger.With("component", "session"))
	return true, session.Run(ctx)
}

// deliver parses one backend reply and hands it to the board in arrival order.
func (w *Worker) deliver(ctx context.Context, payload []byte) {
	result := w.parser.Parse(payload)
	if !result.HasSamples() && !result.HasHeartRate {
		return
	}
	if err := w.mailbox.SendResult(ctx, result); err != nil {
		w.logger.Debug("inference result dropped on shutdown", "error", err)
	}
}

func (w *Worker) status(msg string) {
	if !w.mailbox.OfferStatus(msg) {
		w.logger.Debug("status dropped", "message", msg)
	}
}
