package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"rppg-dashboard/internal/capture"
	"rppg-dashboard/internal/config"
	"rppg-dashboard/internal/emitter"
	"rppg-dashboard/internal/feed"
	"rppg-dashboard/internal/model"
	"rppg-dashboard/internal/stream"
	"rppg-dashboard/internal/telemetry"
)

const vitalsBuffer = 16

type Dashboard struct {
	cfg     config.Config
	logger  *slog.Logger
	health  *HealthStatus
	mailbox *Mailbox
	board   *Board
	worker  *Worker
	feed    *feed.Server

	mqttClient mqtt.Client
	vitals     *emitter.VitalsEmitter
}

func New(cfg config.Config, logger *slog.Logger) (*Dashboard, error) {
	tlsCfg, err := cfg.TLSConfig()
	if err != nil {
		return nil, fmt.Errorf("tls config: %w", err)
	}
	dialer := stream.NewDialerFromConfig(cfg, tlsCfg, logger)
	encoder := stream.NewFrameEncoder(cfg.JPEGQuality)
	return newDashboard(cfg, logger, capture.OpenerFor(cfg.CameraSource), encoder, dialer), nil
}

func newDashboard(cfg config.Config, logger *slog.Logger, open capture.OpenFunc, encoder capture.Encoder, dialer stream.Dialer) *Dashboard {
	health := NewHealthStatus()
	mailbox := NewMailbox()
	board := NewBoard(cfg, logger.With("component", "board"), mailbox, health, telemetry.NewSimulator(nil))
	d := &Dashboard{
		cfg:     cfg,
		logger:  logger,
		health:  health,
		mailbox: mailbox,
		board:   board,
		worker:  NewWorker(cfg, logger.With("component", "worker"), mailbox, health, open, encoder, dialer),
	}
	if cfg.FeedListenAddr != "" {
		d.feed = feed.NewServer(logger.With("component", "feed"), d.statusSnapshot, board.Snapshot)
		board.SetPublisher(d.feed.Publish)
		board.SetPreviewSink(d.feed.SetFrame)
	}
	return d
}

func (d *Dashboard) Run(ctx context.Context) error {
	d.logger.Info("starting rppg-dashboard",
		"version", d.cfg.Version,
		"client_id", d.cfg.ClientID,
		"stream_mode", d.cfg.StreamMode,
		"camera", d.cfg.CameraSource)
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- d.run(runCtx)
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case runErr = <-runErrCh:
	case sig := <-sigCh:
		d.logger.Info("shutdown signal received, starting graceful shutdown", "signal", sig.String(), "timeout", d.cfg.ShutdownTimeout)
		cancelRun()

		graceTimer := time.NewTimer(d.cfg.ShutdownTimeout)
		defer graceTimer.Stop()

		select {
		case runErr = <-runErrCh:
		case sig2 := <-sigCh:
			d.logger.Warn("second signal received, forcing immediate shutdown", "signal", sig2.String())
			runErr = context.Canceled
		case <-graceTimer.C:
			d.logger.Warn("graceful shutdown timeout reached, forcing shutdown", "timeout", d.cfg.ShutdownTimeout)
			runErr = context.DeadlineExceeded
		}
	}

	d.shutdown()

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return runErr
	}
	d.logger.Info("rppg-dashboard stopped")
	return nil
}

func (d *Dashboard) statusSnapshot() map[string]any {
	out := map[string]any{
		"version":   d.cfg.Version,
		"client_id": d.cfg.ClientID,
		"health":    d.health.Snapshot(),
		"dashboard": d.board.Status(),
	}
	if d.vitals != nil {
		out["vitals"] = d.vitals.Stats()
	}
	return out
}

// Board exposes the dashboard state owner.
func (d *Dashboard) Board() *Board {
	return d.board
}

func BuildLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	hOpts := &slog.HandlerOptions{Level: level}
	if cfg.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stdout, hOpts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, hOpts))
}

func (d *Dashboard) publishVitals(v model.Vitals) {
	if !d.vitals.Offer(v) {
		d.logger.Debug("vitals report dropped", "topic", d.vitals.Topic())
	}
}
