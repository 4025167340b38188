package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"rppg-dashboard/internal/emitter"
)

func (d *Dashboard) run(ctx context.Context) error {
	if d.cfg.MQTTBroker != "" {
		client, err := emitter.Connect(ctx, d.cfg, d.logger.With("component", "mqtt"))
		if err != nil {
			d.logger.Warn("mqtt unavailable, vitals will not be published", "broker", d.cfg.MQTTBroker, "error", err)
		} else {
			d.mqttClient = client
			d.vitals = emitter.NewVitalsEmitter(d.logger.With("component", "vitals"), client, d.cfg.MQTTTopic, vitalsBuffer)
			d.board.SetVitalsSink(d.publishVitals)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.board.Run(gctx)
	})
	g.Go(func() error {
		// A worker failure is shown on the dashboard; it does not stop it.
		if err := d.worker.Run(gctx); err != nil {
			d.logger.Error("worker stopped", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		return d.runHealthLoop(gctx)
	})
	g.Go(func() error {
		return d.runProbeListener(gctx)
	})
	if d.feed != nil {
		g.Go(func() error {
			return d.feed.Run(gctx, d.cfg.FeedListenAddr)
		})
	}
	if d.vitals != nil {
		g.Go(func() error {
			return d.vitals.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (d *Dashboard) runHealthLoop(ctx context.Context) error {
	t := time.NewTicker(d.cfg.HealthInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			d.logHealth(d.healthState())
		}
	}
}

func (d *Dashboard) healthState() string {
	if !d.health.CameraOpen() || !d.health.StreamConnected() {
		return "degraded"
	}
	return "ok"
}

func (d *Dashboard) logHealth(status string) {
	d.logger.Log(context.Background(), slog.LevelDebug, "dashboard health", "status", status, "snapshot", d.health.Snapshot())
}

func (d *Dashboard) shutdown() {
	if d.mqttClient != nil {
		emitter.Disconnect(d.mqttClient)
	}
	d.health.SetStreamConnected(false)
	d.health.SetCameraOpen(false)
}
