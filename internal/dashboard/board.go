package dashboard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"rppg-dashboard/internal/config"
	"rppg-dashboard/internal/inference"
	"rppg-dashboard/internal/model"
	"rppg-dashboard/internal/plot"
	"rppg-dashboard/internal/telemetry"
)

// Board owns every piece of dashboard state. All mutation happens on the
// goroutine running Run; other goroutines only read through Snapshot and
// Status.
type Board struct {
	cfg     config.Config
	logger  *slog.Logger
	mailbox *Mailbox
	health  *HealthStatus
	sim     *telemetry.Simulator
	now     func() time.Time

	buffer *plot.SampleBuffer
	axis   *plot.Axis

	publish func(model.Update)
	vitals  func(model.Vitals)
	preview func(model.DisplayFrame)

	mu        sync.RWMutex
	window    *plot.Window
	heartRate string
	status    string
	clock     model.Clock
	telemetry model.Telemetry
	frames    uint64
	lastFrame uint64
	results   uint64
}

func NewBoard(cfg config.Config, logger *slog.Logger, mailbox *Mailbox, health *HealthStatus, sim *telemetry.Simulator) *Board {
	if logger == nil {
		logger = slog.Default()
	}
	if health == nil {
		health = NewHealthStatus()
	}
	if sim == nil {
		sim = telemetry.NewSimulator(nil)
	}
	return &Board{
		cfg:       cfg,
		logger:    logger,
		mailbox:   mailbox,
		health:    health,
		sim:       sim,
		now:       time.Now,
		buffer:    plot.NewSampleBuffer(),
		axis:      plot.NewAxis(cfg.PlotTimeAxis),
		window:    plot.NewWindow(cfg.PlotWindow),
		telemetry: sim.Snapshot(),
		publish:   func(model.Update) {},
		vitals:    func(model.Vitals) {},
		preview:   func(model.DisplayFrame) {},
	}
}

// SetPublisher routes dashboard updates to fn. fn must not block.
func (b *Board) SetPublisher(fn func(model.Update)) {
	if fn != nil {
		b.publish = fn
	}
}

// SetVitalsSink routes vitals reports to fn. fn must not block.
func (b *Board) SetVitalsSink(fn func(model.Vitals)) {
	if fn != nil {
		b.vitals = fn
	}
}

// SetPreviewSink receives every display frame the board accepts.
func (b *Board) SetPreviewSink(fn func(model.DisplayFrame)) {
	if fn != nil {
		b.preview = fn
	}
}

func (b *Board) Run(ctx context.Context) error {
	drain := time.NewTicker(b.cfg.DrainInterval)
	defer drain.Stop()
	clock := time.NewTicker(b.cfg.ClockInterval)
	defer clock.Stop()
	speed := time.NewTicker(b.cfg.SpeedInterval)
	defer speed.Stop()

	b.updateClock(false)
	for {
		select {
		case <-ctx.Done():
			return nil
		case df := <-b.mailbox.frames:
			b.handleFrame(df)
		case r := <-b.mailbox.results:
			b.HandleResult(r)
		case msg := <-b.mailbox.status:
			b.SetStatus(msg)
		case <-drain.C:
			b.DrainTick()
		case <-clock.C:
			b.updateClock(true)
		case <-speed.C:
			b.updateSpeed()
		}
	}
}

func (b *Board) handleFrame(df model.DisplayFrame) {
	b.mu.Lock()
	b.frames++
	b.lastFrame = df.Seq
	b.mu.Unlock()
	b.health.MarkFrame(df.CapturedAt)
	b.preview(df)
}

// HandleResult stages the samples of one inference reply. The heart rate is
// only replaced when the reply carries samples as well.
func (b *Board) HandleResult(r inference.Result) {
	at := b.now()
	b.health.MarkInference(at)
	if !r.HasSamples() {
		return
	}

	times, values := b.axis.Assign(r.Samples, r.Timestamps)
	if err := b.buffer.Append(times, values); err != nil {
		b.logger.Warn("discarding inference samples", "error", err)
	}

	b.mu.Lock()
	b.results++
	changed := r.HasHeartRate && r.HeartRate != b.heartRate
	if r.HasHeartRate {
		b.heartRate = r.HeartRate
	}
	b.mu.Unlock()

	if changed {
		b.publish(model.NewUpdate(model.UpdateTypeHeartRate, at, model.HeartRate{BPM: r.HeartRate}))
		b.vitals(b.vitalsReport(at))
	}
}

// DrainTick moves at most one chunk of staged samples into the plot window.
func (b *Board) DrainTick() {
	if b.buffer.State() != plot.StateDraining {
		return
	}
	b.mu.Lock()
	moved := plot.Drain(b.buffer, b.window, b.cfg.DrainChunk)
	series := b.window.Series()
	b.mu.Unlock()
	if moved {
		b.publish(model.NewUpdate(model.UpdateTypePlot, b.now(), series))
	}
}

func (b *Board) SetStatus(msg string) {
	at := b.now()
	b.mu.Lock()
	b.status = msg
	b.mu.Unlock()
	b.health.MarkStatus(at)
	b.logger.Info("status", "message", msg)
	b.publish(model.NewUpdate(model.UpdateTypeStatus, at, model.Status{Message: msg}))
}

func (b *Board) updateClock(drainFuel bool) {
	at := b.now()
	clock := telemetry.FormatClock(at)
	tel := b.sim.Snapshot()
	if drainFuel {
		tel = b.sim.TickFuel()
	}
	b.mu.Lock()
	b.clock = clock
	b.telemetry = tel
	b.mu.Unlock()

	b.publish(model.NewUpdate(model.UpdateTypeClock, at, clock))
	b.publish(model.NewUpdate(model.UpdateTypeTelemetry, at, tel))
	if drainFuel {
		b.vitals(b.vitalsReport(at))
	}
}

func (b *Board) updateSpeed() {
	tel := b.sim.TickSpeed()
	b.mu.Lock()
	b.telemetry = tel
	b.mu.Unlock()
	b.publish(model.NewUpdate(model.UpdateTypeTelemetry, b.now(), tel))
}

func (b *Board) vitalsReport(at time.Time) model.Vitals {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return model.Vitals{
		ClientID:    b.cfg.ClientID,
		HeartRate:   b.heartRate,
		SpeedKPH:    b.telemetry.SpeedKPH,
		FuelPercent: b.telemetry.FuelPercent,
		At:          at.UTC(),
	}
}

func (b *Board) HeartRate() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.heartRate
}

func (b *Board) Series() model.PlotSeries {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.window.Series()
}

// Snapshot renders the current state as the updates a new feed subscriber
// needs.
func (b *Board) Snapshot() []model.Update {
	at := b.now()
	b.mu.RLock()
	defer b.mu.RUnlock()
	updates := []model.Update{
		model.NewUpdate(model.UpdateTypeConfig, at, map[string]any{
			"client_id":   b.cfg.ClientID,
			"version":     b.cfg.Version,
			"plot_window": b.window.Size(),
			"time_axis":   string(b.cfg.PlotTimeAxis),
			"max_speed":   telemetry.MaxSpeedKPH,
		}),
		model.NewUpdate(model.UpdateTypeClock, at, b.clock),
		model.NewUpdate(model.UpdateTypeTelemetry, at, b.telemetry),
		model.NewUpdate(model.UpdateTypePlot, at, b.window.Series()),
	}
	if b.heartRate != "" {
		updates = append(updates, model.NewUpdate(model.UpdateTypeHeartRate, at, model.HeartRate{BPM: b.heartRate}))
	}
	if b.status != "" {
		updates = append(updates, model.NewUpdate(model.UpdateTypeStatus, at, model.Status{Message: b.status}))
	}
	return updates
}

func (b *Board) Status() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return map[string]any{
		"heart_rate":     b.heartRate,
		"status":         b.status,
		"frames":         b.frames,
		"last_frame_seq": b.lastFrame,
		"results":        b.results,
		"plot_points":    b.window.Len(),
		"telemetry":      b.telemetry,
		"clock":          b.clock,
	}
}
