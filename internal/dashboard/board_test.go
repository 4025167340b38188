package dashboard

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"rppg-dashboard/internal/config"
	"rppg-dashboard/internal/inference"
	"rppg-dashboard/internal/model"
	"rppg-dashboard/internal/telemetry"
)

type recorder struct {
	mu      sync.Mutex
	updates []model.Update
	vitals  []model.Vitals
}

func (r *recorder) publish(u model.Update) {
	r.mu.Lock()
	r.updates = append(r.updates, u)
	r.mu.Unlock()
}

func (r *recorder) report(v model.Vitals) {
	r.mu.Lock()
	r.vitals = append(r.vitals, v)
	r.mu.Unlock()
}

func (r *recorder) count(kind model.UpdateType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, u := range r.updates {
		if u.Type == kind {
			n++
		}
	}
	return n
}

func newTestBoard() (*Board, *recorder) {
	rec := &recorder{}
	b := NewBoard(testConfig(), testLogger(), NewMailbox(), NewHealthStatus(), telemetry.NewSimulator(rand.New(rand.NewSource(3))))
	b.SetPublisher(rec.publish)
	b.SetVitalsSink(rec.report)
	return b, rec
}

func samples(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func TestHeartRateNeedsSamples(t *testing.T) {
	b, rec := newTestBoard()

	b.HandleResult(inference.Result{Samples: []float64{0.1, 0.2}, HeartRate: "72", HasHeartRate: true})
	if got := b.HeartRate(); got != "72" {
		t.Fatalf("heart rate = %q", got)
	}

	b.HandleResult(inference.Result{HeartRate: "90", HasHeartRate: true})
	if got := b.HeartRate(); got != "72" {
		t.Fatalf("heart rate changed without samples: %q", got)
	}

	b.HandleResult(inference.Result{Samples: []float64{0.3}})
	if got := b.HeartRate(); got != "72" {
		t.Fatalf("heart rate cleared by reply without hr: %q", got)
	}
	if rec.count(model.UpdateTypeHeartRate) != 1 || len(rec.vitals) != 1 {
		t.Fatalf("expected one heart rate update and one vitals report, got %d and %d",
			rec.count(model.UpdateTypeHeartRate), len(rec.vitals))
	}
}

func TestDrainTickMovesThreePerTickAndKeepsOne(t *testing.T) {
	b, rec := newTestBoard()
	b.HandleResult(inference.Result{Samples: samples(7)})

	wantLens := []int{3, 6, 6, 6}
	for i, want := range wantLens {
		b.DrainTick()
		if got := len(b.Series().Values); got != want {
			t.Fatalf("tick %d: window has %d points, want %d", i, got, want)
		}
	}
	if b.buffer.Len() != 1 {
		t.Fatalf("expected one staged sample to stay behind, have %d", b.buffer.Len())
	}
	if rec.count(model.UpdateTypePlot) != 2 {
		t.Fatalf("expected 2 plot updates, got %d", rec.count(model.UpdateTypePlot))
	}

	b.HandleResult(inference.Result{Samples: samples(1)})
	b.DrainTick()
	if got := len(b.Series().Values); got != 8 {
		t.Fatalf("window has %d points after second batch, want 8", got)
	}
}

func TestWindowStaysBounded(t *testing.T) {
	b, _ := newTestBoard()
	for i := 0; i < 3; i++ {
		b.HandleResult(inference.Result{Samples: samples(inference.MaxSamples)})
	}
	for b.buffer.Len() > 1 {
		b.DrainTick()
	}
	series := b.Series()
	if len(series.Values) != 500 || len(series.Times) != 500 {
		t.Fatalf("window not capped: %d values %d times", len(series.Values), len(series.Times))
	}
	for i := 1; i < len(series.Times); i++ {
		if series.Times[i] < series.Times[i-1] {
			t.Fatalf("times not ordered at %d: %v < %v", i, series.Times[i], series.Times[i-1])
		}
	}
}

func TestEveryStagedSampleReachesThePlot(t *testing.T) {
	t.Setenv("PLOT_TIME_AXIS", "")
	defaults, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	for _, axis := range []config.TimeAxis{defaults.PlotTimeAxis, config.TimeAxisBackend} {
		cfg := testConfig()
		cfg.PlotTimeAxis = axis
		b := NewBoard(cfg, testLogger(), NewMailbox(), NewHealthStatus(), telemetry.NewSimulator(rand.New(rand.NewSource(3))))

		batches := [][]float64{{100, 101, 102}, {0, 1, 2}, {1, 2, 3}}
		for i, ts := range batches {
			base := float64(i) * 0.3
			b.HandleResult(inference.Result{
				Samples:      []float64{base + 0.1, base + 0.2, base + 0.3},
				Timestamps:   ts,
				HeartRate:    "74",
				HasHeartRate: true,
			})
		}
		if got := b.buffer.Len(); got != 9 {
			t.Fatalf("%s: staged %d of 9 samples", axis, got)
		}
		for b.buffer.Len() > 1 {
			b.DrainTick()
		}
		values := b.Series().Values
		if len(values) != 8 {
			t.Fatalf("%s: window has %d points, want 8", axis, len(values))
		}
		for i := 1; i < len(values); i++ {
			if values[i] <= values[i-1] {
				t.Fatalf("%s: arrival order broken at %d: %v", axis, i, values)
			}
		}
	}
}

func TestClockTickDrainsFuel(t *testing.T) {
	b, rec := newTestBoard()
	before := b.sim.Snapshot().FuelPercent

	b.updateClock(true)
	if len(rec.vitals) != 1 {
		t.Fatalf("expected a vitals report on clock tick")
	}
	if got := rec.vitals[0].FuelPercent; got != before-0.5 {
		t.Fatalf("fuel = %v, want %v", got, before-0.5)
	}
	if rec.count(model.UpdateTypeClock) != 1 || rec.count(model.UpdateTypeTelemetry) != 1 {
		t.Fatalf("missing clock/telemetry updates")
	}
}

func TestSnapshotCarriesState(t *testing.T) {
	b, _ := newTestBoard()
	b.HandleResult(inference.Result{Samples: samples(4), HeartRate: "68", HasHeartRate: true})
	b.SetStatus("Connected to server")

	kinds := map[model.UpdateType]bool{}
	for _, u := range b.Snapshot() {
		kinds[u.Type] = true
	}
	for _, want := range []model.UpdateType{
		model.UpdateTypeConfig, model.UpdateTypeClock, model.UpdateTypeTelemetry,
		model.UpdateTypePlot, model.UpdateTypeHeartRate, model.UpdateTypeStatus,
	} {
		if !kinds[want] {
			t.Fatalf("snapshot missing %s", want)
		}
	}
	if b.Status()["status"] != "Connected to server" {
		t.Fatalf("status not recorded: %v", b.Status())
	}
}

func TestBoardRunConsumesMailbox(t *testing.T) {
	b, rec := newTestBoard()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	if err := b.mailbox.SendResult(ctx, inference.Result{Samples: samples(10), HeartRate: "75", HasHeartRate: true}); err != nil {
		t.Fatalf("send: %v", err)
	}
	b.mailbox.OfferStatus("Connected to server")
	b.mailbox.OfferFrame(model.DisplayFrame{Seq: 9, CapturedAt: time.Now()})

	ok := waitFor(2*time.Second, func() bool {
		return len(b.Series().Values) == 9 && b.HeartRate() == "75" && b.Status()["last_frame_seq"] == uint64(9)
	})
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if !ok {
		t.Fatalf("board did not settle: points=%d hr=%q status=%v", len(b.Series().Values), b.HeartRate(), b.Status())
	}
	if rec.count(model.UpdateTypeStatus) != 1 {
		t.Fatalf("expected one status update")
	}
}
