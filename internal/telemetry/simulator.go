package telemetry

import (
	"math/rand"
	"sync"
	"time"

	"rppg-dashboard/internal/model"
)

const (
	MinSpeedKPH  = 60
	MaxCruiseKPH = 80
	MaxSpeedKPH  = 240
	FuelPerTick  = 0.5

	minStartFuel = 60
	maxStartFuel = 80
)

// Simulator produces fake vehicle telemetry: a speed jittering between 60
// and 80 km/h and a fuel level that drains on every clock tick.
type Simulator struct {
	mu    sync.Mutex
	rng   *rand.Rand
	speed int
	fuel  float64
}

func NewSimulator(rng *rand.Rand) *Simulator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Simulator{
		rng:  rng,
		fuel: float64(minStartFuel + rng.Intn(maxStartFuel-minStartFuel+1)),
	}
}

// TickSpeed picks a new speed in [60, 80].
func (s *Simulator) TickSpeed() model.Telemetry {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speed = MinSpeedKPH + s.rng.Intn(MaxCruiseKPH-MinSpeedKPH+1)
	return s.snapshot()
}

// TickFuel drains the tank by FuelPerTick, stopping at empty.
func (s *Simulator) TickFuel() model.Telemetry {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fuel -= FuelPerTick
	if s.fuel < 0 {
		s.fuel = 0
	}
	return s.snapshot()
}

func (s *Simulator) Snapshot() model.Telemetry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Simulator) snapshot() model.Telemetry {
	return model.Telemetry{SpeedKPH: s.speed, MaxSpeedKPH: MaxSpeedKPH, FuelPercent: s.fuel}
}

// FormatClock renders the dashboard clock, e.g. "14:05" and
// "09 Mar 2026, Monday".
func FormatClock(t time.Time) model.Clock {
	return model.Clock{
		Time: t.Format("15:04"),
		Date: t.Format("02 Jan 2006") + ", " + t.Weekday().String(),
	}
}
