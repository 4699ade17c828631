package fleet

import (
	"math"
	"math/rand"
	"time"

	"jute-fleet-backend/internal/model"
)

// Physical ranges enforced on every tick.
const (
	maxRPM        = 3000.0
	powerRPMFloor = 50.0
	minMotorTemp  = 20.0
	maxMotorTemp  = 95.0
	minEfficiency = 70.0
	maxEfficiency = 100.0
	minCurrent    = 0.5

	stoppedRPMDecay  = 150.0
	stoppedTempDecay = 0.2
)

// Simulator derives the next telemetry sample for a machine. It is a
// first-order jitter/decay model, not a physical simulation.
//
// A Simulator is not safe for concurrent use; the engine only calls Step
// while holding the registry lock.
type Simulator struct {
	rng *rand.Rand
}

// NewSimulator returns a Simulator drawing jitter from src.
func NewSimulator(src rand.Source) *Simulator {
	return &Simulator{rng: rand.New(src)}
}

// jitter is uniform in [-1, 1).
func (s *Simulator) jitter() float64 {
	return s.rng.Float64()*2 - 1
}

// Step advances m by one tick at now.
func (s *Simulator) Step(m *model.Machine, now time.Time) {
	t := &m.Telemetry
	if m.Status != model.StatusRunning {
		t.RPM = clamp(t.RPM-stoppedRPMDecay, 0, maxRPM)
		t.MotorTemp = clamp(t.MotorTemp-stoppedTempDecay, minMotorTemp, maxMotorTemp)
		t.Current = 0
		t.ConnectionStatus = model.ConnectionLive
		t.LastSeen = now
		return
	}

	j := s.jitter()

	t.RPM = clamp(t.RPM+j*30, 0, maxRPM)
	if m.CurrentMode == model.ModePower && t.RPM < powerRPMFloor {
		m.CurrentMode = model.ModeEco
	}

	heatRise := t.Speed / 100 * 0.2
	t.MotorTemp = clamp(t.MotorTemp+heatRise+j*0.05, minMotorTemp, maxMotorTemp)

	eff := 100 - math.Abs(t.Speed-65)*0.5 + j
	t.Efficiency = math.Round(clamp(eff, minEfficiency, maxEfficiency))

	amps := 2 + t.Speed/100*10
	switch m.CurrentMode {
	case model.ModePower:
		amps *= 1.25
	case model.ModeEco:
		amps *= 0.85
	}
	amps = math.Max(minCurrent, amps+j*0.5)
	t.Current = math.Round(amps*10) / 10

	t.Runtime++
	t.ConnectionStatus = model.ConnectionLive
	t.LastSeen = now
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
