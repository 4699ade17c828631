package fleet

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"jute-fleet-backend/internal/model"
)

// Cold start baseline applied on STOPPED→RUNNING.
const (
	coldStartSpeed = 20.0
	coldStartRPM   = 500.0
)

// ToggleRun starts a stopped machine or stops a running one. Stopping
// records a run log from the telemetry at the moment of the stop.
func (e *Engine) ToggleRun(id string) (model.Machine, error) {
	e.eventMu.Lock()
	defer e.eventMu.Unlock()

	now := e.clock.Now()
	m, runLog, err := e.registry.MutateWithLog(id, func(m *model.Machine) (*model.RunLog, error) {
		t := &m.Telemetry
		if m.Status == model.StatusRunning {
			runLog := &model.RunLog{
				ID:            uuid.NewString(),
				MachineID:     m.ID,
				MachineName:   m.Name,
				StartTime:     now.Add(-time.Duration(t.Runtime) * time.Second),
				EndTime:       now,
				Duration:      t.Runtime,
				Mode:          m.CurrentMode,
				Jams:          t.Jams,
				AvgSpeed:      t.Speed,
				AvgEfficiency: t.Efficiency,
				Date:          now.Format(time.RFC3339),
			}
			m.Status = model.StatusStopped
			t.Runtime = 0
			t.RPM = 0
			t.Speed = 0
			return runLog, nil
		}

		m.Status = model.StatusRunning
		t.Runtime = 0
		t.Speed = coldStartSpeed
		t.RPM = coldStartRPM
		return nil, nil
	})
	e.record("toggle", err)
	if err != nil {
		return model.Machine{}, err
	}

	e.publish()
	if runLog != nil {
		e.metrics.RunLogs.Inc()
		e.log.WithField("machine_id", id).WithField("duration", runLog.Duration).Info("machine stopped")
		e.emit(model.EventStopped, m, runLog)
	} else {
		e.log.WithField("machine_id", id).Info("machine started")
		e.emit(model.EventStarted, m, nil)
	}
	return m, nil
}

// SetMode selects the operating mode. The POWER low-speed lockout is applied
// by the simulator on the next tick, not here.
func (e *Engine) SetMode(id string, mode model.MachineMode) (model.Machine, error) {
	if !mode.Valid() {
		e.record("set_mode", ErrInvalidArgument)
		return model.Machine{}, fmt.Errorf("%w: unknown mode %q", ErrInvalidArgument, mode)
	}
	e.eventMu.Lock()
	defer e.eventMu.Unlock()

	m, err := e.registry.Mutate(id, func(m *model.Machine) error {
		m.CurrentMode = mode
		return nil
	})
	e.record("set_mode", err)
	if err != nil {
		return model.Machine{}, err
	}
	e.publish()
	e.emit(model.EventModeChanged, m, nil)
	return m, nil
}

// SetSpeed writes the target speed, which must lie in [0, 100].
func (e *Engine) SetSpeed(id string, speed float64) (model.Machine, error) {
	if math.IsNaN(speed) || speed < 0 || speed > 100 {
		e.record("set_speed", ErrInvalidArgument)
		return model.Machine{}, fmt.Errorf("%w: speed %v outside 0-100", ErrInvalidArgument, speed)
	}
	m, err := e.registry.Mutate(id, func(m *model.Machine) error {
		m.Telemetry.Speed = speed
		return nil
	})
	e.record("set_speed", err)
	if err != nil {
		return model.Machine{}, err
	}
	e.publish()
	return m, nil
}

// TriggerAntiJam counts a jam-clearing cycle. It never changes the status.
func (e *Engine) TriggerAntiJam(id string) (model.Machine, error) {
	e.eventMu.Lock()
	defer e.eventMu.Unlock()

	now := e.clock.Now()
	m, err := e.registry.Mutate(id, func(m *model.Machine) error {
		m.Telemetry.Jams++
		m.Telemetry.LastAntiJam = &now
		return nil
	})
	e.record("antijam", err)
	if err != nil {
		return model.Machine{}, err
	}
	e.publish()
	e.emit(model.EventAntiJam, m, nil)
	return m, nil
}
