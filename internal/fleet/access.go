package fleet

import (
	"crypto/subtle"
	"errors"

	"jute-fleet-backend/internal/model"
)

// IssuePin attaches a fresh share code to the machine, replacing any prior
// unconsumed one.
func (e *Engine) IssuePin(id string) (model.Pin, error) {
	code, err := e.pinSource()
	if err != nil {
		e.record("issue_pin", err)
		return model.Pin{}, err
	}

	e.eventMu.Lock()
	defer e.eventMu.Unlock()

	pin := model.Pin{Code: code, Expiry: e.clock.Now().Add(e.pinLifetime)}

	m, err := e.registry.Mutate(id, func(m *model.Machine) error {
		p := pin
		m.Pin = &p
		return nil
	})
	e.record("issue_pin", err)
	if err != nil {
		return model.Pin{}, err
	}

	e.log.WithField("machine_id", id).WithField("expiry", pin.Expiry).Info("share pin issued")
	e.publish()
	e.emit(model.EventPinIssued, m, nil)
	return pin, nil
}

// ActivePin returns the machine's PIN if one is still redeemable.
func (e *Engine) ActivePin(id string) (model.Pin, bool, error) {
	m, ok := e.registry.Get(id)
	if !ok {
		return model.Pin{}, false, ErrNotFound
	}
	if m.Pin == nil || !m.Pin.ValidAt(e.clock.Now()) {
		return model.Pin{}, false, nil
	}
	return *m.Pin, true, nil
}

// ValidateAndActivate redeems code and hands the machine to borrowerID for
// duration units. It reports only success or failure: an unknown machine, a
// wrong code and an expired code are indistinguishable to the caller. An
// expired PIN met here is removed; the override code, when configured, still
// succeeds.
func (e *Engine) ValidateAndActivate(id, code string, duration int, unit model.DurationUnit, borrowerID string) bool {
	if duration <= 0 || !unit.Valid() || borrowerID == "" {
		e.metrics.PinValidations.WithLabelValues("rejected").Inc()
		return false
	}

	e.eventMu.Lock()
	defer e.eventMu.Unlock()

	now := e.clock.Now()
	activated := false
	purged := false
	m, err := e.registry.Mutate(id, func(m *model.Machine) error {
		if m.Pin != nil && !m.Pin.ValidAt(now) {
			m.Pin = nil
			purged = true
		}
		if !e.codeMatches(m, code) {
			if purged {
				// Commit the purge; the attempt still fails.
				return nil
			}
			return ErrInvalidPin
		}
		m.Pin = nil
		m.RentalStatus = model.RentalRented
		m.RentalSession = &model.RentalSession{
			StartTime:    now,
			Duration:     duration,
			DurationUnit: unit,
			BorrowerID:   borrowerID,
		}
		activated = true
		return nil
	})

	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidPin):
		e.metrics.PinValidations.WithLabelValues("rejected").Inc()
		return false
	case err != nil:
		e.log.WithError(err).WithField("machine_id", id).Error("pin validation failed unexpectedly")
		e.metrics.PinValidations.WithLabelValues("rejected").Inc()
		return false
	case !activated && purged:
		e.log.WithField("machine_id", id).Debug("purged expired pin")
		e.metrics.PinValidations.WithLabelValues("expired").Inc()
		e.publish()
		return false
	}

	e.metrics.PinValidations.WithLabelValues("accepted").Inc()
	e.log.WithField("machine_id", id).WithField("borrower", borrowerID).Info("rental activated")
	e.publish()
	e.emit(model.EventRented, m, nil)
	return true
}

func (e *Engine) codeMatches(m *model.Machine, code string) bool {
	if code == "" {
		return false
	}
	if e.overridePin != "" && subtle.ConstantTimeCompare([]byte(code), []byte(e.overridePin)) == 1 {
		e.log.WithField("machine_id", m.ID).Warn("override pin used for activation")
		return true
	}
	return m.Pin != nil && subtle.ConstantTimeCompare([]byte(code), []byte(m.Pin.Code)) == 1
}

// Reclaim ends any rental and returns the machine to its owner. Reclaiming an
// owned machine is a no-op.
func (e *Engine) Reclaim(id string) (model.Machine, error) {
	e.eventMu.Lock()
	defer e.eventMu.Unlock()

	reclaimed := false
	m, err := e.registry.Mutate(id, func(m *model.Machine) error {
		reclaimed = m.RentalStatus == model.RentalRented || m.RentalSession != nil
		m.RentalSession = nil
		m.RentalStatus = model.RentalOwned
		return nil
	})
	e.record("reclaim", err)
	if err != nil {
		return model.Machine{}, err
	}
	if reclaimed {
		e.log.WithField("machine_id", id).Info("machine reclaimed")
		e.publish()
		e.emit(model.EventReclaimed, m, nil)
	}
	return m, nil
}
