// Package events publishes machine lifecycle events to NATS.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"jute-fleet-backend/internal/logs"
	"jute-fleet-backend/internal/model"
)

// Payload is the JSON body published for every event. Share codes are never
// included.
type Payload struct {
	Type         model.EventKind     `json:"type"`
	MachineID    string              `json:"machineId"`
	MachineName  string              `json:"machineName"`
	Owner        string              `json:"owner"`
	Status       model.MachineStatus `json:"status"`
	Mode         model.MachineMode   `json:"mode"`
	RentalStatus model.RentalStatus  `json:"rentalStatus"`
	BorrowerID   string              `json:"borrowerId,omitempty"`
	RunLogID     string              `json:"runLogId,omitempty"`
	At           time.Time           `json:"at"`
}

// Encode builds the subject and body for ev under the base subject.
func Encode(base string, ev model.Event) (string, []byte, error) {
	p := Payload{
		Type:         ev.Kind,
		MachineID:    ev.Machine.ID,
		MachineName:  ev.Machine.Name,
		Owner:        ev.Machine.Owner,
		Status:       ev.Machine.Status,
		Mode:         ev.Machine.CurrentMode,
		RentalStatus: ev.Machine.RentalStatus,
		At:           ev.At,
	}
	if s := ev.Machine.RentalSession; s != nil {
		p.BorrowerID = s.BorrowerID
	}
	if ev.RunLog != nil {
		p.RunLogID = ev.RunLog.ID
	}
	body, err := json.Marshal(p)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode event: %w", err)
	}
	return base + "." + string(ev.Kind), body, nil
}

type Publisher struct {
	nc      *nats.Conn
	subject string
	log     *logrus.Entry
}

// NewPublisher connects to url. The connection reconnects forever in the
// background; events published while disconnected are buffered by the client.
func NewPublisher(url, subject string) (*Publisher, error) {
	log := logs.Logger.WithField("component", "events")
	opts := []nats.Option{
		nats.Name("jutefleetd"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.WithError(err).Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("nats reconnected")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}
	return &Publisher{nc: nc, subject: subject, log: log}, nil
}

// OnEvent publishes ev. Errors are logged; the engine never waits on NATS.
func (p *Publisher) OnEvent(ev model.Event) {
	subject, body, err := Encode(p.subject, ev)
	if err != nil {
		p.log.WithError(err).Error("dropping event")
		return
	}
	if err := p.Publish(subject, body); err != nil {
		p.log.WithError(err).WithField("subject", subject).Warn("failed to publish event")
	}
}

func (p *Publisher) Publish(subject string, payload []byte) error {
	if p.nc == nil || p.nc.IsClosed() {
		return fmt.Errorf("nats not connected")
	}
	return p.nc.Publish(subject, payload)
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			p.log.WithError(err).Warn("nats drain failed")
		}
		p.nc.Close()
	}
}
