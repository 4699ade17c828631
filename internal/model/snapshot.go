package model

import "time"

// Snapshot is the full view of machines and run logs, either persisted or
// delivered to a subscriber.
type Snapshot struct {
	Machines []Machine `json:"machines"`
	RunLogs  []RunLog  `json:"runLogs"`
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Machines: make([]Machine, len(s.Machines)),
		RunLogs:  make([]RunLog, len(s.RunLogs)),
	}
	for i, m := range s.Machines {
		out.Machines[i] = m.Clone()
	}
	copy(out.RunLogs, s.RunLogs)
	return out
}

// EventKind names a committed machine lifecycle change.
type EventKind string

const (
	EventStarted     EventKind = "machine.started"
	EventStopped     EventKind = "machine.stopped"
	EventModeChanged EventKind = "machine.mode_changed"
	EventAntiJam     EventKind = "machine.antijam"
	EventPinIssued   EventKind = "machine.pin_issued"
	EventRented      EventKind = "machine.rented"
	EventReclaimed   EventKind = "machine.reclaimed"
)

// Event is emitted after a control operation commits.
type Event struct {
	Kind    EventKind
	Machine Machine
	RunLog  *RunLog
	At      time.Time
}

// EventListener receives committed events in commit order. OnEvent must not
// block or call back into the engine.
type EventListener interface {
	OnEvent(ev Event)
}
