package model

import "time"

// MachineStatus is the run state of a machine.
type MachineStatus string

const (
	StatusRunning MachineStatus = "RUNNING"
	StatusStopped MachineStatus = "STOPPED"
)

// MachineMode is the operating mode selected for a machine.
type MachineMode string

const (
	ModeEco    MachineMode = "ECO"
	ModeNormal MachineMode = "NORMAL"
	ModePower  MachineMode = "POWER"
)

// Valid reports whether m is one of the known modes.
func (m MachineMode) Valid() bool {
	switch m {
	case ModeEco, ModeNormal, ModePower:
		return true
	}
	return false
}

// RentalStatus tells whether a machine is with its owner or lent out.
type RentalStatus string

const (
	RentalOwned  RentalStatus = "OWNED"
	RentalRented RentalStatus = "RENTED"
)

// DurationUnit is the unit a rental duration is expressed in.
type DurationUnit string

const (
	UnitHours DurationUnit = "HOURS"
	UnitDays  DurationUnit = "DAYS"
)

// Valid reports whether u is a supported unit.
func (u DurationUnit) Valid() bool {
	return u == UnitHours || u == UnitDays
}

// Span converts n units into a time.Duration.
func (u DurationUnit) Span(n int) time.Duration {
	if u == UnitDays {
		return time.Duration(n) * 24 * time.Hour
	}
	return time.Duration(n) * time.Hour
}

// Connection states reported in telemetry.
const (
	ConnectionLive    = "LIVE"
	ConnectionOffline = "OFFLINE"
)

// RentalSession records an active borrower's control window over a machine.
type RentalSession struct {
	StartTime    time.Time    `json:"startTime"`
	Duration     int          `json:"duration"`
	DurationUnit DurationUnit `json:"durationUnit"`
	BorrowerID   string       `json:"borrowerId"`
}

// EndsAt is the moment the rental window closes.
func (s RentalSession) EndsAt() time.Time {
	return s.StartTime.Add(s.DurationUnit.Span(s.Duration))
}

// Pin is a short-lived share code attached to a machine.
type Pin struct {
	Code   string    `json:"code"`
	Expiry time.Time `json:"expiry"`
}

// ValidAt reports whether the PIN can still be redeemed at now.
func (p Pin) ValidAt(now time.Time) bool {
	return p.Expiry.After(now)
}

// Telemetry is the latest sample reported for a machine.
type Telemetry struct {
	RPM              float64    `json:"rpm"`
	MotorTemp        float64    `json:"motorTemp"`
	Speed            float64    `json:"speed"`
	Current          float64    `json:"current"`
	Efficiency       float64    `json:"efficiency"`
	Runtime          int64      `json:"runtime"`
	Jams             int        `json:"jams"`
	LastAntiJam      *time.Time `json:"lastAntiJam,omitempty"`
	ConnectionStatus string     `gorm:"size:16" json:"connectionStatus"`
	LastSeen         time.Time  `json:"lastSeen"`
}

// Machine is one rentable processing unit.
type Machine struct {
	ID            string         `gorm:"primaryKey;size:64" json:"id"`
	Name          string         `gorm:"size:128;not null" json:"name"`
	Owner         string         `gorm:"size:256;index;not null" json:"owner"`
	Status        MachineStatus  `gorm:"size:16;not null" json:"status"`
	CurrentMode   MachineMode    `gorm:"size:16;not null" json:"currentMode"`
	RentalStatus  RentalStatus   `gorm:"size:16;not null" json:"rentalStatus"`
	RentalSession *RentalSession `gorm:"serializer:json" json:"rentalSession,omitempty"`
	Pin           *Pin           `gorm:"serializer:json" json:"pin,omitempty"`
	Telemetry     Telemetry      `gorm:"embedded;embeddedPrefix:telemetry_" json:"telemetry"`
}

// Clone returns a deep copy of m.
func (m Machine) Clone() Machine {
	out := m
	if m.RentalSession != nil {
		s := *m.RentalSession
		out.RentalSession = &s
	}
	if m.Pin != nil {
		p := *m.Pin
		out.Pin = &p
	}
	if m.Telemetry.LastAntiJam != nil {
		t := *m.Telemetry.LastAntiJam
		out.Telemetry.LastAntiJam = &t
	}
	return out
}

// RentedBy reports whether the machine is currently rented by the given user id.
func (m Machine) RentedBy(userID string) bool {
	return m.RentalStatus == RentalRented && m.RentalSession != nil && m.RentalSession.BorrowerID == userID
}

// CatalogEntry describes a machine inserted on first boot.
type CatalogEntry struct {
	ID   string      `yaml:"id"`
	Name string      `yaml:"name"`
	Mode MachineMode `yaml:"mode"`
}
