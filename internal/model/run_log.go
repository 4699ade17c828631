package model

import "time"

// RunLog is the immutable record of one start→stop run of a machine.
type RunLog struct {
	ID            string      `gorm:"primaryKey;size:64" json:"id"`
	MachineID     string      `gorm:"size:64;index;not null" json:"machineId"`
	MachineName   string      `gorm:"size:128" json:"machineName"`
	StartTime     time.Time   `gorm:"not null" json:"startTime"`
	EndTime       time.Time   `gorm:"not null" json:"endTime"`
	Duration      int64       `json:"duration"` // seconds
	Mode          MachineMode `gorm:"size:16" json:"mode"`
	Jams          int         `json:"jams"`
	AvgSpeed      float64     `json:"avgSpeed"`
	AvgEfficiency float64     `json:"avgEfficiency"`
	Date          string      `gorm:"size:64" json:"date"`
	Seq           int64       `gorm:"index;not null" json:"-"` // creation order, newest is highest
}
