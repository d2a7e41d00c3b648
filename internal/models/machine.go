package models

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a simulated machine.
type Status uint8

const (
	StatusRunnable Status = iota + 1
	StatusWorking
	StatusBroken
	StatusMaintenance
)

// NotPredicted is the remain_time sentinel of a machine that has not
// received a prediction since its last reset.
const NotPredicted = -1

func (s Status) String() string {
	switch s {
	case StatusRunnable:
		return "RUNNABLE"
	case StatusWorking:
		return "WORKING"
	case StatusBroken:
		return "BROKEN"
	case StatusMaintenance:
		return "MAINTENANCE"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Valid reports whether s is one of the four machine states.
func (s Status) Valid() bool {
	return s >= StatusRunnable && s <= StatusMaintenance
}

// ParseStatus parses the upper-case wire name of a status.
func ParseStatus(v string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "RUNNABLE":
		return StatusRunnable, nil
	case "WORKING":
		return StatusWorking, nil
	case "BROKEN":
		return StatusBroken, nil
	case "MAINTENANCE":
		return StatusMaintenance, nil
	}
	return 0, fmt.Errorf("unknown machine status %q", v)
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid machine status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Machine is the full snapshot a machine publishes about itself every tick.
// Shared between the machine process, the coordinator registry and the API.
type Machine struct {
	ID                  string  `json:"machine_id"`
	Status              Status  `json:"status"`
	WorkingTime         int     `json:"working_time"`
	RemainTime          int     `json:"remain_time"`
	RemainingRepairTime int     `json:"remaining_repair_time"`
	Wear                float64 `json:"wear"`
	Alignment           float64 `json:"alignment"`
	Temperature         float64 `json:"temperature"`
	Job                 Job     `json:"job"`
}

// NewMachine returns a freshly reset RUNNABLE machine.
func NewMachine(id string) Machine {
	return Machine{
		ID:         id,
		Status:     StatusRunnable,
		RemainTime: NotPredicted,
		Job:        NoJob(),
	}
}

// HasJob reports whether a real job is attached.
func (m Machine) HasJob() bool {
	return !m.Job.IsNone()
}

// Predicted reports whether the machine carries a remain_time estimate.
func (m Machine) Predicted() bool {
	return m.RemainTime != NotPredicted
}

// Features returns the model input vector
// (working_time, wear, alignment, temperature).
func (m Machine) Features() [4]float64 {
	return [4]float64{float64(m.WorkingTime), m.Wear, m.Alignment, m.Temperature}
}
