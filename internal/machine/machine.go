// Package machine simulates one industrial machine: its degradation while
// working, probabilistic failures, and the commands it accepts from the
// edge device.
package machine

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/devghori1264/aerophoenix/edgefleet/internal/models"
)

// CoolingStep is the temperature drop per idle tick.
const CoolingStep = 0.02

// RiskBand is one failure band: when any degradation attribute lies in
// [Lower, Upper] the machine breaks with Probability percent.
type RiskBand struct {
	Lower, Upper float64
	Probability  int
}

// DefaultRiskBands model failure probability rising with degradation.
var DefaultRiskBands = []RiskBand{
	{Lower: 3, Upper: 5, Probability: 1},
	{Lower: 6, Upper: 8, Probability: 3},
	{Lower: 9, Upper: 11, Probability: 6},
	{Lower: 12, Upper: 14, Probability: 10},
	{Lower: 15, Upper: math.Inf(1), Probability: 60},
}

// ErrRejected is returned when a command does not apply to the current state.
var ErrRejected = errors.New("command rejected")

// Machine owns the authoritative state of one simulated machine. It is not
// safe for concurrent use; the Runner drives it from a single goroutine.
type Machine struct {
	state models.Machine
	rng   *rand.Rand
	bands []RiskBand
}

// New returns a reset RUNNABLE machine. rng supplies every random draw.
func New(id string, rng *rand.Rand) *Machine {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Machine{state: models.NewMachine(id), rng: rng, bands: DefaultRiskBands}
}

// Restore returns a machine continuing from a given snapshot.
func Restore(state models.Machine, rng *rand.Rand) *Machine {
	m := New(state.ID, rng)
	m.state = state
	return m
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() models.Machine { return m.state }

func (m *Machine) ID() string { return m.state.ID }

// Tick advances the state machine by one step.
func (m *Machine) Tick() {
	s := &m.state
	switch s.Status {
	case models.StatusRunnable:
		s.Temperature = math.Max(s.Temperature-CoolingStep, 0)
	case models.StatusWorking:
		if s.Job.IsNone() || s.Job.RemainingJobTime <= 0 {
			// finished: wait for the edge device to take the job
			return
		}
		m.work()
		if m.Broken() {
			s.Status = models.StatusBroken
		}
	case models.StatusBroken:
		// waits for a repair command
	case models.StatusMaintenance:
		if s.RemainingRepairTime > 0 {
			s.RemainingRepairTime--
			return
		}
		s.Status = models.StatusRunnable
		s.Wear = 0
		s.Alignment = 0
		s.Temperature = 0
		s.WorkingTime = 0
		s.RemainTime = models.NotPredicted
		s.Job = models.NoJob()
	}
}

// work applies one tick of wear, heat and misalignment to the machine and
// one tick of progress to its job.
func (m *Machine) work() {
	s := &m.state
	switch s.Job.Type {
	case models.JobHard:
		s.Wear += 0.5
	case models.JobNormal:
		s.Wear += 0.2
	case models.JobSoft:
		s.Wear += 0.1
	}
	switch q := s.Job.Quantity; {
	case q >= 10:
		s.Temperature += 0.5
	case q >= 5:
		s.Temperature += 0.2
	default:
		s.Temperature += 0.1
	}
	s.Alignment += float64(m.rng.IntN(5)) / 10
	s.Job.RemainingJobTime--
	s.WorkingTime++
}

// IsBroken reports a failure for one band: some attribute must lie within
// [lower, upper] and a draw in [0, 100) must fall below probability.
func (m *Machine) IsBroken(lower, upper float64, probability int) bool {
	s := m.state
	in := func(v float64) bool { return lower <= v && v <= upper }
	if !in(s.Wear) && !in(s.Alignment) && !in(s.Temperature) {
		return false
	}
	return m.rng.IntN(100) < probability
}

// Broken evaluates every risk band; any one firing breaks the machine.
func (m *Machine) Broken() bool {
	for _, b := range m.bands {
		if m.IsBroken(b.Lower, b.Upper, b.Probability) {
			return true
		}
	}
	return false
}

// AssignJob starts work on job. Replaying the assignment of the job already
// held is a no-op.
func (m *Machine) AssignJob(job models.Job) error {
	s := &m.state
	if job.IsNone() {
		return fmt.Errorf("assign sentinel job: %w", ErrRejected)
	}
	if s.Status == models.StatusWorking && s.Job.ID == job.ID {
		return nil
	}
	if s.Status != models.StatusRunnable {
		return fmt.Errorf("assign %s while %s: %w", job.ID, s.Status, ErrRejected)
	}
	s.Status = models.StatusWorking
	s.Job = job.Normalize()
	return nil
}

// SetRemainTime stores the edge device's remain_time estimate.
func (m *Machine) SetRemainTime(v int) {
	m.state.RemainTime = max(v, 0)
}

// StartRepair moves the machine into MAINTENANCE for repairTime ticks and
// drops its job. Repeating it during maintenance is a no-op.
func (m *Machine) StartRepair(repairTime int) error {
	s := &m.state
	switch s.Status {
	case models.StatusMaintenance:
		return nil
	case models.StatusWorking:
		return fmt.Errorf("repair while %s: %w", s.Status, ErrRejected)
	case models.StatusRunnable, models.StatusBroken:
	}
	s.Status = models.StatusMaintenance
	s.RemainingRepairTime = max(repairTime, 0)
	s.Job = models.NoJob()
	return nil
}

// FinishJob releases a completed job and returns to RUNNABLE. An ack for a
// job the machine no longer holds is ignored.
func (m *Machine) FinishJob(jobID string) error {
	s := &m.state
	if s.Status != models.StatusWorking || s.Job.ID != jobID {
		return nil
	}
	if s.Job.RemainingJobTime > 0 {
		return fmt.Errorf("finish %s with %d ticks left: %w", jobID, s.Job.RemainingJobTime, ErrRejected)
	}
	s.Status = models.StatusRunnable
	s.Job = models.NoJob()
	return nil
}
