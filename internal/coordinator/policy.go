package coordinator

import "github.com/devghori1264/aerophoenix/edgefleet/internal/models"

// DecisionKind is the outcome of dispatching one RUNNABLE machine.
type DecisionKind int

const (
	// DecisionIdle leaves the machine waiting; it is retried next tick.
	DecisionIdle DecisionKind = iota
	// DecisionAwaitPrediction defers a machine that has no remain_time yet.
	DecisionAwaitPrediction
	DecisionAssign
	// DecisionRiskyAssign hands out the shortest job although it does not
	// fit the machine's remain_time.
	DecisionRiskyAssign
	// DecisionMaintenance sends the machine to preventive maintenance.
	DecisionMaintenance
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionIdle:
		return "idle"
	case DecisionAwaitPrediction:
		return "await_prediction"
	case DecisionAssign:
		return "assign"
	case DecisionRiskyAssign:
		return "risky"
	case DecisionMaintenance:
		return "maintenance"
	}
	return "unknown"
}

// Decision is what the dispatcher wants done with one machine.
type Decision struct {
	Kind       DecisionKind
	Job        models.Job
	RepairTime int
}

// Policy selects jobs for RUNNABLE machines.
type Policy struct {
	// Prediction switches from shortest-job-first to matching jobs against
	// the machine's predicted remain_time.
	Prediction bool
	// RepairTime is the maintenance duration of a preventive repair.
	RepairTime int
}

// Candidates returns the jobs that may be dispatched, in store order: not
// finished, with time left, and not held by any machine in claims.
func Candidates(jobs []models.Job, claims map[string]string) []models.Job {
	var out []models.Job
	for _, j := range jobs {
		if !j.Outstanding() {
			continue
		}
		if _, taken := claims[j.ID]; taken {
			continue
		}
		out = append(out, j)
	}
	return out
}

// Decide picks the action for a RUNNABLE machine given the candidate jobs.
func (p Policy) Decide(m models.Machine, candidates []models.Job) Decision {
	if p.Prediction && !m.Predicted() {
		return Decision{Kind: DecisionAwaitPrediction}
	}
	if len(candidates) == 0 {
		return Decision{Kind: DecisionIdle}
	}
	if !p.Prediction {
		return Decision{Kind: DecisionAssign, Job: shortest(candidates)}
	}
	// first fit in store order, not best fit
	for _, j := range candidates {
		if j.RemainingJobTime < m.RemainTime {
			return Decision{Kind: DecisionAssign, Job: j}
		}
	}
	if m.WorkingTime > 0 {
		return Decision{Kind: DecisionMaintenance, RepairTime: p.RepairTime}
	}
	return Decision{Kind: DecisionRiskyAssign, Job: shortest(candidates)}
}

// shortest returns the first job with the least remaining time.
func shortest(jobs []models.Job) models.Job {
	best := jobs[0]
	for _, j := range jobs[1:] {
		if j.RemainingJobTime < best.RemainingJobTime {
			best = j
		}
	}
	return best
}
