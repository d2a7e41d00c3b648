package coordinator

import (
	"sync"

	"github.com/devghori1264/aerophoenix/edgefleet/internal/models"
)

// Registry holds the last snapshot reported by every machine, in the order
// machines first registered. It is mutated by the coordinator loop and read
// concurrently by the status API.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	machines map[string]*models.Machine
}

func NewRegistry() *Registry {
	return &Registry{machines: make(map[string]*models.Machine)}
}

// Upsert stores m as the latest snapshot of its machine, last write wins.
// It reports whether the machine was new.
func (r *Registry) Upsert(m models.Machine) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.machines[m.ID]; ok {
		*cur = m
		return false
	}
	r.machines[m.ID] = &m
	r.order = append(r.order, m.ID)
	return true
}

// Get returns a copy of one machine's snapshot.
func (r *Registry) Get(id string) (models.Machine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.machines[id]
	if !ok {
		return models.Machine{}, false
	}
	return *m, true
}

// List returns copies of all snapshots in registration order.
func (r *Registry) List() []models.Machine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Machine, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.machines[id])
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// SetStatus optimistically records a status the coordinator commanded. The
// machine's next report overwrites it.
func (r *Registry) SetStatus(id string, s models.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.machines[id]; ok {
		m.Status = s
	}
}

// Claim records job as held by machine id and marks it WORKING, so the job
// leaves the candidate pool before the machine confirms.
func (r *Registry) Claim(id string, job models.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.machines[id]; ok {
		m.Status = models.StatusWorking
		m.Job = job
	}
}

// Claims returns the set of job ids currently held by registered machines.
func (r *Registry) Claims() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.order))
	for id, m := range r.machines {
		if m.HasJob() {
			out[m.Job.ID] = id
		}
	}
	return out
}

// All reports whether every registered machine has status s. It is false
// for an empty registry.
func (r *Registry) All(s models.Status) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.order) == 0 {
		return false
	}
	for _, m := range r.machines {
		if m.Status != s {
			return false
		}
	}
	return true
}

// Counts returns the number of machines per status.
func (r *Registry) Counts() map[models.Status]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[models.Status]int, 4)
	for _, m := range r.machines {
		out[m.Status]++
	}
	return out
}
