package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/devghori1264/aerophoenix/edgefleet/internal/models"
)

// MemoryStore is an in-process JobStore.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs []models.Job
}

func NewMemoryStore(jobs ...models.Job) *MemoryStore {
	s := &MemoryStore{}
	for _, j := range jobs {
		_, _ = s.Insert(context.Background(), j)
	}
	return s
}

func (s *MemoryStore) GetAll(ctx context.Context) ([]models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.jobs), nil
}

func (s *MemoryStore) Search(ctx context.Context, field string, value any) ([]models.Job, error) {
	all, _ := s.GetAll(ctx)
	return filter(all, field, value)
}

func (s *MemoryStore) Insert(ctx context.Context, job models.Job) (models.Job, error) {
	job, err := prepare(job, uuid.NewString)
	if err != nil {
		return models.Job{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index(job.ID) >= 0 {
		return models.Job{}, fmt.Errorf("job %s: %w", job.ID, ErrDuplicate)
	}
	s.jobs = append(s.jobs, job)
	return job, nil
}

func (s *MemoryStore) Update(ctx context.Context, jobID, field string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(jobID)
	if i < 0 {
		return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	j := s.jobs[i]
	if err := j.SetField(field, value); err != nil {
		return err
	}
	s.jobs[i] = j.Normalize()
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) index(jobID string) int {
	return slices.IndexFunc(s.jobs, func(j models.Job) bool { return j.ID == jobID })
}
