package storage

import (
	"context"
	"errors"

	"github.com/devghori1264/aerophoenix/edgefleet/internal/models"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate job id")
)

// JobStore is the job record store. Records keep insertion order and are
// addressed by the unique job_id field.
type JobStore interface {
	// GetAll returns every job in store order.
	GetAll(ctx context.Context) ([]models.Job, error)
	// Update sets one field of the job whose job_id matches.
	Update(ctx context.Context, jobID, field string, value any) error
	// Insert adds a job, assigning a job_id when it has none.
	Insert(ctx context.Context, job models.Job) (models.Job, error)
	// Search returns the jobs whose field equals value, in store order.
	Search(ctx context.Context, field string, value any) ([]models.Job, error)
	Close() error
}

func filter(jobs []models.Job, field string, value any) ([]models.Job, error) {
	if err := models.CheckField(field, value); err != nil {
		return nil, err
	}
	var out []models.Job
	for _, j := range jobs {
		ok, err := j.FieldEquals(field, value)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, j)
		}
	}
	return out, nil
}

// prepare validates a job for insertion.
func prepare(job models.Job, newID func() string) (models.Job, error) {
	if job.IsNone() {
		job.ID = newID()
	}
	if job.Status == "" {
		job.Status = models.JobUnfinished
	}
	if job.JobTime < 0 || job.Quantity < 0 {
		return models.Job{}, models.ErrFieldValue
	}
	return job.Normalize(), nil
}
