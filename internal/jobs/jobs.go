// Package jobs holds the operator tasks that feed and repair the job store.
package jobs

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/devghori1264/aerophoenix/edgefleet/internal/models"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/storage"
)

// Bounds of generated jobs, inclusive.
const (
	MinJobTime  = 5
	MaxJobTime  = 30
	MinQuantity = 1
	MaxQuantity = 14
)

var jobTypes = []models.JobType{models.JobHard, models.JobNormal, models.JobSoft}

// Random returns a new unfinished job with a uniformly drawn type, job time
// and quantity.
func Random(rng *rand.Rand) models.Job {
	jt := MinJobTime + rng.IntN(MaxJobTime-MinJobTime+1)
	return models.Job{
		ID:               uuid.NewString(),
		JobTime:          jt,
		RemainingJobTime: jt,
		Quantity:         MinQuantity + rng.IntN(MaxQuantity-MinQuantity+1),
		Type:             jobTypes[rng.IntN(len(jobTypes))],
		Status:           models.JobUnfinished,
	}
}

type Generator struct {
	Store storage.JobStore
	// Count is the number of jobs to insert.
	Count int
	// Limit pauses generation while this many jobs are unfinished.
	Limit int
	Poll  time.Duration
	Rand  *rand.Rand
	Log   *zap.Logger
}

// Run inserts Count random jobs, waiting whenever the backlog of unfinished
// jobs reaches Limit. It returns the number of jobs inserted.
func (g *Generator) Run(ctx context.Context) (int, error) {
	log := g.Log
	if log == nil {
		log = zap.NewNop()
	}
	rng := g.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	poll := g.Poll
	if poll <= 0 {
		poll = 5 * time.Second
	}

	inserted := 0
	for inserted < g.Count {
		backlog, err := g.Store.Search(ctx, models.FieldStatus, models.JobUnfinished)
		if err != nil {
			return inserted, fmt.Errorf("count unfinished jobs: %w", err)
		}
		if g.Limit > 0 && len(backlog) >= g.Limit {
			log.Info("unfinished jobs exist, waiting", zap.Int("unfinished", len(backlog)))
			select {
			case <-ctx.Done():
				return inserted, ctx.Err()
			case <-time.After(poll):
			}
			continue
		}
		job, err := g.Store.Insert(ctx, Random(rng))
		if err != nil {
			return inserted, fmt.Errorf("insert job: %w", err)
		}
		inserted++
		log.Info("job inserted",
			zap.String("job_id", job.ID),
			zap.Int("job_time", job.JobTime),
			zap.Int("quantity", job.Quantity),
			zap.String("type", string(job.Type)),
		)
	}
	return inserted, nil
}

// ResetStale returns jobs stuck in processing to unfinished with their full
// job time. With all set, jobs with no remaining time are reset as well,
// which reopens finished jobs and reruns the batch. It returns the reset
// jobs.
func ResetStale(ctx context.Context, store storage.JobStore, all bool) ([]models.Job, error) {
	stale, err := store.Search(ctx, models.FieldStatus, models.JobProcessing)
	if err != nil {
		return nil, fmt.Errorf("search processing jobs: %w", err)
	}
	if all {
		done, err := store.Search(ctx, models.FieldRemainingJobTime, 0)
		if err != nil {
			return nil, fmt.Errorf("search completed jobs: %w", err)
		}
		stale = append(stale, done...)
	}

	seen := make(map[string]bool, len(stale))
	var reset []models.Job
	for _, j := range stale {
		if seen[j.ID] {
			continue
		}
		seen[j.ID] = true
		if err := store.Update(ctx, j.ID, models.FieldRemainingJobTime, j.JobTime); err != nil {
			return reset, fmt.Errorf("reset job %s: %w", j.ID, err)
		}
		if err := store.Update(ctx, j.ID, models.FieldStatus, models.JobUnfinished); err != nil {
			return reset, fmt.Errorf("reset job %s: %w", j.ID, err)
		}
		j.RemainingJobTime = j.JobTime
		j.Status = models.JobUnfinished
		reset = append(reset, j)
	}
	return reset, nil
}
