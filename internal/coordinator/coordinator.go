// Package coordinator implements the edge device: it tracks machine
// snapshots, hands out jobs, orders repairs and ships training data once a
// batch of jobs is done.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/devghori1264/aerophoenix/edgefleet/internal/blob"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/models"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/predict"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/protocol"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/storage"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/telemetry"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/training"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/transport"
)

// Settings are the edge device's dispatch and repair parameters.
type Settings struct {
	Prediction bool
	// RepairTime is the normal and preventive repair duration in ticks.
	RepairTime int
	// TotalDamageRepairTime is used when a failure turns out to be severe.
	TotalDamageRepairTime int
	// TotalDamageProbability is the percent chance a failure is severe.
	TotalDamageProbability int
	TickInterval           time.Duration
}

// DefaultSettings mirror the reference fleet: one tick per second, repairs
// of 5 ticks, 50 after total damage, which 80% of failures are.
func DefaultSettings() Settings {
	return Settings{
		RepairTime:             5,
		TotalDamageRepairTime:  50,
		TotalDamageProbability: 80,
		TickInterval:           time.Second,
	}
}

// Coordinator owns the registry and runs the edge device's event loop.
type Coordinator struct {
	settings Settings
	policy   Policy
	client   *protocol.Client
	store    storage.JobStore
	model    predict.Model
	recorder *training.Recorder
	blobs    blob.Container
	registry *Registry
	latch    Latch
	rng      *rand.Rand
	log      *zap.Logger
	tracer   trace.Tracer
	mailbox  *transport.Mailbox
	// acked remembers the job each machine was last told is finished, so
	// repeated acks do not rewrite the store. Cleared once the machine
	// moves on.
	acked map[string]string
	// repairs holds the repair time ordered for a broken machine until it
	// reports a status other than BROKEN.
	repairs map[string]int
	// pending holds assignments the machine has not reported yet. A report
	// published before the command arrived would otherwise release the job.
	pending map[string]assignment
	ticks   uint64
}

type assignment struct {
	job  models.Job
	tick uint64
}

// pendingTicks is how long an unconfirmed assignment blocks its job and
// machine.
const pendingTicks = 3

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithModel sets the remain_time model; required in prediction mode.
func WithModel(m predict.Model) Option {
	return func(c *Coordinator) { c.model = m }
}

// WithRecorder enables training-data recording of every snapshot.
func WithRecorder(r *training.Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// WithBlobs sets the container that receives recorded data when a batch
// completes.
func WithBlobs(b blob.Container) Option {
	return func(c *Coordinator) { c.blobs = b }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// WithRand sets the source of the repair severity draw.
func WithRand(r *rand.Rand) Option {
	return func(c *Coordinator) { c.rng = r }
}

// WithMailboxSize bounds the number of queued snapshots.
func WithMailboxSize(n int) Option {
	return func(c *Coordinator) { c.mailbox = transport.NewMailbox(n) }
}

func New(settings Settings, client *protocol.Client, store storage.JobStore, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		settings: settings,
		policy:   Policy{Prediction: settings.Prediction, RepairTime: settings.RepairTime},
		client:   client,
		store:    store,
		registry: NewRegistry(),
		log:      zap.NewNop(),
		tracer:   otel.Tracer("github.com/devghori1264/aerophoenix/edgefleet/internal/coordinator"),
		mailbox:  transport.NewMailbox(1024),
		acked:    make(map[string]string),
		repairs:  make(map[string]int),
		pending:  make(map[string]assignment),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if settings.Prediction && c.model == nil {
		return nil, errors.New("prediction mode requires a model")
	}
	if c.settings.TickInterval <= 0 {
		c.settings.TickInterval = time.Second
	}
	return c, nil
}

// Registry exposes the machine registry for read-only status queries.
func (c *Coordinator) Registry() *Registry { return c.registry }

// Run consumes machine snapshots and ticks until ctx is done. Snapshots and
// ticks are handled on this goroutine only.
func (c *Coordinator) Run(ctx context.Context) error {
	sub, err := c.client.Transport().Subscribe(protocol.SubjectMachines, c.mailbox.Handler())
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", protocol.SubjectMachines, err)
	}
	defer sub.Unsubscribe()

	ticker := time.NewTicker(c.settings.TickInterval)
	defer ticker.Stop()
	c.log.Info("edge device started",
		zap.Bool("prediction", c.settings.Prediction),
		zap.Bool("recording", c.recorder != nil),
		zap.Duration("tick", c.settings.TickInterval),
	)

	for {
		select {
		case <-ctx.Done():
			c.log.Info("edge device stopped", zap.Uint64("dropped_snapshots", c.mailbox.Dropped()))
			return nil
		case msg := <-c.mailbox.C():
			c.HandleSnapshot(ctx, msg.Payload)
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

// HandleSnapshot validates an inbound machine report, records it, requests
// a first prediction when the machine has none, and stores it in the
// registry.
func (c *Coordinator) HandleSnapshot(ctx context.Context, payload []byte) {
	m, err := protocol.DecodeSnapshot(c.client.Codec(), payload)
	if err != nil {
		telemetry.RejectedSnapshots.Inc()
		c.log.Warn("rejecting snapshot", zap.Error(err))
		return
	}
	if c.recorder != nil {
		if _, err := c.recorder.Record(m); err != nil {
			telemetry.ExternalErrors.WithLabelValues("record").Inc()
			c.log.Warn("recording snapshot failed", zap.String("machine_id", m.ID), zap.Error(err))
		}
	}
	if c.settings.Prediction && !m.Predicted() {
		if rt, ok := c.publishPrediction(ctx, m); ok {
			c.log.Info("first predicted remain_time", zap.String("machine_id", m.ID), zap.Int("remain_time", rt))
		}
	}
	if p, ok := c.pending[m.ID]; ok {
		switch {
		case m.Job.ID == p.job.ID:
			delete(c.pending, m.ID)
		case m.Status != models.StatusRunnable:
			delete(c.pending, m.ID)
			c.log.Warn("machine did not take assigned job",
				zap.String("machine_id", m.ID), zap.String("job_id", p.job.ID), zap.Stringer("status", m.Status))
		}
	}
	if id, ok := c.acked[m.ID]; ok && (m.Status != models.StatusWorking || m.Job.ID != id) {
		delete(c.acked, m.ID)
	}
	if m.Status != models.StatusBroken {
		delete(c.repairs, m.ID)
	}
	if c.registry.Upsert(m) {
		c.log.Info("machine registered", zap.String("machine_id", m.ID), zap.Stringer("status", m.Status))
	}
}

// Tick evaluates every registered machine once and checks for batch
// completion.
func (c *Coordinator) Tick(ctx context.Context) {
	start := time.Now()
	defer func() { telemetry.TickDuration.Observe(time.Since(start).Seconds()) }()

	c.ticks++
	c.expirePending()
	machines := c.registry.List()
	ctx, span := c.tracer.Start(ctx, "coordinator.tick", trace.WithAttributes(attribute.Int("machines", len(machines))))
	defer span.End()

	if len(machines) == 0 {
		c.log.Debug("no machines registered")
		return
	}

	jobs := c.jobLoader(ctx)
	for _, m := range machines {
		c.log.Debug("machine",
			zap.String("machine_id", m.ID),
			zap.Stringer("status", m.Status),
			zap.Float64("wear", m.Wear),
			zap.Float64("temperature", m.Temperature),
			zap.Float64("alignment", m.Alignment),
			zap.Int("working_time", m.WorkingTime),
			zap.Int("remain_time", m.RemainTime),
			zap.Int("remaining_repair_time", m.RemainingRepairTime),
			zap.String("job_id", m.Job.ID),
			zap.Int("remaining_job_time", m.Job.RemainingJobTime),
		)
		switch m.Status {
		case models.StatusRunnable:
			c.dispatch(ctx, m, jobs)
		case models.StatusWorking:
			if c.settings.Prediction {
				c.publishPrediction(ctx, m)
			}
			if m.HasJob() && m.Job.RemainingJobTime <= 0 {
				c.completeJob(ctx, m)
			}
		case models.StatusBroken:
			c.handleBroken(ctx, m)
		case models.StatusMaintenance:
			// the machine counts down its own repair
		}
	}
	c.updateGauges()
	c.checkCompletion(ctx)
}

// jobLoader fetches the job list at most once per tick.
func (c *Coordinator) jobLoader(ctx context.Context) func() ([]models.Job, error) {
	var (
		jobs   []models.Job
		err    error
		loaded bool
	)
	return func() ([]models.Job, error) {
		if !loaded {
			jobs, err = c.store.GetAll(ctx)
			loaded = true
			if err != nil {
				telemetry.ExternalErrors.WithLabelValues("store_get_all").Inc()
			}
		}
		return jobs, err
	}
}

func (c *Coordinator) dispatch(ctx context.Context, m models.Machine, jobs func() ([]models.Job, error)) {
	log := c.log.With(zap.String("machine_id", m.ID))
	if p, ok := c.pending[m.ID]; ok {
		log.Debug("assignment in flight", zap.String("job_id", p.job.ID))
		return
	}
	var d Decision
	if c.settings.Prediction && !m.Predicted() {
		d = c.policy.Decide(m, nil)
	} else {
		all, err := jobs()
		if err != nil {
			log.Warn("job store unavailable, retrying next tick", zap.Error(err))
			return
		}
		d = c.policy.Decide(m, Candidates(all, c.claims()))
	}
	telemetry.Decisions.WithLabelValues(d.Kind.String()).Inc()
	trace.SpanFromContext(ctx).AddEvent("dispatch", trace.WithAttributes(
		attribute.String("machine_id", m.ID),
		attribute.String("decision", d.Kind.String()),
		attribute.String("job_id", d.Job.ID),
	))

	switch d.Kind {
	case DecisionIdle:
		log.Info("no jobs, machine is waiting")
	case DecisionAwaitPrediction:
		log.Debug("waiting for first remain_time prediction")
	case DecisionAssign, DecisionRiskyAssign:
		c.assign(ctx, m, d)
	case DecisionMaintenance:
		if c.repair(ctx, m.ID, d.RepairTime) {
			telemetry.Repairs.WithLabelValues("preventive").Inc()
			log.Info("no job fits remain_time, preventive maintenance",
				zap.Int("remain_time", m.RemainTime), zap.Int("repair_time", d.RepairTime))
		}
	}
}

// assign claims a job for a machine: store first, then the command, then
// the registry. A failure leaves the job unclaimed for the next tick.
func (c *Coordinator) assign(ctx context.Context, m models.Machine, d Decision) {
	job := d.Job
	log := c.log.With(zap.String("machine_id", m.ID), zap.String("job_id", job.ID))
	if err := c.store.Update(ctx, job.ID, models.FieldStatus, models.JobProcessing); err != nil {
		telemetry.ExternalErrors.WithLabelValues("store_update").Inc()
		log.Warn("marking job processing failed", zap.Error(err))
		return
	}
	job.Status = models.JobProcessing
	if err := c.client.AssignJob(ctx, m.ID, job); err != nil {
		telemetry.ExternalErrors.WithLabelValues("publish").Inc()
		log.Warn("publishing job failed", zap.Error(err))
		return
	}
	c.registry.Claim(m.ID, job)
	c.pending[m.ID] = assignment{job: job, tick: c.ticks}
	if d.Kind == DecisionRiskyAssign {
		log.Warn("job exceeds remain_time, assigning shortest job",
			zap.Int("remaining_job_time", job.RemainingJobTime), zap.Int("remain_time", m.RemainTime))
		return
	}
	log.Info("job assigned", zap.Int("remaining_job_time", job.RemainingJobTime), zap.Int("remain_time", m.RemainTime))
}

// expirePending releases assignments that were not confirmed within
// pendingTicks, whatever the machine is doing now.
func (c *Coordinator) expirePending() {
	for id, p := range c.pending {
		if c.ticks-p.tick < pendingTicks {
			continue
		}
		delete(c.pending, id)
		c.log.Warn("assignment not confirmed, job is free again",
			zap.String("machine_id", id), zap.String("job_id", p.job.ID))
	}
}

// claims are the jobs held by registered machines or awaiting confirmation.
func (c *Coordinator) claims() map[string]string {
	out := c.registry.Claims()
	for id, p := range c.pending {
		out[p.job.ID] = id
	}
	return out
}

// repair orders a machine into maintenance and reports whether the command
// went out.
func (c *Coordinator) repair(ctx context.Context, machineID string, repairTime int) bool {
	if err := c.client.Repair(ctx, machineID, repairTime); err != nil {
		telemetry.ExternalErrors.WithLabelValues("publish").Inc()
		c.log.Warn("publishing repair failed", zap.String("machine_id", machineID), zap.Error(err))
		return false
	}
	c.registry.SetStatus(machineID, models.StatusMaintenance)
	return true
}

// handleBroken hands the failed machine's job back to the store and sends
// the machine to repair.
func (c *Coordinator) handleBroken(ctx context.Context, m models.Machine) {
	log := c.log.With(zap.String("machine_id", m.ID))
	if repairTime, ok := c.repairs[m.ID]; ok {
		// a report from before the repair arrived; repeat the same order
		log.Debug("repair already ordered", zap.Int("repair_time", repairTime))
		c.repair(ctx, m.ID, repairTime)
		return
	}
	if m.HasJob() {
		status, remaining := models.JobFinished, 0
		if m.Job.RemainingJobTime > 0 {
			status, remaining = models.JobUnfinished, m.Job.RemainingJobTime
		}
		if err := c.updateJob(ctx, m.Job.ID, status, remaining); err != nil {
			log.Warn("returning job of broken machine failed", zap.String("job_id", m.Job.ID), zap.Error(err))
			return
		}
		log.Info("job returned from broken machine",
			zap.String("job_id", m.Job.ID), zap.String("status", string(status)), zap.Int("remaining_job_time", remaining))
	}

	repairTime, severity := c.settings.RepairTime, "normal"
	if c.rng.IntN(100) < c.settings.TotalDamageProbability {
		repairTime, severity = c.settings.TotalDamageRepairTime, "total_damage"
	}
	if c.repair(ctx, m.ID, repairTime) {
		c.repairs[m.ID] = repairTime
		telemetry.Repairs.WithLabelValues(severity).Inc()
		log.Info("machine broken, repair ordered", zap.String("severity", severity), zap.Int("repair_time", repairTime))
	}
}

// completeJob finishes the job in the store and acknowledges it to the
// machine. The ack repeats every tick until the machine reports RUNNABLE.
func (c *Coordinator) completeJob(ctx context.Context, m models.Machine) {
	log := c.log.With(zap.String("machine_id", m.ID), zap.String("job_id", m.Job.ID))
	if c.acked[m.ID] != m.Job.ID {
		if err := c.updateJob(ctx, m.Job.ID, models.JobFinished, 0); err != nil {
			log.Warn("finishing job failed", zap.Error(err))
			return
		}
		c.acked[m.ID] = m.Job.ID
		telemetry.JobsFinished.Inc()
		log.Info("job finished")
	}
	job := m.Job
	job.Status = models.JobFinished
	job.RemainingJobTime = 0
	if err := c.client.FinishJob(ctx, m.ID, job); err != nil {
		telemetry.ExternalErrors.WithLabelValues("publish").Inc()
		log.Warn("publishing finished job failed", zap.Error(err))
	}
}

func (c *Coordinator) updateJob(ctx context.Context, jobID string, status models.JobStatus, remaining int) error {
	if err := c.store.Update(ctx, jobID, models.FieldStatus, status); err != nil {
		telemetry.ExternalErrors.WithLabelValues("store_update").Inc()
		return err
	}
	if err := c.store.Update(ctx, jobID, models.FieldRemainingJobTime, remaining); err != nil {
		telemetry.ExternalErrors.WithLabelValues("store_update").Inc()
		return err
	}
	return nil
}

// publishPrediction predicts the machine's remain_time and sends it.
func (c *Coordinator) publishPrediction(ctx context.Context, m models.Machine) (int, bool) {
	y, err := c.model.Predict(ctx, predict.Features(m.Features()))
	if err != nil {
		telemetry.ExternalErrors.WithLabelValues("model").Inc()
		c.log.Warn("prediction failed", zap.String("machine_id", m.ID), zap.Error(err))
		return 0, false
	}
	rt := predict.RemainTime(y)
	if err := c.client.SetRemainTime(ctx, m.ID, rt); err != nil {
		telemetry.ExternalErrors.WithLabelValues("publish").Inc()
		c.log.Warn("publishing remain_time failed", zap.String("machine_id", m.ID), zap.Error(err))
		return 0, false
	}
	return rt, true
}

func (c *Coordinator) updateGauges() {
	counts := c.registry.Counts()
	for _, s := range []models.Status{models.StatusRunnable, models.StatusWorking, models.StatusBroken, models.StatusMaintenance} {
		telemetry.Machines.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
}

// checkCompletion uploads the recorded data once every time the fleet goes
// idle with no outstanding jobs.
func (c *Coordinator) checkCompletion(ctx context.Context) {
	done := false
	if c.registry.All(models.StatusRunnable) {
		jobs, err := c.store.GetAll(ctx)
		if err != nil {
			telemetry.ExternalErrors.WithLabelValues("store_get_all").Inc()
			c.log.Warn("completion check skipped", zap.Error(err))
			return
		}
		outstanding := 0
		for _, j := range jobs {
			if j.Outstanding() {
				outstanding++
			}
		}
		telemetry.OutstandingJobs.Set(float64(outstanding))
		done = outstanding == 0
	}
	if !c.latch.Observe(done) {
		return
	}
	if c.recorder == nil || c.blobs == nil {
		c.log.Info("all jobs done, recording disabled, nothing to upload")
		return
	}
	name, err := c.blobs.Upload(ctx, c.recorder.Path())
	if err != nil {
		c.latch.Rearm()
		telemetry.ExternalErrors.WithLabelValues("upload").Inc()
		c.log.Warn("uploading training data failed, retrying next tick", zap.Error(err))
		return
	}
	telemetry.Uploads.Inc()
	c.log.Info("all jobs done, training data uploaded", zap.String("blob", name))
}
