package machine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/devghori1264/aerophoenix/edgefleet/internal/protocol"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/transport"
)

// Runner drives one Machine: a single goroutine selects over the tick timer
// and the command mailbox, so commands and ticks never interleave.
type Runner struct {
	machine *Machine
	client  *protocol.Client
	log     *zap.Logger
	tick    time.Duration
	mailbox *transport.Mailbox
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithTickInterval sets the wall time of one tick.
func WithTickInterval(d time.Duration) RunnerOption {
	return func(r *Runner) { r.tick = d }
}

func WithLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) { r.log = l }
}

// WithMailboxSize bounds the number of queued commands.
func WithMailboxSize(n int) RunnerOption {
	return func(r *Runner) { r.mailbox = transport.NewMailbox(n) }
}

func NewRunner(m *Machine, client *protocol.Client, opts ...RunnerOption) *Runner {
	r := &Runner{
		machine: m,
		client:  client,
		log:     zap.NewNop(),
		tick:    time.Second,
		mailbox: transport.NewMailbox(64),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With(zap.String("machine_id", m.ID()))
	return r
}

// Run subscribes to the machine's command subjects and loops until ctx is
// done.
func (r *Runner) Run(ctx context.Context) error {
	var subs []transport.Subscription
	defer func() {
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
	}()
	for _, kind := range protocol.CommandKinds {
		s, err := r.client.Transport().Subscribe(kind.Subject(r.machine.ID()), r.mailbox.Handler())
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", kind, err)
		}
		subs = append(subs, s)
	}

	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()
	r.log.Info("machine started", zap.Duration("tick", r.tick))

	for {
		select {
		case <-ctx.Done():
			r.log.Info("machine stopped")
			return nil
		case msg := <-r.mailbox.C():
			r.Handle(msg)
		case <-ticker.C:
			r.Step(ctx)
		}
	}
}

// Step runs one tick and publishes the resulting snapshot.
func (r *Runner) Step(ctx context.Context) {
	r.machine.Tick()
	snap := r.machine.Snapshot()
	r.log.Debug("tick",
		zap.Stringer("status", snap.Status),
		zap.Int("working_time", snap.WorkingTime),
		zap.Int("remain_time", snap.RemainTime),
		zap.Float64("wear", snap.Wear),
		zap.Float64("alignment", snap.Alignment),
		zap.Float64("temperature", snap.Temperature),
		zap.String("job_id", snap.Job.ID),
		zap.Int("remaining_job_time", snap.Job.RemainingJobTime),
	)
	if err := r.client.PublishSnapshot(ctx, snap); err != nil {
		r.log.Warn("publish snapshot failed", zap.Error(err))
	}
}

// Handle applies one inbound command to the machine.
func (r *Runner) Handle(msg transport.Message) {
	cmd, err := protocol.DecodeCommand(r.client.Codec(), msg.Subject, msg.Payload)
	if err != nil {
		r.log.Warn("dropping command", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}
	if cmd.MachineID != r.machine.ID() {
		r.log.Warn("command for another machine", zap.String("subject", msg.Subject))
		return
	}
	switch cmd.Kind {
	case protocol.CommandJob:
		err = r.machine.AssignJob(cmd.Job)
	case protocol.CommandRemainTime:
		r.machine.SetRemainTime(cmd.RemainTime)
	case protocol.CommandRepair:
		err = r.machine.StartRepair(cmd.RepairTime)
	case protocol.CommandFinishedJob:
		err = r.machine.FinishJob(cmd.Job.ID)
	}
	if err != nil {
		r.log.Info("command ignored", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}
	snap := r.machine.Snapshot()
	r.log.Debug("command applied",
		zap.String("subject", msg.Subject),
		zap.Stringer("status", snap.Status),
		zap.String("job_id", snap.Job.ID),
	)
}
