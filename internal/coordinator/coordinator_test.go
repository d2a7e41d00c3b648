package coordinator

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"github.com/devghori1264/aerophoenix/edgefleet/internal/codec"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/jobs"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/models"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/predict"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/protocol"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/storage"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/telemetry"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/training"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/transport"
)

func job(id string, remaining int) models.Job {
	return models.Job{ID: id, JobTime: remaining, RemainingJobTime: remaining, Quantity: 1, Type: models.JobNormal, Status: models.JobUnfinished}
}

func machine(id string, status models.Status, remain, workingTime int) models.Machine {
	m := models.NewMachine(id)
	m.Status = status
	m.RemainTime = remain
	m.WorkingTime = workingTime
	return m
}

func TestPolicyDecide(t *testing.T) {
	cases := []struct {
		name   string
		policy Policy
		m      models.Machine
		jobs   []models.Job
		want   DecisionKind
		jobID  string
	}{
		{"first fit", Policy{Prediction: true, RepairTime: 5}, machine("m", models.StatusRunnable, 10, 3), []models.Job{job("A", 12), job("B", 8)}, DecisionAssign, "B"},
		{"first fit keeps store order", Policy{Prediction: true}, machine("m", models.StatusRunnable, 10, 3), []models.Job{job("A", 9), job("B", 2)}, DecisionAssign, "A"},
		{"fit is strict", Policy{Prediction: true, RepairTime: 5}, machine("m", models.StatusRunnable, 8, 3), []models.Job{job("A", 8)}, DecisionMaintenance, ""},
		{"shortest without prediction", Policy{}, machine("m", models.StatusRunnable, -1, 0), []models.Job{job("A", 10), job("B", 3)}, DecisionAssign, "B"},
		{"shortest ties keep first", Policy{}, machine("m", models.StatusRunnable, -1, 0), []models.Job{job("A", 3), job("B", 3)}, DecisionAssign, "A"},
		{"fresh machine takes risk", Policy{Prediction: true, RepairTime: 5}, machine("m", models.StatusRunnable, 2, 0), []models.Job{job("A", 5), job("B", 3)}, DecisionRiskyAssign, "B"},
		{"worn machine goes to maintenance", Policy{Prediction: true, RepairTime: 5}, machine("m", models.StatusRunnable, 2, 50), []models.Job{job("A", 5), job("B", 3)}, DecisionMaintenance, ""},
		{"no jobs", Policy{Prediction: true}, machine("m", models.StatusRunnable, 10, 0), nil, DecisionIdle, ""},
		{"no prediction yet", Policy{Prediction: true}, machine("m", models.StatusRunnable, models.NotPredicted, 0), []models.Job{job("A", 1)}, DecisionAwaitPrediction, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := tc.policy.Decide(tc.m, tc.jobs)
			if d.Kind != tc.want {
				t.Fatalf("decision %s want %s", d.Kind, tc.want)
			}
			if d.Job.ID != tc.jobID {
				t.Fatalf("job %q want %q", d.Job.ID, tc.jobID)
			}
			if d.Kind == DecisionMaintenance && d.RepairTime != tc.policy.RepairTime {
				t.Fatalf("repair time %d", d.RepairTime)
			}
		})
	}
}

func TestCandidates(t *testing.T) {
	done := job("done", 0)
	done.Status = models.JobFinished
	empty := job("empty", 0)
	jobs := []models.Job{job("a", 4), done, job("claimed", 3), empty, job("b", 1)}
	got := Candidates(jobs, map[string]string{"claimed": "m1"})
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("candidates %+v", got)
	}
}

func TestLatch(t *testing.T) {
	var l Latch
	seq := []struct {
		cond bool
		fire bool
	}{{false, false}, {true, true}, {true, false}, {true, false}, {false, false}, {true, true}}
	for i, s := range seq {
		if got := l.Observe(s.cond); got != s.fire {
			t.Fatalf("step %d: fired %v want %v", i, got, s.fire)
		}
	}
	l.Rearm()
	if !l.Observe(true) {
		t.Fatalf("rearmed latch did not fire")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if r.All(models.StatusRunnable) {
		t.Fatalf("empty registry reported all runnable")
	}
	if !r.Upsert(machine("b", models.StatusRunnable, -1, 0)) {
		t.Fatalf("first upsert not reported as new")
	}
	r.Upsert(machine("a", models.StatusRunnable, -1, 0))
	if r.Upsert(machine("b", models.StatusWorking, 7, 1)) {
		t.Fatalf("second upsert reported as new")
	}
	list := r.List()
	if len(list) != 2 || list[0].ID != "b" || list[1].ID != "a" {
		t.Fatalf("order %+v", list)
	}
	if b, _ := r.Get("b"); b.Status != models.StatusWorking || b.RemainTime != 7 {
		t.Fatalf("last write did not win: %+v", b)
	}

	r.Claim("a", job("j1", 3))
	if claims := r.Claims(); claims["j1"] != "a" || len(claims) != 1 {
		t.Fatalf("claims %v", claims)
	}
	r.SetStatus("b", models.StatusMaintenance)
	counts := r.Counts()
	if counts[models.StatusWorking] != 1 || counts[models.StatusMaintenance] != 1 {
		t.Fatalf("counts %v", counts)
	}
	r.SetStatus("ghost", models.StatusBroken)
	if r.Len() != 2 {
		t.Fatalf("unknown id was registered")
	}
}

type fakeModel struct {
	y   float64
	err error
}

func (f fakeModel) Predict(context.Context, predict.Features) (float64, error) { return f.y, f.err }

type fakeBlobs struct {
	mu      sync.Mutex
	fail    int
	uploads []string
}

func (f *fakeBlobs) Upload(_ context.Context, localPath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return "", errors.New("container unavailable")
	}
	if _, err := os.Stat(localPath); err != nil {
		return "", err
	}
	f.uploads = append(f.uploads, localPath)
	return "upload.csv", nil
}

func (f *fakeBlobs) Download(context.Context, string, string) error { return nil }

type harness struct {
	t     *testing.T
	c     *Coordinator
	store *storage.MemoryStore
	mu    sync.Mutex
	sent  []transport.Message
}

func newHarness(t *testing.T, settings Settings, jobs []models.Job, opts ...Option) *harness {
	t.Helper()
	bus := transport.NewBus()
	t.Cleanup(func() { bus.Close() })
	h := &harness{t: t, store: storage.NewMemoryStore(jobs...)}
	for _, kind := range protocol.CommandKinds {
		_, err := bus.Subscribe(kind.Subject("*"), func(subject string, payload []byte) {
			h.mu.Lock()
			h.sent = append(h.sent, transport.Message{Subject: subject, Payload: payload})
			h.mu.Unlock()
		})
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}
	opts = append([]Option{WithLogger(zaptest.NewLogger(t)), WithRand(rand.New(rand.NewPCG(1, 2)))}, opts...)
	c, err := New(settings, protocol.NewClient(bus, codec.JSON{}), h.store, opts...)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	h.c = c
	return h
}

func (h *harness) report(m models.Machine) {
	h.t.Helper()
	data, err := codec.JSON{}.Marshal(m)
	if err != nil {
		h.t.Fatalf("encode snapshot: %v", err)
	}
	h.c.HandleSnapshot(context.Background(), data)
}

// commands returns and clears the decoded commands sent so far.
func (h *harness) commands() []protocol.Command {
	h.t.Helper()
	h.mu.Lock()
	sent := h.sent
	h.sent = nil
	h.mu.Unlock()
	out := make([]protocol.Command, 0, len(sent))
	for _, msg := range sent {
		cmd, err := protocol.DecodeCommand(codec.JSON{}, msg.Subject, msg.Payload)
		if err != nil {
			h.t.Fatalf("decode %s: %v", msg.Subject, err)
		}
		out = append(out, cmd)
	}
	return out
}

func (h *harness) job(id string) models.Job {
	h.t.Helper()
	found, err := h.store.Search(context.Background(), models.FieldJobID, id)
	if err != nil || len(found) != 1 {
		h.t.Fatalf("search %s: %v %v", id, found, err)
	}
	return found[0]
}

func TestTickAssignsEachJobOnce(t *testing.T) {
	h := newHarness(t, DefaultSettings(), []models.Job{job("A", 10), job("B", 3)})
	h.report(machine("m1", models.StatusRunnable, -1, 0))
	h.report(machine("m2", models.StatusRunnable, -1, 0))
	h.report(machine("m3", models.StatusRunnable, -1, 0))

	h.c.Tick(context.Background())

	got := map[string]string{}
	for _, cmd := range h.commands() {
		if cmd.Kind != protocol.CommandJob {
			t.Fatalf("unexpected command %+v", cmd)
		}
		if prev, dup := got[cmd.Job.ID]; dup {
			t.Fatalf("job %s sent to %s and %s", cmd.Job.ID, prev, cmd.MachineID)
		}
		got[cmd.Job.ID] = cmd.MachineID
	}
	if got["B"] != "m1" || got["A"] != "m2" || len(got) != 2 {
		t.Fatalf("assignments %v", got)
	}
	for _, id := range []string{"A", "B"} {
		if s := h.job(id).Status; s != models.JobProcessing {
			t.Fatalf("job %s status %s", id, s)
		}
	}
	if m, _ := h.c.Registry().Get("m1"); m.Status != models.StatusWorking || m.Job.ID != "B" {
		t.Fatalf("claim not recorded: %+v", m)
	}

	// a stale RUNNABLE report must not free the claimed jobs
	h.c.Tick(context.Background())
	if cmds := h.commands(); len(cmds) != 0 {
		t.Fatalf("jobs re-dispatched: %+v", cmds)
	}
}

func TestStaleReportKeepsClaim(t *testing.T) {
	h := newHarness(t, DefaultSettings(), []models.Job{job("A", 5)})
	h.report(machine("m1", models.StatusRunnable, -1, 0))
	h.c.Tick(context.Background())
	if cmds := h.commands(); len(cmds) != 1 || cmds[0].MachineID != "m1" {
		t.Fatalf("expected A for m1, got %+v", cmds)
	}

	// m1 published RUNNABLE before the command reached it
	h.report(machine("m1", models.StatusRunnable, -1, 0))
	h.report(machine("m2", models.StatusRunnable, -1, 0))
	for i := 1; i < pendingTicks; i++ {
		h.c.Tick(context.Background())
		if cmds := h.commands(); len(cmds) != 0 {
			t.Fatalf("tick %d: claimed job dispatched again: %+v", i, cmds)
		}
	}

	// never confirmed: the job and the machine are released
	h.c.Tick(context.Background())
	cmds := h.commands()
	if len(cmds) != 1 || cmds[0].Job.ID != "A" || cmds[0].MachineID != "m1" {
		t.Fatalf("expected A re-sent to m1, got %+v", cmds)
	}
}

func TestConfirmedAssignmentReleasesPending(t *testing.T) {
	h := newHarness(t, DefaultSettings(), []models.Job{job("A", 5), job("B", 7)})
	h.report(machine("m1", models.StatusRunnable, -1, 0))
	h.c.Tick(context.Background())
	h.commands()

	working := machine("m1", models.StatusWorking, -1, 1)
	working.Job = job("A", 4)
	working.Job.Status = models.JobProcessing
	h.report(working)
	if len(h.c.pending) != 0 {
		t.Fatalf("pending not cleared: %v", h.c.pending)
	}
	if claims := h.c.claims(); claims["A"] != "m1" || len(claims) != 1 {
		t.Fatalf("claims %v", claims)
	}
}

func TestRejectedAssignmentFreesJob(t *testing.T) {
	h := newHarness(t, DefaultSettings(), []models.Job{job("A", 3)})
	h.report(machine("m1", models.StatusRunnable, -1, 0))
	h.c.Tick(context.Background())
	if cmds := h.commands(); len(cmds) != 1 || cmds[0].MachineID != "m1" {
		t.Fatalf("expected A for m1, got %+v", cmds)
	}

	// m1 went to repair instead of taking the job
	repairing := machine("m1", models.StatusMaintenance, -1, 0)
	repairing.RemainingRepairTime = 40
	h.report(repairing)
	h.report(machine("m2", models.StatusRunnable, -1, 0))
	h.c.Tick(context.Background())
	cmds := h.commands()
	if len(cmds) != 1 || cmds[0].Job.ID != "A" || cmds[0].MachineID != "m2" {
		t.Fatalf("expected A for m2, got %+v", cmds)
	}
}

func TestUnconfirmedAssignmentExpiresWhileMachineBusy(t *testing.T) {
	h := newHarness(t, DefaultSettings(), []models.Job{job("A", 3)})
	h.report(machine("m1", models.StatusRunnable, -1, 0))
	h.c.Tick(context.Background())
	h.commands()

	// the registry moves m1 to maintenance without a report from m1
	h.c.Registry().Upsert(machine("m1", models.StatusMaintenance, -1, 0))
	h.report(machine("m2", models.StatusRunnable, -1, 0))
	for i := 1; i < pendingTicks; i++ {
		h.c.Tick(context.Background())
		if cmds := h.commands(); len(cmds) != 0 {
			t.Fatalf("tick %d: job released early: %+v", i, cmds)
		}
	}
	h.c.Tick(context.Background())
	cmds := h.commands()
	if len(cmds) != 1 || cmds[0].Job.ID != "A" || cmds[0].MachineID != "m2" {
		t.Fatalf("expected A for m2, got %+v", cmds)
	}
	if len(h.c.pending) != 1 || h.c.pending["m2"].job.ID != "A" {
		t.Fatalf("pending %v", h.c.pending)
	}
}

func TestTickPredictionFirstFit(t *testing.T) {
	s := DefaultSettings()
	s.Prediction = true
	h := newHarness(t, s, []models.Job{job("A", 12), job("B", 8)}, WithModel(fakeModel{y: 10.9}))

	h.report(machine("m1", models.StatusRunnable, models.NotPredicted, 0))
	cmds := h.commands()
	if len(cmds) != 1 || cmds[0].Kind != protocol.CommandRemainTime || cmds[0].RemainTime != 10 {
		t.Fatalf("expected remain_time 10, got %+v", cmds)
	}

	// still unpredicted in the registry until the machine reports back
	h.c.Tick(context.Background())
	if cmds := h.commands(); len(cmds) != 0 {
		t.Fatalf("unpredicted machine was dispatched: %+v", cmds)
	}

	h.report(machine("m1", models.StatusRunnable, 10, 0))
	h.c.Tick(context.Background())
	cmds = h.commands()
	if len(cmds) != 1 || cmds[0].Kind != protocol.CommandJob || cmds[0].Job.ID != "B" {
		t.Fatalf("expected job B, got %+v", cmds)
	}
}

func TestTickPreventiveMaintenance(t *testing.T) {
	s := DefaultSettings()
	s.Prediction = true
	h := newHarness(t, s, []models.Job{job("A", 5), job("B", 3)}, WithModel(fakeModel{y: 2}))
	h.report(machine("m1", models.StatusRunnable, 2, 50))

	h.c.Tick(context.Background())
	cmds := h.commands()
	if len(cmds) != 1 || cmds[0].Kind != protocol.CommandRepair || cmds[0].RepairTime != 5 {
		t.Fatalf("expected repair 5, got %+v", cmds)
	}
	if m, _ := h.c.Registry().Get("m1"); m.Status != models.StatusMaintenance {
		t.Fatalf("status %s", m.Status)
	}
	if h.job("B").Status != models.JobUnfinished {
		t.Fatalf("job changed by maintenance")
	}
}

func TestTickWorkingRefreshesPrediction(t *testing.T) {
	s := DefaultSettings()
	s.Prediction = true
	h := newHarness(t, s, nil, WithModel(fakeModel{y: -4}))
	m := machine("m1", models.StatusWorking, 9, 3)
	m.Job = job("A", 2)
	h.report(m)

	h.c.Tick(context.Background())
	cmds := h.commands()
	if len(cmds) != 1 || cmds[0].Kind != protocol.CommandRemainTime || cmds[0].RemainTime != 0 {
		t.Fatalf("expected clamped remain_time 0, got %+v", cmds)
	}
}

func TestTickBrokenReturnsJob(t *testing.T) {
	for _, tc := range []struct {
		name      string
		prob      int
		remaining int
		status    models.JobStatus
		repair    int
	}{
		{"total damage", 100, 4, models.JobUnfinished, 50},
		{"normal failure", 0, 4, models.JobUnfinished, 5},
		{"failed on last step", 0, 0, models.JobFinished, 5},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := DefaultSettings()
			s.TotalDamageProbability = tc.prob
			a := job("A", 10)
			a.Status = models.JobProcessing
			h := newHarness(t, s, []models.Job{a})

			m := machine("m1", models.StatusBroken, -1, 6)
			m.Job = a
			m.Job.RemainingJobTime = tc.remaining
			h.report(m)
			h.c.Tick(context.Background())

			got := h.job("A")
			if got.Status != tc.status || got.RemainingJobTime != tc.remaining {
				t.Fatalf("job after failure %+v", got)
			}
			cmds := h.commands()
			if len(cmds) != 1 || cmds[0].Kind != protocol.CommandRepair || cmds[0].RepairTime != tc.repair {
				t.Fatalf("expected repair %d, got %+v", tc.repair, cmds)
			}
			if r, _ := h.c.Registry().Get("m1"); r.Status != models.StatusMaintenance {
				t.Fatalf("status %s", r.Status)
			}
		})
	}
}

func TestStaleBrokenReportRepeatsRepair(t *testing.T) {
	s := DefaultSettings()
	s.TotalDamageProbability = 100
	a := job("A", 10)
	a.Status = models.JobProcessing
	h := newHarness(t, s, []models.Job{a})
	total := telemetry.Repairs.WithLabelValues("total_damage")
	before := testutil.ToFloat64(total)

	broken := machine("m1", models.StatusBroken, -1, 6)
	broken.Job = a
	broken.Job.RemainingJobTime = 4
	h.report(broken)
	h.c.Tick(context.Background())
	h.commands()

	// the job was handed out again before the stale report arrives
	if err := h.store.Update(context.Background(), "A", models.FieldStatus, models.JobProcessing); err != nil {
		t.Fatalf("update: %v", err)
	}
	h.c.settings.TotalDamageProbability = 0
	h.report(broken)
	h.c.Tick(context.Background())
	cmds := h.commands()
	if len(cmds) != 1 || cmds[0].Kind != protocol.CommandRepair || cmds[0].RepairTime != 50 {
		t.Fatalf("expected the same repair again, got %+v", cmds)
	}
	if got := h.job("A"); got.Status != models.JobProcessing {
		t.Fatalf("job rewritten by stale report: %+v", got)
	}
	if got := testutil.ToFloat64(total) - before; got != 1 {
		t.Fatalf("repairs counted %v times", got)
	}

	// once the machine reports maintenance, a later failure is new
	h.report(machine("m1", models.StatusMaintenance, -1, 0))
	if _, ok := h.c.repairs["m1"]; ok {
		t.Fatalf("repair not cleared after maintenance report")
	}
}

func TestTickBrokenWithoutJob(t *testing.T) {
	h := newHarness(t, DefaultSettings(), []models.Job{job("A", 3)})
	h.report(machine("m1", models.StatusBroken, -1, 6))
	h.c.Tick(context.Background())
	cmds := h.commands()
	if len(cmds) != 1 || cmds[0].Kind != protocol.CommandRepair {
		t.Fatalf("got %+v", cmds)
	}
	if h.job("A").Status != models.JobUnfinished {
		t.Fatalf("unrelated job touched")
	}
}

func TestTickAcknowledgesFinishedJob(t *testing.T) {
	a := job("A", 3)
	a.Status = models.JobProcessing
	h := newHarness(t, DefaultSettings(), []models.Job{a})
	m := machine("m1", models.StatusWorking, -1, 3)
	m.Job = a
	m.Job.RemainingJobTime = 0
	h.report(m)

	for i := 0; i < 2; i++ {
		h.c.Tick(context.Background())
		cmds := h.commands()
		if len(cmds) != 1 || cmds[0].Kind != protocol.CommandFinishedJob || cmds[0].Job.ID != "A" {
			t.Fatalf("tick %d: expected ack, got %+v", i, cmds)
		}
	}
	if got := h.job("A"); got.Status != models.JobFinished || got.RemainingJobTime != 0 {
		t.Fatalf("job %+v", got)
	}
}

func TestResetJobCompletesAgainOnSameMachine(t *testing.T) {
	ctx := context.Background()
	a := job("A", 3)
	a.Status = models.JobProcessing
	h := newHarness(t, DefaultSettings(), []models.Job{a})

	finished := machine("m1", models.StatusWorking, -1, 3)
	finished.Job = a
	finished.Job.RemainingJobTime = 0
	h.report(finished)
	h.c.Tick(ctx)
	h.commands()
	h.report(machine("m1", models.StatusRunnable, -1, 3))

	if _, err := jobs.ResetStale(ctx, h.store, true); err != nil {
		t.Fatalf("reset: %v", err)
	}
	h.c.Tick(ctx)
	cmds := h.commands()
	if len(cmds) != 1 || cmds[0].Kind != protocol.CommandJob || cmds[0].Job.ID != "A" {
		t.Fatalf("expected A reassigned, got %+v", cmds)
	}

	h.report(finished)
	h.c.Tick(ctx)
	if got := h.job("A"); got.Status != models.JobFinished || got.RemainingJobTime != 0 {
		t.Fatalf("second completion not stored: %+v", got)
	}
}

func TestHandleSnapshotRejectsMalformed(t *testing.T) {
	h := newHarness(t, DefaultSettings(), nil)
	for _, payload := range []string{`{`, `{"machine_id":"m1"}`, `{"machine_id":"none","status":"RUNNABLE"}`} {
		h.c.HandleSnapshot(context.Background(), []byte(payload))
	}
	if h.c.Registry().Len() != 0 {
		t.Fatalf("malformed snapshot registered")
	}
}

func TestCompletionUploadsOncePerBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.csv")
	blobs := &fakeBlobs{fail: 1}
	done := job("A", 3)
	done.Status = models.JobFinished
	done.RemainingJobTime = 0
	h := newHarness(t, DefaultSettings(), []models.Job{done},
		WithRecorder(training.NewRecorder(path)), WithBlobs(blobs))

	h.report(machine("m1", models.StatusRunnable, -1, 0))
	h.c.Tick(context.Background()) // upload fails, latch re-armed
	if len(blobs.uploads) != 0 {
		t.Fatalf("upload should have failed")
	}
	for i := 0; i < 3; i++ {
		h.c.Tick(context.Background())
	}
	if len(blobs.uploads) != 1 || blobs.uploads[0] != path {
		t.Fatalf("uploads %v want exactly one", blobs.uploads)
	}

	// a new batch: the fleet works, then goes idle again
	if _, err := h.store.Insert(context.Background(), job("B", 2)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	h.c.Tick(context.Background())
	if r, _ := h.c.Registry().Get("m1"); r.Status != models.StatusWorking {
		t.Fatalf("new job not dispatched")
	}
	if err := h.store.Update(context.Background(), "B", models.FieldStatus, models.JobFinished); err != nil {
		t.Fatalf("update: %v", err)
	}
	h.report(machine("m1", models.StatusRunnable, -1, 2))
	h.c.Tick(context.Background())
	h.c.Tick(context.Background())
	if len(blobs.uploads) != 2 {
		t.Fatalf("uploads %v want two", blobs.uploads)
	}
}

func TestNewRequiresModelForPrediction(t *testing.T) {
	s := DefaultSettings()
	s.Prediction = true
	if _, err := New(s, protocol.NewClient(transport.NewBus(), nil), storage.NewMemoryStore()); err == nil {
		t.Fatalf("expected error without model")
	}
}
