package protocol

import (
	"context"
	"errors"
	"testing"

	"github.com/devghori1264/aerophoenix/edgefleet/internal/codec"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/models"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/transport"
)

func TestSnapshotOverBothCodecs(t *testing.T) {
	m := models.NewMachine("press-1")
	m.Status = models.StatusWorking
	m.WorkingTime = 7
	m.Wear = 1.4
	m.Job = models.Job{ID: "j1", JobTime: 10, RemainingJobTime: 3, Quantity: 12, Type: models.JobHard, Status: models.JobProcessing}

	for _, name := range []string{codec.NameJSON, codec.NameCBOR} {
		c, err := codec.Get(name)
		if err != nil {
			t.Fatalf("codec %s: %v", name, err)
		}
		bus := transport.NewBus()
		box := transport.NewMailbox(4)
		if _, err := bus.Subscribe(SubjectMachines, box.Handler()); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		if err := NewClient(bus, c).PublishSnapshot(context.Background(), m); err != nil {
			t.Fatalf("%s publish: %v", name, err)
		}
		msg := <-box.C()
		got, err := DecodeSnapshot(c, msg.Payload)
		if err != nil {
			t.Fatalf("%s decode: %v", name, err)
		}
		if got != m {
			t.Fatalf("%s: got %+v want %+v", name, got, m)
		}
	}
}

func TestDecodeSnapshotRejectsMalformed(t *testing.T) {
	c := codec.JSON{}
	cases := map[string]string{
		"not json":       `{`,
		"missing id":     `{"status":"RUNNABLE","working_time":0,"remain_time":-1,"remaining_repair_time":0,"wear":0,"alignment":0,"temperature":0}`,
		"missing wear":   `{"machine_id":"m1","status":"RUNNABLE","working_time":0,"remain_time":-1,"remaining_repair_time":0,"alignment":0,"temperature":0}`,
		"bad status":     `{"machine_id":"m1","status":"SLEEPING","working_time":0,"remain_time":-1,"remaining_repair_time":0,"wear":0,"alignment":0,"temperature":0}`,
		"dotted id":      `{"machine_id":"m.1","status":"RUNNABLE","working_time":0,"remain_time":-1,"remaining_repair_time":0,"wear":0,"alignment":0,"temperature":0}`,
		"job no runtime": `{"machine_id":"m1","status":"WORKING","working_time":0,"remain_time":-1,"remaining_repair_time":0,"wear":0,"alignment":0,"temperature":0,"job":{"job_id":"j1","job_time":4}}`,
	}
	for name, payload := range cases {
		if _, err := DecodeSnapshot(c, []byte(payload)); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: expected ErrMalformed, got %v", name, err)
		}
	}
}

func TestDecodeSnapshotClamps(t *testing.T) {
	payload := `{"machine_id":"m1","status":"WORKING","working_time":-3,"remain_time":-9,"remaining_repair_time":0,
		"wear":-1,"alignment":0.3,"temperature":0,
		"job":{"job_id":"j1","job_time":4,"remaining_job_time":9,"quantity":2,"type":"soft","status":"processing"}}`
	m, err := DecodeSnapshot(codec.JSON{}, []byte(payload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.WorkingTime != 0 || m.RemainTime != 0 || m.Wear != 0 {
		t.Fatalf("negative attributes not clamped: %+v", m)
	}
	if m.Job.RemainingJobTime != 4 {
		t.Fatalf("remaining_job_time not clamped to job_time: %d", m.Job.RemainingJobTime)
	}

	noJob := `{"machine_id":"m1","status":"RUNNABLE","working_time":0,"remain_time":-1,"remaining_repair_time":0,"wear":0,"alignment":0,"temperature":0,
		"job":{"job_id":"none","job_time":0,"remaining_job_time":0,"quantity":0,"type":"none","status":"none"}}`
	m, err = DecodeSnapshot(codec.JSON{}, []byte(noJob))
	if err != nil {
		t.Fatalf("decode sentinel: %v", err)
	}
	if m.HasJob() || m.Predicted() {
		t.Fatalf("unexpected %+v", m)
	}
}

func TestDecodeCommand(t *testing.T) {
	c := codec.JSON{}
	cmd, err := DecodeCommand(c, CommandRepair.Subject("m1"), []byte(`{"remaining_repair_time":5}`))
	if err != nil || cmd.Kind != CommandRepair || cmd.RepairTime != 5 || cmd.MachineID != "m1" {
		t.Fatalf("repair: %+v %v", cmd, err)
	}
	cmd, err = DecodeCommand(c, CommandRemainTime.Subject("m1"), []byte(`{"remain_time":-4}`))
	if err != nil || cmd.RemainTime != 0 {
		t.Fatalf("remain_time must clamp negatives: %+v %v", cmd, err)
	}
	if _, err := DecodeCommand(c, CommandJob.Subject("m1"), []byte(`{"job_id":"none"}`)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("sentinel assignment accepted: %v", err)
	}
	if _, err := DecodeCommand(c, "reboot.m1", []byte(`{}`)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("unknown subject accepted: %v", err)
	}
	if _, err := ParseCommandSubject("jobs"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("bare subject accepted: %v", err)
	}
}

func TestValidateMachineID(t *testing.T) {
	for _, id := range []string{"", "none", "a.b", "a b", "a*", "a>", "a/b"} {
		if err := ValidateMachineID(id); !errors.Is(err, ErrInvalidMachineID) {
			t.Fatalf("%q accepted", id)
		}
	}
	if err := ValidateMachineID("press-01"); err != nil {
		t.Fatalf("valid id rejected: %v", err)
	}
}
