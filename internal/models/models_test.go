package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestStatusText(t *testing.T) {
	for _, s := range []Status{StatusRunnable, StatusWorking, StatusBroken, StatusMaintenance} {
		b, err := s.MarshalText()
		if err != nil {
			t.Fatalf("marshal %v: %v", s, err)
		}
		var got Status
		if err := got.UnmarshalText(b); err != nil {
			t.Fatalf("unmarshal %s: %v", b, err)
		}
		if got != s {
			t.Fatalf("got %v want %v", got, s)
		}
	}
	if _, err := ParseStatus("MAINTANCE"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
	if _, err := Status(0).MarshalText(); err == nil {
		t.Fatalf("expected error for zero status")
	}
}

func TestNewMachineIsReset(t *testing.T) {
	m := NewMachine("m1")
	if m.Status != StatusRunnable || m.Predicted() || m.HasJob() {
		t.Fatalf("unexpected fresh machine: %+v", m)
	}
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	_ = json.Unmarshal(b, &raw)
	if raw["status"] != "RUNNABLE" {
		t.Fatalf("status on the wire = %v", raw["status"])
	}
	job := raw["job"].(map[string]any)
	if job["job_id"] != NoneID {
		t.Fatalf("sentinel job id on the wire = %v", job["job_id"])
	}
}

func TestJobSetField(t *testing.T) {
	j := Job{ID: "a", JobTime: 10, RemainingJobTime: 10, Quantity: 3, Type: JobSoft, Status: JobUnfinished}

	if err := j.SetField(FieldStatus, "processing"); err != nil {
		t.Fatalf("status: %v", err)
	}
	if err := j.SetField(FieldRemainingJobTime, float64(4)); err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if j.Status != JobProcessing || j.RemainingJobTime != 4 {
		t.Fatalf("unexpected job %+v", j)
	}
	if err := j.SetField(FieldRemainingJobTime, 1.5); !errors.Is(err, ErrFieldValue) {
		t.Fatalf("fractional value: got %v", err)
	}
	if err := j.SetField(FieldStatus, "lost"); !errors.Is(err, ErrFieldValue) {
		t.Fatalf("bad status: got %v", err)
	}
	if err := j.SetField(FieldJobID, "b"); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("job id must not be settable: got %v", err)
	}
}

func TestJobFieldEquals(t *testing.T) {
	j := Job{ID: "a", JobTime: 10, RemainingJobTime: 0, Status: JobFinished, Type: JobHard}
	cases := []struct {
		field string
		value any
		want  bool
	}{
		{FieldStatus, "finished", true},
		{FieldStatus, JobProcessing, false},
		{FieldRemainingJobTime, 0, true},
		{FieldRemainingJobTime, float64(3), false},
		{FieldJobID, "a", true},
		{FieldType, "soft", false},
	}
	for _, c := range cases {
		got, err := j.FieldEquals(c.field, c.value)
		if err != nil {
			t.Fatalf("%s=%v: %v", c.field, c.value, err)
		}
		if got != c.want {
			t.Fatalf("%s=%v: got %v want %v", c.field, c.value, got, c.want)
		}
	}
}

func TestCheckField(t *testing.T) {
	if err := CheckField(FieldJobID, "a"); err != nil {
		t.Fatalf("job_id: %v", err)
	}
	if err := CheckField(FieldRemainingJobTime, "7"); err != nil {
		t.Fatalf("remaining_job_time: %v", err)
	}
	if err := CheckField("colour", "red"); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("unknown field: %v", err)
	}
	if err := CheckField(FieldType, "brittle"); !errors.Is(err, ErrFieldValue) {
		t.Fatalf("bad type: %v", err)
	}
}

func TestJobNormalize(t *testing.T) {
	j := Job{JobTime: 5, RemainingJobTime: 9}.Normalize()
	if j.RemainingJobTime != 5 {
		t.Fatalf("remaining not clamped to job_time: %d", j.RemainingJobTime)
	}
	j = Job{JobTime: 5, RemainingJobTime: -2}.Normalize()
	if j.RemainingJobTime != 0 {
		t.Fatalf("negative remaining not clamped: %d", j.RemainingJobTime)
	}
	if !NoJob().IsNone() || (Job{ID: "x"}).IsNone() {
		t.Fatalf("sentinel detection broken")
	}
}
