package training

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/devghori1264/aerophoenix/edgefleet/internal/models"
)

func snap(id string, status models.Status, wt int) models.Machine {
	m := models.NewMachine(id)
	m.Status = status
	m.WorkingTime = wt
	m.Wear = float64(wt) * 0.5
	return m
}

func TestRecorderSkipsMaintenance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.csv")
	r := NewRecorder(path)
	for _, m := range []models.Machine{
		snap("m1", models.StatusRunnable, 0),
		snap("m1", models.StatusWorking, 1),
		snap("m1", models.StatusMaintenance, 0),
		snap("m1", models.StatusBroken, 2),
	} {
		if _, err := r.Record(m); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	rows, err := ReadRows(f)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows want 3", len(rows))
	}
	if rows[2].Status != models.StatusBroken || rows[2].RemainTime != nil || rows[2].Wear != 1 {
		t.Fatalf("unexpected last row %+v", rows[2])
	}
}

func TestLabel(t *testing.T) {
	rows := []Row{
		RowOf(snap("m1", models.StatusRunnable, 0)),
		RowOf(snap("m1", models.StatusWorking, 1)),
		RowOf(snap("m1", models.StatusWorking, 2)),
		RowOf(snap("m1", models.StatusBroken, 3)),
		RowOf(snap("m1", models.StatusRunnable, 0)),
		RowOf(snap("m1", models.StatusWorking, 1)),
	}
	got := Label(rows)
	if len(got) != 4 {
		t.Fatalf("got %d labelled rows want 4 (trailing rows dropped)", len(got))
	}
	for i, want := range []int{3, 2, 1, 0} {
		if got[i].RemainTime == nil || *got[i].RemainTime != want {
			t.Fatalf("row %d: remain_time %v want %d", i, got[i].RemainTime, want)
		}
	}
	if s, ok := got[1].Sample(); !ok || s.RemainTime != 2 || s.Features[0] != 1 {
		t.Fatalf("sample %+v", s)
	}

	var buf bytes.Buffer
	if err := WriteRows(&buf, got); err != nil {
		t.Fatalf("write: %v", err)
	}
	back, err := ReadRows(&buf)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(back) != 4 || *back[0].RemainTime != 3 {
		t.Fatalf("read back %+v", back)
	}
}

func TestSplitByMachine(t *testing.T) {
	rows := []Row{
		RowOf(snap("b", models.StatusRunnable, 0)),
		RowOf(snap("a", models.StatusRunnable, 0)),
		RowOf(snap("b", models.StatusWorking, 1)),
	}
	ids, by := SplitByMachine(rows)
	if len(ids) != 2 || ids[0] != "b" || ids[1] != "a" {
		t.Fatalf("ids %v", ids)
	}
	if len(by["b"]) != 2 || by["b"][1].WorkingTime != 1 {
		t.Fatalf("rows for b: %+v", by["b"])
	}
}

func TestBuildLabelsPerMachine(t *testing.T) {
	rows := []Row{
		RowOf(snap("a", models.StatusWorking, 1)),
		RowOf(snap("b", models.StatusWorking, 5)),
		RowOf(snap("a", models.StatusBroken, 4)),
		RowOf(snap("b", models.StatusWorking, 6)),
		RowOf(snap("b", models.StatusBroken, 9)),
	}
	got := Build(rows)
	if len(got) != 5 {
		t.Fatalf("got %d rows want 5", len(got))
	}
	want := []struct {
		id string
		rt int
	}{{"a", 3}, {"a", 0}, {"b", 4}, {"b", 3}, {"b", 0}}
	for i, w := range want {
		if got[i].MachineID != w.id || *got[i].RemainTime != w.rt {
			t.Fatalf("row %d: %s/%d want %s/%d", i, got[i].MachineID, *got[i].RemainTime, w.id, w.rt)
		}
	}
}
