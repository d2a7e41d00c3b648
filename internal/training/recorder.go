// Package training records machine snapshots and turns them into labelled
// samples for the remain_time model.
package training

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/devghori1264/aerophoenix/edgefleet/internal/models"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/predict"
)

// Header is the column layout of recorded and labelled files.
var Header = []string{"machine_id", "working_time", "remain_time", "wear", "alignment", "temperature", "status"}

// Row is one recorded snapshot. RemainTime is nil until labelled.
type Row struct {
	MachineID   string
	WorkingTime int
	RemainTime  *int
	Wear        float64
	Alignment   float64
	Temperature float64
	Status      models.Status
}

func RowOf(m models.Machine) Row {
	return Row{
		MachineID:   m.ID,
		WorkingTime: m.WorkingTime,
		Wear:        m.Wear,
		Alignment:   m.Alignment,
		Temperature: m.Temperature,
		Status:      m.Status,
	}
}

// Sample converts a labelled row into a model sample.
func (r Row) Sample() (predict.Sample, bool) {
	if r.RemainTime == nil {
		return predict.Sample{}, false
	}
	return predict.Sample{
		Features:   predict.Features{float64(r.WorkingTime), r.Wear, r.Alignment, r.Temperature},
		RemainTime: float64(*r.RemainTime),
	}, true
}

func (r Row) record() []string {
	rt := ""
	if r.RemainTime != nil {
		rt = strconv.Itoa(*r.RemainTime)
	}
	return []string{
		r.MachineID,
		strconv.Itoa(r.WorkingTime),
		rt,
		strconv.FormatFloat(r.Wear, 'f', -1, 64),
		strconv.FormatFloat(r.Alignment, 'f', -1, 64),
		strconv.FormatFloat(r.Temperature, 'f', -1, 64),
		r.Status.String(),
	}
}

// Recorder appends snapshots to a CSV file, writing the header when the
// file is new.
type Recorder struct {
	mu   sync.Mutex
	path string
}

func NewRecorder(path string) *Recorder {
	return &Recorder{path: path}
}

func (r *Recorder) Path() string { return r.path }

// Record appends m unless the machine is in MAINTENANCE. It reports whether
// a row was written.
func (r *Recorder) Record(m models.Machine) (bool, error) {
	if m.Status == models.StatusMaintenance {
		return false, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	_, statErr := os.Stat(r.path)
	fresh := errors.Is(statErr, os.ErrNotExist)
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return false, fmt.Errorf("open training file: %w", err)
	}
	w := csv.NewWriter(f)
	if fresh {
		_ = w.Write(Header)
	}
	_ = w.Write(RowOf(m).record())
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return false, fmt.Errorf("write training file: %w", err)
	}
	return true, f.Close()
}

// ReadRows parses a recorded or labelled CSV.
func ReadRows(rd io.Reader) ([]Row, error) {
	cr := csv.NewReader(rd)
	cr.FieldsPerRecord = len(Header)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	var rows []Row
	for i, rec := range records[1:] {
		row, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRow(rec []string) (Row, error) {
	var (
		r   = Row{MachineID: rec[0]}
		err error
	)
	if r.WorkingTime, err = strconv.Atoi(rec[1]); err != nil {
		return Row{}, err
	}
	if rec[2] != "" {
		v, err := strconv.Atoi(rec[2])
		if err != nil {
			return Row{}, err
		}
		r.RemainTime = &v
	}
	if r.Wear, err = strconv.ParseFloat(rec[3], 64); err != nil {
		return Row{}, err
	}
	if r.Alignment, err = strconv.ParseFloat(rec[4], 64); err != nil {
		return Row{}, err
	}
	if r.Temperature, err = strconv.ParseFloat(rec[5], 64); err != nil {
		return Row{}, err
	}
	if r.Status, err = models.ParseStatus(rec[6]); err != nil {
		return Row{}, err
	}
	return r, nil
}

// WriteRows writes rows with the header.
func WriteRows(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.record()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
