package protocol

import (
	"errors"
	"fmt"
	"math"

	"github.com/devghori1264/aerophoenix/edgefleet/internal/codec"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/models"
)

// ErrMalformed is returned for payloads that cannot be trusted.
var ErrMalformed = errors.New("malformed message")

// RemainTime is the payload of a remain_time command.
type RemainTime struct {
	RemainTime int `json:"remain_time"`
}

// Repair is the payload of a remaining_repair_time command.
type Repair struct {
	RemainingRepairTime int `json:"remaining_repair_time"`
}

// Command is a decoded coordinator-to-machine message.
type Command struct {
	Kind       CommandKind
	MachineID  string
	Job        models.Job
	RemainTime int
	RepairTime int
}

// wireMachine mirrors models.Machine with every field optional so missing
// attributes can be told apart from zero values.
type wireMachine struct {
	ID                  *string        `json:"machine_id"`
	Status              *models.Status `json:"status"`
	WorkingTime         *int           `json:"working_time"`
	RemainTime          *int           `json:"remain_time"`
	RemainingRepairTime *int           `json:"remaining_repair_time"`
	Wear                *float64       `json:"wear"`
	Alignment           *float64       `json:"alignment"`
	Temperature         *float64       `json:"temperature"`
	Job                 *wireJob       `json:"job"`
}

type wireJob struct {
	ID               *string          `json:"job_id"`
	JobTime          *int             `json:"job_time"`
	RemainingJobTime *int             `json:"remaining_job_time"`
	Quantity         *int             `json:"quantity"`
	Type             models.JobType   `json:"type"`
	Status           models.JobStatus `json:"status"`
}

// DecodeSnapshot decodes and validates a machine snapshot. Missing or
// malformed attributes reject the whole snapshot; logically impossible
// values are clamped.
func DecodeSnapshot(c codec.Codec, data []byte) (models.Machine, error) {
	var w wireMachine
	if err := c.Unmarshal(data, &w); err != nil {
		return models.Machine{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch {
	case w.ID == nil:
		return models.Machine{}, missing("machine_id")
	case w.Status == nil:
		return models.Machine{}, missing("status")
	case w.WorkingTime == nil:
		return models.Machine{}, missing("working_time")
	case w.RemainTime == nil:
		return models.Machine{}, missing("remain_time")
	case w.RemainingRepairTime == nil:
		return models.Machine{}, missing("remaining_repair_time")
	case w.Wear == nil:
		return models.Machine{}, missing("wear")
	case w.Alignment == nil:
		return models.Machine{}, missing("alignment")
	case w.Temperature == nil:
		return models.Machine{}, missing("temperature")
	}
	if err := ValidateMachineID(*w.ID); err != nil {
		return models.Machine{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !w.Status.Valid() {
		return models.Machine{}, fmt.Errorf("%w: invalid status", ErrMalformed)
	}
	for name, v := range map[string]float64{"wear": *w.Wear, "alignment": *w.Alignment, "temperature": *w.Temperature} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return models.Machine{}, fmt.Errorf("%w: %s is not finite", ErrMalformed, name)
		}
	}

	m := models.Machine{
		ID:                  *w.ID,
		Status:              *w.Status,
		WorkingTime:         max(*w.WorkingTime, 0),
		RemainTime:          *w.RemainTime,
		RemainingRepairTime: max(*w.RemainingRepairTime, 0),
		Wear:                math.Max(*w.Wear, 0),
		Alignment:           math.Max(*w.Alignment, 0),
		Temperature:         math.Max(*w.Temperature, 0),
		Job:                 models.NoJob(),
	}
	if m.RemainTime < models.NotPredicted {
		m.RemainTime = 0
	}
	if w.Job != nil {
		job, err := w.Job.job()
		if err != nil {
			return models.Machine{}, err
		}
		m.Job = job
	}
	return m, nil
}

func (w *wireJob) job() (models.Job, error) {
	if w.ID == nil || *w.ID == "" || *w.ID == models.NoneID {
		return models.NoJob(), nil
	}
	switch {
	case w.JobTime == nil:
		return models.Job{}, missing("job.job_time")
	case w.RemainingJobTime == nil:
		return models.Job{}, missing("job.remaining_job_time")
	case w.Quantity == nil:
		return models.Job{}, missing("job.quantity")
	}
	j := models.Job{
		ID:               *w.ID,
		JobTime:          *w.JobTime,
		RemainingJobTime: *w.RemainingJobTime,
		Quantity:         *w.Quantity,
		Type:             w.Type,
		Status:           w.Status,
	}
	return j.Normalize(), nil
}

func missing(field string) error {
	return fmt.Errorf("%w: missing %s", ErrMalformed, field)
}

// DecodeCommand decodes a command delivered on subject.
func DecodeCommand(c codec.Codec, subject string, data []byte) (Command, error) {
	kind, id, err := ParseCommandSubject(subject)
	if err != nil {
		return Command{}, err
	}
	cmd := Command{Kind: kind, MachineID: id}
	switch kind {
	case CommandJob, CommandFinishedJob:
		var w wireJob
		if err := c.Unmarshal(data, &w); err != nil {
			return Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		job, err := w.job()
		if err != nil {
			return Command{}, err
		}
		if job.IsNone() {
			return Command{}, missing("job_id")
		}
		cmd.Job = job
	case CommandRemainTime:
		var p struct {
			RemainTime *int `json:"remain_time"`
		}
		if err := c.Unmarshal(data, &p); err != nil {
			return Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if p.RemainTime == nil {
			return Command{}, missing("remain_time")
		}
		cmd.RemainTime = max(*p.RemainTime, 0)
	case CommandRepair:
		var p struct {
			RemainingRepairTime *int `json:"remaining_repair_time"`
		}
		if err := c.Unmarshal(data, &p); err != nil {
			return Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if p.RemainingRepairTime == nil {
			return Command{}, missing("remaining_repair_time")
		}
		cmd.RepairTime = max(*p.RemainingRepairTime, 0)
	}
	return cmd, nil
}
