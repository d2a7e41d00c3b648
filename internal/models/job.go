package models

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// JobType selects how hard a job wears a machine.
type JobType string

const (
	JobHard   JobType = "hard"
	JobNormal JobType = "normal"
	JobSoft   JobType = "soft"
)

// JobStatus is the job's state in the job store.
type JobStatus string

const (
	JobUnfinished JobStatus = "unfinished"
	JobProcessing JobStatus = "processing"
	JobFinished   JobStatus = "finished"
)

// NoneID marks the sentinel job carried by a machine without work.
const NoneID = "none"

// Job field names accepted by Update and Search.
const (
	FieldJobID            = "job_id"
	FieldJobTime          = "job_time"
	FieldRemainingJobTime = "remaining_job_time"
	FieldQuantity         = "quantity"
	FieldType             = "type"
	FieldStatus           = "status"
)

var (
	ErrUnknownField = errors.New("unknown job field")
	ErrFieldValue   = errors.New("invalid job field value")
)

// Job is a unit of work held in the job store and handed to machines.
type Job struct {
	ID               string    `json:"job_id"`
	JobTime          int       `json:"job_time"`
	RemainingJobTime int       `json:"remaining_job_time"`
	Quantity         int       `json:"quantity"`
	Type             JobType   `json:"type"`
	Status           JobStatus `json:"status"`
}

// NoJob returns the sentinel job.
func NoJob() Job {
	return Job{ID: NoneID, Type: NoneID, Status: NoneID}
}

func (j Job) IsNone() bool {
	return j.ID == "" || j.ID == NoneID
}

// Outstanding reports whether the job still needs a machine.
func (j Job) Outstanding() bool {
	return j.Status != JobFinished && j.RemainingJobTime > 0
}

// Normalize clamps remaining time into [0, job_time].
func (j Job) Normalize() Job {
	if j.RemainingJobTime < 0 {
		j.RemainingJobTime = 0
	}
	if j.JobTime >= 0 && j.RemainingJobTime > j.JobTime {
		j.RemainingJobTime = j.JobTime
	}
	return j
}

// SetField assigns one named field from a loosely typed value, as
// received from the store contract or a decoded JSON body. The job id
// cannot be changed.
func (j *Job) SetField(field string, value any) error {
	switch field {
	case FieldJobTime, FieldRemainingJobTime, FieldQuantity:
		n, err := toInt(value)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		switch field {
		case FieldJobTime:
			j.JobTime = n
		case FieldRemainingJobTime:
			j.RemainingJobTime = n
		case FieldQuantity:
			j.Quantity = n
		}
	case FieldType:
		s, err := toString(value)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		switch t := JobType(s); t {
		case JobHard, JobNormal, JobSoft:
			j.Type = t
		default:
			return fmt.Errorf("%s %q: %w", field, s, ErrFieldValue)
		}
	case FieldStatus:
		s, err := toString(value)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		switch st := JobStatus(s); st {
		case JobUnfinished, JobProcessing, JobFinished:
			j.Status = st
		default:
			return fmt.Errorf("%s %q: %w", field, s, ErrFieldValue)
		}
	default:
		return fmt.Errorf("%q: %w", field, ErrUnknownField)
	}
	return nil
}

// CheckField reports whether field names a searchable job field and value
// can be converted to its type.
func CheckField(field string, value any) error {
	if field == FieldJobID {
		if _, err := toString(value); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		return nil
	}
	var j Job
	return j.SetField(field, value)
}

// FieldEquals reports whether the named field of j equals value.
func (j Job) FieldEquals(field string, value any) (bool, error) {
	if field == FieldJobID {
		s, err := toString(value)
		if err != nil {
			return false, err
		}
		return j.ID == s, nil
	}
	probe := j
	if err := probe.SetField(field, value); err != nil {
		return false, err
	}
	return probe == j, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) {
			return 0, ErrFieldValue
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, ErrFieldValue
		}
		return i, nil
	}
	return 0, ErrFieldValue
}

func toString(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case JobStatus:
		return string(s), nil
	case JobType:
		return string(s), nil
	case fmt.Stringer:
		return s.String(), nil
	}
	return "", ErrFieldValue
}
