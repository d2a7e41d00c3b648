// Package protocol defines the subjects and payloads exchanged between the
// edge device and its machines.
//
// Machines publish their full snapshot on SubjectMachines every tick. The
// edge device answers with per-machine commands on "<kind>.<machine_id>".
package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// SubjectMachines carries machine snapshots to the edge device.
const SubjectMachines = "machines"

// CommandKind names a coordinator-to-machine command subject.
type CommandKind string

const (
	CommandJob         CommandKind = "jobs"
	CommandRemainTime  CommandKind = "remain_time"
	CommandRepair      CommandKind = "remaining_repair_time"
	CommandFinishedJob CommandKind = "finished_job"
)

// CommandKinds lists every command a machine subscribes to.
var CommandKinds = []CommandKind{CommandJob, CommandRemainTime, CommandRepair, CommandFinishedJob}

var ErrInvalidMachineID = errors.New("invalid machine id")

// Subject returns the command subject addressed to one machine.
func (k CommandKind) Subject(machineID string) string {
	return string(k) + "." + machineID
}

// ValidateMachineID checks that id is usable as a single subject token.
func ValidateMachineID(id string) error {
	if id == "" || id == "none" {
		return fmt.Errorf("%q: %w", id, ErrInvalidMachineID)
	}
	if strings.ContainsAny(id, ".*> \t\r\n/") {
		return fmt.Errorf("%q contains a reserved character: %w", id, ErrInvalidMachineID)
	}
	return nil
}

// ParseCommandSubject splits a command subject into its kind and machine id.
func ParseCommandSubject(subject string) (CommandKind, string, error) {
	kind, id, ok := strings.Cut(subject, ".")
	if !ok {
		return "", "", fmt.Errorf("subject %q: %w", subject, ErrMalformed)
	}
	switch k := CommandKind(kind); k {
	case CommandJob, CommandRemainTime, CommandRepair, CommandFinishedJob:
		if err := ValidateMachineID(id); err != nil {
			return "", "", err
		}
		return k, id, nil
	}
	return "", "", fmt.Errorf("unknown command subject %q: %w", subject, ErrMalformed)
}
