package models

import (
	"fmt"
	"strings"
)

// Status is the consolidated validation state of a profile.
type Status string

const (
	StatusInProgress  Status = "IN_PROGRESS"
	StatusValidated   Status = "VALIDATED"
	StatusRejected    Status = "REJECTED"
	StatusNotComplete Status = "NOT_COMPLETE"
)

// CompensationMessage is recorded when a validation round could not be handed
// off to the validators.
const CompensationMessage = "validation could not proceed due to a downstream delivery failure"

func (s Status) String() string {
	return string(s)
}

func (s Status) IsValid() bool {
	switch s {
	case StatusInProgress, StatusValidated, StatusRejected, StatusNotComplete:
		return true
	}
	return false
}

// IsTerminal reports whether the status ends a validation round.
func (s Status) IsTerminal() bool {
	return s == StatusValidated || s == StatusRejected || s == StatusNotComplete
}

// ParseStatus accepts the wire form case-insensitively.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

// ConsolidateStatus folds per-product outcomes into one profile status.
// A single rejection rejects the profile; any product still validating (or
// with an unrecognised outcome) keeps the round open; a product that could not
// be validated marks the round incomplete. Only when every product validated
// is the profile validated. An empty set stays in progress.
func ConsolidateStatus(validations map[string]ProductValidation) Status {
	if len(validations) == 0 {
		return StatusInProgress
	}
	var pending, incomplete bool
	for _, v := range validations {
		switch v.Status {
		case StatusRejected:
			return StatusRejected
		case StatusNotComplete:
			incomplete = true
		case StatusValidated:
		default:
			pending = true
		}
	}
	switch {
	case pending:
		return StatusInProgress
	case incomplete:
		return StatusNotComplete
	default:
		return StatusValidated
	}
}
