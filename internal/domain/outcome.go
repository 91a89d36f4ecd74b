package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status classifies the result of converting one file.
type Status int

const (
	StatusSuccess Status = iota
	StatusWarning
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusWarning:
		return "warning"
	case StatusFailure:
		return "failure"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText renders the status as its lower-case name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *Status) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "success":
		*s = StatusSuccess
	case "warning":
		*s = StatusWarning
	case "failure":
		*s = StatusFailure
	default:
		return fmt.Errorf("unknown status %q", b)
	}
	return nil
}

// Outcome is the result of converting one file.
type Outcome struct {
	AttemptID string
	Source    string
	Outputs   []string
	Status    Status
	Rows      int
	Missing   []string
	Err       error
	// Skipped is set when an existing output short-circuited the conversion.
	Skipped    bool
	Duration   time.Duration
	FinishedAt time.Time
}

// Succeeded builds a Success outcome.
func Succeeded(source string, rows int) Outcome {
	return Outcome{Source: source, Status: StatusSuccess, Rows: rows}
}

// Warned builds a Warning outcome for a file converted with missing variables.
func Warned(source string, rows int, missing []string) Outcome {
	return Outcome{Source: source, Status: StatusWarning, Rows: rows, Missing: missing}
}

// Failed builds a Failure outcome.
func Failed(source string, err error) Outcome {
	return Outcome{Source: source, Status: StatusFailure, Err: err}
}

// Classify picks Success or Warning depending on whether any requested
// variable was missing.
func Classify(source string, rows int, missing []string) Outcome {
	if len(missing) > 0 {
		return Warned(source, rows, missing)
	}
	return Succeeded(source, rows)
}

// ErrorText returns the failure message, or "" when there is none.
func (o Outcome) ErrorText() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
