package state

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type CycleMode string

const (
	CycleModeDevelopment CycleMode = "development"
	CycleModeProduction  CycleMode = "production"
)

type CycleStatus string

const (
	CycleStatusRunning   CycleStatus = "running"
	CycleStatusSucceeded CycleStatus = "succeeded"
	CycleStatusFailed    CycleStatus = "failed"
	CycleStatusNoChanges CycleStatus = "no-changes"
	CycleStatusSkipped   CycleStatus = "skipped"
)

// Cycle is the persistent record of one compile cycle.
//
// PreviousCycleID links to the cycle that ran before this one in the same
// cache root and is serialized as null when there was none.
type Cycle struct {
	CycleID         string      `json:"cycle_id"`
	CycleKey        string      `json:"cycle_key,omitempty"`
	StartTime       time.Time   `json:"start_time"`
	EndTime         *time.Time  `json:"end_time,omitempty"`
	Mode            CycleMode   `json:"mode"`
	Status          CycleStatus `json:"status"`
	Stages          []string    `json:"stages"`
	Compiled        []string    `json:"compiled"`
	Changed         []string    `json:"changed"`
	PreviousCycleID *string     `json:"previous_cycle_id"`
}

func (c Cycle) Validate() error {
	var errs []error
	if strings.TrimSpace(c.CycleID) == "" {
		errs = append(errs, errors.New("cycle_id is required"))
	}
	if c.StartTime.IsZero() {
		errs = append(errs, errors.New("start_time is required"))
	}
	if c.EndTime != nil && c.EndTime.Before(c.StartTime) {
		errs = append(errs, errors.New("end_time must not precede start_time"))
	}
	switch c.Mode {
	case CycleModeDevelopment, CycleModeProduction:
	default:
		errs = append(errs, fmt.Errorf("invalid mode %q", c.Mode))
	}
	switch c.Status {
	case CycleStatusRunning, CycleStatusSucceeded, CycleStatusFailed, CycleStatusNoChanges, CycleStatusSkipped:
	default:
		errs = append(errs, fmt.Errorf("invalid status %q", c.Status))
	}
	if c.PreviousCycleID != nil && strings.TrimSpace(*c.PreviousCycleID) == "" {
		errs = append(errs, errors.New("previous_cycle_id must not be empty when provided"))
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// Duration is zero while the cycle is running.
func (c Cycle) Duration() time.Duration {
	if c.EndTime == nil {
		return 0
	}
	return c.EndTime.Sub(c.StartTime)
}

type FailureClass string

const (
	FailureClassSyntax    FailureClass = "syntax"
	FailureClassToolchain FailureClass = "toolchain"
	FailureClassCompile   FailureClass = "compile"
	FailureClassSystem    FailureClass = "system"
)

// Failure is the recorded reason a cycle did not succeed.
//
// Retryable tells whether re-running the cycle without touching the sources
// could succeed (missing toolchain, I/O faults). Syntax and compile errors
// need a source edit first.
type Failure struct {
	FailureClass FailureClass `json:"failure_class"`
	File         *string      `json:"file,omitempty"`
	Files        []string     `json:"files,omitempty"`
	ErrorCode    string       `json:"error_code"`
	ErrorMessage string       `json:"error_message"`
	Retryable    bool         `json:"retryable"`
}

func (f Failure) Validate() error {
	var errs []error
	switch f.FailureClass {
	case FailureClassSyntax, FailureClassToolchain, FailureClassCompile, FailureClassSystem:
	default:
		errs = append(errs, fmt.Errorf("invalid failure_class %q", f.FailureClass))
	}
	if f.File != nil && strings.TrimSpace(*f.File) == "" {
		errs = append(errs, errors.New("file must not be empty when provided"))
	}
	if strings.TrimSpace(f.ErrorCode) == "" {
		errs = append(errs, errors.New("error_code is required"))
	}
	if strings.TrimSpace(f.ErrorMessage) == "" {
		errs = append(errs, errors.New("error_message is required"))
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
