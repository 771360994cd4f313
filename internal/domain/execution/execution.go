package execution

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status represents execution lifecycle status.
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusTimeout   Status = "TIMEOUT"
)

var ErrAlreadyFinal = errors.New("execution record already finalized")

// Record describes one run of a workflow's generated code. A record is
// created with status RUNNING and finalized exactly once; result and
// error are mutually exclusive once the status leaves RUNNING.
type Record struct {
	ExecutionID     uuid.UUID  `json:"executionId"`
	WorkflowID      uuid.UUID  `json:"workflowId"`
	Status          Status     `json:"status"`
	Result          string     `json:"result,omitempty"`
	Error           string     `json:"error,omitempty"`
	Output          string     `json:"output,omitempty"`
	ExecutionTime   float64    `json:"executionTimeSeconds"`
	UserInput       string     `json:"userInput,omitempty"`
	AttachedFileIDs []int64    `json:"attachedFileIds,omitempty"`
	StartedAt       time.Time  `json:"startedAt"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty"`
}

// NewRecord starts a running execution record for a workflow.
func NewRecord(workflowID uuid.UUID, userInput string, attachedFileIDs []int64) *Record {
	return &Record{
		ExecutionID:     uuid.New(),
		WorkflowID:      workflowID,
		Status:          StatusRunning,
		UserInput:       userInput,
		AttachedFileIDs: attachedFileIDs,
		StartedAt:       time.Now().UTC(),
	}
}

// IsTerminal reports whether the record has been finalized.
func (r *Record) IsTerminal() bool {
	return r.Status != StatusRunning
}

// MarkCompleted finalizes the record with a result.
func (r *Record) MarkCompleted(result, output string, elapsed time.Duration) error {
	if r.IsTerminal() {
		return ErrAlreadyFinal
	}
	r.Status = StatusCompleted
	r.Result = result
	r.Output = output
	r.Error = ""
	r.finish(elapsed)
	return nil
}

// MarkFailed finalizes the record with an error message.
func (r *Record) MarkFailed(reason, output string, elapsed time.Duration) error {
	if r.IsTerminal() {
		return ErrAlreadyFinal
	}
	r.Status = StatusFailed
	r.Error = reason
	r.Output = output
	r.Result = ""
	r.finish(elapsed)
	return nil
}

// MarkTimeout finalizes the record as timed out, keeping whatever output
// the run produced before it was cut off.
func (r *Record) MarkTimeout(reason, output string, elapsed time.Duration) error {
	if r.IsTerminal() {
		return ErrAlreadyFinal
	}
	r.Status = StatusTimeout
	r.Error = reason
	r.Output = output
	r.Result = ""
	r.finish(elapsed)
	return nil
}

func (r *Record) finish(elapsed time.Duration) {
	now := time.Now().UTC()
	r.FinishedAt = &now
	r.ExecutionTime = elapsed.Seconds()
}
