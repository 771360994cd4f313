package workflow

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents workflow lifecycle status.
type Status string

const (
	StatusDraft  Status = "DRAFT"
	StatusReady  Status = "READY"
	StatusFailed Status = "FAILED"
)

var ErrInvalidTransition = errors.New("invalid workflow status transition")

// Workflow is a named piece of generated code plus the natural-language
// description it was generated from. Immutable once ready except through
// regeneration, which replaces the code and re-derives the status.
type Workflow struct {
	WorkflowID    uuid.UUID `json:"workflowId"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	GeneratedCode string    `json:"generatedCode"`
	Status        Status    `json:"status"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// New creates a draft workflow awaiting code generation.
func New(name, description string) *Workflow {
	now := time.Now().UTC()
	return &Workflow{
		WorkflowID:  uuid.New(),
		Name:        name,
		Description: description,
		Status:      StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// CanTransitionTo validates workflow status transition.
func (w *Workflow) CanTransitionTo(target Status) bool {
	transitions := map[Status][]Status{
		StatusDraft:  {StatusReady, StatusFailed},
		StatusReady:  {StatusDraft},
		StatusFailed: {StatusDraft},
	}
	for _, s := range transitions[w.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// MarkReady installs generated code and sets the workflow to READY.
func (w *Workflow) MarkReady(code string) error {
	if !w.CanTransitionTo(StatusReady) {
		return ErrInvalidTransition
	}
	w.GeneratedCode = code
	w.Status = StatusReady
	w.Error = ""
	w.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkFailed records a generation or validation failure.
func (w *Workflow) MarkFailed(reason string) error {
	if !w.CanTransitionTo(StatusFailed) {
		return ErrInvalidTransition
	}
	w.Status = StatusFailed
	w.Error = reason
	w.UpdatedAt = time.Now().UTC()
	return nil
}

// Reset returns the workflow to DRAFT for regeneration.
func (w *Workflow) Reset() error {
	if !w.CanTransitionTo(StatusDraft) {
		return ErrInvalidTransition
	}
	w.Status = StatusDraft
	w.GeneratedCode = ""
	w.Error = ""
	w.UpdatedAt = time.Now().UTC()
	return nil
}

// Validate checks required fields before persisting.
func (w *Workflow) Validate() error {
	if w.WorkflowID == uuid.Nil {
		return errors.New("workflowId is required")
	}
	if strings.TrimSpace(w.Name) == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(w.Description) == "" {
		return errors.New("description is required")
	}
	return nil
}
