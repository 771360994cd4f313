package paradigm

import (
	"fmt"
	"time"
)

// TransportError is a non-2xx response on a single-shot call.
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("paradigm %s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// NotFoundError is returned when the service reports an unknown resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("paradigm: %s not found: %s", e.Resource, e.ID)
}

// ProcessingError is a terminal failure reported during file ingestion.
type ProcessingError struct {
	FileID int64
	Status string
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("paradigm: file %d processing failed with status %q", e.FileID, e.Status)
}

// AnalysisError is a terminal failure reported by an analysis job.
type AnalysisError struct {
	JobID  string
	Status string
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("paradigm: analysis %s failed with status %q", e.JobID, e.Status)
}

// TimeoutError indicates a poll loop exceeded its deadline. Distinct from
// generic failure so callers can tell "service is slow" from "service
// rejected the request".
type TimeoutError struct {
	Op     string
	Waited time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("paradigm %s: timed out after %s", e.Op, e.Waited)
}
