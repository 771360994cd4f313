package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a workflow does not exist or has expired.
var ErrNotFound = errors.New("workflow not found")

// Repository defines workflow persistence. Entries carry a TTL so the
// storage layer can expire stale workflows (24h by default).
type Repository interface {
	Put(ctx context.Context, wf *Workflow, ttl time.Duration) error
	GetByID(ctx context.Context, workflowID uuid.UUID) (*Workflow, error)
	List(ctx context.Context, limit, offset int) ([]*Workflow, error)
	Delete(ctx context.Context, workflowID uuid.UUID) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
