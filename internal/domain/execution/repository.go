package execution

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an execution record does not exist or has
// expired.
var ErrNotFound = errors.New("execution not found")

// Repository defines execution record persistence.
type Repository interface {
	Put(ctx context.Context, rec *Record, ttl time.Duration) error
	GetByID(ctx context.Context, executionID uuid.UUID) (*Record, error)
	ListByWorkflow(ctx context.Context, workflowID uuid.UUID, limit, offset int) ([]*Record, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
