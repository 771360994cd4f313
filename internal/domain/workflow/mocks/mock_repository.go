package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/Isydoria/lighton-workflow-generator/internal/domain/workflow"
)

// MockRepository is a mock implementation of workflow.Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Put(ctx context.Context, wf *workflow.Workflow, ttl time.Duration) error {
	args := m.Called(ctx, wf, ttl)
	return args.Error(0)
}

func (m *MockRepository) GetByID(ctx context.Context, workflowID uuid.UUID) (*workflow.Workflow, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*workflow.Workflow), args.Error(1)
}

func (m *MockRepository) List(ctx context.Context, limit, offset int) ([]*workflow.Workflow, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*workflow.Workflow), args.Error(1)
}

func (m *MockRepository) Delete(ctx context.Context, workflowID uuid.UUID) error {
	args := m.Called(ctx, workflowID)
	return args.Error(0)
}

func (m *MockRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}
