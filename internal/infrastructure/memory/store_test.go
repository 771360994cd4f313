package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Isydoria/lighton-workflow-generator/internal/domain/execution"
	"github.com/Isydoria/lighton-workflow-generator/internal/domain/workflow"
)

func TestWorkflowStore_PutGet(t *testing.T) {
	s := NewWorkflowStore()
	ctx := context.Background()

	wf := workflow.New("n", "d")
	require.NoError(t, s.Put(ctx, wf, time.Hour))

	got, err := s.GetByID(ctx, wf.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, wf.WorkflowID, got.WorkflowID)

	// mutating the returned copy does not touch the stored entry
	got.Name = "changed"
	again, err := s.GetByID(ctx, wf.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, "n", again.Name)
}

func TestWorkflowStore_GetMissing(t *testing.T) {
	s := NewWorkflowStore()
	_, err := s.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestWorkflowStore_ExpiredEntryInvisible(t *testing.T) {
	s := NewWorkflowStore()
	ctx := context.Background()

	wf := workflow.New("n", "d")
	require.NoError(t, s.Put(ctx, wf, time.Nanosecond))
	time.Sleep(5 * time.Millisecond)

	_, err := s.GetByID(ctx, wf.WorkflowID)
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	wfs, err := s.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, wfs)
}

func TestWorkflowStore_DeleteExpired(t *testing.T) {
	s := NewWorkflowStore()
	ctx := context.Background()

	short := workflow.New("short", "d")
	long := workflow.New("long", "d")
	require.NoError(t, s.Put(ctx, short, time.Hour))
	require.NoError(t, s.Put(ctx, long, 48*time.Hour))

	n, err := s.DeleteExpired(ctx, time.Now().UTC().Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.GetByID(ctx, long.WorkflowID)
	assert.NoError(t, err)
}

func TestWorkflowStore_ZeroTTLNeverExpires(t *testing.T) {
	s := NewWorkflowStore()
	ctx := context.Background()

	wf := workflow.New("n", "d")
	require.NoError(t, s.Put(ctx, wf, 0))

	n, err := s.DeleteExpired(ctx, time.Now().UTC().Add(1000*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWorkflowStore_ListPagination(t *testing.T) {
	s := NewWorkflowStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		wf := workflow.New("n", "d")
		wf.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.Put(ctx, wf, time.Hour))
	}

	page1, err := s.List(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	// newest first
	assert.True(t, page1[0].CreatedAt.After(page1[1].CreatedAt))

	page3, err := s.List(ctx, 2, 4)
	require.NoError(t, err)
	assert.Len(t, page3, 1)

	empty, err := s.List(ctx, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestExecutionStore_ListByWorkflow(t *testing.T) {
	s := NewExecutionStore()
	ctx := context.Background()

	wfA := uuid.New()
	wfB := uuid.New()
	for i := 0; i < 3; i++ {
		rec := execution.NewRecord(wfA, "", nil)
		rec.StartedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
		require.NoError(t, s.Put(ctx, rec, time.Hour))
	}
	require.NoError(t, s.Put(ctx, execution.NewRecord(wfB, "", nil), time.Hour))

	recs, err := s.ListByWorkflow(ctx, wfA, 10, 0)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.True(t, recs[0].StartedAt.After(recs[1].StartedAt))
	for _, rec := range recs {
		assert.Equal(t, wfA, rec.WorkflowID)
	}
}

func TestExecutionStore_FinalizedUpdateReplaces(t *testing.T) {
	s := NewExecutionStore()
	ctx := context.Background()

	rec := execution.NewRecord(uuid.New(), "", nil)
	require.NoError(t, s.Put(ctx, rec, time.Hour))
	require.NoError(t, rec.MarkCompleted("done", "", time.Second))
	require.NoError(t, s.Put(ctx, rec, time.Hour))

	got, err := s.GetByID(ctx, rec.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, execution.StatusCompleted, got.Status)
	assert.Equal(t, "done", got.Result)
}
