package execution

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord(t *testing.T) {
	wfID := uuid.New()
	rec := NewRecord(wfID, "do the thing", []int64{5, 3, 9})
	assert.Equal(t, wfID, rec.WorkflowID)
	assert.Equal(t, StatusRunning, rec.Status)
	assert.False(t, rec.IsTerminal())
	assert.Equal(t, []int64{5, 3, 9}, rec.AttachedFileIDs)
	assert.Nil(t, rec.FinishedAt)
}

func TestMarkCompleted(t *testing.T) {
	rec := NewRecord(uuid.New(), "", nil)
	require.NoError(t, rec.MarkCompleted("42", "step done\n", 1500*time.Millisecond))
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, "42", rec.Result)
	assert.Empty(t, rec.Error)
	assert.Equal(t, "step done\n", rec.Output)
	assert.InDelta(t, 1.5, rec.ExecutionTime, 0.001)
	require.NotNil(t, rec.FinishedAt)
}

func TestMarkFailed_ClearsResult(t *testing.T) {
	rec := NewRecord(uuid.New(), "", nil)
	require.NoError(t, rec.MarkFailed("boom", "partial\n", time.Second))
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, "boom", rec.Error)
	assert.Empty(t, rec.Result)
}

func TestMarkTimeout_KeepsPartialOutput(t *testing.T) {
	rec := NewRecord(uuid.New(), "", nil)
	require.NoError(t, rec.MarkTimeout("exceeded 30m", "got this far\n", 30*time.Minute))
	assert.Equal(t, StatusTimeout, rec.Status)
	assert.Equal(t, "got this far\n", rec.Output)
	assert.InDelta(t, 1800, rec.ExecutionTime, 0.001)
}

func TestFinalizeExactlyOnce(t *testing.T) {
	rec := NewRecord(uuid.New(), "", nil)
	require.NoError(t, rec.MarkCompleted("ok", "", time.Second))

	assert.ErrorIs(t, rec.MarkCompleted("again", "", time.Second), ErrAlreadyFinal)
	assert.ErrorIs(t, rec.MarkFailed("late failure", "", time.Second), ErrAlreadyFinal)
	assert.ErrorIs(t, rec.MarkTimeout("late timeout", "", time.Second), ErrAlreadyFinal)

	// the original outcome is untouched
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, "ok", rec.Result)
}
