package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Isydoria/lighton-workflow-generator/internal/domain/execution"
)

type executionEntry struct {
	rec       execution.Record
	expiresAt time.Time
}

func (e *executionEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// ExecutionStore is an in-memory execution.Repository.
type ExecutionStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]executionEntry
}

func NewExecutionStore() *ExecutionStore {
	return &ExecutionStore{entries: make(map[uuid.UUID]executionEntry)}
}

func (s *ExecutionStore) Put(_ context.Context, rec *execution.Record, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().UTC().Add(ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[rec.ExecutionID] = executionEntry{rec: *rec, expiresAt: expiresAt}
	return nil
}

func (s *ExecutionStore) GetByID(_ context.Context, executionID uuid.UUID) (*execution.Record, error) {
	s.mu.RLock()
	e, ok := s.entries[executionID]
	s.mu.RUnlock()
	if !ok || e.expired(time.Now().UTC()) {
		return nil, execution.ErrNotFound
	}
	rec := e.rec
	return &rec, nil
}

func (s *ExecutionStore) ListByWorkflow(_ context.Context, workflowID uuid.UUID, limit, offset int) ([]*execution.Record, error) {
	now := time.Now().UTC()
	s.mu.RLock()
	var all []*execution.Record
	for _, e := range s.entries {
		if e.expired(now) || e.rec.WorkflowID != workflowID {
			continue
		}
		rec := e.rec
		all = append(all, &rec)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].StartedAt.After(all[j].StartedAt) })
	return page(all, limit, offset), nil
}

func (s *ExecutionStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, id)
			n++
		}
	}
	return n, nil
}
