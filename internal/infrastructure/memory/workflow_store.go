// Package memory provides in-process TTL stores used when no database is
// configured. Entries expire lazily on read and eagerly through the
// expiry sweep.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Isydoria/lighton-workflow-generator/internal/domain/workflow"
)

type workflowEntry struct {
	wf        workflow.Workflow
	expiresAt time.Time
}

func (e *workflowEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// WorkflowStore is an in-memory workflow.Repository.
type WorkflowStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]workflowEntry
}

func NewWorkflowStore() *WorkflowStore {
	return &WorkflowStore{entries: make(map[uuid.UUID]workflowEntry)}
}

func (s *WorkflowStore) Put(_ context.Context, wf *workflow.Workflow, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().UTC().Add(ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[wf.WorkflowID] = workflowEntry{wf: *wf, expiresAt: expiresAt}
	return nil
}

func (s *WorkflowStore) GetByID(_ context.Context, workflowID uuid.UUID) (*workflow.Workflow, error) {
	s.mu.RLock()
	e, ok := s.entries[workflowID]
	s.mu.RUnlock()
	if !ok || e.expired(time.Now().UTC()) {
		return nil, workflow.ErrNotFound
	}
	wf := e.wf
	return &wf, nil
}

func (s *WorkflowStore) List(_ context.Context, limit, offset int) ([]*workflow.Workflow, error) {
	now := time.Now().UTC()
	s.mu.RLock()
	all := make([]*workflow.Workflow, 0, len(s.entries))
	for _, e := range s.entries {
		if e.expired(now) {
			continue
		}
		wf := e.wf
		all = append(all, &wf)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return page(all, limit, offset), nil
}

func (s *WorkflowStore) Delete(_ context.Context, workflowID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[workflowID]; !ok {
		return workflow.ErrNotFound
	}
	delete(s.entries, workflowID)
	return nil
}

func (s *WorkflowStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
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

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
