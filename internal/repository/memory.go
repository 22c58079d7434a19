// Package repository implements activity persistence for the registration
// service: an in-memory store, Postgres via pgx, and SQLite via modernc.
package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Shivanand-hulikatti/activity-registration/internal/model"
)

// MemoryStore keeps activities in process memory. Every read and write copies,
// so callers never share state with the store.
type MemoryStore struct {
	mu         sync.RWMutex
	activities map[string]*model.Activity
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{activities: make(map[string]*model.Activity)}
}

// Create inserts a new activity.
func (s *MemoryStore) Create(_ context.Context, a *model.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.activities[a.ID]; ok {
		return fmt.Errorf("activity %s already exists", a.ID)
	}
	s.activities[a.ID] = a.Clone()
	return nil
}

// Load returns a copy of the activity or model.ErrNotFound.
func (s *MemoryStore) Load(_ context.Context, id string) (*model.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.activities[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return a.Clone(), nil
}

// Update applies fn to a copy of the activity and stores the copy if fn
// succeeds. The store's write lock is held throughout, so updates run one at
// a time.
func (s *MemoryStore) Update(_ context.Context, id string, fn func(a *model.Activity) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.activities[id]
	if !ok {
		return model.ErrNotFound
	}
	a := cur.Clone()
	if err := fn(a); err != nil {
		return err
	}
	s.activities[id] = a.Clone()
	return nil
}

// List returns all activities ordered by creation time descending.
func (s *MemoryStore) List(_ context.Context) ([]*model.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Activity, 0, len(s.activities))
	for _, a := range s.activities {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
