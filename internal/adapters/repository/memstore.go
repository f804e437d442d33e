package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/noderank/internal/domain/model"
)

// MemoryStore is a map-backed Store for tests and single-process runs
// without a database.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]model.Record
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]model.Record)}
}

// Create inserts rec.
func (s *MemoryStore) Create(_ context.Context, rec model.Record) error {
	defer observe("create", time.Now())
	if err := validate(rec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; ok {
		return ErrDuplicate
	}
	s.records[rec.ID] = clone(rec)
	return nil
}

// FindByID returns the record for id.
func (s *MemoryStore) FindByID(_ context.Context, id string) (model.Record, error) {
	defer observe("find_by_id", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return model.Record{}, ErrNotFound
	}
	return clone(rec), nil
}

// FindAll returns all records ordered by creation time, then id.
func (s *MemoryStore) FindAll(_ context.Context) ([]model.Record, error) {
	defer observe("find_all", time.Now())
	s.mu.RLock()
	out := make([]model.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, clone(rec))
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UpdateStatus sets status and updatedAt.
func (s *MemoryStore) UpdateStatus(_ context.Context, id string, status model.Status, at time.Time) (model.Record, error) {
	defer observe("update_status", time.Now())
	if !status.Valid() {
		return model.Record{}, ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return model.Record{}, ErrNotFound
	}
	rec.Status = status
	rec.UpdatedAt = at
	s.records[id] = rec
	return clone(rec), nil
}

// Delete removes the record for id.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	defer observe("delete", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

// Count returns the number of records.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func clone(rec model.Record) model.Record {
	if rec.BackupLocation != nil {
		v := *rec.BackupLocation
		rec.BackupLocation = &v
	}
	if rec.Metadata != nil {
		v := *rec.Metadata
		rec.Metadata = &v
	}
	return rec
}
