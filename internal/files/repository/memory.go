package repository

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/mailbridge/mailbridge/internal/files"
)

var (
	ErrNotFound = errors.New("file record not found")
)

// Repository defines persistence operations for file metadata records.
type Repository interface {
	Insert(ctx context.Context, rec *files.Record) error
	Get(ctx context.Context, id string) (*files.Record, error)
	// List returns all records, newest first.
	List(ctx context.Context) ([]*files.Record, error)
	Delete(ctx context.Context, id string) error
}

// MemoryRepo is a simple in-memory repository used for local development
// and unit tests; Mongo takes over when configured.
type MemoryRepo struct {
	mu    sync.RWMutex
	store map[string]*files.Record
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[string]*files.Record)}
}

func (m *MemoryRepo) Insert(ctx context.Context, rec *files.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.store[rec.ID] = &cp
	return nil
}

func (m *MemoryRepo) Get(ctx context.Context, id string) (*files.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.store[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *MemoryRepo) List(ctx context.Context) ([]*files.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*files.Record, 0, len(m.store))
	for _, r := range m.store {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return ErrNotFound
	}
	delete(m.store, id)
	return nil
}
