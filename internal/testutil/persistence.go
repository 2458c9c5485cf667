package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"worklog/internal/entity"
	"worklog/internal/store"
)

// MemoryPersistence keeps the store's state in memory. State crosses the
// boundary as JSON, the same round trip the SQLite layer performs, so tests
// see the same number coercions a real restart would.
type MemoryPersistence struct {
	mu    sync.Mutex
	state []byte
	saves int
}

// NewMemoryPersistence creates an empty persistence.
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{}
}

// Load decodes the last saved state, or returns nil when nothing was saved.
func (m *MemoryPersistence) Load(ctx context.Context) (*store.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return nil, nil
	}
	var st store.State
	if err := json.Unmarshal(m.state, &st); err != nil {
		return nil, fmt.Errorf("decode saved state: %w", err)
	}
	return &st, nil
}

// Save encodes and retains the full state snapshot.
func (m *MemoryPersistence) Save(ctx context.Context, st *store.State, changed []entity.Type) error {
	encoded, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	m.mu.Lock()
	m.state = encoded
	m.saves++
	m.mu.Unlock()
	return nil
}

// Saves returns how many snapshots were taken.
func (m *MemoryPersistence) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
