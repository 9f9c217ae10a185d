package checkpoint

import (
	"context"
	"sync"
)

// Memory is an in-process Store for single-run pipelines and tests.
type Memory struct {
	mu  sync.RWMutex
	cps map[string]Checkpoint
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		cps: make(map[string]Checkpoint),
	}
}

// Save implements Store.
func (m *Memory) Save(_ context.Context, cp Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cps[cp.Endpoint] = cp
	return nil
}

// Load implements Store.
func (m *Memory) Load(_ context.Context, endpoint string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp, ok := m.cps[endpoint]
	if !ok {
		return nil, ErrNotFound
	}
	return &cp, nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cps, endpoint)
	return nil
}
