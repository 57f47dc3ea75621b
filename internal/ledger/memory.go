package ledger

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Backend.
type Memory struct {
	mu    sync.RWMutex
	state map[string][]byte
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{state: make(map[string][]byte)}
}

// Get implements Backend.
func (m *Memory) Get(_ context.Context, address string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.state[address]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Apply implements Backend.
func (m *Memory) Apply(ctx context.Context, changes []StateChange) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range changes {
		switch c.Kind {
		case KindSet:
			m.state[c.Key] = append([]byte(nil), c.Value...)
		case KindDelete:
			delete(m.state, c.Key)
		}
	}
	return nil
}

// Keys implements Backend.
func (m *Memory) Keys(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.state))
	for k := range m.state {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close implements Backend.
func (m *Memory) Close() error { return nil }
