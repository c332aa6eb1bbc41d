package engine

import (
	"context"
	"sync"
)

// MemoryAttemptStore keeps attempt logs in process memory.
type MemoryAttemptStore struct {
	mu   sync.Mutex
	logs map[string][]byte
}

func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{logs: make(map[string][]byte)}
}

func (m *MemoryAttemptStore) LoadAttempts(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.logs[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryAttemptStore) SaveAttempts(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.logs == nil {
		m.logs = make(map[string][]byte)
	}
	m.logs[key] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryAttemptStore) ClearAttempts(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.logs, key)
	return nil
}
