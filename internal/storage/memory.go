package storage

import (
	"context"
	"sync"
)

// Memory is the last-resort tier. Nothing survives the process.
type Memory struct {
	mu   sync.RWMutex
	data map[Name]map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: map[Name]map[string][]byte{}}
}

func (m *Memory) Get(_ context.Context, ns Name, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[ns][key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) Set(_ context.Context, ns Name, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[ns] == nil {
		m.data[ns] = map[string][]byte{}
	}
	m.data[ns][key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Remove(_ context.Context, ns Name, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[ns], key)
	return nil
}

func (m *Memory) All(_ context.Context, ns Name) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]Entry, 0, len(m.data[ns]))
	for k, v := range m.data[ns] {
		entries = append(entries, Entry{Key: k, Value: append([]byte(nil), v...)})
	}
	return entries, nil
}

func (m *Memory) Clear(_ context.Context, ns Name) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, ns)
	return nil
}

func (m *Memory) Close() error { return nil }
