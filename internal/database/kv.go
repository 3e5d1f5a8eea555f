package database

import (
	"context"
	"errors"
	"sync"
)

// ErrKeyNotFound is returned by KV.GetValue when the key has never been written
var ErrKeyNotFound = errors.New("key not found")

// KV is the persistent key-value store holding all durable state
type KV interface {
	GetValue(ctx context.Context, key string) ([]byte, error)
	PutValue(ctx context.Context, key string, value []byte) error
	DeleteValue(ctx context.Context, key string) error
	HealthCheck(ctx context.Context) error
}

// Memory is a process-local KV used for development and tests
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty Memory store
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// GetValue returns a copy of the stored value
func (m *Memory) GetValue(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

// PutValue stores a copy of value
func (m *Memory) PutValue(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = append([]byte(nil), value...)
	return nil
}

// DeleteValue removes a key
func (m *Memory) DeleteValue(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

// HealthCheck always succeeds
func (m *Memory) HealthCheck(context.Context) error {
	return nil
}
