package session

import (
	"errors"
	"sync"
)

var ErrKeyNotFound = errors.New("session key not found")

// Persistence defines the interface for persisting session values
type Persistence interface {
	// Save stores value under key
	Save(key, value string) error

	// Load retrieves the value stored under key
	Load(key string) (string, error)

	// Delete removes key from storage
	Delete(key string) error

	// Exists checks if key exists in storage
	Exists(key string) bool
}

// MemoryPersistence keeps session values for the life of the process
type MemoryPersistence struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryPersistence creates an empty in-memory store
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{values: make(map[string]string)}
}

func (m *MemoryPersistence) Save(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryPersistence) Load(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return value, nil
}

func (m *MemoryPersistence) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; !ok {
		return ErrKeyNotFound
	}
	delete(m.values, key)
	return nil
}

func (m *MemoryPersistence) Exists(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.values[key]
	return ok
}
