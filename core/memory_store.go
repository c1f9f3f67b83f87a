package core

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of the Memory interface.
// Entries past MaxSize evict the oldest-expiring entry first.
type MemoryStore struct {
	mu      sync.RWMutex
	store   map[string]memoryEntry
	maxSize int
	logger  Logger
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// NewMemoryStore creates a new in-memory store with no size bound
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		store:  make(map[string]memoryEntry),
		logger: &NoOpLogger{},
	}
}

// NewBoundedMemoryStore creates an in-memory store that holds at most
// maxSize entries
func NewBoundedMemoryStore(maxSize int) *MemoryStore {
	store := NewMemoryStore()
	store.maxSize = maxSize
	return store
}

// SetLogger configures the logger for this memory store
func (m *MemoryStore) SetLogger(logger Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Get retrieves a value from memory
func (m *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, exists := m.store[key]
	if !exists {
		m.logger.Debug("Memory lookup miss", map[string]interface{}{
			"operation": "memory_get",
			"key":       key,
		})
		return "", nil
	}

	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		m.logger.Debug("Memory entry expired", map[string]interface{}{
			"operation":  "memory_get",
			"key":        key,
			"expired_at": entry.expiresAt.Format(time.RFC3339),
		})
		return "", nil
	}

	return entry.value, nil
}

// Set stores a value in memory with optional TTL (ttl <= 0 means no expiry)
func (m *MemoryStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxSize > 0 && len(m.store) >= m.maxSize {
		if _, exists := m.store[key]; !exists {
			m.evictLocked()
		}
	}

	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	m.store[key] = entry

	m.logger.Debug("Memory set", map[string]interface{}{
		"operation":  "memory_set",
		"key":        key,
		"value_size": len(value),
		"has_ttl":    ttl > 0,
	})
	return nil
}

// evictLocked removes expired entries, then the oldest-expiring entry if
// the store is still full. Caller holds the write lock.
func (m *MemoryStore) evictLocked() {
	now := time.Now()
	for key, entry := range m.store {
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			delete(m.store, key)
		}
	}
	if len(m.store) < m.maxSize {
		return
	}

	var victim string
	var earliest time.Time
	for key, entry := range m.store {
		at := entry.expiresAt
		if at.IsZero() {
			// Entries without TTL are evicted last
			continue
		}
		if victim == "" || at.Before(earliest) {
			victim = key
			earliest = at
		}
	}
	if victim == "" {
		// Everything is TTL-less; drop an arbitrary entry
		for key := range m.store {
			victim = key
			break
		}
	}
	delete(m.store, victim)
}

// Delete removes a value from memory
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, key)
	return nil
}

// Exists checks if a key exists in memory
func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, exists := m.store[key]
	if !exists {
		return false, nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		return false, nil
	}
	return true, nil
}
