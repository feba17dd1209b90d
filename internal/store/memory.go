package store

import (
	"fmt"
	"sort"
	"sync"

	"plot-go/internal/plot"
)

// MemoryStore is an in-memory plot.Store with an optional capacity limit,
// counted as the total length of keys plus values. It is safe for
// concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  map[string][]byte
	used     int64
	maxBytes int64
}

// NewMemoryStore creates an empty store. maxBytes <= 0 means unlimited.
func NewMemoryStore(maxBytes int64) *MemoryStore {
	return &MemoryStore{
		entries:  make(map[string][]byte),
		maxBytes: maxBytes,
	}
}

func entrySize(key string, value []byte) int64 {
	return int64(len(key) + len(value))
}

func (m *MemoryStore) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte{}, v...), true, nil
}

func (m *MemoryStore) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.used + entrySize(key, value)
	if old, ok := m.entries[key]; ok {
		next -= entrySize(key, old)
	}
	if m.maxBytes > 0 && next > m.maxBytes {
		return fmt.Errorf("writing %s (%d bytes, limit %d): %w", key, len(value), m.maxBytes, plot.ErrQuotaExceeded)
	}
	m.entries[key] = append([]byte{}, value...)
	m.used = next
	return nil
}

func (m *MemoryStore) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.entries[key]; ok {
		m.used -= entrySize(key, old)
		delete(m.entries, key)
	}
	return nil
}

func (m *MemoryStore) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Used returns the bytes currently counted against the capacity.
func (m *MemoryStore) Used() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.used
}

var _ plot.Store = (*MemoryStore)(nil)
