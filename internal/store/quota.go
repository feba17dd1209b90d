package store

import (
	"fmt"
	"io"
	"sync"

	"plot-go/internal/plot"
)

// QuotaStore enforces a capacity limit on a backend that has none of its
// own. Usage is counted like MemoryStore: key length plus value length.
type QuotaStore struct {
	mu       sync.Mutex
	inner    plot.Store
	sizes    map[string]int64
	used     int64
	maxBytes int64
}

// NewQuotaStore scans inner once to learn its current usage.
func NewQuotaStore(inner plot.Store, maxBytes int64) (*QuotaStore, error) {
	keys, err := inner.Keys()
	if err != nil {
		return nil, fmt.Errorf("scanning store usage: %w", err)
	}
	q := &QuotaStore{inner: inner, sizes: make(map[string]int64, len(keys)), maxBytes: maxBytes}
	for _, k := range keys {
		v, found, err := inner.Get(k)
		if err != nil {
			return nil, fmt.Errorf("scanning store usage: %w", err)
		}
		if found {
			q.sizes[k] = entrySize(k, v)
			q.used += q.sizes[k]
		}
	}
	return q, nil
}

func (q *QuotaStore) Get(key string) ([]byte, bool, error) {
	return q.inner.Get(key)
}

func (q *QuotaStore) Set(key string, value []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	size := entrySize(key, value)
	next := q.used - q.sizes[key] + size
	if q.maxBytes > 0 && next > q.maxBytes {
		return fmt.Errorf("writing %s (%d bytes, limit %d): %w", key, len(value), q.maxBytes, plot.ErrQuotaExceeded)
	}
	if err := q.inner.Set(key, value); err != nil {
		return err
	}
	q.sizes[key] = size
	q.used = next
	return nil
}

func (q *QuotaStore) Remove(key string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.inner.Remove(key); err != nil {
		return err
	}
	q.used -= q.sizes[key]
	delete(q.sizes, key)
	return nil
}

func (q *QuotaStore) Keys() ([]string, error) {
	return q.inner.Keys()
}

// Used returns the bytes currently counted against the limit.
func (q *QuotaStore) Used() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.used
}

// Close closes the wrapped store when it holds resources.
func (q *QuotaStore) Close() error {
	if c, ok := q.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

var _ plot.Store = (*QuotaStore)(nil)
