package testutil

import (
	"strings"
	"sync"

	"plot-go/internal/plot"
	"plot-go/internal/store"
)

// NewTestStore creates an unlimited in-memory store.
func NewTestStore() *store.MemoryStore {
	return store.NewMemoryStore(0)
}

// FaultStore wraps a plot.Store and injects failures by key prefix.
// Configured faults persist until Clear is called.
type FaultStore struct {
	inner plot.Store

	mu       sync.Mutex
	setErrs  map[string]error
	setOnce  map[string]error
	getErrs  map[string]error
	swallow  map[string]bool
	keep     map[string]bool
	corrupt  map[string]bool
	setCalls []string
}

func NewFaultStore(inner plot.Store) *FaultStore {
	f := &FaultStore{inner: inner}
	f.Clear()
	return f
}

// FailSet makes every Set on a key with the given prefix return err
// without writing.
func (f *FaultStore) FailSet(prefix string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setErrs[prefix] = err
}

// FailNextSet makes only the next Set on a matching key return err.
func (f *FaultStore) FailNextSet(prefix string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setOnce[prefix] = err
}

// FailGet makes every Get on a key with the given prefix return err.
func (f *FaultStore) FailGet(prefix string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErrs[prefix] = err
}

// SwallowSet makes Set on matching keys report success without writing.
func (f *FaultStore) SwallowSet(prefix string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.swallow[prefix] = true
}

// SwallowRemove makes Remove on matching keys report success without
// removing.
func (f *FaultStore) SwallowRemove(prefix string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keep[prefix] = true
}

// CorruptReads makes Get on matching keys return altered bytes.
func (f *FaultStore) CorruptReads(prefix string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.corrupt[prefix] = true
}

// Clear removes every configured fault.
func (f *FaultStore) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setErrs = map[string]error{}
	f.setOnce = map[string]error{}
	f.getErrs = map[string]error{}
	f.swallow = map[string]bool{}
	f.keep = map[string]bool{}
	f.corrupt = map[string]bool{}
}

// SetCalls returns the keys passed to Set so far, in order.
func (f *FaultStore) SetCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.setCalls...)
}

func matchErr(m map[string]error, key string) error {
	for prefix, err := range m {
		if strings.HasPrefix(key, prefix) {
			return err
		}
	}
	return nil
}

func matchFlag(m map[string]bool, key string) bool {
	for prefix := range m {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

func (f *FaultStore) Get(key string) ([]byte, bool, error) {
	f.mu.Lock()
	err := matchErr(f.getErrs, key)
	corrupt := matchFlag(f.corrupt, key)
	f.mu.Unlock()

	if err != nil {
		return nil, false, err
	}
	v, found, err := f.inner.Get(key)
	if err != nil || !found || !corrupt {
		return v, found, err
	}
	return append(v, '#'), true, nil
}

func (f *FaultStore) Set(key string, value []byte) error {
	f.mu.Lock()
	f.setCalls = append(f.setCalls, key)
	err := matchErr(f.setErrs, key)
	if err == nil {
		for prefix, e := range f.setOnce {
			if strings.HasPrefix(key, prefix) {
				err = e
				delete(f.setOnce, prefix)
				break
			}
		}
	}
	swallow := matchFlag(f.swallow, key)
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if swallow {
		return nil
	}
	return f.inner.Set(key, value)
}

func (f *FaultStore) Remove(key string) error {
	f.mu.Lock()
	keep := matchFlag(f.keep, key)
	f.mu.Unlock()

	if keep {
		return nil
	}
	return f.inner.Remove(key)
}

func (f *FaultStore) Keys() ([]string, error) {
	return f.inner.Keys()
}

var _ plot.Store = (*FaultStore)(nil)
