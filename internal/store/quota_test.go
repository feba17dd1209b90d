package store

import (
	"errors"
	"testing"

	"plot-go/internal/plot"
)

func TestQuotaStore_Contract(t *testing.T) {
	testStoreContract(t, func(t *testing.T) plot.Store {
		q, err := NewQuotaStore(NewMemoryStore(0), 1<<20)
		if err != nil {
			t.Fatalf("NewQuotaStore() error = %v", err)
		}
		return q
	})
}

func TestQuotaStore_CountsExistingData(t *testing.T) {
	inner := NewMemoryStore(0)
	inner.Set("existing", make([]byte, 12)) // 20 bytes

	q, err := NewQuotaStore(inner, 30)
	if err != nil {
		t.Fatalf("NewQuotaStore() error = %v", err)
	}
	if q.Used() != 20 {
		t.Errorf("Used() = %d, want 20", q.Used())
	}

	if err := q.Set("new", make([]byte, 8)); !errors.Is(err, plot.ErrQuotaExceeded) {
		t.Fatalf("Set() error = %v, want ErrQuotaExceeded", err)
	}
	if _, found, _ := inner.Get("new"); found {
		t.Error("rejected write reached inner store")
	}

	if err := q.Remove("existing"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := q.Set("new", make([]byte, 8)); err != nil {
		t.Errorf("Set() after freeing space error = %v", err)
	}
}
