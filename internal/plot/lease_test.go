package plot

import (
	"errors"
	"testing"
)

func TestLeases_Acquire(t *testing.T) {
	t.Run("second owner is rejected while held", func(t *testing.T) {
		l := NewLeases()

		release, err := l.Acquire("allotment-data", "sync")
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		defer release()

		_, err = l.Acquire("allotment-data", "migration")
		if !errors.Is(err, ErrStoreBusy) {
			t.Errorf("Acquire() error = %v, want ErrStoreBusy", err)
		}

		owner, ok := l.Owner("allotment-data")
		if !ok || owner != "sync" {
			t.Errorf("Owner() = %q, %v, want %q, true", owner, ok, "sync")
		}
	})

	t.Run("release frees the key", func(t *testing.T) {
		l := NewLeases()

		release, err := l.Acquire("k", "a")
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		release()
		release() // idempotent

		if _, err := l.Acquire("k", "b"); err != nil {
			t.Errorf("Acquire() after release error = %v", err)
		}
	})

	t.Run("different keys are independent", func(t *testing.T) {
		l := NewLeases()
		if _, err := l.Acquire("a", "x"); err != nil {
			t.Fatalf("Acquire(a) error = %v", err)
		}
		if _, err := l.Acquire("b", "y"); err != nil {
			t.Errorf("Acquire(b) error = %v", err)
		}
	})

	t.Run("nil registry never blocks", func(t *testing.T) {
		var l *Leases
		release, err := l.Acquire("k", "a")
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		release()
	})
}
