package store

import (
	"bytes"
	"reflect"
	"testing"

	"plot-go/internal/plot"
)

// testStoreContract exercises the behaviour every plot.Store must share.
func testStoreContract(t *testing.T, newStore func(t *testing.T) plot.Store) {
	t.Helper()

	t.Run("missing key", func(t *testing.T) {
		s := newStore(t)
		v, found, err := s.Get("allotment-data")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if found || v != nil {
			t.Errorf("Get() = %q, %v; want nil, false", v, found)
		}
	})

	t.Run("set get replace", func(t *testing.T) {
		s := newStore(t)
		if err := s.Set("allotment-data", []byte(`{"version":5}`)); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		if err := s.Set("allotment-data", []byte(`{"version":6}`)); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		v, found, err := s.Get("allotment-data")
		if err != nil || !found {
			t.Fatalf("Get() = %v, %v", found, err)
		}
		if !bytes.Equal(v, []byte(`{"version":6}`)) {
			t.Errorf("Get() = %q", v)
		}
	})

	t.Run("remove", func(t *testing.T) {
		s := newStore(t)
		s.Set("k", []byte("v"))
		if err := s.Remove("k"); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}
		if _, found, _ := s.Get("k"); found {
			t.Error("key still present after Remove")
		}
		if err := s.Remove("k"); err != nil {
			t.Errorf("second Remove() error = %v", err)
		}
	})

	t.Run("keys sorted", func(t *testing.T) {
		s := newStore(t)
		for _, k := range []string{"migration-backup-2-allotment", "allotment-data", "migration-backup-1-varieties"} {
			if err := s.Set(k, []byte(k)); err != nil {
				t.Fatalf("Set(%s) error = %v", k, err)
			}
		}
		keys, err := s.Keys()
		if err != nil {
			t.Fatalf("Keys() error = %v", err)
		}
		want := []string{"allotment-data", "migration-backup-1-varieties", "migration-backup-2-allotment"}
		if !reflect.DeepEqual(keys, want) {
			t.Errorf("Keys() = %v, want %v", keys, want)
		}
	})
}
