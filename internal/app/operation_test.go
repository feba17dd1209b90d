package app

import (
	"errors"
	"testing"
)

func TestNewOperation(t *testing.T) {
	op := NewOperation("migrate run", "allotment-data")
	if op.Operation != "migrate run" || op.Parameters != "allotment-data" {
		t.Errorf("op = %+v", op)
	}
	if op.Status != "success" || op.ID != 0 || op.Persisted() {
		t.Errorf("new op should be an unpersisted success: %+v", op)
	}
}

func TestOperation_Persisted(t *testing.T) {
	tests := []struct {
		name string
		id   int64
		want bool
	}{
		{name: "not persisted when ID is 0", id: 0, want: false},
		{name: "persisted when ID is positive", id: 1, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := &Operation{ID: tt.id}
			if got := op.Persisted(); got != tt.want {
				t.Errorf("Persisted() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOperation_Fail(t *testing.T) {
	op := NewOperation("rollback", "")
	op.Fail(nil)
	if op.Status != "success" {
		t.Errorf("Fail(nil) changed status to %q", op.Status)
	}
	op.Fail(errors.New("backup not found"))
	if op.Status != "error" || op.Detail != "backup not found" {
		t.Errorf("op = %+v", op)
	}
}
