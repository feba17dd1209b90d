package backup

import (
	"errors"
	"testing"
	"time"

	"plot-go/internal/plot"
)

func TestParseKey(t *testing.T) {
	tests := []struct {
		in      string
		want    Key
		wantErr bool
	}{
		{in: "migration-backup-1710061200000-allotment", want: Key{1710061200000, Primary}},
		{in: "migration-backup-1710061200000-varieties", want: Key{1710061200000, Secondary}},
		{in: "invalid-backup-key", wantErr: true},
		{in: "migration-backup-", wantErr: true},
		{in: "migration-backup-abc-allotment", wantErr: true},
		{in: "migration-backup-123-seeds", wantErr: true},
		{in: "migration-backup--5-allotment", wantErr: true},
		{in: "migration-backup-0123-allotment", wantErr: true},
		{in: "allotment-data", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKey(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidKey) || !errors.Is(err, plot.ErrRollbackTargetMissing) {
					t.Errorf("ParseKey() error = %v, want invalid key", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseKey() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseKey() = %+v, want %+v", got, tt.want)
			}
			if got.String() != tt.in {
				t.Errorf("String() = %q, want %q", got.String(), tt.in)
			}
		})
	}
}

func TestPairedKey(t *testing.T) {
	got, err := PairedKey("migration-backup-42-allotment")
	if err != nil || got != "migration-backup-42-varieties" {
		t.Errorf("PairedKey(primary) = %q, %v", got, err)
	}
	got, err = PairedKey("migration-backup-42-varieties")
	if err != nil || got != "migration-backup-42-allotment" {
		t.Errorf("PairedKey(secondary) = %q, %v", got, err)
	}
	if _, err := PairedKey("nope"); err == nil {
		t.Error("PairedKey(nope) expected error")
	}
}

func TestNewKey(t *testing.T) {
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	k := NewKey(at, Primary)
	if k.String() != "migration-backup-1741597200000-allotment" {
		t.Errorf("String() = %q", k.String())
	}
	if !k.Time().Equal(at) {
		t.Errorf("Time() = %v, want %v", k.Time(), at)
	}
}
