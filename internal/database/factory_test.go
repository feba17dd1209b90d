package database

import (
	"path/filepath"
	"testing"

	"plot-go/internal/config"
)

func TestNewDatabaseFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.DatabaseConfig
		replica string
		wantErr bool
	}{
		{"memory database", config.DatabaseConfig{Type: "memory"}, "r1", false},
		{"sqlite database", config.DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(t.TempDir(), "nested")}, "r1", false},
		{"sqlite without data_dir", config.DatabaseConfig{Type: "sqlite"}, "r1", true},
		{"sqlite without replica", config.DatabaseConfig{Type: "sqlite", DataDir: t.TempDir()}, "", true},
		{"unknown type", config.DatabaseConfig{Type: "postgres"}, "r1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewDatabaseFromConfig(tt.cfg, tt.replica, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewDatabaseFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got == nil {
				return
			}
			defer got.Close()
			if err := got.CheckMigrations(); err != nil {
				t.Errorf("CheckMigrations() = %v", err)
			}
		})
	}
}
