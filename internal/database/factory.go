package database

import (
	"fmt"
	"os"
	"path/filepath"

	"plot-go/internal/config"
	"plot-go/internal/plot"
)

// NewDatabaseFromConfig opens the database described by cfg. The sqlite file
// is named after the replica so several replicas can share a data directory.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, replicaID string, clock plot.Clock) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if replicaID == "" {
			return nil, fmt.Errorf("replica_id required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLiteDatabase(filepath.Join(cfg.DataDir, replicaID+".db"), clock)
	case "memory":
		return NewSQLiteDatabase(":memory:", clock)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
