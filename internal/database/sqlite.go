package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"plot-go/internal/database/migrations"
	"plot-go/internal/plot"
)

// SQLiteDatabase stores documents in the entries table and records
// operations in the operations table. It satisfies both plot.Store and
// plot.Journal.
type SQLiteDatabase struct {
	db    *sql.DB
	clock plot.Clock
	path  string
}

// NewSQLiteDatabase opens path (or ":memory:") and applies pending migrations.
func NewSQLiteDatabase(path string, clock plot.Clock) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return NewSQLiteDatabaseFromDB(db, clock, path), nil
}

// NewSQLiteDatabaseFromDB wraps an existing connection whose schema is
// already current.
func NewSQLiteDatabaseFromDB(db *sql.DB, clock plot.Clock, path string) *SQLiteDatabase {
	if clock == nil {
		clock = plot.RealClock{}
	}
	return &SQLiteDatabase{db: db, clock: clock, path: path}
}

// OpenConnection opens and configures a SQLite connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

// Entries

func (s *SQLiteDatabase) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(context.Background(), "SELECT value FROM entries WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading entry %s: %w", key, err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, true, nil
}

func (s *SQLiteDatabase) Set(key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO entries (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.clock.Now().UTC())
	if err != nil {
		if isFull(err) {
			return fmt.Errorf("writing entry %s: %w", key, plot.ErrQuotaExceeded)
		}
		return fmt.Errorf("writing entry %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteDatabase) Remove(key string) error {
	if _, err := s.db.ExecContext(context.Background(), "DELETE FROM entries WHERE key = ?", key); err != nil {
		return fmt.Errorf("removing entry %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteDatabase) Keys() ([]string, error) {
	rows, err := s.db.QueryContext(context.Background(), "SELECT key FROM entries ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scanning entry key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func isFull(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrFull
}

// Operation journal

func (s *SQLiteDatabase) StartOperation(operation, parameters string) (int64, error) {
	res, err := s.db.ExecContext(context.Background(),
		"INSERT INTO operations (started_at, operation, parameters) VALUES (?, ?, ?)",
		s.clock.Now().UTC(), operation, parameters)
	if err != nil {
		return 0, fmt.Errorf("creating operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading operation id: %w", err)
	}
	return id, nil
}

func (s *SQLiteDatabase) FinishOperation(id int64, status, detail string) error {
	res, err := s.db.ExecContext(context.Background(),
		"UPDATE operations SET finished_at = ?, status = ?, detail = ? WHERE id = ?",
		s.clock.Now().UTC(), status, detail, id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finishing operation %d: %w", id, plot.ErrNotFound)
	}
	return nil
}

func (s *SQLiteDatabase) ListOperations(limit int) ([]plot.Operation, error) {
	rows, err := s.db.QueryContext(context.Background(),
		`SELECT id, started_at, finished_at, operation, parameters, status, detail
		 FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	ops := []plot.Operation{}
	for rows.Next() {
		var op plot.Operation
		var finished sql.NullTime
		if err := rows.Scan(&op.ID, &op.StartedAt, &finished, &op.Operation, &op.Parameters, &op.Status, &op.Detail); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			op.FinishedAt = &t
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var (
	_ plot.Store   = (*SQLiteDatabase)(nil)
	_ plot.Journal = (*SQLiteDatabase)(nil)
)
