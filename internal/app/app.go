package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"plot-go/internal/config"
	"plot-go/internal/consolidate"
	"plot-go/internal/database"
	"plot-go/internal/encryption"
	"plot-go/internal/export"
	"plot-go/internal/plants"
	"plot-go/internal/plot"
	"plot-go/internal/store"
	"plot-go/internal/transport"
)

// StderrLevel is the lowest level echoed to stderr. Everything is written to
// the log file regardless.
var StderrLevel = slog.LevelWarn

// memoryHub connects every memory-transport sync session in this process.
var memoryHub = transport.NewMemoryHub()

// PlotApp is the application layer between the CLI and the domain services.
// It constructs all dependencies from config, exposes high-level operations,
// and records mutating operations in the journal on Close.
type PlotApp struct {
	cfg       *config.Config
	db        *database.SQLiteDatabase
	store     plot.Store
	leases    *plot.Leases
	migration *consolidate.Service
	bundles   *export.Service
	encryptor plot.Encryptor
	catalog   *plants.Catalog
	logger    plot.Logger
	clock     plot.Clock
	idgen     plot.IDGenerator
	op        *Operation
	logFile   *os.File
}

// NewPlotApp creates a fully wired PlotApp from the given config.
// operation identifies the CLI command being run (e.g. "migrate run", "sync").
// The caller must call Close when done.
func NewPlotApp(cfg *config.Config, operation string) (*PlotApp, error) {
	if cfg.ReplicaID == "" {
		return nil, fmt.Errorf("replica_id is not set; run `plot config init`")
	}
	clock := plot.RealClock{}

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.ReplicaID, clock)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	s, err := store.NewStoreFromConfig(cfg.Store, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating store: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	l, logFile, err := newLogger(cfg.LogDir, opID, StderrLevel)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: l}

	primary, secondary := cfg.Keys.PrimaryKey(), cfg.Keys.SecondaryKey()
	leases := plot.NewLeases()
	keys := consolidate.Keys{Primary: primary, Secondary: secondary}

	return &PlotApp{
		cfg:       cfg,
		db:        db,
		store:     s,
		leases:    leases,
		migration: consolidate.NewService(s, keys, leases, logger, clock),
		bundles:   export.NewService(s, primary, secondary, leases, logger, clock),
		encryptor: enc,
		catalog:   plants.New(),
		logger:    logger,
		clock:     clock,
		idgen:     plot.UUIDGenerator{},
		op:        NewOperation(operation, ""),
		logFile:   logFile,
	}, nil
}

func (a *PlotApp) primaryKey() string   { return a.cfg.Keys.PrimaryKey() }
func (a *PlotApp) secondaryKey() string { return a.cfg.Keys.SecondaryKey() }

// persistOperation saves the operation to the journal, giving it an ID.
// This should only be called for commands that change stored data.
func (a *PlotApp) persistOperation(parameters string) error {
	if a.op.Persisted() {
		return nil
	}
	a.op.Parameters = parameters
	id, err := a.db.StartOperation(a.op.Operation, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = id
	return nil
}

// track records err on the operation. Use with a named error return:
//
//	defer a.track(&err)
func (a *PlotApp) track(err *error) {
	a.op.Fail(*err)
}

// History returns the most recent journaled operations, newest first.
func (a *PlotApp) History(limit int) ([]plot.Operation, error) {
	return a.db.ListOperations(limit)
}

// Close finalizes the operation and closes all resources.
func (a *PlotApp) Close() error {
	var firstErr error

	if a.op.Persisted() {
		if err := a.db.FinishOperation(a.op.ID, a.op.Status, a.op.Detail); err != nil {
			firstErr = fmt.Errorf("finishing operation: %w", err)
		}
	}

	// The sqlite store is the database itself, closed below.
	if c, ok := a.store.(io.Closer); ok && a.cfg.Store.Type != "sqlite" {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing store: %w", err)
		}
	}

	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
