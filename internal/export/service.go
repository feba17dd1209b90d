package export

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"plot-go/internal/backup"
	"plot-go/internal/model"
	"plot-go/internal/plot"
	"plot-go/internal/schema"
)

// Result reports what Import wrote.
type Result struct {
	Areas     int
	Seasons   int
	Varieties int
	Repairs   int
	Steps     []string

	// BackupKey is the backup taken before the import, or empty when there
	// was no primary store to back up.
	BackupKey string
}

// Service exports and imports the two stores held under primaryKey and
// secondaryKey.
type Service struct {
	store        plot.Store
	primaryKey   string
	secondaryKey string
	backups      *backup.Manager
	leases       *plot.Leases
	clock        plot.Clock
	logger       plot.Logger
}

func NewService(store plot.Store, primaryKey, secondaryKey string, leases *plot.Leases, logger plot.Logger, clock plot.Clock) *Service {
	if logger == nil {
		logger = plot.NewNopLogger()
	}
	return &Service{
		store:        store,
		primaryKey:   primaryKey,
		secondaryKey: secondaryKey,
		backups:      backup.NewManager(store, clock, logger),
		leases:       leases,
		clock:        clock,
		logger:       logger,
	}
}

// Bundle builds a bundle from the stores. The primary store must exist; the
// secondary is included when it loads.
func (s *Service) Bundle() (*Bundle, error) {
	raw, found, err := s.store.Get(s.primaryKey)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.primaryKey, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", plot.ErrNotFound, s.primaryKey)
	}
	doc, _, err := schema.Load(raw, s.clock)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", s.primaryKey, err)
	}

	var varieties *model.VarietyStore
	if raw, found, err := s.store.Get(s.secondaryKey); err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.secondaryKey, err)
	} else if found {
		vs, _, err := schema.LoadVarietyStore(raw, s.clock)
		if err != nil {
			s.logger.Warn("leaving unreadable variety store out of export", "key", s.secondaryKey, "error", err)
		} else {
			varieties = vs
		}
	}

	return NewBundle(doc, varieties, s.clock.Now().UTC().Format(time.RFC3339))
}

// Export writes the bundle to w, sealed with enc when enc is non-nil.
func (s *Service) Export(w io.Writer, enc plot.Encryptor) error {
	b, err := s.Bundle()
	if err != nil {
		return err
	}
	data, err := b.Encode()
	if err != nil {
		return err
	}
	if enc != nil {
		if err := enc.Seal(bytes.NewReader(data), w); err != nil {
			return fmt.Errorf("sealing bundle: %w", err)
		}
	} else if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing bundle: %w", err)
	}
	s.logger.Info("exported bundle", "bytes", len(data), "sealed", enc != nil)
	return nil
}

// Open decrypts a sealed bundle read from r.
func Open(r io.Reader, opener plot.Opener) ([]byte, error) {
	var buf bytes.Buffer
	if err := opener.Open(r, &buf); err != nil {
		return nil, fmt.Errorf("opening sealed bundle: %w", err)
	}
	return buf.Bytes(), nil
}

// Import validates data as a bundle and replaces both stores with it. The
// current stores are backed up first under a backup pair, so an import can
// be undone with a rollback. A bundle without varieties leaves the
// secondary store alone.
func (s *Service) Import(data []byte) (Result, error) {
	contents, err := Decode(data, s.clock)
	if err != nil {
		return Result{}, err
	}

	release, err := s.leases.Acquire(s.primaryKey, "import")
	if err != nil {
		return Result{}, err
	}
	defer release()

	primary, err := schema.Encode(contents.Document)
	if err != nil {
		return Result{}, err
	}
	var secondary []byte
	if contents.Varieties != nil {
		if secondary, err = schema.EncodeVarietyStore(contents.Varieties); err != nil {
			return Result{}, err
		}
	}

	result := Result{
		Areas:   len(contents.Document.Layout.Areas),
		Seasons: len(contents.Document.Seasons),
		Repairs: len(contents.Report.Repairs),
		Steps:   contents.Report.Steps,
	}
	if contents.Varieties != nil {
		result.Varieties = len(contents.Varieties.Varieties)
	}

	_, exists, err := s.store.Get(s.primaryKey)
	if err != nil {
		return Result{}, fmt.Errorf("reading %s: %w", s.primaryKey, err)
	}
	var u undo
	if exists {
		if u.pair, err = s.backups.CreatePair(s.primaryKey, s.secondaryKey); err != nil {
			return Result{}, err
		}
		result.BackupKey = u.pair.Primary
	} else if secondary != nil {
		// Nothing to pair with; keep the old secondary in memory instead.
		if u.secondary, u.hadSecondary, err = s.store.Get(s.secondaryKey); err != nil {
			return Result{}, fmt.Errorf("reading %s: %w", s.secondaryKey, err)
		}
	}

	if err := s.store.Set(s.primaryKey, primary); err != nil {
		return Result{}, s.abort(u, fmt.Errorf("writing %s: %w", s.primaryKey, err))
	}
	if secondary != nil {
		u.wroteSecondary = true
		if err := s.store.Set(s.secondaryKey, secondary); err != nil {
			return Result{}, s.abort(u, fmt.Errorf("writing %s: %w", s.secondaryKey, err))
		}
	}

	s.logger.Info("imported bundle", "areas", result.Areas, "seasons", result.Seasons,
		"varieties", result.Varieties, "repairs", result.Repairs, "backup", result.BackupKey)
	return result, nil
}

// undo is what an import needs to put the stores back.
type undo struct {
	pair           backup.Pair
	secondary      []byte
	hadSecondary   bool
	wroteSecondary bool
}

// abort puts back what the import overwrote. Without a backup pair the
// primary store did not exist before, so it is removed again.
func (s *Service) abort(u undo, cause error) error {
	var errs []error
	keep := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if u.pair.Primary != "" {
		keep(s.backups.Restore(u.pair.Primary, s.primaryKey))
	} else {
		keep(s.store.Remove(s.primaryKey))
	}
	if u.wroteSecondary {
		switch {
		case u.pair.Secondary != "":
			keep(s.backups.Restore(u.pair.Secondary, s.secondaryKey))
		case u.hadSecondary:
			keep(s.store.Set(s.secondaryKey, u.secondary))
		default:
			keep(s.store.Remove(s.secondaryKey))
		}
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("restoring after failed import", "error", err)
		return fmt.Errorf("%w (restore also failed: %v)", cause, err)
	}
	s.logger.Warn("import failed; stores restored", "error", cause)
	return cause
}
