package consolidate

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"plot-go/internal/backup"
	"plot-go/internal/model"
	"plot-go/internal/plot"
	"plot-go/internal/schema"
)

// MigratedTo is written into the secondary store once its varieties live in
// the primary document.
const MigratedTo = "allotment"

// Keys names the two logical stores being consolidated.
type Keys struct {
	Primary   string
	Secondary string
}

// Result reports what Execute did.
type Result struct {
	VarietiesMerged   int
	DuplicatesSkipped int

	// BackupKey is the primary half of the backup pair, or empty for a no-op.
	BackupKey          string
	SecondaryBackupKey string
}

// Service plans, executes and rolls back the consolidation of the
// secondary store into the primary document.
type Service struct {
	store   plot.Store
	keys    Keys
	backups *backup.Manager
	planner *Planner
	leases  *plot.Leases
	logger  plot.Logger
	clock   plot.Clock
}

// NewService wires the planner and backup manager onto store. leases may be
// nil, in which case no concurrency guard is taken.
func NewService(store plot.Store, keys Keys, leases *plot.Leases, logger plot.Logger, clock plot.Clock) *Service {
	if logger == nil {
		logger = plot.NewNopLogger()
	}
	return &Service{
		store:   store,
		keys:    keys,
		backups: backup.NewManager(store, clock, logger),
		planner: NewPlanner(store, keys.Secondary, clock, logger),
		leases:  leases,
		logger:  logger,
		clock:   clock,
	}
}

// Backups exposes the backup manager for listing and deletion.
func (s *Service) Backups() *backup.Manager {
	return s.backups
}

// Plan is a dry run. It performs no writes.
func (s *Service) Plan(primary *model.Document) (Plan, error) {
	return s.planner.Plan(primary)
}

// Execute merges the secondary store into primary and persists the result.
// A plan that needs no migration returns immediately without a backup. Any
// failure after the backup is taken restores both stores before the error
// is returned.
func (s *Service) Execute(primary *model.Document) (Result, error) {
	release, err := s.leases.Acquire(s.keys.Primary, "migration")
	if err != nil {
		return Result{}, err
	}
	defer release()

	plan, err := s.planner.Plan(primary)
	if err != nil {
		return Result{}, fmt.Errorf("planning migration: %w", err)
	}
	if !plan.NeedsMigration {
		s.logger.Info("nothing to migrate")
		return Result{}, nil
	}

	pair, err := s.backups.CreatePair(s.keys.Primary, s.keys.Secondary)
	if err != nil {
		return Result{}, err
	}
	result := Result{
		VarietiesMerged:    len(plan.VarietiesToMerge),
		DuplicatesSkipped:  len(plan.DuplicatesFound),
		BackupKey:          pair.Primary,
		SecondaryBackupKey: pair.Secondary,
	}

	now := s.clock.Now().UTC().Format(time.RFC3339)
	merged := mergeDocument(primary, plan, now)
	data, err := schema.Encode(merged)
	if err != nil {
		return Result{}, fmt.Errorf("encoding merged document: %w", err)
	}
	if err := s.store.Set(s.keys.Primary, data); err != nil {
		return Result{}, s.abort(pair, fmt.Errorf("writing merged document: %w", err))
	}
	if err := s.markMigrated(now); err != nil {
		return Result{}, s.abort(pair, err)
	}
	if err := s.verifyCount(plan.TotalEntitiesAfterMigration); err != nil {
		return Result{}, s.abort(pair, err)
	}

	s.logger.Info("migration complete", "merged", result.VarietiesMerged,
		"skipped", result.DuplicatesSkipped, "backup", result.BackupKey)
	return result, nil
}

// mergeDocument returns a copy of primary with the merge list appended
// after the existing varieties.
func mergeDocument(primary *model.Document, plan Plan, now string) *model.Document {
	merged := *primary
	merged.Varieties = append(slices.Clone(primary.Varieties), plan.VarietiesToMerge...)
	merged.Meta.UpdatedAt = now
	return &merged
}

func (s *Service) markMigrated(now string) error {
	raw, found, err := s.store.Get(s.keys.Secondary)
	if err != nil {
		return fmt.Errorf("reading %s: %w", s.keys.Secondary, err)
	}
	vs := &model.VarietyStore{}
	if found {
		if loaded, _, err := schema.LoadVarietyStore(raw, s.clock); err == nil {
			vs = loaded
		}
	}
	vs.Varieties = []model.StoredVariety{}
	vs.Meta.UpdatedAt = now
	vs.MigratedTo = MigratedTo
	vs.MigratedAt = now

	data, err := schema.EncodeVarietyStore(vs)
	if err != nil {
		return err
	}
	if err := s.store.Set(s.keys.Secondary, data); err != nil {
		return fmt.Errorf("marking %s migrated: %w", s.keys.Secondary, err)
	}
	return nil
}

func (s *Service) verifyCount(want int) error {
	raw, found, err := s.store.Get(s.keys.Primary)
	if err != nil {
		return fmt.Errorf("%w: re-reading %s: %w", plot.ErrVerificationFailed, s.keys.Primary, err)
	}
	if !found {
		return fmt.Errorf("%w: %s is empty after merge", plot.ErrVerificationFailed, s.keys.Primary)
	}
	doc, _, err := schema.Load(raw, s.clock)
	if err != nil {
		return fmt.Errorf("%w: merged document does not load: %w", plot.ErrVerificationFailed, err)
	}
	if got := len(doc.Varieties); got != want {
		return fmt.Errorf("%w: expected %d varieties after merge, found %d", plot.ErrVerificationFailed, want, got)
	}
	return nil
}

// abort restores both stores from pair and returns cause, joined with any
// restore failure.
func (s *Service) abort(pair backup.Pair, cause error) error {
	s.logger.Warn("migration failed, restoring from backup", "backup", pair.Primary, "error", cause)
	if _, err := s.restorePair(pair.Key.Millis); err != nil {
		s.logger.Error("automatic restore failed", "backup", pair.Primary, "error", err)
		return errors.Join(cause, fmt.Errorf("automatic restore failed: %w", err))
	}
	s.logger.Info("automatic restore complete", "backup", pair.Primary)
	return cause
}

// restorePair restores the primary store from its backup and either
// restores the secondary store or, when no secondary backup exists,
// deletes it. It reports whether the primary store was absent when the
// pair was taken, in which case it has been removed again.
func (s *Service) restorePair(millis int64) (primaryAbsent bool, err error) {
	primary := backup.Key{Millis: millis, Discriminator: backup.Primary}
	secondary := primary.Paired()

	raw, found, err := s.store.Get(primary.String())
	if err != nil {
		return false, fmt.Errorf("reading backup %s: %w", primary, err)
	}
	primaryAbsent = found && len(raw) == 0
	if err := s.backups.Restore(primary.String(), s.keys.Primary); err != nil {
		return false, err
	}
	exists, err := s.backups.Exists(secondary.String())
	if err != nil {
		return primaryAbsent, err
	}
	if exists {
		return primaryAbsent, s.backups.Restore(secondary.String(), s.keys.Secondary)
	}
	if err := s.store.Remove(s.keys.Secondary); err != nil && !errors.Is(err, plot.ErrNotFound) {
		return primaryAbsent, fmt.Errorf("removing %s: %w", s.keys.Secondary, err)
	}
	return primaryAbsent, nil
}

// Rollback restores both stores to the pair that backupKey belongs to.
// The key is validated before any storage is touched. Failures are
// returned as they are; there is no fallback.
func (s *Service) Rollback(backupKey string) error {
	k, err := backup.ParseKey(backupKey)
	if err != nil {
		return err
	}

	release, err := s.leases.Acquire(s.keys.Primary, "rollback")
	if err != nil {
		return err
	}
	defer release()

	primaryAbsent, err := s.restorePair(k.Millis)
	if err != nil {
		return fmt.Errorf("rolling back to %s: %w", backupKey, err)
	}

	raw, found, err := s.store.Get(s.keys.Primary)
	if err != nil {
		return fmt.Errorf("%w: re-reading %s: %w", plot.ErrVerificationFailed, s.keys.Primary, err)
	}
	if primaryAbsent {
		if found {
			return fmt.Errorf("%w: %s present after rollback to an empty store", plot.ErrVerificationFailed, s.keys.Primary)
		}
		s.logger.Info("rollback complete", "backup", backupKey, "primary", "absent")
		return nil
	}
	if !found || len(raw) == 0 {
		return fmt.Errorf("%w: %s is empty after rollback", plot.ErrVerificationFailed, s.keys.Primary)
	}
	if _, _, err := schema.ValidateAndRepair(raw); err != nil {
		return fmt.Errorf("%w: restored %s is unreadable: %w", plot.ErrVerificationFailed, s.keys.Primary, err)
	}

	s.logger.Info("rollback complete", "backup", backupKey)
	return nil
}
