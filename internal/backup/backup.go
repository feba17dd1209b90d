package backup

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"plot-go/internal/plot"
)

// ErrBackupNotFound means a well-formed backup key names nothing in the store.
var ErrBackupNotFound = errors.New("backup not found")

// Pair is one snapshot of both stores taken at the same instant.
// Secondary is empty when the secondary store was absent at snapshot time.
// An absent primary store is recorded as a zero-length primary half so that
// restoring the pair removes the primary again.
type Pair struct {
	Key           Key
	Primary       string
	Secondary     string
	PrimarySize   int
	SecondarySize int
}

// PrimaryAbsent reports whether the primary store did not exist when the
// pair was taken.
func (p Pair) PrimaryAbsent() bool {
	return p.Primary != "" && p.PrimarySize == 0
}

// Time returns when the pair was taken.
func (p Pair) Time() time.Time {
	return p.Key.Time()
}

// Manager creates, restores, lists and deletes backups through the
// persistence port. Backups are never expired automatically.
type Manager struct {
	store  plot.Store
	clock  plot.Clock
	logger plot.Logger
}

func NewManager(store plot.Store, clock plot.Clock, logger plot.Logger) *Manager {
	if logger == nil {
		logger = plot.NewNopLogger()
	}
	return &Manager{store: store, clock: clock, logger: logger}
}

// CreatePair snapshots primaryKey and, when present, secondaryKey under one
// timestamp. An absent primaryKey is snapshotted as an empty half; with both
// keys absent there is nothing to back up. Every write is read back and
// byte-compared. On any failure the halves already written are removed and
// the error wraps plot.ErrBackupFailed together with the cause.
func (m *Manager) CreatePair(primaryKey, secondaryKey string) (Pair, error) {
	base := NewKey(m.clock.Now(), Primary)
	pair := Pair{Key: base}

	primary, found, err := m.store.Get(primaryKey)
	if err != nil {
		return Pair{}, fmt.Errorf("%w: reading %s: %w", plot.ErrBackupFailed, primaryKey, err)
	}
	secondary, secondaryFound, err := m.store.Get(secondaryKey)
	if err != nil {
		return Pair{}, fmt.Errorf("%w: reading %s: %w", plot.ErrBackupFailed, secondaryKey, err)
	}
	if !found && !secondaryFound {
		return Pair{}, fmt.Errorf("%w: %s and %s are empty, nothing to back up", plot.ErrBackupFailed, primaryKey, secondaryKey)
	}
	if !found {
		primary = []byte{}
	}

	var written []string
	abort := func(err error) (Pair, error) {
		for _, k := range written {
			if rmErr := m.store.Remove(k); rmErr != nil {
				m.logger.Warn("removing partial backup", "key", k, "error", rmErr)
			} else {
				m.logger.Info("removed partial backup", "key", k)
			}
		}
		return Pair{}, fmt.Errorf("%w: %w", plot.ErrBackupFailed, err)
	}

	pair.Primary = base.String()
	if err := m.writeVerified(pair.Primary, primary, &written); err != nil {
		return abort(err)
	}
	pair.PrimarySize = len(primary)

	if secondaryFound {
		pair.Secondary = base.Paired().String()
		if err := m.writeVerified(pair.Secondary, secondary, &written); err != nil {
			return abort(err)
		}
		pair.SecondarySize = len(secondary)
	}

	m.logger.Info("backup created", "primary", pair.Primary, "secondary", pair.Secondary,
		"primary_bytes", pair.PrimarySize, "secondary_bytes", pair.SecondarySize)
	return pair, nil
}

// writeVerified writes a new backup key and compares the read-back bytes.
// Keys that reached the store are appended to written.
func (m *Manager) writeVerified(key string, data []byte, written *[]string) error {
	if _, exists, err := m.store.Get(key); err != nil {
		return fmt.Errorf("checking %s: %w", key, err)
	} else if exists {
		return fmt.Errorf("backup %s already exists", key)
	}
	if err := m.store.Set(key, data); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	*written = append(*written, key)
	back, found, err := m.store.Get(key)
	if err != nil {
		return fmt.Errorf("reading back %s: %w", key, err)
	}
	if !found || !bytes.Equal(back, data) {
		return fmt.Errorf("%s did not read back identically", key)
	}
	m.logger.Debug("backup verified", "key", key, "bytes", len(data))
	return nil
}

// Restore copies backupKey verbatim over targetKey and verifies the write.
// A zero-length backup means targetKey was absent, so targetKey is removed.
func (m *Manager) Restore(backupKey, targetKey string) error {
	data, found, err := m.store.Get(backupKey)
	if err != nil {
		return fmt.Errorf("reading backup %s: %w", backupKey, err)
	}
	if !found {
		return fmt.Errorf("%w: %w: %s", plot.ErrRollbackTargetMissing, ErrBackupNotFound, backupKey)
	}
	if len(data) == 0 {
		return m.restoreAbsent(backupKey, targetKey)
	}
	if err := m.store.Set(targetKey, data); err != nil {
		return fmt.Errorf("restoring %s from %s: %w", targetKey, backupKey, err)
	}
	back, found, err := m.store.Get(targetKey)
	if err != nil {
		return fmt.Errorf("reading restored %s: %w", targetKey, err)
	}
	if !found || !bytes.Equal(back, data) {
		return fmt.Errorf("%w: %s does not match %s after restore", plot.ErrVerificationFailed, targetKey, backupKey)
	}
	m.logger.Info("restored from backup", "backup", backupKey, "target", targetKey, "bytes", len(data))
	return nil
}

func (m *Manager) restoreAbsent(backupKey, targetKey string) error {
	if err := m.store.Remove(targetKey); err != nil && !errors.Is(err, plot.ErrNotFound) {
		return fmt.Errorf("removing %s: %w", targetKey, err)
	}
	if _, found, err := m.store.Get(targetKey); err != nil {
		return fmt.Errorf("reading restored %s: %w", targetKey, err)
	} else if found {
		return fmt.Errorf("%w: %s still present after restoring %s", plot.ErrVerificationFailed, targetKey, backupKey)
	}
	m.logger.Info("restored absent store from backup", "backup", backupKey, "target", targetKey)
	return nil
}

// Exists reports whether backupKey is present in the store.
func (m *Manager) Exists(backupKey string) (bool, error) {
	_, found, err := m.store.Get(backupKey)
	if err != nil {
		return false, fmt.Errorf("reading backup %s: %w", backupKey, err)
	}
	return found, nil
}

// List returns every backup pair, newest first.
func (m *Manager) List() ([]Pair, error) {
	keys, err := m.store.Keys()
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}

	byMillis := map[int64]*Pair{}
	for _, s := range keys {
		if !strings.HasPrefix(s, KeyPrefix) {
			continue
		}
		k, err := ParseKey(s)
		if err != nil {
			continue
		}
		p, ok := byMillis[k.Millis]
		if !ok {
			p = &Pair{Key: Key{Millis: k.Millis, Discriminator: Primary}}
			byMillis[k.Millis] = p
		}
		v, found, err := m.store.Get(s)
		if err != nil {
			return nil, fmt.Errorf("reading backup %s: %w", s, err)
		}
		if !found {
			continue
		}
		if k.Discriminator == Primary {
			p.Primary, p.PrimarySize = s, len(v)
		} else {
			p.Secondary, p.SecondarySize = s, len(v)
		}
	}

	pairs := make([]Pair, 0, len(byMillis))
	for _, p := range byMillis {
		pairs = append(pairs, *p)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key.Millis > pairs[j].Key.Millis })
	return pairs, nil
}

// Delete removes both halves of the pair that backupKey belongs to. This
// explicit call is the only way backups are ever removed.
func (m *Manager) Delete(backupKey string) error {
	k, err := ParseKey(backupKey)
	if err != nil {
		return err
	}
	primary := Key{Millis: k.Millis, Discriminator: Primary}.String()
	secondary := Key{Millis: k.Millis, Discriminator: Secondary}.String()

	found := false
	for _, key := range []string{primary, secondary} {
		exists, err := m.Exists(key)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		found = true
		if err := m.store.Remove(key); err != nil {
			return fmt.Errorf("removing backup %s: %w", key, err)
		}
	}
	if !found {
		return fmt.Errorf("%w: %w: %s", plot.ErrRollbackTargetMissing, ErrBackupNotFound, backupKey)
	}
	m.logger.Info("backup deleted", "primary", primary, "secondary", secondary)
	return nil
}
