package plot

import "errors"

var (
	// ErrNotFound means no data has been stored yet. It is a valid initial
	// state rather than a failure.
	ErrNotFound = errors.New("no data found")

	// ErrCorrupted means bytes are present but cannot be parsed at all.
	ErrCorrupted = errors.New("stored data is corrupted")

	// ErrSchemaInvalid means the data parsed but could not be repaired into
	// a usable document.
	ErrSchemaInvalid = errors.New("stored data does not match any known schema")

	// ErrQuotaExceeded means the store refused a write because it is full.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrBackupFailed means a pre-migration snapshot could not be written or
	// did not read back identically. No store was modified.
	ErrBackupFailed = errors.New("backup failed")

	// ErrVerificationFailed means a write reported success but the data read
	// back afterwards does not match what was expected.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrRollbackTargetMissing means a backup key is malformed or names a
	// backup that does not exist.
	ErrRollbackTargetMissing = errors.New("rollback target missing")

	// ErrStoreBusy means another operation currently holds the store key.
	ErrStoreBusy = errors.New("store is busy")
)
