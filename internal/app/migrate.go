package app

import (
	"plot-go/internal/backup"
	"plot-go/internal/consolidate"
)

// PlanMigration reports what consolidating the variety store into the
// document would do. It writes nothing.
func (a *PlotApp) PlanMigration() (consolidate.Plan, error) {
	doc, _, _, err := a.Document()
	if err != nil {
		return consolidate.Plan{}, err
	}
	return a.migration.Plan(doc)
}

// Migrate consolidates the variety store into the document. The document
// is written only under the migration lease, and a document that was never
// saved is absent again after a rollback.
func (a *PlotApp) Migrate() (result consolidate.Result, err error) {
	if err := a.persistOperation(a.primaryKey()); err != nil {
		return consolidate.Result{}, err
	}
	defer a.track(&err)

	doc, _, _, err := a.Document()
	if err != nil {
		return consolidate.Result{}, err
	}

	result, err = a.migration.Execute(doc)
	if err != nil {
		return result, err
	}
	if result.BackupKey != "" {
		if err := a.resetReplica(); err != nil {
			return result, err
		}
	}
	return result, nil
}

// Rollback restores both stores from the backup pair containing backupKey.
func (a *PlotApp) Rollback(backupKey string) (err error) {
	if err := a.persistOperation(backupKey); err != nil {
		return err
	}
	defer a.track(&err)

	if err := a.migration.Rollback(backupKey); err != nil {
		return err
	}
	return a.resetReplica()
}

// Backups lists backup pairs, newest first.
func (a *PlotApp) Backups() ([]backup.Pair, error) {
	return a.migration.Backups().List()
}

// DeleteBackup removes both halves of the pair containing backupKey.
func (a *PlotApp) DeleteBackup(backupKey string) (err error) {
	if err := a.persistOperation(backupKey); err != nil {
		return err
	}
	defer a.track(&err)
	return a.migration.Backups().Delete(backupKey)
}
