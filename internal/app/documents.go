package app

import (
	"fmt"
	"time"

	"plot-go/internal/crdt"
	"plot-go/internal/model"
	"plot-go/internal/plot"
	"plot-go/internal/replica"
	"plot-go/internal/schema"
)

// Summary describes the stored document for `plot show`.
type Summary struct {
	Found       bool
	Name        string
	Location    string
	CurrentYear int
	Areas       []model.Area
	Seasons     []SeasonSummary
	Varieties   int
	Repairs     []schema.Repair
	Steps       []string

	// Synced is true when a replica state exists for the document.
	Synced bool
}

// SeasonSummary counts the plantings of one season.
type SeasonSummary struct {
	Year      int
	Status    model.SeasonStatus
	Plantings int
}

func (a *PlotApp) replicaKey() string { return a.primaryKey() + "-replica" }

// newDocument returns an empty document at the latest version.
func (a *PlotApp) newDocument() *model.Document {
	now := a.clock.Now().UTC()
	doc := model.NewDocument(schema.LatestVersion, now.Year())
	doc.Meta.CreatedAt = now.Format(time.RFC3339)
	return doc
}

// Document loads the primary document, repairing and migrating it in memory.
// found is false when nothing is stored, in which case an empty document is
// returned. A load error returns no document; the stored bytes are never
// replaced by a fallback.
func (a *PlotApp) Document() (doc *model.Document, report schema.Report, found bool, err error) {
	raw, found, err := a.store.Get(a.primaryKey())
	if err != nil {
		return nil, schema.Report{}, false, fmt.Errorf("reading %s: %w", a.primaryKey(), err)
	}
	if !found {
		return a.newDocument(), schema.Report{}, false, nil
	}
	doc, report, err = schema.Load(raw, a.clock)
	if err != nil {
		return nil, report, true, fmt.Errorf("loading %s: %w", a.primaryKey(), err)
	}
	if report.Changed() {
		a.logger.Info("document repaired in memory", "repairs", len(report.Repairs), "steps", report.Steps)
		for _, r := range report.Repairs {
			a.logger.Debug("repair", "detail", r.String())
		}
	}
	return doc, report, true, nil
}

// saveDocument encodes doc at the latest version and writes it to the primary key.
func (a *PlotApp) saveDocument(doc *model.Document) error {
	doc.Meta.UpdatedAt = a.clock.Now().UTC().Format(time.RFC3339)
	data, err := schema.Encode(doc)
	if err != nil {
		return err
	}
	if err := a.store.Set(a.primaryKey(), data); err != nil {
		return fmt.Errorf("writing %s: %w", a.primaryKey(), err)
	}
	return nil
}

// Summary loads the document and describes it.
func (a *PlotApp) Summary() (*Summary, error) {
	doc, report, found, err := a.Document()
	if err != nil {
		return nil, err
	}
	_, synced, err := a.store.Get(a.replicaKey())
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", a.replicaKey(), err)
	}

	s := &Summary{
		Found:       found,
		Name:        doc.Meta.Name,
		Location:    doc.Meta.Location,
		CurrentYear: doc.CurrentYear,
		Areas:       doc.Layout.Areas,
		Varieties:   len(doc.Varieties),
		Repairs:     report.Repairs,
		Steps:       report.Steps,
		Synced:      synced,
	}
	for _, season := range doc.Seasons {
		n := 0
		for _, as := range season.Areas {
			n += len(as.Plantings)
		}
		s.Seasons = append(s.Seasons, SeasonSummary{Year: season.Year, Status: season.Status, Plantings: n})
	}
	return s, nil
}

// AddArea adds area to the layout and backfills it into the seasons it is
// active in. When the document takes part in sync, the edit is made on the
// stored replica so the next session sends it to peers.
func (a *PlotApp) AddArea(area model.Area) (err error) {
	if err := a.persistOperation(area.ID); err != nil {
		return err
	}
	defer a.track(&err)

	release, err := a.leases.Acquire(a.primaryKey(), "area add")
	if err != nil {
		return err
	}
	defer release()

	r, found, err := a.loadReplica()
	if err != nil {
		return err
	}
	if found {
		if err := replica.NewEditor(r).AddArea(area); err != nil {
			return err
		}
		a.logger.Info("area added to replica", "area", area.ID)
		return a.persistReplica(r)
	}

	doc, _, _, err := a.Document()
	if err != nil {
		return err
	}
	if err := schema.AddArea(doc, area); err != nil {
		return err
	}
	a.logger.Info("area added", "area", area.ID, "kind", area.Kind)
	return a.saveDocument(doc)
}

// loadReplica rebuilds this replica from its persisted state. found is false
// when the document has never been synced.
func (a *PlotApp) loadReplica() (plot.ReplicatedDoc, bool, error) {
	state, found, err := a.store.Get(a.replicaKey())
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", a.replicaKey(), err)
	}
	doc := crdt.NewDoc(a.cfg.ReplicaID)
	if !found {
		return doc, false, nil
	}
	if err := doc.ApplyUpdate(state); err != nil {
		return nil, true, fmt.Errorf("%w: replica state %s: %w", plot.ErrCorrupted, a.replicaKey(), err)
	}
	return doc, true, nil
}

// persistReplica writes the replica state and, once the replica holds a
// document, its plain form to the primary key.
func (a *PlotApp) persistReplica(r plot.ReplicatedDoc) error {
	state, err := r.EncodeStateAsUpdate(nil)
	if err != nil {
		return fmt.Errorf("encoding replica state: %w", err)
	}
	if err := a.store.Set(a.replicaKey(), state); err != nil {
		return fmt.Errorf("writing %s: %w", a.replicaKey(), err)
	}

	doc := replica.FromReplicated(r)
	if doc.SchemaVersion == 0 {
		return nil
	}
	data, err := schema.Encode(doc)
	if err != nil {
		return err
	}
	if err := a.store.Set(a.primaryKey(), data); err != nil {
		return fmt.Errorf("writing %s: %w", a.primaryKey(), err)
	}
	return nil
}

// resetReplica discards the replica state after the primary document was
// replaced outside a sync session. The next `plot sync --seed` starts from
// the new document.
func (a *PlotApp) resetReplica() error {
	_, found, err := a.store.Get(a.replicaKey())
	if err != nil || !found {
		return err
	}
	if err := a.store.Remove(a.replicaKey()); err != nil {
		return fmt.Errorf("removing %s: %w", a.replicaKey(), err)
	}
	a.logger.Warn("replica state discarded; reseed with `plot sync --seed`", "key", a.replicaKey())
	return nil
}
