package consolidate

import (
	"errors"
	"fmt"

	"plot-go/internal/model"
	"plot-go/internal/plot"
	"plot-go/internal/schema"
)

// Resolution says which copy of a duplicated variety survives the merge.
type Resolution string

const (
	// KeepPrimary keeps the primary store's copy. The primary is assumed to
	// be the more recently curated of the two.
	KeepPrimary Resolution = "keep-primary"
	// KeepFirst keeps the earlier of two secondary entries with the same
	// identity.
	KeepFirst Resolution = "keep-first"
)

// Duplicate is a secondary variety whose identity already exists.
type Duplicate struct {
	Existing   model.StoredVariety
	Incoming   model.StoredVariety
	Resolution Resolution
}

// Plan is the dry-run result of consolidating the secondary store into the
// primary document.
type Plan struct {
	NeedsMigration   bool
	VarietiesToMerge []model.StoredVariety
	DuplicatesFound  []Duplicate

	// PrimaryCount is the number of varieties the primary held when planned.
	PrimaryCount int
	// TotalEntitiesAfterMigration is PrimaryCount plus the merge list. The
	// executor checks the persisted document against it.
	TotalEntitiesAfterMigration int
}

func emptyPlan(primary *model.Document) Plan {
	n := len(primary.Varieties)
	return Plan{
		VarietiesToMerge:            []model.StoredVariety{},
		DuplicatesFound:             []Duplicate{},
		PrimaryCount:                n,
		TotalEntitiesAfterMigration: n,
	}
}

// PlanVarieties compares a decoded secondary store against primary. A nil
// or empty secondary yields a plan that needs no migration.
func PlanVarieties(primary *model.Document, secondary *model.VarietyStore) Plan {
	plan := emptyPlan(primary)
	if secondary == nil || len(secondary.Varieties) == 0 {
		return plan
	}

	existing := make(map[string]model.StoredVariety, len(primary.Varieties))
	for _, v := range primary.Varieties {
		if _, ok := existing[v.Identity()]; !ok {
			existing[v.Identity()] = v
		}
	}

	incoming := map[string]model.StoredVariety{}
	for _, v := range secondary.Varieties {
		id := v.Identity()
		if e, ok := existing[id]; ok {
			plan.DuplicatesFound = append(plan.DuplicatesFound, Duplicate{Existing: e, Incoming: v, Resolution: KeepPrimary})
			continue
		}
		if first, ok := incoming[id]; ok {
			plan.DuplicatesFound = append(plan.DuplicatesFound, Duplicate{Existing: first, Incoming: v, Resolution: KeepFirst})
			continue
		}
		incoming[id] = v
		plan.VarietiesToMerge = append(plan.VarietiesToMerge, v)
	}

	plan.NeedsMigration = true
	plan.TotalEntitiesAfterMigration = plan.PrimaryCount + len(plan.VarietiesToMerge)
	return plan
}

// PlanFromBytes plans against the raw secondary store bytes. Absent or
// unreadable bytes yield a plan that needs no migration.
func PlanFromBytes(primary *model.Document, secondaryRaw []byte, found bool) Plan {
	if !found {
		return emptyPlan(primary)
	}
	vs, _, err := schema.LoadVarietyStore(secondaryRaw, plot.RealClock{})
	if err != nil {
		return emptyPlan(primary)
	}
	return PlanVarieties(primary, vs)
}

// Planner reads the secondary store through the persistence port and plans
// the merge. It never writes.
type Planner struct {
	store        plot.Store
	secondaryKey string
	clock        plot.Clock
	logger       plot.Logger
}

func NewPlanner(store plot.Store, secondaryKey string, clock plot.Clock, logger plot.Logger) *Planner {
	if logger == nil {
		logger = plot.NewNopLogger()
	}
	return &Planner{store: store, secondaryKey: secondaryKey, clock: clock, logger: logger}
}

// Plan returns the merge plan for primary. Only a failing store read is an
// error; a corrupt secondary store is logged and treated as empty.
func (p *Planner) Plan(primary *model.Document) (Plan, error) {
	raw, found, err := p.store.Get(p.secondaryKey)
	if err != nil {
		return Plan{}, fmt.Errorf("reading %s: %w", p.secondaryKey, err)
	}
	if !found {
		return emptyPlan(primary), nil
	}

	vs, report, err := schema.LoadVarietyStore(raw, p.clock)
	if err != nil {
		if errors.Is(err, plot.ErrNotFound) || errors.Is(err, plot.ErrCorrupted) || errors.Is(err, plot.ErrSchemaInvalid) {
			p.logger.Warn("secondary store unreadable, nothing to migrate", "key", p.secondaryKey, "error", err)
			return emptyPlan(primary), nil
		}
		return Plan{}, fmt.Errorf("loading %s: %w", p.secondaryKey, err)
	}
	if len(report.Repairs) > 0 {
		p.logger.Info("secondary store repaired for planning", "key", p.secondaryKey, "repairs", len(report.Repairs))
	}

	plan := PlanVarieties(primary, vs)
	p.logger.Debug("migration planned", "needs_migration", plan.NeedsMigration,
		"to_merge", len(plan.VarietiesToMerge), "duplicates", len(plan.DuplicatesFound))
	return plan, nil
}
