package schema

import (
	"encoding/json"
	"fmt"

	"plot-go/internal/model"
	"plot-go/internal/plot"
)

// Report lists what loading had to change. Callers decide whether to
// persist the upgraded form.
type Report struct {
	Repairs []Repair
	Steps   []string
}

// Changed reports whether the loaded document differs from its stored bytes.
func (r Report) Changed() bool {
	return len(r.Repairs) > 0 || len(r.Steps) > 0
}

func versionError(got, latest int) error {
	if got > latest {
		return fmt.Errorf("%w: version %d was written by a newer version (latest known %d)", plot.ErrSchemaInvalid, got, latest)
	}
	return fmt.Errorf("%w: version %d has not been migrated to %d", plot.ErrSchemaInvalid, got, latest)
}

func remarshal(tree Raw, out any) error {
	data, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("%w: %v", plot.ErrSchemaInvalid, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", plot.ErrSchemaInvalid, err)
	}
	return nil
}

// Decode converts a repaired tree at LatestVersion into a Document whose
// required collections are all non-nil.
func Decode(tree Raw) (*model.Document, error) {
	if v := version(tree); v != LatestVersion {
		return nil, versionError(v, LatestVersion)
	}
	var doc model.Document
	if err := remarshal(tree, &doc); err != nil {
		return nil, err
	}
	fillCollections(&doc)
	return &doc, nil
}

func fillCollections(doc *model.Document) {
	if doc.Layout.Areas == nil {
		doc.Layout.Areas = []model.Area{}
	}
	if doc.Seasons == nil {
		doc.Seasons = []model.SeasonRecord{}
	}
	if doc.Varieties == nil {
		doc.Varieties = []model.StoredVariety{}
	}
	for i := range doc.Seasons {
		s := &doc.Seasons[i]
		if s.Areas == nil {
			s.Areas = []model.AreaSeason{}
		}
		for j := range s.Areas {
			if s.Areas[j].Plantings == nil {
				s.Areas[j].Plantings = []model.Planting{}
			}
		}
	}
}

// Load runs the full load path: validate and repair, migrate, decode.
func Load(raw []byte, clock plot.Clock) (*model.Document, Report, error) {
	tree, rs, err := ValidateAndRepair(raw)
	if err != nil {
		return nil, Report{}, err
	}
	report := Report{Repairs: rs}
	if v := version(tree); v > LatestVersion {
		return nil, report, versionError(v, LatestVersion)
	}
	tree, report.Steps = NewMigrator(clock).Migrate(tree)
	if _, ok := asInt(tree["currentYear"]); !ok {
		tree["currentYear"] = inferCurrentYear(tree, clock.Now())
		report.Repairs = append(report.Repairs, Repair{Path: "currentYear", Message: "missing; inferred from seasons"})
	}
	doc, err := Decode(tree)
	return doc, report, err
}

// Encode serializes doc at LatestVersion.
func Encode(doc *model.Document) ([]byte, error) {
	out := *doc
	out.SchemaVersion = LatestVersion
	fillCollections(&out)
	data, err := json.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	return data, nil
}
