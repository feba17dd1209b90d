package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"plot-go/internal/model"
	"plot-go/internal/plot"
)

// LatestVarietyVersion is the secondary store version this code writes.
const LatestVarietyVersion = 2

// VarietySteps is the secondary store chain.
var VarietySteps = []Step{
	{From: 1, Name: "derive-seeds-by-year", Apply: deriveSeedsByYear},
}

// NewVarietyMigrator returns a Migrator for the secondary store chain.
func NewVarietyMigrator(clock plot.Clock) *Migrator {
	return &Migrator{Steps: VarietySteps, Latest: LatestVarietyVersion, Clock: clock}
}

// ValidateAndRepairVarieties is ValidateAndRepair for the secondary store.
func ValidateAndRepairVarieties(raw []byte) (Raw, []Repair, error) {
	if raw == nil {
		return nil, nil, plot.ErrNotFound
	}
	tree, err := parseObject(raw)
	if err != nil {
		return nil, nil, err
	}
	var rs repairs
	repairVersion(tree, &rs)
	ensureArray(tree, "varieties", "", &rs)
	repairVarietyList(tree, "varieties", &rs)
	meta := ensureObject(tree, "meta", "", &rs)
	dropWrongString(meta, "createdAt", "meta", &rs)
	dropWrongString(meta, "updatedAt", "meta", &rs)
	dropWrongString(tree, "migratedTo", "", &rs)
	dropWrongString(tree, "migratedAt", "", &rs)
	return tree, rs, nil
}

func deriveSeedsByYear(tree Raw, _ time.Time) {
	for _, v := range objects(tree, "varieties") {
		if present(v, "seedsByYear") {
			continue
		}
		years, ok := asArray(v["yearsUsed"])
		if !ok || len(years) == 0 {
			continue
		}
		seeds := Raw{}
		for _, y := range years {
			if year, ok := asInt(y); ok {
				seeds[strconv.Itoa(year)] = string(model.SeedHave)
			}
		}
		v["seedsByYear"] = seeds
	}
}

// DecodeVarietyStore converts a repaired, migrated tree into the typed store.
func DecodeVarietyStore(tree Raw) (*model.VarietyStore, error) {
	if v := version(tree); v != LatestVarietyVersion {
		return nil, versionError(v, LatestVarietyVersion)
	}
	var vs model.VarietyStore
	if err := remarshal(tree, &vs); err != nil {
		return nil, err
	}
	if vs.Varieties == nil {
		vs.Varieties = []model.StoredVariety{}
	}
	return &vs, nil
}

// LoadVarietyStore validates, repairs, migrates and decodes the secondary store.
func LoadVarietyStore(raw []byte, clock plot.Clock) (*model.VarietyStore, Report, error) {
	tree, rs, err := ValidateAndRepairVarieties(raw)
	if err != nil {
		return nil, Report{}, err
	}
	report := Report{Repairs: rs}
	if v := version(tree); v > LatestVarietyVersion {
		return nil, report, versionError(v, LatestVarietyVersion)
	}
	tree, report.Steps = NewVarietyMigrator(clock).Migrate(tree)
	vs, err := DecodeVarietyStore(tree)
	return vs, report, err
}

// EncodeVarietyStore serializes the secondary store at the latest version.
func EncodeVarietyStore(vs *model.VarietyStore) ([]byte, error) {
	out := *vs
	out.Version = LatestVarietyVersion
	if out.Varieties == nil {
		out.Varieties = []model.StoredVariety{}
	}
	data, err := json.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("encoding variety store: %w", err)
	}
	return data, nil
}
