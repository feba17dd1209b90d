package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"plot-go/internal/model"
	"plot-go/internal/plot"
)

// OldestVersion is assumed for documents that carry no usable version, so
// the whole migration chain runs over them.
const OldestVersion = 1

// ValidateAndRepair parses stored bytes and fixes structural defects in
// place. A nil input yields plot.ErrNotFound; bytes that are not a JSON
// object yield plot.ErrCorrupted. Everything else is repaired and the
// applied fixes are returned.
func ValidateAndRepair(raw []byte) (Raw, []Repair, error) {
	if raw == nil {
		return nil, nil, plot.ErrNotFound
	}
	tree, err := parseObject(raw)
	if err != nil {
		return nil, nil, err
	}
	var rs repairs
	repairDocument(tree, &rs)
	return tree, rs, nil
}

func parseObject(raw []byte) (Raw, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", plot.ErrCorrupted, err)
	}
	tree, ok := asObject(v)
	if !ok {
		return nil, fmt.Errorf("%w: top level is not an object", plot.ErrCorrupted)
	}
	return tree, nil
}

func repairVersion(tree Raw, rs *repairs) int {
	v, ok := asInt(tree["version"])
	if ok && v >= OldestVersion {
		return v
	}
	if present(tree, "version") {
		rs.add("version", "unusable value %v; assuming version %d", tree["version"], OldestVersion)
	} else {
		rs.add("version", "missing; assuming version %d", OldestVersion)
	}
	tree["version"] = OldestVersion
	return OldestVersion
}

func repairDocument(tree Raw, rs *repairs) {
	v := repairVersion(tree, rs)

	meta := ensureObject(tree, "meta", "", rs)
	if name, ok := asString(meta["name"]); !ok || strings.TrimSpace(name) == "" {
		meta["name"] = model.DefaultName
		rs.add("meta.name", "missing; defaulted to %q", model.DefaultName)
	}
	for _, k := range []string{"location", "createdAt", "updatedAt"} {
		dropWrongString(meta, k, "meta", rs)
	}

	layout := ensureObject(tree, "layout", "", rs)
	ensureArray(layout, "areas", "layout", rs)
	repairAreas(layout, rs)
	for _, k := range []string{"beds", "permanentPlantings", "infrastructure"} {
		if present(layout, k) {
			if _, ok := asArray(layout[k]); !ok {
				delete(layout, k)
				rs.add("layout."+k, "removed non-array value")
			}
		}
	}

	ensureArray(tree, "seasons", "", rs)
	repairSeasons(tree, v, rs)

	dropWrongInt(tree, "currentYear", "", rs)

	if present(tree, "varieties") {
		ensureArray(tree, "varieties", "", rs)
		repairVarietyList(tree, "varieties", rs)
	}
}

func repairAreas(layout Raw, rs *repairs) {
	arr, _ := asArray(layout["areas"])
	kept := make([]any, 0, len(arr))
	seen := make(map[string]bool, len(arr))
	for i, el := range arr {
		path := index("layout.areas", i)
		area, ok := asObject(el)
		if !ok {
			rs.add(path, "dropped non-object entry")
			continue
		}
		id, _ := asString(area["id"])
		if id == "" {
			rs.add(path, "dropped area without id")
			continue
		}
		if seen[id] {
			rs.add(path, "dropped duplicate area %q", id)
			continue
		}
		seen[id] = true

		if name, ok := asString(area["name"]); !ok || name == "" {
			area["name"] = id
			rs.add(join(path, "name"), "missing; defaulted to id")
		}
		if kind, _ := asString(area["kind"]); !model.AreaKind(kind).Valid() {
			area["kind"] = string(model.KindRotationBed)
			rs.add(join(path, "kind"), "unknown kind %q; defaulted to %s", kind, model.KindRotationBed)
		}
		dropWrongString(area, "rotationGroup", path, rs)
		dropWrongString(area, "description", path, rs)
		dropWrongInt(area, "createdYear", path, rs)
		repairIntList(area, "activeYears", path, rs)
		kept = append(kept, area)
	}
	layout["areas"] = kept
}

var seasonStatuses = map[string]bool{
	string(model.StatusCurrent):    true,
	string(model.StatusHistorical): true,
	string(model.StatusPlanning):   true,
}

func repairSeasons(tree Raw, v int, rs *repairs) {
	arr, _ := asArray(tree["seasons"])
	kept := make([]any, 0, len(arr))
	years := make(map[int]bool, len(arr))
	for i, el := range arr {
		path := index("seasons", i)
		season, ok := asObject(el)
		if !ok {
			rs.add(path, "dropped non-object entry")
			continue
		}
		year, ok := asInt(season["year"])
		if !ok {
			rs.add(path, "dropped season whose year is not a number")
			continue
		}
		if years[year] {
			rs.add(path, "dropped duplicate season %d", year)
			continue
		}
		years[year] = true

		if status, _ := asString(season["status"]); !seasonStatuses[status] {
			season["status"] = string(model.StatusHistorical)
			rs.add(join(path, "status"), "unknown status %q; defaulted to %s", status, model.StatusHistorical)
		}
		for _, k := range []string{"notes", "createdAt", "updatedAt"} {
			dropWrongString(season, k, path, rs)
		}

		if v >= 5 || present(season, "areas") {
			ensureArray(season, "areas", path, rs)
			repairAreaSeasons(season, "areas", "areaId", path, rs)
		}
		if present(season, "beds") {
			ensureArray(season, "beds", path, rs)
			repairAreaSeasons(season, "beds", "bedId", path, rs)
		}
		kept = append(kept, season)
	}
	tree["seasons"] = kept
}

func repairAreaSeasons(season Raw, key, idKey, path string, rs *repairs) {
	arr, _ := asArray(season[key])
	kept := make([]any, 0, len(arr))
	for i, el := range arr {
		p := index(join(path, key), i)
		as, ok := asObject(el)
		if !ok {
			rs.add(p, "dropped non-object entry")
			continue
		}
		if id, _ := asString(as[idKey]); id == "" {
			rs.add(p, "dropped entry without %s", idKey)
			continue
		}
		dropWrongString(as, "rotationGroup", p, rs)
		dropWrongString(as, "notes", p, rs)
		ensureArray(as, "plantings", p, rs)
		repairPlantings(as, join(p, "plantings"), rs)
		kept = append(kept, as)
	}
	season[key] = kept
}

var plantingStrings = []string{
	"varietyName", "sowDate", "sowMethod", "transplantDate",
	"expectedHarvestStart", "expectedHarvestEnd",
	"actualHarvestStart", "actualHarvestEnd",
	"harvestDate", "success", "notes",
}

func repairPlantings(as Raw, path string, rs *repairs) {
	arr, _ := asArray(as["plantings"])
	kept := make([]any, 0, len(arr))
	for i, el := range arr {
		p := index(path, i)
		pl, ok := asObject(el)
		if !ok {
			rs.add(p, "dropped non-object entry")
			continue
		}
		id, _ := asString(pl["id"])
		plantID, _ := asString(pl["plantId"])
		if id == "" || plantID == "" {
			rs.add(p, "dropped planting without id or plantId")
			continue
		}
		for _, k := range plantingStrings {
			dropWrongString(pl, k, p, rs)
		}
		dropWrongInt(pl, "quantity", p, rs)
		kept = append(kept, pl)
	}
	as["plantings"] = kept
}

var seedStatuses = map[string]bool{
	string(model.SeedNone):    true,
	string(model.SeedOrdered): true,
	string(model.SeedHave):    true,
	string(model.SeedHad):     true,
}

// repairVarietyList cleans the variety entries of either store.
func repairVarietyList(obj Raw, key string, rs *repairs) {
	arr, _ := asArray(obj[key])
	kept := make([]any, 0, len(arr))
	for i, el := range arr {
		p := index(key, i)
		v, ok := asObject(el)
		if !ok {
			rs.add(p, "dropped non-object entry")
			continue
		}
		plantID, _ := asString(v["plantId"])
		name, _ := asString(v["name"])
		if plantID == "" || strings.TrimSpace(name) == "" {
			rs.add(p, "dropped variety without plantId or name")
			continue
		}
		if id, ok := asString(v["id"]); !ok || id == "" {
			v["id"] = derivedVarietyID(plantID, name)
			rs.add(join(p, "id"), "missing; derived from plant and name")
		}
		dropWrongString(v, "supplier", p, rs)
		dropWrongString(v, "notes", p, rs)
		dropWrongNumber(v, "price", p, rs)
		repairIntList(v, "yearsUsed", p, rs)
		repairIntList(v, "plannedYears", p, rs)

		if present(v, "seedsByYear") {
			seeds, ok := asObject(v["seedsByYear"])
			if !ok {
				delete(v, "seedsByYear")
				rs.add(join(p, "seedsByYear"), "removed non-object value")
			} else {
				for year, status := range seeds {
					s, _ := asString(status)
					if _, err := strconv.Atoi(year); err != nil || !seedStatuses[s] {
						delete(seeds, year)
						rs.add(join(p, "seedsByYear."+year), "removed invalid entry")
					}
				}
			}
		}
		kept = append(kept, v)
	}
	obj[key] = kept
}

// derivedVarietyID builds a stable id for a variety persisted without one.
func derivedVarietyID(plantID, name string) string {
	return "variety-" + plantID + "-" + strings.ReplaceAll(model.NormalizeName(name), " ", "-")
}
