package schema

import (
	"strings"
	"time"

	"plot-go/internal/model"
	"plot-go/internal/plot"
)

// LatestVersion is the primary document version this code writes.
const LatestVersion = 6

// Step upgrades a tree from version From to From+1. Apply must be total:
// it never fails and skips anything it does not recognise.
type Step struct {
	From  int
	Name  string
	Apply func(tree Raw, now time.Time)
}

// Steps is the primary document chain, ordered by From.
var Steps = []Step{
	{From: 1, Name: "rename-harvest-date", Apply: renameHarvestDate},
	{From: 2, Name: "infer-sow-method", Apply: inferSowMethod},
	{From: 3, Name: "unify-layout-areas", Apply: unifyLayoutAreas},
	{From: 4, Name: "season-beds-to-areas", Apply: seasonBedsToAreas},
	{From: 5, Name: "add-varieties-and-current-year", Apply: addVarietiesAndCurrentYear},
}

// Migrator runs a step chain. The clock only supplies a fallback year.
type Migrator struct {
	Steps  []Step
	Latest int
	Clock  plot.Clock
}

// NewMigrator returns a Migrator for the primary document chain.
func NewMigrator(clock plot.Clock) *Migrator {
	return &Migrator{Steps: Steps, Latest: LatestVersion, Clock: clock}
}

// Migrate applies every step whose From equals the tree's current version,
// in order, and returns the names of the applied steps. The chain stops
// once the tree reaches Latest, so trees already at or beyond it are
// returned untouched.
func (m *Migrator) Migrate(tree Raw) (Raw, []string) {
	var applied []string
	now := m.Clock.Now()
	for _, step := range m.Steps {
		v := version(tree)
		if v >= m.Latest {
			break
		}
		if v != step.From {
			continue
		}
		step.Apply(tree, now)
		tree["version"] = step.From + 1
		applied = append(applied, step.Name)
	}
	return tree, applied
}

// Migrate runs the primary chain using the real clock.
func Migrate(tree Raw) (Raw, []string) {
	return NewMigrator(plot.RealClock{}).Migrate(tree)
}

// eachAreaSeason visits every bed/area entry of every season regardless of
// which of the two layouts the tree is in.
func eachAreaSeason(tree Raw, fn func(as Raw)) {
	for _, season := range objects(tree, "seasons") {
		for _, key := range []string{"beds", "areas"} {
			for _, as := range objects(season, key) {
				fn(as)
			}
		}
	}
}

func eachPlanting(tree Raw, fn func(p Raw)) {
	eachAreaSeason(tree, func(as Raw) {
		for _, p := range objects(as, "plantings") {
			fn(p)
		}
	})
}

func renameHarvestDate(tree Raw, _ time.Time) {
	eachPlanting(tree, func(p Raw) {
		v, ok := p["harvestDate"]
		if !ok {
			return
		}
		if !present(p, "actualHarvestStart") {
			p["actualHarvestStart"] = v
		}
		delete(p, "harvestDate")
	})
}

// OutdoorSowing is the method assumed for legacy plantings with a sow date.
const OutdoorSowing = "outdoor"

func inferSowMethod(tree Raw, _ time.Time) {
	eachPlanting(tree, func(p Raw) {
		sow, _ := asString(p["sowDate"])
		if sow == "" || present(p, "sowMethod") {
			return
		}
		p["sowMethod"] = OutdoorSowing
	})
}

var permanentKinds = map[string]model.AreaKind{
	"tree":       model.KindTree,
	"fruit-tree": model.KindTree,
	"berry":      model.KindBerry,
	"soft-fruit": model.KindBerry,
	"herb":       model.KindHerb,
}

func unifyLayoutAreas(tree Raw, _ time.Time) {
	layout, ok := asObject(tree["layout"])
	if !ok {
		layout = Raw{}
		tree["layout"] = layout
	}
	areas, _ := asArray(layout["areas"])
	seen := make(map[string]bool)
	for _, a := range areas {
		if obj, ok := asObject(a); ok {
			id, _ := asString(obj["id"])
			seen[id] = true
		}
	}

	add := func(src Raw, kind model.AreaKind) {
		id, _ := asString(src["id"])
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		area := Raw{"id": id, "kind": string(kind)}
		if name, ok := asString(src["name"]); ok && name != "" {
			area["name"] = name
		} else {
			area["name"] = id
		}
		for _, k := range []string{"rotationGroup", "description", "createdYear", "activeYears"} {
			if v, ok := src[k]; ok {
				area[k] = v
			}
		}
		areas = append(areas, area)
	}

	for _, bed := range objects(layout, "beds") {
		kind := model.KindRotationBed
		if status, _ := asString(bed["status"]); status == "perennial" {
			kind = model.KindPerennialBed
		}
		add(bed, kind)
	}
	for _, pp := range objects(layout, "permanentPlantings") {
		t, _ := asString(pp["type"])
		kind, ok := permanentKinds[strings.ToLower(t)]
		if !ok {
			kind = model.KindPerennialBed
		}
		add(pp, kind)
	}
	for _, inf := range objects(layout, "infrastructure") {
		if !present(inf, "description") {
			if t, ok := asString(inf["type"]); ok && t != "" {
				inf["description"] = t
			}
		}
		add(inf, model.KindInfrastructure)
	}

	if areas == nil {
		areas = []any{}
	}
	layout["areas"] = areas
	delete(layout, "beds")
	delete(layout, "permanentPlantings")
	delete(layout, "infrastructure")
}

func seasonBedsToAreas(tree Raw, _ time.Time) {
	for _, season := range objects(tree, "seasons") {
		areas, _ := asArray(season["areas"])
		if areas == nil {
			areas = []any{}
		}
		for _, bed := range objects(season, "beds") {
			id, _ := asString(bed["bedId"])
			if id == "" {
				continue
			}
			as := Raw{"areaId": id}
			for _, k := range []string{"rotationGroup", "notes"} {
				if v, ok := bed[k]; ok {
					as[k] = v
				}
			}
			if plantings, ok := asArray(bed["plantings"]); ok {
				as["plantings"] = plantings
			} else {
				as["plantings"] = []any{}
			}
			areas = append(areas, as)
		}
		season["areas"] = areas
		delete(season, "beds")
	}
}

func addVarietiesAndCurrentYear(tree Raw, now time.Time) {
	if _, ok := asArray(tree["varieties"]); !ok {
		tree["varieties"] = []any{}
	}
	if _, ok := asInt(tree["currentYear"]); ok {
		return
	}
	tree["currentYear"] = inferCurrentYear(tree, now)
}

// inferCurrentYear picks the latest season marked current, then the latest
// season of any status, then the clock's year.
func inferCurrentYear(tree Raw, now time.Time) int {
	latest, latestCurrent := 0, 0
	for _, season := range objects(tree, "seasons") {
		year, ok := asInt(season["year"])
		if !ok {
			continue
		}
		if year > latest {
			latest = year
		}
		if status, _ := asString(season["status"]); status == string(model.StatusCurrent) && year > latestCurrent {
			latestCurrent = year
		}
	}
	switch {
	case latestCurrent != 0:
		return latestCurrent
	case latest != 0:
		return latest
	default:
		return now.Year()
	}
}
