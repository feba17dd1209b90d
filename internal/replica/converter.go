// Package replica maps the plot document onto a replicated document and
// keeps replicas in sync over a transport.
package replica

import (
	"strconv"

	"plot-go/internal/model"
	"plot-go/internal/plot"
)

// Root keys of the replicated document.
const (
	keyVersion     = "version"
	keyCurrentYear = "currentYear"
	keyMeta        = "meta"
	keyLayout      = "layout"
	keyAreas       = "areas"
	keySeasons     = "seasons"
	keyPlantings   = "plantings"
	keyVarieties   = "varieties"
)

// Converter turns documents into replicas and back. Scalar fields become
// map entries; areas, seasons, plantings and varieties become sequences of
// maps so that edits to different entities, or different fields of one
// entity, merge independently.
type Converter struct {
	Factory plot.DocFactory
}

func NewConverter(factory plot.DocFactory) *Converter {
	return &Converter{Factory: factory}
}

// ToReplicated builds a fresh replica holding doc. Once a sync session is
// active, edit the replica through an Editor instead of converting again:
// a second conversion creates new containers and loses merge identity.
func (c *Converter) ToReplicated(doc *model.Document) plot.ReplicatedDoc {
	r := c.Factory()
	Populate(r, doc)
	return r
}

// Populate writes doc into r as a single update.
func Populate(r plot.ReplicatedDoc, doc *model.Document) {
	r.Transact(func() {
		root := r.Root()
		root.Set(keyVersion, doc.SchemaVersion)
		root.Set(keyCurrentYear, doc.CurrentYear)
		writeMeta(root.SetMap(keyMeta), doc.Meta)

		areas := root.SetMap(keyLayout).SetArray(keyAreas)
		for _, a := range doc.Layout.Areas {
			writeArea(areas.PushMap(), a)
		}
		seasons := root.SetArray(keySeasons)
		for _, s := range doc.Seasons {
			writeSeason(seasons.PushMap(), s)
		}
		varieties := root.SetArray(keyVarieties)
		for _, v := range doc.Varieties {
			writeVariety(varieties.PushMap(), v)
		}
	})
}

// FromReplicated reads the document out of r. Entries of the wrong shape
// are skipped; required collections are always non-nil.
func (c *Converter) FromReplicated(r plot.ReplicatedDoc) *model.Document {
	return FromReplicated(r)
}

func FromReplicated(r plot.ReplicatedDoc) *model.Document {
	root := r.Root()
	version, _ := getInt(root, keyVersion)
	year, _ := getInt(root, keyCurrentYear)

	doc := &model.Document{
		SchemaVersion: version,
		CurrentYear:   year,
		Layout:        model.Layout{Areas: []model.Area{}},
		Seasons:       []model.SeasonRecord{},
		Varieties:     []model.StoredVariety{},
	}
	if meta := getMap(root, keyMeta); meta != nil {
		doc.Meta = readMeta(meta)
	}
	if layout := getMap(root, keyLayout); layout != nil {
		for _, m := range maps(getArray(layout, keyAreas)) {
			doc.Layout.Areas = append(doc.Layout.Areas, readArea(m))
		}
	}
	for _, m := range maps(getArray(root, keySeasons)) {
		doc.Seasons = append(doc.Seasons, readSeason(m))
	}
	for _, m := range maps(getArray(root, keyVarieties)) {
		doc.Varieties = append(doc.Varieties, readVariety(m))
	}
	return doc
}

func writeMeta(m plot.SharedMap, meta model.Meta) {
	m.Set("name", meta.Name)
	setString(m, "location", meta.Location)
	setString(m, "createdAt", meta.CreatedAt)
	setString(m, "updatedAt", meta.UpdatedAt)
}

func readMeta(m plot.SharedMap) model.Meta {
	return model.Meta{
		Name:      getString(m, "name"),
		Location:  getString(m, "location"),
		CreatedAt: getString(m, "createdAt"),
		UpdatedAt: getString(m, "updatedAt"),
	}
}

func writeArea(m plot.SharedMap, a model.Area) {
	m.Set("id", a.ID)
	m.Set("name", a.Name)
	m.Set("kind", string(a.Kind))
	setString(m, "rotationGroup", a.RotationGroup)
	setIntPtr(m, "createdYear", a.CreatedYear)
	setIntList(m, "activeYears", a.ActiveYears)
	setString(m, "description", a.Description)
}

func readArea(m plot.SharedMap) model.Area {
	return model.Area{
		ID:            getString(m, "id"),
		Name:          getString(m, "name"),
		Kind:          model.AreaKind(getString(m, "kind")),
		RotationGroup: getString(m, "rotationGroup"),
		CreatedYear:   getIntPtr(m, "createdYear"),
		ActiveYears:   getIntList(m, "activeYears"),
		Description:   getString(m, "description"),
	}
}

func writeSeason(m plot.SharedMap, s model.SeasonRecord) {
	m.Set("year", s.Year)
	m.Set("status", string(s.Status))
	setString(m, "notes", s.Notes)
	setString(m, "createdAt", s.CreatedAt)
	setString(m, "updatedAt", s.UpdatedAt)
	areas := m.SetArray(keyAreas)
	for _, as := range s.Areas {
		writeAreaSeason(areas.PushMap(), as)
	}
}

func readSeason(m plot.SharedMap) model.SeasonRecord {
	year, _ := getInt(m, "year")
	s := model.SeasonRecord{
		Year:      year,
		Status:    model.SeasonStatus(getString(m, "status")),
		Areas:     []model.AreaSeason{},
		Notes:     getString(m, "notes"),
		CreatedAt: getString(m, "createdAt"),
		UpdatedAt: getString(m, "updatedAt"),
	}
	for _, am := range maps(getArray(m, keyAreas)) {
		s.Areas = append(s.Areas, readAreaSeason(am))
	}
	return s
}

func writeAreaSeason(m plot.SharedMap, as model.AreaSeason) {
	m.Set("areaId", as.AreaID)
	setString(m, "rotationGroup", as.RotationGroup)
	setString(m, "notes", as.Notes)
	plantings := m.SetArray(keyPlantings)
	for _, p := range as.Plantings {
		writePlanting(plantings.PushMap(), p)
	}
}

func readAreaSeason(m plot.SharedMap) model.AreaSeason {
	as := model.AreaSeason{
		AreaID:        getString(m, "areaId"),
		RotationGroup: getString(m, "rotationGroup"),
		Plantings:     []model.Planting{},
		Notes:         getString(m, "notes"),
	}
	for _, pm := range maps(getArray(m, keyPlantings)) {
		as.Plantings = append(as.Plantings, readPlanting(pm))
	}
	return as
}

// plantingStrings lists the optional string fields of a planting in the
// order they are written.
var plantingStrings = []struct {
	key string
	get func(*model.Planting) *string
}{
	{"varietyName", func(p *model.Planting) *string { return &p.VarietyName }},
	{"sowDate", func(p *model.Planting) *string { return &p.SowDate }},
	{"sowMethod", func(p *model.Planting) *string { return &p.SowMethod }},
	{"transplantDate", func(p *model.Planting) *string { return &p.TransplantDate }},
	{"expectedHarvestStart", func(p *model.Planting) *string { return &p.ExpectedHarvestStart }},
	{"expectedHarvestEnd", func(p *model.Planting) *string { return &p.ExpectedHarvestEnd }},
	{"actualHarvestStart", func(p *model.Planting) *string { return &p.ActualHarvestStart }},
	{"actualHarvestEnd", func(p *model.Planting) *string { return &p.ActualHarvestEnd }},
	{"success", func(p *model.Planting) *string { return &p.Success }},
	{"notes", func(p *model.Planting) *string { return &p.Notes }},
}

func writePlanting(m plot.SharedMap, p model.Planting) {
	m.Set("id", p.ID)
	m.Set("plantId", p.PlantID)
	for _, f := range plantingStrings {
		setString(m, f.key, *f.get(&p))
	}
	setIntPtr(m, "quantity", p.Quantity)
}

func readPlanting(m plot.SharedMap) model.Planting {
	p := model.Planting{
		ID:       getString(m, "id"),
		PlantID:  getString(m, "plantId"),
		Quantity: getIntPtr(m, "quantity"),
	}
	for _, f := range plantingStrings {
		*f.get(&p) = getString(m, f.key)
	}
	return p
}

func writeVariety(m plot.SharedMap, v model.StoredVariety) {
	m.Set("id", v.ID)
	m.Set("plantId", v.PlantID)
	m.Set("name", v.Name)
	setString(m, "supplier", v.Supplier)
	if v.Price != nil {
		m.Set("price", *v.Price)
	}
	setString(m, "notes", v.Notes)
	setIntList(m, "yearsUsed", v.YearsUsed)
	setIntList(m, "plannedYears", v.PlannedYears)
	if v.SeedsByYear != nil {
		seeds := m.SetMap("seedsByYear")
		for _, y := range yearKeys(v.SeedsByYear) {
			seeds.Set(yearKey(y), string(v.SeedsByYear[y]))
		}
	}
}

func readVariety(m plot.SharedMap) model.StoredVariety {
	v := model.StoredVariety{
		ID:           getString(m, "id"),
		PlantID:      getString(m, "plantId"),
		Name:         getString(m, "name"),
		Supplier:     getString(m, "supplier"),
		Notes:        getString(m, "notes"),
		YearsUsed:    getIntList(m, "yearsUsed"),
		PlannedYears: getIntList(m, "plannedYears"),
	}
	if raw, ok := m.Get("price"); ok {
		switch p := raw.(type) {
		case float64:
			v.Price = &p
		case int64:
			f := float64(p)
			v.Price = &f
		}
	}
	if seeds := getMap(m, "seedsByYear"); seeds != nil {
		v.SeedsByYear = map[int]model.SeedStatus{}
		for _, k := range seeds.Keys() {
			y, err := strconv.Atoi(k)
			if err != nil {
				continue
			}
			v.SeedsByYear[y] = model.SeedStatus(getString(seeds, k))
		}
	}
	return v
}
