package replica

import (
	"errors"
	"fmt"
	"math"

	"plot-go/internal/model"
	"plot-go/internal/plot"
	"plot-go/internal/schema"
)

// ErrUnknownField means a field name is not editable through the Editor.
var ErrUnknownField = errors.New("unknown field")

// Editor applies local edits directly to the replicated structure, one
// update per edit, so merge identity is preserved across the session.
type Editor struct {
	doc plot.ReplicatedDoc
}

func NewEditor(doc plot.ReplicatedDoc) *Editor {
	return &Editor{doc: doc}
}

func (e *Editor) meta() plot.SharedMap {
	root := e.doc.Root()
	if m := getMap(root, keyMeta); m != nil {
		return m
	}
	return root.SetMap(keyMeta)
}

// SetName renames the plot.
func (e *Editor) SetName(name string) {
	e.doc.Transact(func() {
		e.meta().Set("name", name)
	})
}

// SetLocation sets or clears the plot location.
func (e *Editor) SetLocation(location string) {
	e.doc.Transact(func() {
		if location == "" {
			e.meta().Delete("location")
			return
		}
		e.meta().Set("location", location)
	})
}

// SetCurrentYear moves the plot's current season.
func (e *Editor) SetCurrentYear(year int) {
	e.doc.Transact(func() {
		e.doc.Root().Set(keyCurrentYear, year)
	})
}

func (e *Editor) areas() plot.SharedArray {
	root := e.doc.Root()
	layout := getMap(root, keyLayout)
	if layout == nil {
		layout = root.SetMap(keyLayout)
	}
	if arr := getArray(layout, keyAreas); arr != nil {
		return arr
	}
	return layout.SetArray(keyAreas)
}

func (e *Editor) seasons() plot.SharedArray {
	root := e.doc.Root()
	if arr := getArray(root, keySeasons); arr != nil {
		return arr
	}
	return root.SetArray(keySeasons)
}

func (e *Editor) varieties() plot.SharedArray {
	root := e.doc.Root()
	if arr := getArray(root, keyVarieties); arr != nil {
		return arr
	}
	return root.SetArray(keyVarieties)
}

// AddArea adds area to the layout and backfills an empty area season into
// every existing season the area takes part in.
func (e *Editor) AddArea(area model.Area) error {
	if area.ID == "" {
		return fmt.Errorf("%w: area id is required", schema.ErrAreaInvalid)
	}
	if !area.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", schema.ErrAreaInvalid, area.Kind)
	}
	if area.Name == "" {
		area.Name = area.ID
	}

	var err error
	e.doc.Transact(func() {
		areas := e.areas()
		if _, m := findByID(areas, "id", area.ID); m != nil {
			err = fmt.Errorf("%w: %s", schema.ErrAreaExists, area.ID)
			return
		}
		writeArea(areas.PushMap(), area)

		for _, season := range maps(e.seasons()) {
			year, ok := getInt(season, "year")
			if !ok || !area.ActiveIn(year) {
				continue
			}
			list := getArray(season, keyAreas)
			if list == nil {
				list = season.SetArray(keyAreas)
			}
			if _, existing := findByID(list, "areaId", area.ID); existing != nil {
				continue
			}
			writeAreaSeason(list.PushMap(), model.AreaSeason{
				AreaID:        area.ID,
				RotationGroup: area.RotationGroup,
				Plantings:     []model.Planting{},
			})
		}
	})
	return err
}

// AddSeason adds a season with an empty area season for every area active
// that year.
func (e *Editor) AddSeason(year int, status model.SeasonStatus) error {
	var err error
	e.doc.Transact(func() {
		seasons := e.seasons()
		for _, s := range maps(seasons) {
			if y, _ := getInt(s, "year"); y == year {
				err = fmt.Errorf("season %d already exists", year)
				return
			}
		}
		record := model.SeasonRecord{Year: year, Status: status}
		for _, a := range maps(e.areas()) {
			area := readArea(a)
			if area.ActiveIn(year) {
				record.Areas = append(record.Areas, model.AreaSeason{AreaID: area.ID, Plantings: []model.Planting{}})
			}
		}
		writeSeason(seasons.PushMap(), record)
	})
	return err
}

func (e *Editor) areaSeason(year int, areaID string) (plot.SharedMap, error) {
	for _, s := range maps(e.seasons()) {
		if y, _ := getInt(s, "year"); y != year {
			continue
		}
		if _, as := findByID(getArray(s, keyAreas), "areaId", areaID); as != nil {
			return as, nil
		}
		return nil, fmt.Errorf("%w: area %s in season %d", plot.ErrNotFound, areaID, year)
	}
	return nil, fmt.Errorf("%w: season %d", plot.ErrNotFound, year)
}

func (e *Editor) plantings(year int, areaID string) (plot.SharedArray, error) {
	as, err := e.areaSeason(year, areaID)
	if err != nil {
		return nil, err
	}
	if arr := getArray(as, keyPlantings); arr != nil {
		return arr, nil
	}
	return as.SetArray(keyPlantings), nil
}

// AddPlanting appends p to the area's plantings for year.
func (e *Editor) AddPlanting(year int, areaID string, p model.Planting) error {
	if p.ID == "" || p.PlantID == "" {
		return errors.New("planting needs an id and a plantId")
	}
	var err error
	e.doc.Transact(func() {
		var arr plot.SharedArray
		if arr, err = e.plantings(year, areaID); err != nil {
			return
		}
		writePlanting(arr.PushMap(), p)
	})
	return err
}

// RemovePlanting deletes the planting with the given id.
func (e *Editor) RemovePlanting(year int, areaID, plantingID string) error {
	arr, err := e.plantings(year, areaID)
	if err != nil {
		return err
	}
	i, _ := findByID(arr, "id", plantingID)
	if i < 0 {
		return fmt.Errorf("%w: planting %s", plot.ErrNotFound, plantingID)
	}
	arr.Delete(i)
	return nil
}

var plantingFields = func() map[string]bool {
	fields := map[string]bool{"plantId": true}
	for _, f := range plantingStrings {
		fields[f.key] = true
	}
	return fields
}()

// SetPlantingField sets one field of a planting. Only that field is
// written, so a concurrent edit to another field of the same planting
// survives the merge. An empty string clears an optional field.
func (e *Editor) SetPlantingField(year int, areaID, plantingID, field string, value any) error {
	arr, err := e.plantings(year, areaID)
	if err != nil {
		return err
	}
	_, p := findByID(arr, "id", plantingID)
	if p == nil {
		return fmt.Errorf("%w: planting %s", plot.ErrNotFound, plantingID)
	}
	return setField(e.doc, p, field, value, plantingFields, map[string]numberKind{"quantity": wholeNumber})
}

// AddVariety appends a variety. Varieties whose normalized identity is
// already present are rejected.
func (e *Editor) AddVariety(v model.StoredVariety) error {
	if v.ID == "" || v.PlantID == "" || v.Name == "" {
		return errors.New("variety needs an id, a plantId and a name")
	}
	var err error
	e.doc.Transact(func() {
		arr := e.varieties()
		for _, m := range maps(arr) {
			if readVariety(m).Identity() == v.Identity() {
				err = fmt.Errorf("variety %s %q already exists", v.PlantID, v.Name)
				return
			}
		}
		writeVariety(arr.PushMap(), v)
	})
	return err
}

var varietyFields = map[string]bool{"name": true, "supplier": true, "notes": true}

// SetVarietyField sets one string field, or the price, of a variety.
func (e *Editor) SetVarietyField(id, field string, value any) error {
	_, m := findByID(e.varieties(), "id", id)
	if m == nil {
		return fmt.Errorf("%w: variety %s", plot.ErrNotFound, id)
	}
	return setField(e.doc, m, field, value, varietyFields, map[string]numberKind{"price": anyNumber})
}

type numberKind int

const (
	anyNumber numberKind = iota + 1
	wholeNumber
)

func setField(doc plot.ReplicatedDoc, m plot.SharedMap, field string, value any, text map[string]bool, numbers map[string]numberKind) error {
	switch {
	case text[field]:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%s must be a string, got %T", field, value)
		}
		if s == "" && (field == "plantId" || field == "name") {
			return fmt.Errorf("%s cannot be cleared", field)
		}
		doc.Transact(func() {
			if s == "" {
				m.Delete(field)
				return
			}
			m.Set(field, s)
		})
	case numbers[field] != 0:
		n, err := checkNumber(field, value, numbers[field])
		if err != nil {
			return err
		}
		doc.Transact(func() {
			if n == nil {
				m.Delete(field)
				return
			}
			m.Set(field, n)
		})
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	return nil
}

// checkNumber returns value in the form it is stored. Whole-number fields
// hold an int64; a float with a fractional part is rejected rather than
// written and later dropped on read.
func checkNumber(field string, value any, kind numberKind) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case int:
		if kind == wholeNumber {
			return int64(v), nil
		}
		return v, nil
	case int64:
		return v, nil
	case float64:
		if kind != wholeNumber {
			return v, nil
		}
		if v != math.Trunc(v) || v >= 1<<63 || v < -(1<<63) {
			return nil, fmt.Errorf("%s must be a whole number, got %v", field, v)
		}
		return int64(v), nil
	default:
		return nil, fmt.Errorf("%s must be a number, got %T", field, value)
	}
}
