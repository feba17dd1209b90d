package replica_test

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"plot-go/internal/crdt"
	"plot-go/internal/model"
	"plot-go/internal/plot"
	"plot-go/internal/replica"
	"plot-go/internal/schema"
)

func seasonsDocument(years ...int) *model.Document {
	doc := model.NewDocument(schema.LatestVersion, years[len(years)-1])
	doc.Layout.Areas = []model.Area{{ID: "bed-a", Name: "Bed A", Kind: model.KindRotationBed}}
	for _, y := range years {
		doc.Seasons = append(doc.Seasons, model.SeasonRecord{
			Year:   y,
			Status: model.StatusHistorical,
			Areas:  []model.AreaSeason{{AreaID: "bed-a", Plantings: []model.Planting{{ID: "p1", PlantID: "peas"}}}},
		})
	}
	return doc
}

func areaYears(doc *model.Document, areaID string) []int {
	var years []int
	for _, s := range doc.Seasons {
		for _, as := range s.Areas {
			if as.AreaID == areaID {
				years = append(years, s.Year)
			}
		}
	}
	return years
}

func TestEditor_AddArea_Backfill(t *testing.T) {
	tests := []struct {
		name string
		area model.Area
		want []int
	}{
		{"always active", model.Area{ID: "new", Kind: model.KindHerb}, []int{2023, 2024, 2025}},
		{"created mid-way", model.Area{ID: "new", Kind: model.KindTree, CreatedYear: intp(2024)}, []int{2024, 2025}},
		{"created after last season", model.Area{ID: "new", Kind: model.KindTree, CreatedYear: intp(2026)}, nil},
		{"explicit active years", model.Area{ID: "new", Kind: model.KindInfrastructure, ActiveYears: []int{2023, 2025}}, []int{2023, 2025}},
		{"no active years", model.Area{ID: "new", Kind: model.KindInfrastructure, ActiveYears: []int{}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := crdt.NewDoc("a")
			replica.Populate(r, seasonsDocument(2023, 2024, 2025))

			if err := replica.NewEditor(r).AddArea(tt.area); err != nil {
				t.Fatalf("AddArea() error = %v", err)
			}
			doc := replica.FromReplicated(r)
			got := areaYears(doc, "new")
			if len(got) != len(tt.want) {
				t.Fatalf("area seasons in %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("area seasons in %v, want %v", got, tt.want)
				}
			}
			area := doc.Area("new")
			if area == nil || area.Name != "new" {
				t.Errorf("area = %+v, want name defaulted to id", area)
			}
		})
	}
}

func TestEditor_AddArea_MatchesDocumentBackfill(t *testing.T) {
	tests := []struct {
		name string
		area model.Area
	}{
		{"rotation group", model.Area{ID: "new", Kind: model.KindRotationBed, RotationGroup: "brassicas"}},
		{"rotation group with active years", model.Area{ID: "new", Kind: model.KindRotationBed, RotationGroup: "legumes", ActiveYears: []int{2024}}},
		{"no rotation group", model.Area{ID: "new", Name: "Herbs", Kind: model.KindHerb}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := seasonsDocument(2023, 2024, 2025)
			if err := schema.AddArea(want, tt.area); err != nil {
				t.Fatalf("schema.AddArea() error = %v", err)
			}

			r := crdt.NewDoc("a")
			replica.Populate(r, seasonsDocument(2023, 2024, 2025))
			if err := replica.NewEditor(r).AddArea(tt.area); err != nil {
				t.Fatalf("Editor.AddArea() error = %v", err)
			}

			if got := replica.FromReplicated(r); !reflect.DeepEqual(got, want) {
				t.Errorf("replicated add diverges from document add:\n got: %+v\nwant: %+v", got.Seasons, want.Seasons)
			}
		})
	}
}

func TestEditor_AddArea_Errors(t *testing.T) {
	tests := []struct {
		name   string
		area   model.Area
		wantIs error
	}{
		{"missing id", model.Area{Kind: model.KindHerb}, schema.ErrAreaInvalid},
		{"bad kind", model.Area{ID: "x", Kind: "greenhouse"}, schema.ErrAreaInvalid},
		{"duplicate id", model.Area{ID: "bed-a", Kind: model.KindHerb}, schema.ErrAreaExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := crdt.NewDoc("a")
			replica.Populate(r, seasonsDocument(2024))
			before, _ := r.EncodeStateAsUpdate(nil)

			err := replica.NewEditor(r).AddArea(tt.area)
			if !errors.Is(err, tt.wantIs) {
				t.Fatalf("AddArea() error = %v, want %v", err, tt.wantIs)
			}
			after, _ := r.EncodeStateAsUpdate(nil)
			if len(after) != len(before) {
				t.Error("rejected area still changed the replica")
			}
		})
	}
}

func TestEditor_AddSeason(t *testing.T) {
	r := crdt.NewDoc("a")
	doc := seasonsDocument(2024)
	doc.Layout.Areas = append(doc.Layout.Areas, model.Area{ID: "old-shed", Kind: model.KindInfrastructure, ActiveYears: []int{2024}})
	replica.Populate(r, doc)
	e := replica.NewEditor(r)

	if err := e.AddSeason(2025, model.StatusPlanning); err != nil {
		t.Fatalf("AddSeason() error = %v", err)
	}
	if err := e.AddSeason(2025, model.StatusPlanning); err == nil {
		t.Error("AddSeason() twice should fail")
	}

	season := replica.FromReplicated(r).Season(2025)
	if season == nil {
		t.Fatal("season 2025 missing")
	}
	if season.Status != model.StatusPlanning {
		t.Errorf("Status = %q", season.Status)
	}
	if len(season.Areas) != 1 || season.Areas[0].AreaID != "bed-a" {
		t.Errorf("Areas = %+v, want only bed-a", season.Areas)
	}
}

func TestEditor_Plantings(t *testing.T) {
	r := crdt.NewDoc("a")
	replica.Populate(r, seasonsDocument(2024))
	e := replica.NewEditor(r)

	if err := e.AddPlanting(2024, "bed-a", model.Planting{ID: "p2", PlantID: "carrot", Quantity: intp(40)}); err != nil {
		t.Fatalf("AddPlanting() error = %v", err)
	}
	if err := e.SetPlantingField(2024, "bed-a", "p2", "quantity", 35); err != nil {
		t.Fatalf("SetPlantingField(quantity) error = %v", err)
	}
	if err := e.SetPlantingField(2024, "bed-a", "p2", "varietyName", "Nantes"); err != nil {
		t.Fatalf("SetPlantingField(varietyName) error = %v", err)
	}
	if err := e.RemovePlanting(2024, "bed-a", "p1"); err != nil {
		t.Fatalf("RemovePlanting() error = %v", err)
	}

	got := replica.FromReplicated(r).Season(2024).Areas[0].Plantings
	if len(got) != 1 {
		t.Fatalf("plantings = %+v, want one", got)
	}
	if got[0].ID != "p2" || got[0].VarietyName != "Nantes" || got[0].Quantity == nil || *got[0].Quantity != 35 {
		t.Errorf("planting = %+v", got[0])
	}
}

func TestEditor_SetPlantingField_Errors(t *testing.T) {
	tests := []struct {
		name          string
		year          int
		area, id, key string
		value         any
		wantIs        error
	}{
		{"unknown field", 2024, "bed-a", "p1", "colour", "red", replica.ErrUnknownField},
		{"missing season", 2019, "bed-a", "p1", "notes", "x", plot.ErrNotFound},
		{"missing area", 2024, "bed-z", "p1", "notes", "x", plot.ErrNotFound},
		{"missing planting", 2024, "bed-a", "p9", "notes", "x", plot.ErrNotFound},
		{"wrong type", 2024, "bed-a", "p1", "notes", 7, nil},
		{"clearing plant id", 2024, "bed-a", "p1", "plantId", "", nil},
		{"non-numeric quantity", 2024, "bed-a", "p1", "quantity", "lots", nil},
		{"fractional quantity", 2024, "bed-a", "p1", "quantity", 2.5, nil},
		{"non-finite quantity", 2024, "bed-a", "p1", "quantity", math.Inf(1), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := crdt.NewDoc("a")
			replica.Populate(r, seasonsDocument(2024))

			before, _ := r.EncodeStateAsUpdate(nil)

			err := replica.NewEditor(r).SetPlantingField(tt.year, tt.area, tt.id, tt.key, tt.value)
			if err == nil {
				t.Fatal("SetPlantingField() expected error")
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("error = %v, want %v", err, tt.wantIs)
			}
			after, _ := r.EncodeStateAsUpdate(nil)
			if len(after) != len(before) {
				t.Error("rejected edit still changed the replica")
			}
		})
	}
}

func TestEditor_SetPlantingField_Quantity(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  *int
	}{
		{"int", 35, intp(35)},
		{"int64", int64(12), intp(12)},
		{"whole float", 3.0, intp(3)},
		{"cleared", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := crdt.NewDoc("a")
			replica.Populate(r, seasonsDocument(2024))
			e := replica.NewEditor(r)
			if err := e.SetPlantingField(2024, "bed-a", "p1", "quantity", 7); err != nil {
				t.Fatalf("seeding quantity: %v", err)
			}

			if err := e.SetPlantingField(2024, "bed-a", "p1", "quantity", tt.value); err != nil {
				t.Fatalf("SetPlantingField(%v) error = %v", tt.value, err)
			}
			got := replica.FromReplicated(r).Season(2024).Areas[0].Plantings[0].Quantity
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Quantity = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEditor_Varieties(t *testing.T) {
	r := crdt.NewDoc("a")
	replica.Populate(r, model.NewDocument(schema.LatestVersion, 2025))
	e := replica.NewEditor(r)

	if err := e.AddVariety(model.StoredVariety{ID: "v1", PlantID: "tomato", Name: "Gardeners Delight"}); err != nil {
		t.Fatalf("AddVariety() error = %v", err)
	}
	if err := e.AddVariety(model.StoredVariety{ID: "v2", PlantID: "tomato", Name: "  gardeners  DELIGHT "}); err == nil {
		t.Error("AddVariety() should reject a duplicate identity")
	}
	if err := e.SetVarietyField("v1", "price", 2.5); err != nil {
		t.Fatalf("SetVarietyField(price) error = %v", err)
	}
	if err := e.SetVarietyField("v1", "supplier", "Kings"); err != nil {
		t.Fatalf("SetVarietyField(supplier) error = %v", err)
	}
	if err := e.SetVarietyField("v9", "supplier", "Kings"); !errors.Is(err, plot.ErrNotFound) {
		t.Errorf("SetVarietyField(missing) error = %v, want ErrNotFound", err)
	}

	got := replica.FromReplicated(r).Varieties
	if len(got) != 1 || got[0].Supplier != "Kings" || got[0].Price == nil || *got[0].Price != 2.5 {
		t.Errorf("varieties = %+v", got)
	}
}

// exchange brings two replicas up to date with each other.
func exchange(t *testing.T, a, b plot.ReplicatedDoc) {
	t.Helper()
	for _, pair := range [][2]plot.ReplicatedDoc{{a, b}, {b, a}} {
		sv, err := pair[1].StateVector()
		if err != nil {
			t.Fatalf("StateVector() error = %v", err)
		}
		diff, err := pair[0].EncodeStateAsUpdate(sv)
		if err != nil {
			t.Fatalf("EncodeStateAsUpdate() error = %v", err)
		}
		if err := pair[1].ApplyUpdate(diff); err != nil {
			t.Fatalf("ApplyUpdate() error = %v", err)
		}
	}
}

func TestEditor_ConcurrentFieldEditsMerge(t *testing.T) {
	a, b := crdt.NewDoc("a"), crdt.NewDoc("b")
	replica.Populate(a, seasonsDocument(2024))
	exchange(t, a, b)

	if err := replica.NewEditor(a).SetPlantingField(2024, "bed-a", "p1", "notes", "netted"); err != nil {
		t.Fatal(err)
	}
	if err := replica.NewEditor(b).SetPlantingField(2024, "bed-a", "p1", "sowDate", "2024-03-20"); err != nil {
		t.Fatal(err)
	}
	replica.NewEditor(a).SetName("Plot 29")
	replica.NewEditor(b).SetLocation("Riverside")
	exchange(t, a, b)

	for name, r := range map[string]plot.ReplicatedDoc{"a": a, "b": b} {
		doc := replica.FromReplicated(r)
		p := doc.Season(2024).Areas[0].Plantings[0]
		if p.Notes != "netted" || p.SowDate != "2024-03-20" {
			t.Errorf("replica %s planting = %+v, want both edits", name, p)
		}
		if doc.Meta.Name != "Plot 29" || doc.Meta.Location != "Riverside" {
			t.Errorf("replica %s meta = %+v, want both edits", name, doc.Meta)
		}
	}
}

func TestEditor_ConcurrentAddPlanting(t *testing.T) {
	a, b := crdt.NewDoc("a"), crdt.NewDoc("b")
	replica.Populate(a, seasonsDocument(2024))
	exchange(t, a, b)

	if err := replica.NewEditor(a).AddPlanting(2024, "bed-a", model.Planting{ID: "pa", PlantID: "beetroot"}); err != nil {
		t.Fatal(err)
	}
	if err := replica.NewEditor(b).AddPlanting(2024, "bed-a", model.Planting{ID: "pb", PlantID: "chard"}); err != nil {
		t.Fatal(err)
	}
	exchange(t, a, b)

	pa := replica.FromReplicated(a).Season(2024).Areas[0].Plantings
	pb := replica.FromReplicated(b).Season(2024).Areas[0].Plantings
	if len(pa) != 3 || len(pb) != 3 {
		t.Fatalf("plantings a=%d b=%d, want 3 each", len(pa), len(pb))
	}
	for i := range pa {
		if pa[i].ID != pb[i].ID {
			t.Fatalf("replicas disagree on order: %v vs %v", pa, pb)
		}
	}
}
