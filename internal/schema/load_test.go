package schema_test

import (
	"errors"
	"reflect"
	"testing"

	"plot-go/internal/model"
	"plot-go/internal/plot"
	"plot-go/internal/schema"
	"plot-go/internal/testutil"
)

const legacyDocument = `{
  "version": 1,
  "meta": {"name": "Plot 29", "location": "Hillside"},
  "layout": {
    "beds": [
      {"id": "bed-a", "name": "Bed A", "status": "rotation", "rotationGroup": "legumes"},
      {"id": "bed-p", "name": "Asparagus", "status": "perennial"}
    ],
    "permanentPlantings": [{"id": "apple", "name": "Apple tree", "type": "tree"}],
    "infrastructure": [{"id": "shed", "name": "Shed", "type": "storage"}]
  },
  "seasons": [
    {"year": 2023, "status": "historical", "beds": [
      {"bedId": "bed-a", "rotationGroup": "legumes", "plantings": [
        {"id": "p1", "plantId": "peas", "sowDate": "2023-04-01", "harvestDate": "2023-07-01"},
        {"id": "p2", "plantId": "broad-beans", "harvestDate": "2023-06-01", "actualHarvestStart": "2023-06-10"},
        {"id": "p3", "plantId": "runner-beans", "sowDate": "2023-05-01", "sowMethod": "indoor"},
        {"id": "p4", "plantId": "garlic"}
      ]}
    ]},
    {"year": 2024, "status": "current", "beds": [{"bedId": "bed-a", "plantings": []}]}
  ]
}`

func TestLoad_LegacyDocument(t *testing.T) {
	doc, report, err := schema.Load([]byte(legacyDocument), testutil.FixedClock())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(report.Steps) != len(schema.Steps) {
		t.Errorf("applied steps = %v, want all %d", report.Steps, len(schema.Steps))
	}
	if doc.SchemaVersion != schema.LatestVersion {
		t.Errorf("SchemaVersion = %d, want %d", doc.SchemaVersion, schema.LatestVersion)
	}
	if doc.CurrentYear != 2024 {
		t.Errorf("CurrentYear = %d, want 2024", doc.CurrentYear)
	}
	if doc.Varieties == nil || len(doc.Varieties) != 0 {
		t.Errorf("Varieties = %#v, want empty non-nil", doc.Varieties)
	}

	wantKinds := map[string]model.AreaKind{
		"bed-a": model.KindRotationBed,
		"bed-p": model.KindPerennialBed,
		"apple": model.KindTree,
		"shed":  model.KindInfrastructure,
	}
	if len(doc.Layout.Areas) != len(wantKinds) {
		t.Fatalf("len(Areas) = %d, want %d", len(doc.Layout.Areas), len(wantKinds))
	}
	for _, a := range doc.Layout.Areas {
		if a.Kind != wantKinds[a.ID] {
			t.Errorf("area %s kind = %s, want %s", a.ID, a.Kind, wantKinds[a.ID])
		}
	}
	if got := doc.Area("shed").Description; got != "storage" {
		t.Errorf("shed description = %q, want storage", got)
	}

	as := doc.Season(2023).AreaSeason("bed-a")
	if as == nil {
		t.Fatal("2023 season has no bed-a entry")
	}
	if as.RotationGroup != "legumes" {
		t.Errorf("RotationGroup = %q, want legumes", as.RotationGroup)
	}
	byID := map[string]model.Planting{}
	for _, p := range as.Plantings {
		byID[p.ID] = p
	}
	checks := []struct {
		id, field, got, want string
	}{
		{"p1", "actualHarvestStart", byID["p1"].ActualHarvestStart, "2023-07-01"},
		{"p1", "sowMethod", byID["p1"].SowMethod, "outdoor"},
		{"p2", "actualHarvestStart", byID["p2"].ActualHarvestStart, "2023-06-10"},
		{"p2", "sowMethod", byID["p2"].SowMethod, ""},
		{"p3", "sowMethod", byID["p3"].SowMethod, "indoor"},
		{"p4", "sowMethod", byID["p4"].SowMethod, ""},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s.%s = %q, want %q", c.id, c.field, c.got, c.want)
		}
	}

	if got := doc.Season(2024).AreaSeason("bed-a").Plantings; got == nil {
		t.Error("empty plantings decoded as nil")
	}
}

func TestLoad_Idempotent(t *testing.T) {
	clock := testutil.FixedClock()
	first, _, err := schema.Load([]byte(legacyDocument), clock)
	if err != nil {
		t.Fatalf("first Load: %v", err)
	}
	data, err := schema.Encode(first)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	second, report, err := schema.Load(data, clock)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if report.Changed() {
		t.Errorf("reloading a current document changed it: %+v", report)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("documents differ after reload:\n first: %+v\nsecond: %+v", first, second)
	}
}

func TestEncode_ActiveYearsNilAndEmptyStayDistinct(t *testing.T) {
	tests := []struct {
		name        string
		activeYears []int
		activeIn    bool
	}{
		{"unset means every season", nil, true},
		{"empty means no season", []int{}, false},
		{"listed years", []int{2025}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := model.NewDocument(schema.LatestVersion, 2025)
			doc.Layout.Areas = []model.Area{{ID: "shed", Name: "Shed", Kind: model.KindInfrastructure, ActiveYears: tt.activeYears}}

			data, err := schema.Encode(doc)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			loaded, report, err := schema.Load(data, testutil.FixedClock())
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if report.Changed() {
				t.Errorf("reloading changed the document: %+v", report)
			}

			area := loaded.Area("shed")
			if area == nil {
				t.Fatal("area lost")
			}
			if (area.ActiveYears == nil) != (tt.activeYears == nil) || len(area.ActiveYears) != len(tt.activeYears) {
				t.Errorf("ActiveYears = %#v, want %#v", area.ActiveYears, tt.activeYears)
			}
			if got := area.ActiveIn(2025); got != tt.activeIn {
				t.Errorf("ActiveIn(2025) = %v, want %v", got, tt.activeIn)
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  error
	}{
		{"absent", nil, plot.ErrNotFound},
		{"corrupted", []byte("{{"), plot.ErrCorrupted},
		{"newer version", []byte(`{"version": 99}`), plot.ErrSchemaInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := schema.Load(tt.input, testutil.FixedClock())
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoad_EmptyObjectBecomesDefaultDocument(t *testing.T) {
	doc, report, err := schema.Load([]byte(`{}`), testutil.FixedClock())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(report.Repairs) == 0 {
		t.Error("expected repairs")
	}
	want := model.NewDocument(schema.LatestVersion, 2025)
	if !reflect.DeepEqual(doc, want) {
		t.Errorf("doc = %+v, want %+v", doc, want)
	}
}
