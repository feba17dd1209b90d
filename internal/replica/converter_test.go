package replica_test

import (
	"encoding/json"
	"reflect"
	"testing"

	"plot-go/internal/crdt"
	"plot-go/internal/model"
	"plot-go/internal/replica"
	"plot-go/internal/schema"
	"plot-go/internal/testutil"
)

func intp(n int) *int           { return &n }
func floatp(f float64) *float64 { return &f }

func newConverter() *replica.Converter {
	return replica.NewConverter(crdt.Factory(testutil.NewPrefixedIDGenerator("replica")))
}

func richDocument() *model.Document {
	doc := model.NewDocument(schema.LatestVersion, 2025)
	doc.Meta = model.Meta{Name: "Plot 29", Location: "Riverside", CreatedAt: "2023-02-01T10:00:00Z", UpdatedAt: "2025-03-01T08:30:00Z"}
	doc.Layout.Areas = []model.Area{
		{ID: "bed-a", Name: "Bed A", Kind: model.KindRotationBed, RotationGroup: "legumes"},
		{ID: "apple", Name: "Apple tree", Kind: model.KindTree, CreatedYear: intp(2024), Description: "Bramley"},
		{ID: "cold-frame", Name: "Cold frame", Kind: model.KindInfrastructure, ActiveYears: []int{2024, 2025}},
		{ID: "herbs", Name: "Herbs", Kind: model.KindHerb, ActiveYears: []int{}},
	}
	doc.Seasons = []model.SeasonRecord{
		{
			Year:   2024,
			Status: model.StatusHistorical,
			Notes:  "Wet summer",
			Areas: []model.AreaSeason{
				{
					AreaID:        "bed-a",
					RotationGroup: "legumes",
					Notes:         "netted",
					Plantings: []model.Planting{
						{
							ID: "p1", PlantID: "broad-beans", VarietyName: "Aquadulce", SowDate: "2023-11-05",
							SowMethod: "outdoor", ActualHarvestStart: "2024-06-01", Quantity: intp(24), Success: "good",
						},
						{ID: "p2", PlantID: "peas", Notes: "mice ate half"},
					},
				},
				{AreaID: "apple", Plantings: []model.Planting{}},
			},
		},
		{Year: 2025, Status: model.StatusCurrent, Areas: []model.AreaSeason{}, CreatedAt: "2025-01-01T00:00:00Z"},
	}
	doc.Varieties = []model.StoredVariety{
		{
			ID: "v1", PlantID: "tomato", Name: "San Marzano", Supplier: "Thompson", Price: floatp(2.99),
			YearsUsed: []int{2023, 2024}, PlannedYears: []int{2025},
			SeedsByYear: map[int]model.SeedStatus{2024: model.SeedHave, 2025: model.SeedOrdered},
		},
		{ID: "v2", PlantID: "carrot", Name: "Nantes 2", Price: floatp(3), SeedsByYear: map[int]model.SeedStatus{}},
	}
	return doc
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		doc  *model.Document
	}{
		{"empty document", model.NewDocument(schema.LatestVersion, 2025)},
		{"rich document", richDocument()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newConverter()
			got := c.FromReplicated(c.ToReplicated(tt.doc))
			if !reflect.DeepEqual(got, tt.doc) {
				a, _ := json.MarshalIndent(tt.doc, "", "  ")
				b, _ := json.MarshalIndent(got, "", "  ")
				t.Errorf("round trip mismatch:\nwant: %s\n got: %s", a, b)
			}
		})
	}
}

const legacyDocument = `{
  "version": 1,
  "meta": {"name": "Plot 29"},
  "layout": {
    "beds": [{"id": "bed-a", "name": "Bed A", "status": "rotation", "rotationGroup": "legumes"}],
    "permanentPlantings": [{"id": "apple", "name": "Apple tree", "type": "tree"}]
  },
  "seasons": [
    {"year": 2024, "status": "current", "beds": [
      {"bedId": "bed-a", "plantings": [{"id": "p1", "plantId": "peas", "harvestDate": "2024-07-01"}]}
    ]}
  ]
}`

func TestRoundTrip_LoadedDocument(t *testing.T) {
	doc, _, err := schema.Load([]byte(legacyDocument), testutil.FixedClock())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	c := newConverter()
	if got := c.FromReplicated(c.ToReplicated(doc)); !reflect.DeepEqual(got, doc) {
		t.Errorf("loaded document does not survive the round trip:\nwant: %+v\n got: %+v", doc, got)
	}
}

func TestToReplicated_SingleUpdate(t *testing.T) {
	c := newConverter()
	r := c.Factory()
	var updates int
	r.OnUpdate(func([]byte, bool) { updates++ })
	replica.Populate(r, richDocument())
	if updates != 1 {
		t.Errorf("Populate emitted %d updates, want 1", updates)
	}
}

func TestRoundTrip_ThroughRemoteReplica(t *testing.T) {
	c := newConverter()
	src := c.ToReplicated(richDocument())

	full, err := src.EncodeStateAsUpdate(nil)
	if err != nil {
		t.Fatalf("EncodeStateAsUpdate() error = %v", err)
	}
	dst := c.Factory()
	if err := dst.ApplyUpdate(full); err != nil {
		t.Fatalf("ApplyUpdate() error = %v", err)
	}
	if got := replica.FromReplicated(dst); !reflect.DeepEqual(got, richDocument()) {
		t.Error("remote replica does not read back the document")
	}
}

func TestFromReplicated_SkipsWrongShapes(t *testing.T) {
	r := crdt.NewDoc("x")
	root := r.Root()
	root.Set("version", 6)
	root.Set("seasons", "not a list")
	areas := root.SetMap("layout").SetArray("areas")
	areas.Push("not a map")
	areas.PushMap().Set("id", "bed-a")

	doc := replica.FromReplicated(r)
	if len(doc.Seasons) != 0 || doc.Seasons == nil {
		t.Errorf("Seasons = %#v, want empty", doc.Seasons)
	}
	if len(doc.Layout.Areas) != 1 || doc.Layout.Areas[0].ID != "bed-a" {
		t.Errorf("Areas = %+v", doc.Layout.Areas)
	}
	if doc.Varieties == nil {
		t.Error("Varieties should be non-nil")
	}
}
