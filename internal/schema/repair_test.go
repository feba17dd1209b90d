package schema

import (
	"errors"
	"testing"

	"plot-go/internal/model"
	"plot-go/internal/plot"
)

func TestValidateAndRepair_Absent(t *testing.T) {
	_, _, err := ValidateAndRepair(nil)
	if !errors.Is(err, plot.ErrNotFound) {
		t.Fatalf("ValidateAndRepair(nil) error = %v, want ErrNotFound", err)
	}
}

func TestValidateAndRepair_Corrupted(t *testing.T) {
	inputs := []string{"", "{not json", "[]", "null", `"text"`, "42"}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, _, err := ValidateAndRepair([]byte(in))
			if !errors.Is(err, plot.ErrCorrupted) {
				t.Errorf("error = %v, want ErrCorrupted", err)
			}
		})
	}
}

func TestValidateAndRepair_Defaults(t *testing.T) {
	tree, rs, err := ValidateAndRepair([]byte(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rs) == 0 {
		t.Error("expected repairs to be reported")
	}
	if got := version(tree); got != OldestVersion {
		t.Errorf("version = %d, want %d", got, OldestVersion)
	}
	meta, _ := asObject(tree["meta"])
	if meta["name"] != model.DefaultName {
		t.Errorf("meta.name = %v, want %q", meta["name"], model.DefaultName)
	}
	layout, _ := asObject(tree["layout"])
	if areas, ok := asArray(layout["areas"]); !ok || len(areas) != 0 {
		t.Errorf("layout.areas = %v, want empty list", layout["areas"])
	}
	if seasons, ok := asArray(tree["seasons"]); !ok || len(seasons) != 0 {
		t.Errorf("seasons = %v, want empty list", tree["seasons"])
	}
}

func TestValidateAndRepair_Structural(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, tree Raw)
	}{
		{
			name:  "non-object layout",
			input: `{"version":6,"layout":"beds"}`,
			check: func(t *testing.T, tree Raw) {
				layout, ok := asObject(tree["layout"])
				if !ok {
					t.Fatalf("layout = %T, want object", tree["layout"])
				}
				if _, ok := asArray(layout["areas"]); !ok {
					t.Error("layout.areas missing")
				}
			},
		},
		{
			name:  "non-array seasons",
			input: `{"version":6,"seasons":{"2024":{}}}`,
			check: func(t *testing.T, tree Raw) {
				if s, ok := asArray(tree["seasons"]); !ok || len(s) != 0 {
					t.Errorf("seasons = %v, want empty list", tree["seasons"])
				}
			},
		},
		{
			name:  "season with non-numeric year dropped",
			input: `{"version":6,"seasons":[{"year":"2024","status":"current"},{"year":2025,"status":"planning"}]}`,
			check: func(t *testing.T, tree Raw) {
				seasons := objects(tree, "seasons")
				if len(seasons) != 1 {
					t.Fatalf("len(seasons) = %d, want 1", len(seasons))
				}
				if y, _ := asInt(seasons[0]["year"]); y != 2025 {
					t.Errorf("remaining year = %d, want 2025", y)
				}
			},
		},
		{
			name:  "duplicate season year dropped",
			input: `{"version":6,"seasons":[{"year":2024,"status":"current"},{"year":2024,"status":"planning"}]}`,
			check: func(t *testing.T, tree Raw) {
				seasons := objects(tree, "seasons")
				if len(seasons) != 1 || seasons[0]["status"] != "current" {
					t.Errorf("seasons = %v, want only the first 2024 entry", seasons)
				}
			},
		},
		{
			name:  "non-string name replaced",
			input: `{"version":6,"meta":{"name":42}}`,
			check: func(t *testing.T, tree Raw) {
				meta, _ := asObject(tree["meta"])
				if meta["name"] != model.DefaultName {
					t.Errorf("meta.name = %v, want default", meta["name"])
				}
			},
		},
		{
			name:  "string version treated as oldest",
			input: `{"version":"6"}`,
			check: func(t *testing.T, tree Raw) {
				if v := version(tree); v != OldestVersion {
					t.Errorf("version = %d, want %d", v, OldestVersion)
				}
			},
		},
		{
			name:  "area with unknown kind defaulted",
			input: `{"version":6,"layout":{"areas":[{"id":"a","name":"A","kind":"pond"},{"name":"no id"}]}}`,
			check: func(t *testing.T, tree Raw) {
				layout, _ := asObject(tree["layout"])
				areas := objects(layout, "areas")
				if len(areas) != 1 {
					t.Fatalf("len(areas) = %d, want 1", len(areas))
				}
				if areas[0]["kind"] != string(model.KindRotationBed) {
					t.Errorf("kind = %v, want %s", areas[0]["kind"], model.KindRotationBed)
				}
			},
		},
		{
			name:  "wrong planting field types removed",
			input: `{"version":6,"seasons":[{"year":2024,"status":"current","areas":[{"areaId":"a","plantings":[{"id":"p","plantId":"peas","sowDate":20240401,"quantity":"ten"},{"plantId":"no-id"}]}]}]}`,
			check: func(t *testing.T, tree Raw) {
				seasons := objects(tree, "seasons")
				plantings := objects(objects(seasons[0], "areas")[0], "plantings")
				if len(plantings) != 1 {
					t.Fatalf("len(plantings) = %d, want 1", len(plantings))
				}
				if present(plantings[0], "sowDate") || present(plantings[0], "quantity") {
					t.Errorf("planting = %v, want sowDate and quantity removed", plantings[0])
				}
			},
		},
		{
			name:  "invalid seed statuses removed",
			input: `{"version":6,"varieties":[{"id":"v","plantId":"peas","name":"Kelvedon","seedsByYear":{"2024":"have","soon":"have","2025":"lots"}}]}`,
			check: func(t *testing.T, tree Raw) {
				seeds, _ := asObject(objects(tree, "varieties")[0]["seedsByYear"])
				if len(seeds) != 1 || seeds["2024"] != "have" {
					t.Errorf("seedsByYear = %v, want only 2024", seeds)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, rs, err := ValidateAndRepair([]byte(tt.input))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(rs) == 0 {
				t.Error("expected at least one repair")
			}
			tt.check(t, tree)
		})
	}
}

func TestValidateAndRepair_CleanDocumentHasNoRepairs(t *testing.T) {
	input := `{"version":6,"meta":{"name":"Plot 29"},"layout":{"areas":[]},"seasons":[],"currentYear":2025,"varieties":[]}`
	_, rs, err := ValidateAndRepair([]byte(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rs) != 0 {
		t.Errorf("repairs = %v, want none", rs)
	}
}
