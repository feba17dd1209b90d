package export_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"plot-go/internal/consolidate"
	"plot-go/internal/encryption"
	"plot-go/internal/export"
	"plot-go/internal/model"
	"plot-go/internal/plot"
	"plot-go/internal/schema"
	"plot-go/internal/testutil"
)

const (
	primaryKey   = "allotment-data"
	secondaryKey = "allotment-varieties"
)

func sampleDocument() *model.Document {
	doc := model.NewDocument(schema.LatestVersion, 2025)
	doc.Meta = model.Meta{Name: "Plot 29", Location: "Riverside"}
	doc.Layout.Areas = []model.Area{{ID: "bed-a", Name: "Bed A", Kind: model.KindRotationBed, RotationGroup: "legumes"}}
	doc.Seasons = []model.SeasonRecord{{
		Year:   2025,
		Status: model.StatusCurrent,
		Areas:  []model.AreaSeason{{AreaID: "bed-a", Plantings: []model.Planting{{ID: "p1", PlantID: "peas"}}}},
	}}
	return doc
}

func sampleVarieties() *model.VarietyStore {
	return &model.VarietyStore{
		Version:   schema.LatestVarietyVersion,
		Varieties: []model.StoredVariety{{ID: "v1", PlantID: "carrot", Name: "Nantes 2"}},
	}
}

func seed(t *testing.T, s plot.Store, doc *model.Document, vs *model.VarietyStore) {
	t.Helper()
	data, err := schema.Encode(doc)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set(primaryKey, data); err != nil {
		t.Fatal(err)
	}
	if vs != nil {
		data, err := schema.EncodeVarietyStore(vs)
		if err != nil {
			t.Fatal(err)
		}
		if err := s.Set(secondaryKey, data); err != nil {
			t.Fatal(err)
		}
	}
}

func newService(s plot.Store, leases *plot.Leases) *export.Service {
	return export.NewService(s, primaryKey, secondaryKey, leases, plot.NewNopLogger(), testutil.FixedClock())
}

func loadPrimary(t *testing.T, s plot.Store) *model.Document {
	t.Helper()
	raw, found, err := s.Get(primaryKey)
	if err != nil || !found {
		t.Fatalf("primary: found=%v err=%v", found, err)
	}
	doc, _, err := schema.Load(raw, testutil.FixedClock())
	if err != nil {
		t.Fatalf("loading primary: %v", err)
	}
	return doc
}

func TestExportImport_RoundTrip(t *testing.T) {
	src := testutil.NewTestStore()
	seed(t, src, sampleDocument(), sampleVarieties())

	var buf bytes.Buffer
	if err := newService(src, nil).Export(&buf, nil); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	var b export.Bundle
	if err := json.Unmarshal(buf.Bytes(), &b); err != nil {
		t.Fatalf("export is not JSON: %v", err)
	}
	if b.ExportVersion != export.Version || b.ExportedAt != "2025-03-10T09:00:00Z" {
		t.Errorf("bundle header = %d %q", b.ExportVersion, b.ExportedAt)
	}

	dst := testutil.NewTestStore()
	result, err := newService(dst, nil).Import(buf.Bytes())
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if result.BackupKey != "" {
		t.Errorf("BackupKey = %q, want none for an empty store", result.BackupKey)
	}
	if result.Areas != 1 || result.Seasons != 1 || result.Varieties != 1 {
		t.Errorf("result = %+v", result)
	}
	if got := loadPrimary(t, dst); !reflect.DeepEqual(got, sampleDocument()) {
		t.Errorf("imported document = %+v", got)
	}
	raw, _, _ := dst.Get(secondaryKey)
	vs, _, err := schema.LoadVarietyStore(raw, testutil.FixedClock())
	if err != nil || len(vs.Varieties) != 1 || vs.Varieties[0].Name != "Nantes 2" {
		t.Errorf("imported varieties = %+v, %v", vs, err)
	}
}

func TestExport_Errors(t *testing.T) {
	t.Run("no primary", func(t *testing.T) {
		err := newService(testutil.NewTestStore(), nil).Export(&bytes.Buffer{}, nil)
		if !errors.Is(err, plot.ErrNotFound) {
			t.Errorf("Export() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("corrupt primary", func(t *testing.T) {
		s := testutil.NewTestStore()
		s.Set(primaryKey, []byte("{nope"))
		if err := newService(s, nil).Export(&bytes.Buffer{}, nil); !errors.Is(err, plot.ErrCorrupted) {
			t.Errorf("Export() error = %v, want ErrCorrupted", err)
		}
	})

	t.Run("unreadable secondary is left out", func(t *testing.T) {
		s := testutil.NewTestStore()
		seed(t, s, sampleDocument(), nil)
		s.Set(secondaryKey, []byte("garbage"))

		b, err := newService(s, nil).Bundle()
		if err != nil {
			t.Fatalf("Bundle() error = %v", err)
		}
		if b.Varieties != nil {
			t.Errorf("Varieties = %s, want omitted", b.Varieties)
		}
	})

	t.Run("secondary read error", func(t *testing.T) {
		s := testutil.NewFaultStore(testutil.NewTestStore())
		seed(t, s, sampleDocument(), sampleVarieties())
		s.FailGet(secondaryKey, errors.New("connection reset"))

		svc := newService(s, nil)
		if _, err := svc.Bundle(); err == nil {
			t.Fatal("Bundle() expected error")
		}

		s.Clear()
		if _, err := svc.Bundle(); err != nil {
			t.Errorf("Bundle() after Clear error = %v", err)
		}
	})
}

func TestExport_Sealed(t *testing.T) {
	s := testutil.NewTestStore()
	seed(t, s, sampleDocument(), nil)
	enc := testutil.NewTestEncryptor()

	var sealed bytes.Buffer
	if err := newService(s, nil).Export(&sealed, enc); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !encryption.IsSealed(sealed.Bytes()) {
		t.Fatal("sealed export not recognised")
	}
	if _, err := newService(testutil.NewTestStore(), nil).Import(sealed.Bytes()); !errors.Is(err, plot.ErrCorrupted) {
		t.Errorf("importing sealed bytes directly: error = %v, want ErrCorrupted", err)
	}

	opener, err := enc.Unlock("")
	if err != nil {
		t.Fatal(err)
	}
	plain, err := export.Open(&sealed, opener)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	dst := testutil.NewTestStore()
	if _, err := newService(dst, nil).Import(plain); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if got := loadPrimary(t, dst); got.Meta.Name != "Plot 29" {
		t.Errorf("imported name = %q", got.Meta.Name)
	}
}

func TestImport_RejectsInvalidBundles(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		wantIs error
	}{
		{"not json", "PK\x03\x04", plot.ErrCorrupted},
		{"newer bundle", `{"allotment": {"version": 6}, "exportVersion": 7}`, plot.ErrSchemaInvalid},
		{"missing allotment", `{"exportVersion": 5}`, plot.ErrSchemaInvalid},
		{"null allotment", `{"allotment": null, "exportVersion": 5}`, plot.ErrSchemaInvalid},
		{"newer allotment", `{"allotment": {"version": 99}, "exportVersion": 6}`, plot.ErrSchemaInvalid},
		{"allotment is a list", `{"allotment": [], "exportVersion": 6}`, plot.ErrCorrupted},
		{"newer varieties", `{"allotment": {"version": 6}, "varieties": {"version": 9}, "exportVersion": 6}`, plot.ErrSchemaInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := testutil.NewFaultStore(testutil.NewTestStore())
			_, err := newService(fs, nil).Import([]byte(tt.data))
			if !errors.Is(err, tt.wantIs) {
				t.Fatalf("Import() error = %v, want %v", err, tt.wantIs)
			}
			if calls := fs.SetCalls(); len(calls) != 0 {
				t.Errorf("rejected bundle wrote %v", calls)
			}
		})
	}
}

const legacyBundle = `{
  "allotment": {
    "version": 1,
    "meta": {"name": "Old plot"},
    "layout": {"beds": [{"id": "A", "name": "Bed A", "status": "rotation"}]},
    "seasons": [{"year": 2024, "status": "historical", "beds": [
      {"bedId": "A", "plantings": [{"id": "p1", "plantId": "peas", "harvestDate": "2024-07-01"}]}
    ]}]
  },
  "varieties": {"version": 1, "varieties": [{"id": "v1", "plantId": "peas", "name": "Kelvedon Wonder"}]},
  "exportedAt": "2024-12-01T00:00:00Z",
  "exportVersion": 1
}`

func TestImport_MigratesLegacyBundle(t *testing.T) {
	s := testutil.NewTestStore()
	result, err := newService(s, nil).Import([]byte(legacyBundle))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if len(result.Steps) == 0 {
		t.Error("expected migration steps to be reported")
	}

	doc := loadPrimary(t, s)
	if doc.SchemaVersion != schema.LatestVersion || doc.Area("A") == nil {
		t.Errorf("imported document = %+v", doc)
	}
	p := doc.Seasons[0].Areas[0].Plantings[0]
	if p.ActualHarvestStart != "2024-07-01" {
		t.Errorf("harvestDate not migrated: %+v", p)
	}
}

func TestImport_BacksUpAndCanBeRolledBack(t *testing.T) {
	s := testutil.NewTestStore()
	seed(t, s, sampleDocument(), sampleVarieties())
	before, _, _ := s.Get(primaryKey)
	beforeSecondary, _, _ := s.Get(secondaryKey)

	result, err := newService(s, nil).Import([]byte(legacyBundle))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if result.BackupKey == "" {
		t.Fatal("import over existing data should take a backup")
	}
	if loadPrimary(t, s).Meta.Name != "Old plot" {
		t.Fatal("import did not replace the primary store")
	}

	keys := consolidate.Keys{Primary: primaryKey, Secondary: secondaryKey}
	rollback := consolidate.NewService(s, keys, nil, plot.NewNopLogger(), testutil.FixedClock())
	if err := rollback.Rollback(result.BackupKey); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	after, _, _ := s.Get(primaryKey)
	afterSecondary, _, _ := s.Get(secondaryKey)
	if !bytes.Equal(after, before) || !bytes.Equal(afterSecondary, beforeSecondary) {
		t.Error("rollback did not restore the pre-import stores")
	}
}

func TestImport_FailureRestores(t *testing.T) {
	tests := []struct {
		name          string
		seedPrimary   bool
		seedSecondary bool
	}{
		{"existing stores", true, true},
		{"existing primary only", true, false},
		{"existing secondary only", false, true},
		{"empty store", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := testutil.NewTestStore()
			if tt.seedPrimary {
				seed(t, inner, sampleDocument(), nil)
			}
			if tt.seedSecondary {
				data, _ := schema.EncodeVarietyStore(sampleVarieties())
				inner.Set(secondaryKey, data)
			}
			primary, hadPrimary, _ := inner.Get(primaryKey)
			secondary, hadSecondary, _ := inner.Get(secondaryKey)

			fs := testutil.NewFaultStore(inner)
			fs.FailNextSet(secondaryKey, plot.ErrQuotaExceeded)

			_, err := newService(fs, nil).Import([]byte(legacyBundle))
			if !errors.Is(err, plot.ErrQuotaExceeded) {
				t.Fatalf("Import() error = %v, want ErrQuotaExceeded", err)
			}

			got, found, _ := inner.Get(primaryKey)
			if found != hadPrimary || !bytes.Equal(got, primary) {
				t.Errorf("primary not restored: found=%v", found)
			}
			got, found, _ = inner.Get(secondaryKey)
			if found != hadSecondary || !bytes.Equal(got, secondary) {
				t.Errorf("secondary not restored: found=%v", found)
			}
		})
	}
}

func TestImport_StoreBusy(t *testing.T) {
	leases := plot.NewLeases()
	release, err := leases.Acquire(primaryKey, "sync")
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	s := testutil.NewTestStore()
	if _, err := newService(s, leases).Import([]byte(legacyBundle)); !errors.Is(err, plot.ErrStoreBusy) {
		t.Errorf("Import() error = %v, want ErrStoreBusy", err)
	}
	if _, found, _ := s.Get(primaryKey); found {
		t.Error("busy import wrote the primary store")
	}
}
