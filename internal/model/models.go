package model

// AreaKind discriminates what an Area physically is.
type AreaKind string

const (
	KindRotationBed    AreaKind = "rotation-bed"
	KindPerennialBed   AreaKind = "perennial-bed"
	KindTree           AreaKind = "tree"
	KindBerry          AreaKind = "berry"
	KindHerb           AreaKind = "herb"
	KindInfrastructure AreaKind = "infrastructure"
)

// AreaKinds lists every known kind, in display order.
var AreaKinds = []AreaKind{KindRotationBed, KindPerennialBed, KindTree, KindBerry, KindHerb, KindInfrastructure}

// Valid reports whether k is a known kind.
func (k AreaKind) Valid() bool {
	for _, known := range AreaKinds {
		if k == known {
			return true
		}
	}
	return false
}

// SeasonStatus is the lifecycle state of a season.
type SeasonStatus string

const (
	StatusCurrent    SeasonStatus = "current"
	StatusHistorical SeasonStatus = "historical"
	StatusPlanning   SeasonStatus = "planning"
)

// SeedStatus records what seed stock exists for a variety in a given year.
type SeedStatus string

const (
	SeedNone    SeedStatus = "none"
	SeedOrdered SeedStatus = "ordered"
	SeedHave    SeedStatus = "have"
	SeedHad     SeedStatus = "had"
)

// Document is the root aggregate persisted under the primary store key.
// In a valid Document every required collection is non-nil, even when empty.
type Document struct {
	SchemaVersion int             `json:"version"`
	Meta          Meta            `json:"meta"`
	Layout        Layout          `json:"layout"`
	Seasons       []SeasonRecord  `json:"seasons"`
	CurrentYear   int             `json:"currentYear"`
	Varieties     []StoredVariety `json:"varieties"`
}

// Meta describes the plot itself.
type Meta struct {
	Name      string `json:"name"`
	Location  string `json:"location,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// Layout holds the physical arrangement of the plot.
type Layout struct {
	Areas []Area `json:"areas"`
}

// Area is a named physical or logical growing space.
// CreatedYear and ActiveYears restrict which seasons the area takes part in.
type Area struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Kind          AreaKind `json:"kind"`
	RotationGroup string   `json:"rotationGroup,omitempty"`
	CreatedYear   *int     `json:"createdYear,omitempty"`
	ActiveYears   []int    `json:"activeYears,omitzero"`
	Description   string   `json:"description,omitempty"`
}

// ActiveIn reports whether the area participates in the season for year.
func (a Area) ActiveIn(year int) bool {
	if a.CreatedYear != nil && year < *a.CreatedYear {
		return false
	}
	if a.ActiveYears != nil {
		for _, y := range a.ActiveYears {
			if y == year {
				return true
			}
		}
		return false
	}
	return true
}

// SeasonRecord is one calendar year's state. Year is unique within a Document.
type SeasonRecord struct {
	Year      int          `json:"year"`
	Status    SeasonStatus `json:"status"`
	Areas     []AreaSeason `json:"areas"`
	Notes     string       `json:"notes,omitempty"`
	CreatedAt string       `json:"createdAt,omitempty"`
	UpdatedAt string       `json:"updatedAt,omitempty"`
}

// AreaSeason joins an Area to a SeasonRecord.
type AreaSeason struct {
	AreaID        string     `json:"areaId"`
	RotationGroup string     `json:"rotationGroup,omitempty"`
	Plantings     []Planting `json:"plantings"`
	Notes         string     `json:"notes,omitempty"`
}

// Planting is a sown or planted instance. Dates are YYYY-MM-DD.
type Planting struct {
	ID                   string `json:"id"`
	PlantID              string `json:"plantId"`
	VarietyName          string `json:"varietyName,omitempty"`
	SowDate              string `json:"sowDate,omitempty"`
	SowMethod            string `json:"sowMethod,omitempty"`
	TransplantDate       string `json:"transplantDate,omitempty"`
	ExpectedHarvestStart string `json:"expectedHarvestStart,omitempty"`
	ExpectedHarvestEnd   string `json:"expectedHarvestEnd,omitempty"`
	ActualHarvestStart   string `json:"actualHarvestStart,omitempty"`
	ActualHarvestEnd     string `json:"actualHarvestEnd,omitempty"`
	Quantity             *int   `json:"quantity,omitempty"`
	Success              string `json:"success,omitempty"`
	Notes                string `json:"notes,omitempty"`
}

// StoredVariety is a named seed variety tied to a plant.
// Duplicate detection uses Identity, never ID.
type StoredVariety struct {
	ID           string             `json:"id"`
	PlantID      string             `json:"plantId"`
	Name         string             `json:"name"`
	Supplier     string             `json:"supplier,omitempty"`
	Price        *float64           `json:"price,omitempty"`
	Notes        string             `json:"notes,omitempty"`
	YearsUsed    []int              `json:"yearsUsed,omitempty"`
	PlannedYears []int              `json:"plannedYears,omitempty"`
	SeedsByYear  map[int]SeedStatus `json:"seedsByYear,omitempty"`
}

// Identity returns the normalized (plantId, name) pair used to detect duplicates.
func (v StoredVariety) Identity() string {
	return VarietyIdentity(v.PlantID, v.Name)
}

// VarietyStore is the legacy secondary store holding varieties on their own.
type VarietyStore struct {
	Version    int             `json:"version"`
	Varieties  []StoredVariety `json:"varieties"`
	Meta       StoreMeta       `json:"meta"`
	MigratedTo string          `json:"migratedTo,omitempty"`
	MigratedAt string          `json:"migratedAt,omitempty"`
}

// StoreMeta carries timestamps for the secondary store.
type StoreMeta struct {
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// DefaultName is used when a persisted document has no usable name.
const DefaultName = "My Allotment"

// NewDocument returns an empty, valid document at the given schema version.
func NewDocument(version, currentYear int) *Document {
	return &Document{
		SchemaVersion: version,
		Meta:          Meta{Name: DefaultName},
		Layout:        Layout{Areas: []Area{}},
		Seasons:       []SeasonRecord{},
		CurrentYear:   currentYear,
		Varieties:     []StoredVariety{},
	}
}

// Season returns the season for year, or nil.
func (d *Document) Season(year int) *SeasonRecord {
	for i := range d.Seasons {
		if d.Seasons[i].Year == year {
			return &d.Seasons[i]
		}
	}
	return nil
}

// Area returns the area with the given id, or nil.
func (d *Document) Area(id string) *Area {
	for i := range d.Layout.Areas {
		if d.Layout.Areas[i].ID == id {
			return &d.Layout.Areas[i]
		}
	}
	return nil
}

// AreaSeason returns the area's entry within the season, or nil.
func (s *SeasonRecord) AreaSeason(areaID string) *AreaSeason {
	for i := range s.Areas {
		if s.Areas[i].AreaID == areaID {
			return &s.Areas[i]
		}
	}
	return nil
}
