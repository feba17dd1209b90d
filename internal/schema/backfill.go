package schema

import (
	"errors"
	"fmt"

	"plot-go/internal/model"
)

var (
	ErrAreaExists  = errors.New("area already exists")
	ErrAreaInvalid = errors.New("area is invalid")
)

// AddArea appends area to the layout and backfills an empty AreaSeason into
// every existing season the area participates in: years at or after
// CreatedYear, further restricted to ActiveYears when set. Seasons that
// already hold an entry for the area are left alone.
func AddArea(doc *model.Document, area model.Area) error {
	if area.ID == "" {
		return fmt.Errorf("%w: missing id", ErrAreaInvalid)
	}
	if !area.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrAreaInvalid, area.Kind)
	}
	if doc.Area(area.ID) != nil {
		return fmt.Errorf("%w: %s", ErrAreaExists, area.ID)
	}
	if area.Name == "" {
		area.Name = area.ID
	}
	doc.Layout.Areas = append(doc.Layout.Areas, area)

	for i := range doc.Seasons {
		season := &doc.Seasons[i]
		if !area.ActiveIn(season.Year) || season.AreaSeason(area.ID) != nil {
			continue
		}
		season.Areas = append(season.Areas, model.AreaSeason{
			AreaID:        area.ID,
			RotationGroup: area.RotationGroup,
			Plantings:     []model.Planting{},
		})
	}
	return nil
}
