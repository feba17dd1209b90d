// Package workbook imports the planning spreadsheet kept before the plot
// was tracked digitally. It is a one-shot conversion: the result is an
// export bundle, imported like any other.
package workbook

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"plot-go/internal/export"
	"plot-go/internal/model"
	"plot-go/internal/plants"
	"plot-go/internal/plot"
	"plot-go/internal/schema"
)

// ImportNote is attached to every season built from a workbook.
const ImportNote = "Imported from workbook"

// calendarPreamble is the number of rows under a sowing calendar's header
// that hold month and week labels rather than plantings.
const calendarPreamble = 2

var (
	toGrowSheet   = regexp.MustCompile(`(?i)^\s*(\d{4})\s+to\s+grow\s*$`)
	calendarSheet = regexp.MustCompile(`(?i)^\s*sowing\s+calendar\s+(\d{2}|\d{4})\s*$`)
)

// Result is what a workbook converts to.
type Result struct {
	Document  *model.Document
	Varieties *model.VarietyStore

	// Warnings lists rows that were skipped, for example because the plant
	// type could not be resolved.
	Warnings []string
}

// Bundle wraps the result as an export bundle stamped with exportedAt.
func (r *Result) Bundle(exportedAt time.Time) (*export.Bundle, error) {
	return export.NewBundle(r.Document, r.Varieties, exportedAt.UTC().Format(time.RFC3339))
}

// Importer converts workbooks using the plant catalog to resolve names.
type Importer struct {
	catalog *plants.Catalog
	clock   plot.Clock
	idgen   plot.IDGenerator
	logger  plot.Logger
}

func NewImporter(catalog *plants.Catalog, clock plot.Clock, idgen plot.IDGenerator, logger plot.Logger) *Importer {
	if logger == nil {
		logger = plot.NewNopLogger()
	}
	return &Importer{catalog: catalog, clock: clock, idgen: idgen, logger: logger}
}

// Read converts the workbook read from r. Sheets other than "<year> To
// grow" and "Sowing calendar <year>" are ignored.
func (im *Importer) Read(r io.Reader) (*Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: opening workbook: %v", plot.ErrCorrupted, err)
	}
	defer f.Close()

	c := &conversion{
		im:        im,
		file:      f,
		varieties: map[string]*model.StoredVariety{},
		seasons:   map[int]map[string][]model.Planting{},
	}
	var matched int
	for _, sheet := range f.GetSheetList() {
		if m := toGrowSheet.FindStringSubmatch(sheet); m != nil {
			err = c.readToGrow(sheet, parseYear(m[1]))
		} else if m := calendarSheet.FindStringSubmatch(sheet); m != nil {
			err = c.readCalendar(sheet, parseYear(m[1]))
		} else {
			continue
		}
		matched++
		if err != nil {
			return nil, fmt.Errorf("reading sheet %q: %w", sheet, err)
		}
	}
	if matched == 0 {
		return nil, fmt.Errorf("%w: no \"To grow\" or \"Sowing calendar\" sheets found", plot.ErrSchemaInvalid)
	}

	res := c.result()
	im.logger.Info("workbook converted", "varieties", len(res.Varieties.Varieties),
		"seasons", len(res.Document.Seasons), "warnings", len(res.Warnings))
	return res, nil
}

func parseYear(s string) int {
	y, _ := strconv.Atoi(s)
	if y < 100 {
		y += 2000
	}
	return y
}

type conversion struct {
	im       *Importer
	file     *excelize.File
	warnings []string

	varieties map[string]*model.StoredVariety
	order     []string

	// seasons holds plantings by year, then by area id.
	seasons map[int]map[string][]model.Planting
}

func (c *conversion) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.warnings = append(c.warnings, msg)
	c.im.logger.Warn("workbook row skipped", "reason", msg)
}

func (c *conversion) rows(sheet string) ([][]string, error) {
	return c.file.GetRows(sheet, excelize.Options{RawCellValue: true})
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// columns maps lowercased header names to their index.
func columns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		if _, dup := cols[h]; h != "" && !dup {
			cols[h] = i
		}
	}
	return cols
}

func column(cols map[string]int, name string) int {
	if i, ok := cols[name]; ok {
		return i
	}
	return -1
}

func (c *conversion) readToGrow(sheet string, year int) error {
	rows, err := c.rows(sheet)
	if err != nil || len(rows) == 0 {
		return err
	}
	cols := columns(rows[0])
	typeCol, varietyCol := column(cols, "type"), column(cols, "variety")
	if varietyCol < 0 {
		return fmt.Errorf("%w: no Variety column", plot.ErrSchemaInvalid)
	}
	supplierCol, priceCol, arrivedCol := column(cols, "supplier"), column(cols, "price"), column(cols, "arrived")

	var lastType string
	for n, row := range rows[1:] {
		name := cell(row, varietyCol)
		if name == "" {
			continue
		}
		// A blank type continues the group above it.
		if t := cell(row, typeCol); t != "" {
			lastType = t
		}
		if lastType == "" {
			continue
		}
		plantID, ok := c.im.catalog.Resolve(lastType)
		if !ok {
			c.warn("%s row %d: unknown plant type %q", sheet, n+2, lastType)
			continue
		}
		c.addVariety(plantID, name, cell(row, supplierCol), cell(row, priceCol), truthy(cell(row, arrivedCol)), year)
	}
	return nil
}

func (c *conversion) addVariety(plantID, name, supplier, price string, arrived bool, year int) {
	key := model.VarietyIdentity(plantID, name)
	v, ok := c.varieties[key]
	if !ok {
		v = &model.StoredVariety{
			ID:          c.im.idgen.New(),
			PlantID:     plantID,
			Name:        name,
			Supplier:    supplier,
			Price:       parsePrice(price),
			SeedsByYear: map[int]model.SeedStatus{},
		}
		c.varieties[key] = v
		c.order = append(c.order, key)
	}
	if !containsInt(v.YearsUsed, year) {
		v.YearsUsed = append(v.YearsUsed, year)
		sort.Ints(v.YearsUsed)
	}
	status := model.SeedOrdered
	if arrived {
		status = model.SeedHave
	}
	v.SeedsByYear[year] = status
}

func containsInt(list []int, n int) bool {
	for _, v := range list {
		if v == n {
			return true
		}
	}
	return false
}

func parsePrice(s string) *float64 {
	s = strings.TrimSpace(strings.TrimLeft(s, "£$€ "))
	if s == "" {
		return nil
	}
	p, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &p
}

func truthy(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y", "x", "✓", "✔":
		return true
	}
	return false
}

type dateKind int

const (
	dateNone dateKind = iota
	dateSow
	datePlantOut
	dateHarvest
)

func classify(header string) dateKind {
	h := strings.ToLower(header)
	switch {
	case strings.Contains(h, "sow"), strings.Contains(h, "january"), strings.Contains(h, "february"):
		return dateSow
	case strings.Contains(h, "plant"):
		return datePlantOut
	case strings.Contains(h, "harvest"):
		return dateHarvest
	}
	return dateNone
}

// readCalendar reads plantings. The first three columns are type, variety
// and bed; dates anywhere else on the row are classified by their column
// header, and the first date of each kind wins.
func (c *conversion) readCalendar(sheet string, year int) error {
	rows, err := c.rows(sheet)
	if err != nil || len(rows) == 0 {
		return err
	}
	header := rows[0]
	kinds := make([]dateKind, len(header))
	for i, h := range header {
		if i > 2 {
			kinds[i] = classify(h)
		}
	}

	var lastType string
	for n, row := range rows[1:] {
		if n < calendarPreamble {
			continue
		}
		variety := cell(row, 1)
		if variety == "" {
			continue
		}
		if t := cell(row, 0); t != "" {
			lastType = t
		}
		if lastType == "" {
			continue
		}
		plantID, ok := c.im.catalog.Resolve(lastType)
		if !ok {
			c.warn("%s row %d: unknown plant type %q", sheet, n+2, lastType)
			continue
		}
		areaID := bedID(cell(row, 2))
		if areaID == "" {
			c.warn("%s row %d: %s has no bed", sheet, n+2, variety)
			continue
		}

		p := model.Planting{ID: c.im.idgen.New(), PlantID: plantID, VarietyName: variety}
		for i := 3; i < len(row) && i < len(kinds); i++ {
			if kinds[i] == dateNone {
				continue
			}
			d, ok := parseDate(cell(row, i))
			if !ok {
				continue
			}
			switch kinds[i] {
			case dateSow:
				setOnce(&p.SowDate, d)
			case datePlantOut:
				setOnce(&p.TransplantDate, d)
			case dateHarvest:
				setOnce(&p.ActualHarvestStart, d)
			}
		}
		if c.seasons[year] == nil {
			c.seasons[year] = map[string][]model.Planting{}
		}
		c.seasons[year][areaID] = append(c.seasons[year][areaID], p)
	}
	return nil
}

func setOnce(field *string, v string) {
	if *field == "" {
		*field = v
	}
}

// bedID turns a bed label into an area id. A shared label such as "C/B"
// belongs to its first bed.
func bedID(label string) string {
	if i := strings.Index(label, "/"); i >= 0 {
		label = label[:i]
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return ""
	}
	return strings.ReplaceAll(label, " ", "-")
}

var dateLayouts = []string{"2006-01-02", "02/01/2006", "2/1/2006", "02/01/06"}

// parseDate reads a cell as a calendar date: an Excel serial number, or text in
// one of the common layouts.
func parseDate(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		if serial < 1 {
			return "", false
		}
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return "", false
		}
		return t.Format("2006-01-02"), true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

func (c *conversion) result() *Result {
	now := c.im.clock.Now().UTC().Format(time.RFC3339)

	years := make([]int, 0, len(c.seasons))
	for y := range c.seasons {
		years = append(years, y)
	}
	sort.Ints(years)

	currentYear := c.im.clock.Now().Year()
	if len(years) > 0 {
		currentYear = years[len(years)-1]
	}
	doc := model.NewDocument(schema.LatestVersion, currentYear)
	doc.Meta.CreatedAt = now
	doc.Meta.UpdatedAt = now

	seen := map[string]bool{}
	for _, y := range years {
		beds := make([]string, 0, len(c.seasons[y]))
		for id := range c.seasons[y] {
			beds = append(beds, id)
		}
		sort.Strings(beds)

		season := model.SeasonRecord{
			Year:      y,
			Status:    model.StatusHistorical,
			Areas:     make([]model.AreaSeason, 0, len(beds)),
			Notes:     ImportNote,
			CreatedAt: now,
			UpdatedAt: now,
		}
		for _, id := range beds {
			plantings := c.seasons[y][id]
			ids := make([]string, len(plantings))
			for i, p := range plantings {
				ids[i] = p.PlantID
			}
			season.Areas = append(season.Areas, model.AreaSeason{
				AreaID:        id,
				RotationGroup: c.im.catalog.InferRotationGroup(ids),
				Plantings:     plantings,
			})
			if !seen[id] {
				seen[id] = true
				doc.Layout.Areas = append(doc.Layout.Areas, model.Area{ID: id, Name: "Bed " + id, Kind: model.KindRotationBed})
			}
		}
		doc.Seasons = append(doc.Seasons, season)
	}
	sort.Slice(doc.Layout.Areas, func(i, j int) bool { return doc.Layout.Areas[i].ID < doc.Layout.Areas[j].ID })

	vs := &model.VarietyStore{
		Version:   schema.LatestVarietyVersion,
		Varieties: make([]model.StoredVariety, 0, len(c.order)),
		Meta:      model.StoreMeta{CreatedAt: now, UpdatedAt: now},
	}
	for _, key := range c.order {
		vs.Varieties = append(vs.Varieties, *c.varieties[key])
	}
	return &Result{Document: doc, Varieties: vs, Warnings: c.warnings}
}
