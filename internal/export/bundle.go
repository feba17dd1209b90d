// Package export writes and reads full export bundles: both stores in one
// JSON file that can be carried to another device or kept as an archive.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"

	"plot-go/internal/model"
	"plot-go/internal/plot"
	"plot-go/internal/schema"
)

// Version is the bundle format written by Export. Bundles from earlier
// versions are accepted; the documents inside are migrated on import.
const Version = schema.LatestVersion

// Bundle is the export file. Varieties is absent when there was no
// secondary store to export.
type Bundle struct {
	Allotment     json.RawMessage `json:"allotment"`
	Varieties     json.RawMessage `json:"varieties,omitempty"`
	ExportedAt    string          `json:"exportedAt"`
	ExportVersion int             `json:"exportVersion"`
}

// Contents is a bundle after validation, repair and migration.
type Contents struct {
	Document   *model.Document
	Varieties  *model.VarietyStore
	ExportedAt string
	Report     schema.Report
}

// Encode serializes b for writing to disk.
func (b *Bundle) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding bundle: %w", err)
	}
	return append(data, '\n'), nil
}

// NewBundle builds an export bundle from typed contents.
func NewBundle(doc *model.Document, varieties *model.VarietyStore, exportedAt string) (*Bundle, error) {
	allotment, err := schema.Encode(doc)
	if err != nil {
		return nil, err
	}
	b := &Bundle{Allotment: allotment, ExportedAt: exportedAt, ExportVersion: Version}
	if varieties != nil {
		if b.Varieties, err = schema.EncodeVarietyStore(varieties); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Decode parses and validates a bundle. Unparseable bytes wrap
// plot.ErrCorrupted; a bundle from a newer version, or contents that cannot
// be repaired, wrap plot.ErrSchemaInvalid.
func Decode(data []byte, clock plot.Clock) (*Contents, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: reading bundle: %v", plot.ErrCorrupted, err)
	}
	if b.ExportVersion > Version {
		return nil, fmt.Errorf("%w: bundle version %d is newer than %d", plot.ErrSchemaInvalid, b.ExportVersion, Version)
	}
	if len(b.Allotment) == 0 || bytes.Equal(b.Allotment, []byte("null")) {
		return nil, fmt.Errorf("%w: bundle has no allotment", plot.ErrSchemaInvalid)
	}

	doc, report, err := schema.Load(b.Allotment, clock)
	if err != nil {
		return nil, fmt.Errorf("allotment: %w", err)
	}
	c := &Contents{Document: doc, ExportedAt: b.ExportedAt, Report: report}

	if len(b.Varieties) > 0 && !bytes.Equal(b.Varieties, []byte("null")) {
		vs, vr, err := schema.LoadVarietyStore(b.Varieties, clock)
		if err != nil {
			return nil, fmt.Errorf("varieties: %w", err)
		}
		c.Varieties = vs
		c.Report.Repairs = append(c.Report.Repairs, vr.Repairs...)
		c.Report.Steps = append(c.Report.Steps, vr.Steps...)
	}
	return c, nil
}
