package model

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName canonicalises a display name for comparison: NFC, lowercase,
// trimmed, internal whitespace runs collapsed to a single space.
func NormalizeName(s string) string {
	s = strings.ToLower(norm.NFC.String(s))
	return strings.Join(strings.Fields(s), " ")
}

// VarietyIdentity combines a plant id and a variety name into the key used
// for duplicate detection across stores.
func VarietyIdentity(plantID, name string) string {
	return strings.TrimSpace(plantID) + "\x00" + NormalizeName(name)
}
