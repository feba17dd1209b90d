package plot

// PlantInfo describes one entry of the reference plant catalog.
type PlantInfo struct {
	ID            string
	Name          string
	RotationGroup string
}

// PlantCatalog is the read-only plant reference lookup.
type PlantCatalog interface {
	// Lookup returns the plant with the given id. It never fails; ok is
	// false for unknown ids.
	Lookup(plantID string) (info PlantInfo, ok bool)
}
