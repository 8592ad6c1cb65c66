package dataset

import (
	"errors"
	"fmt"
)

// NutsRegion is one NUTS region in one vintage.
type NutsRegion struct {
	NID         string
	Level       int
	Name        string
	CountryCode string
}

// Values implements Record.
func (r NutsRegion) Values() []any {
	return []any{r.NID, int64(r.Level), r.Name, r.CountryCode}
}

// HexagonHash is a single H3 cell touched by at least one region.
type HexagonHash struct {
	HID   string
	Level int
}

// Values implements Record.
func (h HexagonHash) Values() []any {
	return []any{h.HID, int64(h.Level)}
}

// NutsLocator links a region to one of the cells covering it.
type NutsLocator struct {
	Region  string
	Hexagon string
}

// Values implements Record.
func (l NutsLocator) Values() []any {
	return []any{l.Region, l.Hexagon}
}

// AdministrativeUnit is an OSM administrative boundary.
type AdministrativeUnit struct {
	AID       string
	Name      string
	Level     int
	Geometry  string
	CountryID string
}

// Values implements Record.
func (a AdministrativeUnit) Values() []any {
	return []any{a.AID, a.Name, int64(a.Level), a.Geometry, a.CountryID}
}

// Table schemas.
var (
	NutsRegionSchema = Schema{
		Name: "nuts_region",
		Columns: []Column{
			{Name: "nid", Type: TypeText},
			{Name: "level", Type: TypeInteger},
			{Name: "name", Type: TypeText},
			{Name: "country_code", Type: TypeText},
		},
		Index:       []string{"nid"},
		UniqueIndex: true,
	}
	HexagonHashSchema = Schema{
		Name: "hexagon_hash",
		Columns: []Column{
			{Name: "hid", Type: TypeText},
			{Name: "level", Type: TypeInteger},
		},
		Index:       []string{"hid"},
		UniqueIndex: true,
	}
	NutsLocatorSchema = Schema{
		Name: "nuts_locator",
		Columns: []Column{
			{Name: "region", Type: TypeText},
			{Name: "hexagon", Type: TypeText},
		},
		Index:       []string{"region", "hexagon"},
		UniqueIndex: true,
	}
	// AdministrativeUnitSchema is append-only and never deduplicated, so
	// repeated runs accumulate rows with the same aid.
	AdministrativeUnitSchema = Schema{
		Name: "administrative_unit",
		Columns: []Column{
			{Name: "aid", Type: TypeText},
			{Name: "name", Type: TypeText},
			{Name: "level", Type: TypeInteger},
			{Name: "geometry", Type: TypeText},
			{Name: "country_id", Type: TypeText},
		},
		Index: []string{"aid"},
	}
)

// Schemas lists every table this module writes.
func Schemas() []Schema {
	return []Schema{NutsRegionSchema, HexagonHashSchema, NutsLocatorSchema, AdministrativeUnitSchema}
}

// ErrIntegrity is returned when locator rows reference missing regions or cells.
var ErrIntegrity = errors.New("referential integrity violated")

// CheckLocatorIntegrity verifies that every locator references an existing
// region and an existing cell, and that cell ids are unique.
func CheckLocatorIntegrity(regions []NutsRegion, hexagons []HexagonHash, locators []NutsLocator) error {
	regionIDs := make(map[string]struct{}, len(regions))
	for _, r := range regions {
		if _, dup := regionIDs[r.NID]; dup {
			return fmt.Errorf("%w: duplicate region %q", ErrIntegrity, r.NID)
		}
		regionIDs[r.NID] = struct{}{}
	}
	cellIDs := make(map[string]struct{}, len(hexagons))
	for _, h := range hexagons {
		if _, dup := cellIDs[h.HID]; dup {
			return fmt.Errorf("%w: duplicate hexagon %q", ErrIntegrity, h.HID)
		}
		cellIDs[h.HID] = struct{}{}
	}
	for _, l := range locators {
		if _, ok := regionIDs[l.Region]; !ok {
			return fmt.Errorf("%w: locator references unknown region %q", ErrIntegrity, l.Region)
		}
		if _, ok := cellIDs[l.Hexagon]; !ok {
			return fmt.Errorf("%w: locator references unknown hexagon %q", ErrIntegrity, l.Hexagon)
		}
	}
	return nil
}
