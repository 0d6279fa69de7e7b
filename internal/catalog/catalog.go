// Package catalog holds the static description of every supported grading
// system and the country-to-system mapping. The catalog is built once at
// process start and passed explicitly to every component that needs it;
// there is no package-global state.
package catalog

import (
	"maps"
	"slices"

	dErrors "gradenorm/pkg/domain-errors"
)

// Catalog is an immutable lookup of grading systems and country mappings.
// System identifiers are opaque keys: bounds and labels always come from the
// catalog record, never from parsing the id string.
type Catalog struct {
	systems   map[string]System
	countries map[string][]string // ISO3 -> system ids, first entry is the country default
}

// New validates the systems and country mappings and builds a catalog.
func New(systems []System, countries map[string][]string) (*Catalog, error) {
	sysByID := make(map[string]System, len(systems))
	for _, s := range systems {
		if err := s.validate(); err != nil {
			return nil, err
		}
		if _, dup := sysByID[s.ID]; dup {
			return nil, dErrors.Newf(dErrors.CodeValidation, "duplicate system id %s", s.ID)
		}
		sysByID[s.ID] = s
	}
	for iso3, ids := range countries {
		if len(ids) == 0 {
			return nil, dErrors.Newf(dErrors.CodeValidation, "country %s maps to no systems", iso3)
		}
		for _, id := range ids {
			if _, ok := sysByID[id]; !ok {
				return nil, dErrors.Newf(dErrors.CodeValidation,
					"country %s references unknown system %s", iso3, id)
			}
		}
	}
	copied := make(map[string][]string, len(countries))
	for iso3, ids := range countries {
		copied[iso3] = slices.Clone(ids)
	}
	return &Catalog{systems: sysByID, countries: copied}, nil
}

// System looks up a grading system by id.
func (c *Catalog) System(id string) (System, bool) {
	s, ok := c.systems[id]
	return s, ok
}

// Require returns the system or an unsupported_system error carrying the id.
func (c *Catalog) Require(id string) (System, error) {
	s, ok := c.systems[id]
	if !ok {
		return System{}, dErrors.Newf(dErrors.CodeUnsupportedSystem, "grading system %q is not in the catalog", id)
	}
	return s, nil
}

// SystemIDs returns all known system ids, sorted.
func (c *Catalog) SystemIDs() []string {
	return slices.Sorted(maps.Keys(c.systems))
}

// SystemsForCountry returns the system ids used in a country, default first.
func (c *Catalog) SystemsForCountry(iso3 string) []string {
	return slices.Clone(c.countries[iso3])
}

// DefaultSystemForCountry returns the country's default system id, or "".
func (c *Catalog) DefaultSystemForCountry(iso3 string) string {
	if ids := c.countries[iso3]; len(ids) > 0 {
		return ids[0]
	}
	return ""
}

// Countries returns the known ISO3 codes, sorted.
func (c *Catalog) Countries() []string {
	return slices.Sorted(maps.Keys(c.countries))
}
