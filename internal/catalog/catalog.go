package catalog

import (
	"fmt"
	"strings"

	"segmentline/internal/domain"
)

// Catalog is the fixed, ordered set of selectable schemas.
type Catalog struct {
	entries []domain.CatalogEntry
	index   map[string]int
}

// New builds a catalog, rejecting empty or duplicate values.
func New(entries []domain.CatalogEntry) (Catalog, error) {
	c := Catalog{
		entries: make([]domain.CatalogEntry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		value := strings.TrimSpace(e.Value)
		if value == "" {
			return Catalog{}, fmt.Errorf("catalog entry %d has empty value", i)
		}
		if value != e.Value {
			return Catalog{}, fmt.Errorf("catalog value %q has surrounding whitespace", e.Value)
		}
		if strings.TrimSpace(e.Label) == "" {
			return Catalog{}, fmt.Errorf("catalog entry %s has empty label", value)
		}
		if _, ok := c.index[value]; ok {
			return Catalog{}, fmt.Errorf("duplicate catalog value %s", value)
		}
		c.index[value] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	return c, nil
}

// MustNew is New for static tables known to be valid.
func MustNew(entries []domain.CatalogEntry) Catalog {
	c, err := New(entries)
	if err != nil {
		panic(err)
	}
	return c
}

// Entries returns a copy of the entries in declared order.
func (c Catalog) Entries() []domain.CatalogEntry {
	out := make([]domain.CatalogEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c Catalog) Len() int { return len(c.entries) }

// Lookup returns the entry for value.
func (c Catalog) Lookup(value string) (domain.CatalogEntry, bool) {
	i, ok := c.index[value]
	if !ok {
		return domain.CatalogEntry{}, false
	}
	return c.entries[i], true
}

func (c Catalog) Contains(value string) bool {
	_, ok := c.index[value]
	return ok
}

// Label resolves the display label, falling back to the raw value.
func (c Catalog) Label(value string) string {
	if e, ok := c.Lookup(value); ok {
		return e.Label
	}
	return value
}
