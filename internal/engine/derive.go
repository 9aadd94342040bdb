package engine

import (
	"strings"

	"segmentline/internal/catalog"
	"segmentline/internal/domain"
	"segmentline/internal/selection"
)

// AvailableFor lists, in catalog order, the entries slot index may offer:
// everything not held by another slot, plus the slot's own value.
func AvailableFor(cat catalog.Catalog, slots []string, index int) ([]domain.CatalogEntry, error) {
	if index < 0 || index >= len(slots) {
		return nil, IndexError{Index: index, Len: len(slots)}
	}
	own := slots[index]
	taken := make(map[string]struct{}, len(slots))
	for i, v := range slots {
		if i == index || v == selection.Empty {
			continue
		}
		taken[v] = struct{}{}
	}
	out := make([]domain.CatalogEntry, 0, cat.Len())
	for _, e := range cat.Entries() {
		if _, ok := taken[e.Value]; ok && e.Value != own {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Project turns a draft into the wire payload. The same projection is used
// for the live preview and for submission.
func Project(cat catalog.Catalog, draft selection.Draft) domain.Payload {
	var filled []string
	if draft.Slots != nil {
		filled = draft.Slots.Filled()
	}
	schema := make([]domain.SchemaEntry, 0, len(filled))
	for _, v := range filled {
		schema = append(schema, domain.SchemaEntry{v: cat.Label(v)})
	}
	return domain.Payload{
		SegmentName: draft.Name,
		Schema:      schema,
	}
}

// Derived is the per-mutation derivation of a draft.
type Derived struct {
	Availability [][]domain.CatalogEntry
	Preview      domain.Payload
}

// DeriveView recomputes availability for every slot and the preview.
func DeriveView(cat catalog.Catalog, draft selection.Draft) Derived {
	var slots []string
	if draft.Slots != nil {
		slots = draft.Slots.Slots()
	}
	avail := make([][]domain.CatalogEntry, len(slots))
	for i := range slots {
		// index is always in range here
		avail[i], _ = AvailableFor(cat, slots, i)
	}
	return Derived{
		Availability: avail,
		Preview:      Project(cat, draft),
	}
}

// Validate checks that a draft can be submitted.
func Validate(draft selection.Draft) error {
	if strings.TrimSpace(draft.Name) == "" {
		return ValidationError{Reason: ReasonMissingName}
	}
	if draft.Slots == nil || len(draft.Slots.Filled()) == 0 {
		return ValidationError{Reason: ReasonMissingSchema}
	}
	return nil
}
