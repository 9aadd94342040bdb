package engine_test

import (
	"errors"
	"reflect"
	"slices"
	"testing"

	"segmentline/internal/config"
	"segmentline/internal/domain"
	"segmentline/internal/engine"
	"segmentline/internal/selection"
)

func values(entries []domain.CatalogEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Value)
	}
	return out
}

func mustAvailable(t *testing.T, slots []string, index int) []string {
	t.Helper()
	got, err := engine.AvailableFor(config.DefaultCatalog(), slots, index)
	if err != nil {
		t.Fatalf("available for slot %d: %v", index, err)
	}
	return values(got)
}

func TestAvailableForExcludesOtherSlots(t *testing.T) {
	cat := config.DefaultCatalog()
	slots := []string{"city", ""}

	if own := mustAvailable(t, slots, 0); !slices.Contains(own, "city") {
		t.Fatalf("slot 0 should offer its own selection, got %v", own)
	}
	other := mustAvailable(t, slots, 1)
	if slices.Contains(other, "city") {
		t.Fatalf("slot 1 should not offer city, got %v", other)
	}
	if len(other) != cat.Len()-1 {
		t.Fatalf("expected %d choices, got %d", cat.Len()-1, len(other))
	}

	slots[0] = ""
	if other := mustAvailable(t, slots, 1); !slices.Contains(other, "city") {
		t.Fatalf("city should return once slot 0 is cleared, got %v", other)
	}
}

func TestAvailableForFollowsCatalogOrder(t *testing.T) {
	slots := []string{"state", "first_name", ""}
	want := []string{"last_name", "gender", "age", "account_name", "city"}
	if got := mustAvailable(t, slots, 2); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	want = []string{"last_name", "gender", "age", "account_name", "city", "state"}
	if got := mustAvailable(t, slots, 0); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestAvailableForDuplicatesStayVisibleInOwnSlot(t *testing.T) {
	slots := []string{"age", "age"}
	for i := range slots {
		if got := mustAvailable(t, slots, i); !slices.Contains(got, "age") {
			t.Fatalf("slot %d should offer age, got %v", i, got)
		}
	}
}

func TestAvailableForOutOfRange(t *testing.T) {
	_, err := engine.AvailableFor(config.DefaultCatalog(), []string{""}, 1)
	var ie engine.IndexError
	if !errors.As(err, &ie) {
		t.Fatalf("expected IndexError, got %v", err)
	}
	if ie.Index != 1 {
		t.Fatalf("expected index 1, got %d", ie.Index)
	}
}

func TestOwnSelectionAlwaysAvailable(t *testing.T) {
	slots := []string{"first_name", "", "city", "age", "", "gender"}
	for i, v := range slots {
		got := mustAvailable(t, slots, i)
		if v != "" && !slices.Contains(got, v) {
			t.Fatalf("slot %d should offer its own %s", i, v)
		}
		for j, other := range slots {
			if j != i && other != "" && slices.Contains(got, other) {
				t.Fatalf("slot %d offers %s held by slot %d", i, other, j)
			}
		}
	}
}

func TestProjectKeepsSlotOrder(t *testing.T) {
	cat := config.DefaultCatalog()
	draft := selection.Draft{
		Name:  "Power Users",
		Slots: selection.FromValues([]string{"state", "", "first_name", "unknown_trait"}),
	}
	p := engine.Project(cat, draft)
	if p.SegmentName != "Power Users" {
		t.Fatalf("unexpected segment name %q", p.SegmentName)
	}
	want := []domain.SchemaEntry{
		{"state": "State"},
		{"first_name": "First Name"},
		{"unknown_trait": "unknown_trait"},
	}
	if !reflect.DeepEqual(p.Schema, want) {
		t.Fatalf("expected schema %v, got %v", want, p.Schema)
	}
	if len(p.Schema) != len(draft.Slots.Filled()) {
		t.Fatalf("schema length %d does not match filled slots %d", len(p.Schema), len(draft.Slots.Filled()))
	}
}

func TestProjectEmptyDraftHasEmptySchema(t *testing.T) {
	p := engine.Project(config.DefaultCatalog(), selection.NewDraft())
	if p.Schema == nil || len(p.Schema) != 0 {
		t.Fatalf("expected empty non-nil schema, got %#v", p.Schema)
	}
}

func TestDerivationsAreIdempotent(t *testing.T) {
	cat := config.DefaultCatalog()
	draft := selection.Draft{Name: "X", Slots: selection.FromValues([]string{"city", "", "age"})}
	first := engine.DeriveView(cat, draft)
	second := engine.DeriveView(cat, draft)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("derivation is not stable: %v vs %v", first, second)
	}
	if !reflect.DeepEqual(engine.Project(cat, draft), first.Preview) {
		t.Fatalf("preview differs from projection")
	}
	if len(first.Availability) != 3 {
		t.Fatalf("expected availability for 3 slots, got %d", len(first.Availability))
	}
	if got := draft.Slots.Slots(); !reflect.DeepEqual(got, []string{"city", "", "age"}) {
		t.Fatalf("derivation mutated the draft: %v", got)
	}
}
