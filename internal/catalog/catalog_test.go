package catalog_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/dialcoach/dialcoach/internal/catalog"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		openers []catalog.Opener
		wantErr string
	}{
		{
			name:    "empty catalog",
			openers: nil,
			wantErr: "no openers",
		},
		{
			name: "missing id",
			openers: []catalog.Opener{
				{ID: "", Text: "hello"},
			},
			wantErr: "id is required",
		},
		{
			name: "missing text",
			openers: []catalog.Opener{
				{ID: "a", Text: "   "},
			},
			wantErr: "text is required",
		},
		{
			name: "duplicate id",
			openers: []catalog.Opener{
				{ID: "a", Text: "one"},
				{ID: "a", Text: "two"},
			},
			wantErr: "duplicate",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := catalog.New(tt.openers)
			if err == nil {
				t.Fatal("New: nil error, want validation failure")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("New: error %q does not mention %q", err, tt.wantErr)
			}
		})
	}

	if _, err := catalog.New(nil); !errors.Is(err, catalog.ErrEmptyCatalog) {
		t.Errorf("New(nil): error %v, want ErrEmptyCatalog", err)
	}
}

func TestCatalog_Lookups(t *testing.T) {
	t.Parallel()

	cat, err := catalog.New([]catalog.Opener{
		{ID: "b", Text: "second alphabetically, first in catalog"},
		{ID: "a", Text: "first alphabetically, second in catalog"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got := cat.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
	if got := cat.First().ID; got != "b" {
		t.Errorf("First().ID = %q, want %q (definition order, not lexicographic)", got, "b")
	}

	o, ok := cat.Get("a")
	if !ok || o.ID != "a" {
		t.Errorf("Get(%q) = %+v, %v", "a", o, ok)
	}
	if _, ok := cat.Get("missing"); ok {
		t.Error(`Get("missing") found an opener, want miss`)
	}

	idx, ok := cat.Index("a")
	if !ok || idx != 1 {
		t.Errorf("Index(%q) = %d, %v, want 1, true", "a", idx, ok)
	}
}

func TestCatalog_OpenersIsDefensiveCopy(t *testing.T) {
	t.Parallel()

	src := []catalog.Opener{{ID: "a", Text: "one"}}
	cat, err := catalog.New(src)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Mutating the input slice after construction must not affect the catalog.
	src[0].Text = "mutated input"
	if got := cat.First().Text; got != "one" {
		t.Errorf("First().Text = %q after input mutation, want %q", got, "one")
	}

	// Mutating the returned slice must not affect the catalog either.
	cat.Openers()[0].Text = "mutated output"
	if got := cat.First().Text; got != "one" {
		t.Errorf("First().Text = %q after output mutation, want %q", got, "one")
	}
}

func TestLoadFromReader(t *testing.T) {
	t.Parallel()

	const doc = `
openers:
  - id: permission
    text: "Hi {name}, did I catch you at a bad time?"
    category: direct
  - id: honesty
    text: "I'll be honest, this is a cold call."
`
	cat, err := catalog.LoadFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cat.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", cat.Len())
	}
	o, ok := cat.Get("permission")
	if !ok {
		t.Fatal(`Get("permission"): not found`)
	}
	if o.Category != "direct" {
		t.Errorf("Category = %q, want %q", o.Category, "direct")
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()

	const doc = `
openers:
  - id: a
    text: hello
    weight: 3
`
	if _, err := catalog.LoadFromReader(strings.NewReader(doc)); err == nil {
		t.Error("LoadFromReader: nil error for unknown field, want decode failure")
	}
}
