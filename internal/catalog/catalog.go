// Package catalog defines the static set of canonical call openers that the
// matcher and recommendation engine operate on.
//
// The catalog is loaded once at startup (see [Load]) and treated as read-only
// for the lifetime of the process. Opener IDs are stable and unique; catalog
// order is contractual — tie-breaking rules in the matcher and the
// recommendation engine fall back to catalog order for determinism.
package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyCatalog is returned by [New] when no openers are supplied.
var ErrEmptyCatalog = errors.New("catalog: no openers defined")

// Opener is a single canonical call opener. Openers are defined at
// configuration time and never mutated at runtime.
type Opener struct {
	// ID is the stable, unique identifier for this opener (e.g.
	// "permission-based"). Used as the foreign key in statistics records.
	ID string `yaml:"id"`

	// Text is the canonical phrasing. It may contain placeholder tokens such
	// as "{name}" that the agent fills in while speaking; placeholders are
	// stripped during match normalization like any other punctuation.
	Text string `yaml:"text"`

	// Category is an optional informational label (e.g. "direct",
	// "curiosity"). It has no effect on matching or recommendation.
	Category string `yaml:"category"`
}

// Catalog is an ordered, immutable collection of openers with index and ID
// lookup. Safe for concurrent use — read-only after construction.
type Catalog struct {
	openers []Opener
	byID    map[string]int
}

// New validates openers and builds a [Catalog] preserving their order.
// Every opener must have a non-blank ID and text, and IDs must be unique.
// All validation failures are reported together via [errors.Join].
func New(openers []Opener) (*Catalog, error) {
	if len(openers) == 0 {
		return nil, ErrEmptyCatalog
	}

	var errs []error
	byID := make(map[string]int, len(openers))

	for i, o := range openers {
		prefix := fmt.Sprintf("catalog: openers[%d]", i)
		if strings.TrimSpace(o.ID) == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
			continue
		}
		if strings.TrimSpace(o.Text) == "" {
			errs = append(errs, fmt.Errorf("%s.text is required", prefix))
		}
		if prev, ok := byID[o.ID]; ok {
			errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of openers[%d]", prefix, o.ID, prev))
			continue
		}
		byID[o.ID] = i
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	cp := make([]Opener, len(openers))
	copy(cp, openers)
	return &Catalog{openers: cp, byID: byID}, nil
}

// Openers returns a defensive copy of the catalog in definition order.
func (c *Catalog) Openers() []Opener {
	cp := make([]Opener, len(c.openers))
	copy(cp, c.openers)
	return cp
}

// Get returns the opener with the given ID, if present.
func (c *Catalog) Get(id string) (Opener, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Opener{}, false
	}
	return c.openers[i], true
}

// Index returns the catalog position of the opener with the given ID.
// Used for catalog-order tie-breaking.
func (c *Catalog) Index(id string) (int, bool) {
	i, ok := c.byID[id]
	return i, ok
}

// First returns the first opener in catalog order.
// Only valid on a catalog constructed via [New], which rejects empty input.
func (c *Catalog) First() Opener {
	return c.openers[0]
}

// Len returns the number of openers in the catalog.
func (c *Catalog) Len() int {
	return len(c.openers)
}
