package catalog

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// catalogFile is the on-disk YAML schema for an opener catalog:
//
//	openers:
//	  - id: permission-based
//	    text: "Hi {name}, this is Alex from Acme — did I catch you at a bad time?"
//	    category: direct
type catalogFile struct {
	Openers []Opener `yaml:"openers"`
}

// Load reads the YAML opener catalog at path and returns a validated [Catalog].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %q: %w", path, err)
	}
	defer f.Close()

	c, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("catalog: parse %q: %w", path, err)
	}
	return c, nil
}

// LoadFromReader decodes a YAML catalog from r and validates the result.
// Unknown fields are rejected so typos in catalog files fail loudly.
func LoadFromReader(r io.Reader) (*Catalog, error) {
	var file catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("catalog: decode yaml: %w", err)
	}
	return New(file.Openers)
}
