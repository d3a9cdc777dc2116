package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"jobmate/watch-service/internal/model"
)

// fixtureFile is the on-disk layout of a fixture catalog:
//
//	listings:
//	  - id: "1"
//	    title: Kaksio Kalliossa
//	    category: for_sale
//	    attributes:
//	      tyyppi: Asunto
//	      hinta: 189000
type fixtureFile struct {
	Listings []model.Listing `yaml:"listings"`
}

// LoadFile reads a YAML fixture catalog into memory. Listings without a
// status are treated as published.
func LoadFile(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	var f fixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog file %s: %w", path, err)
	}
	seen := make(map[string]bool, len(f.Listings))
	for i := range f.Listings {
		l := &f.Listings[i]
		if l.ID == "" {
			return nil, fmt.Errorf("catalog file %s: listing %d has no id", path, i)
		}
		if seen[l.ID] {
			return nil, fmt.Errorf("catalog file %s: duplicate listing id %q", path, l.ID)
		}
		seen[l.ID] = true
		if l.Status == "" {
			l.Status = model.StatusPublished
		}
	}
	return NewMemory(f.Listings...), nil
}
