// Package locale holds the static display strings for disaster types and
// statuses. Tables are parsed once at startup and never change afterwards.
package locale

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/couchcryptid/alerthub-service/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed locales.yaml
var defaultTables []byte

type table struct {
	Disasters map[string]string `yaml:"disasters"`
	Statuses  map[string]string `yaml:"statuses"`
}

// Translator maps enum values to display strings per culture.
type Translator struct {
	tables map[string]table // keyed by lower-cased culture
}

// Parse builds a Translator from YAML tables keyed by culture tag.
func Parse(data []byte) (*Translator, error) {
	raw := make(map[string]table)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse locale tables: %w", err)
	}
	tr := &Translator{tables: make(map[string]table, len(raw))}
	for culture, t := range raw {
		for _, d := range domain.DisasterTypes() {
			if _, ok := t.Disasters[d.String()]; !ok {
				return nil, fmt.Errorf("locale %s: missing disaster %s", culture, d)
			}
		}
		tr.tables[strings.ToLower(culture)] = t
	}
	return tr, nil
}

var (
	defaultOnce       sync.Once
	defaultTranslator *Translator
)

// Default returns the translator for the embedded tables.
func Default() *Translator {
	defaultOnce.Do(func() {
		tr, err := Parse(defaultTables)
		if err != nil {
			panic(err)
		}
		defaultTranslator = tr
	})
	return defaultTranslator
}

// Disaster returns the display name of d in culture, or "" when the culture
// has no table.
func (tr *Translator) Disaster(d domain.DisasterType, culture string) string {
	t, ok := tr.tables[strings.ToLower(culture)]
	if !ok {
		return ""
	}
	return t.Disasters[d.String()]
}

// Status returns the display name of s in culture, or "" when the culture has
// no table.
func (tr *Translator) Status(s domain.Status, culture string) string {
	t, ok := tr.tables[strings.ToLower(culture)]
	if !ok {
		return ""
	}
	return t.Statuses[string(s)]
}
