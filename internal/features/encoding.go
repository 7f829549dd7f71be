package features

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/cardiorisk/internal/domain"
)

// DefaultEncodingVersion identifies the built-in encoding table.
const DefaultEncodingVersion = "heart-v1"

// EncodingTable fixes, per categorical field, the category vocabulary and
// the reference category that gets no indicator column.
type EncodingTable struct {
	Version string          `json:"version" yaml:"version"`
	Fields  []FieldEncoding `json:"fields" yaml:"fields"`
}

// FieldEncoding is the vocabulary of one categorical field.
// Categories are sorted byte-wise and the reference is the first one.
type FieldEncoding struct {
	Field      string   `json:"field" yaml:"field"`
	Categories []string `json:"categories" yaml:"categories"`
	Reference  string   `json:"reference" yaml:"reference"`
}

// Columns returns the indicator columns of the field, one per non-reference category.
func (f FieldEncoding) Columns() []string {
	cols := make([]string, 0, len(f.Categories))
	for _, c := range f.Categories {
		if c == f.Reference {
			continue
		}
		cols = append(cols, f.Field+"_"+c)
	}
	return cols
}

// DefaultEncodingTable returns the heart-v1 table.
func DefaultEncodingTable() *EncodingTable {
	return &EncodingTable{
		Version: DefaultEncodingVersion,
		Fields: []FieldEncoding{
			{Field: domain.FieldSex, Categories: []string{"F", "M"}, Reference: "F"},
			{Field: domain.FieldChestPainType, Categories: []string{"ASY", "ATA", "NAP", "TA"}, Reference: "ASY"},
			{Field: domain.FieldRestingECG, Categories: []string{"LVH", "Normal", "ST"}, Reference: "LVH"},
			{Field: domain.FieldExerciseAngina, Categories: []string{"N", "Y"}, Reference: "N"},
			{Field: domain.FieldSTSlope, Categories: []string{"Down", "Flat", "Up"}, Reference: "Down"},
		},
	}
}

// LoadEncodingTable reads and validates a YAML encoding table.
func LoadEncodingTable(path string) (*EncodingTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read encoding table: %w", err)
	}
	return ParseEncodingTable(data)
}

// ParseEncodingTable decodes and validates a YAML encoding table.
// An empty reference defaults to the first category.
func ParseEncodingTable(data []byte) (*EncodingTable, error) {
	var t EncodingTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse encoding table: %w", err)
	}
	for i := range t.Fields {
		if t.Fields[i].Reference == "" && len(t.Fields[i].Categories) > 0 {
			t.Fields[i].Reference = t.Fields[i].Categories[0]
		}
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks that the table is usable for encoding.
func (t *EncodingTable) Validate() error {
	if t.Version == "" {
		return fmt.Errorf("encoding table: version is required")
	}
	if len(t.Fields) == 0 {
		return fmt.Errorf("encoding table %s: no fields", t.Version)
	}

	seen := make(map[string]bool, len(t.Fields))
	for _, f := range t.Fields {
		if !slices.Contains(domain.CategoricalFields, f.Field) {
			return fmt.Errorf("encoding table %s: %q is not a categorical field", t.Version, f.Field)
		}
		if seen[f.Field] {
			return fmt.Errorf("encoding table %s: duplicate field %s", t.Version, f.Field)
		}
		seen[f.Field] = true

		if len(f.Categories) < 2 {
			return fmt.Errorf("encoding table %s: %s needs at least two categories", t.Version, f.Field)
		}
		for i := 1; i < len(f.Categories); i++ {
			if f.Categories[i-1] >= f.Categories[i] {
				return fmt.Errorf("encoding table %s: %s categories must be sorted and unique", t.Version, f.Field)
			}
		}
		if f.Reference != f.Categories[0] {
			return fmt.Errorf("encoding table %s: %s reference must be %q, got %q",
				t.Version, f.Field, f.Categories[0], f.Reference)
		}
	}
	return nil
}

// Columns returns every indicator column in table order.
func (t *EncodingTable) Columns() []string {
	var cols []string
	for _, f := range t.Fields {
		cols = append(cols, f.Columns()...)
	}
	return cols
}
