package features

import (
	"fmt"
	"slices"

	"github.com/opensource-finance/cardiorisk/internal/domain"
)

// Schema is the ordered list of feature names the classifier was trained on.
// It is immutable once built.
type Schema struct {
	names []string
	index map[string]int
}

// NewSchema builds a schema from training column names.
func NewSchema(names []string) (*Schema, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("training schema is empty")
	}

	index := make(map[string]int, len(names))
	for i, n := range names {
		if n == "" {
			return nil, fmt.Errorf("training schema: empty name at position %d", i)
		}
		if _, dup := index[n]; dup {
			return nil, fmt.Errorf("training schema: duplicate name %q", n)
		}
		index[n] = i
	}
	return &Schema{names: slices.Clone(names), index: index}, nil
}

// DefaultSchemaNames returns the column layout produced by heart-v1 training.
func DefaultSchemaNames() []string {
	names := EngineeredColumns()
	return append(names, DefaultEncodingTable().Columns()...)
}

// Names returns a copy of the schema column names.
func (s *Schema) Names() []string {
	return slices.Clone(s.names)
}

// Len returns the number of columns.
func (s *Schema) Len() int {
	return len(s.names)
}

// Contains reports whether name is a schema column.
func (s *Schema) Contains(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Align reorders row to the schema. Columns outside the schema are dropped
// and schema columns missing from row are filled with 0. The returned Names
// slice is shared with the schema and must not be modified.
func (s *Schema) Align(row domain.EncodedRow) domain.FeatureVector {
	values := make([]float64, len(s.names))
	for name, v := range row {
		if i, ok := s.index[name]; ok {
			values[i] = v
		}
	}
	return domain.FeatureVector{
		Names:  s.names,
		Values: values,
	}
}

// Coverage returns schema columns that neither feature engineering nor enc
// can ever produce. Such columns are always 0 at serving time.
func (s *Schema) Coverage(enc *Encoder) []string {
	producible := make(map[string]bool)
	for _, c := range EngineeredColumns() {
		producible[c] = true
	}
	if enc != nil {
		for _, c := range enc.Columns() {
			producible[c] = true
		}
	}

	var missing []string
	for _, n := range s.names {
		if !producible[n] {
			missing = append(missing, n)
		}
	}
	return missing
}
