package features

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/cardiorisk/internal/domain"
)

// Encoder one-hot encodes categorical fields against an EncodingTable.
type Encoder struct {
	table *EncodingTable
	known []map[string]bool
}

// NewEncoder validates the table and builds an encoder over it.
func NewEncoder(table *EncodingTable) (*Encoder, error) {
	if table == nil {
		table = DefaultEncodingTable()
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}

	known := make([]map[string]bool, len(table.Fields))
	for i, f := range table.Fields {
		known[i] = make(map[string]bool, len(f.Categories))
		for _, c := range f.Categories {
			known[i][c] = true
		}
	}
	return &Encoder{table: table, known: known}, nil
}

// Encode writes indicator columns for rec into row. The reference category
// sets every indicator of its field to 0. An absent field writes nothing and
// leaves the columns to the schema aligner.
func (e *Encoder) Encode(rec domain.RawRecord, row domain.EncodedRow) error {
	for i, f := range e.table.Fields {
		value := rec.Categorical(f.Field)
		if value == "" {
			continue
		}
		if !e.known[i][value] {
			return &domain.ValidationError{
				Field:   f.Field,
				Message: fmt.Sprintf("has unknown category %q (expected one of %s)", value, strings.Join(f.Categories, ", ")),
			}
		}
		for _, c := range f.Categories {
			if c == f.Reference {
				continue
			}
			col := f.Field + "_" + c
			if c == value {
				row[col] = 1
			} else {
				row[col] = 0
			}
		}
	}
	return nil
}

// Columns returns every indicator column the encoder can emit.
func (e *Encoder) Columns() []string {
	return e.table.Columns()
}

// Version returns the encoding table version.
func (e *Encoder) Version() string {
	return e.table.Version
}

// Table returns the encoding table.
func (e *Encoder) Table() *EncodingTable {
	return e.table
}
