package features

import "github.com/opensource-finance/cardiorisk/internal/domain"

// Transformer runs engineering, encoding and alignment for one record.
type Transformer struct {
	encoder *Encoder
	schema  *Schema
}

// NewTransformer builds a transformer over an encoder and a training schema.
func NewTransformer(encoder *Encoder, schema *Schema) *Transformer {
	return &Transformer{encoder: encoder, schema: schema}
}

// Transform returns the schema-aligned feature vector for rec.
func (t *Transformer) Transform(rec domain.RawRecord) (domain.FeatureVector, error) {
	row := make(domain.EncodedRow, t.schema.Len())
	if err := Engineer(rec, row); err != nil {
		return domain.FeatureVector{}, err
	}
	if err := t.encoder.Encode(rec, row); err != nil {
		return domain.FeatureVector{}, err
	}
	return t.schema.Align(row), nil
}

// Schema returns the training schema.
func (t *Transformer) Schema() *Schema {
	return t.schema
}

// Encoder returns the categorical encoder.
func (t *Transformer) Encoder() *Encoder {
	return t.encoder
}
