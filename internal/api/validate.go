package api

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/opensource-finance/cardiorisk/internal/domain"
)

// predictSchema describes the POST /predict body. Numbers may arrive as
// numeric strings; vocabulary and integrality checks happen when the record
// is parsed.
const predictSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["Age", "Sex", "ChestPainType", "RestingBP", "Cholesterol", "FastingBS",
               "RestingECG", "MaxHR", "ExerciseAngina", "Oldpeak", "ST_Slope"],
  "properties": {
    "Age":            {"type": ["number", "string"]},
    "RestingBP":      {"type": ["number", "string"]},
    "Cholesterol":    {"type": ["number", "string"]},
    "FastingBS":      {"type": ["number", "string"]},
    "MaxHR":          {"type": ["number", "string"]},
    "Oldpeak":        {"type": ["number", "string"]},
    "Sex":            {"type": "string"},
    "ChestPainType":  {"type": "string"},
    "RestingECG":     {"type": "string"},
    "ExerciseAngina": {"type": "string"},
    "ST_Slope":       {"type": "string"}
  }
}`

var recordSchema = mustSchema(predictSchema)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("invalid request schema: %v", err))
	}
	return schema
}

// validateRecordBody checks body against the request schema.
func validateRecordBody(body []byte) error {
	result, err := recordSchema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return &domain.ValidationError{Message: "invalid JSON request body"}
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		if desc.Field() == "(root)" {
			msgs = append(msgs, desc.Description())
			continue
		}
		msgs = append(msgs, desc.Field()+": "+desc.Description())
	}
	return &domain.ValidationError{Message: strings.Join(msgs, "; ")}
}
