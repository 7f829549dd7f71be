package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Clinical field names as they appear in request bodies, uploaded tables
// and the training data.
const (
	FieldAge            = "Age"
	FieldSex            = "Sex"
	FieldChestPainType  = "ChestPainType"
	FieldRestingBP      = "RestingBP"
	FieldCholesterol    = "Cholesterol"
	FieldFastingBS      = "FastingBS"
	FieldRestingECG     = "RestingECG"
	FieldMaxHR          = "MaxHR"
	FieldExerciseAngina = "ExerciseAngina"
	FieldOldpeak        = "Oldpeak"
	FieldSTSlope        = "ST_Slope"
)

// NumericFields lists the numeric fields in training column order.
var NumericFields = []string{
	FieldAge,
	FieldRestingBP,
	FieldCholesterol,
	FieldFastingBS,
	FieldMaxHR,
	FieldOldpeak,
}

// CategoricalFields lists the categorical fields in encoding order.
var CategoricalFields = []string{
	FieldSex,
	FieldChestPainType,
	FieldRestingECG,
	FieldExerciseAngina,
	FieldSTSlope,
}

// Sex of the patient.
type Sex string

const (
	SexFemale Sex = "F"
	SexMale   Sex = "M"
)

// ChestPainType is the reported chest pain category.
type ChestPainType string

const (
	ChestPainAsymptomatic ChestPainType = "ASY"
	ChestPainAtypical     ChestPainType = "ATA"
	ChestPainNonAnginal   ChestPainType = "NAP"
	ChestPainTypical      ChestPainType = "TA"
)

// RestingECG is the resting electrocardiogram result.
type RestingECG string

const (
	RestingECGLVH    RestingECG = "LVH"
	RestingECGNormal RestingECG = "Normal"
	RestingECGST     RestingECG = "ST"
)

// ExerciseAngina flags exercise-induced angina.
type ExerciseAngina string

const (
	ExerciseAnginaNo  ExerciseAngina = "N"
	ExerciseAnginaYes ExerciseAngina = "Y"
)

// STSlope is the slope of the peak exercise ST segment.
type STSlope string

const (
	STSlopeDown STSlope = "Down"
	STSlopeFlat STSlope = "Flat"
	STSlopeUp   STSlope = "Up"
)

// RawRecord is one patient's clinical measurements.
// A zero-valued categorical field means the field was absent from the input.
type RawRecord struct {
	Age            float64        `json:"Age"`
	Sex            Sex            `json:"Sex,omitempty"`
	ChestPainType  ChestPainType  `json:"ChestPainType,omitempty"`
	RestingBP      float64        `json:"RestingBP"`
	Cholesterol    float64        `json:"Cholesterol"`
	FastingBS      int            `json:"FastingBS"`
	RestingECG     RestingECG     `json:"RestingECG,omitempty"`
	MaxHR          float64        `json:"MaxHR"`
	ExerciseAngina ExerciseAngina `json:"ExerciseAngina,omitempty"`
	Oldpeak        float64        `json:"Oldpeak"`
	STSlope        STSlope        `json:"ST_Slope,omitempty"`
}

// Categorical returns the raw value of a categorical field by name.
func (r RawRecord) Categorical(field string) string {
	switch field {
	case FieldSex:
		return string(r.Sex)
	case FieldChestPainType:
		return string(r.ChestPainType)
	case FieldRestingECG:
		return string(r.RestingECG)
	case FieldExerciseAngina:
		return string(r.ExerciseAngina)
	case FieldSTSlope:
		return string(r.STSlope)
	default:
		return ""
	}
}

// ParseOptions controls how lenient ParseRecord is.
type ParseOptions struct {
	// AllowAbsentCategoricals tolerates categorical fields missing from the input.
	// Uploaded tables may omit a categorical column entirely.
	AllowAbsentCategoricals bool
}

// ParseRecord builds a RawRecord from loosely typed input. Numbers may be
// JSON numbers or numeric strings. Categorical values are trimmed but not
// checked against a vocabulary; the encoder owns that.
func ParseRecord(fields map[string]any, opts ParseOptions) (RawRecord, error) {
	var rec RawRecord
	var err error

	numeric := map[string]*float64{
		FieldAge:         &rec.Age,
		FieldRestingBP:   &rec.RestingBP,
		FieldCholesterol: &rec.Cholesterol,
		FieldMaxHR:       &rec.MaxHR,
		FieldOldpeak:     &rec.Oldpeak,
	}
	for _, name := range NumericFields {
		if name == FieldFastingBS {
			var v float64
			if v, err = numberField(fields, name); err != nil {
				return RawRecord{}, err
			}
			if v != math.Trunc(v) {
				return RawRecord{}, &ValidationError{Field: name, Message: "must be an integer"}
			}
			rec.FastingBS = int(v)
			continue
		}
		if *numeric[name], err = numberField(fields, name); err != nil {
			return RawRecord{}, err
		}
	}

	categorical := make(map[string]string, len(CategoricalFields))
	for _, name := range CategoricalFields {
		v, present, err := stringField(fields, name)
		if err != nil {
			return RawRecord{}, err
		}
		if !present && !opts.AllowAbsentCategoricals {
			return RawRecord{}, &ValidationError{Field: name, Message: "is required"}
		}
		categorical[name] = v
	}
	rec.Sex = Sex(categorical[FieldSex])
	rec.ChestPainType = ChestPainType(categorical[FieldChestPainType])
	rec.RestingECG = RestingECG(categorical[FieldRestingECG])
	rec.ExerciseAngina = ExerciseAngina(categorical[FieldExerciseAngina])
	rec.STSlope = STSlope(categorical[FieldSTSlope])

	return rec, nil
}

func numberField(fields map[string]any, name string) (float64, error) {
	raw, ok := fields[name]
	if !ok || raw == nil {
		return 0, &ValidationError{Field: name, Message: "is required"}
	}

	var v float64
	switch t := raw.(type) {
	case float64:
		v = t
	case float32:
		v = float64(t)
	case int:
		v = float64(t)
	case int64:
		v = float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, &ValidationError{Field: name, Message: fmt.Sprintf("could not convert %q to a number", t.String())}
		}
		v = f
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, &ValidationError{Field: name, Message: "is required"}
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, &ValidationError{Field: name, Message: fmt.Sprintf("could not convert %q to a number", s)}
		}
		v = f
	default:
		return 0, &ValidationError{Field: name, Message: fmt.Sprintf("expected a number, got %T", raw)}
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ValidationError{Field: name, Message: "must be a finite number"}
	}
	return v, nil
}

func stringField(fields map[string]any, name string) (string, bool, error) {
	raw, ok := fields[name]
	if !ok || raw == nil {
		return "", false, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", false, &ValidationError{Field: name, Message: fmt.Sprintf("expected a string, got %T", raw)}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false, nil
	}
	return s, true, nil
}
