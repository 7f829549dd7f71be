// Package features turns raw clinical records into feature vectors laid out
// exactly like the training matrix.
package features

import (
	"math"

	"github.com/opensource-finance/cardiorisk/internal/domain"
)

// Derived column names.
const (
	ColOldpeakSquared      = "Oldpeak_squared"
	ColMaxHRAgeRatio       = "MaxHR_Age_Ratio"
	ColCholesterolAgeRatio = "Cholesterol_Age_Ratio"
	ColRestingBPAgeRatio   = "RestingBP_Age_Ratio"
)

// DerivedColumns lists the engineered columns in training order.
var DerivedColumns = []string{
	ColOldpeakSquared,
	ColMaxHRAgeRatio,
	ColCholesterolAgeRatio,
	ColRestingBPAgeRatio,
}

// EngineeredColumns returns every column Engineer can emit.
func EngineeredColumns() []string {
	cols := make([]string, 0, len(domain.NumericFields)+len(DerivedColumns))
	cols = append(cols, domain.NumericFields...)
	return append(cols, DerivedColumns...)
}

// Engineer writes the numeric passthrough and derived columns of rec into row.
// The age ratios are undefined for Age <= 0 and fail with a ComputationError.
func Engineer(rec domain.RawRecord, row domain.EncodedRow) error {
	if rec.Age <= 0 {
		return &domain.ComputationError{
			Feature: ColMaxHRAgeRatio,
			Message: "Age must be greater than zero",
		}
	}

	row[domain.FieldAge] = rec.Age
	row[domain.FieldRestingBP] = rec.RestingBP
	row[domain.FieldCholesterol] = rec.Cholesterol
	row[domain.FieldFastingBS] = float64(rec.FastingBS)
	row[domain.FieldMaxHR] = rec.MaxHR
	row[domain.FieldOldpeak] = rec.Oldpeak

	derived := [...]struct {
		name  string
		value float64
	}{
		{ColOldpeakSquared, rec.Oldpeak * rec.Oldpeak},
		{ColMaxHRAgeRatio, rec.MaxHR / rec.Age},
		{ColCholesterolAgeRatio, rec.Cholesterol / rec.Age},
		{ColRestingBPAgeRatio, rec.RestingBP / rec.Age},
	}
	for _, d := range derived {
		if math.IsNaN(d.value) || math.IsInf(d.value, 0) {
			return &domain.ComputationError{Feature: d.name, Message: "result is not a finite number"}
		}
		row[d.name] = d.value
	}
	return nil
}
