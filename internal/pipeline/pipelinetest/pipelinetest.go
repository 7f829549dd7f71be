// Package pipelinetest provides a small, deterministic scoring pipeline for
// tests of packages built on top of the pipeline.
package pipelinetest

import (
	"testing"

	"github.com/opensource-finance/cardiorisk/internal/domain"
	"github.com/opensource-finance/cardiorisk/internal/features"
	"github.com/opensource-finance/cardiorisk/internal/model"
	"github.com/opensource-finance/cardiorisk/internal/pipeline"
	"github.com/opensource-finance/cardiorisk/internal/riskfactor"
)

// ModelVersion is the version reported by Artifacts.
const ModelVersion = "test-lr"

// Artifacts returns a logistic model over the default schema that weighs
// cholesterol, ST depression and an upsloping ST segment.
func Artifacts() *model.Artifacts {
	names := features.DefaultSchemaNames()
	mean := make([]float64, len(names))
	scale := make([]float64, len(names))
	coef := make([]float64, len(names))
	for i, n := range names {
		scale[i] = 1
		switch n {
		case domain.FieldCholesterol:
			mean[i] = 200
			scale[i] = 50
			coef[i] = 1.2
		case domain.FieldOldpeak:
			coef[i] = 0.8
		case "ST_Slope_Up":
			coef[i] = -1.5
		}
	}
	return &model.Artifacts{
		Features: names,
		Scaler:   &model.StandardScaler{Mean: mean, Scale: scale},
		Model:    &model.LogisticRegression{Version: ModelVersion, Coefficients: coef, Intercept: -0.2},
	}
}

// New builds a ready pipeline over Artifacts.
func New(t testing.TB) *pipeline.Pipeline {
	t.Helper()
	return build(t, Artifacts())
}

// NewUnloaded builds a pipeline that has rules but no model.
func NewUnloaded(t testing.TB) *pipeline.Pipeline {
	t.Helper()
	return build(t, nil)
}

func build(t testing.TB, art *model.Artifacts) *pipeline.Pipeline {
	t.Helper()

	rules, err := riskfactor.NewEngine(riskfactor.DefaultRules())
	if err != nil {
		t.Fatalf("failed to compile rules: %v", err)
	}
	deps := pipeline.Deps{Rules: rules, Workers: 4}

	if art != nil {
		inv, err := art.Invoker()
		if err != nil {
			t.Fatalf("failed to build invoker: %v", err)
		}
		enc, err := features.NewEncoder(nil)
		if err != nil {
			t.Fatalf("failed to build encoder: %v", err)
		}
		schema, err := features.NewSchema(art.Features)
		if err != nil {
			t.Fatalf("failed to build schema: %v", err)
		}
		deps.Invoker = inv
		deps.Transformer = features.NewTransformer(enc, schema)
	}

	p, err := pipeline.New(deps)
	if err != nil {
		t.Fatalf("failed to build pipeline: %v", err)
	}
	return p
}

// HighRiskRecord returns a record the test model scores above 50%.
func HighRiskRecord() domain.RawRecord {
	return domain.RawRecord{
		Age:            63,
		Sex:            domain.SexMale,
		ChestPainType:  domain.ChestPainAsymptomatic,
		RestingBP:      145,
		Cholesterol:    320,
		FastingBS:      1,
		RestingECG:     domain.RestingECGNormal,
		MaxHR:          110,
		ExerciseAngina: domain.ExerciseAnginaYes,
		Oldpeak:        2.5,
		STSlope:        domain.STSlopeFlat,
	}
}

// LowRiskRecord returns a record the test model scores below 50%.
func LowRiskRecord() domain.RawRecord {
	return domain.RawRecord{
		Age:            40,
		Sex:            domain.SexFemale,
		ChestPainType:  domain.ChestPainAtypical,
		RestingBP:      120,
		Cholesterol:    180,
		FastingBS:      0,
		RestingECG:     domain.RestingECGNormal,
		MaxHR:          170,
		ExerciseAngina: domain.ExerciseAnginaNo,
		Oldpeak:        0,
		STSlope:        domain.STSlopeUp,
	}
}
