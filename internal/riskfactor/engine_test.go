package riskfactor

import (
	"context"
	"reflect"
	"testing"

	"github.com/opensource-finance/cardiorisk/internal/domain"
)

func baseRecord() domain.RawRecord {
	return domain.RawRecord{
		Age:            55,
		Sex:            domain.SexMale,
		ChestPainType:  domain.ChestPainAsymptomatic,
		RestingBP:      150,
		Cholesterol:    250,
		FastingBS:      0,
		RestingECG:     domain.RestingECGNormal,
		MaxHR:          120,
		ExerciseAngina: domain.ExerciseAnginaNo,
		Oldpeak:        0.5,
		STSlope:        domain.STSlopeUp,
	}
}

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine(DefaultRules())
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if engine.RulesCount() != 6 {
		t.Errorf("expected 6 rules, got %d", engine.RulesCount())
	}
}

func TestLoadInvalidRule(t *testing.T) {
	tests := []struct {
		name string
		rule *domain.RiskRule
	}{
		{"syntax error", &domain.RiskRule{ID: "bad", Expression: "this is not valid CEL !!!", Enabled: true}},
		{"non bool output", &domain.RiskRule{ID: "num", Expression: "cholesterol * 2.0", Enabled: true}},
		{"unknown variable", &domain.RiskRule{ID: "var", Expression: "heart_rate > 1.0", Enabled: true}},
		{"unknown value var", &domain.RiskRule{ID: "val", Expression: "age > 1.0", ValueVar: "height", Enabled: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewEngine([]*domain.RiskRule{tt.rule}); err == nil {
				t.Error("expected error for invalid rule")
			}
		})
	}
}

func TestDisabledRulesSkipped(t *testing.T) {
	rules := DefaultRules()
	rules[0].Enabled = false

	engine, err := NewEngine(rules)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if engine.RulesCount() != 5 {
		t.Errorf("expected 5 rules, got %d", engine.RulesCount())
	}
}

func TestEvaluate(t *testing.T) {
	engine, err := NewEngine(DefaultRules())
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	ctx := context.Background()

	t.Run("cholesterol and blood pressure", func(t *testing.T) {
		got, err := engine.Evaluate(ctx, baseRecord())
		if err != nil {
			t.Fatalf("evaluate failed: %v", err)
		}
		want := []string{"High Cholesterol (250 mg/dl)", "High BP (150 mm Hg)"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("every rule in order", func(t *testing.T) {
		rec := baseRecord()
		rec.FastingBS = 1
		rec.ExerciseAngina = domain.ExerciseAnginaYes
		rec.Oldpeak = 1.5
		rec.STSlope = domain.STSlopeFlat

		got, err := engine.Evaluate(ctx, rec)
		if err != nil {
			t.Fatalf("evaluate failed: %v", err)
		}
		want := []string{
			"High Cholesterol (250 mg/dl)",
			"High BP (150 mm Hg)",
			"High Fasting Blood Sugar",
			"Exercise Induced Angina",
			"ST Depression (1.5)",
			"Abnormal ST Slope (Flat)",
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("boundaries do not trigger", func(t *testing.T) {
		rec := baseRecord()
		rec.Cholesterol = 200
		rec.RestingBP = 140
		rec.Oldpeak = 1.0

		got, err := engine.Evaluate(ctx, rec)
		if err != nil {
			t.Fatalf("evaluate failed: %v", err)
		}
		if got == nil || len(got) != 0 {
			t.Errorf("expected empty non-nil factors, got %#v", got)
		}
	})

	t.Run("down slope", func(t *testing.T) {
		rec := baseRecord()
		rec.Cholesterol = 180
		rec.RestingBP = 120
		rec.STSlope = domain.STSlopeDown

		got, _ := engine.Evaluate(ctx, rec)
		want := []string{"Abnormal ST Slope (Down)"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("absent categoricals never trigger", func(t *testing.T) {
		rec := baseRecord()
		rec.Cholesterol = 180
		rec.RestingBP = 120
		rec.ExerciseAngina = ""
		rec.STSlope = ""

		got, _ := engine.Evaluate(ctx, rec)
		if len(got) != 0 {
			t.Errorf("expected no factors, got %v", got)
		}
	})

	t.Run("fractional values keep their digits", func(t *testing.T) {
		rec := baseRecord()
		rec.Cholesterol = 233.25
		rec.RestingBP = 120

		got, _ := engine.Evaluate(ctx, rec)
		if len(got) != 1 || got[0] != "High Cholesterol (233.25 mg/dl)" {
			t.Errorf("unexpected factors %v", got)
		}
	})
}

func TestEvaluateIsPure(t *testing.T) {
	engine, _ := NewEngine(DefaultRules())
	rec := baseRecord()
	rec.Oldpeak = 2.3

	first, _ := engine.Evaluate(context.Background(), rec)
	for i := 0; i < 20; i++ {
		again, err := engine.Evaluate(context.Background(), rec)
		if err != nil {
			t.Fatalf("evaluate failed: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("iteration %d: expected %v, got %v", i, first, again)
		}
	}
	if rec.Oldpeak != 2.3 || rec.Cholesterol != 250 {
		t.Error("record was modified")
	}
}

func TestEvaluateCancelled(t *testing.T) {
	engine, _ := NewEngine(DefaultRules())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := engine.Evaluate(ctx, baseRecord()); err == nil {
		t.Error("expected context error")
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{250.0, "250"},
		{1.5, "1.5"},
		{0.1, "0.1"},
		{int64(1), "1"},
		{"Flat", "Flat"},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.in); got != tt.want {
			t.Errorf("FormatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
