// Package riskfactor provides the CEL-Go based risk factor engine.
package riskfactor

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/cardiorisk/internal/domain"
)

// Engine evaluates risk rules against a record in a fixed order.
// It holds no mutable state after construction and is safe for concurrent use.
type Engine struct {
	env   *cel.Env
	rules []*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RiskRule
	Program cel.Program
}

// NewEngine compiles the enabled rules, preserving their order.
func NewEngine(rules []*domain.RiskRule) (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable(VarAge, cel.DoubleType),
		cel.Variable(VarSex, cel.StringType),
		cel.Variable(VarChestPainType, cel.StringType),
		cel.Variable(VarRestingBP, cel.DoubleType),
		cel.Variable(VarCholesterol, cel.DoubleType),
		cel.Variable(VarFastingBS, cel.IntType),
		cel.Variable(VarRestingECG, cel.StringType),
		cel.Variable(VarMaxHR, cel.DoubleType),
		cel.Variable(VarExerciseAngina, cel.StringType),
		cel.Variable(VarOldpeak, cel.DoubleType),
		cel.Variable(VarSTSlope, cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Engine{env: env}
	for _, cfg := range rules {
		if cfg == nil || !cfg.Enabled {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return nil, err
		}
		e.rules = append(e.rules, compiled)
	}
	return e, nil
}

// Evaluate returns the reasons of every rule that holds for rec, in rule order.
// A record that triggers nothing yields an empty, non-nil slice.
func (e *Engine) Evaluate(ctx context.Context, rec domain.RawRecord) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	activation := Activation(rec)
	factors := make([]string, 0, len(e.rules))

	for _, rule := range e.rules {
		out, _, err := rule.Program.Eval(activation)
		if err != nil {
			return nil, fmt.Errorf("evaluate rule %s: %w", rule.Config.ID, err)
		}
		if hit, ok := out.(types.Bool); !ok || !bool(hit) {
			continue
		}
		factors = append(factors, renderReason(rule.Config, activation))
	}
	return factors, nil
}

// RulesCount returns the number of compiled rules.
func (e *Engine) RulesCount() int {
	return len(e.rules)
}

// Rules returns the compiled rule configurations in evaluation order.
func (e *Engine) Rules() []*domain.RiskRule {
	out := make([]*domain.RiskRule, len(e.rules))
	for i, r := range e.rules {
		out[i] = r.Config
	}
	return out
}

// Activation binds a record to the rule variables.
// Absent categoricals bind to "", which no default rule matches.
func Activation(rec domain.RawRecord) map[string]any {
	return map[string]any{
		VarAge:            rec.Age,
		VarSex:            string(rec.Sex),
		VarChestPainType:  string(rec.ChestPainType),
		VarRestingBP:      rec.RestingBP,
		VarCholesterol:    rec.Cholesterol,
		VarFastingBS:      int64(rec.FastingBS),
		VarRestingECG:     string(rec.RestingECG),
		VarMaxHR:          rec.MaxHR,
		VarExerciseAngina: string(rec.ExerciseAngina),
		VarOldpeak:        rec.Oldpeak,
		VarSTSlope:        string(rec.STSlope),
	}
}

func renderReason(cfg *domain.RiskRule, activation map[string]any) string {
	if cfg.ValueVar == "" {
		return cfg.Reason
	}
	return strings.ReplaceAll(cfg.Reason, "{value}", FormatValue(activation[cfg.ValueVar]))
}

// FormatValue renders a value with the shortest exact decimal form, so 250.0
// prints as "250" and 1.5 as "1.5".
func FormatValue(v any) string {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func (e *Engine) compileRule(cfg *domain.RiskRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	if cfg.ValueVar != "" {
		if _, ok := Activation(domain.RawRecord{})[cfg.ValueVar]; !ok {
			return nil, fmt.Errorf("rule %s: unknown value variable %q", cfg.ID, cfg.ValueVar)
		}
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
