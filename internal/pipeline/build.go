package pipeline

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/cardiorisk/internal/domain"
	"github.com/opensource-finance/cardiorisk/internal/features"
	"github.com/opensource-finance/cardiorisk/internal/metrics"
	"github.com/opensource-finance/cardiorisk/internal/model"
	"github.com/opensource-finance/cardiorisk/internal/riskfactor"
)

// Build loads the encoding table and model artifacts named by the
// configuration and assembles a pipeline. Missing artifacts are logged and
// yield a pipeline that is not Ready; malformed artifacts are an error.
func Build(ac domain.ArtifactConfig, pc domain.PipelineConfig) (*Pipeline, error) {
	rules, err := riskfactor.NewEngine(riskfactor.DefaultRules())
	if err != nil {
		return nil, fmt.Errorf("compile risk factor rules: %w", err)
	}

	table := features.DefaultEncodingTable()
	if ac.EncodingFile != "" {
		if table, err = features.LoadEncodingTable(ac.EncodingFile); err != nil {
			return nil, err
		}
	}
	encoder, err := features.NewEncoder(table)
	if err != nil {
		return nil, err
	}

	assembler := NewAssembler()
	if pc.HighRiskThreshold > 0 {
		assembler.HighRiskThreshold = pc.HighRiskThreshold
	}

	deps := Deps{
		Rules:     rules,
		Assembler: assembler,
		Workers:   pc.Workers,
	}

	art, err := model.Load(ac.Dir)
	switch {
	case errors.Is(err, domain.ErrArtifactUnavailable):
		slog.Warn("model artifacts not found, scoring disabled",
			"dir", ac.Dir,
			"error", err,
		)
		metrics.ArtifactsLoaded.Set(0)
		return New(deps)
	case err != nil:
		return nil, fmt.Errorf("load model artifacts: %w", err)
	}

	schema, err := features.NewSchema(art.Features)
	if err != nil {
		return nil, fmt.Errorf("training schema: %w", err)
	}
	if missing := schema.Coverage(encoder); len(missing) > 0 {
		slog.Warn("training schema has columns the encoder never produces",
			"columns", missing,
			"encoding_version", encoder.Version(),
		)
	}
	invoker, err := art.Invoker()
	if err != nil {
		return nil, err
	}

	deps.Transformer = features.NewTransformer(encoder, schema)
	deps.Invoker = invoker
	p, err := New(deps)
	if err != nil {
		return nil, err
	}

	metrics.ArtifactsLoaded.Set(1)
	slog.Info("model artifacts loaded",
		"dir", ac.Dir,
		"model_version", art.Version(),
		"features", schema.Len(),
		"encoding_version", encoder.Version(),
		"rules", rules.RulesCount(),
	)
	return p, nil
}
