// Package pipeline drives records through rule evaluation, feature
// preparation, inference and result assembly. Single records and uploaded
// tables share the same routine.
package pipeline

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/cardiorisk/internal/domain"
	"github.com/opensource-finance/cardiorisk/internal/features"
	"github.com/opensource-finance/cardiorisk/internal/metrics"
	"github.com/opensource-finance/cardiorisk/internal/model"
	"github.com/opensource-finance/cardiorisk/internal/riskfactor"
)

var tracer = otel.Tracer("cardiorisk-pipeline")

// Deps are the loaded components the pipeline runs on.
// Transformer and Invoker are nil when model artifacts are unavailable.
type Deps struct {
	Rules       *riskfactor.Engine
	Transformer *features.Transformer
	Invoker     *model.Invoker
	Assembler   *Assembler

	// Workers bounds per-row preparation concurrency.
	Workers int
}

// Pipeline scores raw records.
type Pipeline struct {
	rules       *riskfactor.Engine
	transformer *features.Transformer
	invoker     *model.Invoker
	assembler   *Assembler
	workers     int
}

// New creates a pipeline. Rules are required; missing artifacts are not an
// error here and surface as domain.ErrArtifactUnavailable at run time.
func New(deps Deps) (*Pipeline, error) {
	if deps.Rules == nil {
		return nil, errors.New("pipeline: risk factor engine is required")
	}
	if deps.Assembler == nil {
		deps.Assembler = NewAssembler()
	}
	if deps.Workers <= 0 {
		deps.Workers = 8
	}
	if deps.Transformer != nil && deps.Invoker != nil && deps.Transformer.Schema().Len() != deps.Invoker.Width() {
		return nil, errors.New("pipeline: training schema width does not match model artifacts")
	}
	return &Pipeline{
		rules:       deps.Rules,
		transformer: deps.Transformer,
		invoker:     deps.Invoker,
		assembler:   deps.Assembler,
		workers:     deps.Workers,
	}, nil
}

// Ready reports whether model artifacts are loaded.
func (p *Pipeline) Ready() bool {
	return p.transformer != nil && p.invoker != nil
}

// ModelVersion returns the loaded model version, or "" if none.
func (p *Pipeline) ModelVersion() string {
	return p.invoker.Version()
}

// Fingerprint identifies everything other than the record that decides a
// result: model contents, encoding table version and risk threshold.
func (p *Pipeline) Fingerprint() string {
	encoding := ""
	if p.transformer != nil {
		encoding = p.transformer.Encoder().Version()
	}
	return p.invoker.Fingerprint() + "/" + encoding + "/" +
		strconv.FormatFloat(p.assembler.HighRiskThreshold, 'g', -1, 64)
}

// Transformer returns the feature transformer, or nil if none.
func (p *Pipeline) Transformer() *features.Transformer {
	return p.transformer
}

// Rules returns the risk factor engine.
func (p *Pipeline) Rules() *riskfactor.Engine {
	return p.rules
}

// Assembler returns the result assembler.
func (p *Pipeline) Assembler() *Assembler {
	return p.assembler
}

// Predict scores one record. It is Run over a batch of one.
func (p *Pipeline) Predict(ctx context.Context, rec domain.RawRecord) (*domain.PredictionResult, *domain.FeatureVector, error) {
	outcomes, err := p.Run(ctx, []domain.RawRecord{rec})
	if err != nil {
		return nil, nil, err
	}
	o := outcomes[0]
	if o.Err != nil {
		return nil, nil, o.Err
	}
	return o.Result, o.Vector, nil
}

type prepared struct {
	factors []string
	vector  domain.FeatureVector
	err     error
}

// Run scores records element-wise. The returned outcomes keep input order
// and a failing row never affects the others. Run itself fails only when
// artifacts are unavailable, inference fails or ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context, records []domain.RawRecord) ([]domain.Outcome, error) {
	if !p.Ready() {
		return nil, domain.ErrArtifactUnavailable
	}

	start := time.Now()
	ctx, span := tracer.Start(ctx, "pipeline.run")
	defer span.End()
	span.SetAttributes(attribute.Int("pipeline.rows", len(records)))

	rows := make([]prepared, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := range records {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows[i] = p.prepare(gctx, records[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	valid := make([]int, 0, len(rows))
	vectors := make([]domain.FeatureVector, 0, len(rows))
	for i, r := range rows {
		if r.err == nil {
			valid = append(valid, i)
			vectors = append(vectors, r.vector)
		}
	}

	scores, err := p.invoker.Invoke(ctx, vectors)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	outcomes := make([]domain.Outcome, len(records))
	for i, r := range rows {
		if r.err != nil {
			outcomes[i] = domain.Outcome{Err: r.err}
			metrics.RowsFailed.WithLabelValues(failureReason(r.err)).Inc()
		}
	}
	for n, i := range valid {
		vec := rows[i].vector
		outcomes[i] = domain.Outcome{
			Result: p.assembler.Assemble(scores[n], rows[i].factors),
			Vector: &vec,
		}
	}

	span.SetAttributes(
		attribute.Int("pipeline.scored", len(valid)),
		attribute.Int("pipeline.failed", len(records)-len(valid)),
	)
	metrics.InferenceDuration.Observe(time.Since(start).Seconds())
	metrics.BatchSize.Observe(float64(len(records)))

	return outcomes, nil
}

func (p *Pipeline) prepare(ctx context.Context, rec domain.RawRecord) prepared {
	factors, err := p.rules.Evaluate(ctx, rec)
	if err != nil {
		return prepared{err: err}
	}
	vec, err := p.transformer.Transform(rec)
	if err != nil {
		return prepared{err: err}
	}
	return prepared{factors: factors, vector: vec}
}

func failureReason(err error) string {
	var ve *domain.ValidationError
	var ce *domain.ComputationError
	switch {
	case errors.As(err, &ve):
		return metrics.ReasonValidation
	case errors.As(err, &ce):
		return metrics.ReasonComputation
	default:
		return metrics.ReasonOther
	}
}
