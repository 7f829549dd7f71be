package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/cardiorisk/internal/domain"
	"github.com/opensource-finance/cardiorisk/internal/model"
	"github.com/opensource-finance/cardiorisk/internal/pipeline"
	"github.com/opensource-finance/cardiorisk/internal/pipeline/pipelinetest"
)

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, model.Save(dir, pipelinetest.Artifacts()))

	p, err := pipeline.Build(domain.ArtifactConfig{Dir: dir}, domain.PipelineConfig{Workers: 2, HighRiskThreshold: 70})
	require.NoError(t, err)
	assert.True(t, p.Ready())
	assert.Equal(t, pipelinetest.ModelVersion, p.ModelVersion())
	assert.Equal(t, 70.0, p.Assembler().HighRiskThreshold)
	assert.Equal(t, 6, p.Rules().RulesCount())

	result, _, err := p.Predict(context.Background(), pipelinetest.HighRiskRecord())
	require.NoError(t, err)
	assert.Equal(t, result.Probability > 70, result.RiskLevel == domain.RiskHigh)
}

func TestBuildMissingArtifacts(t *testing.T) {
	p, err := pipeline.Build(domain.ArtifactConfig{Dir: t.TempDir()}, domain.PipelineConfig{})
	require.NoError(t, err)
	assert.False(t, p.Ready())

	_, _, err = p.Predict(context.Background(), pipelinetest.LowRiskRecord())
	assert.ErrorIs(t, err, domain.ErrArtifactUnavailable)
}

func TestBuildCorruptArtifacts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, model.Save(dir, pipelinetest.Artifacts()))
	require.NoError(t, os.WriteFile(filepath.Join(dir, model.ModelFile), []byte("{"), 0o644))

	_, err := pipeline.Build(domain.ArtifactConfig{Dir: dir}, domain.PipelineConfig{})
	assert.Error(t, err)
}

func TestBuildEncodingFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, model.Save(dir, pipelinetest.Artifacts()))

	enc := filepath.Join(dir, "encoding.yaml")
	require.NoError(t, os.WriteFile(enc, []byte("version: broken\nfields: []\n"), 0o644))
	_, err := pipeline.Build(domain.ArtifactConfig{Dir: dir, EncodingFile: enc}, domain.PipelineConfig{})
	assert.Error(t, err)

	_, err = pipeline.Build(domain.ArtifactConfig{Dir: dir, EncodingFile: filepath.Join(dir, "missing.yaml")}, domain.PipelineConfig{})
	assert.Error(t, err)
}

func TestRecorder(t *testing.T) {
	// A recorder without sinks is a no-op.
	var nilRecorder *pipeline.Recorder
	nilRecorder.Record(context.Background(), &domain.Prediction{ID: "p"}, "")
	pipeline.NewRecorder(nil, nil).RecordBatch(context.Background(), &domain.Batch{ID: "b"}, []*domain.Prediction{{ID: "p"}})
}
