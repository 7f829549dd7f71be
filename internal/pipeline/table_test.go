package pipeline_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/cardiorisk/internal/domain"
	"github.com/opensource-finance/cardiorisk/internal/pipeline"
	"github.com/opensource-finance/cardiorisk/internal/pipeline/pipelinetest"
)

const heartHeader = "Age,Sex,ChestPainType,RestingBP,Cholesterol,FastingBS,RestingECG,MaxHR,ExerciseAngina,Oldpeak,ST_Slope\n"

func TestReadTable(t *testing.T) {
	t.Run("TrimsHeaderAndCells", func(t *testing.T) {
		table, err := pipeline.ReadTable(strings.NewReader("\ufeffAge, Sex\n 40 ,M\n"))
		require.NoError(t, err)
		assert.Equal(t, []string{"Age", "Sex"}, table.Columns)
		require.Len(t, table.Rows, 1)
		assert.Equal(t, "40", table.Rows[0]["Age"])
		assert.Equal(t, "M", table.Rows[0]["Sex"])
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := pipeline.ReadTable(strings.NewReader(""))
		require.Error(t, err)
		assert.True(t, domain.IsInputError(err))
		assert.Equal(t, "Uploaded file is empty", err.Error())
	})

	t.Run("HeaderOnly", func(t *testing.T) {
		table, err := pipeline.ReadTable(strings.NewReader("Age,Sex\n"))
		require.NoError(t, err)
		assert.Empty(t, table.Rows)
	})

	t.Run("Ragged", func(t *testing.T) {
		_, err := pipeline.ReadTable(strings.NewReader("Age,Sex\n40\n"))
		require.Error(t, err)
		assert.True(t, domain.IsInputError(err))
		assert.Contains(t, err.Error(), "invalid CSV")
	})
}

func TestScoreTable(t *testing.T) {
	p := pipelinetest.New(t)

	csv := heartHeader +
		"63,M,ASY,145,320,1,Normal,110,Y,2.5,Flat\n" +
		"0,F,ATA,120,180,0,Normal,170,N,0,Up\n" +
		"40,F,ATA,120,180,0,Normal,170,N,0,Up\n"
	table, err := pipeline.ReadTable(strings.NewReader(csv))
	require.NoError(t, err)

	res, err := p.ScoreTable(context.Background(), table, domain.SourceCLI, "heart.csv")
	require.NoError(t, err)

	require.Len(t, res.Rows, 3)
	assert.Equal(t, 3, res.Batch.Total)
	assert.Equal(t, 2, res.Batch.Scored)
	assert.Equal(t, 1, res.Batch.Failed)
	assert.Equal(t, "heart.csv", res.Batch.Filename)
	assert.Equal(t, pipelinetest.ModelVersion, res.Batch.ModelVersion)

	assert.Equal(t, domain.RiskHigh, res.Rows[0].Values[pipeline.ColRiskLevel])
	assert.Contains(t, res.Rows[1].Values, pipeline.ColError)
	assert.NotContains(t, res.Rows[1].Values, pipeline.ColRiskLevel)
	assert.Equal(t, domain.RiskLow, res.Rows[2].Values[pipeline.ColRiskLevel])

	// Input columns come first, in input order.
	assert.Equal(t, table.Columns, res.Rows[0].Columns[:len(table.Columns)])

	require.Len(t, res.Predictions, 2)
	assert.Equal(t, 0, res.Predictions[0].RowIndex)
	assert.Equal(t, 2, res.Predictions[1].RowIndex)
	for _, pr := range res.Predictions {
		assert.Equal(t, res.Batch.ID, pr.BatchID)
		assert.Equal(t, domain.SourceCLI, pr.Source)
	}
	assert.Equal(t, 63.0, res.Predictions[0].Record.Age)
}

func TestScoreTableMissingValue(t *testing.T) {
	p := pipelinetest.New(t)

	csv := heartHeader +
		"63,M,ASY,145,320,1,Normal,110,Y,2.5,Flat\n" +
		"55,M,ASY,,250,0,Normal,120,N,0.5,Up\n" +
		"40,F,ATA,120,180,0,Normal,170,N,0,Up\n"
	table, err := pipeline.ReadTable(strings.NewReader(csv))
	require.NoError(t, err)

	res, err := p.ScoreTable(context.Background(), table, domain.SourceUpload, "heart.csv")
	require.NoError(t, err)

	require.Len(t, res.Rows, 3)
	assert.Equal(t, 2, res.Batch.Scored)
	assert.Equal(t, 1, res.Batch.Failed)

	assert.Equal(t, "RestingBP is required", res.Rows[1].Values[pipeline.ColError])
	assert.NotContains(t, res.Rows[1].Values, pipeline.ColPrediction)
	assert.Equal(t, "", res.Rows[1].Values[domain.FieldRestingBP])

	assert.Contains(t, res.Rows[0].Values, pipeline.ColRiskLevel)
	assert.Contains(t, res.Rows[2].Values, pipeline.ColRiskLevel)
	require.Len(t, res.Predictions, 2)
	assert.Equal(t, 2, res.Predictions[1].RowIndex)
}

func TestScoreTableWithoutModel(t *testing.T) {
	p := pipelinetest.NewUnloaded(t)

	table, err := pipeline.ReadTable(strings.NewReader(heartHeader + "63,M,ASY,145,320,1,Normal,110,Y,2.5,Flat\n"))
	require.NoError(t, err)

	_, err = p.ScoreTable(context.Background(), table, domain.SourceUpload, "heart.csv")
	assert.ErrorIs(t, err, domain.ErrArtifactUnavailable)
}
