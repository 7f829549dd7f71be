package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/cardiorisk/internal/api"
	"github.com/opensource-finance/cardiorisk/internal/domain"
	"github.com/opensource-finance/cardiorisk/internal/model"
	"github.com/opensource-finance/cardiorisk/internal/pipeline"
	"github.com/opensource-finance/cardiorisk/internal/pipeline/pipelinetest"
)

const (
	heartColumns = "Age,Sex,ChestPainType,RestingBP,Cholesterol,FastingBS,RestingECG,MaxHR,ExerciseAngina,Oldpeak,ST_Slope"
	highRiskRow  = "63,M,ASY,145,320,1,Normal,110,Y,2.5,Flat"
	lowRiskRow   = "40,F,ATA,120,180,0,Normal,170,N,0,Up"
	zeroAgeRow   = "0,F,ATA,120,180,0,Normal,170,N,0,Up"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestScoreCommand(t *testing.T) {
	dir := t.TempDir()
	artifacts := filepath.Join(dir, "models")
	require.NoError(t, model.Save(artifacts, pipelinetest.Artifacts()))

	dbPath := filepath.Join(dir, "history.db")
	cfgPath := writeFile(t, dir, "config.yaml", fmt.Sprintf(`
artifacts:
  dir: %s
repository:
  driver: sqlite
  sqlitePath: %s
`, artifacts, dbPath))
	input := writeFile(t, dir, "heart.csv", heartColumns+"\n"+highRiskRow+"\n"+zeroAgeRow+"\n")

	t.Run("CSV", func(t *testing.T) {
		output := filepath.Join(dir, "scored.csv")
		err := newApp().Run(context.Background(), []string{
			"cardiorisk", "--config", cfgPath,
			"score", "--input", input, "--output", output, "--save",
		})
		require.NoError(t, err)

		f, err := os.Open(output)
		require.NoError(t, err)
		defer f.Close()
		lines, err := csv.NewReader(f).ReadAll()
		require.NoError(t, err)

		require.Len(t, lines, 3)
		header := lines[0]
		assert.Equal(t, strings.Split(heartColumns, ","), header[:11])
		assert.Equal(t, []string{
			pipeline.ColRiskFactors, pipeline.ColPrediction, pipeline.ColProbability,
			pipeline.ColRiskLevel, pipeline.ColError,
		}, header[11:])

		assert.Equal(t, "1", lines[1][12])
		assert.Equal(t, "High", lines[1][14])
		assert.Empty(t, lines[1][15])
		assert.Empty(t, lines[2][14])
		assert.NotEmpty(t, lines[2][15])

		_, err = os.Stat(dbPath)
		assert.NoError(t, err)
	})

	t.Run("JSON", func(t *testing.T) {
		output := filepath.Join(dir, "scored.json")
		err := newApp().Run(context.Background(), []string{
			"cardiorisk", "--config", cfgPath,
			"score", "--input", input, "--output", output, "--format", "json",
		})
		require.NoError(t, err)

		data, err := os.ReadFile(output)
		require.NoError(t, err)
		var rows []map[string]any
		require.NoError(t, json.Unmarshal(data, &rows))
		require.Len(t, rows, 2)
		assert.Equal(t, "High", rows[0][pipeline.ColRiskLevel])
		assert.Contains(t, rows[1], pipeline.ColError)
	})

	t.Run("UnknownFormat", func(t *testing.T) {
		err := newApp().Run(context.Background(), []string{
			"cardiorisk", "--config", cfgPath,
			"score", "--input", input, "--format", "xml",
		})
		assert.Error(t, err)
	})

	t.Run("NoModel", func(t *testing.T) {
		empty := writeFile(t, dir, "empty.yaml", fmt.Sprintf("artifacts:\n  dir: %s\n", filepath.Join(dir, "missing")))
		err := newApp().Run(context.Background(), []string{
			"cardiorisk", "--config", empty,
			"score", "--input", input,
		})
		assert.ErrorIs(t, err, domain.ErrArtifactUnavailable)
	})
}

func TestWriteRowsCSV(t *testing.T) {
	columns := []string{"Age", "Sex"}
	rows := []pipeline.Row{
		pipeline.MergeRow(columns, map[string]string{"Age": "63", "Sex": "M"}, domain.Outcome{
			Result: &domain.PredictionResult{
				Prediction:  1,
				Probability: 87.5,
				RiskLevel:   domain.RiskHigh,
				RiskFactors: []string{"High BP (160 mm Hg)", "Abnormal ST Slope (Flat)"},
			},
		}),
		pipeline.MergeRow(columns, map[string]string{"Age": "0", "Sex": "F"}, domain.Outcome{
			Err: errors.New("bad age"),
		}),
	}

	var buf bytes.Buffer
	require.NoError(t, writeRowsCSV(&buf, rows))

	want := "Age,Sex,Risk_Factors,HeartFailure_Prediction,Risk_Probability,Risk_Level,Error\n" +
		"63,M,High BP (160 mm Hg); Abnormal ST Slope (Flat),1,87.5,High,\n" +
		"0,F,,,,,bad age\n"
	assert.Equal(t, want, buf.String())
}

func TestSchemaReport(t *testing.T) {
	t.Run("Default", func(t *testing.T) {
		report, err := buildSchemaReport(domain.ArtifactConfig{Dir: filepath.Join(t.TempDir(), "missing")})
		require.NoError(t, err)
		assert.Equal(t, "default", report.Source)
		assert.Empty(t, report.ModelVersion)
		assert.Len(t, report.Features, 19)
		assert.Empty(t, report.Uncovered)
		assert.Equal(t, "heart-v1", report.Encoding.Version)
	})

	t.Run("Artifacts", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, model.Save(dir, pipelinetest.Artifacts()))

		report, err := buildSchemaReport(domain.ArtifactConfig{Dir: dir})
		require.NoError(t, err)
		assert.Equal(t, "artifacts", report.Source)
		assert.Equal(t, pipelinetest.ModelVersion, report.ModelVersion)
		assert.Equal(t, pipelinetest.Artifacts().Features, report.Features)
	})

	t.Run("Formats", func(t *testing.T) {
		report, err := buildSchemaReport(domain.ArtifactConfig{Dir: t.TempDir()})
		require.NoError(t, err)

		var y bytes.Buffer
		require.NoError(t, writeSchemaReport(&y, report, "yaml"))
		assert.Contains(t, y.String(), "version: heart-v1")
		assert.Contains(t, y.String(), "- Cholesterol")

		var j bytes.Buffer
		require.NoError(t, writeSchemaReport(&j, report, "json"))
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(j.Bytes(), &decoded))
		assert.Equal(t, "default", decoded["source"])

		assert.Error(t, writeSchemaReport(&j, report, "toml"))
	})
}

func TestReadLabelled(t *testing.T) {
	body := heartColumns + ",HeartDisease\n" +
		highRiskRow + ",1\n" +
		lowRiskRow + ",0\n" +
		lowRiskRow + ",?\n" +
		highRiskRow + ",0\n"

	records, err := readLabelled(strings.NewReader(body), 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.True(t, records[0].Disease)
	assert.False(t, records[1].Disease)
	assert.NotContains(t, records[0].Fields, labelColumn)
	assert.Equal(t, "63", records[0].Fields["Age"])

	limited, err := readLabelled(strings.NewReader(body), 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	_, err = readLabelled(strings.NewReader(heartColumns+"\n"+highRiskRow+"\n"), 0)
	assert.Error(t, err)
}

func TestBenchmarkScores(t *testing.T) {
	m := &benchMetrics{TruePositives: 8, FalsePositives: 2, TrueNegatives: 6, FalseNegatives: 4}
	s := m.scores()
	assert.InDelta(t, 0.8, s.Precision, 1e-9)
	assert.InDelta(t, 8.0/12.0, s.Recall, 1e-9)
	assert.InDelta(t, 2*0.8*(8.0/12.0)/(0.8+8.0/12.0), s.F1, 1e-9)
	assert.InDelta(t, 0.7, s.Accuracy, 1e-9)

	assert.Equal(t, benchScores{}, (&benchMetrics{}).scores())
}

func TestRunBenchmark(t *testing.T) {
	srv := api.NewServer(domain.ServerConfig{Host: "localhost", Port: 5000, MaxUploadBytes: 1 << 20}, api.Deps{
		Pipeline: pipelinetest.New(t),
		Version:  "test",
	})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	ctx := context.Background()
	client := ts.Client()
	require.NoError(t, checkHealth(ctx, client, ts.URL))

	body := heartColumns + ",HeartDisease\n" +
		highRiskRow + ",1\n" + // TP
		lowRiskRow + ",1\n" + // FN
		lowRiskRow + ",0\n" + // TN
		highRiskRow + ",0\n" + // FP
		zeroAgeRow + ",0\n" // rejected
	records, err := readLabelled(strings.NewReader(body), 0)
	require.NoError(t, err)

	var verbose bytes.Buffer
	m := runBenchmark(ctx, client, records, ts.URL, 3, &verbose)

	assert.Equal(t, int64(5), m.TotalProcessed)
	assert.Equal(t, int64(1), m.TotalErrors)
	assert.Equal(t, int64(1), m.TruePositives)
	assert.Equal(t, int64(1), m.FalseNegatives)
	assert.Equal(t, int64(1), m.TrueNegatives)
	assert.Equal(t, int64(1), m.FalsePositives)
	assert.Equal(t, int64(2), m.TotalDisease)
	assert.Equal(t, int64(2), m.TotalHealthy)
	assert.Contains(t, verbose.String(), "status 400")

	var out bytes.Buffer
	printBenchmarkResults(&out, m, 0)
	assert.Contains(t, out.String(), "Accuracy:   0.5000")
}
