package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/cardiorisk/internal/domain"
	"github.com/opensource-finance/cardiorisk/internal/features"
	"github.com/opensource-finance/cardiorisk/internal/model"
)

// schemaReport describes the feature layout the service scores against.
type schemaReport struct {
	ModelVersion string                  `json:"modelVersion,omitempty" yaml:"modelVersion,omitempty"`
	Source       string                  `json:"source" yaml:"source"`
	Features     []string                `json:"features" yaml:"features"`
	Uncovered    []string                `json:"uncovered,omitempty" yaml:"uncovered,omitempty"`
	Encoding     *features.EncodingTable `json:"encoding" yaml:"encoding"`
}

func (a *app) schemaCommand() *cli.Command {
	return &cli.Command{
		Name:  "schema",
		Usage: "Print the training schema and categorical encoding table",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format: yaml or json",
				Value: "yaml",
			},
		},
		Action: a.schema,
	}
}

func (a *app) schema(_ context.Context, cmd *cli.Command) error {
	report, err := buildSchemaReport(a.cfg.Artifacts)
	if err != nil {
		return err
	}
	return writeSchemaReport(os.Stdout, report, cmd.String("format"))
}

// buildSchemaReport reads the encoding table and, when artifacts exist, the
// model's feature list. Without artifacts the default schema is reported.
func buildSchemaReport(ac domain.ArtifactConfig) (*schemaReport, error) {
	table := features.DefaultEncodingTable()
	if ac.EncodingFile != "" {
		var err error
		if table, err = features.LoadEncodingTable(ac.EncodingFile); err != nil {
			return nil, err
		}
	}
	encoder, err := features.NewEncoder(table)
	if err != nil {
		return nil, err
	}

	report := &schemaReport{
		Source:   "default",
		Features: features.DefaultSchemaNames(),
		Encoding: table,
	}

	art, err := model.Load(ac.Dir)
	switch {
	case errors.Is(err, domain.ErrArtifactUnavailable):
	case err != nil:
		return nil, fmt.Errorf("load model artifacts: %w", err)
	default:
		report.Source = "artifacts"
		report.ModelVersion = art.Version()
		report.Features = art.Features
	}

	schema, err := features.NewSchema(report.Features)
	if err != nil {
		return nil, err
	}
	report.Uncovered = schema.Coverage(encoder)
	return report, nil
}

func writeSchemaReport(w io.Writer, report *schemaReport, format string) error {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}
