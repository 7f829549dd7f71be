package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/opensource-finance/cardiorisk/internal/domain"
	"github.com/opensource-finance/cardiorisk/internal/pipeline"
	"github.com/opensource-finance/cardiorisk/internal/repository"
)

func (a *app) scoreCommand() *cli.Command {
	return &cli.Command{
		Name:      "score",
		Usage:     "Score a CSV table offline through the prediction pipeline",
		ArgsUsage: " ",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "input",
				Aliases:  []string{"i"},
				Usage:    "CSV file to score",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write results to this file instead of stdout",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format: csv or json",
				Value: "csv",
			},
			&cli.BoolFlag{
				Name:  "save",
				Usage: "Store the batch and its predictions in the configured repository",
			},
		},
		Action: a.score,
	}
}

func (a *app) score(ctx context.Context, cmd *cli.Command) error {
	format := strings.ToLower(cmd.String("format"))
	if format != "csv" && format != "json" {
		return fmt.Errorf("unsupported output format %q", format)
	}

	p, err := pipeline.Build(a.cfg.Artifacts, a.cfg.Pipeline)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	if !p.Ready() {
		return domain.ErrArtifactUnavailable
	}

	input := cmd.String("input")
	f, err := os.Open(input)
	if err != nil {
		return err
	}
	defer f.Close()

	table, err := pipeline.ReadTable(f)
	if err != nil {
		return fmt.Errorf("read %s: %w", input, err)
	}

	res, err := p.ScoreTable(ctx, table, domain.SourceCLI, filepath.Base(input))
	if err != nil {
		return err
	}

	if cmd.Bool("save") {
		if a.cfg.Repository.Driver == "none" {
			return fmt.Errorf("--save needs a repository driver")
		}
		repo, err := repository.New(a.cfg.Repository)
		if err != nil {
			return fmt.Errorf("initialize repository: %w", err)
		}
		defer repo.Close()
		pipeline.NewRecorder(repo, nil).RecordBatch(ctx, res.Batch, res.Predictions)
	}

	var out io.Writer = os.Stdout
	if path := cmd.String("output"); path != "" {
		of, err := os.Create(path)
		if err != nil {
			return err
		}
		defer of.Close()
		out = of
	}

	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		err = enc.Encode(res.Rows)
	} else {
		err = writeRowsCSV(out, res.Rows)
	}
	if err != nil {
		return fmt.Errorf("write results: %w", err)
	}

	slog.Info("table scored",
		"batch_id", res.Batch.ID,
		"input", input,
		"total", res.Batch.Total,
		"scored", res.Batch.Scored,
		"failed", res.Batch.Failed,
	)
	return nil
}

// writeRowsCSV writes scored rows as CSV. The header is the union of the row
// columns in first-seen order; missing cells are left empty.
func writeRowsCSV(w io.Writer, rows []pipeline.Row) error {
	var header []string
	seen := make(map[string]bool)
	for _, r := range rows {
		for _, c := range r.Columns {
			if !seen[c] {
				seen[c] = true
				header = append(header, c)
			}
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for _, r := range rows {
		for i, c := range header {
			record[i] = formatCell(r.Values[c])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatCell(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case []string:
		return strings.Join(v, "; ")
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case domain.RiskLevel:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}
