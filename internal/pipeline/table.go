package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/cardiorisk/internal/domain"
	"github.com/opensource-finance/cardiorisk/internal/metrics"
)

// Table is a parsed CSV table with a header row.
type Table struct {
	Columns []string
	Rows    []map[string]string
}

// ReadTable reads a CSV table with a header row. Cells are trimmed.
func ReadTable(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &domain.ValidationError{Message: "Uploaded file is empty"}
	}
	if err != nil {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("invalid CSV: %v", err)}
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	t := &Table{Columns: header}
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &domain.ValidationError{Message: fmt.Sprintf("invalid CSV: %v", err)}
		}
		row := make(map[string]string, len(header))
		for i, c := range header {
			row[c] = strings.TrimSpace(fields[i])
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// TableResult is a scored table.
type TableResult struct {
	Rows        []Row
	Batch       *domain.Batch
	Predictions []*domain.Prediction
}

// ScoreTable parses and scores every row of t. A row that fails to parse or
// score carries an Error column; the others carry the result columns. The
// batch summary and one prediction per scored row are returned for storage.
func (p *Pipeline) ScoreTable(ctx context.Context, t *Table, source, filename string) (*TableResult, error) {
	outcomes := make([]domain.Outcome, len(t.Rows))
	parsed := make([]domain.RawRecord, len(t.Rows))
	records := make([]domain.RawRecord, 0, len(t.Rows))
	index := make([]int, 0, len(t.Rows))

	opts := domain.ParseOptions{AllowAbsentCategoricals: true}
	for i, row := range t.Rows {
		fields := make(map[string]any, len(row))
		for k, v := range row {
			fields[k] = v
		}
		rec, err := domain.ParseRecord(fields, opts)
		if err != nil {
			outcomes[i] = domain.Outcome{Err: err}
			metrics.RowsFailed.WithLabelValues(metrics.ReasonValidation).Inc()
			continue
		}
		parsed[i] = rec
		records = append(records, rec)
		index = append(index, i)
	}

	if len(records) > 0 {
		scored, err := p.Run(ctx, records)
		if err != nil {
			return nil, err
		}
		for j, o := range scored {
			outcomes[index[j]] = o
		}
	} else if !p.Ready() {
		return nil, domain.ErrArtifactUnavailable
	}

	res := &TableResult{
		Rows: make([]Row, len(t.Rows)),
		Batch: &domain.Batch{
			ID:           uuid.New().String(),
			Filename:     filename,
			ModelVersion: p.ModelVersion(),
			Total:        len(t.Rows),
			CreatedAt:    time.Now().UTC(),
		},
	}

	for i, o := range outcomes {
		res.Rows[i] = MergeRow(t.Columns, t.Rows[i], o)
		if !o.OK() {
			res.Batch.Failed++
			continue
		}
		res.Batch.Scored++
		metrics.PredictionsTotal.WithLabelValues(source, string(o.Result.RiskLevel)).Inc()
		res.Predictions = append(res.Predictions, &domain.Prediction{
			ID:           uuid.New().String(),
			BatchID:      res.Batch.ID,
			RowIndex:     i,
			Source:       source,
			ModelVersion: res.Batch.ModelVersion,
			Record:       parsed[i],
			Result:       *o.Result,
			CreatedAt:    res.Batch.CreatedAt,
		})
	}
	return res, nil
}
