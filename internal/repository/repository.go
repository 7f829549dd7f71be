// Package repository provides prediction history persistence.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/opensource-finance/cardiorisk/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SavePrediction stores a scored record.
func (r *SQLRepository) SavePrediction(ctx context.Context, p *domain.Prediction) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("%w: prediction id is required", ErrInvalidInput)
	}

	record, err := json.Marshal(p.Record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	factors, err := json.Marshal(p.Result.RiskFactors)
	if err != nil {
		return fmt.Errorf("encode risk factors: %w", err)
	}

	query := `
		INSERT INTO predictions (
			id, batch_id, row_index, source, model_version, record,
			prediction, probability, risk_level, risk_factors, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		p.ID, nullString(p.BatchID), p.RowIndex, p.Source, p.ModelVersion, string(record),
		p.Result.Prediction, p.Result.Probability, string(p.Result.RiskLevel), string(factors),
		p.CreatedAt,
	)
	return err
}

// GetPrediction retrieves a prediction by ID.
func (r *SQLRepository) GetPrediction(ctx context.Context, id string) (*domain.Prediction, error) {
	query := `
		SELECT id, batch_id, row_index, source, model_version, record,
			   prediction, probability, risk_level, risk_factors, created_at
		FROM predictions
		WHERE id = ?
	`

	p, err := scanPrediction(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// ListPredictionsByBatch retrieves the predictions of a batch in row order.
func (r *SQLRepository) ListPredictionsByBatch(ctx context.Context, batchID string) ([]*domain.Prediction, error) {
	query := `
		SELECT id, batch_id, row_index, source, model_version, record,
			   prediction, probability, risk_level, risk_factors, created_at
		FROM predictions
		WHERE batch_id = ?
		ORDER BY row_index
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var predictions []*domain.Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		predictions = append(predictions, p)
	}

	return predictions, rows.Err()
}

// SaveBatch stores an upload summary.
func (r *SQLRepository) SaveBatch(ctx context.Context, b *domain.Batch) error {
	if b == nil || b.ID == "" {
		return fmt.Errorf("%w: batch id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO batches (
			id, filename, model_version, total, scored, failed, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		b.ID, b.Filename, b.ModelVersion, b.Total, b.Scored, b.Failed, b.CreatedAt,
	)
	return err
}

// GetBatch retrieves an upload summary by ID.
func (r *SQLRepository) GetBatch(ctx context.Context, id string) (*domain.Batch, error) {
	query := `
		SELECT id, filename, model_version, total, scored, failed, created_at
		FROM batches
		WHERE id = ?
	`

	var b domain.Batch
	err := r.db.QueryRowContext(ctx, r.rebind(query), id).Scan(
		&b.ID, &b.Filename, &b.ModelVersion, &b.Total, &b.Scored, &b.Failed, &b.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPrediction(s scanner) (*domain.Prediction, error) {
	var p domain.Prediction
	var batchID sql.NullString
	var record, factors, level string

	if err := s.Scan(
		&p.ID, &batchID, &p.RowIndex, &p.Source, &p.ModelVersion, &record,
		&p.Result.Prediction, &p.Result.Probability, &level, &factors,
		&p.CreatedAt,
	); err != nil {
		return nil, err
	}

	p.BatchID = batchID.String
	p.Result.RiskLevel = domain.RiskLevel(level)
	if err := json.Unmarshal([]byte(record), &p.Record); err != nil {
		return nil, fmt.Errorf("failed to parse stored record %s: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(factors), &p.Result.RiskFactors); err != nil {
		return nil, fmt.Errorf("failed to parse stored risk factors %s: %w", p.ID, err)
	}
	if p.Result.RiskFactors == nil {
		p.Result.RiskFactors = []string{}
	}
	return &p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}
