// Package domain defines the core interfaces and types for CardioRisk.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for prediction history persistence.
type Repository interface {
	// Prediction operations
	SavePrediction(ctx context.Context, p *Prediction) error
	GetPrediction(ctx context.Context, id string) (*Prediction, error)
	ListPredictionsByBatch(ctx context.Context, batchID string) ([]*Prediction, error)

	// Batch operations
	SaveBatch(ctx context.Context, b *Batch) error
	GetBatch(ctx context.Context, id string) (*Batch, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite", "postgres" or "none"
	Driver string `json:"driver" mapstructure:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" mapstructure:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" mapstructure:"postgresHost"`
	PostgresPort     int    `json:"postgresPort" mapstructure:"postgresPort"`
	PostgresUser     string `json:"postgresUser" mapstructure:"postgresUser"`
	PostgresPassword string `json:"-" mapstructure:"postgresPassword"`
	PostgresDB       string `json:"postgresDb" mapstructure:"postgresDb"`
	PostgresSSLMode  string `json:"postgresSslMode" mapstructure:"postgresSslMode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns" mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" mapstructure:"connMaxLifetime"`
}
