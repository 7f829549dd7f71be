package repository

// Schema definitions for the CardioRisk database.
// Compatible with both SQLite and PostgreSQL.

const schemaPredictions = `
CREATE TABLE IF NOT EXISTS predictions (
    id TEXT PRIMARY KEY,
    batch_id TEXT,
    row_index INTEGER NOT NULL DEFAULT 0,
    source TEXT NOT NULL,
    model_version TEXT NOT NULL,
    record TEXT NOT NULL,
    prediction INTEGER NOT NULL,
    probability REAL NOT NULL,
    risk_level TEXT NOT NULL,
    risk_factors TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_predictions_batch ON predictions(batch_id, row_index);
CREATE INDEX IF NOT EXISTS idx_predictions_created ON predictions(created_at);
CREATE INDEX IF NOT EXISTS idx_predictions_risk ON predictions(risk_level);
`

const schemaBatches = `
CREATE TABLE IF NOT EXISTS batches (
    id TEXT PRIMARY KEY,
    filename TEXT NOT NULL,
    model_version TEXT NOT NULL,
    total INTEGER NOT NULL,
    scored INTEGER NOT NULL,
    failed INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_batches_created ON batches(created_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaBatches,
		schemaPredictions,
	}
}
