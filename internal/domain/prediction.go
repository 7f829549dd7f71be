package domain

import "time"

// RiskLevel is the coarse risk bucket reported with every prediction.
type RiskLevel string

const (
	RiskHigh RiskLevel = "High"
	RiskLow  RiskLevel = "Low"
)

// PredictionResult is the scored outcome for one record.
type PredictionResult struct {
	Prediction  int       `json:"prediction"`
	Probability float64   `json:"probability"` // percent, two decimals
	RiskLevel   RiskLevel `json:"risk_level"`
	RiskFactors []string  `json:"risk_factors"`
}

// EncodedRow maps column names to numeric values after feature engineering
// and categorical encoding, before schema alignment.
type EncodedRow map[string]float64

// FeatureVector is a record aligned to the training schema.
// Names[i] is the schema column that Values[i] holds.
type FeatureVector struct {
	Names  []string  `json:"names"`
	Values []float64 `json:"values"`
}

// Score is the classifier's raw output for one feature vector.
type Score struct {
	Label       int     `json:"label"`
	Probability float64 `json:"probability"` // positive-class probability in [0,1]
}

// Outcome is the per-row result of a pipeline run.
// Exactly one of Result and Err is set.
type Outcome struct {
	Result *PredictionResult
	Vector *FeatureVector
	Err    error
}

// OK reports whether the row was scored.
func (o Outcome) OK() bool {
	return o.Err == nil && o.Result != nil
}

// Prediction is a stored prediction.
type Prediction struct {
	ID           string           `json:"id"`
	BatchID      string           `json:"batchId,omitempty"`
	RowIndex     int              `json:"rowIndex"`
	Source       string           `json:"source"` // api, upload, worker, cli
	ModelVersion string           `json:"modelVersion"`
	Record       RawRecord        `json:"record"`
	Result       PredictionResult `json:"result"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// Batch is a stored table upload.
type Batch struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	ModelVersion string    `json:"modelVersion"`
	Total        int       `json:"total"`
	Scored       int       `json:"scored"`
	Failed       int       `json:"failed"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Prediction sources.
const (
	SourceAPI    = "api"
	SourceUpload = "upload"
	SourceWorker = "worker"
	SourceCLI    = "cli"
)
