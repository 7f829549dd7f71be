package pipeline

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"

	"github.com/opensource-finance/cardiorisk/internal/domain"
)

// Column names appended to uploaded table rows.
const (
	ColRiskFactors = "Risk_Factors"
	ColPrediction  = "HeartFailure_Prediction"
	ColProbability = "Risk_Probability"
	ColRiskLevel   = "Risk_Level"
	ColError       = "Error"
)

// Assembler turns classifier scores into reported prediction results.
type Assembler struct {
	// HighRiskThreshold is the percentage above which a result is High risk.
	HighRiskThreshold float64
}

// NewAssembler creates an assembler with the default 50% threshold.
func NewAssembler() *Assembler {
	return &Assembler{
		HighRiskThreshold: 50,
	}
}

// Assemble builds the result for one row. The probability is reported in
// percent with two decimals and the risk level is decided on that value.
func (a *Assembler) Assemble(score domain.Score, factors []string) *domain.PredictionResult {
	probability := math.Round(score.Probability*100*100) / 100
	level := domain.RiskLow
	if probability > a.HighRiskThreshold {
		level = domain.RiskHigh
	}
	if factors == nil {
		factors = []string{}
	}
	return &domain.PredictionResult{
		Prediction:  score.Label,
		Probability: probability,
		RiskLevel:   level,
		RiskFactors: factors,
	}
}

// ShouldAlert returns true if the result should raise a high risk alert.
func ShouldAlert(result *domain.PredictionResult) bool {
	return result != nil && result.RiskLevel == domain.RiskHigh
}

// Row is one output table row. It marshals to a JSON object whose keys keep
// the input column order followed by the appended result columns.
type Row struct {
	Columns []string
	Values  map[string]any
}

// MergeRow appends the outcome of one record to its original table row.
// A failed row gets an Error column instead of the result columns.
func MergeRow(columns []string, original map[string]string, outcome domain.Outcome) Row {
	row := Row{
		Columns: make([]string, 0, len(columns)+4),
		Values:  make(map[string]any, len(columns)+4),
	}
	for _, c := range columns {
		row.set(c, cellValue(original[c]))
	}

	if !outcome.OK() {
		msg := "record could not be scored"
		if outcome.Err != nil {
			msg = outcome.Err.Error()
		}
		row.set(ColError, msg)
		return row
	}

	r := outcome.Result
	row.set(ColRiskFactors, r.RiskFactors)
	row.set(ColPrediction, r.Prediction)
	row.set(ColProbability, r.Probability)
	row.set(ColRiskLevel, r.RiskLevel)
	return row
}

var jsonNumber = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`)

// cellValue echoes a numeric cell as a JSON number, keeping its original
// text, and anything else as a string.
func cellValue(cell string) any {
	if jsonNumber.MatchString(cell) {
		return json.Number(cell)
	}
	return cell
}

func (r *Row) set(col string, v any) {
	if _, exists := r.Values[col]; !exists {
		r.Columns = append(r.Columns, col)
	}
	r.Values[col] = v
}

// MarshalJSON writes the row as an object in column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.Values[c])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
