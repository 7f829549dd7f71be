package model

import (
	"fmt"
	"math"
)

// LogisticRegression is a binary linear classifier.
type LogisticRegression struct {
	Version      string    `json:"version"`
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
}

// Width returns the number of features the model expects.
func (m *LogisticRegression) Width() int {
	return len(m.Coefficients)
}

// Validate checks the model parameters.
func (m *LogisticRegression) Validate() error {
	if len(m.Coefficients) == 0 {
		return fmt.Errorf("model: coefficients are empty")
	}
	for i, c := range m.Coefficients {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("model: coefficient %d is not finite", i)
		}
	}
	if math.IsNaN(m.Intercept) || math.IsInf(m.Intercept, 0) {
		return fmt.Errorf("model: intercept is not finite")
	}
	return nil
}

// Decision returns the signed distance of each row to the decision boundary.
func (m *LogisticRegression) Decision(x [][]float64) ([]float64, error) {
	out := make([]float64, len(x))
	for i, row := range x {
		if len(row) != len(m.Coefficients) {
			return nil, fmt.Errorf("%w: row %d has %d features, model expects %d",
				ErrDimensionMismatch, i, len(row), len(m.Coefficients))
		}
		z := m.Intercept
		for j, v := range row {
			z += m.Coefficients[j] * v
		}
		out[i] = z
	}
	return out, nil
}

// Predict returns 1 for rows whose decision value is positive, else 0.
func (m *LogisticRegression) Predict(x [][]float64) ([]int, error) {
	z, err := m.Decision(x)
	if err != nil {
		return nil, err
	}
	labels := make([]int, len(z))
	for i, v := range z {
		if v > 0 {
			labels[i] = 1
		}
	}
	return labels, nil
}

// PredictProba returns the positive-class probability of each row.
func (m *LogisticRegression) PredictProba(x [][]float64) ([]float64, error) {
	z, err := m.Decision(x)
	if err != nil {
		return nil, err
	}
	p := make([]float64, len(z))
	for i, v := range z {
		p[i] = sigmoid(v)
	}
	return p, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
