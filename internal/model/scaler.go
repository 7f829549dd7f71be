package model

import "fmt"

// StandardScaler standardizes features with the training mean and scale.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Width returns the number of features the scaler expects.
func (s *StandardScaler) Width() int {
	return len(s.Mean)
}

// Validate checks the scaler parameters.
func (s *StandardScaler) Validate() error {
	if len(s.Mean) == 0 {
		return fmt.Errorf("scaler: mean is empty")
	}
	if len(s.Mean) != len(s.Scale) {
		return fmt.Errorf("scaler: mean has %d values, scale has %d", len(s.Mean), len(s.Scale))
	}
	return nil
}

// Transform returns (x - mean) / scale for every row. A zero scale is
// treated as 1, matching how constant training columns are stored.
func (s *StandardScaler) Transform(x [][]float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i, row := range x {
		if len(row) != len(s.Mean) {
			return nil, fmt.Errorf("%w: row %d has %d features, scaler expects %d",
				ErrDimensionMismatch, i, len(row), len(s.Mean))
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			scale := s.Scale[j]
			if scale == 0 {
				scale = 1
			}
			scaled[j] = (v - s.Mean[j]) / scale
		}
		out[i] = scaled
	}
	return out, nil
}
