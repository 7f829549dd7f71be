// Package model loads the trained normalizer and classifier and scores
// aligned feature vectors with them.
package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/opensource-finance/cardiorisk/internal/domain"
)

// ErrDimensionMismatch is returned when a feature vector's width differs
// from the loaded artifacts.
var ErrDimensionMismatch = errors.New("feature dimension mismatch")

// Normalizer rescales feature rows the way they were rescaled for training.
type Normalizer interface {
	Transform(x [][]float64) ([][]float64, error)
	Width() int
}

// Classifier scores normalized feature rows.
type Classifier interface {
	Predict(x [][]float64) ([]int, error)
	PredictProba(x [][]float64) ([]float64, error)
	Width() int
}

// Invoker applies the normalizer and the classifier to feature vectors.
// A nil Invoker reports domain.ErrArtifactUnavailable.
type Invoker struct {
	normalizer Normalizer
	classifier  Classifier
	version     string
	fingerprint string
}

// NewInvoker checks that the normalizer and classifier agree on width.
func NewInvoker(normalizer Normalizer, classifier Classifier, version string) (*Invoker, error) {
	if normalizer == nil || classifier == nil {
		return nil, domain.ErrArtifactUnavailable
	}
	if normalizer.Width() != classifier.Width() {
		return nil, fmt.Errorf("%w: normalizer expects %d features, classifier expects %d",
			ErrDimensionMismatch, normalizer.Width(), classifier.Width())
	}
	return &Invoker{
		normalizer: normalizer,
		classifier: classifier,
		version:    version,
	}, nil
}

// Invoke scores every vector in one pass over the artifacts.
func (i *Invoker) Invoke(ctx context.Context, vectors []domain.FeatureVector) ([]domain.Score, error) {
	if i == nil {
		return nil, domain.ErrArtifactUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	width := i.Width()
	matrix := make([][]float64, len(vectors))
	for n, v := range vectors {
		if len(v.Values) != width {
			return nil, fmt.Errorf("%w: vector %d has %d features, artifacts expect %d",
				ErrDimensionMismatch, n, len(v.Values), width)
		}
		matrix[n] = v.Values
	}

	scaled, err := i.normalizer.Transform(matrix)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	labels, err := i.classifier.Predict(scaled)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	probs, err := i.classifier.PredictProba(scaled)
	if err != nil {
		return nil, fmt.Errorf("predict proba: %w", err)
	}

	scores := make([]domain.Score, len(vectors))
	for n := range scores {
		scores[n] = domain.Score{Label: labels[n], Probability: probs[n]}
	}
	return scores, nil
}

// Width returns the number of features the artifacts expect.
func (i *Invoker) Width() int {
	if i == nil {
		return 0
	}
	return i.classifier.Width()
}

// Version returns the model version.
func (i *Invoker) Version() string {
	if i == nil {
		return ""
	}
	return i.version
}

// Fingerprint identifies the artifact contents behind the invoker. It falls
// back to the version for invokers not built from Artifacts.
func (i *Invoker) Fingerprint() string {
	if i == nil {
		return ""
	}
	if i.fingerprint == "" {
		return i.version
	}
	return i.fingerprint
}
