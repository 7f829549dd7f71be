package domain

import (
	"errors"
	"fmt"
)

// ErrArtifactUnavailable is returned when the classifier, normalizer or
// training schema were not loaded at startup.
var ErrArtifactUnavailable = errors.New("model artifacts not loaded")

// ValidationError reports a required field that is missing or cannot be
// coerced to its expected type or vocabulary.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// ComputationError reports a derived feature that cannot be computed from
// otherwise well-formed input, such as a ratio over a zero Age.
type ComputationError struct {
	Feature string `json:"feature"`
	Message string `json:"message"`
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("cannot compute %s: %s", e.Feature, e.Message)
}

// IsInputError reports whether err is caused by the caller's data rather than
// by the service.
func IsInputError(err error) bool {
	var ve *ValidationError
	var ce *ComputationError
	return errors.As(err, &ve) || errors.As(err, &ce)
}
