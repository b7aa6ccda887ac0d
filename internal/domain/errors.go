package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation signals invalid or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrProcessing signals a failure inside the embedding pipeline.
	ErrProcessing = errors.New("processing failed")
)

// DimensionMismatchError wraps ErrProcessing when a model reports a vector
// width different from the configured one. This is a configuration fault and
// is never corrected silently.
type DimensionMismatchError struct {
	Model    string
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("model %q reported dimension %d, expected %d", e.Model, e.Actual, e.Expected)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrProcessing }

// NewDimensionMismatch creates a dimension mismatch error.
func NewDimensionMismatch(model string, expected, actual int) error {
	return &DimensionMismatchError{Model: model, Expected: expected, Actual: actual}
}

// LoadTimeoutError wraps ErrProcessing when a model load exceeds its deadline.
// The load is retryable: the owner reverts to the unloaded state afterwards.
type LoadTimeoutError struct {
	Model   string
	Timeout time.Duration
}

func (e *LoadTimeoutError) Error() string {
	return fmt.Sprintf("loading model %q timed out after %s", e.Model, e.Timeout)
}

func (e *LoadTimeoutError) Unwrap() error { return ErrProcessing }

// NewLoadTimeout creates a model load timeout error.
func NewLoadTimeout(model string, timeout time.Duration) error {
	return &LoadTimeoutError{Model: model, Timeout: timeout}
}
