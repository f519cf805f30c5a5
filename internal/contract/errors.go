package contract

import (
	"github.com/cockroachdb/errors"
)

// Error taxonomy. Callers test for these with errors.Is.
var (
	// ErrDataValidation marks a raw event that failed validation.
	ErrDataValidation = errors.New("data validation failed")

	// ErrInsufficientHistory marks a series too short for the requested model.
	ErrInsufficientHistory = errors.New("insufficient history")

	// ErrModelFit marks a numeric failure while fitting or predicting.
	ErrModelFit = errors.New("model fit failed")

	// ErrCacheComputation marks a failed computation behind the result cache.
	ErrCacheComputation = errors.New("cache computation failed")
)

// NewDataValidationError builds a validation failure for one subscriber.
func NewDataValidationError(subscriberID, reason string) error {
	return errors.Mark(errors.Newf("event for subscriber %q rejected: %s", subscriberID, reason), ErrDataValidation)
}

// NewInsufficientHistoryError reports how many points a model needed.
func NewInsufficientHistoryError(model string, have, need int) error {
	return errors.Mark(errors.Newf("%s needs at least %d points, series has %d", model, need, have), ErrInsufficientHistory)
}

// NewModelFitError wraps a numeric failure of a model.
func NewModelFitError(model string, cause error) error {
	if cause == nil {
		cause = errors.New("non-finite result")
	}
	return errors.Mark(errors.Wrapf(cause, "%s fit", model), ErrModelFit)
}

// NewCacheComputationError wraps the failure of a cached computation.
func NewCacheComputationError(key string, cause error) error {
	return errors.Mark(errors.Wrapf(cause, "computing %s", key), ErrCacheComputation)
}
