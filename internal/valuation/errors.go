package valuation

import "errors"

var (
	// ErrInvalidInput marks a subject query that cannot be processed:
	// missing coordinates, non-positive area, out-of-range rooms.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDataUnavailable marks a failed or timed out store query.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrInsufficientData is returned only when both the comparable
	// search and the segment grid are exhausted.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrNoAggregate is returned by the grid estimator when no aggregate
	// row matches the (district, segment) pair, even after widening.
	ErrNoAggregate = errors.New("no segment aggregate")
)
