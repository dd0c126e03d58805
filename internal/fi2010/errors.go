package fi2010

import "errors"

// Failure modes of the dataset pipeline. All are fatal: operations either
// succeed fully or fail outright, there is nothing to retry.
var (
	// ErrInvalidShape reports a raw matrix that cannot hold the expected
	// 40 feature rows plus 5 label rows, or matrices whose dimensions
	// disagree where they must match.
	ErrInvalidShape = errors.New("fi2010: invalid matrix shape")

	// ErrInvalidWindow reports a window length that is non-positive or
	// longer than the available time steps.
	ErrInvalidWindow = errors.New("fi2010: invalid window length")

	// ErrInvalidHorizon reports a prediction horizon index outside [0,5).
	ErrInvalidHorizon = errors.New("fi2010: invalid horizon index")

	// ErrInvalidLabel reports a raw label value outside the categorical
	// set {1,2,3}. Out-of-range labels are never clamped.
	ErrInvalidLabel = errors.New("fi2010: invalid label value")
)
