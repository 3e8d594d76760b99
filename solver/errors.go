package solver

import "errors"

var (
	// ErrAbstraction reports malformed input to the game abstraction:
	// wrong card counts, duplicate cards, unknown streets. Callers must
	// surface it rather than defaulting to a bucket.
	ErrAbstraction = errors.New("abstraction error")

	// ErrApproximatorUnavailable reports that a neural estimator could
	// not be constructed or produced an unusable prediction. The trainer
	// and bot degrade to the tabular path when they see it.
	ErrApproximatorUnavailable = errors.New("approximator unavailable")

	// ErrCheckpointCorrupt reports an unreadable or incompatible
	// checkpoint artifact.
	ErrCheckpointCorrupt = errors.New("checkpoint corrupt")
)
