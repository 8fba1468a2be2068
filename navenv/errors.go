package navenv

import "errors"

var (
	// ErrUnknownCandidate is returned when the candidate table has no entry
	// for a visited viewpoint, or an entry points outside the feature array.
	ErrUnknownCandidate = errors.New("navenv: unknown candidate")

	// ErrUnknownFeature is returned by a FeatureStore with no features for
	// the requested viewpoint.
	ErrUnknownFeature = errors.New("navenv: unknown feature")

	// ErrInvalidAction is returned when an action names a navigable index the
	// simulator does not offer.
	ErrInvalidAction = errors.New("navenv: invalid action")

	// ErrActionCount is returned by Step when the number of actions differs
	// from the number of live slots.
	ErrActionCount = errors.New("navenv: action count does not match batch")

	// ErrNotReset is returned by Step before the first Reset.
	ErrNotReset = errors.New("navenv: batch has not been reset")

	// ErrBatchSize is returned for batch sizes the orchestrator cannot serve.
	ErrBatchSize = errors.New("navenv: invalid batch size")
)
