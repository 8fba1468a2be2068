// Package datasets loads the static inputs of a navigation evaluation:
// episode records, goal-membership tables, precomputed candidate tables and
// per-view feature batches.
//
// Everything returned from this package is immutable after loading. Callers
// that need their own ordering (the batched environment, for example) take a
// copy with Records and shuffle that.
//
// Layout and intended usage:
//
// EpisodeDataset
//   - Loaded from a .json, .yaml or .yml file holding a list of episodes.
//   - One record per instruction: scan, reference path, initial heading,
//     optional target object id and optional path id.
//   - Split reproduces the validation sharding used when several workers
//     evaluate disjoint parts of one split.
//
// GoalTable
//   - "<scan>_<objid>" -> acceptable goal viewpoints (multi-goal success).
//
// CandidateTable
//   - "<scan>_<viewpoint>" -> navigable neighbours with their view sector,
//     feature index, distance, heading, elevation and position.
//
// FeatureBatchFlat
//   - Contiguous [batch][views][dim] buffer convertible to a gomlx tensor.
package datasets

// Dataset is the indexed view over episode records consumed by the
// evaluator.
type Dataset interface {
	Len() int
	Example(i int) (EpisodeRecord, error)
	Batch(indices []int) ([]EpisodeRecord, error)
	Shuffle(seed int64)
}

var _ Dataset = (*EpisodeDataset)(nil)
