package navenv

import (
	"fmt"

	"github.com/Noofbiz/navBench/datasets"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"gonum.org/v1/gonum/spatial/r3"
)

// Mode selects what an observation carries.
type Mode int

const (
	// ModeSimulated runs against a dataset with reference paths.
	ModeSimulated Mode = iota

	// ModeRealWorld is a pose-only feed: batch size 1 and no ground truth.
	ModeRealWorld
)

func (m Mode) String() string {
	switch m {
	case ModeSimulated:
		return "simulated"
	case ModeRealWorld:
		return "real-world"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode maps "simulated" and "real-world" (or "real") to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "simulated", "sim":
		return ModeSimulated, nil
	case "real-world", "real", "realworld":
		return ModeRealWorld, nil
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// Action is one slot's move: a navigable index plus heading and elevation
// deltas in radians.
type Action struct {
	Index     int
	Heading   float64
	Elevation float64
}

// GroundTruth holds the reference fields of a simulated observation.
type GroundTruth struct {
	Path []string

	// Distance is the shortest-path distance from the current viewpoint to
	// the reference goal.
	Distance float64
}

// Observation is one slot's snapshot after a reset or step.
type Observation struct {
	Mode Mode

	InstrID     string
	Instruction string
	PathID      *int

	Scan      string
	Viewpoint string
	ViewIndex int
	Position  r3.Vec
	Heading   float64
	Elevation float64

	Feature    [][]float32
	Candidates []Candidate
	Navigable  []string

	// GroundTruth is nil in ModeRealWorld.
	GroundTruth *GroundTruth
}

// ObservationBatch holds one observation per slot, in slot order.
type ObservationBatch []Observation

// FeatureTensor stacks the view features of every slot into a
// [Batch, Views, Dim] tensor.
func (b ObservationBatch) FeatureTensor() (*tensors.Tensor, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty observation batch", ErrBatchSize)
	}
	features := make([][][]float32, len(b))
	for i, obs := range b {
		features[i] = obs.Feature
	}
	flat, err := datasets.MakeFeatureBatchFlat(features)
	if err != nil {
		return nil, err
	}
	return flat.ToGomlxTensor()
}

// CandidateFeatureTensor stacks candidate features into a
// [Batch, MaxCandidates, Dim] tensor, zero padded. counts[i] is the number of
// real candidates of slot i.
func (b ObservationBatch) CandidateFeatureTensor() (t *tensors.Tensor, counts []int, err error) {
	maxCands, dim := 0, 0
	counts = make([]int, len(b))
	for i, obs := range b {
		counts[i] = len(obs.Candidates)
		if counts[i] > maxCands {
			maxCands = counts[i]
		}
		for _, c := range obs.Candidates {
			if dim == 0 {
				dim = len(c.Feature)
			} else if len(c.Feature) != dim {
				return nil, nil, fmt.Errorf("inconsistent candidate feature dimension in slot %d: expected %d, got %d",
					i, dim, len(c.Feature))
			}
		}
	}
	if maxCands == 0 || dim == 0 {
		return nil, nil, fmt.Errorf("%w: no candidate features in batch", ErrBatchSize)
	}

	padded := make([][][]float32, len(b))
	for i, obs := range b {
		padded[i] = make([][]float32, maxCands)
		for j := range padded[i] {
			if j < len(obs.Candidates) {
				padded[i][j] = obs.Candidates[j].Feature
			} else {
				padded[i][j] = make([]float32, dim)
			}
		}
	}
	flat, err := datasets.MakeFeatureBatchFlat(padded)
	if err != nil {
		return nil, nil, err
	}
	t, err = flat.ToGomlxTensor()
	return t, counts, err
}
