package evaluation

import (
	"fmt"

	"github.com/Noofbiz/navBench/datasets"
)

// Reference is the ground truth of one instruction.
type Reference struct {
	Scan  string
	Path  []string
	ObjID *string
}

// References maps instruction ids to their ground truth.
type References map[string]Reference

// ReferencesFromDataset indexes every record of ds by instruction id.
func ReferencesFromDataset(ds datasets.Dataset) (References, error) {
	refs := make(References, ds.Len())
	for i := 0; i < ds.Len(); i++ {
		r, err := ds.Example(i)
		if err != nil {
			return nil, fmt.Errorf("reference %d: %w", i, err)
		}
		refs[r.InstrID] = Reference{
			Scan:  r.Scan,
			Path:  append([]string(nil), r.Path...),
			ObjID: r.ObjID,
		}
	}
	return refs, nil
}

// Prediction is an agent's trajectory for one instruction, as a list of
// segments. The first segment holds the start viewpoint.
type Prediction struct {
	InstrID    string     `json:"instr_id"`
	Trajectory [][]string `json:"trajectory"`
}

// Flatten concatenates the segments of traj.
func Flatten(traj [][]string) []string {
	n := 0
	for _, seg := range traj {
		n += len(seg)
	}
	out := make([]string, 0, n)
	for _, seg := range traj {
		out = append(out, seg...)
	}
	return out
}
