package datasets

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// CandidateNeighbor is a precomputed, navigable neighbour of a viewpoint.
type CandidateNeighbor struct {
	Viewpoint string

	// PointID is the discretized view sector (0-35) the neighbour is seen from.
	PointID int

	// FeatureIndex selects the neighbour's vector in the per-view feature array.
	FeatureIndex int

	Distance  float64
	Heading   float64
	Elevation float64
	Position  r3.Vec
}

// CandidateTable holds the candidate neighbours of every (scan, viewpoint).
type CandidateTable struct {
	entries map[string][]CandidateNeighbor
}

// NewCandidateTable builds a table from "<scan>_<viewpoint>" keyed neighbour
// lists. Neighbours are ordered by viewpoint id.
func NewCandidateTable(raw map[string][]CandidateNeighbor) *CandidateTable {
	t := &CandidateTable{entries: make(map[string][]CandidateNeighbor, len(raw))}
	for k, ns := range raw {
		cp := append([]CandidateNeighbor(nil), ns...)
		sort.SliceStable(cp, func(i, j int) bool { return cp[i].Viewpoint < cp[j].Viewpoint })
		t.entries[k] = cp
	}
	return t
}

// LoadCandidateTable reads the JSON candidate dictionary:
//
//	{
//	  "<scan>_<viewpoint>": {
//	    "<neighbour>": [pointId, featureId, distance, heading, elevation, [x, y, z]],
//	    ...
//	  }
//	}
func LoadCandidateTable(path string) (*CandidateTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read candidate table %s: %w", path, err)
	}

	var raw map[string]map[string][]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse candidate table %s: %w", path, err)
	}

	entries := make(map[string][]CandidateNeighbor, len(raw))
	for key, neighbours := range raw {
		list := make([]CandidateNeighbor, 0, len(neighbours))
		for vp, fields := range neighbours {
			n, err := parseCandidate(vp, fields)
			if err != nil {
				return nil, fmt.Errorf("candidate %s -> %s: %w", key, vp, err)
			}
			list = append(list, n)
		}
		entries[key] = list
	}
	return NewCandidateTable(entries), nil
}

func parseCandidate(vp string, fields []json.RawMessage) (CandidateNeighbor, error) {
	if len(fields) != 6 {
		return CandidateNeighbor{}, fmt.Errorf("expected 6 fields, got %d", len(fields))
	}
	n := CandidateNeighbor{Viewpoint: vp}
	targets := []any{&n.PointID, &n.FeatureIndex, &n.Distance, &n.Heading, &n.Elevation}
	for i, target := range targets {
		if err := json.Unmarshal(fields[i], target); err != nil {
			return CandidateNeighbor{}, fmt.Errorf("field %d: %w", i, err)
		}
	}
	var pos []float64
	if err := json.Unmarshal(fields[5], &pos); err != nil {
		return CandidateNeighbor{}, fmt.Errorf("position: %w", err)
	}
	if len(pos) != 3 {
		return CandidateNeighbor{}, fmt.Errorf("position has %d components, want 3", len(pos))
	}
	n.Position = r3.Vec{X: pos[0], Y: pos[1], Z: pos[2]}
	return n, nil
}

// Neighbors returns the candidate neighbours of viewpoint in scan. The slice
// is shared and must not be modified.
func (t *CandidateTable) Neighbors(scan, viewpoint string) ([]CandidateNeighbor, bool) {
	ns, ok := t.entries[longID(scan, viewpoint)]
	return ns, ok
}

// Len returns the number of (scan, viewpoint) entries.
func (t *CandidateTable) Len() int {
	return len(t.entries)
}
