package evaluation

import (
	"math"

	"github.com/Noofbiz/navBench/navgraph"
)

// dtwScores holds the path-shape metrics of one trajectory.
type dtwScores struct {
	DTW  float64
	NDTW float64
	SDTW float64
}

// dynamicTimeWarping aligns pred against ref over shortest-path distances.
// nDTW decays the alignment cost by margin per reference node.
func dynamicTimeWarping(d navgraph.DistanceTable, pred, ref []string, success, margin float64) (dtwScores, error) {
	rows, cols := len(pred)+1, len(ref)+1
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
		for j := range m[i] {
			m[i][j] = math.Inf(1)
		}
	}
	m[0][0] = 0

	for i := 1; i < rows; i++ {
		for j := 1; j < cols; j++ {
			cost, err := d.Lookup(pred[i-1], ref[j-1])
			if err != nil {
				return dtwScores{}, err
			}
			best := math.Min(m[i-1][j], math.Min(m[i][j-1], m[i-1][j-1]))
			m[i][j] = cost + best
		}
	}

	dtw := m[rows-1][cols-1]
	ndtw := math.Exp(-dtw / (margin * float64(len(ref))))
	return dtwScores{DTW: dtw, NDTW: ndtw, SDTW: success * ndtw}, nil
}

// coverageLengthScore is CLS: mean coverage of ref by pred, weighted by how
// close pred's length is to the expected length.
func coverageLengthScore(d navgraph.DistanceTable, pred, ref []string, margin float64) (float64, error) {
	coverage := 0.0
	for _, u := range ref {
		nearest := math.Inf(1)
		for _, v := range pred {
			dist, err := d.Lookup(u, v)
			if err != nil {
				return 0, err
			}
			nearest = math.Min(nearest, dist)
		}
		coverage += math.Exp(-nearest / margin)
	}
	coverage /= float64(len(ref))

	refLen, err := d.PathLength(ref)
	if err != nil {
		return 0, err
	}
	predLen, err := d.PathLength(pred)
	if err != nil {
		return 0, err
	}

	expected := coverage * refLen
	denom := expected + math.Abs(expected-predLen)
	if denom == 0 {
		return coverage, nil
	}
	return coverage * expected / denom, nil
}
