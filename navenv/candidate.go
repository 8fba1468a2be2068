package navenv

import (
	"fmt"

	"github.com/Noofbiz/navBench/datasets"
	"gonum.org/v1/gonum/spatial/r3"
)

// CandidateSource looks up the precomputed neighbours of a viewpoint.
// *datasets.CandidateTable implements it.
type CandidateSource interface {
	Neighbors(scan, viewpoint string) ([]datasets.CandidateNeighbor, bool)
}

// Candidate is a navigable neighbour expressed relative to the agent's gaze.
type Candidate struct {
	Scan      string
	Viewpoint string
	PointID   int
	Distance  float64

	// Heading and Elevation are relative to the current discretized gaze.
	Heading   float64
	Elevation float64

	AbsHeading   float64
	AbsElevation float64

	// Feature is the neighbour's row of the current viewpoint's feature
	// array. It shares the feature store's backing array.
	Feature []float32

	Position r3.Vec
}

// BaseGaze returns the heading and elevation of a discretized view index.
func BaseGaze(viewIndex int) (heading, elevation float64) {
	heading = float64(viewIndex%HeadingViews) * GazeStep
	elevation = float64(viewIndex/HeadingViews-1) * GazeStep
	return heading, elevation
}

// Project turns the static neighbour table of (scan, viewpoint) into
// candidates relative to viewIndex. Candidates keep the table's order.
func Project(table CandidateSource, feature [][]float32, scan, viewpoint string, viewIndex int) ([]Candidate, error) {
	neighbours, ok := table.Neighbors(scan, viewpoint)
	if !ok {
		return nil, fmt.Errorf("%w: no table entry for %s in scan %s", ErrUnknownCandidate, viewpoint, scan)
	}

	baseHeading, baseElevation := BaseGaze(viewIndex)
	out := make([]Candidate, len(neighbours))
	for i, n := range neighbours {
		if n.FeatureIndex < 0 || n.FeatureIndex >= len(feature) {
			return nil, fmt.Errorf("%w: feature index %d of %s -> %s outside %d views",
				ErrUnknownCandidate, n.FeatureIndex, viewpoint, n.Viewpoint, len(feature))
		}
		out[i] = Candidate{
			Scan:         scan,
			Viewpoint:    n.Viewpoint,
			PointID:      n.PointID,
			Distance:     n.Distance,
			Heading:      n.Heading - baseHeading,
			Elevation:    n.Elevation - baseElevation,
			AbsHeading:   n.Heading,
			AbsElevation: n.Elevation,
			Feature:      feature[n.FeatureIndex],
			Position:     n.Position,
		}
	}
	return out, nil
}
