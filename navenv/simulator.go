package navenv

import (
	"errors"
	"fmt"
	"math"

	"github.com/Noofbiz/navBench/navgraph"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// HeadingViews is the number of discretized headings per elevation band.
	HeadingViews = 12

	// ViewCount is the number of discretized view indices (3 bands of 12).
	ViewCount = 3 * HeadingViews

	// GazeStep is the angular size of one heading sector or elevation band.
	GazeStep = math.Pi / 6
)

// State is the raw pose of one simulator handle.
type State struct {
	Scan      string
	Viewpoint string

	// ViewIndex is the discretized (heading, elevation) orientation, 0-35.
	ViewIndex int

	Position  r3.Vec
	Heading   float64
	Elevation float64

	// Navigable lists the viewpoints reachable in one action. Index 0 is the
	// current viewpoint (turn in place).
	Navigable []string
}

// Simulator is one episode slot's handle on the environment.
type Simulator interface {
	NewEpisode(scan, viewpoint string, heading float64) error
	State() (State, error)

	// MakeAction moves to Navigable[index] and turns by the given heading and
	// elevation deltas, in radians.
	MakeAction(index int, heading, elevation float64) error
}

// GraphSimulator is a Simulator that walks the navigation graph of an Index.
// It has no renderer; positions come from the connectivity data.
type GraphSimulator struct {
	index   *navgraph.Index
	state   State
	started bool
}

// NewGraphSimulator returns a simulator over index.
func NewGraphSimulator(index *navgraph.Index) *GraphSimulator {
	return &GraphSimulator{index: index}
}

// NewGraphSimulators returns n independent simulators sharing index.
func NewGraphSimulators(index *navgraph.Index, n int) []Simulator {
	sims := make([]Simulator, n)
	for i := range sims {
		sims[i] = NewGraphSimulator(index)
	}
	return sims
}

func (s *GraphSimulator) NewEpisode(scan, viewpoint string, heading float64) error {
	if s.index == nil {
		return errors.New("graph simulator has no index")
	}
	st, err := s.place(scan, viewpoint)
	if err != nil {
		return err
	}
	st.Heading = wrapHeading(heading)
	st.Elevation = 0
	st.ViewIndex = viewIndex(st.Heading, st.Elevation)
	s.state = st
	s.started = true
	return nil
}

func (s *GraphSimulator) State() (State, error) {
	if !s.started {
		return State{}, errors.New("graph simulator: no episode started")
	}
	st := s.state
	st.Navigable = append([]string(nil), s.state.Navigable...)
	return st, nil
}

func (s *GraphSimulator) MakeAction(index int, heading, elevation float64) error {
	if !s.started {
		return errors.New("graph simulator: no episode started")
	}
	if index < 0 || index >= len(s.state.Navigable) {
		return fmt.Errorf("%w: index %d with %d navigable viewpoints at %s",
			ErrInvalidAction, index, len(s.state.Navigable), s.state.Viewpoint)
	}

	st := s.state
	if index > 0 {
		var err error
		st, err = s.place(s.state.Scan, s.state.Navigable[index])
		if err != nil {
			return err
		}
	}
	st.Heading = wrapHeading(s.state.Heading + heading)
	st.Elevation = clamp(s.state.Elevation+elevation, -GazeStep, GazeStep)
	st.ViewIndex = viewIndex(st.Heading, st.Elevation)
	s.state = st
	return nil
}

// place builds the pose-independent part of the state at viewpoint.
func (s *GraphSimulator) place(scan, viewpoint string) (State, error) {
	neighbours, err := s.index.Neighbors(scan, viewpoint)
	if err != nil {
		return State{}, err
	}
	pos, err := s.index.Position(scan, viewpoint)
	if err != nil {
		return State{}, err
	}
	return State{
		Scan:      scan,
		Viewpoint: viewpoint,
		Position:  pos,
		Navigable: append([]string{viewpoint}, neighbours...),
	}, nil
}

func wrapHeading(h float64) float64 {
	h = math.Mod(h, 2*math.Pi)
	if h < 0 {
		h += 2 * math.Pi
	}
	return h
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// viewIndex discretizes a gaze. It is the inverse of BaseGaze for gazes on
// the 30 degree grid.
func viewIndex(heading, elevation float64) int {
	sector := int(math.Floor(wrapHeading(heading)/GazeStep+0.5)) % HeadingViews
	band := int(math.Floor(elevation/GazeStep+0.5)) + 1
	if band < 0 {
		band = 0
	}
	if band > 2 {
		band = 2
	}
	return band*HeadingViews + sector
}
