// Package agents provides baseline navigation policies and the rollout loop
// that turns their decisions into evaluable trajectories.
package agents

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/Noofbiz/navBench/navenv"
	"github.com/Noofbiz/navBench/navgraph"
)

// Config holds the policy choice and its knobs.
type Config struct {
	// Kind selects the policy: "shortest" or "random". Default: "shortest".
	Kind string `yaml:"kind" json:"kind"`

	// Seed controls the random policy. If zero, a time-based seed is used.
	Seed int64 `yaml:"seed" json:"seed"`

	// MaxSteps caps the actions taken per episode (default if 0 will be set
	// by New to 15).
	MaxSteps int `yaml:"max_steps" json:"max_steps"`

	// StopProb is the per-step chance the random policy stops early
	// (default if 0 will be set by New to 0.1).
	StopProb float64 `yaml:"stop_prob" json:"stop_prob"`
}

// Decision is one slot's choice for the next step.
type Decision struct {
	Action navenv.Action

	// Stop ends the slot's episode. Action is ignored.
	Stop bool
}

// Agent picks a Decision for every observation of a batch, in slot order.
type Agent interface {
	Act(obs navenv.ObservationBatch) ([]Decision, error)
}

// Defaults fills the zero fields of cfg.
func (cfg Config) Defaults() Config {
	if cfg.Kind == "" {
		cfg.Kind = "shortest"
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if cfg.MaxSteps == 0 {
		cfg.MaxSteps = 15
	}
	if cfg.StopProb == 0 {
		cfg.StopProb = 0.1
	}
	return cfg
}

// New builds the agent described by cfg. index is required by the shortest
// path policy.
func New(cfg Config, index *navgraph.Index) (Agent, error) {
	cfg = cfg.Defaults()
	switch strings.ToLower(cfg.Kind) {
	case "shortest":
		if index == nil {
			return nil, errors.New("shortest path agent requires a navigation index")
		}
		return &ShortestPathAgent{Index: index}, nil
	case "random":
		if cfg.StopProb < 0 || cfg.StopProb > 1 {
			return nil, fmt.Errorf("stop probability must be in [0, 1], got %v", cfg.StopProb)
		}
		return NewRandomAgent(cfg.Seed, cfg.StopProb), nil
	default:
		return nil, fmt.Errorf("unknown agent kind %q", cfg.Kind)
	}
}

// ShortestPathAgent follows the shortest path to each episode's reference
// goal and stops on arrival. It needs ground truth in its observations.
type ShortestPathAgent struct {
	Index *navgraph.Index
}

func (a *ShortestPathAgent) Act(obs navenv.ObservationBatch) ([]Decision, error) {
	out := make([]Decision, len(obs))
	for i, o := range obs {
		if o.GroundTruth == nil || len(o.GroundTruth.Path) == 0 {
			return nil, fmt.Errorf("slot %d (%s): shortest path agent needs ground truth", i, o.InstrID)
		}
		goal := o.GroundTruth.Path[len(o.GroundTruth.Path)-1]
		if o.Viewpoint == goal {
			out[i] = Decision{Stop: true}
			continue
		}

		if a.Index == nil {
			return nil, errors.New("shortest path agent has no navigation index")
		}
		path, err := a.Index.Path(o.Scan, o.Viewpoint, goal)
		if err != nil {
			return nil, fmt.Errorf("slot %d (%s): %w", i, o.InstrID, err)
		}
		next := path[1]
		idx := indexOf(o.Navigable, next)
		if idx < 0 {
			return nil, fmt.Errorf("slot %d (%s): %s is not navigable from %s", i, o.InstrID, next, o.Viewpoint)
		}

		// Turn to face the next viewpoint when the candidate list knows it.
		// Candidate headings are relative to the discretized gaze, so the
		// turn is taken from the absolute heading instead.
		act := navenv.Action{Index: idx}
		for _, c := range o.Candidates {
			if c.Viewpoint == next {
				act.Heading = c.AbsHeading - o.Heading
				break
			}
		}
		out[i] = Decision{Action: act}
	}
	return out, nil
}

// RandomAgent moves to a uniformly chosen neighbour each step and stops with
// a fixed probability.
type RandomAgent struct {
	StopProb float64

	rng *rand.Rand
}

// NewRandomAgent returns a seeded random policy.
func NewRandomAgent(seed int64, stopProb float64) *RandomAgent {
	return &RandomAgent{StopProb: stopProb, rng: rand.New(rand.NewSource(seed))}
}

func (a *RandomAgent) Act(obs navenv.ObservationBatch) ([]Decision, error) {
	out := make([]Decision, len(obs))
	for i, o := range obs {
		// Navigable[0] is the current viewpoint.
		if len(o.Navigable) < 2 || a.rng.Float64() < a.StopProb {
			out[i] = Decision{Stop: true}
			continue
		}
		out[i] = Decision{Action: navenv.Action{Index: 1 + a.rng.Intn(len(o.Navigable)-1)}}
	}
	return out, nil
}

func indexOf(vps []string, vp string) int {
	for i, v := range vps {
		if v == vp {
			return i
		}
	}
	return -1
}
