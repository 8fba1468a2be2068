package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Noofbiz/navBench/evaluation"
	"github.com/Noofbiz/navBench/navenv"
)

// Rollout resets env, runs agent for at most maxSteps and returns one
// prediction per slot. The first segment of every trajectory is the start
// viewpoint; each move appends a segment with the new viewpoint.
func Rollout(ctx context.Context, env *navenv.NavBatch, agent Agent, maxSteps int) ([]evaluation.Prediction, error) {
	if env == nil || agent == nil {
		return nil, errors.New("rollout needs an environment and an agent")
	}
	obs, err := env.Reset(0)
	if err != nil {
		return nil, err
	}

	preds := make([]evaluation.Prediction, len(obs))
	for i, o := range obs {
		preds[i] = evaluation.Prediction{InstrID: o.InstrID, Trajectory: [][]string{{o.Viewpoint}}}
	}
	ended := make([]bool, len(obs))

	for step := 0; step < maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		decisions, err := agent.Act(obs)
		if err != nil {
			return nil, err
		}
		if len(decisions) != len(obs) {
			return nil, fmt.Errorf("agent returned %d decisions for %d slots", len(decisions), len(obs))
		}

		actions := make([]navenv.Action, len(obs))
		active := 0
		for i, d := range decisions {
			if ended[i] || d.Stop {
				ended[i] = true
				continue
			}
			actions[i] = d.Action
			active++
		}
		if active == 0 {
			break
		}

		obs, err = env.Step(actions)
		if err != nil {
			return nil, err
		}
		for i, o := range obs {
			if !ended[i] && actions[i].Index > 0 {
				preds[i].Trajectory = append(preds[i].Trajectory, []string{o.Viewpoint})
			}
		}
	}
	return preds, nil
}

// RolloutAll rewinds env and rolls out batches until every episode of the
// dataset has a prediction. Predictions are returned in first-seen order;
// repeats from a wrapped batch are dropped.
func RolloutAll(ctx context.Context, env *navenv.NavBatch, agent Agent, maxSteps int, logger *slog.Logger) ([]evaluation.Prediction, error) {
	if logger == nil {
		logger = slog.Default()
	}
	env.ResetEpoch(false)

	seen := make(map[string]bool, env.Size())
	var out []evaluation.Prediction
	for batch := 0; len(out) < env.Size(); batch++ {
		if batch > env.Size() {
			return nil, fmt.Errorf("rollout did not cover %d episodes after %d batches", env.Size(), batch)
		}
		preds, err := Rollout(ctx, env, agent, maxSteps)
		if err != nil {
			return nil, err
		}
		for _, p := range preds {
			if seen[p.InstrID] {
				continue
			}
			seen[p.InstrID] = true
			out = append(out, p)
		}
		logger.Debug("rollout batch done", "batch", batch, "predictions", len(out), "episodes", env.Size())
	}
	logger.Info("rollout complete", "predictions", len(out))
	return out, nil
}
