package evaluation

import "errors"

var (
	// ErrStartMismatch is returned when a predicted trajectory does not begin
	// at the reference start. It means the trajectory was recorded wrongly
	// upstream and the run must stop.
	ErrStartMismatch = errors.New("evaluation: trajectory does not start at the reference start")

	// ErrEmptyGoalSet is returned in multi-goal mode when the goal table has
	// no viewpoints for an episode's (scan, object).
	ErrEmptyGoalSet = errors.New("evaluation: empty goal viewpoint set")

	// ErrUnknownInstruction is returned for predictions without a reference.
	ErrUnknownInstruction = errors.New("evaluation: unknown instruction id")

	// ErrEmptyTrajectory is returned for predictions or references with no
	// viewpoints.
	ErrEmptyTrajectory = errors.New("evaluation: empty trajectory")
)
