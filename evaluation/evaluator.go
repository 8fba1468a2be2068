// Package evaluation scores agent trajectories against reference paths over a
// navigation graph: navigation and oracle error, success, SPL, nDTW, SDTW
// and CLS.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"

	"github.com/Noofbiz/navBench/datasets"
	"github.com/Noofbiz/navBench/navgraph"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

// DefaultErrorMargin is the success radius, in graph distance units.
const DefaultErrorMargin = 3.0

// splFloor bounds the SPL denominator away from zero.
const splFloor = 0.01

// Options configures an Evaluator.
type Options struct {
	// ErrorMargin is the success radius and the DTW/CLS decay scale. Zero
	// means DefaultErrorMargin.
	ErrorMargin float64

	// Goals switches success to multi-goal membership when set.
	Goals *datasets.GoalTable

	// Workers bounds concurrent item scoring. Zero means runtime.NumCPU().
	Workers int

	Meter  metric.Meter
	Tracer trace.Tracer
	Logger *slog.Logger
}

// Evaluator scores predictions against a fixed set of references. It holds
// no per-call state and is safe for concurrent use.
type Evaluator struct {
	index    *navgraph.Index
	refs     References
	margin   float64
	goals    *datasets.GoalTable
	workers  int
	recorder *Recorder
	tracer   trace.Tracer
	logger   *slog.Logger
}

// NewEvaluator returns an evaluator over index and refs.
func NewEvaluator(index *navgraph.Index, refs References, opts Options) (*Evaluator, error) {
	if index == nil {
		return nil, errors.New("evaluation: nil navigation index")
	}
	if opts.ErrorMargin < 0 || math.IsNaN(opts.ErrorMargin) {
		return nil, fmt.Errorf("evaluation: invalid error margin %v", opts.ErrorMargin)
	}
	rec, err := NewRecorder(opts.Meter)
	if err != nil {
		return nil, err
	}

	e := &Evaluator{
		index:    index,
		refs:     refs,
		margin:   opts.ErrorMargin,
		goals:    opts.Goals,
		workers:  opts.Workers,
		recorder: rec,
		tracer:   opts.Tracer,
		logger:   opts.Logger,
	}
	if e.margin == 0 {
		e.margin = DefaultErrorMargin
	}
	if e.workers <= 0 {
		e.workers = runtime.NumCPU()
	}
	if e.tracer == nil {
		e.tracer = tracenoop.NewTracerProvider().Tracer("navbench")
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e, nil
}

// ErrorMargin returns the margin in use.
func (e *Evaluator) ErrorMargin() float64 { return e.margin }

// EvalItem scores one trajectory, given as segments, against gtPath in scan.
// objID selects the goal set in multi-goal mode.
func (e *Evaluator) EvalItem(scan string, traj [][]string, gtPath []string, objID *string) (Score, error) {
	path := Flatten(traj)
	if len(path) == 0 || len(gtPath) == 0 {
		return Score{}, ErrEmptyTrajectory
	}
	if path[0] != gtPath[0] {
		return Score{}, fmt.Errorf("%w: got %s, want %s", ErrStartMismatch, path[0], gtPath[0])
	}

	d, err := e.index.Distances(scan)
	if err != nil {
		return Score{}, err
	}
	goal := gtPath[len(gtPath)-1]

	var s Score
	s.ActionSteps = len(traj) - 1
	s.TrajectorySteps = len(path) - 1

	if s.NavError, err = d.Lookup(path[len(path)-1], goal); err != nil {
		return Score{}, err
	}
	nearest, err := d.Nearest(goal, path)
	if err != nil {
		return Score{}, err
	}
	if s.OracleError, err = d.Lookup(nearest, goal); err != nil {
		return Score{}, err
	}
	if s.TrajectoryLength, err = d.PathLength(path); err != nil {
		return Score{}, err
	}
	gtLength, err := d.PathLength(gtPath)
	if err != nil {
		return Score{}, err
	}

	if e.goals == nil {
		s.Success = indicator(s.NavError < e.margin)
		s.OracleSuccess = indicator(s.OracleError < e.margin)
	} else {
		goals, err := e.goalSet(scan, objID)
		if err != nil {
			return Score{}, err
		}
		s.Success = indicator(goals[path[len(path)-1]])
		for _, vp := range path {
			if goals[vp] {
				s.OracleSuccess = 1
				break
			}
		}
	}

	s.SPL = s.Success * gtLength / math.Max(s.TrajectoryLength, math.Max(gtLength, splFloor))

	dtw, err := dynamicTimeWarping(d, path, gtPath, s.Success, e.margin)
	if err != nil {
		return Score{}, err
	}
	s.DTW, s.NDTW, s.SDTW = dtw.DTW, dtw.NDTW, dtw.SDTW

	if s.CLS, err = coverageLengthScore(d, path, gtPath, e.margin); err != nil {
		return Score{}, err
	}
	return s, nil
}

func (e *Evaluator) goalSet(scan string, objID *string) (map[string]bool, error) {
	obj := "None"
	if objID != nil {
		obj = *objID
	}
	vps, _ := e.goals.Goals(scan, obj)
	if len(vps) == 0 {
		return nil, fmt.Errorf("%w: %s_%s", ErrEmptyGoalSet, scan, obj)
	}
	set := make(map[string]bool, len(vps))
	for _, vp := range vps {
		set[vp] = true
	}
	return set, nil
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// EvalMetrics scores every prediction against its reference and returns the
// batch means and the per-item metrics in prediction order. The first error
// aborts the call.
func (e *Evaluator) EvalMetrics(ctx context.Context, preds []Prediction) (Summary, Metrics, error) {
	ctx, span := e.tracer.Start(ctx, "navbench.eval")
	defer span.End()
	span.SetAttributes(attribute.Int("navbench.predictions", len(preds)))

	e.logger.Info("evaluating predictions", "count", len(preds), "error_margin", e.margin)

	m, err := e.scoreAll(ctx, preds)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Summary{}, Metrics{}, err
	}

	summary := Summarize(m)
	span.SetAttributes(
		attribute.Float64("navbench.sr", summary.SR),
		attribute.Float64("navbench.spl", summary.SPL),
	)
	span.SetStatus(codes.Ok, "")
	return summary, m, nil
}

// scoreAll scores predictions on an errgroup bounded by the worker count.
// Results are written by index so order follows preds; the first error
// cancels the remaining items.
func (e *Evaluator) scoreAll(ctx context.Context, preds []Prediction) (Metrics, error) {
	m := Metrics{
		InstrIDs: make([]string, len(preds)),
		Scans:    make([]string, len(preds)),
		Scores:   make([]Score, len(preds)),
	}
	if len(preds) == 0 {
		return m, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, p := range preds {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ref, ok := e.refs[p.InstrID]
			if !ok {
				return fmt.Errorf("%w: %s", ErrUnknownInstruction, p.InstrID)
			}
			s, err := e.EvalItem(ref.Scan, p.Trajectory, ref.Path, ref.ObjID)
			if err != nil {
				return fmt.Errorf("instruction %s: %w", p.InstrID, err)
			}
			m.InstrIDs[i] = p.InstrID
			m.Scans[i] = ref.Scan
			m.Scores[i] = s
			e.recorder.Record(ctx, ref.Scan, s)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Metrics{}, err
	}
	return m, nil
}
