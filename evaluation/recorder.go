package evaluation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Recorder publishes per-episode scores as OpenTelemetry metrics.
type Recorder struct {
	// scores records every metric of every episode, keyed by metric name.
	scores metric.Float64Histogram

	// episodes counts scored episodes per scan and outcome.
	episodes metric.Int64Counter
}

// NewRecorder creates the instruments on meter. A nil meter records nothing.
func NewRecorder(meter metric.Meter) (*Recorder, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("navbench")
	}

	r := &Recorder{}
	var err error
	r.scores, err = meter.Float64Histogram(
		"navbench.eval.score",
		metric.WithDescription("Per-episode navigation metric value"),
	)
	if err != nil {
		return nil, fmt.Errorf("create score histogram: %w", err)
	}

	r.episodes, err = meter.Int64Counter(
		"navbench.eval.episodes",
		metric.WithDescription("Number of episodes scored"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create episode counter: %w", err)
	}
	return r, nil
}

// Record publishes s for an episode in scan.
func (r *Recorder) Record(ctx context.Context, scan string, s Score) {
	if r == nil {
		return
	}
	for name, v := range s.Metrics() {
		r.scores.Record(ctx, v, metric.WithAttributes(
			attribute.String("scan", scan),
			attribute.String("metric", name),
		))
	}
	r.episodes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scan", scan),
		attribute.Bool("success", s.Success > 0),
	))
}
