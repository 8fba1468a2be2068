// Package navenv drives batches of episode slots over a navigation graph and
// assembles per-slot observations with gaze-relative candidates.
//
// A NavBatch owns its dataset order and cursor; it is not safe for
// concurrent use. Run one NavBatch per worker.
package navenv

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime"

	"github.com/Noofbiz/navBench/datasets"
	"github.com/Noofbiz/navBench/navgraph"
	"golang.org/x/sync/errgroup"
)

// Options configures a NavBatch.
type Options struct {
	// Sims holds one simulator handle per slot. Its length caps the batch
	// size.
	Sims []Simulator

	Features FeatureStore

	// Candidates is required in ModeSimulated. In ModeRealWorld candidates
	// are projected only when it is set.
	Candidates CandidateSource

	// Index supplies ground-truth distances. Required in ModeSimulated and
	// ignored in ModeRealWorld.
	Index *navgraph.Index

	Dataset *datasets.EpisodeDataset

	// BatchSize is the default Reset size. Zero means len(Sims).
	BatchSize int

	// Seed drives every shuffle of the episode order.
	Seed int64

	// NoShuffle keeps the dataset order at construction. By default the
	// order is shuffled once from Seed in ModeSimulated. Wrapping past the
	// end of the dataset always reshuffles in ModeSimulated.
	NoShuffle bool

	Mode Mode

	// Workers bounds per-slot observation assembly. Zero means
	// runtime.NumCPU().
	Workers int

	Logger *slog.Logger
}

// NavBatch runs a fixed set of episode slots in lockstep over a dataset.
type NavBatch struct {
	sims       []Simulator
	features   FeatureStore
	candidates CandidateSource
	index      *navgraph.Index
	mode       Mode
	batchSize  int
	workers    int
	logger     *slog.Logger

	name    string
	scans   []string
	records []datasets.EpisodeRecord
	cursor  int
	rng     *rand.Rand

	// batch[i] is the record assigned to slot i.
	batch []datasets.EpisodeRecord
}

// NewNavBatch validates opts and returns an orchestrator with its cursor at
// the start of the dataset.
func NewNavBatch(opts Options) (*NavBatch, error) {
	if opts.Dataset == nil || opts.Dataset.Len() == 0 {
		return nil, errors.New("navenv: dataset is empty")
	}
	if len(opts.Sims) == 0 {
		return nil, fmt.Errorf("%w: no simulators", ErrBatchSize)
	}
	for i, s := range opts.Sims {
		if s == nil {
			return nil, fmt.Errorf("navenv: simulator %d is nil", i)
		}
	}
	if opts.Features == nil {
		return nil, errors.New("navenv: feature store is nil")
	}

	b := &NavBatch{
		sims:       opts.Sims,
		features:   opts.Features,
		candidates: opts.Candidates,
		mode:       opts.Mode,
		batchSize:  opts.BatchSize,
		workers:    opts.Workers,
		logger:     opts.Logger,
		name:       opts.Dataset.Name,
		scans:      opts.Dataset.Scans(),
		records:    opts.Dataset.Records(),
		rng:        rand.New(rand.NewSource(opts.Seed)),
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.workers <= 0 {
		b.workers = runtime.NumCPU()
	}
	if b.batchSize <= 0 {
		b.batchSize = len(b.sims)
	}

	switch b.mode {
	case ModeRealWorld:
		b.batchSize = 1
	case ModeSimulated:
		if opts.Index == nil {
			return nil, errors.New("navenv: simulated mode requires a navigation index")
		}
		if opts.Candidates == nil {
			return nil, errors.New("navenv: simulated mode requires a candidate table")
		}
		for _, scan := range b.scans {
			if !opts.Index.HasScan(scan) {
				return nil, fmt.Errorf("dataset %s: %w: %s", b.name, navgraph.ErrUnknownScan, scan)
			}
		}
		b.index = opts.Index
		if !opts.NoShuffle {
			b.shuffle()
		}
	default:
		return nil, fmt.Errorf("navenv: unknown mode %v", b.mode)
	}
	if b.batchSize > len(b.sims) {
		return nil, fmt.Errorf("%w: %d exceeds %d simulators", ErrBatchSize, b.batchSize, len(b.sims))
	}

	b.logger.Info("navigation batch ready",
		"dataset", b.name, "episodes", len(b.records), "batch_size", b.batchSize, "mode", b.mode.String())
	return b, nil
}

// Size returns the number of episodes in the dataset.
func (b *NavBatch) Size() int {
	return len(b.records)
}

// Batch returns the records assigned to the live slots, in slot order.
func (b *NavBatch) Batch() []datasets.EpisodeRecord {
	return append([]datasets.EpisodeRecord(nil), b.batch...)
}

// Scans lists the distinct scans of the dataset, sorted.
func (b *NavBatch) Scans() []string {
	return append([]string(nil), b.scans...)
}

// Reset draws the next batchSize records, starts an episode for each in its
// slot and returns the first observations. Zero means the configured batch
// size. ModeRealWorld always draws a single record.
func (b *NavBatch) Reset(batchSize int) (ObservationBatch, error) {
	if batchSize <= 0 || b.mode == ModeRealWorld {
		batchSize = b.batchSize
	}
	if batchSize > len(b.sims) {
		return nil, fmt.Errorf("%w: %d exceeds %d simulators", ErrBatchSize, batchSize, len(b.sims))
	}

	b.batch = b.nextMinibatch(batchSize)
	err := b.eachSlot(func(i int) error {
		r := b.batch[i]
		if err := b.sims[i].NewEpisode(r.Scan, r.Start(), r.Heading); err != nil {
			return fmt.Errorf("slot %d (%s): %w", i, r.InstrID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b.observations()
}

// Step applies actions[i] to slot i and returns the refreshed observations.
func (b *NavBatch) Step(actions []Action) (ObservationBatch, error) {
	if b.batch == nil {
		return nil, ErrNotReset
	}
	if len(actions) != len(b.batch) {
		return nil, fmt.Errorf("%w: got %d actions for %d slots", ErrActionCount, len(actions), len(b.batch))
	}
	err := b.eachSlot(func(i int) error {
		a := actions[i]
		if err := b.sims[i].MakeAction(a.Index, a.Heading, a.Elevation); err != nil {
			return fmt.Errorf("slot %d (%s): %w", i, b.batch[i].InstrID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b.observations()
}

// ResetEpoch rewinds the cursor, optionally reshuffling. Live slots are left
// untouched.
func (b *NavBatch) ResetEpoch(shuffle bool) {
	if shuffle && b.mode != ModeRealWorld {
		b.shuffle()
	}
	b.cursor = 0
}

func (b *NavBatch) shuffle() {
	b.rng.Shuffle(len(b.records), func(i, j int) {
		b.records[i], b.records[j] = b.records[j], b.records[i]
	})
}

// nextMinibatch returns n records from the cursor. Running past the end
// copies the remainder, reshuffles and fills up from the new order, so a
// wrapped batch may repeat records.
func (b *NavBatch) nextMinibatch(n int) []datasets.EpisodeRecord {
	end := b.cursor + n
	if end <= len(b.records) {
		out := append([]datasets.EpisodeRecord(nil), b.records[b.cursor:end]...)
		b.cursor = end
		return out
	}

	out := append(make([]datasets.EpisodeRecord, 0, n), b.records[b.cursor:]...)
	if b.mode != ModeRealWorld {
		b.shuffle()
	}
	b.cursor = 0
	for len(out) < n {
		take := min(n-len(out), len(b.records))
		out = append(out, b.records[:take]...)
		b.cursor = take
	}
	b.logger.Debug("dataset wrapped", "dataset", b.name, "batch_size", n, "cursor", b.cursor)
	return out
}

// eachSlot runs fn for every live slot on a bounded errgroup. fn(i) must
// only touch slot i.
func (b *NavBatch) eachSlot(fn func(i int) error) error {
	var g errgroup.Group
	g.SetLimit(b.workers)
	for i := range b.batch {
		g.Go(func() error { return fn(i) })
	}
	return g.Wait()
}

func (b *NavBatch) observations() (ObservationBatch, error) {
	obs := make(ObservationBatch, len(b.batch))
	err := b.eachSlot(func(i int) error {
		o, err := b.observe(i)
		if err != nil {
			return fmt.Errorf("slot %d (%s): %w", i, b.batch[i].InstrID, err)
		}
		obs[i] = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return obs, nil
}

func (b *NavBatch) observe(i int) (Observation, error) {
	r := b.batch[i]
	st, err := b.sims[i].State()
	if err != nil {
		return Observation{}, err
	}
	feature, err := b.features.Feature(st.Scan, st.Viewpoint)
	if err != nil {
		return Observation{}, err
	}

	var cands []Candidate
	if b.candidates != nil {
		cands, err = Project(b.candidates, feature, st.Scan, st.Viewpoint, st.ViewIndex)
		if err != nil {
			return Observation{}, err
		}
	}

	obs := Observation{
		Mode:        b.mode,
		InstrID:     r.InstrID,
		Instruction: r.Instruction,
		PathID:      r.PathID,
		Scan:        st.Scan,
		Viewpoint:   st.Viewpoint,
		ViewIndex:   st.ViewIndex,
		Position:    st.Position,
		Heading:     st.Heading,
		Elevation:   st.Elevation,
		Feature:     feature,
		Candidates:  cands,
		Navigable:   st.Navigable,
	}
	if b.mode == ModeSimulated {
		d, err := b.index.Distance(st.Scan, st.Viewpoint, r.Goal())
		if err != nil {
			return Observation{}, err
		}
		obs.GroundTruth = &GroundTruth{
			Path:     append([]string(nil), r.Path...),
			Distance: d,
		}
	}
	return obs, nil
}
