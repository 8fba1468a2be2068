package navenv

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/Noofbiz/navBench/datasets"
	"github.com/Noofbiz/navBench/navgraph"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// lineIndex builds scan S1 with A-B-C on a line, one unit apart.
func lineIndex(t *testing.T) *navgraph.Index {
	t.Helper()
	src := navgraph.MemorySource{
		"S1": {
			Scan:       "S1",
			Viewpoints: []string{"A", "B", "C"},
			Positions: map[string]r3.Vec{
				"A": {X: 0, Y: 0, Z: 1.5},
				"B": {X: 1, Y: 0, Z: 1.5},
				"C": {X: 2, Y: 0, Z: 1.5},
			},
			Edges: []navgraph.Edge{
				{From: "A", To: "B", Weight: 1},
				{From: "B", To: "C", Weight: 1},
			},
		},
	}
	idx, err := navgraph.Build(context.Background(), src, []string{"S1"}, navgraph.BuildOptions{Workers: 1})
	require.NoError(t, err)
	return idx
}

func lineCandidates() *datasets.CandidateTable {
	east := datasets.CandidateNeighbor{PointID: 15, FeatureIndex: 15, Distance: 1, Heading: math.Pi / 2}
	west := datasets.CandidateNeighbor{PointID: 21, FeatureIndex: 21, Distance: 1, Heading: 3 * math.Pi / 2}
	at := func(n datasets.CandidateNeighbor, vp string, x float64) datasets.CandidateNeighbor {
		n.Viewpoint = vp
		n.Position = r3.Vec{X: x, Z: 1.5}
		return n
	}
	return datasets.NewCandidateTable(map[string][]datasets.CandidateNeighbor{
		"S1_A": {at(east, "B", 1)},
		"S1_B": {at(west, "A", 0), at(east, "C", 2)},
		"S1_C": {at(west, "B", 1)},
	})
}

func lineDataset(t *testing.T, n int) *datasets.EpisodeDataset {
	t.Helper()
	records := make([]datasets.EpisodeRecord, n)
	for i := range records {
		records[i] = datasets.EpisodeRecord{
			InstrID: fmt.Sprintf("%d_0", i),
			Scan:    "S1",
			Path:    []string{"A", "B", "C"},
		}
	}
	ds, err := datasets.NewEpisodeDataset("line", records)
	require.NoError(t, err)
	return ds
}

// mixedDataset returns n distinct records alternating between starts A and B.
func mixedDataset(t *testing.T, n int) *datasets.EpisodeDataset {
	t.Helper()
	records := make([]datasets.EpisodeRecord, n)
	for i := range records {
		path := []string{"A", "B", "C"}
		if i%2 == 1 {
			path = path[1:]
		}
		records[i] = datasets.EpisodeRecord{
			InstrID: fmt.Sprintf("%d_0", i),
			Scan:    "S1",
			Path:    path,
			Heading: float64(i) * math.Pi / 6,
		}
	}
	ds, err := datasets.NewEpisodeDataset("mixed", records)
	require.NoError(t, err)
	return ds
}

// permutedIDs replays a seeded shuffle of n identity-ordered instruction ids.
func permutedIDs(seed int64, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%d_0", i)
	}
	rand.New(rand.NewSource(seed)).Shuffle(n, func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return ids
}

func recordIDs(rs []datasets.EpisodeRecord) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.InstrID
	}
	return out
}

func newLineBatch(t *testing.T, episodes, slots int, mutate func(*Options)) *NavBatch {
	t.Helper()
	idx := lineIndex(t)
	opts := Options{
		Sims:       NewGraphSimulators(idx, slots),
		Features:   ZeroFeatureStore{Views: ViewCount, Dim: 4},
		Candidates: lineCandidates(),
		Index:      idx,
		Dataset:    lineDataset(t, episodes),
		Seed:       7,
		Workers:    2,
	}
	if mutate != nil {
		mutate(&opts)
	}
	b, err := NewNavBatch(opts)
	require.NoError(t, err)
	return b
}

func instrIDs(obs ObservationBatch) []string {
	out := make([]string, len(obs))
	for i, o := range obs {
		out[i] = o.InstrID
	}
	return out
}

func TestBaseGaze(t *testing.T) {
	cases := []struct {
		view      int
		heading   float64
		elevation float64
	}{
		{0, 0, -math.Pi / 6},
		{12, 0, 0},
		{13, math.Pi / 6, 0},
		{35, 11 * math.Pi / 6, math.Pi / 6},
	}
	for _, tc := range cases {
		h, e := BaseGaze(tc.view)
		assert.InDelta(t, tc.heading, h, 1e-12, "heading of view %d", tc.view)
		assert.InDelta(t, tc.elevation, e, 1e-12, "elevation of view %d", tc.view)
		assert.Equal(t, tc.view, viewIndex(h, e), "view index round trip")
	}
}

func TestProject_GazeShift(t *testing.T) {
	table := datasets.NewCandidateTable(map[string][]datasets.CandidateNeighbor{
		"S1_A": {{Viewpoint: "B", PointID: 14, FeatureIndex: 2, Distance: 1.2, Heading: 1.0, Elevation: 0.2}},
	})
	feature := [][]float32{{0, 0}, {1, 1}, {2, 2}}

	for _, view := range []int{0, 5, 13, 30} {
		t.Run(fmt.Sprintf("view_%d", view), func(t *testing.T) {
			base, err := Project(table, feature, "S1", "A", 0)
			require.NoError(t, err)
			moved, err := Project(table, feature, "S1", "A", view)
			require.NoError(t, err)
			require.Len(t, moved, 1)

			h0, e0 := BaseGaze(0)
			h, e := BaseGaze(view)
			assert.InDelta(t, -(h - h0), moved[0].Heading-base[0].Heading, 1e-12)
			assert.InDelta(t, -(e - e0), moved[0].Elevation-base[0].Elevation, 1e-12)

			assert.InDelta(t, 1.0, moved[0].Heading+h, 1e-12)
			assert.InDelta(t, 0.2, moved[0].Elevation+e, 1e-12)
			assert.Equal(t, 1.0, moved[0].AbsHeading)
			assert.Equal(t, 0.2, moved[0].AbsElevation)
			assert.Equal(t, []float32{2, 2}, moved[0].Feature)
			assert.Equal(t, "B", moved[0].Viewpoint)
			assert.Equal(t, 14, moved[0].PointID)
		})
	}
}

func TestProject_Unknown(t *testing.T) {
	table := datasets.NewCandidateTable(map[string][]datasets.CandidateNeighbor{
		"S1_A": {{Viewpoint: "B", FeatureIndex: 40}},
	})
	_, err := Project(table, make([][]float32, ViewCount), "S1", "Z", 0)
	assert.ErrorIs(t, err, ErrUnknownCandidate)

	_, err = Project(table, make([][]float32, ViewCount), "S1", "A", 0)
	assert.ErrorIs(t, err, ErrUnknownCandidate)
}

func TestGraphSimulator(t *testing.T) {
	sim := NewGraphSimulator(lineIndex(t))

	require.NoError(t, sim.NewEpisode("S1", "B", -math.Pi/6))
	st, err := sim.State()
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A", "C"}, st.Navigable)
	assert.InDelta(t, 11*math.Pi/6, st.Heading, 1e-12)
	assert.Equal(t, 12+11, st.ViewIndex)
	assert.Equal(t, 1.0, st.Position.X)

	require.NoError(t, sim.MakeAction(2, math.Pi/6, 1.0))
	st, err = sim.State()
	require.NoError(t, err)
	assert.Equal(t, "C", st.Viewpoint)
	assert.Equal(t, []string{"C", "B"}, st.Navigable)
	assert.InDelta(t, 0, math.Sin(st.Heading), 1e-9)
	assert.Equal(t, math.Pi/6, st.Elevation, "elevation is clamped")
	assert.Equal(t, 24, st.ViewIndex)

	// Turning in place keeps the viewpoint.
	require.NoError(t, sim.MakeAction(0, 0, -math.Pi/6))
	st, err = sim.State()
	require.NoError(t, err)
	assert.Equal(t, "C", st.Viewpoint)
	assert.Equal(t, 12, st.ViewIndex)

	assert.ErrorIs(t, sim.MakeAction(5, 0, 0), ErrInvalidAction)
	assert.ErrorIs(t, sim.NewEpisode("S1", "Z", 0), navgraph.ErrUnknownViewpoint)
}

func TestNavBatch_WrapAround(t *testing.T) {
	b := newLineBatch(t, 10, 4, func(o *Options) { o.NoShuffle = true })
	assert.Equal(t, 10, b.Size())

	seen := make(map[string]int)
	total := 0
	var first ObservationBatch
	for i := 0; i < 3; i++ {
		obs, err := b.Reset(0)
		require.NoError(t, err, "reset %d", i)
		require.Len(t, obs, 4)
		if i == 0 {
			first = obs
		}
		for _, o := range obs {
			seen[o.InstrID]++
		}
		total += len(obs)
	}
	assert.Equal(t, 12, total)
	assert.Len(t, seen, 10, "every record is drawn before the wrap")

	assert.Equal(t, []string{"0_0", "1_0", "2_0", "3_0"}, instrIDs(first), "no shuffle before the first wrap")
	assert.Equal(t, 2, b.cursor, "cursor sits past the two-record prefix")
}

func TestNavBatch_WrapReshuffles(t *testing.T) {
	b := newLineBatch(t, 10, 4, func(o *Options) {
		o.Dataset = mixedDataset(t, 10)
		o.NoShuffle = true
	})

	for i, want := range [][]string{{"0_0", "1_0", "2_0", "3_0"}, {"4_0", "5_0", "6_0", "7_0"}} {
		_, err := b.Reset(0)
		require.NoError(t, err)
		assert.Equal(t, want, recordIDs(b.Batch()), "reset %d", i)
	}

	perm := permutedIDs(7, 10)
	require.NotEqual(t, recordIDs(mixedDataset(t, 10).Records()), perm, "seed 7 must permute the records")

	obs, err := b.Reset(0)
	require.NoError(t, err)
	assert.Equal(t, []string{"8_0", "9_0", perm[0], perm[1]}, instrIDs(obs), "remainder, then the reshuffled prefix")
	for i, r := range b.Batch() {
		assert.Equal(t, r.Start(), obs[i].Viewpoint, "slot %d starts at its record", i)
	}
	assert.Equal(t, 2, b.cursor)

	obs, err = b.Reset(0)
	require.NoError(t, err)
	assert.Equal(t, perm[2:6], instrIDs(obs), "cursor continues in the reshuffled order")
}

func TestNavBatch_ShufflesByDefault(t *testing.T) {
	shuffled := newLineBatch(t, 10, 4, func(o *Options) { o.Dataset = mixedDataset(t, 10) })
	obs, err := shuffled.Reset(0)
	require.NoError(t, err)
	assert.Equal(t, permutedIDs(7, 10)[:4], instrIDs(obs))

	ordered := newLineBatch(t, 10, 4, func(o *Options) {
		o.Dataset = mixedDataset(t, 10)
		o.NoShuffle = true
	})
	obs, err = ordered.Reset(0)
	require.NoError(t, err)
	assert.Equal(t, []string{"0_0", "1_0", "2_0", "3_0"}, instrIDs(obs))
}

func TestNavBatch_RealWorldWrapKeepsOrder(t *testing.T) {
	b := newLineBatch(t, 5, 1, func(o *Options) {
		o.Dataset = mixedDataset(t, 5)
		o.Mode = ModeRealWorld
		o.Index = nil
		o.Candidates = nil
	})
	var got []string
	for i := 0; i < 7; i++ {
		obs, err := b.Reset(0)
		require.NoError(t, err)
		got = append(got, instrIDs(obs)...)
	}
	assert.Equal(t, []string{"0_0", "1_0", "2_0", "3_0", "4_0", "0_0", "1_0"}, got)
}

func TestNavBatch_WrapSmallDataset(t *testing.T) {
	b := newLineBatch(t, 3, 8, nil)
	obs, err := b.Reset(8)
	require.NoError(t, err)
	assert.Len(t, obs, 8)
	assert.Len(t, b.Batch(), 8)
}

func TestNavBatch_Step(t *testing.T) {
	b := newLineBatch(t, 2, 2, nil)

	_, err := b.Step([]Action{{}, {}})
	assert.ErrorIs(t, err, ErrNotReset)

	obs, err := b.Reset(0)
	require.NoError(t, err)
	require.Len(t, obs, 2)
	for _, o := range obs {
		assert.Equal(t, ModeSimulated, o.Mode)
		assert.Equal(t, "A", o.Viewpoint)
		require.NotNil(t, o.GroundTruth)
		assert.Equal(t, 2.0, o.GroundTruth.Distance)
		assert.Equal(t, []string{"A", "B", "C"}, o.GroundTruth.Path)
		require.Len(t, o.Candidates, 1)
		assert.Equal(t, "B", o.Candidates[0].Viewpoint)
		assert.Len(t, o.Feature, ViewCount)
	}

	_, err = b.Step([]Action{{Index: 1}})
	assert.ErrorIs(t, err, ErrActionCount)

	obs, err = b.Step([]Action{{Index: 1}, {Index: 0, Heading: math.Pi / 2}})
	require.NoError(t, err)
	assert.Equal(t, "B", obs[0].Viewpoint)
	assert.Equal(t, 1.0, obs[0].GroundTruth.Distance)
	assert.Equal(t, []string{"B", "A", "C"}, obs[0].Navigable)
	assert.Equal(t, "A", obs[1].Viewpoint)
	assert.Equal(t, 12+3, obs[1].ViewIndex)
	// Facing east, the east neighbour sits straight ahead.
	assert.InDelta(t, 0, obs[1].Candidates[0].Heading, 1e-12)

	_, err = b.Step([]Action{{Index: 9}, {}})
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestNavBatch_ResetEpoch(t *testing.T) {
	b := newLineBatch(t, 6, 3, nil)
	first, err := b.Reset(0)
	require.NoError(t, err)
	_, err = b.Reset(0)
	require.NoError(t, err)

	b.ResetEpoch(false)
	again, err := b.Reset(0)
	require.NoError(t, err)
	if diff := cmp.Diff(instrIDs(first), instrIDs(again)); diff != "" {
		t.Errorf("rewound batch mismatch (-want +got):\n%s", diff)
	}

	b.ResetEpoch(true)
	_, err = b.Reset(0)
	require.NoError(t, err)
	assert.Equal(t, 3, b.cursor)
}

func TestNavBatch_Deterministic(t *testing.T) {
	a := newLineBatch(t, 10, 4, nil)
	b := newLineBatch(t, 10, 4, nil)
	for i := 0; i < 4; i++ {
		oa, err := a.Reset(0)
		require.NoError(t, err)
		ob, err := b.Reset(0)
		require.NoError(t, err)
		assert.Equal(t, instrIDs(oa), instrIDs(ob), "reset %d", i)
	}
}

func TestNavBatch_RealWorld(t *testing.T) {
	b := newLineBatch(t, 5, 4, func(o *Options) {
		o.Mode = ModeRealWorld
		o.Index = nil
		o.Candidates = nil
	})

	obs, err := b.Reset(4)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, ModeRealWorld, obs[0].Mode)
	assert.Nil(t, obs[0].GroundTruth)
	assert.Empty(t, obs[0].Candidates)
	assert.Equal(t, "0_0", obs[0].InstrID, "real-world mode never shuffles")
	assert.Equal(t, []string{"A", "B"}, obs[0].Navigable)

	obs, err = b.Step([]Action{{Index: 1}})
	require.NoError(t, err)
	assert.Equal(t, "B", obs[0].Viewpoint)
}

func TestNewNavBatch_Invalid(t *testing.T) {
	idx := lineIndex(t)
	base := func() Options {
		return Options{
			Sims:       NewGraphSimulators(idx, 2),
			Features:   ZeroFeatureStore{Dim: 2},
			Candidates: lineCandidates(),
			Index:      idx,
			Dataset:    lineDataset(t, 3),
		}
	}

	cases := map[string]func(*Options){
		"no dataset":    func(o *Options) { o.Dataset = nil },
		"no sims":       func(o *Options) { o.Sims = nil },
		"no features":   func(o *Options) { o.Features = nil },
		"no index":      func(o *Options) { o.Index = nil },
		"no candidates": func(o *Options) { o.Candidates = nil },
		"batch too big": func(o *Options) { o.BatchSize = 3 },
		"unknown scan": func(o *Options) {
			ds, err := datasets.NewEpisodeDataset("x", []datasets.EpisodeRecord{{InstrID: "1", Scan: "S9", Path: []string{"A"}}})
			require.NoError(t, err)
			o.Dataset = ds
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			opts := base()
			mutate(&opts)
			_, err := NewNavBatch(opts)
			assert.Error(t, err)
		})
	}
}

func TestObservationBatch_Tensors(t *testing.T) {
	b := newLineBatch(t, 2, 2, nil)
	obs, err := b.Reset(0)
	require.NoError(t, err)
	obs, err = b.Step([]Action{{Index: 1}, {}})
	require.NoError(t, err)

	ft, err := obs.FeatureTensor()
	require.NoError(t, err)
	assert.Equal(t, []int{2, ViewCount, 4}, ft.Shape().Dimensions)

	ct, counts, err := obs.CandidateFeatureTensor()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, counts)
	assert.Equal(t, []int{2, 2, 4}, ct.Shape().Dimensions)

	_, err = ObservationBatch{}.FeatureTensor()
	assert.ErrorIs(t, err, ErrBatchSize)
}

func TestMemoryFeatureStore(t *testing.T) {
	store := NewMemoryFeatureStore()
	store.Put("S1", "A", [][]float32{{1, 2}})
	f, err := store.Feature("S1", "A")
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 2}}, f)

	_, err = store.Feature("S1", "B")
	assert.ErrorIs(t, err, ErrUnknownFeature)

	z, err := ZeroFeatureStore{Dim: 3}.Feature("S1", "A")
	require.NoError(t, err)
	assert.Len(t, z, ViewCount)
	assert.Equal(t, []float32{0, 0, 0}, z[35])
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("real-world")
	require.NoError(t, err)
	assert.Equal(t, ModeRealWorld, m)
	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeSimulated, m)
	_, err = ParseMode("dream")
	assert.Error(t, err)
}
