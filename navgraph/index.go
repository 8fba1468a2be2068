// Package navgraph builds per-scan navigation graphs and precomputes all-pairs
// shortest paths and distances over them.
//
// An Index is built once for a set of scans and is read-only afterwards, so it
// can be shared by any number of goroutines without synchronization.
package navgraph

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/spatial/r3"
)

// BuildOptions tunes Build.
type BuildOptions struct {
	// Workers bounds the number of scans processed concurrently. Zero means
	// runtime.NumCPU().
	Workers int

	// Logger receives progress lines. Nil means slog.Default().
	Logger *slog.Logger
}

// Index holds the graph, shortest path table and shortest distance table of
// every scan it was built for.
type Index struct {
	scans map[string]*scanTables
}

type scanTables struct {
	graph     *simple.WeightedUndirectedGraph
	ids       map[string]int64
	names     []string
	positions map[string]r3.Vec

	// paths[src][dst] is one shortest path from src to dst, both included.
	paths map[string]map[string][]string

	// dist[src][dst] is the total weight of paths[src][dst].
	dist map[string]map[string]float64
}

// Build loads every scan from src and runs Dijkstra from each of its nodes.
// The per-scan cost is O(V·(V+E)·log V); afterwards all lookups are map reads.
func Build(ctx context.Context, src ConnectivitySource, scans []string, opts BuildOptions) (*Index, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil connectivity source", ErrGraphLoad)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	unique := dedupe(scans)
	built := make([]*scanTables, len(unique))

	logger.Info("loading navigation graphs", "scans", len(unique), "workers", workers)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, scan := range unique {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			raw, err := src.Graph(scan)
			if err != nil {
				return fmt.Errorf("scan %s: %w", scan, err)
			}
			if raw.Scan == "" {
				raw.Scan = scan
			}
			tables, err := buildScan(raw)
			if err != nil {
				return err
			}
			built[i] = tables
			logger.Debug("navigation graph ready", "scan", scan, "viewpoints", len(tables.names))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	idx := &Index{scans: make(map[string]*scanTables, len(unique))}
	for i, scan := range unique {
		idx.scans[scan] = built[i]
	}
	return idx, nil
}

func dedupe(scans []string) []string {
	seen := make(map[string]bool, len(scans))
	out := make([]string, 0, len(scans))
	for _, s := range scans {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func buildScan(raw *Graph) (*scanTables, error) {
	if err := raw.validate(); err != nil {
		return nil, err
	}

	names := raw.sortedViewpoints()
	t := &scanTables{
		graph:     simple.NewWeightedUndirectedGraph(0, math.Inf(1)),
		ids:       make(map[string]int64, len(names)),
		names:     names,
		positions: make(map[string]r3.Vec, len(names)),
		paths:     make(map[string]map[string][]string, len(names)),
		dist:      make(map[string]map[string]float64, len(names)),
	}
	for i, vp := range names {
		t.ids[vp] = int64(i)
		t.graph.AddNode(simple.Node(i))
		if p, ok := raw.Positions[vp]; ok {
			t.positions[vp] = p
		}
	}
	for _, e := range raw.Edges {
		if e.From == e.To {
			continue
		}
		from, to := simple.Node(t.ids[e.From]), simple.Node(t.ids[e.To])
		t.graph.SetWeightedEdge(t.graph.NewWeightedEdge(from, to, e.Weight))
	}

	for i, src := range names {
		shortest := path.DijkstraFrom(simple.Node(i), t.graph)
		paths := make(map[string][]string, len(names))
		dist := make(map[string]float64, len(names))
		for j, dst := range names {
			nodes, w := shortest.To(int64(j))
			if len(nodes) == 0 || math.IsInf(w, 1) {
				continue
			}
			p := make([]string, len(nodes))
			for k, n := range nodes {
				p[k] = names[n.ID()]
			}
			paths[dst] = p
			dist[dst] = w
		}
		t.paths[src] = paths
		t.dist[src] = dist
	}
	return t, nil
}

func (idx *Index) tables(scan string) (*scanTables, error) {
	t, ok := idx.scans[scan]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScan, scan)
	}
	return t, nil
}

func (t *scanTables) check(scan string, vps ...string) error {
	for _, vp := range vps {
		if _, ok := t.ids[vp]; !ok {
			return fmt.Errorf("%w: %s in scan %s", ErrUnknownViewpoint, vp, scan)
		}
	}
	return nil
}

func (t *scanTables) distance(scan, a, b string) (float64, error) {
	if err := t.check(scan, a, b); err != nil {
		return 0, err
	}
	d, ok := t.dist[a][b]
	if !ok {
		return 0, fmt.Errorf("%w: %s and %s in scan %s", ErrUnreachable, a, b, scan)
	}
	return d, nil
}

// Distance returns the shortest-path distance between a and b in scan.
func (idx *Index) Distance(scan, a, b string) (float64, error) {
	t, err := idx.tables(scan)
	if err != nil {
		return 0, err
	}
	return t.distance(scan, a, b)
}

// Path returns one shortest path from a to b, both endpoints included. The
// returned slice is a copy and may be modified by the caller.
func (idx *Index) Path(scan, a, b string) ([]string, error) {
	t, err := idx.tables(scan)
	if err != nil {
		return nil, err
	}
	if err := t.check(scan, a, b); err != nil {
		return nil, err
	}
	p, ok := t.paths[a][b]
	if !ok {
		return nil, fmt.Errorf("%w: %s and %s in scan %s", ErrUnreachable, a, b, scan)
	}
	return append([]string(nil), p...), nil
}

// NearestPointOnPath returns the viewpoint of path closest to goal. Ties go
// to the earliest occurrence.
func (idx *Index) NearestPointOnPath(scan, goal string, path []string) (string, error) {
	t, err := idx.tables(scan)
	if err != nil {
		return "", err
	}
	return t.nearest(scan, goal, path)
}

func (t *scanTables) nearest(scan, goal string, path []string) (string, error) {
	if len(path) == 0 {
		return "", fmt.Errorf("nearest point to %s: empty path", goal)
	}
	nearID := path[0]
	nearD, err := t.distance(scan, nearID, goal)
	if err != nil {
		return "", err
	}
	for _, vp := range path[1:] {
		d, err := t.distance(scan, vp, goal)
		if err != nil {
			return "", err
		}
		if d < nearD {
			nearID, nearD = vp, d
		}
	}
	return nearID, nil
}

// Distances returns a read-only view of the distance table of scan.
func (idx *Index) Distances(scan string) (DistanceTable, error) {
	t, err := idx.tables(scan)
	if err != nil {
		return DistanceTable{}, err
	}
	return DistanceTable{scan: scan, t: t}, nil
}

// Scans lists the scans of the index in sorted order.
func (idx *Index) Scans() []string {
	out := make([]string, 0, len(idx.scans))
	for s := range idx.scans {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// HasScan reports whether scan was built.
func (idx *Index) HasScan(scan string) bool {
	_, ok := idx.scans[scan]
	return ok
}

// Viewpoints lists the viewpoints of scan in sorted order.
func (idx *Index) Viewpoints(scan string) ([]string, error) {
	t, err := idx.tables(scan)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), t.names...), nil
}

// Neighbors lists the viewpoints directly connected to vp, sorted by id.
func (idx *Index) Neighbors(scan, vp string) ([]string, error) {
	t, err := idx.tables(scan)
	if err != nil {
		return nil, err
	}
	if err := t.check(scan, vp); err != nil {
		return nil, err
	}
	var out []string
	it := t.graph.From(t.ids[vp])
	for it.Next() {
		out = append(out, t.names[it.Node().ID()])
	}
	sort.Strings(out)
	return out, nil
}

// Position returns the 3D location of vp. Viewpoints loaded without
// positions report the origin.
func (idx *Index) Position(scan, vp string) (r3.Vec, error) {
	t, err := idx.tables(scan)
	if err != nil {
		return r3.Vec{}, err
	}
	if err := t.check(scan, vp); err != nil {
		return r3.Vec{}, err
	}
	return t.positions[vp], nil
}

// DistanceTable is a scan-bound view over an Index, used by the evaluator's
// inner loops to avoid repeated scan lookups.
type DistanceTable struct {
	scan string
	t    *scanTables
}

// Scan returns the scan the table belongs to.
func (d DistanceTable) Scan() string { return d.scan }

// Lookup returns the shortest-path distance between a and b.
func (d DistanceTable) Lookup(a, b string) (float64, error) {
	if d.t == nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownScan, d.scan)
	}
	return d.t.distance(d.scan, a, b)
}

// Nearest is NearestPointOnPath bound to the table's scan.
func (d DistanceTable) Nearest(goal string, path []string) (string, error) {
	if d.t == nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownScan, d.scan)
	}
	return d.t.nearest(d.scan, goal, path)
}

// PathLength sums the distances between consecutive viewpoints of path.
func (d DistanceTable) PathLength(path []string) (float64, error) {
	total := 0.0
	for i := 1; i < len(path); i++ {
		w, err := d.Lookup(path[i-1], path[i])
		if err != nil {
			return 0, err
		}
		total += w
	}
	return total, nil
}
