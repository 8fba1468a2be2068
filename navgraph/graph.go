package navgraph

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// Edge is an undirected, weighted connection between two viewpoints of a scan.
type Edge struct {
	From   string
	To     string
	Weight float64
}

// Graph is the raw connectivity of a single scan as delivered by a
// ConnectivitySource. It is converted into gonum graphs and lookup tables by
// Build and is not retained afterwards.
type Graph struct {
	Scan string

	// Viewpoints lists every node of the scan, including isolated ones.
	Viewpoints []string

	// Positions holds the 3D location of each viewpoint (optional).
	Positions map[string]r3.Vec

	Edges []Edge
}

// ConnectivitySource provides per-scan graph topology.
type ConnectivitySource interface {
	Graph(scan string) (*Graph, error)
}

// MemorySource is an in-memory ConnectivitySource keyed by scan id.
type MemorySource map[string]*Graph

// Graph returns the graph registered for scan.
func (m MemorySource) Graph(scan string) (*Graph, error) {
	g, ok := m[scan]
	if !ok || g == nil {
		return nil, fmt.Errorf("%w: no connectivity for scan %q", ErrGraphLoad, scan)
	}
	return g, nil
}

// DirSource reads Matterport style connectivity files named
// "<scan>_connectivity.json" from Dir.
type DirSource struct {
	Dir string
}

// connectivityItem is one entry of a connectivity file. Pose is a row-major
// 4x4 camera-to-world matrix; the translation lives in elements 3, 7 and 11.
type connectivityItem struct {
	ImageID      string    `json:"image_id"`
	Pose         []float64 `json:"pose"`
	Included     bool      `json:"included"`
	Unobstructed []bool    `json:"unobstructed"`
	Height       float64   `json:"height"`
}

// Graph loads and validates the connectivity file for scan.
func (d DirSource) Graph(scan string) (*Graph, error) {
	path := filepath.Join(d.Dir, scan+"_connectivity.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrGraphLoad, path, err)
	}

	var items []connectivityItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrGraphLoad, path, err)
	}
	return graphFromItems(scan, items)
}

func graphFromItems(scan string, items []connectivityItem) (*Graph, error) {
	g := &Graph{
		Scan:      scan,
		Positions: make(map[string]r3.Vec, len(items)),
	}

	for i, item := range items {
		if !item.Included {
			continue
		}
		if item.ImageID == "" {
			return nil, fmt.Errorf("%w: scan %s: item %d has no image_id", ErrGraphLoad, scan, i)
		}
		if len(item.Pose) != 16 {
			return nil, fmt.Errorf("%w: scan %s: viewpoint %s has pose of length %d", ErrGraphLoad, scan, item.ImageID, len(item.Pose))
		}
		if len(item.Unobstructed) != len(items) {
			return nil, fmt.Errorf("%w: scan %s: viewpoint %s has %d unobstructed flags, want %d",
				ErrGraphLoad, scan, item.ImageID, len(item.Unobstructed), len(items))
		}
		g.Viewpoints = append(g.Viewpoints, item.ImageID)
		g.Positions[item.ImageID] = poseTranslation(item.Pose)
	}

	for i, item := range items {
		if !item.Included {
			continue
		}
		// Each undirected edge is emitted once, from the lower index. A flag
		// set on either side connects the pair.
		for j := i + 1; j < len(items); j++ {
			if !items[j].Included {
				continue
			}
			if !item.Unobstructed[j] && !items[j].Unobstructed[i] {
				continue
			}
			a, b := g.Positions[item.ImageID], g.Positions[items[j].ImageID]
			g.Edges = append(g.Edges, Edge{
				From:   item.ImageID,
				To:     items[j].ImageID,
				Weight: r3.Norm(r3.Sub(a, b)),
			})
		}
	}

	return g, nil
}

func poseTranslation(pose []float64) r3.Vec {
	return r3.Vec{X: pose[3], Y: pose[7], Z: pose[11]}
}

// validate checks the structural invariants Build relies on: known endpoints
// and finite, non-negative weights.
func (g *Graph) validate() error {
	known := make(map[string]bool, len(g.Viewpoints))
	for _, vp := range g.Viewpoints {
		if vp == "" {
			return fmt.Errorf("%w: scan %s: empty viewpoint id", ErrGraphLoad, g.Scan)
		}
		if known[vp] {
			return fmt.Errorf("%w: scan %s: duplicate viewpoint %s", ErrGraphLoad, g.Scan, vp)
		}
		known[vp] = true
	}
	for _, e := range g.Edges {
		if !known[e.From] || !known[e.To] {
			return fmt.Errorf("%w: scan %s: edge %s -> %s references an unknown viewpoint", ErrGraphLoad, g.Scan, e.From, e.To)
		}
		if e.Weight < 0 || math.IsNaN(e.Weight) || math.IsInf(e.Weight, 0) {
			return fmt.Errorf("%w: scan %s: edge %s -> %s has invalid weight %v", ErrGraphLoad, g.Scan, e.From, e.To, e.Weight)
		}
	}
	return nil
}

// sortedViewpoints returns a sorted copy of the viewpoint ids so node ids are
// assigned deterministically.
func (g *Graph) sortedViewpoints() []string {
	vps := append([]string(nil), g.Viewpoints...)
	sort.Strings(vps)
	return vps
}
