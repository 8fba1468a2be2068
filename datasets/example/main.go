package main

// Example command that loads an episode file and, optionally, a candidate
// table, prints a short description of both and converts a small zero
// feature batch into a gomlx tensor using the helpers provided in the
// package.
//
// Usage:
//   go run ./example -episodes data/R2R_val_unseen.json -candidates data/candidates.json

import (
	"flag"
	"fmt"
	"log"

	"github.com/Noofbiz/navBench/datasets"
)

func main() {
	episodes := flag.String("episodes", "", "episode file (.json, .yaml, .yml)")
	candidates := flag.String("candidates", "", "candidate table (optional)")
	parts := flag.Int("parts", 4, "number of validation splits to describe")
	views := flag.Int("views", 36, "views per feature array")
	dim := flag.Int("dim", 8, "feature dimension")
	flag.Parse()

	if *episodes == "" {
		log.Fatalf("-episodes is required")
	}
	ds, err := datasets.LoadEpisodes(*episodes)
	if err != nil {
		log.Fatalf("failed to load episodes: %v", err)
	}
	fmt.Printf("Episode dataset %q: %d records over %d scans\n", ds.Name, ds.Len(), len(ds.Scans()))

	n := min(3, ds.Len())
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	batch, err := ds.Batch(indices)
	if err != nil {
		log.Fatalf("failed to read batch: %v", err)
	}
	for _, r := range batch {
		fmt.Printf("  %s scan=%s start=%s goal=%s steps=%d\n", r.InstrID, r.Scan, r.Start(), r.Goal(), len(r.Path)-1)
	}

	for part := 0; part < *parts; part++ {
		split, err := ds.Split(part, *parts)
		if err != nil {
			log.Fatalf("failed to split: %v", err)
		}
		fmt.Printf("  split %s: %d records\n", split.Name, split.Len())
	}

	if *candidates != "" {
		table, err := datasets.LoadCandidateTable(*candidates)
		if err != nil {
			log.Fatalf("failed to load candidate table: %v", err)
		}
		fmt.Printf("Candidate table: %d viewpoints\n", table.Len())
		for _, r := range batch {
			ns, ok := table.Neighbors(r.Scan, r.Start())
			if !ok {
				fmt.Printf("  %s: no candidates for start %s\n", r.InstrID, r.Start())
				continue
			}
			fmt.Printf("  %s: %d candidates at start\n", r.InstrID, len(ns))
		}
	}

	// One zero feature array per batch slot, flattened and converted.
	features := make([][][]float32, n)
	for i := range features {
		features[i] = make([][]float32, *views)
		for v := range features[i] {
			features[i][v] = make([]float32, *dim)
		}
	}
	flat, err := datasets.MakeFeatureBatchFlat(features)
	if err != nil {
		log.Fatalf("failed to flatten features: %v", err)
	}
	t, err := flat.ToGomlxTensor()
	if err != nil {
		log.Fatalf("failed to convert features to a gomlx tensor: %v", err)
	}
	fmt.Printf("Created feature tensor %T with shape [%d, %d, %d]\n", t, flat.Batch, flat.Views, flat.Dim)
}
