package datasets

import (
	"fmt"
	"math/rand"
	"sort"
)

// EpisodeRecord is one evaluation unit: an instruction over a reference path
// in a single scan.
type EpisodeRecord struct {
	InstrID     string   `json:"instr_id" yaml:"instr_id"`
	Scan        string   `json:"scan" yaml:"scan"`
	Path        []string `json:"path" yaml:"path"`
	Heading     float64  `json:"heading" yaml:"heading"`
	Instruction string   `json:"instruction,omitempty" yaml:"instruction,omitempty"`

	// ObjID is the target object for multi-goal (object search) episodes.
	ObjID *string `json:"objId,omitempty" yaml:"objId,omitempty"`

	PathID *int `json:"path_id,omitempty" yaml:"path_id,omitempty"`
}

// Start returns the first viewpoint of the reference path.
func (r EpisodeRecord) Start() string {
	if len(r.Path) == 0 {
		return ""
	}
	return r.Path[0]
}

// Goal returns the last viewpoint of the reference path.
func (r EpisodeRecord) Goal() string {
	if len(r.Path) == 0 {
		return ""
	}
	return r.Path[len(r.Path)-1]
}

// EpisodeDataset is an ordered, in-memory collection of episode records.
type EpisodeDataset struct {
	// Name identifies the split (e.g. "val_unseen").
	Name string

	records []EpisodeRecord
}

// NewEpisodeDataset validates records and wraps them in a dataset. The slice
// is copied.
func NewEpisodeDataset(name string, records []EpisodeRecord) (*EpisodeDataset, error) {
	ds := &EpisodeDataset{
		Name:    name,
		records: append([]EpisodeRecord(nil), records...),
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

// LoadEpisodes reads a list of episode records from a .json, .yaml or .yml file.
func LoadEpisodes(path string) (*EpisodeDataset, error) {
	var records []EpisodeRecord
	if err := decodeFile(path, &records); err != nil {
		return nil, err
	}
	ds, err := NewEpisodeDataset(path, records)
	if err != nil {
		return nil, fmt.Errorf("episode validation failed for %s: %w", path, err)
	}
	return ds, nil
}

// Validate checks that every record has the required fields and that
// instruction ids are unique.
func (d *EpisodeDataset) Validate() error {
	seen := make(map[string]bool, len(d.records))
	for i, r := range d.records {
		if r.InstrID == "" {
			return fmt.Errorf("episode at index %d is missing required field 'instr_id'", i)
		}
		if r.Scan == "" {
			return fmt.Errorf("episode %s is missing required field 'scan'", r.InstrID)
		}
		if len(r.Path) == 0 {
			return fmt.Errorf("episode %s has an empty reference path", r.InstrID)
		}
		if seen[r.InstrID] {
			return fmt.Errorf("duplicate instr_id found: %s", r.InstrID)
		}
		seen[r.InstrID] = true
	}
	return nil
}

// Len returns the number of records.
func (d *EpisodeDataset) Len() int {
	return len(d.records)
}

// Example returns the record at index i.
func (d *EpisodeDataset) Example(i int) (EpisodeRecord, error) {
	if i < 0 || i >= len(d.records) {
		return EpisodeRecord{}, fmt.Errorf("index %d out of range [0, %d)", i, len(d.records))
	}
	return d.records[i], nil
}

// Batch returns the records at the given indices, in order.
func (d *EpisodeDataset) Batch(indices []int) ([]EpisodeRecord, error) {
	out := make([]EpisodeRecord, len(indices))
	for pos, i := range indices {
		r, err := d.Example(i)
		if err != nil {
			return nil, err
		}
		out[pos] = r
	}
	return out, nil
}

// Shuffle permutes the record order deterministically from seed.
func (d *EpisodeDataset) Shuffle(seed int64) {
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(d.records), func(i, j int) {
		d.records[i], d.records[j] = d.records[j], d.records[i]
	})
}

// Records returns a copy of the records in their current order.
func (d *EpisodeDataset) Records() []EpisodeRecord {
	return append([]EpisodeRecord(nil), d.records...)
}

// Scans lists the distinct scans referenced by the dataset, sorted.
func (d *EpisodeDataset) Scans() []string {
	seen := make(map[string]bool)
	var scans []string
	for _, r := range d.records {
		if !seen[r.Scan] {
			seen[r.Scan] = true
			scans = append(scans, r.Scan)
		}
	}
	sort.Strings(scans)
	return scans
}

// Split returns shard part of parts contiguous shards. Every shard holds
// Len()/parts records; the last one also takes the remainder.
func (d *EpisodeDataset) Split(part, parts int) (*EpisodeDataset, error) {
	if parts < 1 {
		return nil, fmt.Errorf("parts must be >= 1, got %d", parts)
	}
	if part < 0 || part >= parts {
		return nil, fmt.Errorf("part %d out of range [0, %d)", part, parts)
	}

	per := len(d.records) / parts
	start := per * part
	end := start + per
	if part == parts-1 {
		end = len(d.records)
	}
	return &EpisodeDataset{
		Name:    fmt.Sprintf("%s[%d/%d]", d.Name, part, parts),
		records: append([]EpisodeRecord(nil), d.records[start:end]...),
	}, nil
}
