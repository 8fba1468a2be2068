package datasets

import (
	"os"
	"path/filepath"
	"testing"
)

// writeFile writes content to name inside dir and returns the full path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

const episodesJSON = `[
  {"instr_id": "1_0", "scan": "S1", "path": ["A", "B", "C"], "heading": 1.5, "instruction": "walk down the hall"},
  {"instr_id": "2_0", "scan": "S2", "path": ["X", "Y"], "heading": 0, "objId": "42", "path_id": 7},
  {"instr_id": "3_0", "scan": "S1", "path": ["C"], "heading": 3.1}
]`

const episodesYAML = `
- instr_id: "1_0"
  scan: S1
  path: [A, B, C]
  heading: 1.5
- instr_id: "2_0"
  scan: S2
  path: [X, Y]
  heading: 0
  objId: "42"
`

func TestLoadEpisodes_JSONAndYAML(t *testing.T) {
	tmp := t.TempDir()

	ds, err := LoadEpisodes(writeFile(t, tmp, "val.json", episodesJSON))
	if err != nil {
		t.Fatalf("LoadEpisodes(json) failed: %v", err)
	}
	if got := ds.Len(); got != 3 {
		t.Fatalf("expected 3 episodes, got %d", got)
	}

	r, err := ds.Example(1)
	if err != nil {
		t.Fatalf("Example(1) error: %v", err)
	}
	if r.ObjID == nil || *r.ObjID != "42" {
		t.Fatalf("expected objId 42, got %v", r.ObjID)
	}
	if r.PathID == nil || *r.PathID != 7 {
		t.Fatalf("expected path_id 7, got %v", r.PathID)
	}
	if r.Start() != "X" || r.Goal() != "Y" {
		t.Fatalf("unexpected start/goal %s/%s", r.Start(), r.Goal())
	}

	scans := ds.Scans()
	if len(scans) != 2 || scans[0] != "S1" || scans[1] != "S2" {
		t.Fatalf("unexpected scans: %v", scans)
	}

	yds, err := LoadEpisodes(writeFile(t, tmp, "val.yaml", episodesYAML))
	if err != nil {
		t.Fatalf("LoadEpisodes(yaml) failed: %v", err)
	}
	if yds.Len() != 2 {
		t.Fatalf("expected 2 yaml episodes, got %d", yds.Len())
	}
	first, _ := yds.Example(0)
	if first.Heading != 1.5 || len(first.Path) != 3 {
		t.Fatalf("unexpected yaml record: %+v", first)
	}
}

func TestLoadEpisodes_Invalid(t *testing.T) {
	tmp := t.TempDir()

	cases := map[string]string{
		"dup.json":     `[{"instr_id": "a", "scan": "S", "path": ["A"]}, {"instr_id": "a", "scan": "S", "path": ["B"]}]`,
		"nopath.json":  `[{"instr_id": "a", "scan": "S", "path": []}]`,
		"noscan.json":  `[{"instr_id": "a", "path": ["A"]}]`,
		"noid.json":    `[{"scan": "S", "path": ["A"]}]`,
		"broken.json":  `[{`,
		"episodes.txt": `[]`,
	}
	for name, content := range cases {
		if _, err := LoadEpisodes(writeFile(t, tmp, name, content)); err == nil {
			t.Fatalf("expected error for %s, got nil", name)
		}
	}

	if _, err := LoadEpisodes(filepath.Join(tmp, "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestEpisodeDataset_BatchShuffleSplit(t *testing.T) {
	records := make([]EpisodeRecord, 10)
	for i := range records {
		records[i] = EpisodeRecord{InstrID: string(rune('a' + i)), Scan: "S", Path: []string{"A"}}
	}
	ds, err := NewEpisodeDataset("train", records)
	if err != nil {
		t.Fatalf("NewEpisodeDataset failed: %v", err)
	}

	batch, err := ds.Batch([]int{3, 0, 9})
	if err != nil {
		t.Fatalf("Batch error: %v", err)
	}
	if batch[0].InstrID != "d" || batch[1].InstrID != "a" || batch[2].InstrID != "j" {
		t.Fatalf("unexpected batch order: %+v", batch)
	}
	if _, err := ds.Batch([]int{10}); err == nil {
		t.Fatalf("expected out of range error")
	}

	// Same seed, same permutation.
	a, _ := NewEpisodeDataset("a", records)
	b, _ := NewEpisodeDataset("b", records)
	a.Shuffle(5)
	b.Shuffle(5)
	for i := 0; i < a.Len(); i++ {
		ra, _ := a.Example(i)
		rb, _ := b.Example(i)
		if ra.InstrID != rb.InstrID {
			t.Fatalf("shuffle is not deterministic at %d: %s vs %s", i, ra.InstrID, rb.InstrID)
		}
	}
	// The source slice is untouched.
	if records[0].InstrID != "a" {
		t.Fatalf("shuffle leaked into caller slice")
	}

	total := 0
	for part := 0; part < 3; part++ {
		s, err := ds.Split(part, 3)
		if err != nil {
			t.Fatalf("Split(%d, 3) error: %v", part, err)
		}
		want := 3
		if part == 2 {
			want = 4
		}
		if s.Len() != want {
			t.Fatalf("Split(%d, 3) has %d records, want %d", part, s.Len(), want)
		}
		total += s.Len()
	}
	if total != ds.Len() {
		t.Fatalf("splits cover %d records, want %d", total, ds.Len())
	}
	if _, err := ds.Split(3, 3); err == nil {
		t.Fatalf("expected error for out of range part")
	}
}

func TestGoalTable(t *testing.T) {
	tmp := t.TempDir()
	path := writeFile(t, tmp, "goals.json", `{"S1_42": ["C", "D"], "S1_7": []}`)

	goals, err := LoadGoalTable(path)
	if err != nil {
		t.Fatalf("LoadGoalTable failed: %v", err)
	}
	vps, ok := goals.Goals("S1", "42")
	if !ok || len(vps) != 2 {
		t.Fatalf("unexpected goals: %v %v", vps, ok)
	}
	if vps, ok := goals.Goals("S1", "7"); !ok || len(vps) != 0 {
		t.Fatalf("expected present but empty goal set, got %v %v", vps, ok)
	}
	if _, ok := goals.Goals("S2", "42"); ok {
		t.Fatalf("expected missing entry for S2_42")
	}
}

func TestLoadCandidateTable(t *testing.T) {
	tmp := t.TempDir()
	path := writeFile(t, tmp, "cands.json", `{
  "S1_A": {
    "C": [14, 14, 2.0, 0.5, -0.1, [2.0, 0.0, 1.5]],
    "B": [13, 13, 1.0, 0.0, 0.0, [1.0, 0.0, 1.5]]
  }
}`)

	table, err := LoadCandidateTable(path)
	if err != nil {
		t.Fatalf("LoadCandidateTable failed: %v", err)
	}
	ns, ok := table.Neighbors("S1", "A")
	if !ok || len(ns) != 2 {
		t.Fatalf("unexpected neighbours: %+v", ns)
	}
	if ns[0].Viewpoint != "B" || ns[1].Viewpoint != "C" {
		t.Fatalf("neighbours not ordered by id: %+v", ns)
	}
	if ns[1].FeatureIndex != 14 || ns[1].Heading != 0.5 || ns[1].Position.X != 2.0 {
		t.Fatalf("unexpected neighbour fields: %+v", ns[1])
	}
	if _, ok := table.Neighbors("S1", "Z"); ok {
		t.Fatalf("expected no entry for S1_Z")
	}

	bad := writeFile(t, tmp, "bad.json", `{"S1_A": {"B": [1, 2, 3]}}`)
	if _, err := LoadCandidateTable(bad); err == nil {
		t.Fatalf("expected error for short candidate row")
	}
}

func TestFeatureBatchFlat(t *testing.T) {
	features := [][][]float32{
		{{1, 2}, {3, 4}, {5, 6}},
		{{7, 8}, {9, 10}, {11, 12}},
	}
	flat, err := MakeFeatureBatchFlat(features)
	if err != nil {
		t.Fatalf("MakeFeatureBatchFlat error: %v", err)
	}
	if flat.Batch != 2 || flat.Views != 3 || flat.Dim != 2 || len(flat.Buf) != 12 {
		t.Fatalf("unexpected dims: %+v", flat)
	}
	if flat.Buf[6] != 7 || flat.Buf[11] != 12 {
		t.Fatalf("unexpected layout: %v", flat.Buf)
	}

	tensor, err := flat.ToGomlxTensor()
	if err != nil || tensor == nil {
		t.Fatalf("ToGomlxTensor failed: %v", err)
	}

	if _, err := MakeFeatureBatchFlat([][][]float32{{{1, 2}}, {{1}}}); err == nil {
		t.Fatalf("expected error for inconsistent dimensions")
	}
	empty, err := MakeFeatureBatchFlat(nil)
	if err != nil {
		t.Fatalf("empty batch error: %v", err)
	}
	if empty.Batch != 0 || len(empty.Buf) != 0 {
		t.Fatalf("expected empty batch, got %+v", empty)
	}
}

func TestFindConnectivityScans(t *testing.T) {
	tmp := t.TempDir()
	writeFile(t, tmp, "zeta_connectivity.json", "[]")
	writeFile(t, tmp, "alpha_connectivity.json", "[]")
	writeFile(t, tmp, "notes.txt", "")

	scans, err := FindConnectivityScans(tmp)
	if err != nil {
		t.Fatalf("FindConnectivityScans error: %v", err)
	}
	if len(scans) != 2 || scans[0] != "alpha" || scans[1] != "zeta" {
		t.Fatalf("unexpected scans: %v", scans)
	}
	if _, err := FindConnectivityScans(t.TempDir()); err == nil {
		t.Fatalf("expected error for empty directory")
	}
}
