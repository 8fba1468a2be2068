package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Noofbiz/navBench/evaluation"
)

// LogEntry is one JSONL line: the score of one episode within a run.
type LogEntry struct {
	Timestamp  time.Time          `json:"timestamp"`
	RunID      string             `json:"run_id"`
	InstrID    string             `json:"instr_id"`
	Scan       string             `json:"scan"`
	Scores     map[string]float64 `json:"scores"`
	Trajectory [][]string         `json:"trajectory,omitempty"`
}

// JSONLWriter appends evaluation results to a JSONL file, one episode per
// line. It is safe for concurrent use.
type JSONLWriter struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// NewJSONLWriter opens path in append mode, creating it if needed. The
// writer must be closed when done.
func NewJSONLWriter(path string) (*JSONLWriter, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return &JSONLWriter{path: path, file: file}, nil
}

// Write appends one entry and syncs the file.
func (w *JSONLWriter) Write(entry LogEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return fmt.Errorf("log file %s is closed", w.path)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.file.Write(data); err != nil {
		return fmt.Errorf("failed to write log entry: %w", err)
	}
	return w.file.Sync()
}

// WriteRun appends one entry per scored episode of m. preds, when given,
// supplies trajectories by instruction id.
func (w *JSONLWriter) WriteRun(runID string, m evaluation.Metrics, preds []evaluation.Prediction) error {
	trajs := make(map[string][][]string, len(preds))
	for _, p := range preds {
		trajs[p.InstrID] = p.Trajectory
	}
	now := time.Now().UTC()
	for i, s := range m.Scores {
		err := w.Write(LogEntry{
			Timestamp:  now,
			RunID:      runID,
			InstrID:    m.InstrIDs[i],
			Scan:       m.Scans[i],
			Scores:     s.Metrics(),
			Trajectory: trajs[m.InstrIDs[i]],
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Close closes the file. Further writes fail.
func (w *JSONLWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
