// Package store persists evaluation runs and their per-episode scores in
// SQLite, and appends them to JSONL logs.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Noofbiz/navBench/evaluation"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned for unknown run ids.
var ErrNotFound = errors.New("store: run not found")

// Run is one persisted evaluation.
type Run struct {
	RunID       string             `json:"run_id"`
	Dataset     string             `json:"dataset"`
	Agent       string             `json:"agent"`
	ErrorMargin float64            `json:"error_margin"`
	Summary     evaluation.Summary `json:"summary"`
	ConfigJSON  json.RawMessage    `json:"config_json,omitempty"`
	CreatedAt   int64              `json:"created_at"`
}

// EpisodeScore is one persisted per-episode score.
type EpisodeScore struct {
	RunID   string `json:"run_id"`
	InstrID string `json:"instr_id"`
	Scan    string `json:"scan"`
	evaluation.Score
}

// Store wraps a SQLite database holding eval_runs and episode_scores.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the database at path and migrates it to the
// latest schema. Use ":memory:" only with a single connection.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("score store ready", "path", path)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertRun stores run and the per-item scores of m in one transaction. An
// empty RunID is replaced by a new UUID and a zero CreatedAt by now.
func (s *Store) InsertRun(ctx context.Context, run *Run, m evaluation.Metrics) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().UnixNano()
	}
	summaryJSON, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	var configStr interface{}
	if len(run.ConfigJSON) > 0 {
		configStr = string(run.ConfigJSON)
	}

	return retryOnBusy(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()

		sm := run.Summary
		_, err = tx.ExecContext(ctx, `
			INSERT INTO eval_runs (
				run_id, dataset, agent, error_margin, episode_count,
				sr, oracle_sr, spl, ndtw, sdtw, cls, nav_error, oracle_error,
				summary_json, config_json, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.Dataset, run.Agent, run.ErrorMargin, sm.Count,
			sm.SR, sm.OracleSR, sm.SPL, sm.NDTW, sm.SDTW, sm.CLS, sm.NavError, sm.OracleError,
			string(summaryJSON), configStr, run.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO episode_scores (
				run_id, seq, instr_id, scan, nav_error, oracle_error,
				action_steps, trajectory_steps, trajectory_length,
				success, oracle_success, spl, dtw, ndtw, sdtw, cls
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare score insert: %w", err)
		}
		defer stmt.Close()

		for i, sc := range m.Scores {
			_, err := stmt.ExecContext(ctx,
				run.RunID, i, m.InstrIDs[i], m.Scans[i], sc.NavError, sc.OracleError,
				sc.ActionSteps, sc.TrajectorySteps, sc.TrajectoryLength,
				sc.Success, sc.OracleSuccess, sc.SPL, sc.DTW, sc.NDTW, sc.SDTW, sc.CLS,
			)
			if err != nil {
				return fmt.Errorf("insert score %s: %w", m.InstrIDs[i], err)
			}
		}
		return tx.Commit()
	})
}

const runColumns = `run_id, dataset, agent, error_margin, summary_json, config_json, created_at`

// GetRun returns the run with the given id.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM eval_runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return run, err
}

// ListRuns returns every run of dataset, newest first. An empty dataset
// lists all runs.
func (s *Store) ListRuns(ctx context.Context, dataset string) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM eval_runs`
	var args []any
	if dataset != "" {
		query += ` WHERE dataset = ?`
		args = append(args, dataset)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListScores returns the per-episode scores of a run in evaluation order.
func (s *Store) ListScores(ctx context.Context, runID string) ([]EpisodeScore, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, instr_id, scan, nav_error, oracle_error,
		       action_steps, trajectory_steps, trajectory_length,
		       success, oracle_success, spl, dtw, ndtw, sdtw, cls
		FROM episode_scores
		WHERE run_id = ?
		ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query scores: %w", err)
	}
	defer rows.Close()

	var out []EpisodeScore
	for rows.Next() {
		var e EpisodeScore
		err := rows.Scan(
			&e.RunID, &e.InstrID, &e.Scan, &e.NavError, &e.OracleError,
			&e.ActionSteps, &e.TrajectorySteps, &e.TrajectoryLength,
			&e.Success, &e.OracleSuccess, &e.SPL, &e.DTW, &e.NDTW, &e.SDTW, &e.CLS,
		)
		if err != nil {
			return nil, fmt.Errorf("scan score row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its scores.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	return retryOnBusy(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `DELETE FROM episode_scores WHERE run_id = ?`, runID); err != nil {
			return fmt.Errorf("delete scores: %w", err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM eval_runs WHERE run_id = ?`, runID)
		if err != nil {
			return fmt.Errorf("delete run: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return tx.Commit()
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run        Run
		summaryStr string
		configStr  sql.NullString
	)
	err := row.Scan(&run.RunID, &run.Dataset, &run.Agent, &run.ErrorMargin, &summaryStr, &configStr, &run.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run row: %w", err)
	}
	if err := json.Unmarshal([]byte(summaryStr), &run.Summary); err != nil {
		return nil, fmt.Errorf("decode summary of %s: %w", run.RunID, err)
	}
	if configStr.Valid {
		run.ConfigJSON = json.RawMessage(configStr.String)
	}
	return &run, nil
}

// retryOnBusy retries fn while SQLite reports the database as locked.
func retryOnBusy(fn func() error) error {
	const attempts = 5
	backoff := 10 * time.Millisecond
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || !isBusy(err) {
			return err
		}
		time.Sleep(backoff)
		backoff *= 2
	}
	return err
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
