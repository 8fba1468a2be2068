// Command navbench rolls a baseline agent through a navigation dataset,
// scores the trajectories and writes the results to SQLite, JSONL, CSV and
// PNG plots.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/Noofbiz/navBench/agents"
	"github.com/Noofbiz/navBench/config"
	"github.com/Noofbiz/navBench/datasets"
	"github.com/Noofbiz/navBench/evaluation"
	"github.com/Noofbiz/navBench/navenv"
	"github.com/Noofbiz/navBench/navgraph"
	"github.com/Noofbiz/navBench/report"
	"github.com/Noofbiz/navBench/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML or JSON run configuration (optional)")
	episodes := flag.String("episodes", "", "episode file (.json, .yaml, .yml)")
	name := flag.String("name", "", "dataset label for stored runs (default: episode file name)")
	connectivity := flag.String("connectivity", "", "directory of <scan>_connectivity.json files")
	candidates := flag.String("candidates", "", "precomputed candidate table (JSON)")
	goals := flag.String("goals", "", "multi-goal membership table (JSON, optional)")
	splitPart := flag.Int("split-part", 0, "episode split to run (with -split-parts)")
	splitParts := flag.Int("split-parts", 0, "number of episode splits (0 = no split)")
	batchSize := flag.Int("batch-size", 8, "episodes per batch (overrides config if provided)")
	seed := flag.Int64("seed", 0, "random seed for shuffling and the random agent (0 = time based)")
	mode := flag.String("mode", "simulated", "environment mode: simulated or real-world")
	noShuffle := flag.Bool("no-shuffle", false, "keep the dataset order for the first epoch (simulated mode shuffles by default)")
	workers := flag.Int("workers", 0, "workers for graph build, observations and scoring (0 = NumCPU)")
	agentKind := flag.String("agent", "shortest", "baseline agent: shortest or random")
	maxSteps := flag.Int("max-steps", 15, "maximum moves per episode")
	stopProb := flag.Float64("stop-prob", 0.1, "per-step stop probability of the random agent")
	errorMargin := flag.Float64("error-margin", evaluation.DefaultErrorMargin, "success radius in graph distance units")
	sqlitePath := flag.String("sqlite", "", "if set, store the run in this SQLite database")
	jsonlPath := flag.String("jsonl", "", "if set, append per-episode scores to this JSONL file")
	outCSV := flag.String("out-csv", "", "if set, write per-episode scores to this CSV (summary goes next to it)")
	plotDir := flag.String("plots", "", "if set, write metric plots into this directory")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "text", "log format: text, json or console")
	printEffectiveConfig := flag.Bool("print-effective-config", false, "print the effective (file+CLI merged) configuration and exit")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fatal("failed to load config", err)
		}
		cfg = loaded
	}

	// Explicit flags override the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "episodes":
			cfg.Data.Episodes = *episodes
			// Re-derived below unless -name is also set.
			cfg.Data.Name = ""
		case "name":
			cfg.Data.Name = *name
		case "connectivity":
			cfg.Data.ConnectivityDir = *connectivity
		case "candidates":
			cfg.Data.Candidates = *candidates
		case "goals":
			cfg.Data.Goals = *goals
		case "split-part":
			cfg.Data.SplitPart = *splitPart
		case "split-parts":
			cfg.Data.SplitParts = *splitParts
		case "batch-size":
			cfg.Env.BatchSize = *batchSize
		case "seed":
			cfg.Env.Seed = *seed
			cfg.Agent.Seed = *seed
		case "mode":
			cfg.Env.Mode = *mode
		case "no-shuffle":
			cfg.Env.NoShuffle = *noShuffle
		case "workers":
			cfg.Env.Workers = *workers
			cfg.Eval.Workers = *workers
		case "agent":
			cfg.Agent.Kind = *agentKind
		case "max-steps":
			cfg.Agent.MaxSteps = *maxSteps
		case "stop-prob":
			cfg.Agent.StopProb = *stopProb
		case "error-margin":
			cfg.Eval.ErrorMargin = *errorMargin
		case "sqlite":
			cfg.Output.SQLite = *sqlitePath
		case "jsonl":
			cfg.Output.JSONL = *jsonlPath
		case "out-csv":
			cfg.Output.CSV = *outCSV
		case "plots":
			cfg.Output.PlotDir = *plotDir
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-format":
			cfg.Log.Format = *logFormat
		}
	})
	cfg.ApplyDefaults()

	if *printEffectiveConfig {
		out, _ := json.MarshalIndent(cfg, "", "  ")
		fmt.Println(string(out))
		return
	}
	if err := cfg.Validate(); err != nil {
		fatal("invalid configuration", err)
	}

	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		fatal("failed to build logger", err)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		fatal("run failed", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	start := time.Now()
	mode, err := navenv.ParseMode(cfg.Env.Mode)
	if err != nil {
		return err
	}

	ds, err := datasets.LoadEpisodes(cfg.Data.Episodes)
	if err != nil {
		return fmt.Errorf("load episodes: %w", err)
	}
	ds.Name = cfg.Data.Name
	if cfg.Data.SplitParts > 0 {
		ds, err = ds.Split(cfg.Data.SplitPart, cfg.Data.SplitParts)
		if err != nil {
			return fmt.Errorf("split episodes: %w", err)
		}
	}
	logger.Info("episodes loaded", "dataset", ds.Name, "episodes", ds.Len(), "scans", len(ds.Scans()))

	index, err := navgraph.Build(ctx, navgraph.DirSource{Dir: cfg.Data.ConnectivityDir}, ds.Scans(), navgraph.BuildOptions{
		Workers: cfg.Env.Workers,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("build navigation index: %w", err)
	}

	opts := navenv.Options{
		Sims:      navenv.NewGraphSimulators(index, cfg.Env.BatchSize),
		Features:  navenv.ZeroFeatureStore{Views: cfg.Env.FeatureViews, Dim: cfg.Env.FeatureDim},
		Index:     index,
		Dataset:   ds,
		BatchSize: cfg.Env.BatchSize,
		Seed:      cfg.Env.Seed,
		NoShuffle: cfg.Env.NoShuffle,
		Mode:      mode,
		Workers:   cfg.Env.Workers,
		Logger:    logger,
	}
	if cfg.Data.Candidates != "" {
		table, err := datasets.LoadCandidateTable(cfg.Data.Candidates)
		if err != nil {
			return fmt.Errorf("load candidates: %w", err)
		}
		logger.Info("candidate table loaded", "entries", table.Len())
		opts.Candidates = table
	}
	env, err := navenv.NewNavBatch(opts)
	if err != nil {
		return fmt.Errorf("create environment: %w", err)
	}

	// Reset one batch so shape problems surface before the full rollout.
	obs, err := env.Reset(0)
	if err != nil {
		return fmt.Errorf("reset environment: %w", err)
	}
	if t, err := obs.FeatureTensor(); err == nil {
		logger.Info("observation features", "shape", t.Shape().Dimensions)
	} else {
		logger.Warn("observation features unavailable", "error", err)
	}

	agent, err := agents.New(cfg.Agent, index)
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	preds, err := agents.RolloutAll(ctx, env, agent, cfg.Agent.MaxSteps, logger)
	if err != nil {
		return fmt.Errorf("rollout: %w", err)
	}

	evalOpts := evaluation.Options{
		ErrorMargin: cfg.Eval.ErrorMargin,
		Workers:     cfg.Eval.Workers,
		Meter:       otel.Meter("github.com/Noofbiz/navBench/evaluation"),
		Tracer:      otel.Tracer("github.com/Noofbiz/navBench/evaluation"),
		Logger:      logger,
	}
	if cfg.Data.Goals != "" {
		goals, err := datasets.LoadGoalTable(cfg.Data.Goals)
		if err != nil {
			return fmt.Errorf("load goals: %w", err)
		}
		evalOpts.Goals = goals
	}
	refs, err := evaluation.ReferencesFromDataset(ds)
	if err != nil {
		return err
	}
	evaluator, err := evaluation.NewEvaluator(index, refs, evalOpts)
	if err != nil {
		return fmt.Errorf("create evaluator: %w", err)
	}
	summary, metrics, err := evaluator.EvalMetrics(ctx, preds)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	logger.Info("evaluation summary",
		"episodes", summary.Count,
		"sr", summary.SR,
		"oracle_sr", summary.OracleSR,
		"spl", summary.SPL,
		"nDTW", summary.NDTW,
		"SDTW", summary.SDTW,
		"CLS", summary.CLS,
		"nav_error", summary.NavError,
	)

	runID, err := persist(ctx, cfg, ds.Name, summary, metrics, preds, logger)
	if err != nil {
		return err
	}

	if cfg.Output.CSV != "" {
		if err := report.WriteCSV(cfg.Output.CSV, metrics); err != nil {
			return err
		}
		summaryPath := filepath.Join(filepath.Dir(cfg.Output.CSV), "summary.csv")
		if err := report.WriteSummaryCSV(summaryPath, summary); err != nil {
			return err
		}
		logger.Info("wrote CSV", "episodes", cfg.Output.CSV, "summary", summaryPath)
	}
	if cfg.Output.PlotDir != "" {
		paths, err := report.PlotHistograms(cfg.Output.PlotDir, metrics, 0)
		if err != nil {
			return fmt.Errorf("plot histograms: %w", err)
		}
		p, err := report.PlotNavError(cfg.Output.PlotDir, metrics, evaluator.ErrorMargin())
		if err != nil {
			return fmt.Errorf("plot nav error: %w", err)
		}
		logger.Info("wrote plots", "histograms", len(paths), "scatter", p)
	}

	logger.Info("done", "run_id", runID, "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// persist writes the run to the configured SQLite and JSONL sinks and
// returns the run id. Without SQLite a fresh id is still assigned.
func persist(ctx context.Context, cfg *config.Config, dataset string, summary evaluation.Summary, metrics evaluation.Metrics, preds []evaluation.Prediction, logger *slog.Logger) (string, error) {
	cfgJSON, err := cfg.JSON()
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	run := &store.Run{
		Dataset:     dataset,
		Agent:       cfg.Agent.Kind,
		ErrorMargin: cfg.Eval.ErrorMargin,
		Summary:     summary,
		ConfigJSON:  cfgJSON,
	}

	if cfg.Output.SQLite != "" {
		if dir := filepath.Dir(cfg.Output.SQLite); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return "", fmt.Errorf("mkdir %s: %w", dir, err)
			}
		}
		st, err := store.Open(cfg.Output.SQLite, logger)
		if err != nil {
			return "", err
		}
		defer st.Close()
		if err := st.InsertRun(ctx, run, metrics); err != nil {
			return "", fmt.Errorf("store run: %w", err)
		}
		logger.Info("stored run", "run_id", run.RunID, "path", cfg.Output.SQLite)
	}

	if cfg.Output.JSONL != "" {
		if run.RunID == "" {
			run.RunID = uuid.New().String()
		}
		w, err := store.NewJSONLWriter(cfg.Output.JSONL)
		if err != nil {
			return "", err
		}
		if err := w.WriteRun(run.RunID, metrics, preds); err != nil {
			w.Close()
			return "", err
		}
		if err := w.Close(); err != nil {
			return "", err
		}
		logger.Info("appended JSONL", "path", cfg.Output.JSONL, "lines", metrics.Len())
	}
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	return run.RunID, nil
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
