// Package config loads the navbench run configuration from YAML or JSON.
//
// Zero values are replaced by defaults in ApplyDefaults; command line flags
// are applied on top of the loaded file by the caller.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Noofbiz/navBench/agents"
	"github.com/Noofbiz/navBench/evaluation"
	"github.com/Noofbiz/navBench/navenv"
	charmlog "github.com/charmbracelet/log"
	"github.com/go-playground/validator"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

var validate = validator.New()

// Config is the full run configuration.
type Config struct {
	Data   DataConfig    `yaml:"data" json:"data"`
	Env    EnvConfig     `yaml:"env" json:"env"`
	Eval   EvalConfig    `yaml:"eval" json:"eval"`
	Agent  agents.Config `yaml:"agent" json:"agent"`
	Output OutputConfig  `yaml:"output" json:"output"`
	Log    LogConfig     `yaml:"log" json:"log"`
}

// DataConfig locates the input files.
type DataConfig struct {
	// Name labels the dataset in stored runs. Defaults to the episodes file
	// name without extension.
	Name string `yaml:"name" json:"name"`

	// ConnectivityDir holds "<scan>_connectivity.json" files. Required in
	// both modes: the graph simulator walks it.
	ConnectivityDir string `yaml:"connectivity_dir" json:"connectivity_dir" validate:"required"`

	Episodes   string `yaml:"episodes" json:"episodes" validate:"required"`
	Candidates string `yaml:"candidates" json:"candidates"`
	Goals      string `yaml:"goals,omitempty" json:"goals,omitempty"`

	// SplitPart and SplitParts select one part of the episodes, e.g. 0 of 4.
	// SplitParts 0 keeps every episode.
	SplitPart  int `yaml:"split_part" json:"split_part" validate:"gte=0"`
	SplitParts int `yaml:"split_parts" json:"split_parts" validate:"gte=0"`
}

// EnvConfig configures the batched environment.
type EnvConfig struct {
	BatchSize int    `yaml:"batch_size" json:"batch_size" validate:"min=1"`
	Seed      int64  `yaml:"seed" json:"seed"`
	Mode      string `yaml:"mode" json:"mode"`
	Workers   int    `yaml:"workers" json:"workers" validate:"gte=0"`
	NoShuffle bool   `yaml:"no_shuffle" json:"no_shuffle"`

	// FeatureViews and FeatureDim size the zero feature store used when no
	// precomputed features are loaded.
	FeatureViews int `yaml:"feature_views" json:"feature_views" validate:"min=1"`
	FeatureDim   int `yaml:"feature_dim" json:"feature_dim" validate:"min=1"`
}

// EvalConfig configures the evaluator.
type EvalConfig struct {
	ErrorMargin float64 `yaml:"error_margin" json:"error_margin" validate:"gt=0"`
	Workers     int     `yaml:"workers" json:"workers" validate:"gte=0"`
}

// OutputConfig names the result sinks. Empty paths disable a sink.
type OutputConfig struct {
	SQLite  string `yaml:"sqlite" json:"sqlite"`
	JSONL   string `yaml:"jsonl" json:"jsonl"`
	PlotDir string `yaml:"plot_dir" json:"plot_dir"`
	CSV     string `yaml:"csv" json:"csv"`
}

// LogConfig configures the slog handler installed by the CLI.
type LogConfig struct {
	Level string `yaml:"level" json:"level"`

	// Format is "text", "json" or "console" (colored, for terminals).
	Format string `yaml:"format" json:"format" validate:"oneof=text json console"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// Load reads a configuration file. The format is chosen by extension
// (.json, .yaml, .yml); unknown fields are rejected. Defaults are applied
// but the result is not validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var c Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&c); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse YAML config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s (supported: .json, .yaml, .yml)", ext)
	}

	c.ApplyDefaults()
	return &c, nil
}

// ApplyDefaults replaces zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.Data.Name == "" && c.Data.Episodes != "" {
		base := filepath.Base(c.Data.Episodes)
		c.Data.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if c.Env.BatchSize == 0 {
		c.Env.BatchSize = 8
	}
	if c.Env.Seed == 0 {
		c.Env.Seed = time.Now().UnixNano()
	}
	if c.Env.Mode == "" {
		c.Env.Mode = navenv.ModeSimulated.String()
	}
	if c.Env.FeatureViews == 0 {
		c.Env.FeatureViews = navenv.ViewCount
	}
	if c.Env.FeatureDim == 0 {
		c.Env.FeatureDim = 16
	}
	if c.Eval.ErrorMargin == 0 {
		c.Eval.ErrorMargin = evaluation.DefaultErrorMargin
	}
	c.Agent = c.Agent.Defaults()
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks that the configuration can drive a run.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	mode, err := navenv.ParseMode(c.Env.Mode)
	if err != nil {
		return fmt.Errorf("%w: env.mode: %v", ErrInvalid, err)
	}
	if mode == navenv.ModeSimulated && c.Data.Candidates == "" {
		return fmt.Errorf("%w: data.candidates is required in simulated mode", ErrInvalid)
	}
	if mode == navenv.ModeRealWorld && strings.EqualFold(c.Agent.Kind, "shortest") {
		return fmt.Errorf("%w: the shortest path agent needs ground truth, unavailable in real-world mode", ErrInvalid)
	}
	if c.Data.SplitParts > 0 && c.Data.SplitPart >= c.Data.SplitParts {
		return fmt.Errorf("%w: data.split_part %d out of range [0, %d)", ErrInvalid, c.Data.SplitPart, c.Data.SplitParts)
	}
	if c.Agent.MaxSteps < 1 {
		return fmt.Errorf("%w: agent.max_steps must be >= 1, got %d", ErrInvalid, c.Agent.MaxSteps)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// JSON returns the configuration as compact JSON, as stored with each run.
func (c *Config) JSON() (json.RawMessage, error) {
	return json.Marshal(c)
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// NewLogger builds a slog logger writing to w in the configured format.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := l.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch l.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "console":
		// charmbracelet levels share slog's numeric values.
		h := charmlog.NewWithOptions(w, charmlog.Options{
			ReportTimestamp: true,
			Level:           charmlog.Level(level),
		})
		return slog.New(h), nil
	default:
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
}
