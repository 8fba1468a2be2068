package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/Noofbiz/navBench/evaluation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func validConfig() *Config {
	c := &Config{Data: DataConfig{
		ConnectivityDir: "connectivity",
		Episodes:        "data/R2R_val_unseen.json",
		Candidates:      "data/candidates.json",
	}}
	c.ApplyDefaults()
	return c
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "run.yaml", `
data:
  connectivity_dir: conn
  episodes: eps/val_seen.yaml
  candidates: cands.json
  split_part: 1
  split_parts: 3
env:
  batch_size: 4
  seed: 7
  no_shuffle: true
eval:
  error_margin: 2.5
agent:
  kind: random
  stop_prob: 0.3
output:
  sqlite: out/scores.db
log:
  level: debug
  format: json
`)
	c, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, "val_seen", c.Data.Name)
	assert.Equal(t, 1, c.Data.SplitPart)
	assert.Equal(t, 4, c.Env.BatchSize)
	assert.Equal(t, int64(7), c.Env.Seed)
	assert.True(t, c.Env.NoShuffle)
	assert.Equal(t, "simulated", c.Env.Mode)
	assert.Equal(t, 2.5, c.Eval.ErrorMargin)
	assert.Equal(t, "random", c.Agent.Kind)
	assert.Equal(t, 0.3, c.Agent.StopProb)
	assert.Equal(t, 15, c.Agent.MaxSteps)
	assert.Equal(t, "out/scores.db", c.Output.SQLite)

	level, err := c.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_JSON(t *testing.T) {
	path := writeConfig(t, "run.json", `{
		"data": {"connectivity_dir": "conn", "episodes": "eps.json", "candidates": "c.json"},
		"env": {"mode": "real-world"},
		"agent": {"kind": "random"}
	}`)
	c, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	assert.Equal(t, "real-world", c.Env.Mode)
	assert.Equal(t, evaluation.DefaultErrorMargin, c.Eval.ErrorMargin)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
	t.Run("unsupported extension", func(t *testing.T) {
		_, err := Load(writeConfig(t, "run.toml", "x = 1"))
		assert.ErrorContains(t, err, "unsupported")
	})
	t.Run("unknown yaml field", func(t *testing.T) {
		_, err := Load(writeConfig(t, "run.yaml", "env:\n  batchsize: 3\n"))
		assert.Error(t, err)
	})
	t.Run("unknown json field", func(t *testing.T) {
		_, err := Load(writeConfig(t, "run.json", `{"evl": {}}`))
		assert.Error(t, err)
	})
	t.Run("empty yaml", func(t *testing.T) {
		c, err := Load(writeConfig(t, "run.yaml", ""))
		require.NoError(t, err)
		assert.Equal(t, 8, c.Env.BatchSize)
	})
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no episodes", func(c *Config) { c.Data.Episodes = "" }},
		{"zero feature dim", func(c *Config) { c.Env.FeatureDim = 0 }},
		{"no connectivity", func(c *Config) { c.Data.ConnectivityDir = "" }},
		{"no candidates in simulated mode", func(c *Config) { c.Data.Candidates = "" }},
		{"bad mode", func(c *Config) { c.Env.Mode = "dream" }},
		{"shortest agent in real-world mode", func(c *Config) { c.Env.Mode = "real" }},
		{"split part out of range", func(c *Config) { c.Data.SplitParts = 2; c.Data.SplitPart = 2 }},
		{"negative split parts", func(c *Config) { c.Data.SplitParts = -1 }},
		{"negative batch", func(c *Config) { c.Env.BatchSize = -1 }},
		{"negative workers", func(c *Config) { c.Eval.Workers = -2 }},
		{"negative margin", func(c *Config) { c.Eval.ErrorMargin = -1 }},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			assert.ErrorIs(t, c.Validate(), ErrInvalid)
		})
	}
}

func TestDefaultsAndJSON(t *testing.T) {
	c := Default()
	assert.NotZero(t, c.Env.Seed)
	assert.Equal(t, 36, c.Env.FeatureViews)
	assert.Equal(t, "shortest", c.Agent.Kind)
	assert.Equal(t, "", c.Data.Name)

	c.Data.Episodes = "eps.json"
	raw, err := c.JSON()
	require.NoError(t, err)
	var back Config
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, *c, back)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "scan", "S1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "S1", line["scan"])

	_, err = LogConfig{Level: "loud"}.NewLogger(&buf)
	assert.Error(t, err)

	buf.Reset()
	console, err := LogConfig{Level: "info", Format: "console"}.NewLogger(&buf)
	require.NoError(t, err)
	console.Debug("quiet")
	console.Info("graph ready", "scan", "S1")
	assert.Contains(t, buf.String(), "graph ready")
	assert.NotContains(t, buf.String(), "quiet")
}
