package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Default().Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"too few agents", func(c *Config) { c.Run.NumAgents = 1 }},
		{"zero episodes", func(c *Config) { c.Run.EpisodesPerGeneration = 0 }},
		{"zero generations", func(c *Config) { c.Run.MaxGenerations = 0 }},
		{"negative learning rate", func(c *Config) { c.Training.LearningRate = -0.1 }},
		{"clip range too large", func(c *Config) { c.Training.PPOClipRange = 1.5 }},
		{"zero risk budget", func(c *Config) { c.Risk.Budget = 0 }},
		{"negative risk tolerance", func(c *Config) { c.Risk.Tolerance = -0.01 }},
		{"confidence out of range", func(c *Config) { c.Risk.CVaRConfidence = 1 }},
		{"min samples above window", func(c *Config) { c.Risk.MinSamples = c.Risk.Window + 1 }},
		{"zero rate on line", func(c *Config) { c.Market.MinRateOnLine = 0 }},
		{"zero loss sigma", func(c *Config) { c.Market.LossSigma = 0 }},
		{"empty treaty mix", func(c *Config) { c.Treaty.Mix = nil }},
		{"unknown treaty type", func(c *Config) { c.Treaty.Mix = map[string]float64{"Surplus": 1} }},
		{"inverted prior range", func(c *Config) { c.Treaty.LossRatioPriorMin = 0.9; c.Treaty.LossRatioPriorMax = 0.5 }},
		{"negative region weight", func(c *Config) { c.Treaty.RegionWeights["NA"] = -1 }},
		{"unnamed scenario", func(c *Config) { c.Stress = append(c.Stress, ScenarioConfig{}) }},
		{"bad journal type", func(c *Config) { c.Journal.Type = "parquet" }},
		{"csv journal missing files", func(c *Config) { c.Journal = JournalConfig{Type: "csv"} }},
		{"sqlite journal missing path", func(c *Config) { c.Journal = JournalConfig{Type: "sqlite"} }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateAgentList(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Run.NumAgents = 2
	cfg.Agents = []AgentConfig{
		{ID: "a", Appetite: "neutral", InitialCapital: 100, MaxLine: 10},
		{ID: "a", Appetite: "averse", InitialCapital: 100, MaxLine: 10},
	}
	assert.Error(t, cfg.Validate(), "duplicate agent ids must be rejected")

	cfg.Agents[1].ID = "b"
	assert.NoError(t, cfg.Validate())

	cfg.Agents[1].Appetite = "reckless"
	assert.Error(t, cfg.Validate())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	for _, ext := range []string{"yaml", "json"} {
		path := filepath.Join(dir, "cfg."+ext)
		orig := Default()
		orig.Run.Seed = 99
		orig.Risk.Budget = 0.35
		require.NoError(t, orig.SaveToFile(path))

		loaded, err := LoadFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, int64(99), loaded.Run.Seed)
		assert.Equal(t, 0.35, loaded.Risk.Budget)
		assert.Equal(t, orig.Treaty.Mix, loaded.Treaty.Mix)
	}
}

func TestLoadFromFileRejectsInvalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.yaml")
	cfg := Default()
	cfg.Run.NumAgents = 0
	require.NoError(t, cfg.SaveToFile(path))

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestAgentConfigsDefaults(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Run.NumAgents = 4
	agents := cfg.AgentConfigs()
	require.Len(t, agents, 4)

	seen := map[string]bool{}
	for _, a := range agents {
		assert.False(t, seen[a.ID], "agent ids must be unique")
		seen[a.ID] = true
		assert.Positive(t, a.InitialCapital)
		assert.Positive(t, a.MaxLine)
	}
	assert.Equal(t, "neutral", agents[0].Appetite)
	assert.Equal(t, "averse", agents[1].Appetite)
	assert.Equal(t, "aggressive", agents[2].Appetite)
}
