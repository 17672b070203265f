package stress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treatylens/treatysim/agent"
	"github.com/treatylens/treatysim/config"
	"github.com/treatylens/treatysim/market"
)

func stressConfig() *config.Config {
	cfg := config.Default()
	cfg.Run.NumAgents = 3
	cfg.Run.RoundsPerEpisode = 8
	// Proportional treaties with an unreachable per-treaty cap and no
	// carrying cost make stressed losses scale monotonically with the
	// loss-ratio shock, so breach-rate comparisons are exact.
	cfg.Treaty.Mix = map[string]float64{"QuotaShare": 1}
	cfg.Treaty.LimitFactor = 5
	cfg.Market.CostOfCapital = 0
	cfg.Market.MinRateOnLine = 0.1
	cfg.Market.OpportunityCost = 0.01
	return cfg
}

func frozenAgents(cfg *config.Config) []*agent.Agent {
	agents := make([]*agent.Agent, 0, cfg.Run.NumAgents)
	for _, ac := range cfg.AgentConfigs() {
		agents = append(agents, agent.New(ac, cfg.Risk))
	}
	return agents
}

func TestFromConfigMapsOverrides(t *testing.T) {
	t.Parallel()

	sc := FromConfig(config.ScenarioConfig{
		Name:           "catastrophe",
		LossRatioScale: 1.3,
		LossSigmaScale: 1.5,
		ExposureScale:  1,
		Episodes:       16,
	})
	assert.Equal(t, "catastrophe", sc.Name)
	assert.Equal(t, 1.3, sc.Overrides.LossRatioScale)
	assert.Equal(t, 16, sc.Episodes)
}

func TestRunIdempotentForSeed(t *testing.T) {
	t.Parallel()

	cfg := stressConfig()
	agents := frozenAgents(cfg)
	sc := Scenario{
		Name:      "catastrophe",
		Overrides: market.ShockOverrides{LossRatioScale: 1.3},
		Episodes:  16,
	}

	r1, err := Run(agents, sc, cfg, 99)
	require.NoError(t, err)
	r2, err := Run(agents, sc, cfg, 99)
	require.NoError(t, err)

	assert.Equal(t, r1, r2, "stress runs are pure functions of (agents, scenario, seed)")
}

func TestRunLossShockNeverReducesBreachRate(t *testing.T) {
	t.Parallel()

	cfg := stressConfig()
	agents := frozenAgents(cfg)
	sc := Scenario{
		Name:      "catastrophe",
		Overrides: market.ShockOverrides{LossRatioScale: 1.3},
		Episodes:  64,
	}

	report, err := Run(agents, sc, cfg, 7)
	require.NoError(t, err)
	require.Len(t, report.Agents, 3)

	for _, ar := range report.Agents {
		assert.GreaterOrEqual(t, ar.BreachRateDelta, 0.0,
			"agent %s: a uniform loss-ratio shock cannot shrink tail breaches", ar.AgentID)
	}
}

func TestRunShockPreservesRoundStructure(t *testing.T) {
	t.Parallel()

	cfg := stressConfig()
	agents := frozenAgents(cfg)
	sc := Scenario{
		Name:      "catastrophe",
		Overrides: market.ShockOverrides{LossRatioScale: 1.3},
		Episodes:  16,
	}

	report, err := Run(agents, sc, cfg, 21)
	require.NoError(t, err)

	// A uniform multiplicative shock rescales every premium and the
	// adequacy floor identically, so the same bids win.
	assert.Equal(t, report.BaselineBindRate, report.StressBindRate)
	for _, ar := range report.Agents {
		assert.Zero(t, ar.WinRateDelta,
			"agent %s: winner selection is scale-invariant", ar.AgentID)
	}
}

func TestRunDefaultsEpisodeCount(t *testing.T) {
	t.Parallel()

	cfg := stressConfig()
	cfg.Run.EpisodesPerGeneration = 12
	agents := frozenAgents(cfg)

	report, err := Run(agents, Scenario{Name: "plain"}, cfg, 3)
	require.NoError(t, err)
	assert.Equal(t, 12, report.Episodes)
}

func TestRunBaselineAgainstItself(t *testing.T) {
	t.Parallel()

	cfg := stressConfig()
	agents := frozenAgents(cfg)

	// A scenario with no overrides replays the baseline exactly.
	report, err := Run(agents, Scenario{Name: "identity", Episodes: 16}, cfg, 5)
	require.NoError(t, err)
	for _, ar := range report.Agents {
		assert.Zero(t, ar.RewardShift)
		assert.Zero(t, ar.BreachRateDelta)
		assert.Zero(t, ar.WinRateDelta)
	}
	assert.Equal(t, report.BaselineBindRate, report.StressBindRate)
}
