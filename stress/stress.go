package stress

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/treatylens/treatysim/agent"
	"github.com/treatylens/treatysim/config"
	"github.com/treatylens/treatysim/market"
)

// Scenario is a named shock applied to the treaty-generating distribution
// and settlement parameters. Immutable once defined; never mutated during
// a run.
type Scenario struct {
	Name      string
	Overrides market.ShockOverrides
	Episodes  int
}

// FromConfig builds a scenario from its configured form.
func FromConfig(sc config.ScenarioConfig) Scenario {
	return Scenario{
		Name: sc.Name,
		Overrides: market.ShockOverrides{
			LossRatioScale:     sc.LossRatioScale,
			LossSigmaScale:     sc.LossSigmaScale,
			ExposureScale:      sc.ExposureScale,
			CostOfCapitalScale: sc.CostOfCapitalScale,
		},
		Episodes: sc.Episodes,
	}
}

// AgentReport compares one frozen agent's behavior under stress against
// the unstressed baseline.
type AgentReport struct {
	AgentID string `json:"agent_id"`

	BaselineMeanReward float64 `json:"baseline_mean_reward"`
	StressMeanReward   float64 `json:"stress_mean_reward"`
	RewardShift        float64 `json:"reward_shift"`

	BaselineBreachRate float64 `json:"baseline_breach_rate"`
	StressBreachRate   float64 `json:"stress_breach_rate"`
	BreachRateDelta    float64 `json:"breach_rate_delta"`

	BaselineWinRate float64 `json:"baseline_win_rate"`
	StressWinRate   float64 `json:"stress_win_rate"`
	WinRateDelta    float64 `json:"win_rate_delta"`
}

// Report is the robustness summary of one scenario run.
type Report struct {
	Scenario         string        `json:"scenario"`
	Episodes         int           `json:"episodes"`
	Seed             int64         `json:"seed"`
	BaselineBindRate float64       `json:"baseline_bind_rate"`
	StressBindRate   float64       `json:"stress_bind_rate"`
	Agents           []AgentReport `json:"agents"`
}

// Run replays frozen agent policies under the scenario's overrides and
// reports the shift versus an unstressed baseline evaluated with the same
// seed. No learning happens; the run is fully deterministic given the seed
// and independent of training-time randomness.
func Run(agents []*agent.Agent, sc Scenario, cfg *config.Config, seed int64) (Report, error) {
	episodes := sc.Episodes
	if episodes <= 0 {
		episodes = cfg.Run.EpisodesPerGeneration
	}

	base, err := evaluate(agents, market.ShockOverrides{}, cfg, seed, episodes)
	if err != nil {
		return Report{}, fmt.Errorf("stress %s: baseline: %w", sc.Name, err)
	}
	shocked, err := evaluate(agents, sc.Overrides, cfg, seed, episodes)
	if err != nil {
		return Report{}, fmt.Errorf("stress %s: %w", sc.Name, err)
	}

	report := Report{
		Scenario:         sc.Name,
		Episodes:         episodes,
		Seed:             seed,
		BaselineBindRate: base.bindRate,
		StressBindRate:   shocked.bindRate,
	}
	for _, a := range agents {
		id := a.ID()
		budget := a.Snapshot().RiskBudget
		b := base.agents[id]
		s := shocked.agents[id]
		report.Agents = append(report.Agents, AgentReport{
			AgentID:            id,
			BaselineMeanReward: b.meanReward(),
			StressMeanReward:   s.meanReward(),
			RewardShift:        s.meanReward() - b.meanReward(),
			BaselineBreachRate: b.breachRate(budget),
			StressBreachRate:   s.breachRate(budget),
			BreachRateDelta:    s.breachRate(budget) - b.breachRate(budget),
			BaselineWinRate:    b.winRate(),
			StressWinRate:      s.winRate(),
			WinRateDelta:       s.winRate() - b.winRate(),
		})
	}
	return report, nil
}

type agentEval struct {
	episodeReturns []float64
	wins           int
	rounds         int
}

func (e agentEval) meanReward() float64 {
	if len(e.episodeReturns) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range e.episodeReturns {
		sum += r
	}
	return sum / float64(len(e.episodeReturns))
}

// breachRate is the fraction of evaluation episodes whose realized loss
// exceeds the agent's risk budget.
func (e agentEval) breachRate(budget float64) float64 {
	if len(e.episodeReturns) == 0 {
		return 0
	}
	breaches := 0
	for _, r := range e.episodeReturns {
		if math.Max(0, -r) > budget {
			breaches++
		}
	}
	return float64(breaches) / float64(len(e.episodeReturns))
}

func (e agentEval) winRate() float64 {
	if e.rounds == 0 {
		return 0
	}
	return float64(e.wins) / float64(e.rounds)
}

type evalResult struct {
	agents   map[string]*agentEval
	bindRate float64
}

func evaluate(agents []*agent.Agent, o market.ShockOverrides, cfg *config.Config, seed int64, episodes int) (evalResult, error) {
	gen, err := market.NewGenerator(cfg.Treaty, o)
	if err != nil {
		return evalResult{}, err
	}
	params := market.ParamsFromConfig(cfg.Market, o)

	bounds := make(map[string]market.Bounds, len(agents))
	res := evalResult{agents: make(map[string]*agentEval, len(agents))}
	for _, a := range agents {
		bounds[a.ID()] = a.Bounds()
		res.agents[a.ID()] = &agentEval{}
	}

	bound, total := 0, 0
	for ep := 0; ep < episodes; ep++ {
		rng := rand.New(rand.NewSource(evalSeed(seed, ep)))
		env := market.NewEnvironment(params, bounds)

		returns := make(map[string]float64, len(agents))
		for r := 0; r < cfg.Run.RoundsPerEpisode; r++ {
			tick := uint64(ep)<<16 | uint64(r)
			req := gen.Draw(rng, tick)

			bids := make([]market.Bid, 0, len(agents))
			for idx, a := range agents {
				obs := agent.Observation{Request: req, Risk: a.RiskSnapshot()}
				bid, _, ok := a.Act(obs, env.Round(), idx, rng)
				if !ok {
					continue
				}
				bids = append(bids, bid)
			}

			outcome := env.Settle(req, bids, rng)
			total++
			if outcome.Accepted {
				bound++
				res.agents[outcome.WinningBid.AgentID].wins++
			}
			for _, a := range agents {
				returns[a.ID()] += outcome.Rewards[a.ID()]
				res.agents[a.ID()].rounds++
			}
		}
		for _, a := range agents {
			res.agents[a.ID()].episodeReturns = append(res.agents[a.ID()].episodeReturns, returns[a.ID()])
		}
	}
	if total > 0 {
		res.bindRate = float64(bound) / float64(total)
	}
	return res, nil
}

// evalSeed derives per-episode streams from the evaluation seed only, so
// stress runs never depend on training-time RNG state.
func evalSeed(base int64, ep int) int64 {
	x := uint64(base) ^ uint64(ep)*0x9e3779b97f4a7c15
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	return int64(x & math.MaxInt64)
}
