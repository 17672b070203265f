package metrics

import (
	"math"
	"sort"
)

// AgentSummary aggregates one agent's performance over a run.
// ActivityRate is the fraction of rounds the agent actually submitted a
// bid in; OverBudget reports whether the final tail-risk snapshot exceeds
// the agent's budget beyond the configured tolerance.
type AgentSummary struct {
	AgentID      string  `json:"agent_id"`
	Profit       float64 `json:"profit"`
	CVaR         float64 `json:"cvar"`
	ActivityRate float64 `json:"activity_rate"`
	Withdrawn    bool    `json:"withdrawn"`
	OverBudget   bool    `json:"over_budget"`
}

// Summary is the market-level view the dashboards consume: per-agent
// outcomes plus fairness and efficiency scores.
type Summary struct {
	Agents     []AgentSummary `json:"agents"`
	Fairness   float64        `json:"fairness"`
	Efficiency float64        `json:"efficiency"`
}

// Summarize computes market-health metrics from per-agent outcomes.
// Fairness is 1 minus the Gini coefficient of profits; efficiency is the
// profit Sharpe-style ratio weighted by fairness.
func Summarize(agents []AgentSummary) Summary {
	out := Summary{Agents: append([]AgentSummary(nil), agents...)}
	sort.Slice(out.Agents, func(i, j int) bool { return out.Agents[i].AgentID < out.Agents[j].AgentID })
	if len(out.Agents) == 0 {
		return out
	}

	profits := make([]float64, len(out.Agents))
	for i, a := range out.Agents {
		profits[i] = a.Profit
	}
	out.Fairness = 1 - gini(profits)

	mean, std := meanStd(profits)
	out.Efficiency = mean / (std + 1e-6) * out.Fairness
	return out
}

func gini(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var total, weighted float64
	for i, v := range sorted {
		total += v
		weighted += float64(i+1) * v
	}
	if total == 0 {
		return 0
	}
	return 2*weighted/(float64(n)*total) - float64(n+1)/float64(n)
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	varsum := 0.0
	for _, v := range values {
		d := v - mean
		varsum += d * d
	}
	return mean, math.Sqrt(varsum / float64(len(values)))
}
