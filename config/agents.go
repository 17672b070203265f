package config

import "fmt"

// AgentConfigs returns the configured agent roster, or a generated default
// roster of run.num_agents participants with cycling risk appetites when
// the agents list is empty.
func (c *Config) AgentConfigs() []AgentConfig {
	if len(c.Agents) > 0 {
		return c.Agents
	}
	appetites := []string{"neutral", "averse", "aggressive"}
	out := make([]AgentConfig, c.Run.NumAgents)
	for i := range out {
		out[i] = AgentConfig{
			ID:             fmt.Sprintf("reinsurer-%d", i+1),
			Appetite:       appetites[i%len(appetites)],
			InitialCapital: 100,
			CapitalFloor:   0,
			MaxLine:        50,
		}
	}
	return out
}
