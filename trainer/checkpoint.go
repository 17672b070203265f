package trainer

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/treatylens/treatysim/agent"
)

// Checkpoint is a serialized set of trained agent states, including each
// agent's Lagrange multiplier and rolling return window, so training and
// stress runs can resume exactly where a previous run stopped.
type Checkpoint struct {
	RunID      string        `json:"run_id"`
	Generation int           `json:"generation"`
	States     []agent.State `json:"states"`
}

// SaveCheckpoint writes the agents' full states to path as JSON.
func SaveCheckpoint(path string, t *Trainer) error {
	cp := Checkpoint{RunID: t.runID, Generation: t.generation}
	for _, a := range t.agents {
		cp.States = append(cp.States, a.Snapshot())
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint reads a checkpoint back from disk.
func LoadCheckpoint(path string) (Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("read checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("parse checkpoint: %w", err)
	}
	if len(cp.States) == 0 {
		return Checkpoint{}, fmt.Errorf("checkpoint %s holds no agent states", path)
	}
	return cp, nil
}

// Agents restores frozen agents from the checkpointed states.
func (c Checkpoint) Agents() []*agent.Agent {
	out := make([]*agent.Agent, 0, len(c.States))
	for _, s := range c.States {
		out = append(out, agent.FromState(s))
	}
	return out
}
