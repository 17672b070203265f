package trainer

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/treatylens/treatysim/agent"
	"github.com/treatylens/treatysim/config"
	"github.com/treatylens/treatysim/internal/id"
	"github.com/treatylens/treatysim/journal"
	"github.com/treatylens/treatysim/market"
	"github.com/treatylens/treatysim/metrics"
)

// Phase is the trainer's position in its generation cycle.
type Phase int

const (
	Idle Phase = iota
	Rollout
	Advantage
	Optimize
)

func (p Phase) String() string {
	switch p {
	case Rollout:
		return "rollout"
	case Advantage:
		return "advantage"
	case Optimize:
		return "optimize"
	default:
		return "idle"
	}
}

// Trainer runs the constrained multi-agent policy-optimization loop:
// parallel rollouts, per-agent advantage estimation, clipped-surrogate
// updates with a CVaR Lagrangian, and Pareto-frontier tracking.
type Trainer struct {
	cfg     *config.Config
	agents  []*agent.Agent
	journal journal.Journal
	tracker *metrics.Tracker

	runID     string
	generator *market.Generator
	params    market.Params
	bounds    map[string]market.Bounds

	phase      Phase
	generation int
	round      int // global round counter, advances even on failed generations
}

// Report is the outcome of a training run.
type Report struct {
	RunID       string          `json:"run_id"`
	Generations int             `json:"generations"`
	Reason      string          `json:"reason"` // "converged", "max-generations" or "cancelled"
	Frontier    []metrics.Point `json:"frontier"`
	Summary     metrics.Summary `json:"summary"`
	AcceptRate  float64         `json:"accept_rate"`
}

// New builds a trainer over the given agents. The journal may be nil, in
// which case output is discarded.
func New(cfg *config.Config, agents []*agent.Agent, j journal.Journal) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("trainer: %w", err)
	}
	if len(agents) != cfg.Run.NumAgents {
		return nil, fmt.Errorf("trainer: have %d agents, config names %d", len(agents), cfg.Run.NumAgents)
	}
	if j == nil {
		j = journal.Discard{}
	}

	gen, err := market.NewGenerator(cfg.Treaty, market.ShockOverrides{})
	if err != nil {
		return nil, fmt.Errorf("trainer: %w", err)
	}

	bounds := make(map[string]market.Bounds, len(agents))
	for _, a := range agents {
		bounds[a.ID()] = a.Bounds()
	}

	return &Trainer{
		cfg:       cfg,
		agents:    agents,
		journal:   j,
		tracker:   metrics.NewTracker(),
		runID:     id.NewRun(),
		generator: gen,
		params:    market.ParamsFromConfig(cfg.Market, market.ShockOverrides{}),
		bounds:    bounds,
	}, nil
}

// RunID returns the ULID tagging this run's journal rows.
func (t *Trainer) RunID() string { return t.runID }

// Phase reports the trainer's current phase.
func (t *Trainer) Phase() Phase { return t.phase }

// Agents exposes the trained agents, e.g. for checkpointing or stress runs.
func (t *Trainer) Agents() []*agent.Agent { return t.agents }

// Run executes training generations until convergence, the generation cap,
// or context cancellation. Cancellation is honored only at generation
// boundaries and between rollout and optimize, never mid-episode.
func (t *Trainer) Run(ctx context.Context) (*Report, error) {
	trainParams := agent.TrainParams{
		LearningRate:       t.cfg.Training.LearningRate,
		LambdaLearningRate: t.cfg.Training.LambdaLearningRate,
		ClipRange:          t.cfg.Training.PPOClipRange,
		Epochs:             t.cfg.Training.PPOEpochs,
		Confidence:         t.cfg.Risk.CVaRConfidence,
		MinSamples:         t.cfg.Risk.MinSamples,
	}

	reason := "max-generations"
	prevImprovement := math.Inf(-1)
	streak := 0

	var acceptedRounds, totalRounds int
	profits := make(map[string]float64)
	bids := make(map[string]int)

loop:
	for g := 0; g < t.cfg.Run.MaxGenerations; g++ {
		t.generation = g

		if ctx.Err() != nil {
			reason = "cancelled"
			break
		}

		t.phase = Rollout
		episodes := t.rollout(g)

		// Journal before parameters move: traces must reflect the
		// decision-time snapshots and multipliers.
		if err := t.journalGeneration(g, episodes); err != nil {
			return nil, fmt.Errorf("trainer: journal generation %d: %w", g, err)
		}
		for _, ep := range episodes {
			totalRounds += len(ep.rounds)
			for _, rr := range ep.rounds {
				if rr.outcome.Accepted {
					acceptedRounds++
				}
				for agentID := range rr.bids {
					bids[agentID]++
				}
			}
		}

		// Cancellation boundary between rollout and optimize: agent
		// state is untouched so far, so stopping here is safe.
		if ctx.Err() != nil {
			reason = "cancelled"
			break
		}

		t.phase = Advantage
		batches := t.batches(g, episodes)

		t.phase = Optimize
		for _, a := range t.agents {
			batch := batches[a.ID()]
			stats, err := a.Update(batch, trainParams)
			if err != nil {
				return nil, fmt.Errorf("trainer: agent %s generation %d: %w", a.ID(), g, err)
			}
			if stats.Skipped {
				log.Printf("trainer: agent %s update diverged in generation %d, keeping prior parameters", a.ID(), g)
			}
			if !stats.ConstraintOK {
				log.Printf("trainer: agent %s cvar constraint inactive in generation %d (insufficient samples)", a.ID(), g)
			}

			profits[a.ID()] += stats.MeanReturn
			if stats.ConstraintOK {
				t.tracker.Add(metrics.Point{
					AgentID:    a.ID(),
					Generation: g,
					Profit:     profits[a.ID()],
					Shortfall:  stats.Risk.Shortfall,
				})
			}
		}

		// Convergence accounting starts once the frontier has at least one
		// constraint-backed point; before that the improvement signal is
		// vacuously flat.
		if t.tracker.Len() > 0 {
			improvement := t.tracker.Improvement()
			if improvement-prevImprovement < t.cfg.Training.ConvergenceEpsilon {
				streak++
				if streak >= t.cfg.Training.ConvergencePatience {
					reason = "converged"
					t.generation = g + 1
					break loop
				}
			} else {
				streak = 0
			}
			prevImprovement = improvement
		}
		t.generation = g + 1
	}

	t.phase = Idle

	report := &Report{
		RunID:       t.runID,
		Generations: t.generation,
		Reason:      reason,
		Frontier:    t.tracker.Frontier(),
		Summary:     t.summary(profits, bids, totalRounds),
	}
	if totalRounds > 0 {
		report.AcceptRate = float64(acceptedRounds) / float64(totalRounds)
	}
	return report, nil
}

func (t *Trainer) summary(profits map[string]float64, bids map[string]int, totalRounds int) metrics.Summary {
	agents := make([]metrics.AgentSummary, 0, len(t.agents))
	for _, a := range t.agents {
		s := a.Snapshot()
		activity := 0.0
		if totalRounds > 0 {
			activity = float64(bids[a.ID()]) / float64(totalRounds)
		}
		agents = append(agents, metrics.AgentSummary{
			AgentID:      a.ID(),
			Profit:       profits[a.ID()],
			CVaR:         s.LastRisk.Shortfall,
			ActivityRate: activity,
			Withdrawn:    s.Withdrawn,
			OverBudget:   s.LastRisk.Shortfall > s.RiskBudget+t.cfg.Risk.Tolerance,
		})
	}
	return metrics.Summarize(agents)
}

// journalGeneration writes the generation's rounds and traces in episode
// order, assigning global round indices. Aggregation is independent of
// worker completion order: episodes arrive sorted by index.
func (t *Trainer) journalGeneration(g int, episodes []episodeResult) error {
	// Decision-time risk and multipliers, constant within a generation.
	snaps := make(map[string]struct {
		cvar   float64
		lambda float64
	}, len(t.agents))
	for _, a := range t.agents {
		snaps[a.ID()] = struct {
			cvar   float64
			lambda float64
		}{a.RiskSnapshot().Shortfall, a.Lambda()}
	}

	for _, ep := range episodes {
		for _, rr := range ep.rounds {
			round := t.round
			t.round++

			rec := journal.RoundRecord{
				RunID:             t.runID,
				Generation:        g,
				Episode:           ep.index,
				Round:             round,
				CedentID:          rr.req.CedentID,
				TreatyType:        string(rr.req.Type),
				AttachmentPoint:   rr.req.AttachmentPoint,
				Limit:             rr.req.Limit,
				Accepted:          rr.outcome.Accepted,
				ObservedLossRatio: rr.outcome.RealizedLossRatio,
			}
			if w := rr.outcome.WinningBid; w != nil {
				rec.ReinsurerID = w.AgentID
				rec.Premium = w.Premium
				rec.AttachmentPoint = w.AttachmentPoint
				rec.Limit = w.Limit
				rec.QuotaShare = w.QuotaShare
				rec.CVaR95 = snaps[w.AgentID].cvar
			}
			if err := t.journal.RecordRound(rec); err != nil {
				return err
			}

			ids := make([]string, 0, len(rr.bids))
			for agentID := range rr.bids {
				ids = append(ids, agentID)
			}
			sort.Strings(ids)
			for _, agentID := range ids {
				b := rr.bids[agentID]
				sn := snaps[agentID]
				if err := t.journal.RecordTrace(journal.TraceRecord{
					RunID:          t.runID,
					Round:          round,
					AgentID:        agentID,
					TreatyID:       rr.req.ID,
					LossRatioPrior: rr.req.LossRatioPrior,
					Exposure:       rr.req.Exposure,
					CompetitorMean: rr.competitorMean,
					Premium:        b.Premium,
					QuotaShare:     b.QuotaShare,
					CVaR:           sn.cvar,
					Lambda:         sn.lambda,
					Alert:          sn.lambda > t.cfg.Risk.AlertLambda,
				}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
