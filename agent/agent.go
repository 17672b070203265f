package agent

import (
	"math"
	"math/rand"

	"github.com/treatylens/treatysim/config"
	"github.com/treatylens/treatysim/market"
	"github.com/treatylens/treatysim/risk"
)

// Appetite selects a risk-appetite preset for a reinsurer agent.
type Appetite string

const (
	Averse     Appetite = "averse"
	Neutral    Appetite = "neutral"
	Aggressive Appetite = "aggressive"
)

// Observation is everything an agent may condition its bid on: the current
// treaty request, its own latest tail-risk snapshot, and anonymized
// aggregates of competitor premiums from earlier rounds. No competitor
// identities leak through this struct.
type Observation struct {
	Request        market.TreatyRequest
	Risk           risk.Snapshot
	CompetitorMean float64 // mean premium / expected ceded loss, prior rounds
	CompetitorStd  float64
}

// FeatureDim is the fixed length of the observation feature vector.
const FeatureDim = 9

// Features flattens an observation into the policy's input vector.
func Features(o Observation) []float64 {
	req := o.Request
	exp := req.Exposure
	if exp <= 0 {
		exp = 1
	}
	isXoL := 0.0
	if req.Type == market.XoL {
		isXoL = 1
	}
	return []float64{
		1,
		isXoL,
		math.Log1p(req.Exposure) / 10,
		req.LossRatioPrior,
		req.AttachmentPoint / exp,
		req.Limit / exp,
		o.Risk.Shortfall,
		o.CompetitorMean,
		o.CompetitorStd,
	}
}

// Action records what the policy actually sampled for one bid, along with
// the quantities the trainer needs for the surrogate objective.
type Action struct {
	Raw      [2]float64 // raw Gaussian draws: log-markup, term logit
	Mean     [2]float64
	LogProb  float64
	Value    float64 // baseline estimate at decision time
	Features []float64
}

// State is the complete serializable parameterization of one agent: policy
// and value weights, the Lagrange multiplier, capital and the rolling
// return window. It is owned exclusively by its Agent and mutated only
// during Update.
type State struct {
	AgentID      string        `json:"agent_id"`
	Appetite     Appetite      `json:"appetite"`
	PolicyW      [][]float64   `json:"policy_w"` // 2 x FeatureDim
	LogStd       []float64     `json:"log_std"`  // per action dimension
	ValueW       []float64     `json:"value_w"`
	Lambda       float64       `json:"lambda"`
	RiskBudget   float64       `json:"risk_budget"`
	Capital      float64       `json:"capital"`
	CapitalFloor float64       `json:"capital_floor"`
	MaxLine      float64       `json:"max_line"`
	Withdrawn    bool          `json:"withdrawn"`
	Returns      *risk.Window  `json:"returns"`
	LastRisk     risk.Snapshot `json:"last_risk"`
}

// Underwriter is the capability interface the trainer and environment see.
// Concrete variants differ by risk appetite, not by type hierarchy.
type Underwriter interface {
	ID() string
	// Act prices the observed treaty. ok is false when the agent has
	// withdrawn from the market and submits no bid.
	Act(o Observation, round, submission int, rng *rand.Rand) (bid market.Bid, act Action, ok bool)
	// Update applies one generation's constrained policy update.
	Update(batch Batch, p TrainParams) (UpdateStats, error)
	// Snapshot returns a deep copy of the agent's state.
	Snapshot() State
}

// Agent is the Gaussian-policy underwriter. The policy maps features to a
// log-markup over expected ceded loss (and a quota-share logit for
// proportional treaties); the value head is a linear baseline.
type Agent struct {
	state State
}

var _ Underwriter = (*Agent)(nil)

// New builds an agent from its configured identity and the run's risk
// parameters, using the appetite preset for initial pricing behavior.
func New(ac config.AgentConfig, rc config.RiskConfig) *Agent {
	bias, logStd, riskScale := preset(Appetite(ac.Appetite))

	policy := make([][]float64, 2)
	for i := range policy {
		policy[i] = make([]float64, FeatureDim)
	}
	policy[0][0] = bias // initial log-markup intercept

	return &Agent{state: State{
		AgentID:      ac.ID,
		Appetite:     Appetite(ac.Appetite),
		PolicyW:      policy,
		LogStd:       []float64{logStd, logStd},
		ValueW:       make([]float64, FeatureDim),
		RiskBudget:   rc.Budget * riskScale,
		Capital:      ac.InitialCapital,
		CapitalFloor: ac.CapitalFloor,
		MaxLine:      ac.MaxLine,
		Returns:      risk.NewWindow(rc.Window),
	}}
}

// FromState restores an agent from a checkpointed state.
func FromState(s State) *Agent {
	if s.Returns == nil {
		s.Returns = risk.NewWindow(1)
	}
	return &Agent{state: s}
}

func preset(a Appetite) (markupBias, logStd, riskScale float64) {
	switch a {
	case Averse:
		return 0.45, -1.6, 0.7
	case Aggressive:
		return 0.15, -1.2, 1.3
	default:
		return 0.30, -1.4, 1.0
	}
}

func (a *Agent) ID() string { return a.state.AgentID }

// Bounds reports the capital bounds the environment enforces on this agent.
func (a *Agent) Bounds() market.Bounds { return market.Bounds{MaxLine: a.state.MaxLine} }

// RiskSnapshot returns the latest tail-risk snapshot, for observations and
// exports. It may be stale by up to one generation.
func (a *Agent) RiskSnapshot() risk.Snapshot { return a.state.LastRisk }

// Lambda reports the current Lagrange multiplier, for governance traces.
func (a *Agent) Lambda() float64 { return a.state.Lambda }

func (a *Agent) Act(o Observation, round, submission int, rng *rand.Rand) (market.Bid, Action, bool) {
	if a.state.Withdrawn {
		return market.Bid{}, Action{}, false
	}

	x := Features(o)
	var act Action
	act.Features = x
	for i := 0; i < 2; i++ {
		act.Mean[i] = dot(a.state.PolicyW[i], x)
		act.Raw[i] = act.Mean[i] + math.Exp(a.state.LogStd[i])*rng.NormFloat64()
	}
	act.LogProb = logProb(act.Raw, act.Mean, a.state.LogStd)
	act.Value = dot(a.state.ValueW, x)

	req := o.Request
	bid := market.Bid{
		AgentID:    a.state.AgentID,
		TreatyID:   req.ID,
		Round:      round,
		Submission: submission,
	}
	quota := 0.0
	if req.Type == market.QuotaShare {
		quota = sigmoid(act.Raw[1])
		bid.QuotaShare = quota
		bid.Limit = req.Limit
	} else {
		bid.AttachmentPoint = req.AttachmentPoint
		bid.Limit = req.Limit
	}
	bid.Premium = market.ExpectedCededLoss(req, quota) * math.Exp(act.Raw[0])

	return bid, act, true
}

// Snapshot returns a deep copy so callers can serialize without racing the
// agent's own mutations.
func (a *Agent) Snapshot() State {
	s := a.state
	s.PolicyW = make([][]float64, len(a.state.PolicyW))
	for i, row := range a.state.PolicyW {
		s.PolicyW[i] = append([]float64(nil), row...)
	}
	s.LogStd = append([]float64(nil), a.state.LogStd...)
	s.ValueW = append([]float64(nil), a.state.ValueW...)
	if a.state.Returns != nil {
		w := *a.state.Returns
		w.Values = append([]float64(nil), a.state.Returns.Values...)
		s.Returns = &w
	}
	return s
}

func dot(w, x []float64) float64 {
	sum := 0.0
	for i := range w {
		sum += w[i] * x[i]
	}
	return sum
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

const log2Pi = 1.8378770664093453

func logProb(raw, mean [2]float64, logStd []float64) float64 {
	lp := 0.0
	for i := 0; i < 2; i++ {
		sigma := math.Exp(logStd[i])
		d := (raw[i] - mean[i]) / sigma
		lp += -0.5*d*d - logStd[i] - 0.5*log2Pi
	}
	return lp
}
