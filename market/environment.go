package market

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/treatylens/treatysim/config"
)

// ErrInvalidBid marks a bid rejected before settlement for violating
// positivity or capital bounds. Rejection is local: the round proceeds
// without the offending agent.
var ErrInvalidBid = errors.New("market: invalid bid")

// Params are the settlement parameters for one environment instance.
type Params struct {
	MinRateOnLine   float64
	CostOfCapital   float64
	OpportunityCost float64
	LossSigma       float64
}

// ParamsFromConfig builds settlement parameters, applying any stress
// overrides to the cost of capital and loss volatility.
func ParamsFromConfig(mc config.MarketConfig, o ShockOverrides) Params {
	return Params{
		MinRateOnLine:   mc.MinRateOnLine,
		CostOfCapital:   mc.CostOfCapital * o.CostOfCapital(),
		OpportunityCost: mc.OpportunityCost,
		LossSigma:       mc.LossSigma * o.LossSigma(),
	}
}

// Bounds are the per-agent capital limits the environment enforces on bids.
type Bounds struct {
	MaxLine float64
}

// Environment settles one bidding round at a time. It is purely functional
// per round; the only cross-round state is the running round index.
type Environment struct {
	params Params
	bounds map[string]Bounds
	round  int
}

// NewEnvironment returns an environment with the given settlement parameters
// and per-agent capital bounds.
func NewEnvironment(p Params, bounds map[string]Bounds) *Environment {
	return &Environment{params: p, bounds: bounds}
}

// Round reports the running round index.
func (e *Environment) Round() int { return e.round }

// Settle runs one bidding round: filters invalid bids, selects the winner
// (lowest premium among bids meeting the adequacy threshold, ties broken by
// submission index then agent ID), draws the realized loss and assigns
// per-agent rewards. The rng drives the loss realization only.
func (e *Environment) Settle(req TreatyRequest, bids []Bid, rng *rand.Rand) RoundOutcome {
	out := RoundOutcome{
		TreatyID: req.ID,
		Round:    e.round,
		Rewards:  make(map[string]float64, len(bids)),
	}
	e.round++

	valid := make([]Bid, 0, len(bids))
	for _, b := range bids {
		if err := e.validate(req, b); err != nil {
			out.Invalid = append(out.Invalid, b.AgentID)
			out.Rewards[b.AgentID] = 0
			continue
		}
		valid = append(valid, b)
		out.Rewards[b.AgentID] = 0
	}
	sort.Strings(out.Invalid)

	// Realized loss ratio is sampled post-hoc whether or not the round
	// binds, conditioned on the cedent's prior: lognormal with mean equal
	// to the prior and configured volatility.
	sigma := e.params.LossSigma
	out.RealizedLossRatio = math.Exp(
		math.Log(req.LossRatioPrior) - sigma*sigma/2 + sigma*rng.NormFloat64())

	winner := e.selectWinner(req, valid)
	if winner == nil {
		// Unbound round: no capital changes, zero reward for everyone.
		return out
	}

	w := *winner
	out.WinningBid = &w
	out.Accepted = true

	loss := CededLoss(req, w, out.RealizedLossRatio)
	charge := CapitalCharge(req, w, e.params.CostOfCapital)
	out.Rewards[w.AgentID] = w.Premium - loss - charge

	// Losing but valid bidders pay a small foregone-capacity cost.
	for _, b := range valid {
		if b.AgentID != w.AgentID {
			out.Rewards[b.AgentID] = -e.params.OpportunityCost
		}
	}
	return out
}

func (e *Environment) validate(req TreatyRequest, b Bid) error {
	if b.Premium <= 0 {
		return fmt.Errorf("%w: premium %.4f must be strictly positive", ErrInvalidBid, b.Premium)
	}
	switch req.Type {
	case QuotaShare:
		if b.QuotaShare <= 0 || b.QuotaShare > 1 {
			return fmt.Errorf("%w: quota share %.4f outside (0, 1]", ErrInvalidBid, b.QuotaShare)
		}
	default:
		if b.Limit <= 0 {
			return fmt.Errorf("%w: limit %.4f must be strictly positive", ErrInvalidBid, b.Limit)
		}
		if b.AttachmentPoint < 0 {
			return fmt.Errorf("%w: attachment %.4f must not be negative", ErrInvalidBid, b.AttachmentPoint)
		}
	}
	if bounds, ok := e.bounds[b.AgentID]; ok {
		line := b.Limit
		if req.Type == QuotaShare {
			line = b.QuotaShare * req.Exposure
		}
		if line > bounds.MaxLine {
			return fmt.Errorf("%w: line %.4f exceeds agent %s max line %.4f",
				ErrInvalidBid, line, b.AgentID, bounds.MaxLine)
		}
	}
	return nil
}

// selectWinner returns the lowest-premium bid meeting the cedent's adequacy
// threshold, or nil when no bid qualifies. Tie-break: earlier submission
// index, then agent ID ascending.
func (e *Environment) selectWinner(req TreatyRequest, bids []Bid) *Bid {
	var best *Bid
	for i := range bids {
		b := &bids[i]
		floor := e.params.MinRateOnLine * ExpectedCededLoss(req, b.QuotaShare)
		if b.Premium < floor {
			continue
		}
		if best == nil || less(b, best) {
			best = b
		}
	}
	return best
}

func less(a, b *Bid) bool {
	if a.Premium != b.Premium {
		return a.Premium < b.Premium
	}
	if a.Submission != b.Submission {
		return a.Submission < b.Submission
	}
	return a.AgentID < b.AgentID
}
