package market

import "math"

// TreatyType identifies the treaty structure being bid on.
type TreatyType string

const (
	XoL        TreatyType = "XoL"
	QuotaShare TreatyType = "QuotaShare"
)

// TreatyRequest is an immutable treaty submission produced by the Generator
// once per round and consumed read-only by every agent in that round.
type TreatyRequest struct {
	ID              string
	CedentID        string
	Type            TreatyType
	LineOfBusiness  string
	Region          string
	AttachmentPoint float64 // zero for quota share
	Limit           float64
	Exposure        float64
	LossRatioPrior  float64
}

// Bid is one agent's priced quote for a treaty. Immutable after submission.
type Bid struct {
	AgentID         string
	TreatyID        string
	Premium         float64
	AttachmentPoint float64
	Limit           float64
	QuotaShare      float64 // zero for XoL
	Round           int
	Submission      int // order of submission within the round, for tie-breaks
}

// RoundOutcome is the settled result of one bidding round.
type RoundOutcome struct {
	TreatyID          string
	Round             int
	WinningBid        *Bid // nil when the round is unbound
	Accepted          bool
	RealizedLossRatio float64
	Rewards           map[string]float64
	Invalid           []string // agents whose bids failed validation
}

// ExpectedCededLoss approximates the expected loss ceded to the reinsurer
// under the bid terms, given the cedent's loss-ratio prior. For XoL the
// ground-up expectation is discounted by the layer's share of the stack;
// for quota share it is the ceded fraction of the ground-up expectation.
func ExpectedCededLoss(req TreatyRequest, quotaShare float64) float64 {
	ground := req.LossRatioPrior * req.Exposure
	switch req.Type {
	case QuotaShare:
		return quotaShare * ground
	default:
		stack := req.AttachmentPoint + req.Limit
		if stack <= 0 {
			return 0
		}
		return math.Min(ground, req.Limit) * req.Limit / stack
	}
}

// CededLoss applies the bid terms to a realized loss ratio.
func CededLoss(req TreatyRequest, b Bid, lossRatio float64) float64 {
	ground := lossRatio * req.Exposure
	switch req.Type {
	case QuotaShare:
		ceded := b.QuotaShare * ground
		if b.Limit > 0 && ceded > b.Limit {
			ceded = b.Limit
		}
		return ceded
	default:
		layered := ground - b.AttachmentPoint
		if layered < 0 {
			layered = 0
		}
		if layered > b.Limit {
			layered = b.Limit
		}
		return layered
	}
}

// CapitalCharge is the cost-of-capital deduction for holding the ceded
// exposure on the reinsurer's balance sheet for the round.
func CapitalCharge(req TreatyRequest, b Bid, costOfCapital float64) float64 {
	switch req.Type {
	case QuotaShare:
		return costOfCapital * b.QuotaShare * req.Exposure
	default:
		return costOfCapital * b.Limit
	}
}
