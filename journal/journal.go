package journal

// RoundRecord is one settled bidding round in the tabular export schema
// the downstream benchmarking and dashboard collaborators consume. Column
// names and types are a compatibility contract; do not rename.
type RoundRecord struct {
	RunID             string
	Generation        int
	Episode           int
	Round             int
	CedentID          string
	ReinsurerID       string // winning agent; empty when the round is unbound
	TreatyType        string
	Premium           float64
	AttachmentPoint   float64
	Limit             float64
	QuotaShare        float64
	Accepted          bool
	ObservedLossRatio float64
	CVaR95            float64 // winner's tail-risk snapshot at decision time
}

// TraceRecord is one agent decision in the policy trace consumed by the
// governance collaborator: enough for counterfactual and override tooling
// without exposing policy parameters.
type TraceRecord struct {
	RunID          string
	Round          int
	AgentID        string
	TreatyID       string
	LossRatioPrior float64
	Exposure       float64
	CompetitorMean float64
	Premium        float64
	QuotaShare     float64
	CVaR           float64
	Lambda         float64
	Alert          bool // Lagrange multiplier above the governance threshold
}

// Journal records simulation output for external consumers.
type Journal interface {
	RecordRound(RoundRecord) error
	RecordTrace(TraceRecord) error
	Close() error
}

// Discard is a Journal that drops everything; used when journaling is
// disabled.
type Discard struct{}

func (Discard) RecordRound(RoundRecord) error { return nil }
func (Discard) RecordTrace(TraceRecord) error { return nil }
func (Discard) Close() error                  { return nil }
