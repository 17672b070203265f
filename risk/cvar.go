package risk

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInsufficientSamples signals that the rolling window does not yet hold
// enough returns for a reliable tail estimate. Callers must treat the risk
// constraint as inactive rather than enforcing an unreliable number.
var ErrInsufficientSamples = errors.New("risk: insufficient samples for CVaR estimate")

// Snapshot is a point-in-time CVaR estimate for one agent's return
// distribution. VaR and CVaR are on the return scale (CVaR <= VaR by
// construction); Shortfall is the same tail expectation expressed as a
// non-negative loss, which is what the constraint and exports use.
type Snapshot struct {
	AgentID    string  `json:"agent_id"`
	Confidence float64 `json:"confidence"`
	VaR        float64 `json:"var"`
	CVaR       float64 `json:"cvar"`
	Shortfall  float64 `json:"shortfall"`
	SampleSize int     `json:"sample_size"`
	Generation int     `json:"generation"`
}

// Valid reports whether the snapshot backs a constraint check. Snapshots
// older than one training generation are stale.
func (s Snapshot) Valid(generation int) bool {
	return s.SampleSize > 0 && generation-s.Generation <= 1
}

// Estimate computes the empirical VaR and CVaR of the return sequence at
// the given confidence level. VaR is the (1-confidence) lower quantile;
// CVaR is the mean of returns at or below it.
func Estimate(returns []float64, confidence float64, minSamples int) (Snapshot, error) {
	if confidence <= 0 || confidence >= 1 {
		return Snapshot{}, fmt.Errorf("risk: confidence %v outside (0, 1)", confidence)
	}
	if minSamples < 1 {
		minSamples = 1
	}
	if len(returns) < minSamples {
		return Snapshot{}, fmt.Errorf("%w: have %d, need %d",
			ErrInsufficientSamples, len(returns), minSamples)
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	// The epsilon absorbs binary-representation error in (1-confidence):
	// 40*(1-0.90) evaluates to 3.999... and must still yield a 4-sample tail.
	tail := int(math.Floor(float64(len(sorted))*(1-confidence) + 1e-9))
	if tail < 1 {
		tail = 1
	}

	varAt := sorted[tail-1]
	sum := 0.0
	for _, r := range sorted[:tail] {
		sum += r
	}
	cvar := sum / float64(tail)

	shortfall := -cvar
	if shortfall < 0 {
		shortfall = 0
	}

	return Snapshot{
		Confidence: confidence,
		VaR:        varAt,
		CVaR:       cvar,
		Shortfall:  shortfall,
		SampleSize: len(sorted),
	}, nil
}
