package market

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() Params {
	return Params{
		MinRateOnLine:   0.7,
		CostOfCapital:   0.02,
		OpportunityCost: 0.01,
		LossSigma:       0.3,
	}
}

func xolRequest() TreatyRequest {
	return TreatyRequest{
		ID:              "t-1",
		CedentID:        "cedent-1",
		Type:            XoL,
		AttachmentPoint: 2,
		Limit:           5,
		Exposure:        10,
		LossRatioPrior:  0.65,
	}
}

func qsRequest() TreatyRequest {
	return TreatyRequest{
		ID:             "t-2",
		CedentID:       "cedent-2",
		Type:           QuotaShare,
		Limit:          5,
		Exposure:       10,
		LossRatioPrior: 0.65,
	}
}

func adequateBid(agentID string, premium float64, sub int) Bid {
	req := xolRequest()
	return Bid{
		AgentID:         agentID,
		TreatyID:        req.ID,
		Premium:         premium,
		AttachmentPoint: req.AttachmentPoint,
		Limit:           req.Limit,
		Submission:      sub,
	}
}

func TestSettleLowestAdequatePremiumWins(t *testing.T) {
	t.Parallel()

	env := NewEnvironment(testParams(), nil)
	req := xolRequest()
	floor := testParams().MinRateOnLine * ExpectedCededLoss(req, 0)

	bids := []Bid{
		adequateBid("a", floor*1.5, 0),
		adequateBid("b", floor*1.1, 1),
		adequateBid("c", floor*0.5, 2), // below adequacy, cheapest overall
	}
	out := env.Settle(req, bids, rand.New(rand.NewSource(1)))

	require.NotNil(t, out.WinningBid)
	assert.True(t, out.Accepted)
	assert.Equal(t, "b", out.WinningBid.AgentID,
		"inadequate bid must not win even when cheapest")
	assert.Equal(t, -0.01, out.Rewards["a"])
	assert.Equal(t, -0.01, out.Rewards["c"], "inadequate-but-valid losers still pay the foregone-capacity cost")
}

func TestSettleTieBreakDeterministic(t *testing.T) {
	t.Parallel()

	req := xolRequest()
	floor := testParams().MinRateOnLine * ExpectedCededLoss(req, 0)
	bids := []Bid{
		adequateBid("z", floor*1.2, 0),
		adequateBid("a", floor*1.2, 1),
	}

	env := NewEnvironment(testParams(), nil)
	out := env.Settle(req, bids, rand.New(rand.NewSource(7)))
	require.NotNil(t, out.WinningBid)
	assert.Equal(t, "z", out.WinningBid.AgentID, "earlier submission wins a premium tie")

	// Equal submission index falls back to agent ID.
	bids[0].Submission = 1
	env = NewEnvironment(testParams(), nil)
	out = env.Settle(req, bids, rand.New(rand.NewSource(7)))
	require.NotNil(t, out.WinningBid)
	assert.Equal(t, "a", out.WinningBid.AgentID)
}

func TestSettleRejectsInvalidBidsLocally(t *testing.T) {
	t.Parallel()

	req := xolRequest()
	floor := testParams().MinRateOnLine * ExpectedCededLoss(req, 0)

	bad := adequateBid("bad", -1, 0)
	good := adequateBid("good", floor*1.3, 1)
	zeroLimit := adequateBid("noline", floor*1.3, 2)
	zeroLimit.Limit = 0

	env := NewEnvironment(testParams(), nil)
	out := env.Settle(req, []Bid{bad, good, zeroLimit}, rand.New(rand.NewSource(3)))

	assert.Equal(t, []string{"bad", "noline"}, out.Invalid)
	require.NotNil(t, out.WinningBid)
	assert.Equal(t, "good", out.WinningBid.AgentID,
		"invalid bids are dropped without poisoning the round")
}

func TestSettleQuotaShareValidation(t *testing.T) {
	t.Parallel()

	req := qsRequest()
	mk := func(agentID string, qs float64) Bid {
		return Bid{
			AgentID:    agentID,
			TreatyID:   req.ID,
			Premium:    testParams().MinRateOnLine * ExpectedCededLoss(req, qs) * 1.2,
			Limit:      req.Limit,
			QuotaShare: qs,
		}
	}

	env := NewEnvironment(testParams(), nil)
	out := env.Settle(req, []Bid{mk("over", 1.2), mk("ok", 0.5)}, rand.New(rand.NewSource(5)))

	assert.Equal(t, []string{"over"}, out.Invalid)
	require.NotNil(t, out.WinningBid)
	assert.Equal(t, "ok", out.WinningBid.AgentID)
}

func TestSettleEnforcesMaxLine(t *testing.T) {
	t.Parallel()

	req := xolRequest()
	floor := testParams().MinRateOnLine * ExpectedCededLoss(req, 0)
	bounds := map[string]Bounds{"small": {MaxLine: 1}}

	env := NewEnvironment(testParams(), bounds)
	out := env.Settle(req, []Bid{adequateBid("small", floor*1.2, 0)}, rand.New(rand.NewSource(2)))

	assert.Equal(t, []string{"small"}, out.Invalid)
	assert.Nil(t, out.WinningBid)
}

func TestSettleUnboundRound(t *testing.T) {
	t.Parallel()

	env := NewEnvironment(testParams(), nil)
	req := xolRequest()
	out := env.Settle(req, nil, rand.New(rand.NewSource(11)))

	assert.Nil(t, out.WinningBid)
	assert.False(t, out.Accepted)
	assert.Positive(t, out.RealizedLossRatio,
		"loss ratio is observed even when no bid binds")
	assert.Empty(t, out.Rewards)
}

func TestSettleDeterministicForSeed(t *testing.T) {
	t.Parallel()

	req := xolRequest()
	floor := testParams().MinRateOnLine * ExpectedCededLoss(req, 0)
	bids := []Bid{adequateBid("a", floor*1.2, 0), adequateBid("b", floor*1.4, 1)}

	a := NewEnvironment(testParams(), nil).Settle(req, bids, rand.New(rand.NewSource(42)))
	b := NewEnvironment(testParams(), nil).Settle(req, bids, rand.New(rand.NewSource(42)))

	assert.Equal(t, a.RealizedLossRatio, b.RealizedLossRatio)
	assert.Equal(t, a.Rewards, b.Rewards)
}

func TestSettleWinnerRewardAccounting(t *testing.T) {
	t.Parallel()

	req := xolRequest()
	floor := testParams().MinRateOnLine * ExpectedCededLoss(req, 0)
	bid := adequateBid("w", floor*1.2, 0)

	env := NewEnvironment(testParams(), nil)
	out := env.Settle(req, []Bid{bid}, rand.New(rand.NewSource(9)))

	require.NotNil(t, out.WinningBid)
	loss := CededLoss(req, bid, out.RealizedLossRatio)
	charge := CapitalCharge(req, bid, testParams().CostOfCapital)
	assert.InDelta(t, bid.Premium-loss-charge, out.Rewards["w"], 1e-12)
}

func TestCededLossLayering(t *testing.T) {
	t.Parallel()

	req := xolRequest() // attachment 2, limit 5, exposure 10
	bid := Bid{AttachmentPoint: 2, Limit: 5}

	assert.Zero(t, CededLoss(req, bid, 0.1), "ground-up loss below attachment")
	assert.InDelta(t, 2.0, CededLoss(req, bid, 0.4), 1e-12)
	assert.InDelta(t, 5.0, CededLoss(req, bid, 0.9), 1e-12, "capped at limit")
}

func TestExpectedCededLossPositive(t *testing.T) {
	t.Parallel()

	assert.Positive(t, ExpectedCededLoss(xolRequest(), 0))
	assert.Positive(t, ExpectedCededLoss(qsRequest(), 0.5))
	assert.Greater(t,
		ExpectedCededLoss(qsRequest(), 0.8),
		ExpectedCededLoss(qsRequest(), 0.2))
}

func TestRealizedLossRatioMeanMatchesPrior(t *testing.T) {
	t.Parallel()

	env := NewEnvironment(testParams(), nil)
	req := xolRequest()
	rng := rand.New(rand.NewSource(123))

	var sum float64
	const n = 20000
	for i := 0; i < n; i++ {
		out := env.Settle(req, nil, rng)
		sum += out.RealizedLossRatio
	}
	assert.InDelta(t, req.LossRatioPrior, sum/n, 0.01,
		"lognormal draw must be mean-preserving around the prior")
	assert.False(t, math.IsNaN(sum))
}
