package metrics

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerDropsDominatedPoints(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	assert.True(t, tr.Add(Point{AgentID: "a", Profit: 10, Shortfall: 0.2}))
	assert.False(t, tr.Add(Point{AgentID: "b", Profit: 8, Shortfall: 0.3}),
		"strictly worse on both axes")
	assert.True(t, tr.Add(Point{AgentID: "c", Profit: 5, Shortfall: 0.1}),
		"lower profit but safer: incomparable, kept")

	front := tr.Frontier()
	require.Len(t, front, 2)
	assert.Equal(t, "c", front[0].AgentID, "frontier sorts by shortfall ascending")
	assert.Equal(t, "a", front[1].AgentID)
}

func TestTrackerEvictsNewlyDominated(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	tr.Add(Point{AgentID: "a", Profit: 5, Shortfall: 0.3})
	tr.Add(Point{AgentID: "b", Profit: 4, Shortfall: 0.2})
	require.True(t, tr.Add(Point{AgentID: "c", Profit: 6, Shortfall: 0.1}),
		"dominates both existing points")

	front := tr.Frontier()
	require.Len(t, front, 1)
	assert.Equal(t, "c", front[0].AgentID)
}

func TestFrontierIsMutuallyNonDominated(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(29))
	tr := NewTracker()
	for i := 0; i < 500; i++ {
		tr.Add(Point{
			Profit:    rng.NormFloat64() * 5,
			Shortfall: rng.Float64(),
		})
	}

	front := tr.Frontier()
	require.NotEmpty(t, front)
	for i, a := range front {
		for j, b := range front {
			if i == j {
				continue
			}
			assert.False(t, dominates(a, b),
				"frontier must contain no dominated point")
		}
	}
}

func TestImprovementTracksBestTradeoff(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	assert.Zero(t, tr.Improvement())

	tr.Add(Point{Profit: 5, Shortfall: 0.5})
	assert.InDelta(t, 4.5, tr.Improvement(), 1e-12)

	tr.Add(Point{Profit: 7, Shortfall: 0.2})
	assert.InDelta(t, 6.8, tr.Improvement(), 1e-12)
}

func TestSummarizeFairness(t *testing.T) {
	t.Parallel()

	equal := Summarize([]AgentSummary{
		{AgentID: "a", Profit: 3},
		{AgentID: "b", Profit: 3},
		{AgentID: "c", Profit: 3},
	})
	assert.InDelta(t, 1.0, equal.Fairness, 1e-9, "equal profits are perfectly fair")

	skewed := Summarize([]AgentSummary{
		{AgentID: "a", Profit: 9},
		{AgentID: "b", Profit: 0},
		{AgentID: "c", Profit: 0},
	})
	assert.Less(t, skewed.Fairness, equal.Fairness)
	assert.Greater(t, equal.Efficiency, skewed.Efficiency,
		"dispersion and unfairness both depress efficiency")
}

func TestSummarizeSortsAgents(t *testing.T) {
	t.Parallel()

	s := Summarize([]AgentSummary{{AgentID: "z"}, {AgentID: "a"}, {AgentID: "m"}})
	require.Len(t, s.Agents, 3)
	assert.Equal(t, "a", s.Agents[0].AgentID)
	assert.Equal(t, "z", s.Agents[2].AgentID)
}

func TestSummarizeEmpty(t *testing.T) {
	t.Parallel()

	s := Summarize(nil)
	assert.Empty(t, s.Agents)
	assert.Zero(t, s.Fairness)
	assert.Zero(t, s.Efficiency)
}
