package metrics

import "sort"

// Point is one (profit, tail-risk) outcome on the frontier. Shortfall is
// the positive-loss CVaR scale, so lower is safer.
type Point struct {
	AgentID    string  `json:"agent_id"`
	Generation int     `json:"generation"`
	Profit     float64 `json:"profit"`
	Shortfall  float64 `json:"shortfall"`
}

// dominates reports whether a is at least as good as b on both axes and
// strictly better on one.
func dominates(a, b Point) bool {
	if a.Profit < b.Profit || a.Shortfall > b.Shortfall {
		return false
	}
	return a.Profit > b.Profit || a.Shortfall < b.Shortfall
}

// Tracker maintains the non-dominated (profit, shortfall) frontier across
// agents and generations for downstream dashboards.
type Tracker struct {
	points []Point
}

// NewTracker returns an empty frontier.
func NewTracker() *Tracker { return &Tracker{} }

// Add inserts a point, dropping it if dominated and evicting any retained
// points it dominates. Returns true when the point was retained.
func (t *Tracker) Add(p Point) bool {
	for _, q := range t.points {
		if dominates(q, p) {
			return false
		}
	}
	kept := t.points[:0]
	for _, q := range t.points {
		if !dominates(p, q) {
			kept = append(kept, q)
		}
	}
	t.points = append(kept, p)
	return true
}

// Len reports the number of retained points.
func (t *Tracker) Len() int { return len(t.points) }

// Frontier returns the retained points sorted by shortfall ascending,
// profit descending.
func (t *Tracker) Frontier() []Point {
	out := append([]Point(nil), t.points...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Shortfall != out[j].Shortfall {
			return out[i].Shortfall < out[j].Shortfall
		}
		return out[i].Profit > out[j].Profit
	})
	return out
}

// Improvement is a scalar progress measure of the frontier: the best
// profit-minus-shortfall over retained points. The trainer's convergence
// criterion watches this value between generations.
func (t *Tracker) Improvement() float64 {
	if len(t.points) == 0 {
		return 0
	}
	best := t.points[0].Profit - t.points[0].Shortfall
	for _, p := range t.points[1:] {
		if v := p.Profit - p.Shortfall; v > best {
			best = v
		}
	}
	return best
}
