package agent

import (
	"errors"
	"fmt"
	"math"

	"github.com/treatylens/treatysim/risk"
)

// Step is one decision in a trajectory, annotated by the trainer with its
// advantage and discounted-return target.
type Step struct {
	Episode    int
	Features   []float64
	Raw        [2]float64
	OldLogProb float64
	Advantage  float64
	Return     float64
}

// Batch is one generation's worth of trajectories for a single agent.
// Trajectories are discarded after the update consumes them.
type Batch struct {
	Generation     int
	Steps          []Step
	EpisodeReturns []float64 // indexed by Step.Episode
}

// TrainParams are the per-update hyperparameters, taken from config.
type TrainParams struct {
	LearningRate       float64
	LambdaLearningRate float64
	ClipRange          float64
	Epochs             int
	Confidence         float64
	MinSamples         int
}

// UpdateStats reports what one generation's update actually did.
type UpdateStats struct {
	Skipped       bool // divergent update, prior parameters kept
	ConstraintOK  bool // CVaR estimate was available and fresh
	Lambda        float64
	Risk          risk.Snapshot
	MeanReturn    float64
	CapitalChange float64
}

// Update runs the constrained proximal policy update for one generation:
// it folds the episode returns into the rolling window, refreshes the CVaR
// snapshot, performs dual ascent on the Lagrange multiplier, and applies a
// bounded number of clipped-surrogate gradient epochs. A non-finite update
// leaves the prior parameters in place and reports Skipped rather than
// failing the generation.
func (a *Agent) Update(batch Batch, p TrainParams) (UpdateStats, error) {
	var stats UpdateStats

	mean := 0.0
	for _, r := range batch.EpisodeReturns {
		a.state.Returns.Push(r)
		mean += r
	}
	if n := len(batch.EpisodeReturns); n > 0 {
		mean /= float64(n)
	}
	stats.MeanReturn = mean
	stats.CapitalChange = mean
	a.state.Capital += mean
	if a.state.Capital < a.state.CapitalFloor {
		a.state.Withdrawn = true
	}

	snap, err := risk.Estimate(a.state.Returns.Returns(), p.Confidence, p.MinSamples)
	switch {
	case err == nil:
		snap.AgentID = a.state.AgentID
		snap.Generation = batch.Generation
		a.state.LastRisk = snap
		stats.ConstraintOK = true
		stats.Risk = snap
	case errors.Is(err, risk.ErrInsufficientSamples):
		// Constraint inactive for this update.
	default:
		return stats, fmt.Errorf("agent %s: %w", a.state.AgentID, err)
	}

	// Dual ascent: push the multiplier toward binding exactly at the
	// configured budget. Projected at zero. The multiplier's effect on the
	// policy arrives through the CVaR penalty the trainer folds into step
	// rewards before advantage estimation.
	if stats.ConstraintOK {
		gap := snap.Shortfall - a.state.RiskBudget
		a.state.Lambda = math.Max(0, a.state.Lambda+p.LambdaLearningRate*gap)
	}
	stats.Lambda = a.state.Lambda

	if len(batch.Steps) == 0 {
		return stats, nil
	}

	policy := cloneMatrix(a.state.PolicyW)
	value := append([]float64(nil), a.state.ValueW...)
	n := float64(len(batch.Steps))

	for epoch := 0; epoch < p.Epochs; epoch++ {
		gradP := zeroMatrix(len(policy), FeatureDim)
		gradV := make([]float64, FeatureDim)

		for _, st := range batch.Steps {
			adv := st.Advantage

			var mu [2]float64
			newLP := 0.0
			for i := 0; i < 2; i++ {
				mu[i] = dot(policy[i], st.Features)
				sigma := math.Exp(a.state.LogStd[i])
				d := (st.Raw[i] - mu[i]) / sigma
				newLP += -0.5*d*d - a.state.LogStd[i] - 0.5*log2Pi
			}
			ratio := math.Exp(newLP - st.OldLogProb)

			// Clipped surrogate: zero gradient once the ratio leaves
			// the trust region in the direction the advantage pushes.
			clipped := (adv >= 0 && ratio > 1+p.ClipRange) ||
				(adv < 0 && ratio < 1-p.ClipRange)
			if !clipped {
				for i := 0; i < 2; i++ {
					sigma := math.Exp(a.state.LogStd[i])
					score := (st.Raw[i] - mu[i]) / (sigma * sigma)
					coef := adv * ratio * score
					for k, x := range st.Features {
						gradP[i][k] += coef * x
					}
				}
			}

			residual := dot(value, st.Features) - st.Return
			for k, x := range st.Features {
				gradV[k] += residual * x
			}
		}

		// A bounded gradient norm keeps a pathological batch from walking
		// the parameters off to infinity; a non-finite norm abandons the
		// whole update instead.
		if !clipGradients(gradP, gradV, maxGradNorm*n) {
			stats.Skipped = true
			return stats, nil
		}

		for i := range policy {
			for k := range policy[i] {
				policy[i][k] += p.LearningRate * gradP[i][k] / n
			}
		}
		for k := range value {
			value[k] -= p.LearningRate * gradV[k] / n
		}
	}

	if !finiteMatrix(policy) || !finiteVec(value) {
		stats.Skipped = true
		return stats, nil
	}

	a.state.PolicyW = policy
	a.state.ValueW = value
	return stats, nil
}

// maxGradNorm bounds the per-step-mean gradient norm applied each epoch.
const maxGradNorm = 10.0

// clipGradients rescales the policy and value gradients jointly so their
// combined norm stays at or below max. Returns false when the norm is not
// finite; the caller keeps the prior parameters for the generation.
func clipGradients(gradP [][]float64, gradV []float64, max float64) bool {
	sum := 0.0
	for _, row := range gradP {
		for _, g := range row {
			sum += g * g
		}
	}
	for _, g := range gradV {
		sum += g * g
	}
	norm := math.Sqrt(sum)
	if math.IsNaN(norm) || math.IsInf(norm, 0) {
		return false
	}
	if norm > max {
		s := max / norm
		for i := range gradP {
			for k := range gradP[i] {
				gradP[i][k] *= s
			}
		}
		for k := range gradV {
			gradV[k] *= s
		}
	}
	return true
}

func cloneMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

func zeroMatrix(rows, cols int) [][]float64 {
	out := make([][]float64, rows)
	for i := range out {
		out[i] = make([]float64, cols)
	}
	return out
}

func finiteMatrix(m [][]float64) bool {
	for _, row := range m {
		if !finiteVec(row) {
			return false
		}
	}
	return true
}

func finiteVec(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
