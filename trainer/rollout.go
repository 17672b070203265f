package trainer

import (
	"math"
	"math/rand"
	"runtime"
	"sync"

	"github.com/treatylens/treatysim/agent"
	"github.com/treatylens/treatysim/market"
)

type roundResult struct {
	req            market.TreatyRequest
	bids           map[string]market.Bid
	actions        map[string]agent.Action
	outcome        market.RoundOutcome
	competitorMean float64
}

type episodeResult struct {
	index  int
	rounds []roundResult
}

// rollout runs the generation's episodes on a worker pool, one task per
// episode. Each episode owns an RNG stream derived from (run seed,
// generation, episode index), so results are reproducible regardless of
// worker count or completion order. Workers synchronize at the generation
// barrier before any result is consumed.
func (t *Trainer) rollout(g int) []episodeResult {
	n := t.cfg.Run.EpisodesPerGeneration
	results := make([]episodeResult, n)

	workers := t.cfg.Run.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ep := range jobs {
				results[ep] = t.runEpisode(g, ep)
			}
		}()
	}
	for ep := 0; ep < n; ep++ {
		jobs <- ep
	}
	close(jobs)
	wg.Wait()

	return results
}

// runEpisode simulates one full episode: a fresh environment, the fixed
// round cap, and a single RNG stream driving treaty generation, policy
// noise and loss realization in submission order. Agent state is read-only
// here; only Update mutates it, after the barrier.
func (t *Trainer) runEpisode(g, ep int) episodeResult {
	rng := rand.New(rand.NewSource(deriveSeed(t.cfg.Run.Seed, g, ep)))
	env := market.NewEnvironment(t.params, t.bounds)

	res := episodeResult{index: ep}
	var premiums welford

	for r := 0; r < t.cfg.Run.RoundsPerEpisode; r++ {
		tick := uint64(g)<<32 | uint64(ep)<<16 | uint64(r)
		req := t.generator.Draw(rng, tick)

		compMean, compStd := premiums.stats()

		bids := make([]market.Bid, 0, len(t.agents))
		actions := make(map[string]agent.Action, len(t.agents))
		byAgent := make(map[string]market.Bid, len(t.agents))
		for idx, a := range t.agents {
			obs := agent.Observation{
				Request:        req,
				Risk:           a.RiskSnapshot(),
				CompetitorMean: compMean,
				CompetitorStd:  compStd,
			}
			bid, act, ok := a.Act(obs, env.Round(), idx, rng)
			if !ok {
				continue
			}
			bids = append(bids, bid)
			actions[a.ID()] = act
			byAgent[a.ID()] = bid
		}

		outcome := env.Settle(req, bids, rng)

		// Anonymized competitor aggregate for later rounds: premium as a
		// multiple of expected ceded loss, with no agent attribution.
		for _, b := range bids {
			if base := market.ExpectedCededLoss(req, b.QuotaShare); base > 0 {
				premiums.add(b.Premium / base)
			}
		}

		res.rounds = append(res.rounds, roundResult{
			req:            req,
			bids:           byAgent,
			actions:        actions,
			outcome:        outcome,
			competitorMean: compMean,
		})
	}
	return res
}

// batches assembles per-agent training batches from the aggregated
// episodes: GAE advantages against the value baseline, discounted-return
// targets, and undiscounted episode returns for the risk window. The CVaR
// constraint enters here: tail episodes have the Lagrangian penalty folded
// into their step rewards before advantage estimation, so the whole
// surrogate gradient pushes the policy away from tail-producing actions.
func (t *Trainer) batches(g int, episodes []episodeResult) map[string]agent.Batch {
	gamma := t.cfg.Training.Discount
	lam := t.cfg.Training.GAELambda

	out := make(map[string]agent.Batch, len(t.agents))
	for _, a := range t.agents {
		id := a.ID()
		batch := agent.Batch{Generation: g}

		// Decision-time multiplier and tail threshold. The 1/(1-confidence)
		// factor is the CVaR subgradient weight: tail episodes are rare, so
		// each carries the full conditional-expectation mass of its excess
		// below VaR.
		snap := a.RiskSnapshot()
		penalize := a.Lambda() > 0 && snap.Valid(g)
		tailWeight := a.Lambda() / (1 - t.cfg.Risk.CVaRConfidence)

		for epIdx, ep := range episodes {
			var rewards, values []float64
			var steps []agent.Step
			for _, rr := range ep.rounds {
				act, ok := rr.actions[id]
				if !ok {
					continue
				}
				rewards = append(rewards, rr.outcome.Rewards[id])
				values = append(values, act.Value)
				steps = append(steps, agent.Step{
					Episode:    epIdx,
					Features:   act.Features,
					Raw:        act.Raw,
					OldLogProb: act.LogProb,
				})
			}
			if len(steps) == 0 {
				continue
			}

			// True undiscounted return, before any penalty: the risk
			// window and capital accounting must see realized outcomes.
			total := 0.0
			for _, r := range rewards {
				total += r
			}

			if penalize && total <= snap.VaR {
				pen := tailWeight * (snap.VaR - total) / float64(len(rewards))
				for i := range rewards {
					rewards[i] -= pen
				}
			}

			advs := gae(rewards, values, gamma, lam)
			for i := range steps {
				steps[i].Advantage = advs[i]
				steps[i].Return = advs[i] + values[i]
			}
			batch.Steps = append(batch.Steps, steps...)
			batch.EpisodeReturns = append(batch.EpisodeReturns, total)
		}

		normalizeAdvantages(batch.Steps)
		out[id] = batch
	}
	return out
}

// gae computes generalized advantage estimates over one episode.
func gae(rewards, values []float64, gamma, lam float64) []float64 {
	n := len(rewards)
	advs := make([]float64, n)
	next := 0.0
	nextValue := 0.0
	for i := n - 1; i >= 0; i-- {
		delta := rewards[i] + gamma*nextValue - values[i]
		next = delta + gamma*lam*next
		advs[i] = next
		nextValue = values[i]
	}
	return advs
}

func normalizeAdvantages(steps []agent.Step) {
	if len(steps) < 2 {
		return
	}
	mean := 0.0
	for _, s := range steps {
		mean += s.Advantage
	}
	mean /= float64(len(steps))

	varsum := 0.0
	for _, s := range steps {
		d := s.Advantage - mean
		varsum += d * d
	}
	std := math.Sqrt(varsum / float64(len(steps)))
	if std < 1e-8 {
		return
	}
	for i := range steps {
		steps[i].Advantage = (steps[i].Advantage - mean) / std
	}
}

// deriveSeed mixes the run seed with generation and episode indices
// (splitmix64) so every episode owns an independent deterministic stream.
func deriveSeed(base int64, g, ep int) int64 {
	x := uint64(base) ^ uint64(g)*0x9e3779b97f4a7c15 ^ uint64(ep)*0xbf58476d1ce4e5b9
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return int64(x & math.MaxInt64)
}

// welford is a streaming mean/std accumulator for competitor aggregates.
type welford struct {
	n    int
	mean float64
	m2   float64
}

func (w *welford) add(x float64) {
	w.n++
	d := x - w.mean
	w.mean += d / float64(w.n)
	w.m2 += d * (x - w.mean)
}

func (w *welford) stats() (mean, std float64) {
	if w.n == 0 {
		return 0, 0
	}
	return w.mean, math.Sqrt(w.m2 / float64(w.n))
}
