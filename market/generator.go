package market

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/treatylens/treatysim/config"
	"github.com/treatylens/treatysim/internal/id"
)

// ShockOverrides are multiplicative adjustments a stress scenario applies to
// the treaty-generating distribution and settlement parameters. The zero
// value of any field means "no change".
type ShockOverrides struct {
	LossRatioScale     float64
	LossSigmaScale     float64
	ExposureScale      float64
	CostOfCapitalScale float64
}

func (o ShockOverrides) orOne(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}

// LossRatio returns the effective loss-ratio multiplier.
func (o ShockOverrides) LossRatio() float64 { return o.orOne(o.LossRatioScale) }

// LossSigma returns the effective loss-volatility multiplier.
func (o ShockOverrides) LossSigma() float64 { return o.orOne(o.LossSigmaScale) }

// Exposure returns the effective exposure multiplier.
func (o ShockOverrides) Exposure() float64 { return o.orOne(o.ExposureScale) }

// CostOfCapital returns the effective cost-of-capital multiplier.
func (o ShockOverrides) CostOfCapital() float64 { return o.orOne(o.CostOfCapitalScale) }

// Generator produces treaty requests from independent configured
// distributions per field. Next is deterministic given a round seed.
type Generator struct {
	cfg       config.TreatyConfig
	overrides ShockOverrides

	// weight tables flattened into deterministic order
	types   []weighted[TreatyType]
	regions []weighted[string]
	lines   []weighted[string]
}

type weighted[T any] struct {
	value  T
	weight float64
}

// NewGenerator builds a generator from the configured distributions. The
// overrides are applied multiplicatively to loss-ratio priors and exposure.
func NewGenerator(cfg config.TreatyConfig, overrides ShockOverrides) (*Generator, error) {
	g := &Generator{cfg: cfg, overrides: overrides}

	for _, k := range sortedKeys(cfg.Mix) {
		g.types = append(g.types, weighted[TreatyType]{TreatyType(k), cfg.Mix[k]})
	}
	for _, k := range sortedKeys(cfg.RegionWeights) {
		g.regions = append(g.regions, weighted[string]{k, cfg.RegionWeights[k]})
	}
	for _, k := range sortedKeys(cfg.LineWeights) {
		g.lines = append(g.lines, weighted[string]{k, cfg.LineWeights[k]})
	}
	if len(g.types) == 0 || len(g.regions) == 0 || len(g.lines) == 0 {
		return nil, fmt.Errorf("generator: treaty mix, region and line weights must not be empty")
	}
	return g, nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Next draws one treaty request. Identical seeds yield identical requests.
func (g *Generator) Next(roundSeed int64) TreatyRequest {
	rng := rand.New(rand.NewSource(roundSeed))
	return g.Draw(rng, uint64(roundSeed&math.MaxInt64))
}

// Draw produces a request from an externally owned RNG stream. tick orders
// the generated ID; rollout workers pass the global round index.
func (g *Generator) Draw(rng *rand.Rand, tick uint64) TreatyRequest {
	typ := pick(g.types, rng)
	region := pick(g.regions, rng)
	line := pick(g.lines, rng)

	prior := g.cfg.LossRatioPriorMin +
		rng.Float64()*(g.cfg.LossRatioPriorMax-g.cfg.LossRatioPriorMin)
	prior *= g.overrides.LossRatio()

	exposure := math.Exp(g.cfg.ExposureMu + rng.NormFloat64()*g.cfg.ExposureSigma)
	exposure *= g.overrides.Exposure()

	limit := g.cfg.LimitFactor * exposure
	attachment := 0.0
	if typ == XoL {
		attachment = g.cfg.AttachmentFactor * exposure
	}

	return TreatyRequest{
		ID:              id.Deterministic(tick, rng),
		CedentID:        fmt.Sprintf("cedent-%s-%s", region, line),
		Type:            typ,
		LineOfBusiness:  line,
		Region:          region,
		AttachmentPoint: attachment,
		Limit:           limit,
		Exposure:        exposure,
		LossRatioPrior:  prior,
	}
}

// Overrides reports the shock overrides the generator was built with.
func (g *Generator) Overrides() ShockOverrides { return g.overrides }

func pick[T any](table []weighted[T], rng *rand.Rand) T {
	total := 0.0
	for _, w := range table {
		total += w.weight
	}
	x := rng.Float64() * total
	for _, w := range table {
		x -= w.weight
		if x < 0 {
			return w.value
		}
	}
	return table[len(table)-1].value
}
