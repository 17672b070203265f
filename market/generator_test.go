package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treatylens/treatysim/config"
)

func testTreatyConfig() config.TreatyConfig {
	return config.Default().Treaty
}

func TestGeneratorDeterministicForSeed(t *testing.T) {
	t.Parallel()

	g1, err := NewGenerator(testTreatyConfig(), ShockOverrides{})
	require.NoError(t, err)
	g2, err := NewGenerator(testTreatyConfig(), ShockOverrides{})
	require.NoError(t, err)

	for seed := int64(1); seed <= 50; seed++ {
		assert.Equal(t, g1.Next(seed), g2.Next(seed))
	}
}

func TestGeneratorFieldsWellFormed(t *testing.T) {
	t.Parallel()

	cfg := testTreatyConfig()
	g, err := NewGenerator(cfg, ShockOverrides{})
	require.NoError(t, err)

	for seed := int64(1); seed <= 200; seed++ {
		req := g.Next(seed)
		assert.NotEmpty(t, req.ID)
		assert.NotEmpty(t, req.CedentID)
		assert.Positive(t, req.Exposure)
		assert.Positive(t, req.Limit)
		assert.GreaterOrEqual(t, req.LossRatioPrior, cfg.LossRatioPriorMin)
		assert.LessOrEqual(t, req.LossRatioPrior, cfg.LossRatioPriorMax)

		switch req.Type {
		case XoL:
			assert.Positive(t, req.AttachmentPoint)
		case QuotaShare:
			assert.Zero(t, req.AttachmentPoint)
		default:
			t.Fatalf("unexpected treaty type %q", req.Type)
		}
	}
}

func TestGeneratorUniqueIDs(t *testing.T) {
	t.Parallel()

	g, err := NewGenerator(testTreatyConfig(), ShockOverrides{})
	require.NoError(t, err)

	seen := map[string]bool{}
	for seed := int64(1); seed <= 500; seed++ {
		id := g.Next(seed).ID
		assert.False(t, seen[id], "treaty IDs must be unique across rounds")
		seen[id] = true
	}
}

func TestGeneratorAppliesShockOverrides(t *testing.T) {
	t.Parallel()

	base, err := NewGenerator(testTreatyConfig(), ShockOverrides{})
	require.NoError(t, err)
	shocked, err := NewGenerator(testTreatyConfig(), ShockOverrides{
		LossRatioScale: 1.3,
		ExposureScale:  2,
	})
	require.NoError(t, err)

	for seed := int64(1); seed <= 50; seed++ {
		b := base.Next(seed)
		s := shocked.Next(seed)
		assert.InDelta(t, b.LossRatioPrior*1.3, s.LossRatioPrior, 1e-12)
		assert.InDelta(t, b.Exposure*2, s.Exposure, 1e-9)
	}
}

func TestGeneratorRespectsTreatyMix(t *testing.T) {
	t.Parallel()

	cfg := testTreatyConfig()
	cfg.Mix = map[string]float64{"QuotaShare": 1}
	g, err := NewGenerator(cfg, ShockOverrides{})
	require.NoError(t, err)

	for seed := int64(1); seed <= 100; seed++ {
		assert.Equal(t, QuotaShare, g.Next(seed).Type)
	}
}

func TestGeneratorRejectsEmptyTables(t *testing.T) {
	t.Parallel()

	cfg := testTreatyConfig()
	cfg.LineWeights = nil
	_, err := NewGenerator(cfg, ShockOverrides{})
	assert.Error(t, err)
}
