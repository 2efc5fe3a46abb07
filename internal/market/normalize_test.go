package market

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testNormalizer() *Normalizer {
	return NewNormalizer(DefaultTuning(), rand.New(rand.NewSource(1)))
}

func book(buyPrice, buysQty, sellPrice, sellsQty int64) PriceBook {
	return PriceBook{
		Buys:  Depth{UnitPrice: buyPrice, Quantity: buysQty},
		Sells: Depth{UnitPrice: sellPrice, Quantity: sellsQty},
	}
}

func TestNormalize_ZeroBuyPriceGuards(t *testing.T) {
	n := testNormalizer()

	item := n.Normalize(ItemMeta{ID: 1}, book(0, 0, 500, 1000))

	assert.Zero(t, item.ProfitPerUnit)
	assert.Zero(t, item.ROI)
	assert.Zero(t, item.Spread)
}

func TestNormalize_HealthyFlip(t *testing.T) {
	// buy 100, sell 200, deep on both sides.
	n := testNormalizer()

	item := n.Normalize(ItemMeta{ID: 19721, Name: "Glob of Ectoplasm"}, book(100, 10000, 200, 10000))

	assert.InDelta(t, 70.0, item.ProfitPerUnit, 1e-9) // 200*0.85 - 100
	assert.InDelta(t, 70.0, item.ROI, 1e-9)
	assert.False(t, item.IsManipulated) // spread = 1.0, not > 1.5
	assert.Equal(t, FlipRapid, item.FlipTime)
}

func TestNormalize_InstantFlipClass(t *testing.T) {
	n := testNormalizer()

	item := n.Normalize(ItemMeta{ID: 2}, book(100, 25000, 200, 10000))

	assert.Equal(t, FlipInstant, item.FlipTime)
}

func TestNormalize_FlipTimeThresholds(t *testing.T) {
	n := testNormalizer()

	cases := []struct {
		buysQty int64
		want    FlipTime
	}{
		{25000, FlipInstant},
		{6000, FlipRapid},
		{1500, FlipFast},
		{300, FlipSteady},
		{50, FlipSlow},
	}
	for _, tc := range cases {
		item := n.Normalize(ItemMeta{ID: 3}, book(100, tc.buysQty, 130, 1000))
		assert.Equal(t, tc.want, item.FlipTime, "buysQty=%d", tc.buysQty)
	}
}

func TestNormalize_ThinSupplyExpensiveItemIsManipulated(t *testing.T) {
	n := testNormalizer()

	// sellsQty < 5 and buyPrice > 500 must always flag.
	item := n.Normalize(ItemMeta{ID: 4}, book(600, 1000, 700, 3))

	assert.True(t, item.IsManipulated)
}

func TestNormalize_TrapROIIsManipulatedAndDownranked(t *testing.T) {
	n := testNormalizer()

	// buy 50, sell 400, only 10 listings: 600% theoretical ROI, unfillable.
	item := n.Normalize(ItemMeta{ID: 5}, book(50, 5000, 400, 10))

	assert.InDelta(t, 600.0, item.ROI, 1e-9)
	assert.True(t, item.IsManipulated)
	assert.LessOrEqual(t, item.PriorityScore, 10.0)
}

func TestNormalize_LiquidityScoreBoundsAndMonotonicity(t *testing.T) {
	n := testNormalizer()

	prev := -1
	for _, qty := range []int64{0, 1, 10, 100, 1000, 10000, 100000, 10000000} {
		item := n.Normalize(ItemMeta{ID: 6}, book(100, qty, 120, qty))
		assert.GreaterOrEqual(t, item.LiquidityScore, 0)
		assert.LessOrEqual(t, item.LiquidityScore, 100)
		assert.GreaterOrEqual(t, item.LiquidityScore, prev, "qty=%d", qty)
		prev = item.LiquidityScore
	}
}

func TestNormalize_EstimatesAreFlagged(t *testing.T) {
	n := testNormalizer()

	item := n.Normalize(ItemMeta{ID: 7}, book(100, 1000, 120, 1500))

	assert.True(t, item.Estimates.Estimated)
	assert.Equal(t, int64(1500/15+1), item.Estimates.OffersCount)
	assert.Equal(t, int64(1000/10+1), item.Estimates.BidsCount)
	assert.LessOrEqual(t, item.Estimates.Sold24h, item.SellsQty)
	assert.LessOrEqual(t, item.Estimates.Bought24h, item.BuysQty)
}

func TestSetPriorityWeights(t *testing.T) {
	n := testNormalizer()
	before := n.Normalize(ItemMeta{ID: 8}, book(100, 10000, 200, 10000))

	n.SetPriorityWeights(70, 30)
	after := n.Normalize(ItemMeta{ID: 8}, book(100, 10000, 200, 10000))

	// Same ROI, same liquidity; more ROI-weighted score must rank higher here
	// because roiFactor (1.2 capped) exceeds the liquidity factor.
	assert.Greater(t, after.PriorityScore, before.PriorityScore)

	// Non-positive weights are ignored.
	n.SetPriorityWeights(0, -1)
	unchanged := n.Normalize(ItemMeta{ID: 8}, book(100, 10000, 200, 10000))
	assert.Equal(t, after.PriorityScore, unchanged.PriorityScore)
}

func TestFormatCoins(t *testing.T) {
	assert.Equal(t, "12g 34s 56c", FormatCoins(123456))
	assert.Equal(t, "34s 56c", FormatCoins(3456))
	assert.Equal(t, "56c", FormatCoins(56))
	assert.Equal(t, "0c", FormatCoins(0))
	assert.Equal(t, "-10g 0s 1c", FormatCoins(-100001))
}
