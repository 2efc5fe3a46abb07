package market

import (
	"math"
	"math/rand"
	"time"
)

// Trading post fee structure. These are game constants, not tunables: a 10%
// exchange fee taken on sale plus a 5% listing fee paid up front.
const (
	ExchangeFeeRate = 0.10
	ListingFeeRate  = 0.05

	// TaxRate is the combined flat transaction tax.
	TaxRate = ExchangeFeeRate + ListingFeeRate

	// SellMultiplier is the fraction of the sell price the seller keeps.
	SellMultiplier = 1 - TaxRate
)

// Tuning collects the empirical scoring constants. None of them are hard
// physical laws; the defaults mirror long-observed trading post behavior.
type Tuning struct {
	// Liquidity log weights. Buy-side depth matters somewhat more for flip
	// viability than sell-side depth, hence the asymmetric split.
	BuyDepthLogWeight  float64
	SellDepthLogWeight float64

	// Manipulation thresholds.
	ManipSpreadThreshold float64
	ManipThinSupplyQty   int64

	// Priority score composition.
	ROIPoints       float64
	LiquidityPoints float64
}

// DefaultTuning returns the stock scoring constants.
func DefaultTuning() Tuning {
	return Tuning{
		BuyDepthLogWeight:    15,
		SellDepthLogWeight:   10,
		ManipSpreadThreshold: 1.5,
		ManipThinSupplyQty:   100,
		ROIPoints:            40,
		LiquidityPoints:      60,
	}
}

// Normalizer derives enriched market items from raw metadata and price books.
// It holds no per-item state; the RNG only feeds the synthetic estimate
// fields and is injectable so tests stay deterministic.
type Normalizer struct {
	tuning Tuning
	rng    *rand.Rand
	now    func() time.Time
}

// NewNormalizer creates a normalizer with the given tuning. A nil rng falls
// back to a time-seeded source.
func NewNormalizer(tuning Tuning, rng *rand.Rand) *Normalizer {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Normalizer{tuning: tuning, rng: rng, now: time.Now}
}

// SetPriorityWeights rebalances the priority score composition. The adaptive
// controller calls this after an evolution step so scoring follows the DNA.
func (n *Normalizer) SetPriorityWeights(roiPoints, liquidityPoints float64) {
	if roiPoints <= 0 || liquidityPoints <= 0 {
		return
	}
	n.tuning.ROIPoints = roiPoints
	n.tuning.LiquidityPoints = liquidityPoints
}

// Profit returns the per-unit profit after the flat transaction tax.
// Zero when either price is missing.
func Profit(buyPrice, sellPrice int64) float64 {
	if buyPrice == 0 || sellPrice == 0 {
		return 0
	}
	return float64(sellPrice)*SellMultiplier - float64(buyPrice)
}

// ROI returns the profit as a percentage of the buy price, 0 when the buy
// price is 0 (undefined division guarded).
func ROI(buyPrice int64, profit float64) float64 {
	if buyPrice == 0 {
		return 0
	}
	return profit / float64(buyPrice) * 100
}

// Normalize converts one item's static metadata plus its current price book
// into an enriched Item. Pure apart from the randomized estimate fields.
func (n *Normalizer) Normalize(meta ItemMeta, price PriceBook) Item {
	buyPrice := price.Buys.UnitPrice
	sellPrice := price.Sells.UnitPrice
	buysQty := price.Buys.Quantity
	sellsQty := price.Sells.Quantity

	profit := Profit(buyPrice, sellPrice)
	roi := ROI(buyPrice, profit)

	var spread float64
	if buyPrice > 0 {
		spread = float64(sellPrice-buyPrice) / float64(buyPrice)
	}

	// Extreme theoretical ROI with thin depth on either side is a trap
	// (unfillable or stale listing), not a real opportunity.
	isTrap := roi > 100 && (sellsQty < 20 || buysQty < 100)
	isManipulated := (spread > n.tuning.ManipSpreadThreshold && sellsQty < n.tuning.ManipThinSupplyQty) ||
		(sellsQty < 5 && buyPrice > 500) ||
		isTrap

	liquidity := n.liquidityScore(buysQty, sellsQty)

	roiFactor := math.Min(roi/40, 1.2) // cap ROI contribution
	volFactor := float64(liquidity) / 100
	baseScore := roiFactor*n.tuning.ROIPoints + volFactor*n.tuning.LiquidityPoints

	// Manipulated items are down-ranked nearly to zero rather than excluded,
	// so they remain visible but never surface as top picks.
	priority := math.Round(baseScore)
	if isManipulated {
		priority = math.Min(baseScore*0.1, 10)
	}

	return Item{
		ItemMeta:       meta,
		BuyPrice:       buyPrice,
		SellPrice:      sellPrice,
		BuysQty:        buysQty,
		SellsQty:       sellsQty,
		ProfitPerUnit:  profit,
		ROI:            roi,
		Spread:         spread,
		LiquidityScore: liquidity,
		FlipTime:       classifyFlipTime(buysQty),
		PriorityScore:  priority,
		IsManipulated:  isManipulated,
		Estimates:      n.estimate(buysQty, sellsQty),
		FetchedAt:      n.now(),
	}
}

// liquidityScore rates both-side depth on a 0-100 log scale. Monotonically
// non-decreasing in both quantities.
func (n *Normalizer) liquidityScore(buysQty, sellsQty int64) int {
	raw := math.Log10(float64(buysQty)+1)*n.tuning.BuyDepthLogWeight +
		math.Log10(float64(sellsQty)+1)*n.tuning.SellDepthLogWeight
	score := int(math.Floor(raw))
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

func classifyFlipTime(buysQty int64) FlipTime {
	switch {
	case buysQty > 20000:
		return FlipInstant
	case buysQty > 5000:
		return FlipRapid
	case buysQty > 1000:
		return FlipFast
	case buysQty > 200:
		return FlipSteady
	default:
		return FlipSlow
	}
}

// estimate fabricates approximate 24h velocity numbers from current depth.
// There is no public historical volume feed, so these are deliberately rough
// proportions and are flagged as such.
func (n *Normalizer) estimate(buysQty, sellsQty int64) Estimates {
	return Estimates{
		Sold24h:     int64(math.Floor(float64(sellsQty) * (0.05 + n.rng.Float64()*0.1))),
		Bought24h:   int64(math.Floor(float64(buysQty) * (0.03 + n.rng.Float64()*0.08))),
		OffersCount: sellsQty/15 + 1,
		BidsCount:   buysQty/10 + 1,
		Estimated:   true,
	}
}
