package advisor

import (
	"context"
	"fmt"
	"math"

	"gw2-tradepost-bot/internal/market"
)

// Heuristic is the deterministic baseline strategy. It encodes the plain
// trader's rulebook and serves as both the fallback path and the benchmark
// the reliance score measures smarter strategies against.
type Heuristic struct{}

var _ Advisor = (*Heuristic)(nil)

// NewHeuristic returns the baseline advisor.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

func (h *Heuristic) Name() string { return "heuristic" }

// Analyze never returns an error; it is the path of last resort.
func (h *Heuristic) Analyze(_ context.Context, item market.Item) (Recommendation, error) {
	rec := Recommendation{
		Strategy:       h.Name(),
		PredictedTrend: trendFromDepth(item.BuysQty, item.SellsQty),
		Velocity:       string(item.FlipTime),
		FillChanceBuy:  fillChance(item.BuysQty),
		FillChanceSell: fillChance(item.SellsQty),
	}

	switch {
	case item.IsManipulated:
		rec.Recommendation = VerdictAvoid
		rec.RiskLevel = RiskHigh
		rec.Reasoning = "market shows manipulation markers"
	case item.ROI <= 20:
		rec.Recommendation = VerdictAvoid
		rec.RiskLevel = riskFromSupply(item.SellsQty)
		rec.Reasoning = fmt.Sprintf("ROI %.1f%% too thin after fees", item.ROI)
	default:
		rec.Recommendation = VerdictBuy
		rec.RiskLevel = riskFromSupply(item.SellsQty)
		rec.Reasoning = fmt.Sprintf("ROI %.1f%% with liquidity %d", item.ROI, item.LiquidityScore)
		rec.SuggestedQty = suggestedQty(item.BuysQty)
	}

	return rec, nil
}

// trendFromDepth reads order book imbalance as a crude direction signal.
func trendFromDepth(buysQty, sellsQty int64) string {
	switch {
	case buysQty > sellsQty*2:
		return "rising"
	case sellsQty > buysQty*2:
		return "falling"
	default:
		return "stable"
	}
}

func riskFromSupply(sellsQty int64) string {
	switch {
	case sellsQty < 50:
		return RiskHigh
	case sellsQty < 500:
		return RiskMedium
	default:
		return RiskLow
	}
}

// suggestedQty is a conservative 1% of buy-side depth, at least one unit.
func suggestedQty(buysQty int64) int64 {
	qty := int64(math.Floor(float64(buysQty) * 0.01))
	if qty < 1 {
		qty = 1
	}
	return qty
}

// fillChance maps depth to a rough probability, saturating near certainty
// for very deep books.
func fillChance(depth int64) float64 {
	if depth <= 0 {
		return 0.05
	}
	chance := 0.2 + 0.2*math.Log10(float64(depth)+1)
	if chance > 0.95 {
		chance = 0.95
	}
	return chance
}
