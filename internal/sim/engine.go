package sim

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gw2-tradepost-bot/internal/market"
	"gw2-tradepost-bot/internal/memory"
)

// Invariants for pool hygiene: anything outside these bounds is corrupted or
// unrealistic state and is purged without crediting anything.
const (
	maxSaneROI  = 500
	minSaneBuy  = 10
	winXP       = 20
	lossXP      = 2
	undercutDip = 1 // copper shaved under the live best sell on relist
)

// Config holds the simulation tunables.
type Config struct {
	PoolCapacity   int     // soft target for spawning
	PoolHardCap    int     // absolute pool ceiling, excess trimmed
	CaptureRatio   float64 // share of buy-side depth we pretend to capture
	MinROI         float64
	MaxROI         float64
	MinBuyDepth    int64
	MinSellDepth   int64
	MinLiquidity   int
	UndercutChance float64
}

// DefaultConfig returns the stock simulation tuning.
func DefaultConfig() Config {
	return Config{
		PoolCapacity:   12,
		PoolHardCap:    20,
		CaptureRatio:   0.02,
		MinROI:         15,
		MaxROI:         150,
		MinBuyDepth:    200,
		MinSellDepth:   10,
		MinLiquidity:   40,
		UndercutChance: 0.1,
	}
}

// ScoutBias steers candidate selection toward preferred item categories.
type ScoutBias struct {
	CategoryOrder []string  `json:"category_order"`
	TargetROI     [2]float64 `json:"target_roi"`
}

// DefaultScoutBias returns the stock category preference.
func DefaultScoutBias() ScoutBias {
	return ScoutBias{
		CategoryOrder: []string{"CraftingMaterial", "Consumable", "UpgradeComponent"},
		TargetROI:     [2]float64{15, 60},
	}
}

// TickResult aggregates the learning signal of one simulation tick.
type TickResult struct {
	XP        int
	Profit    int64
	Trades    int
	Purged    int
	Spawned   int
	Completed []Position
}

// Engine advances the shadow pool. It holds no pool state itself; the caller
// owns the pool slice and passes it through each tick, which keeps the
// engine trivially testable and the state serialization in one place.
type Engine struct {
	cfg    Config
	bias   ScoutBias
	est    *Estimator
	rng    *rand.Rand
	now    func() time.Time
	logger *zap.Logger
}

// NewEngine creates a simulation engine. A nil rng falls back to a
// time-seeded source; tests inject a fixed seed and a fake clock.
func NewEngine(cfg Config, bias ScoutBias, rng *rand.Rand, logger *zap.Logger) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{
		cfg:    cfg,
		bias:   bias,
		est:    NewEstimator(rng),
		rng:    rng,
		now:    time.Now,
		logger: logger,
	}
}

// SetBias replaces the category bias, e.g. after loading persisted state.
func (e *Engine) SetBias(bias ScoutBias) {
	e.bias = bias
}

// Tick runs one simulation pass: purge corrupted positions, advance every
// live one against the current market snapshot, retire completed trades, and
// spawn replacements while capacity remains. The returned pool never exceeds
// the hard cap.
func (e *Engine) Tick(pool []Position, items map[int]market.Item, bank *memory.Bank) ([]Position, TickResult) {
	var res TickResult
	now := e.now()

	ongoing := make([]Position, 0, len(pool))
	for _, pos := range pool {
		// Corrupted/unrealistic state is dropped, not settled.
		if pos.ROIEstimate > maxSaneROI || pos.BuyPrice < minSaneBuy {
			res.Purged++
			e.logger.Debug("Purged unrealistic shadow position",
				zap.String("id", pos.ID),
				zap.Float64("roi_estimate", pos.ROIEstimate),
				zap.Int64("buy_price", pos.BuyPrice),
			)
			continue
		}

		item, ok := items[pos.ItemID]
		if !ok {
			// No market data this cycle: stalled, carry unchanged.
			ongoing = append(ongoing, pos)
			continue
		}

		pos = e.step(pos, item, bank, now)

		if pos.Phase == PhaseSold {
			res.XP += settlementXP(pos.Profit)
			res.Profit += pos.Profit
			res.Trades++
			res.Completed = append(res.Completed, pos)

			durationHours := pos.SoldAt.Sub(pos.EntryAt).Hours()
			if durationHours <= 0 {
				durationHours = 0.1
			}
			bank.Observe(memory.Key(memory.ScopeSim, pos.ItemID), float64(pos.Profit), durationHours)

			e.logger.Info("Shadow flip settled",
				zap.String("item", pos.ItemName),
				zap.String("profit", market.FormatCoins(pos.Profit)),
				zap.Int("relists", pos.RelistCount),
			)
			continue // retired, not re-entered
		}

		ongoing = append(ongoing, pos)
	}

	if len(ongoing) < e.cfg.PoolCapacity {
		spawned := e.spawn(ongoing, items, now)
		res.Spawned = len(spawned) - len(ongoing)
		ongoing = spawned
	}

	if len(ongoing) > e.cfg.PoolHardCap {
		ongoing = ongoing[:e.cfg.PoolHardCap]
	}

	return ongoing, res
}

// step advances a single position one transition at most. Exhaustive over
// phases; Sold positions never reach here because they are retired on the
// tick that settles them.
func (e *Engine) step(pos Position, item market.Item, bank *memory.Bank, now time.Time) Position {
	switch pos.Phase {
	case PhasePendingBuy:
		if pos.ExpectedBuyFill.IsZero() {
			hist := histFor(bank, pos.ItemID)
			pos.ExpectedBuyFill = now.Add(e.est.BuyFillWait(item.BuysQty, hist))
			return pos
		}
		if !now.Before(pos.ExpectedBuyFill) {
			pos.Phase = PhaseBought
			pos.BoughtAt = now
			// Realistic fill: we had to outbid the current best buy by 1c.
			if item.BuyPrice > 0 {
				pos.BuyPrice = item.BuyPrice + 1
			}
		}
		return pos

	case PhaseBought:
		// Transit between pickup and relisting, up to a minute.
		if now.Sub(pos.BoughtAt) > e.est.TransitWait() {
			pos.Phase = PhaseListed
			pos.ListedAt = now
			if item.SellPrice > 0 {
				pos.InitialListPrice = item.SellPrice - 1
			} else {
				// No competing listing to undercut: take a 20% markup.
				pos.InitialListPrice = int64(math.Ceil(float64(pos.BuyPrice) * 1.2))
			}
			pos.CurrentListPrice = pos.InitialListPrice

			hist := histFor(bank, pos.ItemID)
			pos.ExpectedSellFill = now.Add(e.est.SellFillWait(item.SellsQty, hist))
			pos.ExpectedExit = pos.ExpectedSellFill
		}
		return pos

	case PhaseListed:
		// Undercut check: occasionally someone lists below us, we relist
		// under them (fees!) and our fill slips.
		if e.rng.Float64() < e.cfg.UndercutChance {
			if item.SellPrice > 0 && item.SellPrice < pos.CurrentListPrice {
				pos.CurrentListPrice = item.SellPrice - undercutDip
				pos.RelistCount++
				pos.ExpectedSellFill = pos.ExpectedSellFill.Add(time.Minute)
				pos.ExpectedExit = pos.ExpectedSellFill
			}
		}

		if !now.Before(pos.ExpectedSellFill) {
			s := Settle(pos.CurrentListPrice, pos.InitialListPrice, pos.Quantity, pos.RelistCount, pos.BuyPrice)
			pos.Phase = PhaseSold
			pos.SoldAt = now
			pos.Profit = s.Profit
		}
		return pos

	default:
		return pos
	}
}

// Settle computes the final settlement for a sold listing: the exchange fee
// on gross sales, the listing fee on the original listing value, and the
// listing fee again for every relist, each rounded up.
func Settle(currentList, initialList, qty int64, relistCount int, buyPrice int64) Settlement {
	gross := currentList * qty
	exchangeFee := ceilFee(gross, market.ExchangeFeeRate)
	listingFee := ceilFee(initialList*qty, market.ListingFeeRate)
	relistFees := int64(relistCount) * ceilFee(currentList*qty, market.ListingFeeRate)

	net := gross - (exchangeFee + listingFee + relistFees)
	profit := net - buyPrice*qty

	return Settlement{
		GrossSales:  gross,
		ExchangeFee: exchangeFee,
		ListingFee:  listingFee,
		RelistFees:  relistFees,
		NetRevenue:  net,
		Profit:      profit,
		XP:          settlementXP(profit),
	}
}

func settlementXP(profit int64) int {
	if profit > 0 {
		return winXP
	}
	return lossXP
}

func ceilFee(amount int64, rate float64) int64 {
	return int64(math.Ceil(float64(amount) * rate))
}

// spawn fills remaining capacity from qualifying market candidates, best
// weighted score first. Quantity captured is capped at a small share of
// buy-side depth: nobody absorbs a whole market.
func (e *Engine) spawn(pool []Position, items map[int]market.Item, now time.Time) []Position {
	tracked := make(map[int]bool, len(pool))
	for _, pos := range pool {
		tracked[pos.ItemID] = true
	}

	candidates := make([]market.Item, 0, len(items))
	for _, item := range items {
		if tracked[item.ID] || !e.qualifies(item) {
			continue
		}
		candidates = append(candidates, item)
	}

	// Weighted score: ROI dominates, liquidity breaks the tie.
	sort.Slice(candidates, func(i, j int) bool {
		return spawnScore(candidates[i]) > spawnScore(candidates[j])
	})

	for _, item := range candidates {
		if len(pool) >= e.cfg.PoolCapacity {
			break
		}

		qty := int64(math.Floor(float64(item.BuysQty) * e.cfg.CaptureRatio))
		if qty < 1 {
			qty = 1
		}

		pool = append(pool, Position{
			ID:             uuid.NewString(),
			ItemID:         item.ID,
			ItemName:       item.Name,
			BuyPrice:       item.BuyPrice,
			SellPrice:      item.SellPrice,
			Quantity:       qty,
			EntryAt:        now,
			ExpectedExit:   now.Add(e.est.holdEstimate(item.BuysQty)),
			Phase:          PhasePendingBuy,
			ROIEstimate:    item.ROI,
			LiquidityScore: item.LiquidityScore,
		})
		tracked[item.ID] = true
	}

	return pool
}

func (e *Engine) qualifies(item market.Item) bool {
	if item.IsManipulated {
		return false
	}
	hasDemand := item.BuysQty > e.cfg.MinBuyDepth
	hasSupply := item.SellsQty > e.cfg.MinSellDepth
	isLiquid := item.LiquidityScore > e.cfg.MinLiquidity
	isHealthy := item.ROI > e.cfg.MinROI && item.ROI < e.cfg.MaxROI
	preferred := e.preferredCategory(item.Type) || e.inTargetROI(item.ROI)

	return hasDemand && hasSupply && isLiquid && isHealthy && preferred
}

// inTargetROI reports whether the ROI sits inside the scout's target band.
// Items outside the preferred categories are only entered on such flips.
func (e *Engine) inTargetROI(roi float64) bool {
	lo, hi := e.bias.TargetROI[0], e.bias.TargetROI[1]
	if hi <= lo {
		return false
	}
	return roi >= lo && roi <= hi
}

func (e *Engine) preferredCategory(itemType string) bool {
	for _, cat := range e.bias.CategoryOrder {
		if cat == itemType {
			return true
		}
	}
	return false
}

func spawnScore(item market.Item) float64 {
	return item.ROI*1.5 + float64(item.LiquidityScore)
}

func histFor(bank *memory.Bank, itemID int) *memory.Entry {
	if entry, ok := bank.Known(itemID); ok {
		return &entry
	}
	return nil
}
