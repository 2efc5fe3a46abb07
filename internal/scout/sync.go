package scout

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"gw2-tradepost-bot/internal/advisor"
	"gw2-tradepost-bot/internal/gw2"
	"gw2-tradepost-bot/internal/market"
	"gw2-tradepost-bot/internal/memory"
	"gw2-tradepost-bot/internal/positions"
)

// XP for bootstrap-inferred flips, discounted against live reconciliation.
const (
	bootstrapWinXP  = 10
	bootstrapLossXP = 2

	realWinXP  = 20
	realLossXP = 2

	relianceDelta = 10
)

// syncPositions reconciles tracked positions against the account's live
// orders and fill history, announces new fills, and feeds completed trades
// into the learning loop.
func (e *Engine) syncPositions(ctx context.Context) error {
	currentBuys, err := e.client.GetTransactions(ctx, gw2.KindBuys, gw2.StateCurrent)
	if err != nil {
		return e.handleSyncError(err)
	}
	currentSells, err := e.client.GetTransactions(ctx, gw2.KindSells, gw2.StateCurrent)
	if err != nil {
		return e.handleSyncError(err)
	}
	historyBuys, err := e.client.GetTransactions(ctx, gw2.KindBuys, gw2.StateHistory)
	if err != nil {
		return e.handleSyncError(err)
	}
	historySells, err := e.client.GetTransactions(ctx, gw2.KindSells, gw2.StateHistory)
	if err != nil {
		return e.handleSyncError(err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.announceFillsLocked(historyBuys, historySells)

	before := e.book.All()
	updated, completed := positions.Reconcile(before, currentBuys, currentSells, historyBuys, historySells, e.bank)
	e.book.Replace(updated)

	if completed > 0 {
		e.logger.Info("Real flips completed", zap.Int("count", completed))
		for i, pos := range updated {
			if pos.Status != positions.StatusCompleted || before[i].Status == positions.StatusCompleted {
				continue
			}
			if pos.RealizedProfit > 0 {
				e.progress.AddRealXP(realWinXP)
			} else {
				e.progress.AddRealXP(realLossXP)
			}
			e.activity.add("Flip completed: %s, profit %s",
				pos.ItemName, market.FormatCoins(int64(pos.RealizedProfit)))
			e.scoreAdvisorLocked(ctx, pos)
		}
		e.maybeEvolveLocked()
	}

	e.persistLocked()
	return nil
}

// handleSyncError keeps credential failures loud and everything else soft.
func (e *Engine) handleSyncError(err error) error {
	if errors.Is(err, gw2.ErrUnauthorized) {
		e.logger.Error("Access token rejected; position sync disabled until restart", zap.Error(err))
	}
	return err
}

// announceFillsLocked logs history entries past the stored high-water marks
// so each fill is announced exactly once across restarts. The API returns
// newest entries first, so the marks only advance after the whole batch has
// been walked; advancing mid-batch would skip older unseen fills.
func (e *Engine) announceFillsLocked(historyBuys, historySells []gw2.Transaction) {
	maxBuyID := e.lastBuyID
	for _, tx := range historyBuys {
		if tx.ID <= e.lastBuyID {
			continue
		}
		if tx.ID > maxBuyID {
			maxBuyID = tx.ID
		}
		e.logger.Info("Buy order filled",
			zap.Int("item_id", tx.ItemID),
			zap.String("price", market.FormatCoins(tx.Price)),
			zap.Int64("quantity", tx.Quantity),
		)
		e.activity.add("Bought: item %d x%d at %s", tx.ItemID, tx.Quantity, market.FormatCoins(tx.Price))
	}
	e.lastBuyID = maxBuyID

	maxSellID := e.lastSellID
	for _, tx := range historySells {
		if tx.ID <= e.lastSellID {
			continue
		}
		if tx.ID > maxSellID {
			maxSellID = tx.ID
		}
		e.logger.Info("Sell listing filled",
			zap.Int("item_id", tx.ItemID),
			zap.String("price", market.FormatCoins(tx.Price)),
			zap.Int64("quantity", tx.Quantity),
		)
		e.activity.add("Sold: item %d x%d at %s", tx.ItemID, tx.Quantity, market.FormatCoins(tx.Price))
	}
	e.lastSellID = maxSellID
}

// scoreAdvisorLocked grades the advisor against the plain heuristic on a
// completed flip. The reliance score only moves when the two disagreed;
// matching verdicts carry no signal about which one to trust.
func (e *Engine) scoreAdvisorLocked(ctx context.Context, pos positions.Position) {
	item, ok := e.items[pos.ItemID]
	if !ok {
		return
	}

	advisorRec, err := e.advisor.Analyze(ctx, item)
	if err != nil {
		return
	}
	heuristicRec, _ := advisor.NewHeuristic().Analyze(ctx, item)
	if advisorRec.Recommendation == heuristicRec.Recommendation {
		return
	}

	profitable := pos.RealizedProfit > 0
	advisorCorrect := (advisorRec.Recommendation == advisor.VerdictBuy) == profitable
	e.reliance.Evaluate(advisorCorrect, relianceDelta)

	e.logger.Debug("Reliance updated",
		zap.Bool("advisor_correct", advisorCorrect),
		zap.Float64("score", e.reliance.Score),
		zap.String("strategy", string(e.reliance.Strategy)),
	)
}

// bootstrapFromHistory seeds the real-scope memory from the account's
// existing fill history on a cold start, matching each historical buy to the
// next later sell of the same item. Inferred flips earn discounted XP.
func (e *Engine) bootstrapFromHistory(ctx context.Context) error {
	historyBuys, err := e.client.GetTransactions(ctx, gw2.KindBuys, gw2.StateHistory)
	if err != nil {
		return err
	}
	historySells, err := e.client.GetTransactions(ctx, gw2.KindSells, gw2.StateHistory)
	if err != nil {
		return err
	}
	if len(historyBuys) == 0 {
		e.logger.Info("No trade history to bootstrap from")
		return nil
	}

	limit := e.cfg.Scout.HistoryBootstrapLimit
	if limit > 0 && len(historyBuys) > limit {
		historyBuys = historyBuys[:limit]
	}

	// Sells sorted by fill time so each buy matches its earliest later sell.
	sort.Slice(historySells, func(i, j int) bool {
		return historySells[i].FilledAt().Before(historySells[j].FilledAt())
	})

	e.mu.Lock()
	defer e.mu.Unlock()

	usedSells := make(map[int64]bool)
	flips := 0
	for _, buy := range historyBuys {
		sell, ok := matchSell(historySells, usedSells, buy)
		if !ok {
			continue
		}
		usedSells[sell.ID] = true

		perUnit := float64(sell.Price)*market.SellMultiplier - float64(buy.Price)
		durationHours := sell.FilledAt().Sub(buy.FilledAt()).Hours()
		if durationHours <= 0 {
			durationHours = 1
		}
		e.bank.Observe(memory.Key(memory.ScopeReal, buy.ItemID), perUnit, durationHours)

		if perUnit > 0 {
			e.progress.AddRealXP(bootstrapWinXP)
		} else {
			e.progress.AddRealXP(bootstrapLossXP)
		}
		flips++
	}

	// High-water marks advance past everything already seen so the bootstrap
	// is never re-announced as fresh fills.
	for _, tx := range historyBuys {
		if tx.ID > e.lastBuyID {
			e.lastBuyID = tx.ID
		}
	}
	for _, tx := range historySells {
		if tx.ID > e.lastSellID {
			e.lastSellID = tx.ID
		}
	}

	e.logger.Info("Bootstrapped from trade history",
		zap.Int("inferred_flips", flips),
		zap.Int("memory_entries", e.bank.Len()),
		zap.Int("level", e.progress.Level),
	)
	e.activity.add("Learned from %d historical flips", flips)

	e.persistLocked()
	return nil
}

// matchSell finds the earliest unused sell of the same item filled after the
// buy.
func matchSell(sells []gw2.Transaction, used map[int64]bool, buy gw2.Transaction) (gw2.Transaction, bool) {
	for _, sell := range sells {
		if used[sell.ID] || sell.ItemID != buy.ItemID {
			continue
		}
		if sell.FilledAt().After(buy.FilledAt()) {
			return sell, true
		}
	}
	return gw2.Transaction{}, false
}
