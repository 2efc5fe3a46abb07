package positions

import (
	"gw2-tradepost-bot/internal/gw2"
	"gw2-tradepost-bot/internal/market"
	"gw2-tradepost-bot/internal/memory"
)

// Reconcile advances each open position against freshly fetched live orders
// and historical fills. It is a pure state-transition pass: positions it
// cannot match in any branch are left untouched (still pending/unconfirmed).
//
// A live order or listing always takes precedence over historical inference;
// current state wins over stale history. Completed positions blend their
// outcome into the real-scope memory. The returned count of newly completed
// positions tells the caller whether to trigger an adaptive evolution step.
func Reconcile(
	book []Position,
	currentBuys, currentSells []gw2.Transaction,
	historyBuys, historySells []gw2.Transaction,
	bank *memory.Bank,
) (updated []Position, completed int) {
	liveSells := byItem(currentSells)
	liveBuys := byItem(currentBuys)

	updated = make([]Position, len(book))
	for i, pos := range book {
		updated[i] = pos
		if !pos.Open() {
			continue
		}

		// 1. A live sell listing covers both new listings and partial fills.
		if tx, ok := liveSells[pos.ItemID]; ok {
			pos.Status = StatusActive
			pos.Side = SideSell
			pos.SellPrice = tx.Price
			pos.Quantity = tx.Quantity
			updated[i] = pos
			continue
		}

		// 2. A live buy order: sync price/quantity, preserve the original
		// quantity across partial fills.
		if tx, ok := liveBuys[pos.ItemID]; ok {
			pos.Status = StatusActive
			pos.Side = SideBuy
			pos.BuyPrice = tx.Price
			pos.Quantity = tx.Quantity
			if pos.OriginalQuantity == 0 {
				pos.OriginalQuantity = tx.Quantity
			}
			updated[i] = pos
			continue
		}

		// 3. Buy order vanished with no sell listing: if history shows the
		// buy filled after the position was created, the item was acquired
		// and is waiting to be listed.
		if pos.Side == SideBuy && pos.Status == StatusActive {
			if tx, ok := firstAfter(historyBuys, pos.ItemID, pos); ok {
				pos.Side = SideSell
				pos.Status = StatusHolding
				pos.BuyPrice = tx.Price
				pos.Quantity = tx.Quantity
				updated[i] = pos
			}
			continue
		}

		// 4. Sell listing vanished: if history shows the sale filled after
		// creation, the flip is done. Record realized profit and learn.
		if pos.Side == SideSell && pos.Status == StatusActive {
			tx, ok := firstAfter(historySells, pos.ItemID, pos)
			if !ok {
				continue
			}

			perUnit := float64(tx.Price)*market.SellMultiplier - float64(pos.BuyPrice)
			durationHours := tx.FilledAt().Sub(pos.CreatedAt).Hours()
			if durationHours <= 0 {
				durationHours = 1
			}
			bank.Observe(memory.Key(memory.ScopeReal, pos.ItemID), perUnit, durationHours)

			pos.Status = StatusCompleted
			pos.SellPrice = tx.Price
			pos.SellTimestamp = tx.FilledAt()
			pos.RealizedProfit = perUnit * float64(tx.Quantity)
			updated[i] = pos
			completed++
			continue
		}

		// 5. No match in any branch: leave untouched.
	}

	return updated, completed
}

func byItem(txs []gw2.Transaction) map[int]gw2.Transaction {
	out := make(map[int]gw2.Transaction, len(txs))
	for _, tx := range txs {
		if _, seen := out[tx.ItemID]; !seen {
			out[tx.ItemID] = tx
		}
	}
	return out
}

// firstAfter finds the first historical transaction for the item filled
// strictly after the position was created.
func firstAfter(history []gw2.Transaction, itemID int, pos Position) (gw2.Transaction, bool) {
	for _, tx := range history {
		if tx.ItemID == itemID && tx.FilledAt().After(pos.CreatedAt) {
			return tx, true
		}
	}
	return gw2.Transaction{}, false
}
