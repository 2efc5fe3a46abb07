package positions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gw2-tradepost-bot/internal/gw2"
	"gw2-tradepost-bot/internal/memory"
)

var t0 = time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC)

func openBuy(itemID int, buyPrice int64) Position {
	return Position{
		ItemID:    itemID,
		Side:      SideBuy,
		Status:    StatusActive,
		Quantity:  100,
		BuyPrice:  buyPrice,
		CreatedAt: t0,
	}
}

func TestBookAddRejectsSecondOpenPosition(t *testing.T) {
	b := NewBook()

	assert.NoError(t, b.Add(openBuy(1, 100)))
	assert.ErrorIs(t, b.Add(openBuy(1, 120)), ErrAlreadyTracked)
	assert.Equal(t, 1, b.Len())

	// A completed position does not block a new declaration.
	done := openBuy(2, 100)
	done.Status = StatusCompleted
	assert.NoError(t, b.Add(done))
	assert.NoError(t, b.Add(openBuy(2, 110)))
}

func TestReconcile_LiveSellListingWinsOverHistory(t *testing.T) {
	// Prior state doesn't matter: a live sell listing always reports
	// status=active, side=sell.
	pos := openBuy(1, 100)
	pos.Side = SideBuy
	pos.Status = StatusHolding

	liveSell := gw2.Transaction{ID: 9, ItemID: 1, Price: 250, Quantity: 40, Created: t0.Add(time.Hour)}
	// A matching historical sell exists too; the live listing must win.
	histSell := gw2.Transaction{ID: 8, ItemID: 1, Price: 240, Quantity: 40, Purchased: t0.Add(30 * time.Minute)}

	updated, completed := Reconcile(
		[]Position{pos},
		nil, []gw2.Transaction{liveSell},
		nil, []gw2.Transaction{histSell},
		memory.NewBank(),
	)

	assert.Zero(t, completed)
	assert.Equal(t, StatusActive, updated[0].Status)
	assert.Equal(t, SideSell, updated[0].Side)
	assert.Equal(t, int64(250), updated[0].SellPrice)
	assert.Equal(t, int64(40), updated[0].Quantity)
}

func TestReconcile_LiveBuyOrderSyncsAndPreservesOriginalQuantity(t *testing.T) {
	pos := openBuy(1, 100)
	pos.OriginalQuantity = 100

	// Partial fill: 60 units still on order.
	liveBuy := gw2.Transaction{ID: 3, ItemID: 1, Price: 105, Quantity: 60, Created: t0}

	updated, _ := Reconcile([]Position{pos}, []gw2.Transaction{liveBuy}, nil, nil, nil, memory.NewBank())

	assert.Equal(t, StatusActive, updated[0].Status)
	assert.Equal(t, SideBuy, updated[0].Side)
	assert.Equal(t, int64(105), updated[0].BuyPrice)
	assert.Equal(t, int64(60), updated[0].Quantity)
	assert.Equal(t, int64(100), updated[0].OriginalQuantity)
}

func TestReconcile_VanishedBuyOrderBecomesHolding(t *testing.T) {
	pos := openBuy(1, 100)

	fill := gw2.Transaction{ID: 4, ItemID: 1, Price: 102, Quantity: 100, Purchased: t0.Add(2 * time.Hour)}

	updated, completed := Reconcile([]Position{pos}, nil, nil, []gw2.Transaction{fill}, nil, memory.NewBank())

	assert.Zero(t, completed)
	assert.Equal(t, SideSell, updated[0].Side)
	assert.Equal(t, StatusHolding, updated[0].Status)
	assert.Equal(t, int64(102), updated[0].BuyPrice, "historical fill price becomes the new basis")
}

func TestReconcile_HistoricalBuyBeforeCreationIsIgnored(t *testing.T) {
	pos := openBuy(1, 100)

	stale := gw2.Transaction{ID: 2, ItemID: 1, Price: 90, Quantity: 100, Purchased: t0.Add(-time.Hour)}

	updated, _ := Reconcile([]Position{pos}, nil, nil, []gw2.Transaction{stale}, nil, memory.NewBank())

	assert.Equal(t, pos, updated[0], "position must be left untouched")
}

func TestReconcile_CompletedSellRecordsProfitAndMemory(t *testing.T) {
	pos := Position{
		ItemID:    1,
		Side:      SideSell,
		Status:    StatusActive,
		Quantity:  50,
		BuyPrice:  100,
		CreatedAt: t0,
	}

	fill := gw2.Transaction{ID: 5, ItemID: 1, Price: 200, Quantity: 50, Purchased: t0.Add(4 * time.Hour)}
	bank := memory.NewBank()

	updated, completed := Reconcile([]Position{pos}, nil, nil, nil, []gw2.Transaction{fill}, bank)

	assert.Equal(t, 1, completed)
	got := updated[0]
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, int64(200), got.SellPrice)
	assert.Equal(t, fill.Purchased, got.SellTimestamp)
	// per-unit 200*0.85-100 = 70, for 50 units
	assert.InDelta(t, 3500.0, got.RealizedProfit, 1e-9)

	entry, ok := bank.Lookup(memory.ScopeReal, 1)
	assert.True(t, ok)
	assert.Equal(t, 1, entry.Wins)
	assert.InDelta(t, 35.0, entry.Value, 1e-9) // EMA from zero: 70/2
	assert.InDelta(t, 4.0, entry.AvgDuration, 1e-9)
}

func TestReconcile_CompletedPositionsAreSkipped(t *testing.T) {
	pos := openBuy(1, 100)
	pos.Status = StatusCompleted

	liveSell := gw2.Transaction{ID: 9, ItemID: 1, Price: 250, Quantity: 40, Created: t0}

	updated, completed := Reconcile([]Position{pos}, nil, []gw2.Transaction{liveSell}, nil, nil, memory.NewBank())

	assert.Zero(t, completed)
	assert.Equal(t, pos, updated[0])
}
