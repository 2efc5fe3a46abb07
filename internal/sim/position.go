// Package sim runs the shadow trading simulator: a bounded pool of synthetic
// positions that move through a buy/hold/list/sell pipeline with
// liquidity-weighted timing and realistic fee math, emitting the learning
// signal that tunes the scoring DNA.
package sim

import "time"

// Phase is the lifecycle state of a shadow position. Transitions only move
// forward: PendingBuy -> Bought -> Listed -> Sold.
type Phase string

const (
	PhasePendingBuy Phase = "PENDING_BUY"
	PhaseBought     Phase = "BOUGHT"
	PhaseListed     Phase = "LISTED"
	PhaseSold       Phase = "SOLD"
)

// Position is one synthetic trade in the shadow pool.
type Position struct {
	ID             string    `json:"id"`
	ItemID         int       `json:"item_id"`
	ItemName       string    `json:"item_name"`
	BuyPrice       int64     `json:"buy_price"`
	SellPrice      int64     `json:"sell_price"`
	Quantity       int64     `json:"quantity"`
	EntryAt        time.Time `json:"entry_at"`
	ExpectedExit   time.Time `json:"expected_exit"`
	Phase          Phase     `json:"phase"`
	ROIEstimate    float64   `json:"roi_estimate"`
	LiquidityScore int       `json:"liquidity_score"`

	// Fill/listing mechanics, populated as the position advances.
	ExpectedBuyFill  time.Time `json:"expected_buy_fill,omitempty"`
	BoughtAt         time.Time `json:"bought_at,omitempty"`
	ListedAt         time.Time `json:"listed_at,omitempty"`
	ExpectedSellFill time.Time `json:"expected_sell_fill,omitempty"`
	InitialListPrice int64     `json:"initial_list_price,omitempty"`
	CurrentListPrice int64     `json:"current_list_price,omitempty"`
	RelistCount      int       `json:"relist_count,omitempty"`

	// Settlement outcome, populated when the position reaches PhaseSold.
	SoldAt time.Time `json:"sold_at,omitempty"`
	Profit int64     `json:"profit,omitempty"`
}

// Active reports whether the position still occupies a pool slot.
func (p Position) Active() bool {
	return p.Phase != PhaseSold
}

// Settlement is the fee breakdown of one resolved shadow sale. All values in
// copper. Fees are each rounded up, matching how the trading post charges.
type Settlement struct {
	GrossSales  int64
	ExchangeFee int64
	ListingFee  int64
	RelistFees  int64
	NetRevenue  int64
	Profit      int64
	XP          int
}
