package market

import "time"

// Depth is one side of the order book at the best price.
type Depth struct {
	UnitPrice int64 `json:"unit_price"`
	Quantity  int64 `json:"quantity"`
}

// PriceBook is the raw price entry returned by the commerce API for one item.
type PriceBook struct {
	ID          int   `json:"id"`
	Whitelisted bool  `json:"whitelisted"`
	Buys        Depth `json:"buys"`
	Sells       Depth `json:"sells"`
}

// ItemMeta is the static item metadata. It never changes, so clients may
// cache it indefinitely.
type ItemMeta struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Rarity string `json:"rarity"`
	Icon   string `json:"icon,omitempty"`
	Level  int    `json:"level,omitempty"`
}

// FlipTime classifies how quickly an item is expected to flip, based on
// buy-side depth.
type FlipTime string

const (
	FlipInstant FlipTime = "Instant"
	FlipRapid   FlipTime = "Rapid"
	FlipFast    FlipTime = "Fast"
	FlipSteady  FlipTime = "Steady"
	FlipSlow    FlipTime = "Slow"
)

// Estimates carries synthetic side-channel metrics. These are randomized
// proportions of current depth, NOT measured 24h data; they exist for display
// continuity only and must never be confused with real telemetry.
type Estimates struct {
	Sold24h     int64 `json:"sold_24h"`
	Bought24h   int64 `json:"bought_24h"`
	OffersCount int64 `json:"offers_count"`
	BidsCount   int64 `json:"bids_count"`
	// Estimated is always true; it tags the provenance of every field above.
	Estimated bool `json:"estimated"`
}

// Item is the enriched market record derived from one coherent fetch of
// metadata plus prices. It is recomputed fresh on every scan and always
// replaced whole, never mutated in place.
type Item struct {
	ItemMeta

	BuyPrice  int64 `json:"buy_price"`
	SellPrice int64 `json:"sell_price"`
	BuysQty   int64 `json:"buys_qty"`
	SellsQty  int64 `json:"sells_qty"`

	ProfitPerUnit  float64  `json:"profit_per_unit"`
	ROI            float64  `json:"roi"`
	Spread         float64  `json:"spread"`
	LiquidityScore int      `json:"liquidity_score"`
	FlipTime       FlipTime `json:"flip_time"`
	PriorityScore  float64  `json:"priority_score"`
	IsManipulated  bool     `json:"is_manipulated"`

	Estimates Estimates `json:"estimates"`
	FetchedAt time.Time `json:"fetched_at"`
}
