// Package store persists the scout's whole state to SQLite through GORM:
// tracked positions, the shadow pool, condensed memory, the latest market
// snapshot, and the single-row adaptive state. It also handles versioned
// JSON export/import for moving state between installs.
package store

import (
	"time"

	"gorm.io/gorm"
)

// PositionRecord is one tracked real position.
type PositionRecord struct {
	gorm.Model
	ItemID           int    `gorm:"index"`
	ItemName         string
	Side             string
	Status           string `gorm:"index"`
	Quantity         int64
	OriginalQuantity int64
	BuyPrice         int64
	SellPrice        int64
	DeclaredAt       time.Time
	SellTimestamp    time.Time
	RealizedProfit   float64
}

// ShadowPositionRecord is one shadow-pool position, serialized flat so the
// pool survives restarts mid-flip.
type ShadowPositionRecord struct {
	gorm.Model
	ShadowID         string `gorm:"uniqueIndex"`
	ItemID           int    `gorm:"index"`
	ItemName         string
	Phase            string
	BuyPrice         int64
	SellPrice        int64
	Quantity         int64
	EntryAt          time.Time
	ExpectedExit     time.Time
	ROIEstimate      float64
	LiquidityScore   int
	ExpectedBuyFill  time.Time
	BoughtAt         time.Time
	ListedAt         time.Time
	ExpectedSellFill time.Time
	InitialListPrice int64
	CurrentListPrice int64
	RelistCount      int
}

// MemoryRecord is one condensed memory entry, keyed by "scope:itemID".
type MemoryRecord struct {
	gorm.Model
	Key         string `gorm:"uniqueIndex"`
	Wins        int
	Value       float64
	AvgDuration float64
}

// ItemRecord caches the latest normalized snapshot per item for display and
// warm restarts. Raw depth and derived scores only; estimates are rebuilt.
type ItemRecord struct {
	gorm.Model
	ItemID         int `gorm:"uniqueIndex"`
	Name           string
	Type           string
	Rarity         string
	BuyPrice       int64
	SellPrice      int64
	BuysQty        int64
	SellsQty       int64
	ROI            float64
	LiquidityScore int
	PriorityScore  float64
	IsManipulated  bool
	Pinned         bool `gorm:"index"`
	FetchedAt      time.Time
}

// AdaptiveRecord is the single-row adaptive state: DNA, reliance, progress,
// scout bias, and the notification high-water marks, stored as JSON blobs
// where the shape evolves.
type AdaptiveRecord struct {
	gorm.Model
	DNA                 string // JSON adaptive.DNA
	Reliance            string // JSON adaptive.Reliance
	Progress            string // JSON adaptive.Progress
	Bias                string // JSON sim.ScoutBias
	LastProcessedBuyID  int64
	LastProcessedSellID int64
}
