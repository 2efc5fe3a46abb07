// Package positions tracks the user's declared real trades and advances them
// through their lifecycle as live order and transaction history data arrives.
package positions

import (
	"errors"
	"time"
)

// ErrAlreadyTracked is returned when a position is declared for an item that
// already has a non-completed position.
var ErrAlreadyTracked = errors.New("positions: item already has an open position")

// Status is the lifecycle state of a position.
type Status string

const (
	StatusPlanning  Status = "planning"
	StatusActive    Status = "active"
	StatusHolding   Status = "holding"
	StatusPartial   Status = "partial"
	StatusCompleted Status = "completed"
)

// Side says whether the position is currently on the buy or sell leg of the
// flip.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Position is one user-declared real trade. At most one non-completed
// position exists per item at any time.
type Position struct {
	ItemID           int       `json:"item_id"`
	ItemName         string    `json:"item_name"`
	Side             Side      `json:"side"`
	Status           Status    `json:"status"`
	Quantity         int64     `json:"quantity"`
	OriginalQuantity int64     `json:"original_quantity"`
	BuyPrice         int64     `json:"buy_price"`
	SellPrice        int64     `json:"sell_price,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	SellTimestamp    time.Time `json:"sell_timestamp,omitempty"`
	RealizedProfit   float64   `json:"realized_profit,omitempty"`
}

// Open reports whether the position is still in flight.
func (p Position) Open() bool {
	return p.Status != StatusCompleted
}

// Book is the collection of tracked positions. Not safe for concurrent use;
// the scout engine serializes access behind its state mutex.
type Book struct {
	positions []Position
}

// NewBook returns an empty position book.
func NewBook() *Book {
	return &Book{}
}

// Add declares a new position. Declarations for an already-tracked,
// still-open item are rejected, which makes Add idempotent per item.
func (b *Book) Add(p Position) error {
	for _, existing := range b.positions {
		if existing.ItemID == p.ItemID && existing.Open() {
			return ErrAlreadyTracked
		}
	}
	if p.OriginalQuantity == 0 {
		p.OriginalQuantity = p.Quantity
	}
	b.positions = append([]Position{p}, b.positions...)
	return nil
}

// Remove drops all positions for an item. Positions are never deleted
// automatically, only by this explicit user action or a full reset.
func (b *Book) Remove(itemID int) {
	kept := b.positions[:0]
	for _, p := range b.positions {
		if p.ItemID != itemID {
			kept = append(kept, p)
		}
	}
	b.positions = kept
}

// All returns a copy of every tracked position.
func (b *Book) All() []Position {
	out := make([]Position, len(b.positions))
	copy(out, b.positions)
	return out
}

// ItemIDs returns the ids of all tracked items, open or completed.
func (b *Book) ItemIDs() []int {
	ids := make([]int, 0, len(b.positions))
	for _, p := range b.positions {
		ids = append(ids, p.ItemID)
	}
	return ids
}

// Replace swaps the book contents, used when loading persisted state and
// after reconciliation.
func (b *Book) Replace(positions []Position) {
	b.positions = make([]Position, len(positions))
	copy(b.positions, positions)
}

// Len returns the number of tracked positions.
func (b *Book) Len() int {
	return len(b.positions)
}
