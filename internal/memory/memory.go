// Package memory holds the condensed per-item trading memory that calibrates
// the simulation and drives the adaptive controller. Entries blend new
// observations with an exponential moving average (alpha = 0.5) and grow
// unbounded by item; only an explicit clear resets them.
package memory

import "fmt"

// Alpha is the EMA decay factor used when blending a new observation into an
// existing entry. 0.5 keeps half of the prior value per observation.
const Alpha = 0.5

// Scopes namespace memory keys so real and simulated outcomes never mix.
const (
	ScopeReal = "real"
	ScopeSim  = "sim"
)

// Key builds the namespaced memory key for an item, e.g. "real:19721".
func Key(scope string, itemID int) string {
	return fmt.Sprintf("%s:%d", scope, itemID)
}

// Entry aggregates outcomes for one item within one scope.
type Entry struct {
	Wins int `json:"wins"`
	// Value is the EMA of realized profit in copper.
	Value float64 `json:"value"`
	// AvgDuration is the EMA of hold time in hours.
	AvgDuration float64 `json:"avg_duration"`
}

// Bank is the in-memory view of the condensed memory. It is not safe for
// concurrent use; the scout engine serializes access behind its state mutex.
type Bank struct {
	entries map[string]Entry
}

// NewBank returns an empty memory bank.
func NewBank() *Bank {
	return &Bank{entries: make(map[string]Entry)}
}

// Observe blends one trade outcome into the entry for key. Profitable trades
// count as wins; value and duration blend regardless of sign.
func (b *Bank) Observe(key string, profit float64, durationHours float64) {
	e := b.entries[key]
	if profit > 0 {
		e.Wins++
	}
	e.Value = ema(e.Value, profit)
	if e.AvgDuration == 0 {
		e.AvgDuration = durationHours
	} else {
		e.AvgDuration = ema(e.AvgDuration, durationHours)
	}
	b.entries[key] = e
}

// Lookup returns the entry for an item in a scope, if any.
func (b *Bank) Lookup(scope string, itemID int) (Entry, bool) {
	e, ok := b.entries[Key(scope, itemID)]
	return e, ok
}

// Known reports whether any scope has experience with the item.
func (b *Bank) Known(itemID int) (Entry, bool) {
	if e, ok := b.entries[Key(ScopeReal, itemID)]; ok {
		return e, true
	}
	if e, ok := b.entries[Key(ScopeSim, itemID)]; ok {
		return e, true
	}
	return Entry{}, false
}

// Len returns the number of entries.
func (b *Bank) Len() int {
	return len(b.entries)
}

// Snapshot returns a copy of all entries, for persistence and evolution.
func (b *Bank) Snapshot() map[string]Entry {
	out := make(map[string]Entry, len(b.entries))
	for k, v := range b.entries {
		out[k] = v
	}
	return out
}

// Restore replaces the bank contents, used when loading persisted state.
func (b *Bank) Restore(entries map[string]Entry) {
	b.entries = make(map[string]Entry, len(entries))
	for k, v := range entries {
		b.entries[k] = v
	}
}

// Clear wipes all memory. Only invoked by an explicit user action.
func (b *Bank) Clear() {
	b.entries = make(map[string]Entry)
}

func ema(old, observed float64) float64 {
	return old*Alpha + observed*(1-Alpha)
}
