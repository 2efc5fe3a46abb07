package scout

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"

	"gw2-tradepost-bot/internal/market"
)

// activityLog is a fixed-size ring of recent human-readable events for the
// dashboard. It has its own lock so logging an event never waits on a scan.
type activityLog struct {
	mu      sync.Mutex
	entries []ActivityEntry
	next    int
	size    int
}

// ActivityEntry is one dashboard event.
type ActivityEntry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

func newActivityLog(capacity int) *activityLog {
	return &activityLog{entries: make([]ActivityEntry, capacity)}
}

func (a *activityLog) add(format string, args ...interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.entries[a.next] = ActivityEntry{At: time.Now(), Message: fmt.Sprintf(format, args...)}
	a.next = (a.next + 1) % len(a.entries)
	if a.size < len(a.entries) {
		a.size++
	}
}

// recent returns up to n entries, newest first.
func (a *activityLog) recent(n int) []ActivityEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n > a.size {
		n = a.size
	}
	out := make([]ActivityEntry, 0, n)
	for i := 1; i <= n; i++ {
		idx := (a.next - i + len(a.entries)) % len(a.entries)
		out = append(out, a.entries[idx])
	}
	return out
}

// TopPicks returns the highest-priority non-manipulated items from the last
// scan, best first.
func (e *Engine) TopPicks(limit int) []market.Item {
	e.mu.Lock()
	defer e.mu.Unlock()

	picks := make([]market.Item, 0, len(e.items))
	for _, item := range e.items {
		if item.IsManipulated || item.ProfitPerUnit <= 0 {
			continue
		}
		picks = append(picks, item)
	}
	sort.Slice(picks, func(i, j int) bool {
		return picks[i].PriorityScore > picks[j].PriorityScore
	})
	if len(picks) > limit {
		picks = picks[:limit]
	}
	return picks
}

// WriteReport renders the current top picks as a console table.
func (e *Engine) WriteReport(w io.Writer, limit int) {
	picks := e.TopPicks(limit)

	e.mu.Lock()
	level := e.progress.Level
	wallet := e.progress.Wallet
	strategy := e.reliance.Strategy
	shadowCount := len(e.shadow)
	e.mu.Unlock()

	fmt.Fprintf(w, "\n[%s] level %d | wallet %s | strategy %s | shadow pool %d\n",
		time.Now().Format("15:04:05"), level, market.FormatCoins(wallet), strategy, shadowCount)

	if len(picks) == 0 {
		fmt.Fprintln(w, "  no profitable picks in the current snapshot")
		return
	}

	table := tablewriter.NewWriter(w)
	table.Header("#", "Item", "Buy", "Sell", "Profit", "ROI", "Liq", "Flip", "Score")

	for i, item := range picks {
		table.Append(
			fmt.Sprintf("%d", i+1),
			item.Name,
			market.FormatCoins(item.BuyPrice),
			market.FormatCoins(item.SellPrice),
			market.FormatCoins(int64(item.ProfitPerUnit)),
			fmt.Sprintf("%.1f%%", item.ROI),
			fmt.Sprintf("%d", item.LiquidityScore),
			string(item.FlipTime),
			fmt.Sprintf("%.0f", item.PriorityScore),
		)
	}

	table.Render()
}
