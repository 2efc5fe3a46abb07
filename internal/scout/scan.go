package scout

import (
	"context"
	"time"

	"go.uber.org/zap"

	"gw2-tradepost-bot/internal/market"
)

// Significance thresholds for the pending buffer. Changes below both are
// noise and never trigger a downstream update.
const (
	significantPriceDelta = 0.005 // 0.5%
	significantDepthDelta = 0.02  // 2%
)

// priorityScan refreshes tracked, pinned, and popular items in one batch.
func (e *Engine) priorityScan(ctx context.Context) error {
	if err := e.waitWhilePaused(ctx); err != nil {
		return err
	}

	ids := e.priorityIDs()
	if len(ids) == 0 {
		return nil
	}

	updated, err := e.scanChunk(ctx, ids)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.applyPendingLocked()
	e.mu.Unlock()

	e.WriteReport(e.reportTo, 10)

	e.logger.Debug("Priority scan complete",
		zap.Int("requested", len(ids)),
		zap.Int("updated", updated),
	)
	return nil
}

// fullScan walks the whole tradable catalog in rate-friendly chunks, pausing
// between chunks and honoring the pause flag. Significant updates are flushed
// to the simulation at least every flush interval rather than only at the
// end, so a 15 minute sweep still produces timely ticks.
func (e *Engine) fullScan(ctx context.Context) error {
	started := time.Now()

	allIDs, err := e.client.GetTradableItemIDs(ctx)
	if err != nil {
		return err
	}

	chunks := chunkIDs(allIDs, e.cfg.Scout.ChunkSize)
	chunkDelay := time.Duration(e.cfg.Scout.ChunkDelayMillis) * time.Millisecond
	flushEvery := time.Duration(e.cfg.Scout.FlushIntervalSeconds) * time.Second

	e.logger.Info("Full market scan starting",
		zap.Int("items", len(allIDs)),
		zap.Int("chunks", len(chunks)),
	)

	var updated int
	lastFlush := time.Now()
	for i, chunk := range chunks {
		if err := e.waitWhilePaused(ctx); err != nil {
			return err
		}

		n, err := e.scanChunk(ctx, chunk)
		if err != nil {
			// One bad chunk must not abort the sweep.
			e.logger.Warn("Chunk scan failed, continuing",
				zap.Int("chunk", i),
				zap.Error(err),
			)
		}
		updated += n

		if time.Since(lastFlush) >= flushEvery {
			e.mu.Lock()
			e.applyPendingLocked()
			e.mu.Unlock()
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(chunkDelay):
		}
	}

	e.mu.Lock()
	e.applyPendingLocked()
	e.mu.Unlock()

	e.logger.Info("Full market scan complete",
		zap.Int("updated", updated),
		zap.Duration("took", time.Since(started)),
	)
	return nil
}

// scanChunk fetches prices and metadata for one batch of ids, normalizes
// them, and stages significant changes in the pending buffer.
func (e *Engine) scanChunk(ctx context.Context, ids []int) (int, error) {
	prices, err := e.client.GetPrices(ctx, ids)
	if err != nil {
		return 0, err
	}
	if len(prices) == 0 {
		return 0, nil
	}

	priceIDs := make([]int, len(prices))
	for i, p := range prices {
		priceIDs[i] = p.ID
	}
	metas, err := e.client.GetItems(ctx, priceIDs)
	if err != nil {
		return 0, err
	}
	metaByID := make(map[int]market.ItemMeta, len(metas))
	for _, m := range metas {
		metaByID[m.ID] = m
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	updated := 0
	for _, price := range prices {
		meta, ok := metaByID[price.ID]
		if !ok {
			continue
		}
		item := e.normalizer.Normalize(meta, price)
		if prev, seen := e.items[item.ID]; seen && !significant(prev, item) {
			continue
		}
		e.pending[item.ID] = item
		updated++
	}
	return updated, nil
}

// priorityIDs is the union of tracked, pinned, and configured popular items.
func (e *Engine) priorityIDs() []int {
	e.mu.Lock()
	defer e.mu.Unlock()

	set := make(map[int]struct{})
	for _, id := range e.book.ItemIDs() {
		set[id] = struct{}{}
	}
	for id := range e.pinned {
		set[id] = struct{}{}
	}
	for _, id := range e.cfg.Scout.PopularItemIDs {
		set[id] = struct{}{}
	}
	for _, pos := range e.shadow {
		set[pos.ItemID] = struct{}{}
	}

	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// significant reports whether an item moved enough to be worth reprocessing:
// either best price shifted over 0.5% or either depth shifted over 2%.
func significant(prev, next market.Item) bool {
	return relDelta(prev.BuyPrice, next.BuyPrice) > significantPriceDelta ||
		relDelta(prev.SellPrice, next.SellPrice) > significantPriceDelta ||
		relDelta(prev.BuysQty, next.BuysQty) > significantDepthDelta ||
		relDelta(prev.SellsQty, next.SellsQty) > significantDepthDelta
}

func relDelta(prev, next int64) float64 {
	if prev == 0 {
		if next == 0 {
			return 0
		}
		return 1
	}
	d := float64(next-prev) / float64(prev)
	if d < 0 {
		d = -d
	}
	return d
}

// chunkIDs splits ids into batches of at most size.
func chunkIDs(ids []int, size int) [][]int {
	if size <= 0 || len(ids) == 0 {
		return nil
	}
	chunks := make([][]int, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
