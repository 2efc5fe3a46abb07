// Package scout runs the background market intelligence loop: interleaved
// priority and full market scans, account position syncing, the shadow
// simulation, and the adaptive controller, all serialized behind one state
// mutex and persisted through the store.
package scout

import (
	"context"
	"io"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"gw2-tradepost-bot/internal/adaptive"
	"gw2-tradepost-bot/internal/advisor"
	"gw2-tradepost-bot/internal/config"
	"gw2-tradepost-bot/internal/gw2"
	"gw2-tradepost-bot/internal/market"
	"gw2-tradepost-bot/internal/memory"
	"gw2-tradepost-bot/internal/positions"
	"gw2-tradepost-bot/internal/sim"
	"gw2-tradepost-bot/internal/store"
)

// Engine is the core scouting engine. All mutable state lives behind mu;
// the scan, sync, and API paths never touch it without the lock.
type Engine struct {
	logger  *zap.Logger
	cfg     *config.Config
	client  gw2.ClientInterface
	store   *store.Store
	advisor advisor.Advisor
	sim     *sim.Engine

	paused atomic.Bool

	mu         sync.Mutex
	normalizer *market.Normalizer
	items      map[int]market.Item
	pending    map[int]market.Item
	lastFlush  time.Time
	book       *positions.Book
	bank       *memory.Bank
	shadow     []sim.Position
	dna        adaptive.DNA
	reliance   adaptive.Reliance
	progress   adaptive.Progress
	bias       sim.ScoutBias
	pinned     map[int]bool
	lastBuyID  int64
	lastSellID int64
	activity   *activityLog
	rng        *rand.Rand

	reportTo       io.Writer
	startTime      time.Time
	needsBootstrap bool
}

// NewEngine creates the scouting engine and restores persisted state.
func NewEngine(logger *zap.Logger, cfg *config.Config, client gw2.ClientInterface, st *store.Store, adv advisor.Advisor) (*Engine, error) {
	seed := cfg.Sim.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	tuning := market.Tuning{
		BuyDepthLogWeight:    cfg.Market.BuyDepthLogWeight,
		SellDepthLogWeight:   cfg.Market.SellDepthLogWeight,
		ManipSpreadThreshold: cfg.Market.ManipSpreadThreshold,
		ManipThinSupplyQty:   cfg.Market.ManipThinSupplyQty,
		ROIPoints:            market.DefaultTuning().ROIPoints,
		LiquidityPoints:      market.DefaultTuning().LiquidityPoints,
	}

	bias := sim.ScoutBias{
		CategoryOrder: cfg.Sim.CategoryOrder,
		TargetROI:     [2]float64{cfg.Sim.TargetROILow, cfg.Sim.TargetROIHigh},
	}

	simCfg := sim.Config{
		PoolCapacity:   cfg.Sim.PoolCapacity,
		PoolHardCap:    cfg.Sim.PoolHardCap,
		CaptureRatio:   cfg.Sim.CaptureRatio,
		MinROI:         cfg.Sim.MinROI,
		MaxROI:         cfg.Sim.MaxROI,
		MinBuyDepth:    cfg.Sim.MinBuyDepth,
		MinSellDepth:   cfg.Sim.MinSellDepth,
		MinLiquidity:   cfg.Sim.MinLiquidity,
		UndercutChance: cfg.Sim.UndercutChance,
	}

	e := &Engine{
		logger:     logger,
		cfg:        cfg,
		client:     client,
		store:      st,
		advisor:    adv,
		sim:        sim.NewEngine(simCfg, bias, rng, logger),
		normalizer: market.NewNormalizer(tuning, rng),
		items:      make(map[int]market.Item),
		pending:    make(map[int]market.Item),
		book:       positions.NewBook(),
		bank:       memory.NewBank(),
		dna:        adaptive.DefaultDNA(),
		reliance:   adaptive.DefaultReliance(),
		progress:   adaptive.DefaultProgress(),
		bias:       bias,
		pinned:     make(map[int]bool),
		activity:   newActivityLog(100),
		rng:        rng,
		reportTo:   os.Stdout,
		startTime:  time.Now(),
	}

	if err := e.restore(); err != nil {
		return nil, err
	}
	return e, nil
}

// restore loads persisted state; on first run everything stays at defaults
// and a history bootstrap is scheduled.
func (e *Engine) restore() error {
	st, err := e.store.LoadState()
	if err != nil {
		return err
	}

	e.book.Replace(st.Positions)
	e.shadow = st.ShadowPool
	e.bank.Restore(st.Memory)

	if st.HasAdaptive {
		e.dna = st.Adaptive.DNA
		e.reliance = st.Adaptive.Reliance
		e.progress = st.Adaptive.Progress
		e.bias = st.Adaptive.Bias
		e.sim.SetBias(e.bias)
		e.lastBuyID = st.Adaptive.LastProcessedBuyID
		e.lastSellID = st.Adaptive.LastProcessedSellID
		roiPts, liqPts := e.dna.PriorityWeights()
		e.normalizer.SetPriorityWeights(roiPts, liqPts)
	} else {
		e.needsBootstrap = true
	}

	pinnedIDs, err := e.store.PinnedItemIDs()
	if err != nil {
		return err
	}
	for _, id := range pinnedIDs {
		e.pinned[id] = true
	}

	e.logger.Info("State restored",
		zap.Int("positions", e.book.Len()),
		zap.Int("shadow_pool", len(e.shadow)),
		zap.Int("memory_entries", e.bank.Len()),
		zap.Bool("first_run", e.needsBootstrap),
	)
	return nil
}

// Run starts the scouting loop and blocks until the context is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("Initializing scout engine...")

	if e.needsBootstrap {
		if err := e.bootstrapFromHistory(ctx); err != nil {
			e.logger.Warn("History bootstrap failed, starting cold", zap.Error(err))
		}
	}

	// First priority scan right away so the dashboard has data.
	if err := e.priorityScan(ctx); err != nil {
		e.logger.Error("Initial priority scan failed", zap.Error(err))
	}

	priorityInterval := time.Duration(e.cfg.Scout.PriorityIntervalSeconds) * time.Second
	fullInterval := time.Duration(e.cfg.Scout.FullIntervalMinutes) * time.Minute
	syncInterval := time.Duration(e.cfg.Scout.SyncIntervalSeconds) * time.Second

	priorityTicker := time.NewTicker(priorityInterval)
	defer priorityTicker.Stop()
	fullTicker := time.NewTicker(fullInterval)
	defer fullTicker.Stop()
	syncTicker := time.NewTicker(syncInterval)
	defer syncTicker.Stop()

	e.logger.Info("Starting scout loop",
		zap.Duration("priority_interval", priorityInterval),
		zap.Duration("full_interval", fullInterval),
		zap.Duration("sync_interval", syncInterval),
	)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping scout engine...")
			e.persist()
			return
		case <-priorityTicker.C:
			if err := e.priorityScan(ctx); err != nil {
				e.logger.Error("Priority scan failed", zap.Error(err))
			}
		case <-fullTicker.C:
			if err := e.fullScan(ctx); err != nil {
				e.logger.Error("Full scan failed", zap.Error(err))
			}
		case <-syncTicker.C:
			if err := e.syncPositions(ctx); err != nil {
				e.logger.Error("Position sync failed", zap.Error(err))
			}
		}
	}
}

// Pause suspends scanning after the current chunk. Sync and the API keep
// running.
func (e *Engine) Pause() {
	e.paused.Store(true)
	e.logger.Info("Scanning paused")
}

// Resume lifts a pause.
func (e *Engine) Resume() {
	e.paused.Store(false)
	e.logger.Info("Scanning resumed")
}

// Paused reports whether scanning is suspended.
func (e *Engine) Paused() bool {
	return e.paused.Load()
}

// waitWhilePaused blocks until scanning is unpaused or the context ends.
func (e *Engine) waitWhilePaused(ctx context.Context) error {
	for e.paused.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return nil
}

// DeclarePosition registers a new real position to track.
func (e *Engine) DeclarePosition(itemID int, buyPrice, quantity int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	name := ""
	if item, ok := e.items[itemID]; ok {
		name = item.Name
	}

	pos := positions.Position{
		ItemID:    itemID,
		ItemName:  name,
		Side:      positions.SideBuy,
		Status:    positions.StatusActive,
		Quantity:  quantity,
		BuyPrice:  buyPrice,
		CreatedAt: time.Now(),
	}
	if err := e.book.Add(pos); err != nil {
		return err
	}

	e.activity.add("Tracking new position: item %d, %s x%d", itemID, market.FormatCoins(buyPrice), quantity)
	return e.store.ReplacePositions(e.book.All())
}

// RemovePosition stops tracking an item's positions.
func (e *Engine) RemovePosition(itemID int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.book.Remove(itemID)
	e.activity.add("Stopped tracking item %d", itemID)
	return e.store.ReplacePositions(e.book.All())
}

// Pin marks an item for inclusion in every priority scan.
func (e *Engine) Pin(itemID int, pinned bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if pinned {
		e.pinned[itemID] = true
	} else {
		delete(e.pinned, itemID)
	}
	return e.store.SetPinned(itemID, pinned)
}

// ClearMemory wipes the condensed memory, in RAM and on disk.
func (e *Engine) ClearMemory() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.bank.Clear()
	e.activity.add("Condensed memory cleared")
	return e.store.ClearMemory()
}

// Analyze produces an advisor recommendation for a scanned item.
func (e *Engine) Analyze(ctx context.Context, itemID int) (advisor.Recommendation, bool) {
	e.mu.Lock()
	item, ok := e.items[itemID]
	e.mu.Unlock()
	if !ok {
		return advisor.Recommendation{}, false
	}

	rec, err := e.advisor.Analyze(ctx, item)
	if err != nil {
		// The resilient wrapper never errors, but the interface allows it.
		return advisor.Recommendation{}, false
	}
	return rec, true
}

// applyPending merges the pending buffer into the live snapshot, advances the
// shadow simulation one tick, and persists. Callers hold mu.
func (e *Engine) applyPendingLocked() {
	if len(e.pending) > 0 {
		flushed := make([]market.Item, 0, len(e.pending))
		for id, item := range e.pending {
			e.items[id] = item
			flushed = append(flushed, item)
		}
		e.pending = make(map[int]market.Item)

		// The snapshot cache backs the dashboard across restarts and carries
		// the pin flags, so every flush refreshes it.
		if err := e.store.UpsertItems(flushed); err != nil {
			e.logger.Error("Failed to persist item snapshots", zap.Error(err))
		}
	}

	pool, res := e.sim.Tick(e.shadow, e.items, e.bank)
	e.shadow = pool

	if res.Trades > 0 {
		e.progress.AddSimXP(res.XP)
		for _, done := range res.Completed {
			if e.progress.CreditSimProfit(done.Profit, done.LiquidityScore, e.rng) && done.Profit > 0 {
				e.activity.add("Shadow flip: %s %+d copper (%d relists)", done.ItemName, done.Profit, done.RelistCount)
			}
		}
		if e.progress.RealityValve() {
			e.logger.Info("Virtual wallet reset to baseline")
			e.activity.add("Reality valve fired: virtual wallet reset")
		}
		e.maybeEvolveLocked()
	}

	e.lastFlush = time.Now()
	e.persistLocked()
}

// maybeEvolve runs one DNA evolution step and propagates the new weights
// into the market scorer. Callers hold mu.
func (e *Engine) maybeEvolveLocked() {
	if !e.dna.Evolve(e.bank, e.logger) {
		return
	}
	roiPts, liqPts := e.dna.PriorityWeights()
	e.normalizer.SetPriorityWeights(roiPts, liqPts)
	e.activity.add("Scoring profile evolved: ROI %.0f / liquidity %.0f", roiPts, liqPts)
}

// persist saves the whole state. Safe to call from any goroutine.
func (e *Engine) persist() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.persistLocked()
}

func (e *Engine) persistLocked() {
	if err := e.store.ReplacePositions(e.book.All()); err != nil {
		e.logger.Error("Failed to persist positions", zap.Error(err))
	}
	if err := e.store.ReplaceShadowPool(e.shadow); err != nil {
		e.logger.Error("Failed to persist shadow pool", zap.Error(err))
	}
	if err := e.store.ReplaceMemory(e.bank.Snapshot()); err != nil {
		e.logger.Error("Failed to persist memory", zap.Error(err))
	}
	if err := e.store.SaveAdaptive(store.AdaptiveState{
		DNA:                 e.dna,
		Reliance:            e.reliance,
		Progress:            e.progress,
		Bias:                e.bias,
		LastProcessedBuyID:  e.lastBuyID,
		LastProcessedSellID: e.lastSellID,
	}); err != nil {
		e.logger.Error("Failed to persist adaptive state", zap.Error(err))
	}
}
