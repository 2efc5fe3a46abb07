package store

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gw2-tradepost-bot/internal/adaptive"
	"gw2-tradepost-bot/internal/market"
	"gw2-tradepost-bot/internal/memory"
	"gw2-tradepost-bot/internal/positions"
	"gw2-tradepost-bot/internal/sim"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore("file::memory:")
	assert.NoError(t, err)
	return s
}

func samplePosition() positions.Position {
	return positions.Position{
		ItemID:           19721,
		ItemName:         "Glob of Ectoplasm",
		Side:             positions.SideBuy,
		Status:           positions.StatusActive,
		Quantity:         40,
		OriginalQuantity: 50,
		BuyPrice:         2500,
		CreatedAt:        time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC),
	}
}

func sampleShadow() sim.Position {
	return sim.Position{
		ID:               "abc-123",
		ItemID:           24295,
		ItemName:         "Vial of Powerful Blood",
		Phase:            sim.PhaseListed,
		BuyPrice:         3000,
		Quantity:         20,
		EntryAt:          time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC),
		InitialListPrice: 3600,
		CurrentListPrice: 3550,
		RelistCount:      1,
	}
}

func TestStore_PositionsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	pos := samplePosition()

	assert.NoError(t, s.ReplacePositions([]positions.Position{pos}))

	st, err := s.LoadState()
	assert.NoError(t, err)
	assert.Len(t, st.Positions, 1)
	got := st.Positions[0]
	assert.Equal(t, pos.ItemID, got.ItemID)
	assert.Equal(t, pos.Side, got.Side)
	assert.Equal(t, pos.Status, got.Status)
	assert.Equal(t, pos.OriginalQuantity, got.OriginalQuantity)
	assert.True(t, pos.CreatedAt.Equal(got.CreatedAt))
}

func TestStore_ReplaceIsSnapshotNotAppend(t *testing.T) {
	s := newTestStore(t)

	assert.NoError(t, s.ReplacePositions([]positions.Position{samplePosition()}))

	second := samplePosition()
	second.ItemID = 24358
	assert.NoError(t, s.ReplacePositions([]positions.Position{second}))

	st, err := s.LoadState()
	assert.NoError(t, err)
	assert.Len(t, st.Positions, 1)
	assert.Equal(t, 24358, st.Positions[0].ItemID)
}

func TestStore_ShadowPoolRoundTrip(t *testing.T) {
	s := newTestStore(t)
	pos := sampleShadow()

	assert.NoError(t, s.ReplaceShadowPool([]sim.Position{pos}))

	st, err := s.LoadState()
	assert.NoError(t, err)
	assert.Len(t, st.ShadowPool, 1)
	got := st.ShadowPool[0]
	assert.Equal(t, pos.ID, got.ID)
	assert.Equal(t, sim.PhaseListed, got.Phase)
	assert.Equal(t, pos.CurrentListPrice, got.CurrentListPrice)
	assert.Equal(t, 1, got.RelistCount)
}

func TestStore_MemoryAndAdaptiveRoundTrip(t *testing.T) {
	s := newTestStore(t)

	entries := map[string]memory.Entry{
		"real:19721": {Wins: 3, Value: 420.5, AvgDuration: 2.5},
		"sim:24295":  {Wins: 1, Value: -50, AvgDuration: 6},
	}
	assert.NoError(t, s.ReplaceMemory(entries))

	dna := adaptive.DefaultDNA()
	dna.ROIWeight = 0.46
	adaptiveState := AdaptiveState{
		DNA:                 dna,
		Reliance:            adaptive.Reliance{Score: 77, Strategy: adaptive.StrategyCompetitive},
		Progress:            adaptive.Progress{Level: 3, XP: 640, Wallet: 2_000_000},
		Bias:                sim.DefaultScoutBias(),
		LastProcessedBuyID:  991,
		LastProcessedSellID: 992,
	}
	assert.NoError(t, s.SaveAdaptive(adaptiveState))

	st, err := s.LoadState()
	assert.NoError(t, err)
	assert.Equal(t, entries, st.Memory)
	assert.True(t, st.HasAdaptive)
	assert.InDelta(t, 0.46, st.Adaptive.DNA.ROIWeight, 1e-9)
	assert.Equal(t, adaptive.StrategyCompetitive, st.Adaptive.Reliance.Strategy)
	assert.Equal(t, int64(2_000_000), st.Adaptive.Progress.Wallet)
	assert.Equal(t, int64(991), st.Adaptive.LastProcessedBuyID)
}

func TestStore_SaveAdaptiveOverwritesSingleRow(t *testing.T) {
	s := newTestStore(t)

	assert.NoError(t, s.SaveAdaptive(AdaptiveState{DNA: adaptive.DefaultDNA()}))
	assert.NoError(t, s.SaveAdaptive(AdaptiveState{DNA: adaptive.DefaultDNA(), LastProcessedBuyID: 7}))

	var count int64
	assert.NoError(t, s.DB().Model(&AdaptiveRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	st, _ := s.LoadState()
	assert.Equal(t, int64(7), st.Adaptive.LastProcessedBuyID)
}

func TestStore_FirstRunLoadsEmpty(t *testing.T) {
	s := newTestStore(t)

	st, err := s.LoadState()
	assert.NoError(t, err)
	assert.Empty(t, st.Positions)
	assert.Empty(t, st.ShadowPool)
	assert.Empty(t, st.Memory)
	assert.False(t, st.HasAdaptive)
}

func TestStore_ExportImportRoundTrip(t *testing.T) {
	src := newTestStore(t)

	assert.NoError(t, src.ReplacePositions([]positions.Position{samplePosition()}))
	assert.NoError(t, src.ReplaceShadowPool([]sim.Position{sampleShadow()}))
	assert.NoError(t, src.ReplaceMemory(map[string]memory.Entry{"real:19721": {Wins: 2, Value: 300}}))
	assert.NoError(t, src.SaveAdaptive(AdaptiveState{
		DNA:                 adaptive.DefaultDNA(),
		Progress:            adaptive.Progress{Level: 2, XP: 150, Wallet: 1_500_000},
		LastProcessedBuyID:  991,
		LastProcessedSellID: 992,
	}))

	var buf bytes.Buffer
	assert.NoError(t, src.ExportState(&buf))
	assert.Contains(t, buf.String(), `"version": 1`)

	dst := newTestStore(t)
	assert.NoError(t, dst.ImportState(bytes.NewReader(buf.Bytes())))

	st, err := dst.LoadState()
	assert.NoError(t, err)
	assert.Len(t, st.Positions, 1)
	assert.Len(t, st.ShadowPool, 1)
	assert.Equal(t, 2, st.Memory["real:19721"].Wins)
	assert.Equal(t, 2, st.Adaptive.Progress.Level)

	// High-water marks travel too; losing them would re-announce old fills.
	assert.Equal(t, int64(991), st.Adaptive.LastProcessedBuyID)
	assert.Equal(t, int64(992), st.Adaptive.LastProcessedSellID)
}

func TestStore_ImportRejectsUnknownVersion(t *testing.T) {
	s := newTestStore(t)

	err := s.ImportState(strings.NewReader(`{"version": 99}`))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func TestStore_PinnedItemsSurviveRefresh(t *testing.T) {
	s := newTestStore(t)

	item := market.Item{
		ItemMeta: market.ItemMeta{ID: 19721, Name: "Glob of Ectoplasm"},
		BuyPrice: 100,
	}
	assert.NoError(t, s.UpsertItems([]market.Item{item}))
	assert.NoError(t, s.SetPinned(19721, true))

	// A snapshot refresh overwrites the market fields but not the pin.
	item.BuyPrice = 110
	assert.NoError(t, s.UpsertItems([]market.Item{item}))

	ids, err := s.PinnedItemIDs()
	assert.NoError(t, err)
	assert.Equal(t, []int{19721}, ids)

	var rec ItemRecord
	assert.NoError(t, s.DB().Where("item_id = ?", 19721).First(&rec).Error)
	assert.Equal(t, int64(110), rec.BuyPrice)

	assert.NoError(t, s.SetPinned(19721, false))
	ids, _ = s.PinnedItemIDs()
	assert.Empty(t, ids)
}

func TestStore_SetPinnedCreatesStubForUnscannedItem(t *testing.T) {
	s := newTestStore(t)

	assert.NoError(t, s.SetPinned(30684, true))

	ids, err := s.PinnedItemIDs()
	assert.NoError(t, err)
	assert.Equal(t, []int{30684}, ids)
}

func TestStore_ResetAllWipesEverything(t *testing.T) {
	s := newTestStore(t)

	assert.NoError(t, s.ReplacePositions([]positions.Position{samplePosition()}))
	assert.NoError(t, s.ReplaceMemory(map[string]memory.Entry{"real:1": {Wins: 1}}))
	assert.NoError(t, s.SaveAdaptive(AdaptiveState{DNA: adaptive.DefaultDNA()}))

	assert.NoError(t, s.ResetAll())

	st, err := s.LoadState()
	assert.NoError(t, err)
	assert.Empty(t, st.Positions)
	assert.Empty(t, st.Memory)
	assert.False(t, st.HasAdaptive)
}
