package store

import (
	"encoding/json"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"gw2-tradepost-bot/internal/adaptive"
	"gw2-tradepost-bot/internal/market"
	"gw2-tradepost-bot/internal/memory"
	"gw2-tradepost-bot/internal/positions"
	"gw2-tradepost-bot/internal/sim"
)

// Store wraps the GORM handle with snapshot-style persistence: each save
// replaces a whole table inside one transaction, so a crash never leaves a
// half-written pool or book behind.
type Store struct {
	db *gorm.DB
}

// NewStore opens the SQLite database and migrates the schema. Unlike a
// throwaway backtest database, existing rows are kept: state survives
// restarts by design.
func NewStore(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(
		&PositionRecord{},
		&ShadowPositionRecord{},
		&MemoryRecord{},
		&ItemRecord{},
		&AdaptiveRecord{},
	); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying handle for tests.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// ReplacePositions swaps the stored position book for the given one.
func (s *Store) ReplacePositions(book []positions.Position) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
			Unscoped().Delete(&PositionRecord{}).Error; err != nil {
			return err
		}
		for _, pos := range book {
			rec := PositionRecord{
				ItemID:           pos.ItemID,
				ItemName:         pos.ItemName,
				Side:             string(pos.Side),
				Status:           string(pos.Status),
				Quantity:         pos.Quantity,
				OriginalQuantity: pos.OriginalQuantity,
				BuyPrice:         pos.BuyPrice,
				SellPrice:        pos.SellPrice,
				DeclaredAt:       pos.CreatedAt,
				SellTimestamp:    pos.SellTimestamp,
				RealizedProfit:   pos.RealizedProfit,
			}
			if err := tx.Create(&rec).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceShadowPool swaps the stored shadow pool for the given one.
func (s *Store) ReplaceShadowPool(pool []sim.Position) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
			Unscoped().Delete(&ShadowPositionRecord{}).Error; err != nil {
			return err
		}
		for _, pos := range pool {
			rec := shadowToRecord(pos)
			if err := tx.Create(&rec).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceMemory swaps the stored condensed memory for the given snapshot.
func (s *Store) ReplaceMemory(entries map[string]memory.Entry) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
			Unscoped().Delete(&MemoryRecord{}).Error; err != nil {
			return err
		}
		for key, e := range entries {
			rec := MemoryRecord{Key: key, Wins: e.Wins, Value: e.Value, AvgDuration: e.AvgDuration}
			if err := tx.Create(&rec).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertItems refreshes the market snapshot cache for the given items,
// preserving pin flags across refreshes.
func (s *Store) UpsertItems(items []market.Item) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, item := range items {
			var rec ItemRecord
			err := tx.Where("item_id = ?", item.ID).First(&rec).Error
			if err != nil && err != gorm.ErrRecordNotFound {
				return err
			}
			rec.ItemID = item.ID
			rec.Name = item.Name
			rec.Type = item.Type
			rec.Rarity = item.Rarity
			rec.BuyPrice = item.BuyPrice
			rec.SellPrice = item.SellPrice
			rec.BuysQty = item.BuysQty
			rec.SellsQty = item.SellsQty
			rec.ROI = item.ROI
			rec.LiquidityScore = item.LiquidityScore
			rec.PriorityScore = item.PriorityScore
			rec.IsManipulated = item.IsManipulated
			rec.FetchedAt = item.FetchedAt
			if err := tx.Save(&rec).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// SetPinned toggles the pin flag on a cached item. Pinning an item the
// scanner has not seen yet creates a stub row, so the pin survives a restart
// and the next snapshot refresh fills in the rest.
func (s *Store) SetPinned(itemID int, pinned bool) error {
	res := s.db.Model(&ItemRecord{}).Where("item_id = ?", itemID).
		Update("pinned", pinned)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 && pinned {
		return s.db.Create(&ItemRecord{ItemID: itemID, Pinned: true}).Error
	}
	return nil
}

// PinnedItemIDs lists the currently pinned items.
func (s *Store) PinnedItemIDs() ([]int, error) {
	var ids []int
	err := s.db.Model(&ItemRecord{}).Where("pinned = ?", true).
		Pluck("item_id", &ids).Error
	return ids, err
}

// SaveAdaptive persists the single-row adaptive state.
func (s *Store) SaveAdaptive(st AdaptiveState) error {
	dna, err := json.Marshal(st.DNA)
	if err != nil {
		return err
	}
	reliance, err := json.Marshal(st.Reliance)
	if err != nil {
		return err
	}
	progress, err := json.Marshal(st.Progress)
	if err != nil {
		return err
	}
	bias, err := json.Marshal(st.Bias)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		var rec AdaptiveRecord
		err := tx.First(&rec).Error
		if err != nil && err != gorm.ErrRecordNotFound {
			return err
		}
		rec.DNA = string(dna)
		rec.Reliance = string(reliance)
		rec.Progress = string(progress)
		rec.Bias = string(bias)
		rec.LastProcessedBuyID = st.LastProcessedBuyID
		rec.LastProcessedSellID = st.LastProcessedSellID
		return tx.Save(&rec).Error
	})
}

// AdaptiveState bundles the non-tabular state persisted as one row.
type AdaptiveState struct {
	DNA                 adaptive.DNA
	Reliance            adaptive.Reliance
	Progress            adaptive.Progress
	Bias                sim.ScoutBias
	LastProcessedBuyID  int64
	LastProcessedSellID int64
}

// State is everything loaded at startup.
type State struct {
	Positions   []positions.Position
	ShadowPool  []sim.Position
	Memory      map[string]memory.Entry
	Adaptive    AdaptiveState
	HasAdaptive bool
}

// LoadState reads the full persisted state. Missing tables or the missing
// adaptive row are normal on first run and come back empty.
func (s *Store) LoadState() (State, error) {
	var st State

	var posRecs []PositionRecord
	if err := s.db.Order("id asc").Find(&posRecs).Error; err != nil {
		return st, err
	}
	for _, rec := range posRecs {
		st.Positions = append(st.Positions, positions.Position{
			ItemID:           rec.ItemID,
			ItemName:         rec.ItemName,
			Side:             positions.Side(rec.Side),
			Status:           positions.Status(rec.Status),
			Quantity:         rec.Quantity,
			OriginalQuantity: rec.OriginalQuantity,
			BuyPrice:         rec.BuyPrice,
			SellPrice:        rec.SellPrice,
			CreatedAt:        rec.DeclaredAt,
			SellTimestamp:    rec.SellTimestamp,
			RealizedProfit:   rec.RealizedProfit,
		})
	}

	var shadowRecs []ShadowPositionRecord
	if err := s.db.Order("id asc").Find(&shadowRecs).Error; err != nil {
		return st, err
	}
	for _, rec := range shadowRecs {
		st.ShadowPool = append(st.ShadowPool, recordToShadow(rec))
	}

	var memRecs []MemoryRecord
	if err := s.db.Find(&memRecs).Error; err != nil {
		return st, err
	}
	st.Memory = make(map[string]memory.Entry, len(memRecs))
	for _, rec := range memRecs {
		st.Memory[rec.Key] = memory.Entry{Wins: rec.Wins, Value: rec.Value, AvgDuration: rec.AvgDuration}
	}

	var adaptiveRec AdaptiveRecord
	err := s.db.First(&adaptiveRec).Error
	if err == gorm.ErrRecordNotFound {
		return st, nil
	}
	if err != nil {
		return st, err
	}

	if err := json.Unmarshal([]byte(adaptiveRec.DNA), &st.Adaptive.DNA); err != nil {
		return st, fmt.Errorf("corrupt adaptive state: %w", err)
	}
	if err := json.Unmarshal([]byte(adaptiveRec.Reliance), &st.Adaptive.Reliance); err != nil {
		return st, fmt.Errorf("corrupt adaptive state: %w", err)
	}
	if err := json.Unmarshal([]byte(adaptiveRec.Progress), &st.Adaptive.Progress); err != nil {
		return st, fmt.Errorf("corrupt adaptive state: %w", err)
	}
	if err := json.Unmarshal([]byte(adaptiveRec.Bias), &st.Adaptive.Bias); err != nil {
		return st, fmt.Errorf("corrupt adaptive state: %w", err)
	}
	st.Adaptive.LastProcessedBuyID = adaptiveRec.LastProcessedBuyID
	st.Adaptive.LastProcessedSellID = adaptiveRec.LastProcessedSellID
	st.HasAdaptive = true

	return st, nil
}

// ClearMemory wipes the condensed memory table only.
func (s *Store) ClearMemory() error {
	return s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).
		Unscoped().Delete(&MemoryRecord{}).Error
}

// ResetAll wipes everything. Only invoked by an explicit user action.
func (s *Store) ResetAll() error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, model := range []interface{}{
			&PositionRecord{}, &ShadowPositionRecord{}, &MemoryRecord{},
			&ItemRecord{}, &AdaptiveRecord{},
		} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
				Unscoped().Delete(model).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func shadowToRecord(pos sim.Position) ShadowPositionRecord {
	return ShadowPositionRecord{
		ShadowID:         pos.ID,
		ItemID:           pos.ItemID,
		ItemName:         pos.ItemName,
		Phase:            string(pos.Phase),
		BuyPrice:         pos.BuyPrice,
		SellPrice:        pos.SellPrice,
		Quantity:         pos.Quantity,
		EntryAt:          pos.EntryAt,
		ExpectedExit:     pos.ExpectedExit,
		ROIEstimate:      pos.ROIEstimate,
		LiquidityScore:   pos.LiquidityScore,
		ExpectedBuyFill:  pos.ExpectedBuyFill,
		BoughtAt:         pos.BoughtAt,
		ListedAt:         pos.ListedAt,
		ExpectedSellFill: pos.ExpectedSellFill,
		InitialListPrice: pos.InitialListPrice,
		CurrentListPrice: pos.CurrentListPrice,
		RelistCount:      pos.RelistCount,
	}
}

func recordToShadow(rec ShadowPositionRecord) sim.Position {
	return sim.Position{
		ID:               rec.ShadowID,
		ItemID:           rec.ItemID,
		ItemName:         rec.ItemName,
		Phase:            sim.Phase(rec.Phase),
		BuyPrice:         rec.BuyPrice,
		SellPrice:        rec.SellPrice,
		Quantity:         rec.Quantity,
		EntryAt:          rec.EntryAt,
		ExpectedExit:     rec.ExpectedExit,
		ROIEstimate:      rec.ROIEstimate,
		LiquidityScore:   rec.LiquidityScore,
		ExpectedBuyFill:  rec.ExpectedBuyFill,
		BoughtAt:         rec.BoughtAt,
		ListedAt:         rec.ListedAt,
		ExpectedSellFill: rec.ExpectedSellFill,
		InitialListPrice: rec.InitialListPrice,
		CurrentListPrice: rec.CurrentListPrice,
		RelistCount:      rec.RelistCount,
	}
}
