package store

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gw2-tradepost-bot/internal/adaptive"
	"gw2-tradepost-bot/internal/memory"
	"gw2-tradepost-bot/internal/positions"
	"gw2-tradepost-bot/internal/sim"
)

// ExportVersion is bumped whenever the document shape changes incompatibly.
const ExportVersion = 1

// StateDocument is the portable snapshot of everything the bot has learned.
type StateDocument struct {
	Version    int                     `json:"version"`
	ExportedAt time.Time               `json:"exported_at"`
	Positions  []positions.Position    `json:"positions"`
	ShadowPool []sim.Position          `json:"shadow_pool"`
	Memory     map[string]memory.Entry `json:"memory"`
	DNA        adaptive.DNA            `json:"dna"`
	Reliance   adaptive.Reliance       `json:"reliance"`
	Progress   adaptive.Progress       `json:"progress"`
	Bias       sim.ScoutBias           `json:"bias"`

	// Fill-announcement high-water marks. Dropping them on import would
	// re-announce every historical fill once.
	LastProcessedBuyID  int64 `json:"last_processed_buy_id"`
	LastProcessedSellID int64 `json:"last_processed_sell_id"`
}

// ExportState writes the whole persisted state as one JSON document.
func (s *Store) ExportState(w io.Writer) error {
	st, err := s.LoadState()
	if err != nil {
		return err
	}

	doc := StateDocument{
		Version:    ExportVersion,
		ExportedAt: time.Now().UTC(),
		Positions:  st.Positions,
		ShadowPool: st.ShadowPool,
		Memory:     st.Memory,
		DNA:        st.Adaptive.DNA,
		Reliance:   st.Adaptive.Reliance,
		Progress:   st.Adaptive.Progress,
		Bias:       st.Adaptive.Bias,

		LastProcessedBuyID:  st.Adaptive.LastProcessedBuyID,
		LastProcessedSellID: st.Adaptive.LastProcessedSellID,
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// ImportState replaces the persisted state with the document's contents.
// The version is checked before anything is touched.
func (s *Store) ImportState(r io.Reader) error {
	var doc StateDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return fmt.Errorf("failed to parse state document: %w", err)
	}
	if doc.Version != ExportVersion {
		return fmt.Errorf("unsupported state document version %d (want %d)", doc.Version, ExportVersion)
	}

	if err := s.ReplacePositions(doc.Positions); err != nil {
		return err
	}
	if err := s.ReplaceShadowPool(doc.ShadowPool); err != nil {
		return err
	}
	if err := s.ReplaceMemory(doc.Memory); err != nil {
		return err
	}
	return s.SaveAdaptive(AdaptiveState{
		DNA:                 doc.DNA,
		Reliance:            doc.Reliance,
		Progress:            doc.Progress,
		Bias:                doc.Bias,
		LastProcessedBuyID:  doc.LastProcessedBuyID,
		LastProcessedSellID: doc.LastProcessedSellID,
	})
}
