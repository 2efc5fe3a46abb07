// Package adaptive holds the self-tuning layer: the scoring DNA that evolves
// from condensed memory, the reliance score that gates autonomy, and the
// maturity/XP progression with its virtual wallet.
package adaptive

import (
	"time"

	"go.uber.org/zap"

	"gw2-tradepost-bot/internal/memory"
)

// Evolution thresholds in copper per hour of average hold time.
const (
	highEfficiency = 80000
	goodEfficiency = 50000

	weightStep = 0.02
	riskStep   = 0.05

	minWeight = 0.1
	maxWeight = 0.7
	maxRisk   = 0.95

	// Evolution needs a minimum of observed outcomes to act on; anything
	// less is noise.
	minMemoryEntries = 5
)

// DNA is the evolving scoring profile. Weights stay within [0.1, 0.7] and
// risk tolerance within [0, 0.95] no matter how many evolution steps run.
type DNA struct {
	ROIWeight           float64   `json:"roi_weight"`
	VolumeWeight        float64   `json:"volume_weight"`
	SpreadWeight        float64   `json:"spread_weight"`
	PreferredCategories []string  `json:"preferred_categories"`
	RiskTolerance       float64   `json:"risk_tolerance"`
	LastEvolution       time.Time `json:"last_evolution"`
}

// DefaultDNA returns the starting profile before any evolution.
func DefaultDNA() DNA {
	return DNA{
		ROIWeight:           0.4,
		VolumeWeight:        0.3,
		SpreadWeight:        0.3,
		PreferredCategories: []string{"CraftingMaterial", "Consumable"},
		RiskTolerance:       0.5,
	}
}

// Evolve nudges the profile toward whatever the condensed memory says has
// been working. High efficiency raises risk appetite; good efficiency shifts
// weight from volume to ROI; poor efficiency shifts it back. Returns false
// when memory is too thin to learn from.
func (d *DNA) Evolve(bank *memory.Bank, logger *zap.Logger) bool {
	entries := bank.Snapshot()
	if len(entries) < minMemoryEntries {
		return false
	}

	var total float64
	for _, e := range entries {
		hours := e.AvgDuration
		if hours < 1 {
			hours = 1
		}
		total += e.Value / hours
	}
	efficiency := total / float64(len(entries))

	switch {
	case efficiency > highEfficiency:
		d.RiskTolerance = clamp(d.RiskTolerance+riskStep, 0, maxRisk)
		d.ROIWeight = clamp(d.ROIWeight+weightStep, minWeight, maxWeight)
		d.VolumeWeight = clamp(d.VolumeWeight-weightStep, minWeight, maxWeight)
	case efficiency > goodEfficiency:
		d.ROIWeight = clamp(d.ROIWeight+weightStep, minWeight, maxWeight)
		d.VolumeWeight = clamp(d.VolumeWeight-weightStep, minWeight, maxWeight)
	default:
		d.ROIWeight = clamp(d.ROIWeight-weightStep, minWeight, maxWeight)
		d.VolumeWeight = clamp(d.VolumeWeight+weightStep, minWeight, maxWeight)
	}

	d.LastEvolution = time.Now()

	logger.Info("Scoring profile evolved",
		zap.Float64("efficiency", efficiency),
		zap.Float64("roi_weight", d.ROIWeight),
		zap.Float64("volume_weight", d.VolumeWeight),
		zap.Float64("risk_tolerance", d.RiskTolerance),
	)
	return true
}

// PriorityWeights converts the relative ROI/volume weights into the point
// split used by the market scorer. The two always sum to 100.
func (d *DNA) PriorityWeights() (roiPoints, liquidityPoints float64) {
	sum := d.ROIWeight + d.VolumeWeight
	if sum <= 0 {
		return 40, 60
	}
	roiPoints = d.ROIWeight / sum * 100
	return roiPoints, 100 - roiPoints
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
