package sim

import (
	"math"
	"math/rand"
	"time"

	"gw2-tradepost-bot/internal/memory"
)

const (
	baseFillWait = 5 * time.Minute
	// Per decade of competing depth: one extra minute on the buy side, two
	// on the sell side. Supply-side competition hurts more because every
	// listing ahead of ours must clear first.
	buyDepthPenalty  = time.Minute
	sellDepthPenalty = 2 * time.Minute

	// Share of a historical flip spent on each leg when calibrating
	// against condensed memory.
	buyLegShare  = 0.4
	sellLegShare = 0.6

	// Items we have real experience with fill a bit faster: we know where
	// to price them.
	knownItemCalibration = 0.8
)

// Estimator produces randomized, liquidity-weighted fill durations. The RNG
// is injected so tests can drive deterministic transitions.
type Estimator struct {
	rng *rand.Rand
}

// NewEstimator returns an estimator backed by the given RNG source.
func NewEstimator(rng *rand.Rand) *Estimator {
	return &Estimator{rng: rng}
}

// BuyFillWait estimates how long a buy order sits before filling. More
// competing buyers means a longer wait.
func (e *Estimator) BuyFillWait(buysQty int64, hist *memory.Entry) time.Duration {
	return e.fillWait(buysQty, buyDepthPenalty, buyLegShare, hist)
}

// SellFillWait estimates how long a listing sits before selling, keyed on
// supply-side competition.
func (e *Estimator) SellFillWait(sellsQty int64, hist *memory.Entry) time.Duration {
	return e.fillWait(sellsQty, sellDepthPenalty, sellLegShare, hist)
}

// TransitWait is the short dead time between a filled buy and the relisting,
// anywhere from zero to a minute.
func (e *Estimator) TransitWait() time.Duration {
	return time.Duration(e.rng.Float64() * float64(time.Minute))
}

func (e *Estimator) fillWait(depth int64, penalty time.Duration, legShare float64, hist *memory.Entry) time.Duration {
	estimated := float64(baseFillWait) + math.Log10(float64(depth)+1)*float64(penalty)

	calibration := 1.0
	if hist != nil {
		calibration = knownItemCalibration
		if hist.AvgDuration > 0 {
			historical := hist.AvgDuration * float64(time.Hour) * legShare
			estimated = (historical + estimated) / 2
		}
	}

	return time.Duration(estimated * e.rng.Float64() * calibration)
}

// holdEstimate guesses the full flip duration for a fresh position, used as
// the provisional exit timestamp until the real sell wait is computed.
func (e *Estimator) holdEstimate(buysQty int64) time.Duration {
	var hours float64
	switch {
	case buysQty > 10000:
		hours = 0.25 + e.rng.Float64()*0.5
	case buysQty > 2000:
		hours = 1 + e.rng.Float64()*2
	case buysQty > 500:
		hours = 4 + e.rng.Float64()*8
	default:
		hours = 12 + e.rng.Float64()*24
	}
	return time.Duration(hours * float64(time.Hour))
}
