// Package advisor produces per-item trade recommendations. The scout engine
// always goes through the Resilient wrapper, which guarantees an answer even
// when the primary strategy stalls or errors.
package advisor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"gw2-tradepost-bot/internal/market"
)

// Verdicts and risk levels used in recommendations.
const (
	VerdictBuy   = "BUY"
	VerdictAvoid = "AVOID"

	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Recommendation is one advisor verdict for one item.
type Recommendation struct {
	Recommendation string  `json:"recommendation"`
	Strategy       string  `json:"strategy"`
	RiskLevel      string  `json:"risk_level"`
	Reasoning      string  `json:"reasoning"`
	PredictedTrend string  `json:"predicted_trend"`
	Velocity       string  `json:"velocity"`
	SuggestedQty   int64   `json:"suggested_qty"`
	FillChanceBuy  float64 `json:"fill_chance_buy"`
	FillChanceSell float64 `json:"fill_chance_sell"`
}

// Advisor analyzes a market item and produces a recommendation.
type Advisor interface {
	Analyze(ctx context.Context, item market.Item) (Recommendation, error)
	Name() string
}

// Resilient wraps a primary advisor with a deadline and a heuristic
// fallback. It never blocks past the timeout and never returns an error.
type Resilient struct {
	primary  Advisor
	fallback *Heuristic
	timeout  time.Duration
	logger   *zap.Logger
}

var _ Advisor = (*Resilient)(nil)

// NewResilient wraps primary; a nil primary degrades to fallback-only.
func NewResilient(primary Advisor, timeout time.Duration, logger *zap.Logger) *Resilient {
	return &Resilient{
		primary:  primary,
		fallback: NewHeuristic(),
		timeout:  timeout,
		logger:   logger,
	}
}

func (r *Resilient) Name() string { return "resilient" }

// Analyze asks the primary advisor under a deadline and falls back to the
// heuristic on timeout or error. The fallback path cannot fail.
func (r *Resilient) Analyze(ctx context.Context, item market.Item) (Recommendation, error) {
	if r.primary == nil {
		return r.fallback.Analyze(ctx, item)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		rec Recommendation
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		rec, err := r.primary.Analyze(ctx, item)
		ch <- outcome{rec, err}
	}()

	select {
	case out := <-ch:
		if out.err == nil {
			return out.rec, nil
		}
		r.logger.Warn("Primary advisor failed, using heuristic",
			zap.String("advisor", r.primary.Name()),
			zap.Int("item_id", item.ID),
			zap.Error(out.err),
		)
	case <-ctx.Done():
		r.logger.Warn("Primary advisor timed out, using heuristic",
			zap.String("advisor", r.primary.Name()),
			zap.Int("item_id", item.ID),
		)
	}

	return r.fallback.Analyze(context.Background(), item)
}
