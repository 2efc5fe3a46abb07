package advisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"gw2-tradepost-bot/internal/market"
)

type mockAdvisor struct {
	mock.Mock
}

func (m *mockAdvisor) Analyze(ctx context.Context, item market.Item) (Recommendation, error) {
	args := m.Called(ctx, item)
	return args.Get(0).(Recommendation), args.Error(1)
}

func (m *mockAdvisor) Name() string { return "mock" }

func healthyItem() market.Item {
	return market.Item{
		ItemMeta:       market.ItemMeta{ID: 1, Name: "Mithril Ore"},
		BuyPrice:       100,
		SellPrice:      200,
		BuysQty:        10000,
		SellsQty:       10000,
		ROI:            70,
		LiquidityScore: 70,
		FlipTime:       market.FlipFast,
	}
}

func TestHeuristic_BuysHealthyItem(t *testing.T) {
	rec, err := NewHeuristic().Analyze(context.Background(), healthyItem())

	assert.NoError(t, err)
	assert.Equal(t, VerdictBuy, rec.Recommendation)
	assert.Equal(t, RiskLow, rec.RiskLevel)
	assert.Equal(t, int64(100), rec.SuggestedQty, "1% of buy-side depth")
	assert.Equal(t, string(market.FlipFast), rec.Velocity)
}

func TestHeuristic_AvoidsThinROI(t *testing.T) {
	item := healthyItem()
	item.ROI = 12

	rec, _ := NewHeuristic().Analyze(context.Background(), item)

	assert.Equal(t, VerdictAvoid, rec.Recommendation)
	assert.Zero(t, rec.SuggestedQty)
}

func TestHeuristic_FlagsManipulationAndThinSupply(t *testing.T) {
	item := healthyItem()
	item.IsManipulated = true

	rec, _ := NewHeuristic().Analyze(context.Background(), item)
	assert.Equal(t, VerdictAvoid, rec.Recommendation)
	assert.Equal(t, RiskHigh, rec.RiskLevel)

	item = healthyItem()
	item.SellsQty = 30
	rec, _ = NewHeuristic().Analyze(context.Background(), item)
	assert.Equal(t, RiskHigh, rec.RiskLevel)
}

func TestResilient_UsesPrimaryWhenHealthy(t *testing.T) {
	primary := new(mockAdvisor)
	want := Recommendation{Recommendation: VerdictBuy, Strategy: "mock"}
	primary.On("Analyze", mock.Anything, mock.Anything).Return(want, nil)

	r := NewResilient(primary, time.Second, zap.NewNop())
	rec, err := r.Analyze(context.Background(), healthyItem())

	assert.NoError(t, err)
	assert.Equal(t, "mock", rec.Strategy)
	primary.AssertExpectations(t)
}

func TestResilient_FallsBackOnError(t *testing.T) {
	primary := new(mockAdvisor)
	primary.On("Analyze", mock.Anything, mock.Anything).
		Return(Recommendation{}, errors.New("upstream unavailable"))

	r := NewResilient(primary, time.Second, zap.NewNop())
	rec, err := r.Analyze(context.Background(), healthyItem())

	assert.NoError(t, err)
	assert.Equal(t, "heuristic", rec.Strategy)
	assert.Equal(t, VerdictBuy, rec.Recommendation)
}

func TestResilient_FallsBackOnTimeout(t *testing.T) {
	primary := new(mockAdvisor)
	primary.On("Analyze", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			<-ctx.Done()
		}).
		Return(Recommendation{}, context.DeadlineExceeded)

	r := NewResilient(primary, 20*time.Millisecond, zap.NewNop())

	start := time.Now()
	rec, err := r.Analyze(context.Background(), healthyItem())

	assert.NoError(t, err)
	assert.Equal(t, "heuristic", rec.Strategy)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "must not block past the deadline")
}

func TestResilient_NilPrimaryDegradesToHeuristic(t *testing.T) {
	r := NewResilient(nil, time.Second, zap.NewNop())

	rec, err := r.Analyze(context.Background(), healthyItem())

	assert.NoError(t, err)
	assert.Equal(t, "heuristic", rec.Strategy)
}
