package gw2

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"gw2-tradepost-bot/internal/market"
)

// setupTestServer creates a test server and a Client configured to use it.
func setupTestServer(handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)

	c := &Client{
		client:      resty.New().SetBaseURL(server.URL),
		accessToken: "test-token",
		logger:      zap.NewNop(), // no-op logger for tests
		limiter:     rate.NewLimiter(rate.Inf, 1),
		maxRetries:  3,
		metaCache:   make(map[int]market.ItemMeta),
	}

	return c, server
}

func TestGetPrices(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		// Arrange
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/commerce/prices", r.URL.Path)
			assert.Equal(t, "19721,19976", r.URL.Query().Get("ids"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[
				{"id":19721,"buys":{"unit_price":3000,"quantity":40000},"sells":{"unit_price":3500,"quantity":25000}},
				{"id":19976,"buys":{"unit_price":18000,"quantity":9000},"sells":{"unit_price":19500,"quantity":7000}}
			]`))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		// Act
		prices, err := c.GetPrices(context.Background(), []int{19721, 19976})

		// Assert
		assert.NoError(t, err)
		assert.Len(t, prices, 2)
		assert.Equal(t, int64(3000), prices[0].Buys.UnitPrice)
		assert.Equal(t, int64(25000), prices[0].Sells.Quantity)
	})

	t.Run("AbsentIDsAreOmitted", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"id":1,"buys":{"unit_price":10,"quantity":5},"sells":{"unit_price":12,"quantity":3}}]`))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		prices, err := c.GetPrices(context.Background(), []int{1, 2, 3})

		assert.NoError(t, err)
		assert.Len(t, prices, 1)
	})

	t.Run("NotFoundIsEmpty", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"text":"all ids provided are invalid"}`, http.StatusNotFound)
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		prices, err := c.GetPrices(context.Background(), []int{99999999})

		assert.NoError(t, err)
		assert.Empty(t, prices)
	})

	t.Run("RetriesTransientFailure", func(t *testing.T) {
		var calls int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) == 1 {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"id":1,"buys":{"unit_price":10,"quantity":5},"sells":{"unit_price":12,"quantity":3}}]`))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		prices, err := c.GetPrices(context.Background(), []int{1})

		assert.NoError(t, err)
		assert.Len(t, prices, 1)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})
}

func TestGetItemsCachesMetadata(t *testing.T) {
	var calls int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/items", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":19721,"name":"Glob of Ectoplasm","type":"CraftingMaterial","rarity":"Rare"}]`))
	})

	c, server := setupTestServer(handler)
	defer server.Close()

	first, err := c.GetItems(context.Background(), []int{19721})
	assert.NoError(t, err)
	assert.Len(t, first, 1)
	assert.Equal(t, "Glob of Ectoplasm", first[0].Name)

	// Second fetch must be served from cache without another request.
	second, err := c.GetItems(context.Background(), []int{19721})
	assert.NoError(t, err)
	assert.Len(t, second, 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetTransactions(t *testing.T) {
	t.Run("UnauthorizedFailsFast", func(t *testing.T) {
		var calls int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			http.Error(w, `{"text":"Invalid access token"}`, http.StatusUnauthorized)
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		_, err := c.GetTransactions(context.Background(), KindBuys, StateHistory)

		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "401 must not be retried")
	})

	t.Run("NoHistoryIs404IsEmpty", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"text":"no history"}`, http.StatusNotFound)
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		txs, err := c.GetTransactions(context.Background(), KindSells, StateHistory)

		assert.NoError(t, err)
		assert.NotNil(t, txs)
		assert.Empty(t, txs)
	})

	t.Run("MalformedBodyIsEmpty", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"unexpected":"object"}`))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		txs, err := c.GetTransactions(context.Background(), KindBuys, StateCurrent)

		assert.NoError(t, err)
		assert.Empty(t, txs)
	})

	t.Run("TokenTravelsAsQueryParam", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "test-token", r.URL.Query().Get("access_token"))
			assert.Equal(t, "/commerce/transactions/current/buys", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"id":7,"item_id":19721,"price":3000,"quantity":50,"created":"2025-11-01T10:00:00Z"}]`))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		txs, err := c.GetTransactions(context.Background(), KindBuys, StateCurrent)

		assert.NoError(t, err)
		assert.Len(t, txs, 1)
		assert.Equal(t, 19721, txs[0].ItemID)
		assert.False(t, txs[0].FilledAt().IsZero())
	})
}
