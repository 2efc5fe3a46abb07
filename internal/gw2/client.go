package gw2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"gw2-tradepost-bot/internal/config"
	"gw2-tradepost-bot/internal/market"
)

// ErrUnauthorized means the account credential was rejected. Never retried.
var ErrUnauthorized = errors.New("gw2: access token rejected")

// TransactionKind selects the buy or sell side of the account transaction API.
type TransactionKind string

// TransactionState selects open orders or historical fills.
type TransactionState string

const (
	KindBuys  TransactionKind = "buys"
	KindSells TransactionKind = "sells"

	StateCurrent TransactionState = "current"
	StateHistory TransactionState = "history"
)

// Transaction is one entry from /commerce/transactions. Current entries carry
// Created; historical fills carry Purchased.
type Transaction struct {
	ID        int64     `json:"id"`
	ItemID    int       `json:"item_id"`
	Price     int64     `json:"price"`
	Quantity  int64     `json:"quantity"`
	Created   time.Time `json:"created"`
	Purchased time.Time `json:"purchased"`
}

// FilledAt returns the best-known fill timestamp for the transaction.
func (t Transaction) FilledAt() time.Time {
	if !t.Purchased.IsZero() {
		return t.Purchased
	}
	return t.Created
}

// ClientInterface defines the interface for the GW2 REST API client.
type ClientInterface interface {
	Ping(ctx context.Context) error
	GetItems(ctx context.Context, ids []int) ([]market.ItemMeta, error)
	GetPrices(ctx context.Context, ids []int) ([]market.PriceBook, error)
	GetTradableItemIDs(ctx context.Context) ([]int, error)
	GetTransactions(ctx context.Context, kind TransactionKind, state TransactionState) ([]Transaction, error)
}

// Client is a rate-limited client for the GW2 REST API.
// It implements ClientInterface.
type Client struct {
	client      *resty.Client
	accessToken string
	logger      *zap.Logger
	limiter     *rate.Limiter
	maxRetries  int

	metaMu    sync.Mutex
	metaCache map[int]market.ItemMeta // item metadata never changes
}

// ensure Client implements the interface
var _ ClientInterface = (*Client)(nil)

// NewClient creates a new GW2 REST API client.
func NewClient(cfg *config.GW2, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second)

	// rate.Limit is requests per second; dispatch order is FIFO.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}

	return &Client{
		client:      client,
		accessToken: cfg.AccessToken,
		logger:      logger,
		limiter:     limiter,
		maxRetries:  retries,
		metaCache:   make(map[int]market.ItemMeta),
	}
}

// doRequest executes a request with rate limiting and bounded retry.
// Transient failures (network, 429, 5xx) are retried with backoff; 401/403
// fail fast as ErrUnauthorized; a 404 response is returned to the caller,
// which decides whether it means "empty" for that endpoint.
func (c *Client) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error

	for i := 0; i < c.maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.SetContext(ctx).Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil && resp.StatusCode() != 0 {
			switch status := resp.StatusCode(); {
			case status == http.StatusUnauthorized || status == http.StatusForbidden:
				return nil, fmt.Errorf("%w (status %d)", ErrUnauthorized, status)
			case status == http.StatusNotFound:
				return resp, nil // caller decides; often a valid empty result
			case status == http.StatusTooManyRequests:
				shouldRetry = true
				if seconds, err := strconv.Atoi(resp.Header().Get("Retry-After")); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			case status >= 500:
				shouldRetry = true
			}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		if retryAfter == 0 {
			retryAfter = time.Second << i // 1s, 2s, 4s
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxRetries, err)
}

// Ping checks basic API reachability via a public no-auth endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req := c.client.R()
	if _, err := c.doRequest(ctx, "GET", "/build", req); err != nil {
		return fmt.Errorf("failed to reach GW2 API: %w", err)
	}
	return nil
}

// GetItems fetches static metadata for a batch of ids. Metadata never
// changes, so results are memoized for the process lifetime. Unknown ids are
// omitted from the result, not errored.
func (c *Client) GetItems(ctx context.Context, ids []int) ([]market.ItemMeta, error) {
	c.metaMu.Lock()
	var missing []int
	for _, id := range ids {
		if _, ok := c.metaCache[id]; !ok {
			missing = append(missing, id)
		}
	}
	c.metaMu.Unlock()

	if len(missing) > 0 {
		var fetched []market.ItemMeta
		req := c.client.R().
			SetResult(&fetched).
			SetQueryParam("ids", joinIDs(missing))

		resp, err := c.doRequest(ctx, "GET", "/items", req)
		if err != nil {
			return nil, fmt.Errorf("failed to get items: %w", err)
		}
		// 404 means every id in the batch was unknown; skip caching.
		if resp.StatusCode() != http.StatusNotFound {
			c.metaMu.Lock()
			for _, meta := range fetched {
				c.metaCache[meta.ID] = meta
			}
			c.metaMu.Unlock()
		}
	}

	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	out := make([]market.ItemMeta, 0, len(ids))
	for _, id := range ids {
		if meta, ok := c.metaCache[id]; ok {
			out = append(out, meta)
		}
	}
	return out, nil
}

// GetPrices fetches the best bid/ask and depth for a batch of ids. Items
// without active listings are simply absent from the response.
func (c *Client) GetPrices(ctx context.Context, ids []int) ([]market.PriceBook, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var prices []market.PriceBook
	req := c.client.R().
		SetResult(&prices).
		SetQueryParam("ids", joinIDs(ids))

	resp, err := c.doRequest(ctx, "GET", "/commerce/prices", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get prices: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil // none of the ids are tradable
	}
	return prices, nil
}

// GetTradableItemIDs returns the id of every item with active listings.
func (c *Client) GetTradableItemIDs(ctx context.Context) ([]int, error) {
	var ids []int
	req := c.client.R().SetResult(&ids)

	if _, err := c.doRequest(ctx, "GET", "/commerce/prices", req); err != nil {
		return nil, fmt.Errorf("failed to get tradable item ids: %w", err)
	}
	return ids, nil
}

// GetTransactions fetches current orders or historical fills for the account.
// The API answers 404 when the account has no history in a category; that is
// a normal empty result, not an error. A malformed (non-array) body is logged
// and treated as empty so it can never crash a scan loop.
func (c *Client) GetTransactions(ctx context.Context, kind TransactionKind, state TransactionState) ([]Transaction, error) {
	// The token travels as a query parameter: most compatible across
	// proxies that strip Authorization headers.
	req := c.client.R().
		SetQueryParam("access_token", c.accessToken)

	url := fmt.Sprintf("/commerce/transactions/%s/%s", state, kind)
	resp, err := c.doRequest(ctx, "GET", url, req)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions %s/%s: %w", state, kind, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return []Transaction{}, nil
	}

	var txs []Transaction
	if err := json.Unmarshal(resp.Body(), &txs); err != nil {
		c.logger.Warn("Transaction response was not an array, treating as empty",
			zap.String("state", string(state)),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return []Transaction{}, nil
	}
	return txs, nil
}

func joinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}
