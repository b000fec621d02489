// Package clobapi is a client for the Polymarket CLOB trade-history API,
// the external market-data collaborator the indexer pulls fills from.
package clobapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"whaletracker/config"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrUpstream wraps failures of the external collaborator after retries
// are exhausted.
var ErrUpstream = errors.New("clob upstream failure")

// TradeRecord is one fill as returned by the CLOB API.
type TradeRecord struct {
	ID           string  `json:"id"`
	Wallet       string  `json:"wallet"`
	MarketID     string  `json:"market_id"`
	OutcomeIndex int     `json:"outcome_index"`
	Side         string  `json:"side"` // BUY or SELL
	Size         float64 `json:"size"`
	Price        float64 `json:"price"`
	Value        float64 `json:"value,omitempty"`
	Fee          float64 `json:"fee,omitempty"`
	TxHash       string  `json:"source_tx_id"`
	BlockNumber  int64   `json:"block_number,omitempty"`
	Timestamp    int64   `json:"timestamp"`
}

// HistoryOptions narrows a trade-history query.
type HistoryOptions struct {
	Since  int64 // Only fills after this unix timestamp
	Limit  int
	Offset int
}

// Client talks to the CLOB API with a fixed inter-call rate limit and
// bounded retries per request.
type Client struct {
	logger     *zap.Logger
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	maxRetries int
}

func NewClient(logger *zap.Logger, cfg *config.Config) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	maxRetries := cfg.Clob.MaxRetries
	if maxRetries < 1 {
		maxRetries = 3
	}
	interval := cfg.Clob.RateInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	return &Client{
		logger: logger,
		httpClient: &http.Client{
			Timeout: cfg.Clob.RequestTimeout,
		},
		baseURL:    strings.TrimRight(cfg.Clob.BaseURL, "/"),
		limiter:    rate.NewLimiter(rate.Every(interval), 1),
		maxRetries: maxRetries,
	}
}

// GetTradeHistory fetches fills for a wallet, oldest first as returned by
// the API.
func (c *Client) GetTradeHistory(ctx context.Context, wallet string, opts HistoryOptions) ([]TradeRecord, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return nil, fmt.Errorf("wallet is empty")
	}

	u, err := url.Parse(c.baseURL + "/trades")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	q := u.Query()
	q.Set("maker", wallet)
	if opts.Limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", fmt.Sprintf("%d", opts.Offset))
	}
	if opts.Since > 0 {
		q.Set("after", fmt.Sprintf("%d", opts.Since))
	}
	u.RawQuery = q.Encode()

	var payload struct {
		Data []TradeRecord `json:"data"`
	}
	if err := c.doGet(ctx, u.String(), &payload); err != nil {
		return nil, fmt.Errorf("get trade history: %w", err)
	}

	return payload.Data, nil
}

// doGet performs a rate-limited GET with bounded retries and decodes the
// JSON response. Retries cover transport errors, 429 and 5xx.
func (c *Client) doGet(ctx context.Context, url string, dest any) error {
	var lastErr error

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		lastErr = c.tryGet(ctx, url, dest)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}

		if attempt < c.maxRetries {
			c.logger.Warn("clob request failed, retrying",
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
			backoff := time.Duration(attempt) * 500 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("%w: %d attempts: %v", ErrUpstream, c.maxRetries, lastErr)
}

// statusError marks an HTTP-level failure so retryability can be decided
// per status code.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status=%d body=%s", e.code, e.body)
}

func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	// Transport errors (timeouts, resets) are retryable; context
	// cancellation is not.
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (c *Client) tryGet(ctx context.Context, url string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		return &statusError{code: resp.StatusCode, body: truncate(string(body), 256)}
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
