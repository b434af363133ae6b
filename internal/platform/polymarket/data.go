// Package polymarket is the REST client for the Polymarket data API: trade
// history for a wallet and market resolution state.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/polycopy/internal/domain"
)

// DataClient talks to the Polymarket data API.
type DataClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewDataClient creates a client for the given API root, e.g.
// "https://data-api.polymarket.com". timeout bounds every request; zero means
// 10 seconds.
func NewDataClient(baseURL string, timeout time.Duration) *DataClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DataClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Trades returns the latest window of trades for wallet, newest first per the
// API. Ordering is not guaranteed and rows already returned by a previous
// call will appear again; the caller deduplicates.
func (c *DataClient) Trades(ctx context.Context, wallet string, limit int) ([]domain.TradeRecord, error) {
	params := url.Values{}
	// The live data API names the wallet parameter "user".
	params.Set("user", wallet)
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.doGet(ctx, "/trades?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket: get trades: %w", err)
	}

	rows, err := decodeTrades(body)
	if err != nil {
		return nil, fmt.Errorf("polymarket: decode trades: %w", err)
	}

	records := make([]domain.TradeRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.ToDomain())
	}
	return records, nil
}

// Resolution returns the settlement state of a market.
func (c *DataClient) Resolution(ctx context.Context, marketID string) (domain.Resolution, error) {
	body, err := c.doGet(ctx, "/markets/"+url.PathEscape(marketID))
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("polymarket: get market %s: %w", marketID, err)
	}

	var m APIMarket
	if err := json.Unmarshal(body, &m); err != nil {
		return domain.Resolution{}, fmt.Errorf("polymarket: decode market %s: %w", marketID, err)
	}
	return m.ToResolution(), nil
}

func (c *DataClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
