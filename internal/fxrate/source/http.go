// Package source implements the live FX data source client.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/jean-edouard-boulanger/finbot-sub000/internal/observability/tracing"
	"github.com/shopspring/decimal"
)

// Client fetches spot rate tables from an exchangerate-style HTTP API:
// GET {base_url}/latest?base=EUR returns {"base":"EUR","rates":{"USD":1.1,...}}.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client with a sane request timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    tracing.WrapHTTPClient(&http.Client{Timeout: 10 * time.Second}),
	}
}

type latestResponse struct {
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// GetRates returns, for the given base currency, the conversion rate
// from every quoted currency into the base.
func (c *Client) GetRates(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/latest?base=%s", c.baseURL, url.QueryEscape(base))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fx source request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fx source returned status %d", resp.StatusCode)
	}

	var payload latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("fx source payload: %w", err)
	}

	// The API quotes 1 base = rate units of quoted currency; the
	// resolver contract wants quoted -> base.
	table := make(map[string]decimal.Decimal, len(payload.Rates)+1)
	for currency, rate := range payload.Rates {
		if rate.IsZero() {
			continue
		}
		table[currency] = decimal.NewFromInt(1).Div(rate)
	}
	table[base] = decimal.NewFromInt(1)
	return table, nil
}
