// Package marketfeed implements the candle Provider against a JSON bars API.
// HTTP status codes are mapped onto the provider error taxonomy so the retry
// policy can distinguish throttling from genuine failures.
package marketfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cagrikaymak/marketsync/internal/candle"
	"github.com/cagrikaymak/marketsync/internal/provider"
)

const (
	defaultEndpoint = "https://api.marketfeed.dev/v1/bars"
	userAgent       = "marketsync/1.0"
)

// Provider fetches OHLCV bars over HTTP.
type Provider struct {
	client   *http.Client
	endpoint string
	apiKey   string
}

// New creates a Provider with the given options applied.
func New(opts ...Option) *Provider {
	p := &Provider{
		client:   &http.Client{Timeout: 30 * time.Second},
		endpoint: defaultEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Option configures a Provider.
type Option func(*Provider)

// WithClient sets the HTTP client.
func WithClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithEndpoint overrides the default bars endpoint.
func WithEndpoint(ep string) Option {
	return func(p *Provider) { p.endpoint = ep }
}

// WithAPIKey sets the API key sent with every request.
func WithAPIKey(key string) Option {
	return func(p *Provider) { p.apiKey = key }
}

// barsResponse represents the bars API payload.
type barsResponse struct {
	Symbol string `json:"symbol"`
	Bars   []struct {
		Ts     int64   `json:"t"`
		Open   float64 `json:"o"`
		High   float64 `json:"h"`
		Low    float64 `json:"l"`
		Close  float64 `json:"c"`
		Volume float64 `json:"v"`
	} `json:"bars"`
	Error *struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// Fetch retrieves bars for the symbol and range.
func (p *Provider) Fetch(ctx context.Context, symbol string, tf candle.Timeframe, from, to time.Time) ([]candle.Candle, error) {
	if symbol == "" {
		return nil, provider.NewError(provider.KindFatal, "marketfeed fetch", fmt.Errorf("symbol cannot be empty"))
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("timeframe", string(tf))
	q.Set("from", strconv.FormatInt(from.Unix(), 10))
	q.Set("to", strconv.FormatInt(to.Unix(), 10))
	reqURL := p.endpoint + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, provider.NewError(provider.KindFatal, "marketfeed fetch", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	res, err := p.client.Do(req)
	if err != nil {
		// Network errors are retryable.
		return nil, provider.NewError(provider.KindTransient, "marketfeed fetch", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		return nil, classifyStatus(res.StatusCode, symbol)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, provider.NewError(provider.KindTransient, "marketfeed fetch", err)
	}

	var resp barsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, provider.NewError(provider.KindTransient, "marketfeed fetch",
			fmt.Errorf("parse response: %w", err))
	}

	if resp.Error != nil {
		return nil, provider.NewError(provider.KindFatal, "marketfeed fetch",
			fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Description))
	}

	now := time.Now().UTC()
	rows := make([]candle.Candle, 0, len(resp.Bars))
	for _, b := range resp.Bars {
		rows = append(rows, candle.Candle{
			Symbol:    symbol,
			Timeframe: tf,
			Ts:        time.Unix(b.Ts, 0).UTC(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
			FetchedAt: now,
		})
	}

	slog.Debug("retrieved bars", "symbol", symbol, "timeframe", tf, "count", len(rows))
	return rows, nil
}

func classifyStatus(status int, symbol string) error {
	err := fmt.Errorf("marketfeed returned HTTP %d for %s", status, symbol)
	switch {
	case status == http.StatusTooManyRequests:
		return provider.NewError(provider.KindRateLimited, "marketfeed fetch", err)
	case status == http.StatusUnauthorized,
		status == http.StatusForbidden,
		status == http.StatusBadRequest,
		status == http.StatusNotFound:
		return provider.NewError(provider.KindFatal, "marketfeed fetch", err)
	case status >= 500:
		return provider.NewError(provider.KindTransient, "marketfeed fetch", err)
	default:
		return provider.NewError(provider.KindTransient, "marketfeed fetch", err)
	}
}
