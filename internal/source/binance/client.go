// Package binance is the exchange candle source: paged REST kline history
// with failover across base URLs, and a websocket watcher for closed daily
// klines.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"ohlcv-features/internal/breaker"
	"ohlcv-features/internal/markethours"
	"ohlcv-features/internal/metrics"
	"ohlcv-features/internal/model"
)

// ErrAllEndpointsFailed is returned when no base URL served a page.
var ErrAllEndpointsFailed = errors.New("binance: all endpoints failed")

// DefaultBases are tried in order for every page.
var DefaultBases = []string{
	"https://data-api.binance.vision",
	"https://api.binance.com",
	"https://api-gcp.binance.com",
	"https://api1.binance.com",
	"https://api2.binance.com",
	"https://api3.binance.com",
	"https://api4.binance.com",
}

const (
	klinesPath = "/api/v3/klines"
	interval   = "1d"

	// PageLimit is the exchange's maximum klines per request.
	PageLimit = 1000
)

// Config holds REST client settings.
type Config struct {
	Bases   []string
	Pacing  time.Duration // pause before each request
	Timeout time.Duration // per request

	BreakerFailures int
	BreakerCooldown time.Duration
}

// DefaultConfig mirrors the exchange's public-endpoint etiquette.
func DefaultConfig() Config {
	return Config{
		Bases:           DefaultBases,
		Pacing:          120 * time.Millisecond,
		Timeout:         30 * time.Second,
		BreakerFailures: 3,
		BreakerCooldown: time.Minute,
	}
}

// Client implements model.CandleSource against the exchange REST API.
type Client struct {
	cfg      Config
	http     *http.Client
	breakers *breaker.Group
	metrics  *metrics.Metrics
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
}

var _ model.CandleSource = (*Client)(nil)

// NewClient creates a REST client. m may be nil.
func NewClient(cfg Config, m *metrics.Metrics) *Client {
	if len(cfg.Bases) == 0 {
		cfg.Bases = DefaultBases
	}
	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		metrics: m,
		now:     time.Now,
		sleep:   sleepCtx,
	}
	c.breakers = breaker.NewGroup(cfg.BreakerFailures, cfg.BreakerCooldown, c.onBreakerChange)
	return c
}

func (c *Client) onBreakerChange(name string, from, to breaker.State) {
	slog.Warn("binance endpoint breaker", "endpoint", name, "from", from.String(), "to", to.String())
	if c.metrics == nil {
		return
	}
	c.metrics.BreakerState.WithLabelValues(name).Set(float64(to))
	if to == breaker.StateOpen {
		c.metrics.BreakerTrips.WithLabelValues(name).Inc()
	}
}

// Klines returns every closed daily kline of symbol with openTime ≥ since,
// oldest first. The still-open session is never included.
func (c *Client) Klines(ctx context.Context, symbol string, since time.Time) ([]model.RawKline, error) {
	start := time.Now()
	cursor := since.UTC().UnixMilli()
	lastClosed := markethours.LastClosedSessionEnd(c.now()).UnixMilli()

	var out []model.RawKline
	for {
		page, err := c.page(ctx, symbol, cursor)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		for _, k := range page {
			closeMs, err := fieldMillis(k, model.FieldCloseTime)
			if err != nil {
				return nil, err
			}
			if closeMs <= lastClosed {
				out = append(out, k)
			}
		}
		if len(page) < PageLimit {
			break
		}
		openMs, err := fieldMillis(page[len(page)-1], model.FieldOpenTime)
		if err != nil {
			return nil, err
		}
		cursor = openMs + 1
	}

	if c.metrics != nil {
		c.metrics.BarsFetched.Add(float64(len(out)))
		c.metrics.FetchDur.Observe(time.Since(start).Seconds())
	}
	slog.Debug("binance klines fetched", "symbol", symbol, "bars", len(out), "since", since.Format("2006-01-02"))
	return out, nil
}

// page fetches one page, trying each base in order.
func (c *Client) page(ctx context.Context, symbol string, startMs int64) ([]model.RawKline, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(PageLimit))
	q.Set("startTime", strconv.FormatInt(startMs, 10))
	path := klinesPath + "?" + q.Encode()

	var lastErr error
	for _, base := range c.cfg.Bases {
		if err := c.sleep(ctx, c.cfg.Pacing); err != nil {
			return nil, err
		}

		var page []model.RawKline
		err := c.breakers.Get(base).Execute(ctx, func(ctx context.Context) error {
			var err error
			page, err = c.get(ctx, base, base+path)
			return err
		})
		if err == nil {
			return page, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("binance endpoint failed", "endpoint", base, "error", err)
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrAllEndpointsFailed, lastErr)
}

func (c *Client) get(ctx context.Context, base, u string) ([]model.RawKline, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(base, "error")
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()
	c.observe(base, strconv.Itoa(resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 160))
		return nil, fmt.Errorf("HTTP %d %s", resp.StatusCode, string(body))
	}

	var page []model.RawKline
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return page, nil
}

func (c *Client) observe(base, status string) {
	if c.metrics != nil {
		c.metrics.FetchRequests.WithLabelValues(base, status).Inc()
	}
}

func fieldMillis(k model.RawKline, f int) (int64, error) {
	if len(k) <= f {
		return 0, fmt.Errorf("%w: %d fields", model.ErrMalformedBar, len(k))
	}
	ms, err := strconv.ParseInt(k[f], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: time field %d: %v", model.ErrMalformedBar, f, err)
	}
	return ms, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
