package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"ohlcv-features/internal/metrics"
	"ohlcv-features/internal/model"
)

// DefaultStreamBase is the public market-data websocket endpoint.
const DefaultStreamBase = "wss://stream.binance.com:9443/ws"

// klineEvent is a `<symbol>@kline_1d` stream message.
type klineEvent struct {
	EventType string    `json:"e"`
	EventTime int64     `json:"E"`
	Symbol    string    `json:"s"`
	Kline     klineData `json:"k"`
}

type klineData struct {
	StartTime           int64  `json:"t"`
	CloseTime           int64  `json:"T"`
	Interval            string `json:"i"`
	OpenPrice           string `json:"o"`
	ClosePrice          string `json:"c"`
	HighPrice           string `json:"h"`
	LowPrice            string `json:"l"`
	Volume              string `json:"v"`
	TradeCount          int64  `json:"n"`
	IsClosed            bool   `json:"x"`
	QuoteVolume         string `json:"q"`
	TakerBuyVolume      string `json:"V"`
	TakerBuyQuoteVolume string `json:"Q"`
	Ignore              string `json:"B"`
}

// raw lays the event out in REST kline field order.
func (k klineData) raw() model.RawKline {
	return model.RawKline{
		strconv.FormatInt(k.StartTime, 10),
		k.OpenPrice,
		k.HighPrice,
		k.LowPrice,
		k.ClosePrice,
		k.Volume,
		strconv.FormatInt(k.CloseTime, 10),
		k.QuoteVolume,
		strconv.FormatInt(k.TradeCount, 10),
		k.TakerBuyVolume,
		k.TakerBuyQuoteVolume,
		k.Ignore,
	}
}

// Watcher follows the daily kline stream of one symbol and reports each
// kline once the exchange marks it closed.
type Watcher struct {
	Base   string
	Dialer *websocket.Dialer

	// Reconnect backoff
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration

	Metrics *metrics.Metrics      // optional
	Health  *metrics.HealthStatus // optional
}

// NewWatcher creates a watcher on base (DefaultStreamBase if empty).
func NewWatcher(base string, m *metrics.Metrics, h *metrics.HealthStatus) *Watcher {
	if base == "" {
		base = DefaultStreamBase
	}
	return &Watcher{
		Base:          strings.TrimRight(base, "/"),
		Dialer:        websocket.DefaultDialer,
		RetryDelay:    time.Second,
		MaxRetryDelay: time.Minute,
		Metrics:       m,
		Health:        h,
	}
}

// StreamURL is the websocket URL for symbol's daily klines.
func (w *Watcher) StreamURL(symbol string) string {
	return fmt.Sprintf("%s/%s@kline_%s", w.Base, strings.ToLower(symbol), interval)
}

// Watch connects and delivers closed klines to out until ctx is done,
// reconnecting with exponential backoff. It returns ctx.Err().
func (w *Watcher) Watch(ctx context.Context, symbol string, out chan<- model.RawKline) error {
	delay := w.RetryDelay
	for {
		connected, err := w.session(ctx, symbol, out)
		w.setConnected(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			delay = w.RetryDelay
		}
		slog.Warn("kline stream disconnected", "symbol", symbol, "error", err, "retry_in", delay.String())
		if w.Metrics != nil {
			w.Metrics.StreamReconnects.Inc()
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
		delay *= 2
		if delay > w.MaxRetryDelay {
			delay = w.MaxRetryDelay
		}
	}
}

// session runs one connection. connected reports whether the dial worked.
func (w *Watcher) session(ctx context.Context, symbol string, out chan<- model.RawKline) (connected bool, err error) {
	conn, _, err := w.Dialer.DialContext(ctx, w.StreamURL(symbol), nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	w.setConnected(true)
	slog.Info("kline stream connected", "symbol", symbol)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		k, ok, err := parseClosedKline(data)
		if err != nil {
			slog.Warn("kline stream parse error", "error", err)
			continue
		}
		if !ok {
			continue
		}
		if w.Metrics != nil {
			w.Metrics.StreamClosedBars.Inc()
		}
		select {
		case out <- k:
		case <-ctx.Done():
			return true, ctx.Err()
		}
	}
}

func (w *Watcher) setConnected(v bool) {
	if w.Health != nil {
		w.Health.SetStreamConnected(v)
	}
}

// parseClosedKline decodes a stream message; ok is false for updates of a
// still-open kline and for other event types.
func parseClosedKline(data []byte) (model.RawKline, bool, error) {
	var ev klineEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, false, err
	}
	if ev.EventType != "kline" || !ev.Kline.IsClosed {
		return nil, false, nil
	}
	return ev.Kline.raw(), true, nil
}
