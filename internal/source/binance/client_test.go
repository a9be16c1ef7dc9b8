package binance

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"ohlcv-features/internal/metrics"
	"ohlcv-features/internal/model"
)

const dayMs = int64(24 * time.Hour / time.Millisecond)

var epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// exchange serves n consecutive daily klines from epoch.
type exchange struct {
	n      int
	mu     sync.Mutex
	starts []int64
}

func (e *exchange) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != klinesPath || r.URL.Query().Get("interval") != "1d" {
		http.NotFound(w, r)
		return
	}
	start, _ := strconv.ParseInt(r.URL.Query().Get("startTime"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	e.mu.Lock()
	e.starts = append(e.starts, start)
	e.mu.Unlock()

	page := []any{}
	for i := 0; i < e.n && len(page) < limit; i++ {
		open := epoch.UnixMilli() + int64(i)*dayMs
		if open < start {
			continue
		}
		page = append(page, []any{
			open, "100.0", "101.0", "99.0", "100.5", "10.0",
			open + dayMs - 1, "1005.0", 42, "5.0", "502.5", "0",
		})
	}
	json.NewEncoder(w).Encode(page)
}

func testClient(bases ...string) (*Client, *metrics.Metrics) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	c := NewClient(Config{
		Bases:           bases,
		Timeout:         5 * time.Second,
		BreakerFailures: 2,
		BreakerCooldown: time.Minute,
	}, m)
	return c, m
}

func TestKlines_PaginatesAndFiltersOpenSession(t *testing.T) {
	ex := &exchange{n: 1205}
	srv := httptest.NewServer(ex)
	defer srv.Close()

	c, m := testClient(srv.URL)
	// "Now" is midday of the last served day, so that bar is still open.
	c.now = func() time.Time { return epoch.Add(1204*24*time.Hour + 12*time.Hour) }

	got, err := c.Klines(context.Background(), "BTCUSDT", epoch)
	if err != nil {
		t.Fatalf("klines: %v", err)
	}
	if len(got) != 1204 {
		t.Fatalf("got %d klines, want 1204", len(got))
	}
	if len(ex.starts) != 2 {
		t.Fatalf("requests = %d, want 2 pages", len(ex.starts))
	}
	lastOfFirst := epoch.UnixMilli() + 999*dayMs
	if ex.starts[1] != lastOfFirst+1 {
		t.Errorf("second page startTime = %d, want %d", ex.starts[1], lastOfFirst+1)
	}

	cols, err := model.Normalize(got)
	if err != nil {
		t.Fatalf("fetched klines do not normalize: %v", err)
	}
	if cols.Len() != 1204 {
		t.Errorf("normalized %d bars", cols.Len())
	}
	if v := testutil.ToFloat64(m.BarsFetched); v != 1204 {
		t.Errorf("bars fetched metric = %v", v)
	}
}

func TestKlines_FailsOverToNextBase(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "teapot", http.StatusTeapot)
	}))
	defer down.Close()
	up := httptest.NewServer(&exchange{n: 3})
	defer up.Close()

	c, m := testClient(down.URL, up.URL)
	c.now = func() time.Time { return epoch.AddDate(0, 0, 10) }

	got, err := c.Klines(context.Background(), "BTCUSDT", epoch)
	if err != nil {
		t.Fatalf("klines: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("got %d klines", len(got))
	}
	if v := testutil.ToFloat64(m.FetchRequests.WithLabelValues(down.URL, "418")); v != 1 {
		t.Errorf("down endpoint requests = %v", v)
	}
	if v := testutil.ToFloat64(m.FetchRequests.WithLabelValues(up.URL, "200")); v != 1 {
		t.Errorf("up endpoint requests = %v", v)
	}
}

func TestKlines_AllEndpointsFail(t *testing.T) {
	var hits atomic.Int32
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()

	c, _ := testClient(down.URL)
	for i := 0; i < 2; i++ {
		_, err := c.Klines(context.Background(), "BTCUSDT", epoch)
		if !errors.Is(err, ErrAllEndpointsFailed) {
			t.Fatalf("attempt %d: err = %v", i, err)
		}
	}

	// The breaker opened after two failures; the third attempt never
	// reaches the server.
	_, err := c.Klines(context.Background(), "BTCUSDT", epoch)
	if !errors.Is(err, ErrAllEndpointsFailed) {
		t.Fatalf("err = %v", err)
	}
	if n := hits.Load(); n != 2 {
		t.Errorf("server hits = %d, want 2", n)
	}
}

func TestKlines_HonoursCancellation(t *testing.T) {
	srv := httptest.NewServer(&exchange{n: 3})
	defer srv.Close()

	c, _ := testClient(srv.URL)
	c.cfg.Pacing = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Klines(ctx, "BTCUSDT", epoch); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
