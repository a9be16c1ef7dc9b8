package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the feature pipeline.
type Metrics struct {
	// Candle source
	FetchRequests *prometheus.CounterVec // labels: endpoint, status
	BarsFetched   prometheus.Counter
	FetchDur      prometheus.Histogram

	// Breaker per upstream endpoint
	BreakerState *prometheus.GaugeVec   // labels: endpoint; 0=closed, 1=open, 2=half-open
	BreakerTrips *prometheus.CounterVec // labels: endpoint

	// Feature computation
	ComputeDur    prometheus.Histogram
	RowsComputed  prometheus.Counter
	MalformedRuns prometheus.Counter

	// Tabular sink
	RowsWritten  *prometheus.CounterVec // labels: sink, mode
	SinkWriteDur *prometheus.HistogramVec
	SinkErrors   *prometheus.CounterVec

	// Jobs
	JobsTotal  *prometheus.CounterVec // labels: result=ok|error
	LastRunUTC prometheus.Gauge

	// Live stream
	StreamReconnects prometheus.Counter
	StreamClosedBars prometheus.Counter
}

// NewMetrics creates the metrics and registers them with reg. A nil reg
// means the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "featuregen_fetch_requests_total",
			Help: "Kline page requests by endpoint and outcome",
		}, []string{"endpoint", "status"}),
		BarsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "featuregen_bars_fetched_total",
			Help: "Closed daily bars returned by the candle source",
		}),
		FetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "featuregen_fetch_duration_seconds",
			Help:    "Time to fetch the full kline history",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "featuregen_breaker_state",
			Help: "Upstream circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"endpoint"}),
		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "featuregen_breaker_trips_total",
			Help: "Times an upstream circuit breaker tripped open",
		}, []string{"endpoint"}),

		ComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "featuregen_compute_duration_seconds",
			Help:    "Feature matrix compute latency",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		RowsComputed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "featuregen_rows_computed_total",
			Help: "Feature rows computed",
		}),
		MalformedRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "featuregen_malformed_runs_total",
			Help: "Computations aborted by a malformed or out-of-order bar",
		}),

		RowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "featuregen_rows_written_total",
			Help: "Rows written by sink and write mode",
		}, []string{"sink", "mode"}),
		SinkWriteDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "featuregen_sink_write_duration_seconds",
			Help:    "Sink write latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"sink"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "featuregen_sink_errors_total",
			Help: "Failed sink writes",
		}, []string{"sink"}),

		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "featuregen_jobs_total",
			Help: "Pipeline runs by result",
		}, []string{"result"}),
		LastRunUTC: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "featuregen_last_run_timestamp_seconds",
			Help: "Unix time of the last finished pipeline run",
		}),

		StreamReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "featuregen_stream_reconnects_total",
			Help: "Kline stream reconnection attempts",
		}),
		StreamClosedBars: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "featuregen_stream_closed_bars_total",
			Help: "Closed daily klines observed on the stream",
		}),
	}

	reg.MustRegister(
		m.FetchRequests,
		m.BarsFetched,
		m.FetchDur,
		m.BreakerState,
		m.BreakerTrips,
		m.ComputeDur,
		m.RowsComputed,
		m.MalformedRuns,
		m.RowsWritten,
		m.SinkWriteDur,
		m.SinkErrors,
		m.JobsTotal,
		m.LastRunUTC,
		m.StreamReconnects,
		m.StreamClosedBars,
	)

	return m
}

// HealthStatus represents the process health.
type HealthStatus struct {
	mu sync.RWMutex

	StreamConnected bool      `json:"stream_connected"`
	LastRunAt       time.Time `json:"last_run_at"`
	LastRunOK       bool      `json:"last_run_ok"`
	LastRows        int       `json:"last_rows"`
	RedisConnected  bool      `json:"redis_connected"`
	SQLOK           bool      `json:"sql_ok"`

	// Liveness probe results
	RedisLatencyMs float64   `json:"redis_latency_ms"`
	SQLLatencyMs   float64   `json:"sql_latency_ms"`
	LastCheckAt    time.Time `json:"last_check_at"`
	StartedAt      time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetStreamConnected(v bool) {
	h.mu.Lock()
	h.StreamConnected = v
	h.mu.Unlock()
}

// RecordRun stores the outcome of a pipeline run.
func (h *HealthStatus) RecordRun(at time.Time, rows int, err error) {
	h.mu.Lock()
	h.LastRunAt = at
	h.LastRunOK = err == nil
	h.LastRows = rows
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQL pings the database and records latency + health.
func (h *HealthStatus) CheckSQL(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLOK = err == nil
	h.SQLLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Nil clients are
// skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQL(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint. The process is degraded once
// its last run failed.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.LastRunAt.IsZero() && !h.LastRunOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	lastRun := ""
	if !h.LastRunAt.IsZero() {
		lastRun = h.LastRunAt.UTC().Format(time.RFC3339)
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		StreamConnected bool    `json:"stream_connected"`
		LastRunAt       string  `json:"last_run_at"`
		LastRunOK       bool    `json:"last_run_ok"`
		LastRows        int     `json:"last_rows"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLOK           bool    `json:"sql_ok"`
		SQLLatencyMs    float64 `json:"sql_latency_ms"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		StreamConnected: h.StreamConnected,
		LastRunAt:       lastRun,
		LastRunOK:       h.LastRunOK,
		LastRows:        h.LastRows,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLOK:           h.SQLOK,
		SQLLatencyMs:    h.SQLLatencyMs,
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server. gatherer may be nil for
// the default registry.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer) *Server {
	handler := promhttp.Handler()
	if gatherer != nil {
		handler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler exposes the mux, mainly for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
