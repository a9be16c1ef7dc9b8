package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"ohlcv-features/config"
	"ohlcv-features/internal/logger"
	"ohlcv-features/internal/metrics"
	"ohlcv-features/internal/model"
	"ohlcv-features/internal/sink"
	"ohlcv-features/internal/source/binance"
	"ohlcv-features/internal/source/file"
)

const serviceName = "featuregen"

// flags holds CLI overrides; only flags the user set are applied.
type flags struct {
	provider    string
	symbol      string
	since       string
	input       string
	sink        string
	dsn         string
	dir         string
	tab         string
	mode        string
	metricsAddr string
	logLevel    string
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:   serviceName,
		Short: "Daily OHLCV feature matrix generator",
		Long: `featuregen turns an instrument's closed daily candles into a 72-column
feature matrix (flow, momentum, money flow, bands, directional, pivots and
fibonacci families) and writes it to a CSV, Parquet, SQL or Redis sink.

Settings come from defaults, FEATURES_CONFIG (YAML), .env and the
environment; flags override them.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.provider, "provider", "", "candle source: binance|file")
	pf.StringVar(&f.symbol, "symbol", "", "instrument symbol, e.g. BTCUSDT")
	pf.StringVar(&f.since, "since", "", "first session to fetch (YYYY-MM-DD)")
	pf.StringVar(&f.input, "input", "", "kline JSON file for --provider file")
	pf.StringVar(&f.sink, "sink", "", "sink kind: csv|parquet|sqlite|postgres|redis|stdout")
	pf.StringVar(&f.dsn, "dsn", "", "sqlite path or postgres URL")
	pf.StringVar(&f.dir, "dir", "", "output directory for csv and parquet sinks")
	pf.StringVar(&f.tab, "tab", "", "destination name (defaults to the symbol)")
	pf.StringVar(&f.mode, "mode", "", "write mode: replace|append")
	pf.StringVar(&f.metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address")
	pf.StringVar(&f.logLevel, "log-level", "", "debug|info|warn|error")

	root.AddCommand(
		newRunCmd(f),
		newWatchCmd(f),
		newComputeCmd(),
		newHeaderCmd(),
		newVerifyCmd(f),
	)
	return root
}

// loadConfig reads configuration and applies the flags that were set.
func loadConfig(cmd *cobra.Command, f *flags) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	tabFromSymbol := cfg.Sink.Tab == cfg.Symbol
	set := func(name string, dst *string, v string) {
		if cmd.Flags().Changed(name) {
			*dst = v
		}
	}
	set("provider", &cfg.Provider, f.provider)
	set("symbol", &cfg.Symbol, f.symbol)
	set("since", &cfg.Since, f.since)
	set("input", &cfg.InputFile, f.input)
	set("sink", &cfg.Sink.Kind, f.sink)
	set("dsn", &cfg.Sink.DSN, f.dsn)
	set("dir", &cfg.Sink.Dir, f.dir)
	set("mode", &cfg.Sink.Mode, f.mode)
	set("metrics-addr", &cfg.MetricsAddr, f.metricsAddr)
	set("log-level", &cfg.LogLevel, f.logLevel)
	if cmd.Flags().Changed("tab") {
		cfg.Sink.Tab = f.tab
	} else if tabFromSymbol {
		cfg.Sink.Tab = ""
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.Init(serviceName, logger.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// observability holds the process metrics and health state.
type observability struct {
	metrics *metrics.Metrics
	health  *metrics.HealthStatus
	server  *metrics.Server
}

func startObservability(cfg *config.Config) *observability {
	o := &observability{
		metrics: metrics.NewMetrics(nil),
		health:  metrics.NewHealthStatus(),
	}
	if cfg.MetricsAddr != "" {
		o.server = metrics.NewServer(cfg.MetricsAddr, o.health, prometheus.DefaultGatherer)
		o.server.Start()
	}
	return o
}

func (o *observability) stop() {
	if o.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	o.server.Stop(ctx)
}

// watchDependencies probes the sink's backing store for /healthz.
func (o *observability) watchDependencies(ctx context.Context, s sink.Sink) {
	switch v := s.(type) {
	case *sink.Instrumented:
		o.watchDependencies(ctx, v.Sink)
	case *sink.Redis:
		o.health.StartLivenessChecker(ctx, v.Client(), nil, 15*time.Second)
	case *sink.SQL:
		o.health.StartLivenessChecker(ctx, nil, v.DB().DB, 15*time.Second)
	}
}

func openSource(cfg *config.Config, m *metrics.Metrics) (model.CandleSource, error) {
	switch cfg.Provider {
	case "binance":
		return binance.NewClient(binance.Config{
			Bases:           cfg.Binance.Bases,
			Pacing:          cfg.Binance.Pacing(),
			Timeout:         cfg.Binance.Timeout(),
			BreakerFailures: cfg.Binance.BreakerFailures,
			BreakerCooldown: cfg.Binance.BreakerCooldown(),
		}, m), nil
	case "file":
		return file.New(cfg.InputFile), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func openSink(cfg *config.Config, m *metrics.Metrics) (sink.Sink, error) {
	s, err := sink.Open(sink.Config{
		Kind:          cfg.Sink.Kind,
		Dir:           cfg.Sink.Dir,
		DSN:           cfg.Sink.DSN,
		RedisAddr:     cfg.Redis.Addr,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("sink opened", "kind", s.Kind())
	return sink.Instrument(s, m), nil
}
