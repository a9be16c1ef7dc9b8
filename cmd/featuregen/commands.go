package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ohlcv-features/config"
	"ohlcv-features/internal/features"
	"ohlcv-features/internal/logger"
	"ohlcv-features/internal/markethours"
	"ohlcv-features/internal/pipeline"
	"ohlcv-features/internal/sink"
	"ohlcv-features/internal/source/binance"
	"ohlcv-features/internal/source/file"
)

func newRunCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Fetch closed daily candles, compute features and write them once",
		Example: `  featuregen run --symbol BTCUSDT --since 2017-01-01 --sink csv --dir data
  featuregen run --provider file --input btc.json --sink sqlite --dsn features.db --mode append`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			obs := startObservability(cfg)
			defer obs.stop()

			runner, job, closeSink, err := newRunner(ctx, cfg, obs)
			if err != nil {
				return err
			}
			defer closeSink()

			res, err := runner.Run(ctx, job)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows written to %s %s (%s)\n",
				res.RunID, res.Written, runner.Sink.Kind(), job.Tab, res.Duration.Round(time.Millisecond))
			return nil
		},
	}
}

func newWatchCmd(f *flags) *cobra.Command {
	var streamBase string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run once, then recompute every time a daily session closes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			obs := startObservability(cfg)
			defer obs.stop()

			runner, job, closeSink, err := newRunner(ctx, cfg, obs)
			if err != nil {
				return err
			}
			defer closeSink()

			logger.FromContext(ctx).Info("watching daily closes",
				"symbol", cfg.Symbol,
				"next_close", markethours.StatusString(time.Now()),
			)
			w := binance.NewWatcher(streamBase, obs.metrics, obs.health)
			if err := runner.Watch(ctx, job, w); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&streamBase, "stream-base", binance.DefaultStreamBase, "websocket base URL")
	return cmd
}

// newRunner opens the configured source and sink. The returned func closes
// the sink.
func newRunner(ctx context.Context, cfg *config.Config, obs *observability) (*pipeline.Runner, pipeline.Job, func(), error) {
	since, err := cfg.SinceTime()
	if err != nil {
		return nil, pipeline.Job{}, nil, err
	}
	mode, err := sink.ParseMode(cfg.Sink.Mode)
	if err != nil {
		return nil, pipeline.Job{}, nil, err
	}
	src, err := openSource(cfg, obs.metrics)
	if err != nil {
		return nil, pipeline.Job{}, nil, err
	}
	dst, err := openSink(cfg, obs.metrics)
	if err != nil {
		return nil, pipeline.Job{}, nil, err
	}
	obs.watchDependencies(ctx, dst)

	runner := &pipeline.Runner{Source: src, Sink: dst, Metrics: obs.metrics, Health: obs.health}
	job := pipeline.Job{Symbol: cfg.Symbol, Since: since, Tab: cfg.Sink.Tab, Mode: mode}
	return runner, job, func() { dst.Close() }, nil
}

func newComputeCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "compute <klines.json>",
		Short: "Compute the feature matrix of a kline file and print it as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := file.New(args[0])
			src.ClosedOnly = !all
			raws, err := src.Klines(cmd.Context(), "", time.Time{})
			if err != nil {
				return err
			}
			m, err := features.Compute(raws)
			if err != nil {
				return err
			}
			_, err = sink.NewStdout(cmd.OutOrStdout()).Write(cmd.Context(), "stdout", m, sink.Replace)
			return err
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "keep klines of sessions that have not closed yet")
	return cmd
}

func newHeaderCmd() *cobra.Command {
	var names bool
	cmd := &cobra.Command{
		Use:   "header",
		Short: "Print the column layout, one column per line",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			cols := features.Header()
			if names {
				cols = features.Names()
			}
			fmt.Fprintf(out, "# header version %d, %d columns\n", features.HeaderVersion, len(cols))
			for _, c := range cols {
				fmt.Fprintln(out, c)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&names, "names", false, "print short names without descriptions")
	return cmd
}

func newVerifyCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that the destination holds a feature header",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			dst, err := openSink(cfg, nil)
			if err != nil {
				return err
			}
			defer dst.Close()

			h, err := dst.Header(cmd.Context(), cfg.Sink.Tab)
			if err != nil {
				return err
			}
			if err := features.VerifyHeader(h); err != nil {
				return fmt.Errorf("%s %s: %w", dst.Kind(), cfg.Sink.Tab, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: ok (%d columns)\n", dst.Kind(), cfg.Sink.Tab, len(h))
			if len(h) != len(features.Header()) {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %d columns stored, current layout has %d\n", len(h), len(features.Header()))
			}
			return nil
		},
	}
}
