// Package pipeline runs feature jobs: fetch closed daily klines from a
// candle source, compute the feature matrix and hand it to a sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ohlcv-features/internal/features"
	"ohlcv-features/internal/logger"
	"ohlcv-features/internal/metrics"
	"ohlcv-features/internal/model"
	"ohlcv-features/internal/sink"
)

// JobName labels the completion log line.
const JobName = "daily_features"

// Job describes one run.
type Job struct {
	Symbol string
	Since  time.Time
	Tab    string
	Mode   sink.Mode
}

// Result summarises a successful run.
type Result struct {
	RunID    string
	Bars     int
	Rows     int
	Written  int
	Duration time.Duration
}

// KlineStream delivers closed klines as they happen.
type KlineStream interface {
	Watch(ctx context.Context, symbol string, out chan<- model.RawKline) error
}

// Runner wires a source to a sink. Metrics and Health are optional.
type Runner struct {
	Source  model.CandleSource
	Sink    sink.Sink
	Metrics *metrics.Metrics
	Health  *metrics.HealthStatus
	Now     func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Run executes job once under a fresh run id.
func (r *Runner) Run(ctx context.Context, job Job) (Result, error) {
	res := Result{RunID: logger.NewRunID()}
	ctx = logger.WithRunID(ctx, res.RunID)
	log := logger.FromContext(ctx)
	start := time.Now()

	log.Info("job started",
		"job", JobName,
		"symbol", job.Symbol,
		"since", job.Since.Format(time.DateOnly),
		"tab", job.Tab,
		"write_mode", string(job.Mode),
	)

	err := r.run(ctx, job, &res)
	res.Duration = time.Since(start)
	r.record(res, err)

	if err != nil {
		log.Error("job failed", "job", JobName, "tab", job.Tab, "error", err, "duration_ms", res.Duration.Milliseconds())
		return res, err
	}
	log.Info("job complete",
		"job", JobName,
		"rows", res.Written,
		"tab", job.Tab,
		"write_mode", string(job.Mode),
		"bars", res.Bars,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

func (r *Runner) run(ctx context.Context, job Job, res *Result) error {
	raws, err := r.Source.Klines(ctx, job.Symbol, job.Since)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", job.Symbol, err)
	}
	res.Bars = len(raws)

	computeStart := time.Now()
	m, err := features.Compute(raws)
	if err != nil {
		if r.Metrics != nil && (errors.Is(err, model.ErrMalformedBar) || errors.Is(err, model.ErrOutOfOrder)) {
			r.Metrics.MalformedRuns.Inc()
		}
		return fmt.Errorf("compute %s: %w", job.Symbol, err)
	}
	res.Rows = m.Len()
	if r.Metrics != nil {
		r.Metrics.ComputeDur.Observe(time.Since(computeStart).Seconds())
		r.Metrics.RowsComputed.Add(float64(m.Len()))
	}

	n, err := r.Sink.Write(ctx, job.Tab, m, job.Mode)
	if err != nil {
		return fmt.Errorf("write %s to %s: %w", job.Tab, r.Sink.Kind(), err)
	}
	res.Written = n
	return nil
}

func (r *Runner) record(res Result, err error) {
	at := r.now()
	if r.Health != nil {
		r.Health.RecordRun(at, res.Written, err)
	}
	if r.Metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.Metrics.JobsTotal.WithLabelValues(result).Inc()
	if err == nil {
		r.Metrics.LastRunUTC.Set(float64(at.Unix()))
	}
}

// Watch runs job once, then again in append mode every time stream reports
// a closed kline. Failed runs are logged and do not stop watching. Watch
// returns when ctx is cancelled or the stream gives up.
func (r *Runner) Watch(ctx context.Context, job Job, stream KlineStream) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	closed := make(chan model.RawKline, 16)
	streamErr := make(chan error, 1)
	go func() { streamErr <- stream.Watch(ctx, job.Symbol, closed) }()

	r.Run(ctx, job)

	next := job
	next.Mode = sink.Append
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-streamErr:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("kline stream: %w", err)
		case k := <-closed:
			logger.FromContext(ctx).Info("session closed", "symbol", job.Symbol, "open_time", first(k))
			// Drain bursts so one run covers several closes.
			for len(closed) > 0 {
				<-closed
			}
			r.Run(ctx, next)
		}
	}
}

func first(k model.RawKline) string {
	if len(k) == 0 {
		return ""
	}
	return k[0]
}
