package sink

import (
	"context"
	"time"

	"ohlcv-features/internal/features"
	"ohlcv-features/internal/metrics"
)

// Instrumented records write counts, latency and failures of the wrapped
// sink.
type Instrumented struct {
	Sink
	m *metrics.Metrics
}

// Instrument wraps s; a nil m returns s unchanged.
func Instrument(s Sink, m *metrics.Metrics) Sink {
	if m == nil {
		return s
	}
	return &Instrumented{Sink: s, m: m}
}

func (i *Instrumented) Write(ctx context.Context, tab string, mx features.Matrix, mode Mode) (int, error) {
	start := time.Now()
	n, err := i.Sink.Write(ctx, tab, mx, mode)
	i.m.SinkWriteDur.WithLabelValues(i.Kind()).Observe(time.Since(start).Seconds())
	if err != nil {
		i.m.SinkErrors.WithLabelValues(i.Kind()).Inc()
		return n, err
	}
	i.m.RowsWritten.WithLabelValues(i.Kind(), string(mode)).Add(float64(n))
	return n, nil
}
