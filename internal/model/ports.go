package model

import (
	"context"
	"time"
)

// CandleSource supplies raw daily klines for a symbol. Implementations only
// return fully closed sessions, ordered by open time.
type CandleSource interface {
	// Klines returns every closed daily kline with openTime >= since.
	Klines(ctx context.Context, symbol string, since time.Time) ([]RawKline, error)
}
