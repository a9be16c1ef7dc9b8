// Package file is a candle source that replays klines saved as a JSON array
// of exchange kline arrays.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"ohlcv-features/internal/markethours"
	"ohlcv-features/internal/model"
)

// Source reads klines from Path on every call.
type Source struct {
	Path string

	// ClosedOnly drops klines whose session had not closed at Now.
	ClosedOnly bool
	Now        func() time.Time
}

var _ model.CandleSource = (*Source)(nil)

// New creates a file source that admits only closed sessions.
func New(path string) *Source {
	return &Source{Path: path, ClosedOnly: true, Now: time.Now}
}

// Klines returns the saved klines with openTime ≥ since. The symbol is not
// checked; a file holds one instrument.
func (s *Source) Klines(ctx context.Context, symbol string, since time.Time) ([]model.RawKline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("file source: %w", err)
	}
	defer f.Close()

	var all []model.RawKline
	if err := json.NewDecoder(f).Decode(&all); err != nil {
		return nil, fmt.Errorf("file source: decode %s: %w", s.Path, err)
	}

	sinceMs := since.UTC().UnixMilli()
	out := all[:0]
	for i, k := range all {
		if len(k) < model.KlineFields {
			return nil, fmt.Errorf("file source: kline %d: %w: %d fields", i, model.ErrMalformedBar, len(k))
		}
		open, err := strconv.ParseInt(k[model.FieldOpenTime], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("file source: kline %d: %w: openTime: %v", i, model.ErrMalformedBar, err)
		}
		if open >= sinceMs {
			out = append(out, k)
		}
	}

	if s.ClosedOnly {
		now := time.Now
		if s.Now != nil {
			now = s.Now
		}
		out = markethours.ClosedOnly(out, closeTime, now())
	}
	return out, nil
}

// closeTime reads a kline's close time; unparsable values sort as open so
// the normalizer reports them.
func closeTime(k model.RawKline) time.Time {
	ms, err := strconv.ParseInt(k[model.FieldCloseTime], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
