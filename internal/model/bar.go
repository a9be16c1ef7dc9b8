package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"ohlcv-features/internal/series"
)

// Positional layout of an exchange daily kline.
const (
	FieldOpenTime = iota
	FieldOpen
	FieldHigh
	FieldLow
	FieldClose
	FieldVolume
	FieldCloseTime
	FieldQuoteVolume
	FieldTrades
	FieldTakerBase
	FieldTakerQuote
	FieldIgnore

	// KlineFields is the minimum number of positional fields a kline carries.
	KlineFields
)

// RawKline is one undecoded kline: positional fields kept as text. Numbers in
// the source JSON are stored in their literal form, strings unquoted.
type RawKline []string

// UnmarshalJSON accepts the exchange's mixed array of numbers and strings.
func (k *RawKline) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	out := make(RawKline, len(parts))
	for i, p := range parts {
		p = bytes.TrimSpace(p)
		switch {
		case len(p) > 0 && p[0] == '"':
			s, err := strconv.Unquote(string(p))
			if err != nil {
				return err
			}
			out[i] = s
		case string(p) == "null":
			out[i] = ""
		default:
			out[i] = string(p)
		}
	}
	*k = out
	return nil
}

// Bar is one closed daily session, decoded and validated.
type Bar struct {
	OpenTime    time.Time
	CloseTime   time.Time
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	QuoteVolume float64
	Trades      int64
	TakerBase   float64
	TakerQuote  float64
	Ignore      string
}

// Columns is the bar sequence transposed into aligned series, the input shape
// every indicator family reads from.
type Columns struct {
	OpenTime  []time.Time
	CloseTime []time.Time
	Ignore    []string

	Open        series.Series
	High        series.Series
	Low         series.Series
	Close       series.Series
	Volume      series.Series
	QuoteVolume series.Series
	Trades      series.Series
	TakerBase   series.Series
	TakerQuote  series.Series
}

// Len returns the number of bars.
func (c *Columns) Len() int { return len(c.Close) }

// NewColumns transposes bars without validating them.
func NewColumns(bars []Bar) Columns {
	n := len(bars)
	c := Columns{
		OpenTime:    make([]time.Time, n),
		CloseTime:   make([]time.Time, n),
		Ignore:      make([]string, n),
		Open:        series.New(n),
		High:        series.New(n),
		Low:         series.New(n),
		Close:       series.New(n),
		Volume:      series.New(n),
		QuoteVolume: series.New(n),
		Trades:      series.New(n),
		TakerBase:   series.New(n),
		TakerQuote:  series.New(n),
	}
	for i, b := range bars {
		c.OpenTime[i] = b.OpenTime
		c.CloseTime[i] = b.CloseTime
		c.Ignore[i] = b.Ignore
		c.Open.Set(i, b.Open)
		c.High.Set(i, b.High)
		c.Low.Set(i, b.Low)
		c.Close.Set(i, b.Close)
		c.Volume.Set(i, b.Volume)
		c.QuoteVolume.Set(i, b.QuoteVolume)
		c.Trades.Set(i, float64(b.Trades))
		c.TakerBase.Set(i, b.TakerBase)
		c.TakerQuote.Set(i, b.TakerQuote)
	}
	return c
}
