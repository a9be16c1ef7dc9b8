package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrMalformedBar is returned for a kline with missing or non-numeric fields.
	ErrMalformedBar = errors.New("malformed bar")
	// ErrOutOfOrder is returned when open times are not strictly increasing.
	ErrOutOfOrder = errors.New("bars out of order")
)

// ParseKline decodes and validates one raw kline.
func ParseKline(raw RawKline) (Bar, error) {
	if len(raw) < KlineFields {
		return Bar{}, fmt.Errorf("%w: %d fields, need %d", ErrMalformedBar, len(raw), KlineFields)
	}

	openMs, err := parseMillis(raw[FieldOpenTime])
	if err != nil {
		return Bar{}, fieldErr("openTime", err)
	}
	closeMs, err := parseMillis(raw[FieldCloseTime])
	if err != nil {
		return Bar{}, fieldErr("closeTime", err)
	}
	if closeMs <= openMs {
		return Bar{}, fmt.Errorf("%w: closeTime %d not after openTime %d", ErrMalformedBar, closeMs, openMs)
	}

	var prices [4]float64
	for j, f := range []int{FieldOpen, FieldHigh, FieldLow, FieldClose} {
		d, err := parseDecimal(raw[f])
		if err != nil {
			return Bar{}, fieldErr(fieldName(f), err)
		}
		v, err := finite(fieldName(f), d)
		if err != nil {
			return Bar{}, err
		}
		if !d.IsPositive() || v <= 0 {
			return Bar{}, fmt.Errorf("%w: %s must be positive, got %s", ErrMalformedBar, fieldName(f), d)
		}
		prices[j] = v
	}

	var amounts [4]decimal.Decimal
	var values [4]float64
	for j, f := range []int{FieldVolume, FieldQuoteVolume, FieldTakerBase, FieldTakerQuote} {
		d, err := parseDecimal(raw[f])
		if err != nil {
			return Bar{}, fieldErr(fieldName(f), err)
		}
		if d.IsNegative() {
			return Bar{}, fmt.Errorf("%w: %s must be non-negative, got %s", ErrMalformedBar, fieldName(f), d)
		}
		if values[j], err = finite(fieldName(f), d); err != nil {
			return Bar{}, err
		}
		amounts[j] = d
	}
	volume, quote, takerBase, takerQuote := amounts[0], amounts[1], amounts[2], amounts[3]
	if takerBase.GreaterThan(volume) {
		return Bar{}, fmt.Errorf("%w: taker buy base %s exceeds volume %s", ErrMalformedBar, takerBase, volume)
	}
	if takerQuote.GreaterThan(quote) {
		return Bar{}, fmt.Errorf("%w: taker buy quote %s exceeds quote volume %s", ErrMalformedBar, takerQuote, quote)
	}

	trades, err := parseDecimal(raw[FieldTrades])
	if err != nil {
		return Bar{}, fieldErr("trades", err)
	}
	if !trades.IsInteger() || trades.IsNegative() {
		return Bar{}, fmt.Errorf("%w: trades must be a non-negative integer, got %s", ErrMalformedBar, trades)
	}
	if trades.GreaterThan(maxInt64) {
		return Bar{}, fmt.Errorf("%w: trades %s overflows int64", ErrMalformedBar, trades)
	}

	return Bar{
		OpenTime:    time.UnixMilli(openMs).UTC(),
		CloseTime:   time.UnixMilli(closeMs).UTC(),
		Open:        prices[0],
		High:        prices[1],
		Low:         prices[2],
		Close:       prices[3],
		Volume:      values[0],
		QuoteVolume: values[1],
		Trades:      trades.IntPart(),
		TakerBase:   values[2],
		TakerQuote:  values[3],
		Ignore:      raw[FieldIgnore],
	}, nil
}

// ParseKlines decodes every raw kline and checks that open times strictly
// increase. Any failure aborts the whole sequence.
func ParseKlines(raws []RawKline) ([]Bar, error) {
	bars := make([]Bar, 0, len(raws))
	for i, raw := range raws {
		b, err := ParseKline(raw)
		if err != nil {
			return nil, fmt.Errorf("bar %d: %w", i, err)
		}
		if i > 0 && !b.OpenTime.After(bars[i-1].OpenTime) {
			return nil, fmt.Errorf("bar %d: %w: openTime %s not after %s", i, ErrOutOfOrder,
				b.OpenTime.Format(time.RFC3339), bars[i-1].OpenTime.Format(time.RFC3339))
		}
		bars = append(bars, b)
	}
	return bars, nil
}

// Normalize decodes raw klines into aligned columns.
func Normalize(raws []RawKline) (Columns, error) {
	bars, err := ParseKlines(raws)
	if err != nil {
		return Columns{}, err
	}
	return NewColumns(bars), nil
}

var maxInt64 = decimal.NewFromInt(math.MaxInt64)

// finite converts d, rejecting values beyond the float64 range.
func finite(name string, d decimal.Decimal) (float64, error) {
	v := d.InexactFloat64()
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("%w: %s %s is out of range", ErrMalformedBar, name, d)
	}
	return v, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, errors.New("missing value")
	}
	return decimal.NewFromString(s)
}

func parseMillis(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("missing value")
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return ms, nil
	}
	// Some producers emit times as floats ("1.5e12").
	d, derr := decimal.NewFromString(s)
	if derr != nil || !d.IsInteger() || d.Abs().GreaterThan(maxInt64) {
		return 0, err
	}
	return d.IntPart(), nil
}

func fieldErr(name string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformedBar, name, err)
}

func fieldName(f int) string {
	switch f {
	case FieldOpen:
		return "open"
	case FieldHigh:
		return "high"
	case FieldLow:
		return "low"
	case FieldClose:
		return "close"
	case FieldVolume:
		return "volume"
	case FieldQuoteVolume:
		return "quoteVolume"
	case FieldTakerBase:
		return "takerBuyBase"
	case FieldTakerQuote:
		return "takerBuyQuote"
	default:
		return "field" + strconv.Itoa(f)
	}
}
