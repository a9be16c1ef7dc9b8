package indicator

import (
	"ohlcv-features/internal/model"
	"ohlcv-features/internal/series"
)

const (
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
	rsiPeriod  = 14
	rocPeriod  = 10
)

// Momentum holds the trend and momentum columns computed on close.
type Momentum struct {
	SMA20, SMA50, SMA200 series.Series
	EMA12, EMA26, EMA50  series.Series

	MACD       series.Series
	MACDSignal series.Series
	MACDHist   series.Series

	RSI14 series.Series
	ROC10 series.Series
	OBV   series.Series
}

// ComputeMomentum derives the momentum family from the bar columns.
func ComputeMomentum(c *model.Columns) Momentum {
	m := Momentum{
		SMA20:  sma(c.Close, 20),
		SMA50:  sma(c.Close, 50),
		SMA200: sma(c.Close, 200),
		EMA12:  ema(c.Close, macdFast),
		EMA26:  ema(c.Close, macdSlow),
		EMA50:  ema(c.Close, 50),
		RSI14:  RSISeries(c.Close, rsiPeriod),
		ROC10:  ROC(c.Close, rocPeriod),
		OBV:    OBV(c.Close, c.Volume),
	}
	m.MACD = series.Sub(m.EMA12, m.EMA26)
	m.MACDSignal = ema(m.MACD, macdSignal)
	m.MACDHist = series.Sub(m.MACD, m.MACDSignal)
	return m
}

// ROC is close[i]/close[i-period] - 1.
func ROC(close series.Series, period int) series.Series {
	out := series.New(len(close))
	for i := period; i < len(close); i++ {
		cur, ok1 := close.Get(i)
		base, ok2 := close.Get(i - period)
		if ok1 && ok2 && base != 0 {
			out.Set(i, cur/base-1)
		}
	}
	return out
}

// OBV adds volume on up closes and subtracts it on down closes. Bar 0 and
// bars with an undefined close pair or volume are undefined and add nothing.
func OBV(close, volume series.Series) series.Series {
	out := series.New(len(close))
	sum := 0.0
	for i := 1; i < len(close); i++ {
		cur, ok1 := close.Get(i)
		prev, ok2 := close.Get(i - 1)
		v, ok3 := volume.Get(i)
		if !ok1 || !ok2 || !ok3 {
			continue
		}
		switch {
		case cur > prev:
			sum += v
		case cur < prev:
			sum -= v
		}
		out.Set(i, sum)
	}
	return out
}
