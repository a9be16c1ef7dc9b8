package indicator

import (
	"math"

	"ohlcv-features/internal/model"
	"ohlcv-features/internal/series"
)

const (
	atrPeriod       = 14
	bollingerPeriod = 20
	keltnerPeriod   = 20
	bandWidth       = 2.0
)

// Bands holds ATR, Bollinger and Keltner columns.
type Bands struct {
	ATR14 series.Series

	BBMid   series.Series
	BBUp    series.Series
	BBDn    series.Series
	BBWidth series.Series

	KCMid series.Series
	KCUp  series.Series
	KCDn  series.Series
}

// ComputeBands derives the bands family. Bollinger shares the sma20 of the
// momentum family, which the caller passes in.
func ComputeBands(c *model.Columns, sma20 series.Series) Bands {
	atr := ATR(c.High, c.Low, c.Close, atrPeriod)
	sd := stddev(c.Close, bollingerPeriod)
	kcMid := ema(c.Close, keltnerPeriod)

	b := Bands{
		ATR14: atr,
		BBMid: sma20,
		BBUp:  series.Offset(sma20, sd, bandWidth),
		BBDn:  series.Offset(sma20, sd, -bandWidth),
		KCMid: kcMid,
		KCUp:  series.Offset(kcMid, atr, bandWidth),
		KCDn:  series.Offset(kcMid, atr, -bandWidth),
	}
	b.BBWidth = series.Ratio(series.Sub(b.BBUp, b.BBDn), sma20)
	return b
}

// TrueRange is max(h-l, |h-prevClose|, |l-prevClose|); undefined at bar 0.
func TrueRange(high, low, close series.Series) series.Series {
	out := series.New(len(close))
	for i := 1; i < len(close); i++ {
		h, ok1 := high.Get(i)
		l, ok2 := low.Get(i)
		pc, ok3 := close.Get(i - 1)
		if !ok1 || !ok2 || !ok3 {
			continue
		}
		out.Set(i, math.Max(h-l, math.Max(math.Abs(h-pc), math.Abs(l-pc))))
	}
	return out
}

// ATR is the Wilder average of TrueRange.
func ATR(high, low, close series.Series, period int) series.Series {
	return rma(TrueRange(high, low, close), period)
}
