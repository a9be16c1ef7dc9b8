package indicator

import (
	"math"

	"ohlcv-features/internal/model"
	"ohlcv-features/internal/series"
)

const (
	adxPeriod     = 14
	donchianShort = 20
	donchianLong  = 55
)

// Directional holds the DMI/ADX and Donchian columns.
type Directional struct {
	DIPlus  series.Series
	DIMinus series.Series
	ADX14   series.Series

	Don20Hi, Don20Lo series.Series
	Don55Hi, Don55Lo series.Series
}

// ComputeDirectional derives the directional family; atr is the bands
// family's ATR14.
func ComputeDirectional(c *model.Columns, atr series.Series) Directional {
	plusDM, minusDM := DirectionalMovement(c.High, c.Low)

	diPlus := scaledRatio(rma(plusDM, adxPeriod), atr)
	diMinus := scaledRatio(rma(minusDM, adxPeriod), atr)
	dx := series.Map2(diPlus, diMinus, func(p, m float64) (float64, bool) {
		if p+m == 0 {
			return 0, false
		}
		return 100 * math.Abs(p-m) / (p + m), true
	})

	return Directional{
		DIPlus:  diPlus,
		DIMinus: diMinus,
		ADX14:   rma(dx, adxPeriod),
		Don20Hi: rollMax(c.High, donchianShort),
		Don20Lo: rollMin(c.Low, donchianShort),
		Don55Hi: rollMax(c.High, donchianLong),
		Don55Lo: rollMin(c.Low, donchianLong),
	}
}

// DirectionalMovement returns +DM and -DM. Only the larger positive move
// counts; the other side is 0. Bar 0 is undefined.
func DirectionalMovement(high, low series.Series) (plus, minus series.Series) {
	n := len(high)
	plus, minus = series.New(n), series.New(n)
	for i := 1; i < n; i++ {
		h, ok1 := high.Get(i)
		ph, ok2 := high.Get(i - 1)
		l, ok3 := low.Get(i)
		pl, ok4 := low.Get(i - 1)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			continue
		}
		up, down := h-ph, pl-l
		p, m := 0.0, 0.0
		if up > down && up > 0 {
			p = up
		}
		if down > up && down > 0 {
			m = down
		}
		plus.Set(i, p)
		minus.Set(i, m)
	}
	return plus, minus
}

func scaledRatio(num, den series.Series) series.Series {
	return series.Map2(num, den, func(a, b float64) (float64, bool) {
		if b == 0 {
			return 0, false
		}
		return 100 * a / b, true
	})
}
