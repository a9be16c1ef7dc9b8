package indicator

import (
	"ohlcv-features/internal/model"
	"ohlcv-features/internal/series"
)

const (
	cmfPeriod = 20
	mfiPeriod = 14
)

// MoneyFlow holds the close-location and money-flow columns.
type MoneyFlow struct {
	CLV          series.Series
	AD           series.Series
	CMF20        series.Series
	TypicalPrice series.Series
	MFI14        series.Series
}

// ComputeMoneyFlow derives the money-flow family from the bar columns.
func ComputeMoneyFlow(c *model.Columns) MoneyFlow {
	clv := CLV(c.High, c.Low, c.Close)
	flow := series.Map2(clv, c.Volume, func(x, v float64) (float64, bool) { return x * v, true })
	tp := TypicalPrice(c.High, c.Low, c.Close)

	return MoneyFlow{
		CLV:          clv,
		AD:           CumulativeSum(flow),
		CMF20:        ratioOfSums(flow, c.Volume, cmfPeriod),
		TypicalPrice: tp,
		MFI14:        MFI(tp, c.Volume, mfiPeriod),
	}
}

// CLV is the close location value ((c-l)-(h-c))/(h-l). A zero-range bar is
// an explicit 0, not undefined.
func CLV(high, low, close series.Series) series.Series {
	out := series.New(len(close))
	for i := range close {
		h, ok1 := high.Get(i)
		l, ok2 := low.Get(i)
		c, ok3 := close.Get(i)
		if !ok1 || !ok2 || !ok3 {
			continue
		}
		rng := h - l
		if rng <= 0 {
			out.Set(i, 0)
			continue
		}
		out.Set(i, ((c-l)-(h-c))/rng)
	}
	return out
}

// TypicalPrice is (h+l+c)/3.
func TypicalPrice(high, low, close series.Series) series.Series {
	out := series.New(len(close))
	for i := range close {
		h, ok1 := high.Get(i)
		l, ok2 := low.Get(i)
		c, ok3 := close.Get(i)
		if ok1 && ok2 && ok3 {
			out.Set(i, (h+l+c)/3)
		}
	}
	return out
}

// ratioOfSums is rolling-sum(num)/rolling-sum(den) over a strict window.
func ratioOfSums(num, den series.Series, period int) series.Series {
	out := series.New(len(num))
	win := NewPairSum(period)
	for i := range num {
		a, ok1 := num.Get(i)
		b, ok2 := den.Get(i)
		if !ok1 || !ok2 {
			win.Reset()
			continue
		}
		win.Update(a, b)
		if !win.Ready() {
			continue
		}
		if sa, sb := win.Sums(); sb != 0 {
			out.Set(i, sa/sb)
		}
	}
	return out
}

// MFI is the money flow index: raw money flow split into rising and falling
// typical-price bars, summed over a rolling window.
func MFI(tp, volume series.Series, period int) series.Series {
	out := series.New(len(tp))
	win := NewPairSum(period)
	for i := range tp {
		cur, ok1 := tp.Get(i)
		prev, ok2 := tp.Get(i - 1)
		v, ok3 := volume.Get(i)
		if !ok1 || !ok2 || !ok3 {
			win.Reset()
			continue
		}
		raw := cur * v
		pos, neg := 0.0, 0.0
		switch {
		case cur > prev:
			pos = raw
		case cur < prev:
			neg = raw
		}
		win.Update(pos, neg)
		if !win.Ready() {
			continue
		}
		posSum, negSum := win.Sums()
		if negSum == 0 {
			out.Set(i, 100)
			continue
		}
		out.Set(i, 100-100/(1+posSum/negSum))
	}
	return out
}
