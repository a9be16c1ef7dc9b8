package indicator

import (
	"ohlcv-features/internal/model"
	"ohlcv-features/internal/series"
)

// Retracement ratios emitted for every anchor scheme.
var FibRatios = [3]float64{0.382, 0.5, 0.618}

// Retracements is one anchor scheme evaluated at FibRatios.
type Retracements [3]series.Series

// Fibonacci holds the four retracement sets.
type Fibonacci struct {
	Don20 Retracements
	Don55 Retracements
	Swing Retracements
	Event Retracements

	// AnchorIndex is the bar of the last sma50/sma200 cross, 0 if none.
	AnchorIndex int
}

// ComputeFibonacci builds the retracement sets from the Donchian bounds, the
// confirmed price pivots and the sma50/sma200 cross.
func ComputeFibonacci(c *model.Columns, d Directional, st Structure, sma50, sma200 series.Series) Fibonacci {
	n := c.Len()
	swingLo, swingHi := SwingAnchors(n, st.Lows, st.Highs)
	anchor := CrossAnchor(sma50, sma200)
	eventLo, eventHi := RunningRange(c.Low, c.High, anchor)

	return Fibonacci{
		Don20:       retrace(d.Don20Lo, d.Don20Hi),
		Don55:       retrace(d.Don55Lo, d.Don55Hi),
		Swing:       retrace(swingLo, swingHi),
		Event:       retrace(eventLo, eventHi),
		AnchorIndex: anchor,
	}
}

// Fib is lo + ratio*(hi-lo) wherever both bounds are defined.
func Fib(lo, hi series.Series, ratio float64) series.Series {
	return series.Map2(lo, hi, func(l, h float64) (float64, bool) {
		return l + ratio*(h-l), true
	})
}

func retrace(lo, hi series.Series) Retracements {
	var r Retracements
	for i, ratio := range FibRatios {
		r[i] = Fib(lo, hi, ratio)
	}
	return r
}

// SwingAnchors forward-fills the latest confirmed pivot low and high values.
// Both series stay undefined until each kind has occurred once.
func SwingAnchors(n int, lows, highs []Pivot) (lo, hi series.Series) {
	lo, hi = series.New(n), series.New(n)
	var lastLo, lastHi series.Cell
	li, hj := 0, 0
	for i := 0; i < n; i++ {
		for li < len(lows) && lows[li].Index <= i {
			lastLo = series.Of(lows[li].Value)
			li++
		}
		for hj < len(highs) && highs[hj].Index <= i {
			lastHi = series.Of(highs[hj].Value)
			hj++
		}
		if lastLo.OK && lastHi.OK {
			lo[i], hi[i] = lastLo, lastHi
		}
	}
	return lo, hi
}

// CrossAnchor returns the index of the last sign change of fast-slow, or 0
// when the two never cross. Only adjacent bars with all four values defined
// are compared.
func CrossAnchor(fast, slow series.Series) int {
	anchor := 0
	for i := 1; i < len(fast); i++ {
		f0, ok1 := fast.Get(i - 1)
		s0, ok2 := slow.Get(i - 1)
		f1, ok3 := fast.Get(i)
		s1, ok4 := slow.Get(i)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			continue
		}
		prev, cur := f0-s0, f1-s1
		if (prev <= 0 && cur > 0) || (prev >= 0 && cur < 0) {
			anchor = i
		}
	}
	return anchor
}

// RunningRange is the min(low)/max(high) since anchor. Bars before anchor
// and bars before the first defined value are undefined.
func RunningRange(low, high series.Series, anchor int) (lo, hi series.Series) {
	n := len(low)
	lo, hi = series.New(n), series.New(n)
	var minLo, maxHi series.Cell
	for i := anchor; i < n; i++ {
		if v, ok := low.Get(i); ok && (!minLo.OK || v < minLo.V) {
			minLo = series.Of(v)
		}
		if v, ok := high.Get(i); ok && (!maxHi.OK || v > maxHi.V) {
			maxHi = series.Of(v)
		}
		lo[i], hi[i] = minLo, maxHi
	}
	return lo, hi
}
