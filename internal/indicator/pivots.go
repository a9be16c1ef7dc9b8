package indicator

import (
	"ohlcv-features/internal/model"
	"ohlcv-features/internal/series"
)

const (
	// FractalHalfWidth is the number of bars on each side a pivot must beat.
	FractalHalfWidth = 3
	// PivotMinSeparation is the minimum index distance between two accepted
	// pivots of the same kind.
	PivotMinSeparation = 5

	cvdSmoothing = 5
)

// PivotKind distinguishes local maxima from local minima.
type PivotKind int

const (
	PivotHigh PivotKind = iota
	PivotLow
)

func (k PivotKind) String() string {
	if k == PivotHigh {
		return "high"
	}
	return "low"
}

// Pivot is a confirmed local extremum of a series.
type Pivot struct {
	Index int
	Value float64
	Kind  PivotKind
}

// DetectPivots returns the confirmed pivots of one kind in index order.
//
// Index i qualifies when x[i] strictly beats every defined neighbour within k
// bars on both sides. Any undefined cell in that span disqualifies i. A
// qualifying index closer than minSep to the last accepted pivot is dropped,
// so the earlier pivot always wins. A pivot needs k bars after it, which is
// the lag at which it becomes known.
func DetectPivots(x series.Series, kind PivotKind, k, minSep int) []Pivot {
	var out []Pivot
	last := -minSep
	for i := k; i < len(x)-k; i++ {
		if !isFractal(x, i, k, kind) {
			continue
		}
		if i-last < minSep {
			continue
		}
		out = append(out, Pivot{Index: i, Value: x[i].V, Kind: kind})
		last = i
	}
	return out
}

func isFractal(x series.Series, i, k int, kind PivotKind) bool {
	center, ok := x.Get(i)
	if !ok {
		return false
	}
	for j := 1; j <= k; j++ {
		left, okL := x.Get(i - j)
		right, okR := x.Get(i + j)
		if !okL || !okR {
			return false
		}
		if kind == PivotHigh && !(center > left && center > right) {
			return false
		}
		if kind == PivotLow && !(center < left && center < right) {
			return false
		}
	}
	return true
}

// Structure holds swing-structure and divergence flags plus the price pivots
// the Fibonacci family anchors on.
type Structure struct {
	SwingHH series.Series
	SwingHL series.Series
	SwingLH series.Series
	SwingLL series.Series

	BullDivRSI series.Series
	BearDivRSI series.Series
	BullDivCVD series.Series
	BearDivCVD series.Series

	Highs []Pivot
	Lows  []Pivot
}

// ComputeStructure runs pivot detection on high/low, rsi and the 5-bar
// Wilder-smoothed cvd, then derives the flags from the pivot lists.
func ComputeStructure(c *model.Columns, rsi, cvd series.Series) Structure {
	n := c.Len()
	highs := DetectPivots(c.High, PivotHigh, FractalHalfWidth, PivotMinSeparation)
	lows := DetectPivots(c.Low, PivotLow, FractalHalfWidth, PivotMinSeparation)

	s := Structure{
		SwingHH:    zeroFlags(n),
		SwingHL:    zeroFlags(n),
		SwingLH:    zeroFlags(n),
		SwingLL:    zeroFlags(n),
		BullDivRSI: zeroFlags(n),
		BearDivRSI: zeroFlags(n),
		BullDivCVD: zeroFlags(n),
		BearDivCVD: zeroFlags(n),
		Highs:      highs,
		Lows:       lows,
	}

	markSwings(highs, s.SwingHH, s.SwingLH)
	markSwings(lows, s.SwingHL, s.SwingLL)

	cvdSmooth := rma(cvd, cvdSmoothing)
	rsiHighs := DetectPivots(rsi, PivotHigh, FractalHalfWidth, PivotMinSeparation)
	rsiLows := DetectPivots(rsi, PivotLow, FractalHalfWidth, PivotMinSeparation)
	cvdHighs := DetectPivots(cvdSmooth, PivotHigh, FractalHalfWidth, PivotMinSeparation)
	cvdLows := DetectPivots(cvdSmooth, PivotLow, FractalHalfWidth, PivotMinSeparation)

	markDivergence(lows, rsiLows, s.BullDivRSI)
	markDivergence(highs, rsiHighs, s.BearDivRSI)
	markDivergence(lows, cvdLows, s.BullDivCVD)
	markDivergence(highs, cvdHighs, s.BearDivCVD)
	return s
}

// markSwings flags each pivot after the first as higher or lower than its
// predecessor. Equal values set neither flag.
func markSwings(pivots []Pivot, higher, lower series.Series) {
	for j := 1; j < len(pivots); j++ {
		prev, cur := pivots[j-1], pivots[j]
		higher[cur.Index] = series.Flag(cur.Value > prev.Value)
		lower[cur.Index] = series.Flag(cur.Value < prev.Value)
	}
}

// markDivergence compares only the two latest price pivots with the two
// latest oscillator pivots of the same kind. Lows diverge bullishly (price
// lower, oscillator higher), highs bearishly (price higher, oscillator lower).
// The flag sits on the latest price pivot.
func markDivergence(price, osc []Pivot, flags series.Series) {
	if len(price) < 2 || len(osc) < 2 {
		return
	}
	p1, p2 := price[len(price)-2], price[len(price)-1]
	o1, o2 := osc[len(osc)-2], osc[len(osc)-1]

	var diverged bool
	switch p2.Kind {
	case PivotLow:
		diverged = p2.Value < p1.Value && o2.Value > o1.Value
	case PivotHigh:
		diverged = p2.Value > p1.Value && o2.Value < o1.Value
	}
	if diverged {
		flags[p2.Index] = series.Flag(true)
	}
}

func zeroFlags(n int) series.Series {
	out := series.New(n)
	for i := range out {
		out[i] = series.Flag(false)
	}
	return out
}
