// Package indicator provides the rolling statistics and indicator families
// that turn normalized daily bars into feature columns.
//
// Single-input calculations implement Indicator and are driven over a series
// by Run. Run applies the window rule shared by every rolling statistic: an
// undefined input resets the calculation, so no window ever spans a gap and
// the next defined output needs a fully refilled window.
package indicator

import "ohlcv-features/internal/series"

// Indicator is a streaming calculation over one input value per bar.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA", "EMA").
	Name() string

	// Update feeds the next finite input.
	Update(v float64)

	// Value returns the current calculated value. Meaningless unless Ready.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool

	// Reset discards all accumulated state.
	Reset()
}

// Run feeds x through ind and returns the aligned output series.
func Run(ind Indicator, x series.Series) series.Series {
	out := series.New(len(x))
	for i, c := range x {
		if !c.OK {
			ind.Reset()
			continue
		}
		ind.Update(c.V)
		if ind.Ready() {
			out.Set(i, ind.Value())
		}
	}
	return out
}

func sma(x series.Series, n int) series.Series    { return Run(NewSMA(n), x) }
func ema(x series.Series, n int) series.Series    { return Run(NewEMA(n), x) }
func rma(x series.Series, n int) series.Series    { return Run(NewSMMA(n), x) }
func stddev(x series.Series, n int) series.Series { return Run(NewStdDev(n), x) }
func rollMax(x series.Series, n int) series.Series {
	return Run(NewMax(n), x)
}
func rollMin(x series.Series, n int) series.Series {
	return Run(NewMin(n), x)
}
