package indicator

import (
	"ohlcv-features/internal/model"
	"ohlcv-features/internal/series"
)

const (
	relVolumePeriod = 20
	vwmaPeriod      = 20
)

// Flow holds the volume and order-flow columns.
type Flow struct {
	Delta         series.Series // 2*takerBuyBase - volume
	CVD           series.Series // running sum of Delta
	TakerBuyRatio series.Series
	RelVolume20   series.Series
	AvgTradeSize  series.Series
	VWAPBar       series.Series // quoteVolume / volume for the bar
	VWAPSession   series.Series // cumulative quoteVolume / cumulative volume
	VWMA20        series.Series
}

// ComputeFlow derives the flow family from the bar columns.
func ComputeFlow(c *model.Columns) Flow {
	n := c.Len()

	delta := series.Map2(c.TakerBase, c.Volume, func(tbb, v float64) (float64, bool) {
		return 2*tbb - v, true
	})

	return Flow{
		Delta:         delta,
		CVD:           CumulativeSum(delta),
		TakerBuyRatio: series.Ratio(c.TakerBase, c.Volume),
		RelVolume20:   series.Ratio(c.Volume, sma(c.Volume, relVolumePeriod)),
		AvgTradeSize:  series.Ratio(c.Volume, c.Trades),
		VWAPBar:       series.Ratio(c.QuoteVolume, c.Volume),
		VWAPSession:   sessionVWAP(c.QuoteVolume, c.Volume, n),
		VWMA20:        VWMA(c.Close, c.Volume, vwmaPeriod),
	}
}

// CumulativeSum is the running total over defined cells. An undefined input
// leaves its own cell undefined but does not reset the total.
func CumulativeSum(x series.Series) series.Series {
	out := series.New(len(x))
	sum := 0.0
	for i, c := range x {
		if !c.OK {
			continue
		}
		sum += c.V
		out.Set(i, sum)
	}
	return out
}

// sessionVWAP accumulates from the first bar and never resets. Bars with an
// unusable quote/volume pair add nothing but still report the running ratio.
func sessionVWAP(quote, volume series.Series, n int) series.Series {
	out := series.New(n)
	sumQ, sumV := 0.0, 0.0
	for i := 0; i < n; i++ {
		q, okQ := quote.Get(i)
		v, okV := volume.Get(i)
		if okQ && okV && v != 0 {
			sumQ += q
			sumV += v
		}
		if sumV != 0 {
			out.Set(i, sumQ/sumV)
		}
	}
	return out
}

// VWMA is sum(price*volume)/sum(volume) over a full window of defined pairs.
func VWMA(price, volume series.Series, period int) series.Series {
	out := series.New(len(price))
	win := NewPairSum(period)
	for i := range price {
		p, okP := price.Get(i)
		v, okV := volume.Get(i)
		if !okP || !okV {
			win.Reset()
			continue
		}
		win.Update(p*v, v)
		if !win.Ready() {
			continue
		}
		if pv, sv := win.Sums(); sv != 0 {
			out.Set(i, pv/sv)
		}
	}
	return out
}
