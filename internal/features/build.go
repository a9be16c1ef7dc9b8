// Package features assembles the feature matrix: 12 base kline columns
// followed by the indicator families, one row per closed daily bar.
package features

import (
	"fmt"

	"ohlcv-features/internal/indicator"
	"ohlcv-features/internal/model"
	"ohlcv-features/internal/series"
)

// Compute normalizes raw klines and builds the matrix. Any malformed kline
// fails the whole call and no matrix is returned.
func Compute(raws []model.RawKline) (Matrix, error) {
	cols, err := model.Normalize(raws)
	if err != nil {
		return Matrix{}, fmt.Errorf("normalize: %w", err)
	}
	return Build(&cols), nil
}

// Build computes every indicator family over c and assembles the matrix.
func Build(c *model.Columns) Matrix {
	m := Matrix{Header: Header()}
	n := c.Len()
	if n == 0 {
		return m
	}

	ind := Indicators(c)
	if len(ind) != len(IndicatorColumns) {
		panic(fmt.Sprintf("features: %d indicator series for %d columns", len(ind), len(IndicatorColumns)))
	}

	m.Rows = make([]Row, n)
	for i := 0; i < n; i++ {
		row := make(Row, 0, len(m.Header))
		row = append(row,
			TimeCell(c.OpenTime[i]),
			NumberCell(c.Open[i]),
			NumberCell(c.High[i]),
			NumberCell(c.Low[i]),
			NumberCell(c.Close[i]),
			NumberCell(c.Volume[i]),
			TimeCell(c.CloseTime[i]),
			NumberCell(c.QuoteVolume[i]),
			NumberCell(c.Trades[i]),
			NumberCell(c.TakerBase[i]),
			NumberCell(c.TakerQuote[i]),
			TextCell(c.Ignore[i]),
		)
		for _, s := range ind {
			row = append(row, NumberCell(s[i]))
		}
		m.Rows[i] = row
	}
	return m
}

// Indicators returns the indicator series in IndicatorColumns order.
func Indicators(c *model.Columns) []series.Series {
	flow := indicator.ComputeFlow(c)
	mom := indicator.ComputeMomentum(c)
	mf := indicator.ComputeMoneyFlow(c)
	bands := indicator.ComputeBands(c, mom.SMA20)
	dir := indicator.ComputeDirectional(c, bands.ATR14)
	st := indicator.ComputeStructure(c, mom.RSI14, flow.CVD)
	fib := indicator.ComputeFibonacci(c, dir, st, mom.SMA50, mom.SMA200)

	out := []series.Series{
		flow.Delta, flow.CVD, flow.TakerBuyRatio, flow.RelVolume20,
		flow.AvgTradeSize, flow.VWAPBar, flow.VWAPSession, flow.VWMA20,

		mom.SMA20, mom.SMA50, mom.SMA200, mom.EMA12, mom.EMA26, mom.EMA50,
		mom.MACD, mom.MACDSignal, mom.MACDHist, mom.RSI14, mom.ROC10, mom.OBV,

		mf.CLV, mf.AD, mf.CMF20, mf.TypicalPrice, mf.MFI14,

		bands.ATR14, bands.BBMid, bands.BBUp, bands.BBDn, bands.BBWidth,
		bands.KCMid, bands.KCUp, bands.KCDn,

		dir.DIPlus, dir.DIMinus, dir.ADX14,
		dir.Don20Hi, dir.Don20Lo, dir.Don55Hi, dir.Don55Lo,

		st.SwingHH, st.SwingHL, st.SwingLH, st.SwingLL,
		st.BullDivRSI, st.BearDivRSI, st.BullDivCVD, st.BearDivCVD,
	}
	for _, set := range []indicator.Retracements{fib.Don20, fib.Don55, fib.Swing, fib.Event} {
		out = append(out, set[:]...)
	}
	return out
}
