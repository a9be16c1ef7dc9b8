package indicator

import "ohlcv-features/internal/series"

// RSI calculates the Relative Strength Index using Wilder's smoothing.
//
// The seed averages the first period one-bar deltas; if any of those is
// undefined the RSI never seeds. After seeding an undefined close pair only
// blanks that bar: the averages carry over unchanged to the next defined
// pair instead of reseeding.
type RSI struct {
	period int
	n      int

	prev   float64
	prevOK bool

	gainSum float64
	lossSum float64
	avgGain float64
	avgLoss float64
	broken  bool
}

// NewRSI creates a new RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Name() string { return "RSI" }

// Update feeds the next close; ok=false marks it undefined. It returns the
// RSI for this bar and whether it is defined.
func (r *RSI) Update(close float64, ok bool) (float64, bool) {
	i := r.n
	r.n++
	prev, prevOK := r.prev, r.prevOK
	r.prev, r.prevOK = close, ok

	if i == 0 {
		return 0, false
	}
	pairOK := ok && prevOK

	gain, loss := 0.0, 0.0
	if pairOK {
		if d := close - prev; d > 0 {
			gain = d
		} else {
			loss = -d
		}
	}

	if i <= r.period {
		if !pairOK {
			r.broken = true
		}
		if r.broken {
			return 0, false
		}
		r.gainSum += gain
		r.lossSum += loss
		if i < r.period {
			return 0, false
		}
		r.avgGain = r.gainSum / float64(r.period)
		r.avgLoss = r.lossSum / float64(r.period)
		return r.value(), true
	}

	if r.broken || !pairOK {
		return 0, false
	}
	p := float64(r.period)
	r.avgGain = (r.avgGain*(p-1) + gain) / p
	r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	return r.value(), true
}

func (r *RSI) value() float64 {
	if r.avgLoss == 0 {
		return 100.0
	}
	rs := r.avgGain / r.avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// RSISeries computes the RSI of close over period.
func RSISeries(close series.Series, period int) series.Series {
	r := NewRSI(period)
	out := series.New(len(close))
	for i, c := range close {
		if v, ok := r.Update(c.V, c.OK); ok {
			out.Set(i, v)
		}
	}
	return out
}
