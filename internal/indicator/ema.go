package indicator

// EMA calculates Exponential Moving Average.
// O(1) per update with no window storage. The first value is the SMA of
// the first period inputs; later values use k = 2/(period+1).
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

// NewEMA creates a new EMA indicator with the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMA) Name() string { return "EMA" }

func (e *EMA) Update(v float64) {
	if e.count < e.period {
		// Accumulate for initial SMA seed
		e.count++
		e.sum += v
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}
	e.current = (v-e.current)*e.multiplier + e.current
}

func (e *EMA) Value() float64 { return e.current }
func (e *EMA) Ready() bool    { return e.count >= e.period }

// Reset clears the EMA state; the next inputs build a fresh seed.
func (e *EMA) Reset() {
	e.current = 0
	e.count = 0
	e.sum = 0
}
