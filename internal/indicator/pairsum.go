package indicator

import "ohlcv-features/internal/ringbuf"

// PairSum keeps two rolling sums over the same window, for ratio indicators
// such as VWMA and CMF whose numerator and denominator must cover identical
// bars.
type PairSum struct {
	buf  *ringbuf.Ring[[2]float64]
	a, b float64
}

// NewPairSum creates a paired rolling sum over period bars.
func NewPairSum(period int) *PairSum {
	return &PairSum{buf: ringbuf.New[[2]float64](period)}
}

// Update adds one (a, b) pair, evicting the oldest once the window is full.
func (p *PairSum) Update(a, b float64) {
	if old, ok := p.buf.Push([2]float64{a, b}); ok {
		p.a -= old[0]
		p.b -= old[1]
	}
	p.a += a
	p.b += b
}

// Sums returns the current window sums.
func (p *PairSum) Sums() (float64, float64) { return p.a, p.b }

// Ready reports whether the window is full.
func (p *PairSum) Ready() bool { return p.buf.Full() }

// Reset empties the window.
func (p *PairSum) Reset() {
	p.buf.Reset()
	p.a, p.b = 0, 0
}
