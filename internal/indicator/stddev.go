package indicator

import (
	"math"

	"ohlcv-features/internal/ringbuf"
)

// StdDev is the population standard deviation over a rolling window, kept
// as running sums of v and v².
type StdDev struct {
	period int
	buf    *ringbuf.Ring[float64]
	sum    float64
	sumSq  float64
}

// NewStdDev creates a rolling standard deviation with the given period.
func NewStdDev(period int) *StdDev {
	return &StdDev{
		period: period,
		buf:    ringbuf.New[float64](period),
	}
}

func (s *StdDev) Name() string { return "STDDEV" }

func (s *StdDev) Update(v float64) {
	if old, ok := s.buf.Push(v); ok {
		s.sum -= old
		s.sumSq -= old * old
	}
	s.sum += v
	s.sumSq += v * v
}

func (s *StdDev) Value() float64 {
	n := float64(s.period)
	mean := s.sum / n
	// Floating error can push the difference slightly below zero.
	variance := math.Max(s.sumSq/n-mean*mean, 0)
	return math.Sqrt(variance)
}

func (s *StdDev) Ready() bool { return s.buf.Full() }

func (s *StdDev) Reset() {
	s.buf.Reset()
	s.sum = 0
	s.sumSq = 0
}
