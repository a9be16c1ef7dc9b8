package indicator

import "ohlcv-features/internal/ringbuf"

// SMA calculates Simple Moving Average over a rolling window.
// Uses a preallocated ring so each update is O(1).
type SMA struct {
	period int
	buf    *ringbuf.Ring[float64]
	sum    float64
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		buf:    ringbuf.New[float64](period),
	}
}

func (s *SMA) Name() string { return "SMA" }

func (s *SMA) Update(v float64) {
	if old, ok := s.buf.Push(v); ok {
		s.sum -= old
	}
	s.sum += v
}

func (s *SMA) Value() float64 { return s.sum / float64(s.period) }
func (s *SMA) Ready() bool    { return s.buf.Full() }

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.buf.Reset()
	s.sum = 0
}
