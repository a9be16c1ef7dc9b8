package indicator

import "ohlcv-features/internal/ringbuf"

type stamped struct {
	idx int
	v   float64
}

// Extremum tracks a rolling max or min with a monotonic deque of
// index-stamped values. Each input is pushed and popped at most once, so an
// update is O(1) amortized.
type Extremum struct {
	period int
	max    bool
	dq     *ringbuf.Ring[stamped]
	seen   int
}

// NewMax creates a rolling maximum over period inputs.
func NewMax(period int) *Extremum { return newExtremum(period, true) }

// NewMin creates a rolling minimum over period inputs.
func NewMin(period int) *Extremum { return newExtremum(period, false) }

func newExtremum(period int, max bool) *Extremum {
	return &Extremum{
		period: period,
		max:    max,
		dq:     ringbuf.New[stamped](period + 1),
	}
}

func (e *Extremum) Name() string {
	if e.max {
		return "MAX"
	}
	return "MIN"
}

func (e *Extremum) Update(v float64) {
	for {
		back, ok := e.dq.Back()
		if !ok || !e.dominates(v, back.v) {
			break
		}
		e.dq.PopBack()
	}
	e.dq.Push(stamped{idx: e.seen, v: v})
	e.seen++

	start := e.seen - e.period
	for {
		front, ok := e.dq.Front()
		if !ok || front.idx >= start {
			break
		}
		e.dq.PopFront()
	}
}

// dominates reports whether v makes an older candidate w obsolete.
func (e *Extremum) dominates(v, w float64) bool {
	if e.max {
		return w <= v
	}
	return w >= v
}

func (e *Extremum) Value() float64 {
	front, _ := e.dq.Front()
	return front.v
}

func (e *Extremum) Ready() bool { return e.seen >= e.period }

func (e *Extremum) Reset() {
	e.dq.Reset()
	e.seen = 0
}
