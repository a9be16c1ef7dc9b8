// Package ringbuf provides a bounded, preallocated ring used for rolling
// windows and monotonic deques. It is single-goroutine: the indicator pass
// owns its rings and discards them on return.
package ringbuf

// Ring is a bounded FIFO over T that also supports popping from the back,
// which is what a monotonic deque needs. Storage is a power of two so index
// wrapping is a mask.
type Ring[T any] struct {
	buf   []T
	mask  uint64
	limit int

	head uint64 // next write position
	tail uint64 // oldest element
}

// New creates a ring holding at most limit elements. limit < 1 is treated as 1.
func New[T any](limit int) *Ring[T] {
	if limit < 1 {
		limit = 1
	}
	size := nextPow2(limit)
	return &Ring[T]{
		buf:   make([]T, size),
		mask:  uint64(size - 1),
		limit: limit,
	}
}

// Push appends v. When the ring already holds limit elements the oldest is
// evicted first and returned with ok=true.
func (r *Ring[T]) Push(v T) (old T, ok bool) {
	if r.Len() >= r.limit {
		old, ok = r.PopFront()
	}
	r.buf[r.head&r.mask] = v
	r.head++
	return old, ok
}

// PopFront removes and returns the oldest element.
func (r *Ring[T]) PopFront() (T, bool) {
	var zero T
	if r.tail >= r.head {
		return zero, false
	}
	v := r.buf[r.tail&r.mask]
	r.buf[r.tail&r.mask] = zero
	r.tail++
	return v, true
}

// PopBack removes and returns the newest element.
func (r *Ring[T]) PopBack() (T, bool) {
	var zero T
	if r.tail >= r.head {
		return zero, false
	}
	r.head--
	v := r.buf[r.head&r.mask]
	r.buf[r.head&r.mask] = zero
	return v, true
}

// Front returns the oldest element without removing it.
func (r *Ring[T]) Front() (T, bool) {
	var zero T
	if r.tail >= r.head {
		return zero, false
	}
	return r.buf[r.tail&r.mask], true
}

// Back returns the newest element without removing it.
func (r *Ring[T]) Back() (T, bool) {
	var zero T
	if r.tail >= r.head {
		return zero, false
	}
	return r.buf[(r.head-1)&r.mask], true
}

// Len returns the number of held elements.
func (r *Ring[T]) Len() int { return int(r.head - r.tail) }

// Full reports whether the ring holds limit elements.
func (r *Ring[T]) Full() bool { return r.Len() >= r.limit }

// Reset empties the ring without reallocating.
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head, r.tail = 0, 0
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
