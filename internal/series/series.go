// Package series holds the bar-aligned value type shared by every indicator.
//
// A Series cell is either a finite number or undefined. Undefined is the zero
// Cell, so a freshly allocated Series reads as "not yet computable" everywhere.
package series

import "math"

// Cell is one aligned value. OK is false for an undefined cell.
type Cell struct {
	V  float64
	OK bool
}

// Of wraps v, mapping NaN and ±Inf to an undefined cell.
func Of(v float64) Cell {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Cell{}
	}
	return Cell{V: v, OK: true}
}

// Flag returns a defined 0/1 cell.
func Flag(on bool) Cell {
	if on {
		return Cell{V: 1, OK: true}
	}
	return Cell{V: 0, OK: true}
}

// Series is a fixed-length sequence aligned index-for-index with the bars.
type Series []Cell

// New allocates an all-undefined series of length n.
func New(n int) Series { return make(Series, n) }

// FromFloats converts raw floats; non-finite entries become undefined.
func FromFloats(xs []float64) Series {
	out := make(Series, len(xs))
	for i, x := range xs {
		out[i] = Of(x)
	}
	return out
}

// Get returns the value at i and whether it is defined. Out-of-range reads
// are undefined.
func (s Series) Get(i int) (float64, bool) {
	if i < 0 || i >= len(s) {
		return 0, false
	}
	c := s[i]
	return c.V, c.OK
}

// Defined reports whether the cell at i holds a number.
func (s Series) Defined(i int) bool {
	return i >= 0 && i < len(s) && s[i].OK
}

// Set stores v at i through Of, so a non-finite result never leaks out.
func (s Series) Set(i int, v float64) { s[i] = Of(v) }

// Map2 combines two aligned series cell by cell. fn is only called when both
// inputs are defined; it returns ok=false to signal a degenerate result such
// as a zero denominator.
func Map2(a, b Series, fn func(x, y float64) (float64, bool)) Series {
	out := New(len(a))
	for i := range a {
		x, ok1 := a.Get(i)
		y, ok2 := b.Get(i)
		if !ok1 || !ok2 {
			continue
		}
		if v, ok := fn(x, y); ok {
			out.Set(i, v)
		}
	}
	return out
}

// Ratio divides a by b, leaving cells undefined where b is zero.
func Ratio(a, b Series) Series {
	return Map2(a, b, func(x, y float64) (float64, bool) {
		if y == 0 {
			return 0, false
		}
		return x / y, true
	})
}

// Sub returns a-b where both are defined.
func Sub(a, b Series) Series {
	return Map2(a, b, func(x, y float64) (float64, bool) { return x - y, true })
}

// Offset returns a + k*b where both are defined.
func Offset(a, b Series, k float64) Series {
	return Map2(a, b, func(x, y float64) (float64, bool) { return x + k*y, true })
}
