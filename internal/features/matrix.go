package features

import (
	"strconv"
	"time"

	"ohlcv-features/internal/series"
)

// TimeLayout renders the openTime/closeTime columns.
const TimeLayout = "2006-01-02 15:04:05"

// CellKind tags what a Cell holds.
type CellKind uint8

const (
	Empty CellKind = iota
	Number
	Text
)

// Cell is one matrix value: empty (undefined), a finite number, or text.
type Cell struct {
	Kind CellKind
	Num  float64
	Text string
}

// NumberCell converts a series cell; undefined becomes Empty.
func NumberCell(c series.Cell) Cell {
	if !c.OK {
		return Cell{}
	}
	return Cell{Kind: Number, Num: c.V}
}

// TextCell wraps s.
func TextCell(s string) Cell { return Cell{Kind: Text, Text: s} }

// TimeCell renders t in UTC with TimeLayout.
func TimeCell(t time.Time) Cell { return TextCell(t.UTC().Format(TimeLayout)) }

// String renders the cell for text sinks. Empty cells render as "".
func (c Cell) String() string {
	switch c.Kind {
	case Number:
		return strconv.FormatFloat(c.Num, 'f', -1, 64)
	case Text:
		return c.Text
	default:
		return ""
	}
}

// Float returns the numeric value and whether there is one.
func (c Cell) Float() (float64, bool) { return c.Num, c.Kind == Number }

// Row is one bar's cells in header order.
type Row []Cell

// Key is the row's openTime text, the identity used by append writes.
func (r Row) Key() string {
	if len(r) == 0 {
		return ""
	}
	return r[0].Text
}

// Strings renders every cell.
func (r Row) Strings() []string {
	out := make([]string, len(r))
	for i, c := range r {
		out[i] = c.String()
	}
	return out
}

// Matrix is the assembled feature table.
type Matrix struct {
	Header []string
	Rows   []Row
}

// Width is the number of columns.
func (m Matrix) Width() int { return len(m.Header) }

// Len is the number of rows.
func (m Matrix) Len() int { return len(m.Rows) }
