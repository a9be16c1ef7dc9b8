// Package sink persists the feature matrix to a named destination ("tab"):
// a CSV or Parquet file, a SQL table, a Redis keyspace, or stdout.
package sink

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"ohlcv-features/internal/features"
)

var (
	// ErrUnknownKind is returned by Open for an unsupported sink kind.
	ErrUnknownKind = errors.New("sink: unknown kind")
	// ErrAppendUnsupported is returned by sinks that can only replace.
	ErrAppendUnsupported = errors.New("sink: append not supported")
	// ErrHeaderMismatch is returned when appending to a destination whose
	// stored header differs from the matrix header.
	ErrHeaderMismatch = errors.New("sink: stored header differs")
	// ErrNotFound is returned by Header when the destination does not exist.
	ErrNotFound = errors.New("sink: destination not found")
	// ErrInvalidTab is returned for tab names unsafe as file or table names.
	ErrInvalidTab = errors.New("sink: invalid tab name")
	// ErrUnknownMode is returned by ParseMode.
	ErrUnknownMode = errors.New("sink: unknown write mode")
)

// Mode selects how existing data rows are treated.
type Mode string

const (
	// Replace clears existing data rows and writes the header and matrix.
	Replace Mode = "replace"
	// Append adds rows whose openTime is not yet stored; stored rows win
	// for file sinks and are overwritten by keyed sinks.
	Append Mode = "append"
)

// ParseMode parses "replace" or "append", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case Replace, Append:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Sink writes feature matrices to named destinations. Destinations are
// created on first write.
type Sink interface {
	// Write stores m under tab and returns the number of data rows written.
	Write(ctx context.Context, tab string, m features.Matrix, mode Mode) (int, error)
	// Header returns the stored header of tab.
	Header(ctx context.Context, tab string) ([]string, error)
	// Kind names the sink for logs and metrics.
	Kind() string
	Close() error
}

var tabPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_-]{0,62}$`)

// ValidateTab rejects names that are not safe as file and table names.
func ValidateTab(tab string) error {
	if !tabPattern.MatchString(tab) {
		return fmt.Errorf("%w: %q", ErrInvalidTab, tab)
	}
	return nil
}

func sameHeader(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func checkHeader(stored, want []string) error {
	if !sameHeader(stored, want) {
		return fmt.Errorf("%w: %d stored columns, %d new", ErrHeaderMismatch, len(stored), len(want))
	}
	return nil
}

// cellValue maps a cell to a driver value: float64, string or nil.
func cellValue(c features.Cell) any {
	if v, ok := c.Float(); ok {
		return v
	}
	if c.Kind == features.Text {
		return c.Text
	}
	return nil
}

// textColumn reports whether column j is stored as text. Catalogue columns
// are typed by their kind; others by whether any row holds text.
func textColumn(m features.Matrix, j int) bool {
	if k, ok := features.KindOf(features.NameOf(m.Header[j])); ok {
		return k.IsText()
	}
	for _, r := range m.Rows {
		if r[j].Kind == features.Text {
			return true
		}
	}
	return false
}
