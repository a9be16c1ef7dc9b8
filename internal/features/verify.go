package features

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSchemaMismatch is returned when a destination header does not look
// like a feature matrix.
var ErrSchemaMismatch = errors.New("features: header schema mismatch")

// VerifyHeader checks a stored header: at least the 12 base columns, and
// both the first base column and the last indicator column present.
func VerifyHeader(h []string) error {
	if len(h) < len(BaseColumns) {
		return fmt.Errorf("%w: %d columns, want at least %d", ErrSchemaMismatch, len(h), len(BaseColumns))
	}
	first := BaseColumns[0].Name + " ("
	last := IndicatorColumns[len(IndicatorColumns)-1].Name + " ("
	for _, prefix := range []string{first, last} {
		if !hasPrefix(h, prefix) {
			return fmt.Errorf("%w: no column starting with %q", ErrSchemaMismatch, prefix)
		}
	}
	return nil
}

func hasPrefix(h []string, prefix string) bool {
	for _, s := range h {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
