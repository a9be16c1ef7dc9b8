package sink

import (
	"context"
	"fmt"
	"io"
	"sync"

	"ohlcv-features/internal/features"
)

// Stdout renders the matrix as CSV on a writer. The tab name is ignored
// beyond validation and every write includes the header.
type Stdout struct {
	mu sync.Mutex
	w  io.Writer
}

func NewStdout(w io.Writer) *Stdout { return &Stdout{w: w} }

func (s *Stdout) Kind() string { return "stdout" }
func (s *Stdout) Close() error { return nil }

func (s *Stdout) Write(ctx context.Context, tab string, m features.Matrix, _ Mode) (int, error) {
	if err := ValidateTab(tab); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeCSV(s.w, m.Header, m.Rows); err != nil {
		return 0, fmt.Errorf("stdout sink: %w", err)
	}
	return m.Len(), nil
}

func (s *Stdout) Header(context.Context, string) ([]string, error) {
	return nil, fmt.Errorf("%w: stdout keeps no state", ErrNotFound)
}
