package sink

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"ohlcv-features/internal/features"
)

// CSV writes one <tab>.csv file per tab under Dir.
type CSV struct {
	Dir string
}

// NewCSV creates dir if needed.
func NewCSV(dir string) (*CSV, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("csv sink: %w", err)
	}
	return &CSV{Dir: dir}, nil
}

func (s *CSV) Kind() string { return "csv" }
func (s *CSV) Close() error { return nil }

func (s *CSV) path(tab string) string { return filepath.Join(s.Dir, tab+".csv") }

func (s *CSV) Write(ctx context.Context, tab string, m features.Matrix, mode Mode) (int, error) {
	if err := ValidateTab(tab); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if mode == Append {
		n, err := s.append(tab, m)
		if !errors.Is(err, ErrNotFound) {
			return n, err
		}
	}
	return s.replace(tab, m)
}

// replace writes to a temp file and renames it over the destination.
func (s *CSV) replace(tab string, m features.Matrix) (int, error) {
	tmp, err := os.CreateTemp(s.Dir, tab+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("csv sink: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := writeCSV(tmp, m.Header, m.Rows); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("csv sink: write %s: %w", tab, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("csv sink: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(tab)); err != nil {
		return 0, fmt.Errorf("csv sink: %w", err)
	}
	return m.Len(), nil
}

// append adds rows newer than the last stored openTime.
func (s *CSV) append(tab string, m features.Matrix) (int, error) {
	header, rows, err := s.read(tab)
	if err != nil {
		return 0, err
	}
	if err := checkHeader(header, m.Header); err != nil {
		return 0, err
	}
	last := ""
	if len(rows) > 0 && len(rows[len(rows)-1]) > 0 {
		last = rows[len(rows)-1][0]
	}
	var fresh []features.Row
	for _, r := range m.Rows {
		if r.Key() > last {
			fresh = append(fresh, r)
		}
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	f, err := os.OpenFile(s.path(tab), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("csv sink: %w", err)
	}
	if err := writeCSV(f, nil, fresh); err != nil {
		f.Close()
		return 0, fmt.Errorf("csv sink: append %s: %w", tab, err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("csv sink: %w", err)
	}
	return len(fresh), nil
}

func (s *CSV) Header(ctx context.Context, tab string) ([]string, error) {
	if err := ValidateTab(tab); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(tab))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.path(tab))
	}
	if err != nil {
		return nil, fmt.Errorf("csv sink: %w", err)
	}
	defer f.Close()
	h, err := csv.NewReader(f).Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s is empty", ErrNotFound, s.path(tab))
	}
	if err != nil {
		return nil, fmt.Errorf("csv sink: read header: %w", err)
	}
	return h, nil
}

func (s *CSV) read(tab string) ([]string, [][]string, error) {
	f, err := os.Open(s.path(tab))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("csv sink: %w", err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("csv sink: read %s: %w", tab, err)
	}
	if len(all) == 0 {
		return nil, nil, ErrNotFound
	}
	return all[0], all[1:], nil
}

func writeCSV(w io.Writer, header []string, rows []features.Row) error {
	cw := csv.NewWriter(w)
	if header != nil {
		if err := cw.Write(header); err != nil {
			return err
		}
	}
	for _, r := range rows {
		if err := cw.Write(r.Strings()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
