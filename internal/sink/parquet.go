package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"ohlcv-features/internal/features"
)

// headerMetaKey holds the JSON-encoded full header in the file footer.
const headerMetaKey = "feature_header"

// Parquet writes one <tab>.parquet file per tab under Dir. Columns are named
// by their short names; the full titles travel in the footer metadata.
type Parquet struct {
	Dir string
}

// NewParquet creates dir if needed.
func NewParquet(dir string) (*Parquet, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("parquet sink: %w", err)
	}
	return &Parquet{Dir: dir}, nil
}

func (s *Parquet) Kind() string { return "parquet" }
func (s *Parquet) Close() error { return nil }

func (s *Parquet) path(tab string) string { return filepath.Join(s.Dir, tab+".parquet") }

// Write replaces the file. Append is refused: row groups cannot be
// deduplicated by openTime without rewriting the file.
func (s *Parquet) Write(ctx context.Context, tab string, m features.Matrix, mode Mode) (int, error) {
	if err := ValidateTab(tab); err != nil {
		return 0, err
	}
	if mode == Append {
		return 0, fmt.Errorf("%w: parquet", ErrAppendUnsupported)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	schema, order := parquetSchema(tab, m)
	meta, err := json.Marshal(m.Header)
	if err != nil {
		return 0, fmt.Errorf("parquet sink: %w", err)
	}

	tmp, err := os.CreateTemp(s.Dir, tab+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("parquet sink: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := parquet.NewWriter(tmp, schema, parquet.KeyValueMetadata(headerMetaKey, string(meta)))
	rows := make([]parquet.Row, 0, m.Len())
	for _, r := range m.Rows {
		rows = append(rows, parquetRow(r, order))
	}
	if _, err := w.WriteRows(rows); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("parquet sink: write %s: %w", tab, err)
	}
	if err := w.Close(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("parquet sink: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("parquet sink: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(tab)); err != nil {
		return 0, fmt.Errorf("parquet sink: %w", err)
	}
	return m.Len(), nil
}

func (s *Parquet) Header(_ context.Context, tab string) ([]string, error) {
	if err := ValidateTab(tab); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(tab))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.path(tab))
	}
	if err != nil {
		return nil, fmt.Errorf("parquet sink: %w", err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("parquet sink: %w", err)
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return nil, fmt.Errorf("parquet sink: open %s: %w", tab, err)
	}
	raw, ok := pf.Lookup(headerMetaKey)
	if !ok {
		return nil, fmt.Errorf("parquet sink: %s has no %s metadata", tab, headerMetaKey)
	}
	var h []string
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return nil, fmt.Errorf("parquet sink: decode header: %w", err)
	}
	return h, nil
}

// parquetSchema builds a flat schema of optional leaves, strings for text
// columns and doubles otherwise. order[j] is the leaf index of matrix
// column j; the schema sorts group fields by name.
func parquetSchema(tab string, m features.Matrix) (*parquet.Schema, []int) {
	names := make([]string, m.Width())
	group := parquet.Group{}
	for j, title := range m.Header {
		name := features.NameOf(title)
		names[j] = name
		if textColumn(m, j) {
			group[name] = parquet.Optional(parquet.String())
		} else {
			group[name] = parquet.Optional(parquet.Leaf(parquet.DoubleType))
		}
	}
	schema := parquet.NewSchema(tab, group)

	leaf := make(map[string]int, len(names))
	for i, f := range schema.Fields() {
		leaf[f.Name()] = i
	}
	order := make([]int, len(names))
	for j, name := range names {
		order[j] = leaf[name]
	}
	return schema, order
}

func parquetRow(r features.Row, order []int) parquet.Row {
	row := make(parquet.Row, len(order))
	for j, c := range r {
		col := order[j]
		switch c.Kind {
		case features.Number:
			row[col] = parquet.ValueOf(c.Num).Level(0, 1, col)
		case features.Text:
			row[col] = parquet.ValueOf(c.Text).Level(0, 1, col)
		default:
			row[col] = parquet.NullValue().Level(0, 0, col)
		}
	}
	return row
}
