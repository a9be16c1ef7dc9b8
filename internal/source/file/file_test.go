package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ohlcv-features/internal/model"
)

const sample = `[
 [1704067200000,"42283.58","44184.10","42180.77","44179.55","27174.29",1704153599999,"1169995205.8",1157593,"14279.93","615067339.4","0"],
 [1704153600000,"44179.55","45879.63","44148.34","44946.91","65146.40",1704239999999,"2944775098.7",2074694,"33181.84","1500209017.3","0"],
 [1704240000000,"44946.91","45500.00","40750.00","42845.23","81194.55",1704326399999,"3507591567.5",2562193,"38827.58","1677549627.1","0"]
]`

func writeSample(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "klines.json")
	if err := os.WriteFile(p, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestSource_SinceAndClosed(t *testing.T) {
	s := New(writeSample(t))
	// Midday on 2024-01-03: the third session is still open.
	s.Now = func() time.Time { return time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC) }

	got, err := s.Klines(context.Background(), "BTCUSDT", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("klines: %v", err)
	}
	if len(got) != 1 || got[0][model.FieldOpenTime] != "1704153600000" {
		t.Fatalf("got %v", got)
	}

	s.ClosedOnly = false
	got, _ = s.Klines(context.Background(), "BTCUSDT", time.Time{})
	if len(got) != 3 {
		t.Errorf("without closed filter got %d klines", len(got))
	}
}

func TestSource_Errors(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "missing.json")).Klines(context.Background(), "X", time.Time{}); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: err = %v", err)
	}

	p := filepath.Join(t.TempDir(), "short.json")
	os.WriteFile(p, []byte(`[[1704067200000,"1"]]`), 0o644)
	if _, err := New(p).Klines(context.Background(), "X", time.Time{}); !errors.Is(err, model.ErrMalformedBar) {
		t.Errorf("short kline: err = %v", err)
	}
}
