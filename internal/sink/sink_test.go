package sink

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"ohlcv-features/internal/features"
	"ohlcv-features/internal/metrics"
	"ohlcv-features/internal/model"
)

// ════════════════════════════════════════════════════════════════
// Fixtures
// ════════════════════════════════════════════════════════════════

const dayMs = int64(24 * time.Hour / time.Millisecond)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

func ff(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func klines(n int) []model.RawKline {
	out := make([]model.RawKline, n)
	for i := range out {
		o := day0 + int64(i)*dayMs
		mid := 100 + 10*math.Sin(float64(i)/5)
		out[i] = model.RawKline{
			strconv.FormatInt(o, 10), ff(mid), ff(mid + 2), ff(mid - 2), ff(mid + 0.5), "10",
			strconv.FormatInt(o+dayMs-1, 10), ff(10 * mid), "20", "6", ff(6 * mid), "0",
		}
	}
	return out
}

func matrix(t *testing.T, n int) features.Matrix {
	t.Helper()
	m, err := features.Compute(klines(n))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	return m
}

func head(m features.Matrix, n int) features.Matrix {
	return features.Matrix{Header: m.Header, Rows: m.Rows[:n]}
}

var ctx = context.Background()

// ════════════════════════════════════════════════════════════════
// Helpers
// ════════════════════════════════════════════════════════════════

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"replace": Replace, "APPEND": Append, " append ": Append} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMode("upsert"); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("expected ErrUnknownMode, got %v", err)
	}
}

func TestValidateTab(t *testing.T) {
	for _, ok := range []string{"BTCUSDT", "btc_1d", "a-b", "_x"} {
		if err := ValidateTab(ok); err != nil {
			t.Errorf("%q rejected: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "../etc", "a b", `x"y`, "-lead"} {
		if err := ValidateTab(bad); !errors.Is(err, ErrInvalidTab) {
			t.Errorf("%q accepted", bad)
		}
	}
}

func TestOpen_UnknownKind(t *testing.T) {
	if _, err := Open(Config{Kind: "excel"}); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestRedisKeys(t *testing.T) {
	if headerKey("BTC") != "features:BTC:header" || rowsKey("BTC") != "features:BTC:rows" || indexKey("BTC") != "features:BTC:index" {
		t.Fatal("unexpected key layout")
	}
	if got := rowScore("2024-01-02 00:00:00"); got != float64(day0+dayMs) {
		t.Errorf("rowScore = %v", got)
	}
	if rowScore("garbage") != 0 {
		t.Error("unparsable key should score 0")
	}
}

func TestUpsertSQL(t *testing.T) {
	got := upsertSQL("t", []string{"openTime", "close"})
	want := `INSERT INTO "t" ("openTime", "close") VALUES (?, ?) ON CONFLICT ("openTime") DO UPDATE SET "close" = excluded."close"`
	if got != want {
		t.Fatalf("got  %s\nwant %s", got, want)
	}
}

// ════════════════════════════════════════════════════════════════
// CSV
// ════════════════════════════════════════════════════════════════

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	all, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return all
}

func TestCSV_ReplaceThenHeader(t *testing.T) {
	s, err := NewCSV(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	m := matrix(t, 30)
	n, err := s.Write(ctx, "BTCUSDT", m, Replace)
	if err != nil || n != 30 {
		t.Fatalf("write = %d, %v", n, err)
	}
	all := readCSV(t, filepath.Join(s.Dir, "BTCUSDT.csv"))
	if len(all) != 31 || len(all[0]) != 72 {
		t.Fatalf("file shape %dx%d", len(all), len(all[0]))
	}
	h, err := s.Header(ctx, "BTCUSDT")
	if err != nil || features.VerifyHeader(h) != nil {
		t.Fatalf("header: %v", err)
	}

	// Replace again with fewer rows drops the old ones.
	if _, err := s.Write(ctx, "BTCUSDT", head(m, 5), Replace); err != nil {
		t.Fatal(err)
	}
	if all := readCSV(t, filepath.Join(s.Dir, "BTCUSDT.csv")); len(all) != 6 {
		t.Fatalf("rows after replace = %d, want 6", len(all)-1)
	}
}

func TestCSV_AppendIsIdempotent(t *testing.T) {
	s, _ := NewCSV(t.TempDir())
	m := matrix(t, 40)

	// Append to a missing file creates it.
	if n, err := s.Write(ctx, "eth", head(m, 25), Append); err != nil || n != 25 {
		t.Fatalf("first append = %d, %v", n, err)
	}
	if n, err := s.Write(ctx, "eth", m, Append); err != nil || n != 15 {
		t.Fatalf("second append = %d, %v", n, err)
	}
	if n, err := s.Write(ctx, "eth", m, Append); err != nil || n != 0 {
		t.Fatalf("repeat append = %d, %v", n, err)
	}
	all := readCSV(t, filepath.Join(s.Dir, "eth.csv"))
	if len(all) != 41 {
		t.Fatalf("rows = %d, want 40", len(all)-1)
	}
	full := matrix(t, 40)
	for i, r := range full.Rows {
		if all[i+1][0] != r.Key() {
			t.Fatalf("row %d key %s, want %s", i, all[i+1][0], r.Key())
		}
	}
}

func TestCSV_AppendHeaderMismatch(t *testing.T) {
	s, _ := NewCSV(t.TempDir())
	m := matrix(t, 10)
	if _, err := s.Write(ctx, "x", m, Replace); err != nil {
		t.Fatal(err)
	}
	other := features.Matrix{Header: append([]string{"extra"}, m.Header...)}
	if _, err := s.Write(ctx, "x", other, Append); !errors.Is(err, ErrHeaderMismatch) {
		t.Fatalf("expected ErrHeaderMismatch, got %v", err)
	}
}

func TestCSV_HeaderNotFound(t *testing.T) {
	s, _ := NewCSV(t.TempDir())
	if _, err := s.Header(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// ════════════════════════════════════════════════════════════════
// Stdout
// ════════════════════════════════════════════════════════════════

func TestStdout(t *testing.T) {
	var buf bytes.Buffer
	s, err := Open(Config{Kind: "stdout", Stdout: &buf})
	if err != nil {
		t.Fatal(err)
	}
	if n, err := s.Write(ctx, "any", matrix(t, 3), Replace); err != nil || n != 3 {
		t.Fatalf("write = %d, %v", n, err)
	}
	all, err := csv.NewReader(&buf).ReadAll()
	if err != nil || len(all) != 4 {
		t.Fatalf("stdout rows = %d, %v", len(all), err)
	}
	if _, err := s.Header(ctx, "any"); !errors.Is(err, ErrNotFound) {
		t.Errorf("stdout header should be ErrNotFound, got %v", err)
	}
}

// ════════════════════════════════════════════════════════════════
// Parquet
// ════════════════════════════════════════════════════════════════

func TestParquet_WriteAndHeader(t *testing.T) {
	s, err := NewParquet(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	m := matrix(t, 20)
	if n, err := s.Write(ctx, "BTCUSDT", m, Replace); err != nil || n != 20 {
		t.Fatalf("write = %d, %v", n, err)
	}
	h, err := s.Header(ctx, "BTCUSDT")
	if err != nil {
		t.Fatal(err)
	}
	if len(h) != len(m.Header) || h[0] != m.Header[0] || h[71] != m.Header[71] {
		t.Fatalf("header mismatch: %d columns", len(h))
	}

	f, err := os.Open(filepath.Join(s.Dir, "BTCUSDT.parquet"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	st, _ := f.Stat()
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		t.Fatal(err)
	}
	if pf.NumRows() != 20 {
		t.Errorf("NumRows = %d, want 20", pf.NumRows())
	}
	if len(pf.Schema().Fields()) != 72 {
		t.Errorf("fields = %d, want 72", len(pf.Schema().Fields()))
	}
}

func TestParquet_AppendUnsupported(t *testing.T) {
	s, _ := NewParquet(t.TempDir())
	if _, err := s.Write(ctx, "x", matrix(t, 2), Append); !errors.Is(err, ErrAppendUnsupported) {
		t.Fatalf("expected ErrAppendUnsupported, got %v", err)
	}
	if _, err := s.Header(ctx, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// ════════════════════════════════════════════════════════════════
// SQLite
// ════════════════════════════════════════════════════════════════

func TestSQLite_ReplaceAppend(t *testing.T) {
	s, err := NewSQL("sqlite3", filepath.Join(t.TempDir(), "features.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if s.Kind() != "sqlite" {
		t.Errorf("Kind = %q", s.Kind())
	}

	if _, err := s.Header(ctx, "BTCUSDT"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	m := matrix(t, 40)
	if n, err := s.Write(ctx, "BTCUSDT", head(m, 30), Replace); err != nil || n != 30 {
		t.Fatalf("replace = %d, %v", n, err)
	}
	if n, err := s.Write(ctx, "BTCUSDT", m, Append); err != nil || n != 40 {
		t.Fatalf("append = %d, %v", n, err)
	}
	if _, err := s.Write(ctx, "BTCUSDT", m, Append); err != nil {
		t.Fatalf("repeat append: %v", err)
	}

	var count int
	if err := s.DB().Get(&count, `SELECT COUNT(*) FROM "BTCUSDT"`); err != nil {
		t.Fatal(err)
	}
	if count != 40 {
		t.Fatalf("rows = %d, want 40", count)
	}

	var first string
	if err := s.DB().Get(&first, `SELECT "openTime" FROM "BTCUSDT" ORDER BY "openTime" LIMIT 1`); err != nil {
		t.Fatal(err)
	}
	if first != "2024-01-01 00:00:00" {
		t.Errorf("first openTime = %q", first)
	}

	h, err := s.Header(ctx, "BTCUSDT")
	if err != nil || len(h) != 72 {
		t.Fatalf("header = %d, %v", len(h), err)
	}

	bad := features.Matrix{Header: h[:12]}
	if _, err := s.Write(ctx, "BTCUSDT", bad, Append); !errors.Is(err, ErrHeaderMismatch) {
		t.Fatalf("expected ErrHeaderMismatch, got %v", err)
	}
}

func emptyMatrix(t *testing.T) features.Matrix {
	t.Helper()
	m, err := features.Compute(nil)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestCreateTableSQL_TypesFromCatalogue(t *testing.T) {
	m := emptyMatrix(t)
	ddl := createTableSQL("t", columnNames(m.Header), m)
	for _, want := range []string{
		`"openTime" TEXT PRIMARY KEY`,
		`"closeTime" TEXT`,
		`"ignore" TEXT`,
		`"close" DOUBLE PRECISION`,
		`"fibA_618" DOUBLE PRECISION`,
	} {
		if !strings.Contains(ddl, want) {
			t.Errorf("ddl missing %s", want)
		}
	}
}

func TestSQLite_EmptyReplaceThenAppend(t *testing.T) {
	s, err := NewSQL("sqlite3", filepath.Join(t.TempDir(), "features.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if n, err := s.Write(ctx, "BTCUSDT", emptyMatrix(t), Replace); err != nil || n != 0 {
		t.Fatalf("empty replace = %d, %v", n, err)
	}
	if n, err := s.Write(ctx, "BTCUSDT", matrix(t, 5), Append); err != nil || n != 5 {
		t.Fatalf("append = %d, %v", n, err)
	}

	for col, want := range map[string]string{"openTime": "TEXT", "ignore": "TEXT", "close": "DOUBLE PRECISION"} {
		var declared string
		if err := s.DB().Get(&declared, `SELECT type FROM pragma_table_info('BTCUSDT') WHERE name = ?`, col); err != nil {
			t.Fatal(err)
		}
		if declared != want {
			t.Errorf("%s declared %q, want %q", col, declared, want)
		}
	}
	var stored string
	if err := s.DB().Get(&stored, `SELECT typeof("openTime") FROM "BTCUSDT" LIMIT 1`); err != nil {
		t.Fatal(err)
	}
	if stored != "text" {
		t.Errorf("openTime stored as %s", stored)
	}
}

func TestParquetSchema_EmptyMatrixKeepsTextColumns(t *testing.T) {
	schema, _ := parquetSchema("t", emptyMatrix(t))
	kinds := map[string]parquet.Kind{}
	for _, f := range schema.Fields() {
		kinds[f.Name()] = f.Type().Kind()
	}
	if kinds["openTime"] != parquet.ByteArray || kinds["ignore"] != parquet.ByteArray {
		t.Errorf("text columns typed %v / %v", kinds["openTime"], kinds["ignore"])
	}
	if kinds["close"] != parquet.Double {
		t.Errorf("close typed %v", kinds["close"])
	}
}

// ════════════════════════════════════════════════════════════════
// Redis (needs a live server)
// ════════════════════════════════════════════════════════════════

func TestRedis_Live(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	s, err := NewRedis(RedisConfig{Addr: addr})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	tab := "test_" + strconv.FormatInt(time.Now().UnixNano(), 36)
	defer s.Client().Del(ctx, headerKey(tab), rowsKey(tab), indexKey(tab))

	m := matrix(t, 10)
	if _, err := s.Write(ctx, tab, head(m, 6), Replace); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Write(ctx, tab, m, Append); err != nil {
		t.Fatal(err)
	}
	if n := s.Client().HLen(ctx, rowsKey(tab)).Val(); n != 10 {
		t.Fatalf("hash size = %d, want 10", n)
	}
	if n := s.Client().ZCard(ctx, indexKey(tab)).Val(); n != 10 {
		t.Fatalf("index size = %d, want 10", n)
	}
	h, err := s.Header(ctx, tab)
	if err != nil || len(h) != 72 {
		t.Fatalf("header = %d, %v", len(h), err)
	}
}

// ════════════════════════════════════════════════════════════════
// Instrumented
// ════════════════════════════════════════════════════════════════

func TestInstrumented(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	csvSink, _ := NewCSV(t.TempDir())
	s := Instrument(csvSink, m)

	if _, err := s.Write(ctx, "t", matrix(t, 7), Replace); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(m.RowsWritten.WithLabelValues("csv", "replace")); got != 7 {
		t.Errorf("rows written = %v, want 7", got)
	}
	if _, err := s.Write(ctx, "../bad", matrix(t, 1), Replace); err == nil {
		t.Fatal("expected error")
	}
	if got := testutil.ToFloat64(m.SinkErrors.WithLabelValues("csv")); got != 1 {
		t.Errorf("sink errors = %v, want 1", got)
	}
	if Instrument(csvSink, nil) != Sink(csvSink) {
		t.Error("nil metrics should not wrap")
	}
}
