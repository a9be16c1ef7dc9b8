package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"ohlcv-features/internal/features"
)

const headersTable = "feature_headers"

// headerRecord is one row of the feature_headers table.
type headerRecord struct {
	Tab       string `db:"tab"`
	Version   int    `db:"version"`
	Header    string `db:"header"`
	UpdatedAt string `db:"updated_at"`
}

// SQL stores each tab as a table keyed by openTime, with the full header
// kept in feature_headers. Works against sqlite3 and postgres.
type SQL struct {
	db     *sqlx.DB
	driver string
}

// NewSQL opens the database and creates the header table.
func NewSQL(driver, dsn string) (*SQL, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%s sink: empty dsn", driver)
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s sink: open: %w", driver, err)
	}
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}
	s := &SQL{db: db, driver: driver}
	ddl := `CREATE TABLE IF NOT EXISTS ` + headersTable + ` (
		tab TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		header TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s sink: init: %w", driver, err)
	}
	return s, nil
}

func (s *SQL) Kind() string {
	if s.driver == "sqlite3" {
		return "sqlite"
	}
	return s.driver
}

// DB exposes the pool for health checks.
func (s *SQL) DB() *sqlx.DB { return s.db }

func (s *SQL) Close() error { return s.db.Close() }

func (s *SQL) Header(ctx context.Context, tab string) ([]string, error) {
	if err := ValidateTab(tab); err != nil {
		return nil, err
	}
	var rec headerRecord
	q := s.db.Rebind(`SELECT tab, version, header, updated_at FROM ` + headersTable + ` WHERE tab = ?`)
	err := s.db.GetContext(ctx, &rec, q, tab)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: table %s", ErrNotFound, tab)
	}
	if err != nil {
		return nil, fmt.Errorf("%s sink: read header: %w", s.Kind(), err)
	}
	var h []string
	if err := json.Unmarshal([]byte(rec.Header), &h); err != nil {
		return nil, fmt.Errorf("%s sink: decode header: %w", s.Kind(), err)
	}
	return h, nil
}

func (s *SQL) Write(ctx context.Context, tab string, m features.Matrix, mode Mode) (int, error) {
	if err := ValidateTab(tab); err != nil {
		return 0, err
	}
	create := true
	if mode == Append {
		stored, err := s.Header(ctx, tab)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return 0, err
		default:
			if err := checkHeader(stored, m.Header); err != nil {
				return 0, err
			}
			create = false
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s sink: begin: %w", s.Kind(), err)
	}
	defer tx.Rollback()

	names := columnNames(m.Header)
	if create {
		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+quoteIdent(tab)); err != nil {
			return 0, fmt.Errorf("%s sink: drop %s: %w", s.Kind(), tab, err)
		}
		if _, err := tx.ExecContext(ctx, createTableSQL(tab, names, m)); err != nil {
			return 0, fmt.Errorf("%s sink: create %s: %w", s.Kind(), tab, err)
		}
	}

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(upsertSQL(tab, names)))
	if err != nil {
		return 0, fmt.Errorf("%s sink: prepare: %w", s.Kind(), err)
	}
	defer stmt.Close()

	args := make([]any, len(names))
	for _, r := range m.Rows {
		for j, c := range r {
			args[j] = cellValue(c)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("%s sink: insert %s %s: %w", s.Kind(), tab, r.Key(), err)
		}
	}

	if err := s.saveHeader(ctx, tx, tab, m.Header); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s sink: commit: %w", s.Kind(), err)
	}
	return m.Len(), nil
}

func (s *SQL) saveHeader(ctx context.Context, tx *sqlx.Tx, tab string, header []string) error {
	raw, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("%s sink: %w", s.Kind(), err)
	}
	q := tx.Rebind(`INSERT INTO ` + headersTable + ` (tab, version, header, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (tab) DO UPDATE SET version = excluded.version, header = excluded.header, updated_at = excluded.updated_at`)
	if _, err := tx.ExecContext(ctx, q, tab, features.HeaderVersion, string(raw), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("%s sink: save header: %w", s.Kind(), err)
	}
	return nil
}

func columnNames(header []string) []string {
	out := make([]string, len(header))
	for j, h := range header {
		out[j] = features.NameOf(h)
	}
	return out
}

func createTableSQL(tab string, names []string, m features.Matrix) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(quoteIdent(tab))
	b.WriteString(" (")
	for j, name := range names {
		if j > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quoteIdent(name))
		if textColumn(m, j) {
			b.WriteString(" TEXT")
		} else {
			b.WriteString(" DOUBLE PRECISION")
		}
		if j == 0 {
			b.WriteString(" PRIMARY KEY")
		}
	}
	b.WriteString(")")
	return b.String()
}

// upsertSQL inserts a row and overwrites every non-key column on conflict.
func upsertSQL(tab string, names []string) string {
	cols := make([]string, len(names))
	marks := make([]string, len(names))
	for j, n := range names {
		cols[j] = quoteIdent(n)
		marks[j] = "?"
	}
	q := "INSERT INTO " + quoteIdent(tab) + " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"
	if len(cols) < 2 {
		return q + " ON CONFLICT (" + cols[0] + ") DO NOTHING"
	}
	set := make([]string, 0, len(cols)-1)
	for _, c := range cols[1:] {
		set = append(set, c+" = excluded."+c)
	}
	return q + " ON CONFLICT (" + cols[0] + ") DO UPDATE SET " + strings.Join(set, ", ")
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
