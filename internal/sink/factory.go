package sink

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Config selects and configures a sink.
type Config struct {
	Kind string // csv, parquet, sqlite, postgres, redis, stdout
	Dir  string // csv, parquet
	DSN  string // sqlite file path or postgres URL

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Stdout io.Writer // stdout; os.Stdout if nil
}

// Kinds lists the supported sink kinds.
var Kinds = []string{"csv", "parquet", "sqlite", "postgres", "redis", "stdout"}

// Open creates the sink named by cfg.Kind.
func Open(cfg Config) (Sink, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "csv":
		return NewCSV(cfg.Dir)
	case "parquet":
		return NewParquet(cfg.Dir)
	case "sqlite":
		return NewSQL("sqlite3", cfg.DSN)
	case "postgres", "postgresql":
		return NewSQL("postgres", cfg.DSN)
	case "redis":
		return NewRedis(RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	case "stdout", "":
		w := cfg.Stdout
		if w == nil {
			w = os.Stdout
		}
		return NewStdout(w), nil
	default:
		return nil, fmt.Errorf("%w: %q (use: %s)", ErrUnknownKind, cfg.Kind, strings.Join(Kinds, ", "))
	}
}
