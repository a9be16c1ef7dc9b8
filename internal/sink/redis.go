package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"ohlcv-features/internal/features"
)

// RedisConfig configures the Redis sink.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Redis stores a tab under three keys: the JSON header, a hash of
// openTime to the JSON-encoded row, and a sorted set of openTimes scored by
// epoch milliseconds.
type Redis struct {
	client *goredis.Client
}

// NewRedis connects and pings the server.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis sink: ping %s: %w", cfg.Addr, err)
	}
	return &Redis{client: client}, nil
}

// Client returns the underlying client for health checks.
func (s *Redis) Client() *goredis.Client { return s.client }

func (s *Redis) Kind() string { return "redis" }
func (s *Redis) Close() error { return s.client.Close() }

func headerKey(tab string) string { return "features:" + tab + ":header" }
func rowsKey(tab string) string   { return "features:" + tab + ":rows" }
func indexKey(tab string) string  { return "features:" + tab + ":index" }

func (s *Redis) Header(ctx context.Context, tab string) ([]string, error) {
	if err := ValidateTab(tab); err != nil {
		return nil, err
	}
	raw, err := s.client.Get(ctx, headerKey(tab)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, headerKey(tab))
	}
	if err != nil {
		return nil, fmt.Errorf("redis sink: get header: %w", err)
	}
	var h []string
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return nil, fmt.Errorf("redis sink: decode header: %w", err)
	}
	return h, nil
}

func (s *Redis) Write(ctx context.Context, tab string, m features.Matrix, mode Mode) (int, error) {
	if err := ValidateTab(tab); err != nil {
		return 0, err
	}
	if mode == Append {
		stored, err := s.Header(ctx, tab)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return 0, err
		}
		if err == nil {
			if err := checkHeader(stored, m.Header); err != nil {
				return 0, err
			}
		}
	}

	header, err := json.Marshal(m.Header)
	if err != nil {
		return 0, fmt.Errorf("redis sink: %w", err)
	}
	fields := make([]any, 0, 2*m.Len())
	members := make([]*goredis.Z, 0, m.Len())
	for _, r := range m.Rows {
		payload, err := encodeRow(r)
		if err != nil {
			return 0, fmt.Errorf("redis sink: encode %s: %w", r.Key(), err)
		}
		fields = append(fields, r.Key(), payload)
		members = append(members, &goredis.Z{Score: rowScore(r.Key()), Member: r.Key()})
	}

	_, err = s.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		if mode != Append {
			p.Del(ctx, rowsKey(tab), indexKey(tab))
		}
		p.Set(ctx, headerKey(tab), header, 0)
		if len(fields) > 0 {
			p.HSet(ctx, rowsKey(tab), fields...)
			p.ZAdd(ctx, indexKey(tab), members...)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis sink: write %s: %w", tab, err)
	}
	return m.Len(), nil
}

// encodeRow renders a row as a JSON array of numbers, strings and nulls.
func encodeRow(r features.Row) (string, error) {
	vals := make([]any, len(r))
	for j, c := range r {
		vals[j] = cellValue(c)
	}
	b, err := json.Marshal(vals)
	return string(b), err
}

// rowScore is the openTime in epoch milliseconds, 0 if unparsable.
func rowScore(key string) float64 {
	t, err := time.Parse(features.TimeLayout, key)
	if err != nil {
		return 0
	}
	return float64(t.UnixMilli())
}
