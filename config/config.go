// Package config loads featuregen settings from defaults, an optional YAML
// file, a .env file and the process environment, in that order of
// increasing precedence. CLI flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// SinceLayout is the date format of the Since setting.
const SinceLayout = "2006-01-02"

// Config holds all featuregen settings.
type Config struct {
	Provider  string `yaml:"provider" default:"binance" validate:"oneof=binance file"`
	Symbol    string `yaml:"symbol" default:"BTCUSDT" validate:"required,alphanum"`
	Since     string `yaml:"since" default:"2017-01-01" validate:"datetime=2006-01-02"`
	InputFile string `yaml:"input_file" validate:"required_if=Provider file"`

	Sink    SinkConfig    `yaml:"sink"`
	Redis   RedisConfig   `yaml:"redis"`
	Binance BinanceConfig `yaml:"binance"`

	MetricsAddr string `yaml:"metrics_addr"` // empty disables the HTTP server
	LogLevel    string `yaml:"log_level" default:"info" validate:"oneof=debug info warn warning error"`
}

// SinkConfig selects where the matrix goes.
type SinkConfig struct {
	Kind string `yaml:"kind" default:"csv" validate:"oneof=csv parquet sqlite postgres redis stdout"`
	DSN  string `yaml:"dsn" validate:"required_if=Kind sqlite,required_if=Kind postgres"`
	Dir  string `yaml:"dir" default:"data"`
	Tab  string `yaml:"tab"` // defaults to Symbol
	Mode string `yaml:"write_mode" default:"replace" validate:"oneof=replace append"`
}

// RedisConfig configures the redis sink and health probe.
type RedisConfig struct {
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"min=0"`
}

// BinanceConfig tunes the REST candle source. Empty Bases means the
// built-in endpoint list.
type BinanceConfig struct {
	Bases           []string `yaml:"bases" validate:"dive,url"`
	PacingMS        int      `yaml:"request_pacing_ms" default:"120" validate:"min=0"`
	TimeoutSec      int      `yaml:"http_timeout_sec" default:"30" validate:"min=1"`
	BreakerFailures int      `yaml:"breaker_failures" default:"3" validate:"min=1"`
	BreakerResetSec int      `yaml:"breaker_reset_sec" default:"60" validate:"min=1"`
}

var validate = validator.New()

// Load builds the configuration. A missing .env file is not an error; a
// missing FEATURES_CONFIG file is.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if path := os.Getenv("FEATURES_CONFIG"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate normalizes derived fields and checks every constraint.
func (c *Config) Validate() error {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.Sink.Kind = strings.ToLower(strings.TrimSpace(c.Sink.Kind))
	c.Sink.Mode = strings.ToLower(strings.TrimSpace(c.Sink.Mode))
	c.Symbol = strings.ToUpper(strings.TrimSpace(c.Symbol))
	if c.Sink.Tab == "" {
		c.Sink.Tab = c.Symbol
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// SinceTime parses Since as a UTC date.
func (c *Config) SinceTime() (time.Time, error) {
	return time.ParseInLocation(SinceLayout, c.Since, time.UTC)
}

// Pacing is the delay before each REST request.
func (c BinanceConfig) Pacing() time.Duration { return time.Duration(c.PacingMS) * time.Millisecond }

// Timeout is the per-request HTTP timeout.
func (c BinanceConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSec) * time.Second }

// BreakerCooldown is how long an endpoint stays open after tripping.
func (c BinanceConfig) BreakerCooldown() time.Duration {
	return time.Duration(c.BreakerResetSec) * time.Second
}

func (c *Config) applyEnv() error {
	setString(&c.Provider, "PROVIDER")
	setString(&c.Symbol, "SYMBOL")
	setString(&c.Since, "SINCE")
	setString(&c.InputFile, "INPUT_FILE")
	setString(&c.Sink.Kind, "SINK")
	setString(&c.Sink.DSN, "SINK_DSN")
	setString(&c.Sink.Dir, "SINK_DIR")
	setString(&c.Sink.Tab, "SINK_TAB")
	setString(&c.Sink.Mode, "WRITE_MODE")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.MetricsAddr, "METRICS_ADDR")
	setString(&c.LogLevel, "LOG_LEVEL")

	if v := os.Getenv("BINANCE_BASES"); v != "" {
		c.Binance.Bases = c.Binance.Bases[:0]
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.Binance.Bases = append(c.Binance.Bases, b)
			}
		}
	}

	for _, e := range []struct {
		key string
		dst *int
	}{
		{"REDIS_DB", &c.Redis.DB},
		{"REQUEST_PACING_MS", &c.Binance.PacingMS},
		{"HTTP_TIMEOUT_SEC", &c.Binance.TimeoutSec},
		{"BREAKER_FAILURES", &c.Binance.BreakerFailures},
		{"BREAKER_RESET_SEC", &c.Binance.BreakerResetSec},
	} {
		if err := setInt(e.dst, e.key); err != nil {
			return err
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("config: %s=%q is not an integer", key, v)
	}
	*dst = n
	return nil
}
