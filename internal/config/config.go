package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	RedisAddr    string        `mapstructure:"REDIS_ADDR"`
	RedisPass    string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB      int           `mapstructure:"REDIS_DB"`
	UpstreamURL  string        `mapstructure:"UPSTREAM_URL"`
	HTTPPort     string        `mapstructure:"HTTP_PORT"`
	JWTSecret    string        `mapstructure:"JWT_SECRET"`
	JWTExpiry    time.Duration `mapstructure:"JWT_EXPIRY"`
	LogLevel     string        `mapstructure:"LOG_LEVEL"`
	MaxSymbols   int           `mapstructure:"MAX_SYMBOLS_MEMORY"`
	RSIPeriod    int           `mapstructure:"RSI_PERIOD"`
	RSILow       float64       `mapstructure:"RSI_LOW"`
	RSIHigh      float64       `mapstructure:"RSI_HIGH"`
	Symbols      string        `mapstructure:"SYMBOLS"`
	PollInterval time.Duration `mapstructure:"POLL_INTERVAL"`
	ReadingTTL   time.Duration `mapstructure:"READING_TTL"`
}

var keys = []string{
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "UPSTREAM_URL", "HTTP_PORT",
	"JWT_SECRET", "JWT_EXPIRY", "LOG_LEVEL", "MAX_SYMBOLS_MEMORY", "RSI_PERIOD",
	"RSI_LOW", "RSI_HIGH", "SYMBOLS", "POLL_INTERVAL", "READING_TTL",
}

// Load reads ./.env when present and overlays the process environment.
func Load() (*Config, error) {
	return load(viper.New(), ".")
}

func load(v *viper.Viper, dir string) (*Config, error) {
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(dir)
	v.AutomaticEnv()
	// AutomaticEnv only resolves keys viper already knows about.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.JWTExpiry == 0 {
		c.JWTExpiry = 24 * time.Hour
	}
	if c.MaxSymbols == 0 {
		c.MaxSymbols = 1000
	}
	if c.HTTPPort == "" {
		c.HTTPPort = ":8080"
	}
	if c.RedisAddr == "" {
		c.RedisAddr = "localhost:6379"
	}
	if c.RSIPeriod == 0 {
		c.RSIPeriod = 14
	}
	if c.RSILow == 0 && c.RSIHigh == 0 {
		c.RSILow, c.RSIHigh = 30, 70
	}
	if c.PollInterval == 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.ReadingTTL == 0 {
		c.ReadingTTL = 24 * time.Hour
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	if c.RSIPeriod <= 1 {
		return fmt.Errorf("RSI_PERIOD must be greater than 1, got %d", c.RSIPeriod)
	}
	if c.RSILow >= c.RSIHigh {
		return fmt.Errorf("RSI_LOW (%v) must be below RSI_HIGH (%v)", c.RSILow, c.RSIHigh)
	}
	if c.MaxSymbols < 0 {
		return fmt.Errorf("MAX_SYMBOLS_MEMORY must not be negative")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}

// SymbolList splits SYMBOLS into upper-cased, de-duplicated tickers.
func (c *Config) SymbolList() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range strings.Split(c.Symbols, ",") {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
