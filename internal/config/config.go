package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/leafsii/collateral-engine/internal/oracle"
	"github.com/leafsii/collateral-engine/pkg/kv"
)

type Config struct {
	Env      string `mapstructure:"DSC_ENV"`
	HTTPAddr string `mapstructure:"DSC_HTTP_ADDR"`
	LogLevel string `mapstructure:"DSC_LOG_LEVEL"`

	Engine   EngineConfig   `mapstructure:",squash"`
	Oracle   OracleConfig   `mapstructure:",squash"`
	Prices   PriceConfig    `mapstructure:",squash"`
	Store    StoreConfig    `mapstructure:",squash"`
	Database DBConfig       `mapstructure:",squash"`
	Monitor  MonitorConfig  `mapstructure:",squash"`
	Security SecurityConfig `mapstructure:",squash"`
}

type EngineConfig struct {
	Address          string   `mapstructure:"DSC_ENGINE_ADDRESS"`
	StableToken      string   `mapstructure:"DSC_STABLE_TOKEN_ADDRESS"`
	Admin            string   `mapstructure:"DSC_ADMIN_ADDRESS"` // owner of the dev collateral tokens
	CollateralAssets []string `mapstructure:"DSC_COLLATERAL_ASSETS"`
	PriceFeeds       []string `mapstructure:"DSC_PRICE_FEEDS"`
}

type OracleConfig struct {
	FeedDecimals int           `mapstructure:"DSC_FEED_DECIMALS"`
	MaxAge       time.Duration `mapstructure:"DSC_ORACLE_MAX_AGE"`
}

type PriceConfig struct {
	Provider      string `mapstructure:"DSC_PRICE_PROVIDER"` // "static", "binance"
	StaticPrices  string `mapstructure:"DSC_STATIC_PRICES"`  // "ETH/USD=2000,BTC/USD=30000"
	BinanceStream bool   `mapstructure:"DSC_BINANCE_STREAM"`
}

type StoreConfig struct {
	Backend  string `mapstructure:"DSC_KV_BACKEND"`
	RedisURL string `mapstructure:"DSC_REDIS_URL"`
}

type DBConfig struct {
	// optional; the event journal is disabled without it
	PostgresDSN string `mapstructure:"DSC_POSTGRES_DSN"`
}

type MonitorConfig struct {
	Interval time.Duration `mapstructure:"DSC_MONITOR_INTERVAL"`
}

type SecurityConfig struct {
	RateLimitRPM       int      `mapstructure:"DSC_RATE_LIMIT_RPM"`
	CORSAllowedOrigins []string `mapstructure:"DSC_CORS_ALLOWED_ORIGINS"`
}

func loadDotEnvFiles() {
	candidates := []string{
		".env",
		filepath.Join("..", ".env"),
	}

	seen := make(map[string]struct{})
	for _, path := range candidates {
		abs := path
		if resolved, err := filepath.Abs(path); err == nil {
			abs = resolved
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}

		if _, err := os.Stat(path); err == nil {
			_ = gotenv.Load(path) // env vars already set take precedence
		}
	}
}

func Load() (*Config, error) {
	loadDotEnvFiles()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("DSC_ENV", "dev")
	v.SetDefault("DSC_HTTP_ADDR", ":8080")
	v.SetDefault("DSC_LOG_LEVEL", "")
	v.SetDefault("DSC_ENGINE_ADDRESS", "0x00000000000000000000000000000000000e6e6e")
	v.SetDefault("DSC_STABLE_TOKEN_ADDRESS", "0x0000000000000000000000000000000000005dc0")
	v.SetDefault("DSC_ADMIN_ADDRESS", "0x000000000000000000000000000000000000ad01")
	v.SetDefault("DSC_COLLATERAL_ASSETS", "0x000000000000000000000000000000000000e7e7,0x000000000000000000000000000000000000b7c0")
	v.SetDefault("DSC_PRICE_FEEDS", "ETH/USD,BTC/USD")
	v.SetDefault("DSC_FEED_DECIMALS", 8)
	v.SetDefault("DSC_ORACLE_MAX_AGE", "3h")
	v.SetDefault("DSC_PRICE_PROVIDER", "static")
	v.SetDefault("DSC_STATIC_PRICES", "ETH/USD=2000,BTC/USD=30000")
	v.SetDefault("DSC_BINANCE_STREAM", false)
	v.SetDefault("DSC_KV_BACKEND", "memory")
	v.SetDefault("DSC_REDIS_URL", "redis://127.0.0.1:6379/0")
	v.SetDefault("DSC_POSTGRES_DSN", "")
	v.SetDefault("DSC_MONITOR_INTERVAL", "30s")
	v.SetDefault("DSC_RATE_LIMIT_RPM", 120)
	v.SetDefault("DSC_CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")

	if file := os.Getenv("DSC_CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	// Handle array parsing for comma-separated values
	for _, key := range []string{"DSC_COLLATERAL_ASSETS", "DSC_PRICE_FEEDS", "DSC_CORS_ALLOWED_ORIGINS"} {
		if raw := v.GetString(key); raw != "" {
			v.Set(key, splitList(raw))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) validate() error {
	switch c.Env {
	case "dev", "staging", "prod":
	default:
		return fmt.Errorf("invalid DSC_ENV %q (must be dev, staging, or prod)", c.Env)
	}

	for name, addr := range map[string]string{
		"DSC_ENGINE_ADDRESS":       c.Engine.Address,
		"DSC_STABLE_TOKEN_ADDRESS": c.Engine.StableToken,
		"DSC_ADMIN_ADDRESS":        c.Engine.Admin,
	} {
		if err := validAddress(addr); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	if len(c.Engine.CollateralAssets) == 0 {
		return fmt.Errorf("DSC_COLLATERAL_ASSETS is required")
	}
	if len(c.Engine.CollateralAssets) != len(c.Engine.PriceFeeds) {
		return fmt.Errorf("DSC_COLLATERAL_ASSETS has %d entries but DSC_PRICE_FEEDS has %d",
			len(c.Engine.CollateralAssets), len(c.Engine.PriceFeeds))
	}
	for _, addr := range c.Engine.CollateralAssets {
		if err := validAddress(addr); err != nil {
			return fmt.Errorf("DSC_COLLATERAL_ASSETS: %w", err)
		}
	}

	if c.Oracle.FeedDecimals < 0 || c.Oracle.FeedDecimals > 18 {
		return fmt.Errorf("DSC_FEED_DECIMALS must be between 0 and 18, got %d", c.Oracle.FeedDecimals)
	}
	if c.Oracle.MaxAge <= 0 {
		return fmt.Errorf("DSC_ORACLE_MAX_AGE must be positive")
	}

	switch c.Prices.Provider {
	case "static":
		prices, err := oracle.ParsePrices(c.Prices.StaticPrices)
		if err != nil {
			return fmt.Errorf("DSC_STATIC_PRICES: %w", err)
		}
		for _, feed := range c.Engine.PriceFeeds {
			if _, ok := prices[strings.ToUpper(feed)]; !ok {
				return fmt.Errorf("DSC_STATIC_PRICES has no price for %s", feed)
			}
		}
	case "binance":
	default:
		return fmt.Errorf("invalid DSC_PRICE_PROVIDER %q (must be static or binance)", c.Prices.Provider)
	}

	switch kv.Backend(c.Store.Backend) {
	case kv.BackendMemory:
	case kv.BackendRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("DSC_REDIS_URL is required when DSC_KV_BACKEND is redis")
		}
	default:
		return fmt.Errorf("invalid DSC_KV_BACKEND %q (must be memory or redis)", c.Store.Backend)
	}

	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("DSC_MONITOR_INTERVAL must be positive")
	}
	return nil
}

func validAddress(s string) error {
	if !common.IsHexAddress(s) {
		return fmt.Errorf("malformed address %q", s)
	}
	if common.HexToAddress(s) == (common.Address{}) {
		return fmt.Errorf("zero address")
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

func (c *Config) IsProd() bool {
	return c.Env == "prod"
}

func (c *Config) EngineAddress() common.Address {
	return common.HexToAddress(c.Engine.Address)
}

func (c *Config) StableTokenAddress() common.Address {
	return common.HexToAddress(c.Engine.StableToken)
}

func (c *Config) AdminAddress() common.Address {
	return common.HexToAddress(c.Engine.Admin)
}

// CollateralAddresses returns the configured assets in order. Load has
// already validated them.
func (c *Config) CollateralAddresses() []common.Address {
	out := make([]common.Address, len(c.Engine.CollateralAssets))
	for i, s := range c.Engine.CollateralAssets {
		out[i] = common.HexToAddress(s)
	}
	return out
}
