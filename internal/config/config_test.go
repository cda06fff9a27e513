package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir moves into dir so no stray .env file is picked up.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsDev())
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, []string{"ETH/USD", "BTC/USD"}, cfg.Engine.PriceFeeds)
	assert.Len(t, cfg.CollateralAddresses(), 2)
	assert.Equal(t, 3*time.Hour, cfg.Oracle.MaxAge)
	assert.Equal(t, 8, cfg.Oracle.FeedDecimals)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "static", cfg.Prices.Provider)
	assert.Equal(t, 30*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.Security.CORSAllowedOrigins)
	assert.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000e6e6e"), cfg.EngineAddress())
}

func TestLoadFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DSC_ENV", "prod")
	t.Setenv("DSC_COLLATERAL_ASSETS", " 0x000000000000000000000000000000000000e7e7 ")
	t.Setenv("DSC_PRICE_FEEDS", "ETH/USD")
	t.Setenv("DSC_PRICE_PROVIDER", "binance")
	t.Setenv("DSC_ORACLE_MAX_AGE", "90m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProd())
	assert.Equal(t, []common.Address{common.HexToAddress("0xe7e7")}, cfg.CollateralAddresses())
	assert.Equal(t, 90*time.Minute, cfg.Oracle.MaxAge)
}

func TestLoadFromDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DSC_HTTP_ADDR=:9999\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("DSC_HTTP_ADDR") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTPAddr)
}

func TestLoadFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("DSC_RATE_LIMIT_RPM: 30\n"), 0o600))
	t.Setenv("DSC_CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Security.RateLimitRPM)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad env", map[string]string{"DSC_ENV": "qa"}, "DSC_ENV"},
		{"mismatched feeds", map[string]string{"DSC_PRICE_FEEDS": "ETH/USD"}, "DSC_PRICE_FEEDS has 1"},
		{"malformed asset", map[string]string{"DSC_COLLATERAL_ASSETS": "0x1234,0xnope"}, "malformed address"},
		{"zero engine", map[string]string{"DSC_ENGINE_ADDRESS": "0x0000000000000000000000000000000000000000"}, "zero address"},
		{"missing static price", map[string]string{"DSC_STATIC_PRICES": "ETH/USD=2000"}, "no price for BTC/USD"},
		{"unknown provider", map[string]string{"DSC_PRICE_PROVIDER": "chainlink"}, "DSC_PRICE_PROVIDER"},
		{"unknown backend", map[string]string{"DSC_KV_BACKEND": "etcd"}, "DSC_KV_BACKEND"},
		{"feed decimals", map[string]string{"DSC_FEED_DECIMALS": "19"}, "DSC_FEED_DECIMALS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
