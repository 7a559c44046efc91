package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 0.001, cfg.FeePct)
	assert.Equal(t, 0.002, cfg.BuyPullbackPct)
	assert.Equal(t, 0.002, cfg.SellPullbackPct)
	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.Equal(t, 30, cfg.ActivePollTicks)
	assert.Equal(t, 60*time.Second, cfg.SymbolRefreshInterval)
	assert.Equal(t, 10*time.Second, cfg.PriceTTL)
	assert.False(t, cfg.LiveTrading)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FEE_PCT", "0.0025")
	t.Setenv("BOT_TICK_INTERVAL", "2s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.0025, cfg.FeePct)
	assert.Equal(t, 2*time.Second, cfg.TickInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadRejectsBadTunables(t *testing.T) {
	t.Setenv("FEE_PCT", "1.5")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadLiveTradingRequiresKeys(t *testing.T) {
	t.Setenv("BINANCE_LIVE_TRADING", "true")
	t.Setenv("BINANCE_API_KEY", "")
	t.Setenv("BINANCE_API_SECRET", "")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("BINANCE_API_KEY", "k")
	t.Setenv("BINANCE_API_SECRET", "s")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.LiveTrading)
}

func TestInvalidEnvValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("FEE_PCT", "not-a-number")
	t.Setenv("BOT_ACTIVE_POLL_TICKS", "abc")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.001, cfg.FeePct)
	assert.Equal(t, 30, cfg.ActivePollTicks)
}
