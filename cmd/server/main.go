// The server runs one runtime per active trading bot against the shared
// price store, plus the metrics endpoint.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/iacolabs/gridbot/internal/bot"
	"github.com/iacolabs/gridbot/internal/config"
	"github.com/iacolabs/gridbot/internal/exchange"
	"github.com/iacolabs/gridbot/internal/monitoring"
	"github.com/iacolabs/gridbot/internal/notifications"
	"github.com/iacolabs/gridbot/internal/storage"
	"github.com/iacolabs/gridbot/internal/store"
	"github.com/iacolabs/gridbot/internal/strategy"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	setupLogger(cfg.LogLevel)

	db, err := storage.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	cache, err := store.New(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer cache.Close()

	metrics := monitoring.NewServer(cfg.MetricsAddr)
	metrics.Start()

	var executor exchange.OrderExecutor
	if cfg.LiveTrading {
		executor = exchange.NewLiveExecutor(cfg.BinanceBaseURL, cfg.BinanceAPIKey, cfg.BinanceAPISecret)
		log.Warn().Msg("live trading enabled, orders will be sent to the exchange")
	}

	tun := strategy.Tunables{
		FeePct:          cfg.FeePct,
		BuyPullbackPct:  cfg.BuyPullbackPct,
		SellPullbackPct: cfg.SellPullbackPct,
	}
	opts := bot.Options{
		TickInterval:    cfg.TickInterval,
		ActivePollTicks: cfg.ActivePollTicks,
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		opts.Notifier = notifications.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID)
		log.Info().Msg("telegram trade alerts enabled")
	}
	factory := func(row *storage.TradingBot) *bot.Runtime {
		return bot.NewRuntime(row, tun, cache, db.Bots, db.Trades, executor, opts)
	}
	scheduler := bot.NewScheduler(factory, db.Bots)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := scheduler.StartAll(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start bot runtimes")
	}
	log.Info().Msg("grid bot server running")

	<-ctx.Done()
	log.Info().Msg("shutting down")
	scheduler.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metrics.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("metrics server shutdown failed")
	}
}

func setupLogger(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}
