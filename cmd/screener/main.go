// The screener optimizes parameters across the whole market for one quote
// asset, publishing progress to the volatile store and persisting the final
// leaderboard.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/iacolabs/gridbot/internal/config"
	"github.com/iacolabs/gridbot/internal/exchange"
	"github.com/iacolabs/gridbot/internal/screening"
	"github.com/iacolabs/gridbot/internal/storage"
	"github.com/iacolabs/gridbot/internal/store"
	"github.com/iacolabs/gridbot/internal/strategy"
)

func main() {
	var (
		quote    = flag.String("quote", "USDC", "Quote asset defining the symbol universe")
		interval = flag.String("interval", "1h", "Candle interval")
		limit    = flag.Int("limit", 2000, "Candles to fetch per symbol")
		amount   = flag.Float64("amount", 1000, "Budget to simulate per symbol")
		pace     = flag.Duration("pace", 500*time.Millisecond, "Minimum delay between symbols")
		userID   = flag.Int64("user", 0, "User id to attribute the results to")
		envFile  = flag.String("env", ".env", "Environment file path")
	)
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
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

	client := exchange.NewClient(cfg.BinanceBaseURL)
	tun := strategy.Tunables{
		FeePct:          cfg.FeePct,
		BuyPullbackPct:  cfg.BuyPullbackPct,
		SellPullbackPct: cfg.SellPullbackPct,
	}
	job := screening.NewJob(client, cache, client, cache, db.Screening, tun)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	taskID := uuid.NewString()
	log.Info().Str("task_id", taskID).Str("quote", *quote).Msg("screening task starting")

	if err := job.Run(ctx, taskID, screening.Params{
		UserID:      *userID,
		Interval:    *interval,
		Limit:       *limit,
		TotalAmount: *amount,
		Quote:       *quote,
		Pace:        *pace,
	}); err != nil {
		log.Fatal().Err(err).Str("task_id", taskID).Msg("screening failed")
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
