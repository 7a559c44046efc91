// The backtest command replays historical candles through the grid strategy,
// either with fixed parameters or with a train/test parameter optimization.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/iacolabs/gridbot/internal/backtest"
	"github.com/iacolabs/gridbot/internal/config"
	"github.com/iacolabs/gridbot/internal/exchange"
	"github.com/iacolabs/gridbot/internal/optimizer"
	"github.com/iacolabs/gridbot/internal/strategy"
	"github.com/iacolabs/gridbot/pkg/reporting"
)

func main() {
	var (
		symbol   = flag.String("symbol", "", "Trading pair to backtest (e.g. BTCUSDC)")
		interval = flag.String("interval", "1h", "Candle interval")
		limit    = flag.Int("limit", 2000, "Number of candles to fetch from the REST API")
		days     = flag.Int("days", 0, "Fetch N days of candles from the public archive instead of the REST API")
		amount   = flag.Float64("amount", 1000, "Total budget to allocate")
		minPrice = flag.Float64("min", 0, "Lower bound of the price range (fixed run)")
		maxPrice = flag.Float64("max", 0, "Upper bound of the price range (fixed run)")
		grids    = flag.Int("grids", 10, "Number of grid levels (fixed run)")
		sellPct  = flag.Float64("sell", 2.0, "Sell target percent (fixed run)")
		optimize = flag.Bool("optimize", false, "Run the parameter optimizer instead of a fixed backtest")
		output   = flag.String("output", "", "Write optimization results to this .xlsx path")
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

	if *symbol == "" {
		log.Fatal().Msg("please specify a trading pair with -symbol")
	}

	ctx := context.Background()
	klines, err := fetchKlines(ctx, cfg, *symbol, *interval, *limit, *days)
	if err != nil {
		log.Fatal().Err(err).Str("symbol", *symbol).Msg("failed to fetch candles")
	}
	if len(klines) == 0 {
		log.Fatal().Str("symbol", *symbol).Msg("no candles returned")
	}
	log.Info().Str("symbol", *symbol).Int("candles", len(klines)).Msg("candles loaded")

	closePrices := make([]float64, len(klines))
	for i, k := range klines {
		closePrices[i] = k.Close
	}

	tun := strategy.Tunables{
		FeePct:          cfg.FeePct,
		BuyPullbackPct:  cfg.BuyPullbackPct,
		SellPullbackPct: cfg.SellPullbackPct,
	}
	console := reporting.NewConsoleReporter()

	if *optimize {
		res, err := optimizer.Optimize(*symbol, closePrices, optimizer.Options{TotalAmount: *amount}, tun)
		if err != nil {
			log.Fatal().Err(err).Msg("optimization failed")
		}
		console.PrintOptimization(*symbol, res)
		if *output != "" {
			if err := reporting.NewExcelReporter().WriteOptimization(*symbol, res, *output); err != nil {
				log.Fatal().Err(err).Str("path", *output).Msg("failed to write workbook")
			}
			log.Info().Str("path", *output).Msg("optimization workbook written")
		}
		return
	}

	if *minPrice <= 0 || *maxPrice <= *minPrice {
		log.Fatal().Msg("a fixed run needs -min and -max with min < max, or pass -optimize")
	}
	res := backtest.Run(*symbol, closePrices, backtest.Params{
		MinPrice:       *minPrice,
		MaxPrice:       *maxPrice,
		GridLevels:     *grids,
		SellPercentage: *sellPct,
		TotalAmount:    *amount,
	}, tun)
	console.PrintBacktest(*symbol, res)
}

func fetchKlines(ctx context.Context, cfg *config.Config, symbol, interval string, limit, days int) ([]exchange.Kline, error) {
	if days > 0 {
		return exchange.NewVisionClient(cfg.VisionBaseURL).FetchKlines(ctx, symbol, interval, days)
	}
	return exchange.NewClient(cfg.BinanceBaseURL).FetchKlines(ctx, symbol, interval, limit)
}

func setupLogger(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}
