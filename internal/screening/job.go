// Package screening runs full-market screening: parameter optimization over
// every eligible symbol with incremental progress published to the volatile
// store and final results persisted durably.
package screening

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/iacolabs/gridbot/internal/exchange"
	"github.com/iacolabs/gridbot/internal/monitoring"
	"github.com/iacolabs/gridbot/internal/optimizer"
	"github.com/iacolabs/gridbot/internal/storage"
	"github.com/iacolabs/gridbot/internal/strategy"
)

const (
	minKlines      = 200
	maxLiveResults = 50
)

// CandleSource fetches historical candles per symbol.
type CandleSource interface {
	FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]exchange.Kline, error)
}

// SymbolCache reads the cached symbol universe.
type SymbolCache interface {
	GetSymbols(ctx context.Context, quote string) ([]string, error)
}

// SymbolDiscovery is the upstream fallback when the cache is empty.
type SymbolDiscovery interface {
	Symbols(ctx context.Context, quote string) ([]string, error)
}

// ProgressStore publishes incremental progress blobs.
type ProgressStore interface {
	SetProgress(ctx context.Context, taskID string, blob any) error
}

// ResultStore persists the final result rows.
type ResultStore interface {
	SaveAll(ctx context.Context, results []storage.ScreeningResult) error
}

// SymbolResult is one screened symbol in the live progress blob.
type SymbolResult struct {
	Symbol             string  `json:"symbol"`
	BestPnLPct         float64 `json:"best_pnl_pct"`
	BestMinPrice       float64 `json:"best_min_price"`
	BestMaxPrice       float64 `json:"best_max_price"`
	BestGridLevels     int     `json:"best_grid_levels"`
	BestSellPercentage float64 `json:"best_sell_percentage"`
	NumTrades          int     `json:"num_trades"`
	WinRate            float64 `json:"win_rate"`
	MaxDrawdown        float64 `json:"max_drawdown"`
	SharpeRatio        float64 `json:"sharpe_ratio"`
	TestPnLPct         float64 `json:"test_pnl_pct"`
	TestWinRate        float64 `json:"test_win_rate"`
}

// Progress is the blob clients poll while a screening runs.
type Progress struct {
	TaskID           string         `json:"task_id"`
	Status           string         `json:"status"`
	Progress         int            `json:"progress"`
	TotalSymbols     int            `json:"total_symbols"`
	ProcessedSymbols int            `json:"processed_symbols"`
	Results          []SymbolResult `json:"results"`
	StartedAt        string         `json:"started_at"`
	CompletedAt      *string        `json:"completed_at"`
}

// Params configure one screening run.
type Params struct {
	UserID      int64
	Interval    string        // default 1h
	Limit       int           // default 2000 candles per symbol
	TotalAmount float64       // default 1000
	Quote       string        // default USDC
	Pace        time.Duration // delay between symbols, default 500ms
}

func (p *Params) applyDefaults() {
	if p.Interval == "" {
		p.Interval = "1h"
	}
	if p.Limit == 0 {
		p.Limit = 2000
	}
	if p.TotalAmount == 0 {
		p.TotalAmount = 1000
	}
	if p.Quote == "" {
		p.Quote = "USDC"
	}
}

// Job wires the collaborators of a screening run.
type Job struct {
	candles   CandleSource
	cache     SymbolCache
	discovery SymbolDiscovery
	progress  ProgressStore
	results   ResultStore
	tunables  strategy.Tunables
}

// NewJob builds a screening job.
func NewJob(candles CandleSource, cache SymbolCache, discovery SymbolDiscovery, progress ProgressStore, results ResultStore, tun strategy.Tunables) *Job {
	return &Job{
		candles:   candles,
		cache:     cache,
		discovery: discovery,
		progress:  progress,
		results:   results,
		tunables:  tun,
	}
}

// Run screens every eligible symbol. Per-symbol failures are logged and
// counted as processed; a failed final persist leaves the progress blob as
// the authoritative result for the client.
func (j *Job) Run(ctx context.Context, taskID string, params Params) error {
	params.applyDefaults()

	symbols, err := j.resolveSymbols(ctx, params.Quote)
	if err != nil {
		return fmt.Errorf("resolve symbol universe: %w", err)
	}

	total := len(symbols)
	startedAt := time.Now().UTC().Format(time.RFC3339)
	var results []SymbolResult

	publish := func(processed int, status string) {
		blob := Progress{
			TaskID:           taskID,
			Status:           status,
			TotalSymbols:     total,
			ProcessedSymbols: processed,
			Results:          topResults(results),
			StartedAt:        startedAt,
		}
		if total > 0 {
			blob.Progress = processed * 100 / total
		}
		if status == "completed" {
			completed := time.Now().UTC().Format(time.RFC3339)
			blob.CompletedAt = &completed
		}
		if err := j.progress.SetProgress(ctx, taskID, blob); err != nil {
			log.Error().Err(err).Str("task_id", taskID).Msg("failed to publish screening progress")
		}
	}

	publish(0, "running")
	log.Info().Str("task_id", taskID).Int("symbols", total).Msg("screening started")

	limit := rate.Inf
	if params.Pace > 0 {
		limit = rate.Every(params.Pace)
	}
	limiter := rate.NewLimiter(limit, 1)

	for i, symbol := range symbols {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		if res, ok := j.screenSymbol(ctx, symbol, params); ok {
			results = append(results, res)
		}
		monitoring.RecordScreenedSymbol()
		publish(i+1, "running")
	}

	rows := make([]storage.ScreeningResult, len(results))
	for i, r := range results {
		rows[i] = storage.ScreeningResult{
			TaskID:             taskID,
			UserID:             params.UserID,
			Symbol:             r.Symbol,
			BestPnLPct:         r.BestPnLPct,
			BestMinPrice:       r.BestMinPrice,
			BestMaxPrice:       r.BestMaxPrice,
			BestGridLevels:     r.BestGridLevels,
			BestSellPercentage: r.BestSellPercentage,
			NumTrades:          r.NumTrades,
			WinRate:            r.WinRate,
			MaxDrawdown:        r.MaxDrawdown,
			SharpeRatio:        r.SharpeRatio,
			TestPnLPct:         r.TestPnLPct,
			TestWinRate:        r.TestWinRate,
		}
	}
	if err := j.results.SaveAll(ctx, rows); err != nil {
		log.Error().Err(err).Str("task_id", taskID).Msg("failed to persist screening results")
	} else {
		log.Info().Str("task_id", taskID).Int("rows", len(rows)).Msg("screening results saved")
	}

	publish(total, "completed")
	log.Info().
		Str("task_id", taskID).
		Int("results", len(results)).
		Int("symbols", total).
		Msg("screening completed")
	return nil
}

// screenSymbol fetches candles and optimizes one symbol. Returns ok=false
// when the symbol is skipped or fails.
func (j *Job) screenSymbol(ctx context.Context, symbol string, params Params) (SymbolResult, bool) {
	klines, err := j.candles.FetchKlines(ctx, symbol, params.Interval, params.Limit)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("screening: candle fetch failed")
		return SymbolResult{}, false
	}
	if len(klines) < minKlines {
		log.Debug().Str("symbol", symbol).Int("klines", len(klines)).Msg("screening: not enough history")
		return SymbolResult{}, false
	}

	closePrices := make([]float64, len(klines))
	for i, k := range klines {
		closePrices[i] = k.Close
	}

	opt, err := optimizer.Optimize(symbol, closePrices, optimizer.Options{
		TotalAmount:     params.TotalAmount,
		GridLevels:      optimizer.ScreeningGridLevels,
		SellPercentages: optimizer.ScreeningSellPercentages,
	}, j.tunables)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("screening: optimization failed")
		return SymbolResult{}, false
	}

	best := opt.BestParams
	return SymbolResult{
		Symbol:             symbol,
		BestPnLPct:         best.TotalPnLPct,
		BestMinPrice:       best.MinPrice,
		BestMaxPrice:       best.MaxPrice,
		BestGridLevels:     best.GridLevels,
		BestSellPercentage: best.SellPercentage,
		NumTrades:          best.NumTrades,
		WinRate:            best.WinRate,
		MaxDrawdown:        best.MaxDrawdown,
		SharpeRatio:        best.SharpeRatio,
		TestPnLPct:         opt.TestResult.TotalPnLPct,
		TestWinRate:        opt.TestResult.WinRate,
	}, true
}

func (j *Job) resolveSymbols(ctx context.Context, quote string) ([]string, error) {
	if symbols, err := j.cache.GetSymbols(ctx, quote); err == nil && len(symbols) > 0 {
		return symbols, nil
	}
	return j.discovery.Symbols(ctx, quote)
}

// topResults returns the live leaderboard: sorted by best PnL% descending,
// truncated to 50 entries.
func topResults(results []SymbolResult) []SymbolResult {
	sorted := make([]SymbolResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, k int) bool {
		return sorted[i].BestPnLPct > sorted[k].BestPnLPct
	})
	if len(sorted) > maxLiveResults {
		sorted = sorted[:maxLiveResults]
	}
	return sorted
}
