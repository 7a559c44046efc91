// Package optimizer runs a train/test grid search over bot parameters,
// deriving candidate price ranges from percentiles of the training data.
package optimizer

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/iacolabs/gridbot/internal/backtest"
	"github.com/iacolabs/gridbot/internal/strategy"
)

// Default option sets for full optimization runs.
var (
	DefaultGridLevels      = []int{3, 5, 7, 10, 15, 20}
	DefaultSellPercentages = []float64{0.5, 1.0, 1.5, 2.0, 3.0, 5.0}
)

// Reduced option sets used by market screening for speed.
var (
	ScreeningGridLevels      = []int{5, 10, 15}
	ScreeningSellPercentages = []float64{1.0, 2.0, 3.0, 5.0}
)

// Options controls an optimization run. Zero values fall back to the
// defaults noted on each field.
type Options struct {
	TotalAmount     float64   // default 1000
	TrainRatio      float64   // default 0.7
	GridLevels      []int     // default DefaultGridLevels
	SellPercentages []float64 // default DefaultSellPercentages
	TopN            int       // default 10
}

// Result is the outcome of an optimization run: the best training
// combination, its out-of-sample validation, and the top-N leaderboard.
type Result struct {
	BestParams *backtest.Result  `json:"best_params"`
	TestResult *backtest.Result  `json:"test_result"`
	AllResults []backtest.Result `json:"all_results"`
	TrainSize  int               `json:"train_size"`
	TestSize   int               `json:"test_size"`
}

// Combo is one parameter combination to backtest.
type Combo struct {
	MinPrice       float64
	MaxPrice       float64
	GridLevels     int
	SellPercentage float64
}

// GenerateGrid builds parameter combinations from the price distribution.
// Min candidates come from the 5/10/15/25th percentiles, max candidates from
// the 75/85/90/95th; pairs whose range is under 2% are skipped.
func GenerateGrid(closePrices []float64, gridLevels []int, sellPercentages []float64) []Combo {
	if len(gridLevels) == 0 {
		gridLevels = DefaultGridLevels
	}
	if len(sellPercentages) == 0 {
		sellPercentages = DefaultSellPercentages
	}
	if len(closePrices) == 0 {
		return nil
	}

	sorted := make([]float64, len(closePrices))
	copy(sorted, closePrices)
	sort.Float64s(sorted)
	n := len(sorted)

	percentile := func(p float64) float64 {
		idx := int(float64(n) * p / 100)
		if idx > n-1 {
			idx = n - 1
		}
		return sorted[idx]
	}

	minCandidates := dedupSorted([]float64{percentile(5), percentile(10), percentile(15), percentile(25)})
	maxCandidates := dedupSorted([]float64{percentile(75), percentile(85), percentile(90), percentile(95)})

	var combos []Combo
	for _, minP := range minCandidates {
		for _, maxP := range maxCandidates {
			if maxP <= minP*1.02 {
				continue
			}
			for _, gl := range gridLevels {
				for _, sp := range sellPercentages {
					combos = append(combos, Combo{
						MinPrice:       round8(minP),
						MaxPrice:       round8(maxP),
						GridLevels:     gl,
						SellPercentage: sp,
					})
				}
			}
		}
	}
	return combos
}

// Optimize splits closePrices into train/test, backtests every generated
// combination on the train slice, picks the best by total P&L percent, and
// validates it on the test slice. Returns an error when no combination
// survives the range filter.
func Optimize(symbol string, closePrices []float64, opts Options, tun strategy.Tunables) (*Result, error) {
	if opts.TotalAmount == 0 {
		opts.TotalAmount = 1000
	}
	if opts.TrainRatio == 0 {
		opts.TrainRatio = 0.7
	}
	if opts.TopN == 0 {
		opts.TopN = 10
	}

	splitIdx := int(float64(len(closePrices)) * opts.TrainRatio)
	trainPrices := closePrices[:splitIdx]
	testPrices := closePrices[splitIdx:]

	combos := GenerateGrid(trainPrices, opts.GridLevels, opts.SellPercentages)
	log.Info().
		Str("symbol", symbol).
		Int("combinations", len(combos)).
		Int("train_prices", len(trainPrices)).
		Msg("optimizing parameters")

	results := make([]backtest.Result, 0, len(combos))
	for _, c := range combos {
		results = append(results, backtest.Run(symbol, trainPrices, backtest.Params{
			MinPrice:       c.MinPrice,
			MaxPrice:       c.MaxPrice,
			GridLevels:     c.GridLevels,
			SellPercentage: c.SellPercentage,
			TotalAmount:    opts.TotalAmount,
		}, tun))
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("no valid parameter combinations for %s", symbol)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].TotalPnLPct > results[j].TotalPnLPct
	})
	best := results[0]

	testResult := backtest.Run(symbol, testPrices, backtest.Params{
		MinPrice:       best.MinPrice,
		MaxPrice:       best.MaxPrice,
		GridLevels:     best.GridLevels,
		SellPercentage: best.SellPercentage,
		TotalAmount:    opts.TotalAmount,
	}, tun)

	topN := opts.TopN
	if topN > len(results) {
		topN = len(results)
	}

	return &Result{
		BestParams: &best,
		TestResult: &testResult,
		AllResults: results[:topN],
		TrainSize:  len(trainPrices),
		TestSize:   len(testPrices),
	}, nil
}

func dedupSorted(vs []float64) []float64 {
	sort.Float64s(vs)
	out := vs[:0]
	for i, v := range vs {
		if i == 0 || v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

func round8(v float64) float64 {
	return math.Round(v*1e8) / 1e8
}
