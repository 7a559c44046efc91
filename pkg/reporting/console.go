// Package reporting renders backtest and optimization results to the
// console and to Excel workbooks.
package reporting

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/iacolabs/gridbot/internal/backtest"
	"github.com/iacolabs/gridbot/internal/optimizer"
)

// ConsoleReporter prints results to a writer, stdout by default.
type ConsoleReporter struct {
	out io.Writer
}

// NewConsoleReporter creates a console reporter writing to stdout.
func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{out: os.Stdout}
}

// NewConsoleReporterTo creates a console reporter writing to out.
func NewConsoleReporterTo(out io.Writer) *ConsoleReporter {
	return &ConsoleReporter{out: out}
}

// PrintBacktest prints the metrics of a single backtest run.
func (r *ConsoleReporter) PrintBacktest(symbol string, res backtest.Result) {
	fmt.Fprintln(r.out, "\n"+strings.Repeat("=", 50))
	fmt.Fprintf(r.out, "📊 BACKTEST RESULTS: %s\n", symbol)
	fmt.Fprintln(r.out, strings.Repeat("=", 50))

	fmt.Fprintf(r.out, "💰 Total Amount:       $%.2f\n", res.TotalAmount)
	fmt.Fprintf(r.out, "📏 Price Range:        %.8g - %.8g\n", res.MinPrice, res.MaxPrice)
	fmt.Fprintf(r.out, "🪜 Grid Levels:        %d\n", res.GridLevels)
	fmt.Fprintf(r.out, "🎯 Sell Target:        %.2f%%\n", res.SellPercentage)
	fmt.Fprintf(r.out, "📈 Total PnL:          $%.2f (%.2f%%)\n", res.TotalPnL, res.TotalPnLPct)
	fmt.Fprintf(r.out, "📉 Max Drawdown:       %.2f%%\n", res.MaxDrawdown*100)
	fmt.Fprintf(r.out, "📊 Sharpe Ratio:       %.2f\n", res.SharpeRatio)
	fmt.Fprintf(r.out, "🔄 Total Trades:       %d (%d buys, %d sells)\n", res.NumTrades, res.NumBuys, res.NumSells)
	fmt.Fprintf(r.out, "✅ Win Rate:           %.1f%%\n", res.WinRate*100)
	fmt.Fprintf(r.out, "📦 Open Positions:     %d (unrealized $%.2f)\n", res.FinalOpenPositions, res.UnrealizedPnL)
}

// PrintOptimization prints the leaderboard and out-of-sample validation of
// an optimization run.
func (r *ConsoleReporter) PrintOptimization(symbol string, res *optimizer.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("OPTIMIZATION LEADERBOARD: %s", symbol)
	t.SetStyle(table.StyleRounded)

	t.AppendHeader(table.Row{"#", "Min", "Max", "Grids", "Sell %", "PnL %", "Trades", "Win %", "Max DD %", "Sharpe"})
	for i, row := range res.AllResults {
		t.AppendRow(table.Row{
			i + 1,
			fmt.Sprintf("%.6g", row.MinPrice),
			fmt.Sprintf("%.6g", row.MaxPrice),
			row.GridLevels,
			fmt.Sprintf("%.1f", row.SellPercentage),
			fmt.Sprintf("%.2f", row.TotalPnLPct),
			row.NumTrades,
			fmt.Sprintf("%.1f", row.WinRate*100),
			fmt.Sprintf("%.2f", row.MaxDrawdown*100),
			fmt.Sprintf("%.2f", row.SharpeRatio),
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})
	t.Render()

	fmt.Fprintf(r.out, "\n🧪 Out-of-sample validation (%d train / %d test candles):\n", res.TrainSize, res.TestSize)
	fmt.Fprintf(r.out, "   Train PnL: %.2f%%   Test PnL: %.2f%%   Test Win Rate: %.1f%%\n",
		res.BestParams.TotalPnLPct, res.TestResult.TotalPnLPct, res.TestResult.WinRate*100)
}
