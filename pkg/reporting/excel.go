package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/iacolabs/gridbot/internal/optimizer"
)

// ExcelReporter writes optimization results to an Excel workbook.
type ExcelReporter struct{}

// NewExcelReporter creates a new Excel reporter.
func NewExcelReporter() *ExcelReporter {
	return &ExcelReporter{}
}

type excelStyles struct {
	header  int
	number  int
	percent int
}

// WriteOptimization writes the leaderboard and validation summary of an
// optimization run to path, creating parent directories as needed.
func (r *ExcelReporter) WriteOptimization(symbol string, res *optimizer.Result, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const leaderboardSheet = "Leaderboard"
	const validationSheet = "Validation"

	fx.SetSheetName(fx.GetSheetName(0), leaderboardSheet)
	if _, err := fx.NewSheet(validationSheet); err != nil {
		return err
	}

	styles, err := r.createStyles(fx)
	if err != nil {
		return err
	}

	if err := r.writeLeaderboard(fx, leaderboardSheet, res, styles); err != nil {
		return err
	}
	if err := r.writeValidation(fx, validationSheet, symbol, res, styles); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func (r *ExcelReporter) createStyles(fx *excelize.File) (excelStyles, error) {
	var styles excelStyles
	var err error

	styles.header, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold:   true,
			Size:   11,
			Color:  "FFFFFF",
			Family: "Calibri",
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"2F4F4F"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return styles, err
	}

	styles.number, err = fx.NewStyle(&excelize.Style{
		NumFmt: 2,
		Alignment: &excelize.Alignment{
			Horizontal: "right",
		},
	})
	if err != nil {
		return styles, err
	}

	styles.percent, err = fx.NewStyle(&excelize.Style{
		NumFmt: 10,
		Alignment: &excelize.Alignment{
			Horizontal: "right",
		},
	})
	return styles, err
}

func (r *ExcelReporter) writeLeaderboard(fx *excelize.File, sheet string, res *optimizer.Result, styles excelStyles) error {
	headers := []string{"Rank", "Min Price", "Max Price", "Grid Levels", "Sell %", "PnL %", "Trades", "Win Rate", "Max Drawdown", "Sharpe"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := fx.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	if err := fx.SetCellStyle(sheet, "A1", last, styles.header); err != nil {
		return err
	}

	for i, row := range res.AllResults {
		values := []any{
			i + 1,
			row.MinPrice,
			row.MaxPrice,
			row.GridLevels,
			row.SellPercentage,
			row.TotalPnLPct,
			row.NumTrades,
			row.WinRate,
			row.MaxDrawdown,
			row.SharpeRatio,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return err
			}
			if err := fx.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
		rateStart, _ := excelize.CoordinatesToCellName(8, i+2)
		rateEnd, _ := excelize.CoordinatesToCellName(9, i+2)
		if err := fx.SetCellStyle(sheet, rateStart, rateEnd, styles.percent); err != nil {
			return err
		}
	}

	return fx.SetColWidth(sheet, "A", "J", 14)
}

func (r *ExcelReporter) writeValidation(fx *excelize.File, sheet, symbol string, res *optimizer.Result, styles excelStyles) error {
	rows := [][]any{
		{"Metric", "Value"},
		{"Symbol", symbol},
		{"Train Candles", res.TrainSize},
		{"Test Candles", res.TestSize},
		{"Best Min Price", res.BestParams.MinPrice},
		{"Best Max Price", res.BestParams.MaxPrice},
		{"Best Grid Levels", res.BestParams.GridLevels},
		{"Best Sell %", res.BestParams.SellPercentage},
		{"Train PnL %", res.BestParams.TotalPnLPct},
		{"Test PnL %", res.TestResult.TotalPnLPct},
		{"Test Win Rate", res.TestResult.WinRate},
		{"Test Max Drawdown", res.TestResult.MaxDrawdown},
		{"Test Sharpe", res.TestResult.SharpeRatio},
	}
	for i, row := range rows {
		for col, v := range row {
			cell, err := excelize.CoordinatesToCellName(col+1, i+1)
			if err != nil {
				return err
			}
			if err := fx.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	if err := fx.SetCellStyle(sheet, "A1", "B1", styles.header); err != nil {
		return err
	}
	return fx.SetColWidth(sheet, "A", "B", 20)
}
