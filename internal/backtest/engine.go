// Package backtest replays historical close prices through the grid
// strategy's decision procedure and computes performance metrics. It uses
// exactly the same trading logic as live bots.
package backtest

import (
	"math"

	"github.com/iacolabs/gridbot/internal/strategy"
)

// Params are the bot parameters to simulate.
type Params struct {
	MinPrice       float64
	MaxPrice       float64
	GridLevels     int
	SellPercentage float64
	TotalAmount    float64
}

// Result holds the metrics from a single backtest run together with the
// parameters that produced them.
type Result struct {
	TotalPnL           float64 `json:"total_pnl"`
	TotalPnLPct        float64 `json:"total_pnl_pct"`
	NumTrades          int     `json:"num_trades"`
	NumBuys            int     `json:"num_buys"`
	NumSells           int     `json:"num_sells"`
	WinRate            float64 `json:"win_rate"`
	MaxDrawdown        float64 `json:"max_drawdown"`
	SharpeRatio        float64 `json:"sharpe_ratio"`
	FinalOpenPositions int     `json:"final_open_positions"`
	UnrealizedPnL      float64 `json:"unrealized_pnl"`

	MinPrice       float64 `json:"min_price"`
	MaxPrice       float64 `json:"max_price"`
	GridLevels     int     `json:"grid_levels"`
	SellPercentage float64 `json:"sell_percentage"`
	TotalAmount    float64 `json:"total_amount"`
}

type openBuy struct {
	price float64
	qty   float64
}

// Run replays closePrices (oldest first) through the strategy and returns
// the resulting metrics. Realized P&L is matched FIFO against open buys with
// fees charged on both legs.
func Run(symbol string, closePrices []float64, p Params, tun strategy.Tunables) Result {
	cfg := strategy.Config{
		Symbol:         symbol,
		TotalAmount:    p.TotalAmount,
		MinPrice:       p.MinPrice,
		MaxPrice:       p.MaxPrice,
		GridLevels:     p.GridLevels,
		SellPercentage: p.SellPercentage,
	}

	st := strategy.NewState()
	var prevPrice *float64
	var openBuys []openBuy
	realizedPnL := 0.0
	winningSells := 0
	numBuys := 0
	numSells := 0

	equityCurve := make([]float64, 0, len(closePrices))
	peakEquity := p.TotalAmount
	maxDrawdown := 0.0

	for _, price := range closePrices {
		decisions := strategy.Decide(cfg, price, prevPrice, st, tun)

		for _, d := range decisions {
			switch d.Side {
			case strategy.SideBuy:
				numBuys++
				openBuys = append(openBuys, openBuy{price: d.Price, qty: d.Quantity})
			case strategy.SideSell:
				numSells++
				sellValue := d.Price * d.Quantity
				sellFee := sellValue * tun.FeePct
				if len(openBuys) > 0 {
					b := openBuys[0]
					openBuys = openBuys[1:]
					buyCost := b.price * b.qty
					buyFee := buyCost * tun.FeePct
					tradePnL := sellValue - sellFee - buyCost - buyFee
					realizedPnL += tradePnL
					if tradePnL > 0 {
						winningSells++
					}
				}
			}
		}

		// Equity: budget plus realized plus mark-to-market of open buys
		// against their fee-inclusive cost.
		invested := 0.0
		openValue := 0.0
		for _, b := range openBuys {
			invested += b.price*b.qty + b.price*b.qty*tun.FeePct
			openValue += b.qty * price
		}
		equity := p.TotalAmount + realizedPnL + (openValue - invested)

		equityCurve = append(equityCurve, equity)
		if equity > peakEquity {
			peakEquity = equity
		}
		if peakEquity > 0 {
			if dd := (peakEquity - equity) / peakEquity; dd > maxDrawdown {
				maxDrawdown = dd
			}
		}

		pp := price
		prevPrice = &pp
	}

	lastPrice := 0.0
	if len(closePrices) > 0 {
		lastPrice = closePrices[len(closePrices)-1]
	}
	unrealizedPnL := 0.0
	for _, b := range openBuys {
		cost := b.price*b.qty + b.price*b.qty*tun.FeePct
		unrealizedPnL += b.qty*lastPrice - cost
	}

	totalPnL := realizedPnL + unrealizedPnL
	winRate := 0.0
	if numSells > 0 {
		winRate = float64(winningSells) / float64(numSells)
	}
	totalPnLPct := 0.0
	if p.TotalAmount > 0 {
		totalPnLPct = totalPnL / p.TotalAmount * 100
	}

	return Result{
		TotalPnL:           round(totalPnL, 6),
		TotalPnLPct:        round(totalPnLPct, 4),
		NumTrades:          numBuys + numSells,
		NumBuys:            numBuys,
		NumSells:           numSells,
		WinRate:            round(winRate, 4),
		MaxDrawdown:        round(maxDrawdown, 6),
		SharpeRatio:        round(sharpeRatio(equityCurve), 4),
		FinalOpenPositions: len(openBuys),
		UnrealizedPnL:      round(unrealizedPnL, 6),
		MinPrice:           p.MinPrice,
		MaxPrice:           p.MaxPrice,
		GridLevels:         p.GridLevels,
		SellPercentage:     p.SellPercentage,
		TotalAmount:        p.TotalAmount,
	}
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
