package backtest

import "math"

// sharpeRatio computes the simplified Sharpe ratio over an equity curve:
// mean of per-tick returns over their population standard deviation, scaled
// by sqrt of the number of returns. A flat curve gets a tiny std floor so a
// zero-variance series yields zero rather than a division blowup.
func sharpeRatio(equityCurve []float64) float64 {
	if len(equityCurve) <= 1 {
		return 0
	}

	returns := make([]float64, 0, len(equityCurve)-1)
	for i := 1; i < len(equityCurve); i++ {
		prev := equityCurve[i-1]
		if prev != 0 {
			returns = append(returns, (equityCurve[i]-prev)/prev)
		}
	}
	if len(returns) == 0 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))

	std := 1e-10
	if variance > 0 {
		std = math.Sqrt(variance)
	}
	return mean / std * math.Sqrt(float64(len(returns)))
}
