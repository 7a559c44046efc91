package strategy

import "sort"

// ReconstructState rebuilds a bot's runtime state from its persisted trade
// log, for recovery after the volatile store loses the state key. Trades may
// arrive in any order; they are replayed chronologically with buys pushing
// positions and sells closing the oldest open one.
//
// The rebuilt state is conservative: each position's highest watermark is its
// entry price and lowest_price is the minimum open entry, so the next sells
// and grid buys may trigger slightly later than they would have without the
// loss, never earlier.
func ReconstructState(cfg Config, trades []TradeRecord, tun Tunables) *State {
	sorted := make([]TradeRecord, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	var open []Position
	for _, t := range sorted {
		switch t.Type {
		case "buy":
			open = append(open, Position{
				Qty:     t.Quantity,
				Entry:   t.Price,
				Highest: t.Price,
				Fee:     t.Quantity * t.Price * tun.FeePct,
			})
		case "sell":
			if len(open) > 0 {
				open = open[1:]
			}
		}
	}

	if len(open) == 0 {
		return NewState()
	}

	firstBuyPrice := open[0].Entry
	gridPrices := ComputeGrid(cfg.MaxPrice, cfg.MinPrice, cfg.GridLevels)
	startIndex := firstLevelBelow(gridPrices, firstBuyPrice)

	lowest := open[0].Entry
	for _, p := range open[1:] {
		if p.Entry < lowest {
			lowest = p.Entry
		}
	}

	return &State{
		Positions:     open,
		LowestPrice:   &lowest,
		GridPrices:    gridPrices,
		NextGridIndex: startIndex + len(open) - 1,
	}
}
