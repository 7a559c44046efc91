package strategy

// Decide evaluates one tick of the strategy, mutating st in place and
// returning the trades to execute. prevPrice is nil on the first tick after
// a (re)start; grid buys are never taken on that tick.
//
// At most one grid buy is emitted per tick. Any number of positions may be
// sold in the same tick.
func Decide(cfg Config, currentPrice float64, prevPrice *float64, st *State, tun Tunables) []Decision {
	var decisions []Decision

	// No positions: first buy of a cycle, or restart after all sold.
	if len(st.Positions) == 0 {
		if cfg.MinPrice <= currentPrice && currentPrice <= cfg.MaxPrice {
			qty := cfg.TotalAmount / float64(cfg.GridLevels) / currentPrice
			decisions = append(decisions, Decision{
				Side:     SideBuy,
				Quantity: qty,
				Price:    currentPrice,
			})
			st.Positions = append(st.Positions, Position{
				Qty:     qty,
				Entry:   currentPrice,
				Highest: currentPrice,
				Fee:     qty * currentPrice * tun.FeePct,
			})
			st.GridPrices = ComputeGrid(cfg.MaxPrice, cfg.MinPrice, cfg.GridLevels)
			st.NextGridIndex = firstLevelBelow(st.GridPrices, currentPrice)
			st.LowestPrice = nil
		}
		return decisions
	}

	if st.LowestPrice == nil || currentPrice < *st.LowestPrice {
		lp := currentPrice
		st.LowestPrice = &lp
	}

	for i := range st.Positions {
		if currentPrice > st.Positions[i].Highest {
			st.Positions[i].Highest = currentPrice
		}
	}

	// Sells: every position past its target with pullback confirmation.
	kept := st.Positions[:0]
	for _, pos := range st.Positions {
		gainPct := currentPrice/pos.Entry - 1.0
		if gainPct >= cfg.SellPercentage/100.0 && currentPrice <= pos.Highest*(1.0-tun.SellPullbackPct) {
			out := pos.Qty * currentPrice
			fee := out * tun.FeePct
			decisions = append(decisions, Decision{
				Side:     SideSell,
				Quantity: pos.Qty,
				Price:    currentPrice,
				NetGain:  out - fee - pos.Entry*pos.Qty - pos.Fee,
			})
			continue
		}
		kept = append(kept, pos)
	}
	st.Positions = kept

	if len(st.Positions) == 0 {
		st.reset()
		return decisions
	}

	// Grid buy: next level reached, confirmed by a pullback off the low.
	if prevPrice != nil && st.NextGridIndex < len(st.GridPrices) && currentPrice <= cfg.MaxPrice {
		target := st.GridPrices[st.NextGridIndex]
		if currentPrice <= target {
			pullbackPrice := *st.LowestPrice * (1.0 + tun.BuyPullbackPct)
			if currentPrice < *prevPrice && currentPrice >= pullbackPrice {
				qty := cfg.TotalAmount / float64(cfg.GridLevels) / currentPrice
				decisions = append(decisions, Decision{
					Side:     SideBuy,
					Quantity: qty,
					Price:    currentPrice,
				})
				st.Positions = append(st.Positions, Position{
					Qty:     qty,
					Entry:   currentPrice,
					Highest: currentPrice,
					Fee:     qty * currentPrice * tun.FeePct,
				})
				st.NextGridIndex++
				lp := currentPrice
				st.LowestPrice = &lp
			}
		}
	}

	return decisions
}
