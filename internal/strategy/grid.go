package strategy

// ComputeGrid returns the gridLevels-1 evenly spaced buy levels between
// maxPrice and minPrice, in decreasing order. Returns an empty slice when
// gridLevels <= 1 or maxPrice <= minPrice.
func ComputeGrid(maxPrice, minPrice float64, gridLevels int) []float64 {
	if gridLevels <= 1 || maxPrice <= minPrice {
		return []float64{}
	}
	step := (maxPrice - minPrice) / float64(gridLevels)
	levels := make([]float64, 0, gridLevels-1)
	for i := 1; i < gridLevels; i++ {
		levels = append(levels, maxPrice-float64(i)*step)
	}
	return levels
}

// firstLevelBelow returns the index of the first grid level strictly below
// price, or len(gridPrices) when no level qualifies.
func firstLevelBelow(gridPrices []float64, price float64) int {
	for i, gp := range gridPrices {
		if gp < price {
			return i
		}
	}
	return len(gridPrices)
}
