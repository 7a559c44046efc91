package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTunables = Tunables{
	FeePct:          0.001,
	BuyPullbackPct:  0.002,
	SellPullbackPct: 0.002,
}

func testConfig() Config {
	return Config{
		BotID:          1,
		Symbol:         "BTCUSDC",
		TotalAmount:    1000,
		MinPrice:       100,
		MaxPrice:       200,
		GridLevels:     10,
		SellPercentage: 2.0,
	}
}

func fp(v float64) *float64 { return &v }

// runTicks feeds prices through Decide sequentially, threading previous
// price the way the bot runtime does, and returns all decisions.
func runTicks(cfg Config, st *State, prices []float64) []Decision {
	var all []Decision
	var prev *float64
	for _, p := range prices {
		all = append(all, Decide(cfg, p, prev, st, testTunables)...)
		pp := p
		prev = &pp
	}
	return all
}

func TestComputeGrid(t *testing.T) {
	t.Run("evenly spaced decreasing levels", func(t *testing.T) {
		grid := ComputeGrid(200, 100, 10)
		expected := []float64{190, 180, 170, 160, 150, 140, 130, 120, 110}
		require.Len(t, grid, 9)
		for i, want := range expected {
			assert.InDelta(t, want, grid[i], 1e-9)
		}
	})

	t.Run("degenerate inputs", func(t *testing.T) {
		assert.Empty(t, ComputeGrid(200, 100, 1))
		assert.Empty(t, ComputeGrid(200, 100, 0))
		assert.Empty(t, ComputeGrid(100, 100, 10))
		assert.Empty(t, ComputeGrid(90, 100, 10))
	})
}

func TestFirstBuyInRange(t *testing.T) {
	cfg := testConfig()
	st := NewState()

	decisions := Decide(cfg, 150, nil, st, testTunables)

	require.Len(t, decisions, 1)
	assert.Equal(t, SideBuy, decisions[0].Side)
	assert.InDelta(t, 1000.0/10/150, decisions[0].Quantity, 1e-9)
	assert.InDelta(t, 150.0, decisions[0].Price, 1e-9)

	require.Len(t, st.Positions, 1)
	assert.InDelta(t, 150.0, st.Positions[0].Entry, 1e-9)
	assert.InDelta(t, 150.0, st.Positions[0].Highest, 1e-9)
	assert.InDelta(t, st.Positions[0].Qty*150*0.001, st.Positions[0].Fee, 1e-9)
	require.Len(t, st.GridPrices, 9)
	assert.Equal(t, 5, st.NextGridIndex) // first level below 150 is 140
	assert.Nil(t, st.LowestPrice)
}

func TestNoBuyOutsideRange(t *testing.T) {
	cfg := testConfig()

	st := NewState()
	assert.Empty(t, Decide(cfg, 99.99, nil, st, testTunables))
	assert.Empty(t, st.Positions)

	st = NewState()
	assert.Empty(t, Decide(cfg, 200.01, nil, st, testTunables))
	assert.Empty(t, st.Positions)
}

func TestGridBuyRequiresPullbackConfirmation(t *testing.T) {
	cfg := testConfig()
	st := NewState()

	decisions := runTicks(cfg, st, []float64{150, 142, 140, 139, 139.4, 139.3})

	require.Len(t, decisions, 2)
	assert.Equal(t, SideBuy, decisions[0].Side)
	assert.InDelta(t, 150.0, decisions[0].Price, 1e-9)
	assert.Equal(t, SideBuy, decisions[1].Side)
	assert.InDelta(t, 139.3, decisions[1].Price, 1e-9)

	require.Len(t, st.Positions, 2)
	assert.Equal(t, 6, st.NextGridIndex)
	require.NotNil(t, st.LowestPrice)
	assert.InDelta(t, 139.3, *st.LowestPrice, 1e-9) // reset to the fill price
}

func TestGridBuyNotTakenWhileFalling(t *testing.T) {
	cfg := testConfig()
	st := NewState()

	// Straight fall through the level: price keeps making new lows, so the
	// pullback gate never opens.
	decisions := runTicks(cfg, st, []float64{150, 140, 138, 136, 134})

	require.Len(t, decisions, 1)
	assert.Equal(t, SideBuy, decisions[0].Side)
	require.Len(t, st.Positions, 1)
}

func TestAtMostOneGridBuyPerTick(t *testing.T) {
	cfg := testConfig()
	st := NewState()

	// Crash through several levels, then one confirming tick: only one grid
	// buy may fire even though multiple levels were crossed.
	decisions := runTicks(cfg, st, []float64{150, 120, 122, 121.5})

	require.Len(t, decisions, 2)
	require.Len(t, st.Positions, 2)
	assert.Equal(t, 6, st.NextGridIndex)
}

func TestSellOnPullbackFromHigh(t *testing.T) {
	cfg := testConfig()
	st := NewState()

	// Entry 150, +2% target 153. 154 makes the high, 153.6 is a confirmed
	// pullback (<= 154*0.998) still above target.
	decisions := runTicks(cfg, st, []float64{150, 154, 153.6})

	require.Len(t, decisions, 2)
	sell := decisions[1]
	assert.Equal(t, SideSell, sell.Side)
	assert.InDelta(t, 153.6, sell.Price, 1e-9)

	qty := 1000.0 / 10 / 150
	out := qty * 153.6
	wantGain := out - out*0.001 - 150*qty - qty*150*0.001
	assert.InDelta(t, wantGain, sell.NetGain, 1e-9)
	assert.Positive(t, sell.NetGain)
}

func TestNoSellBeforeTargetOrWithoutPullback(t *testing.T) {
	cfg := testConfig()
	st := NewState()

	// 152.9 is below the +2% target; 154 keeps making highs so no pullback.
	decisions := runTicks(cfg, st, []float64{150, 152.9, 153.5, 154})

	require.Len(t, decisions, 1)
	require.Len(t, st.Positions, 1)
	assert.InDelta(t, 154.0, st.Positions[0].Highest, 1e-9)
}

func TestCycleRestartAfterAllSold(t *testing.T) {
	cfg := testConfig()
	st := NewState()

	decisions := runTicks(cfg, st, []float64{150, 154, 153.6})
	require.Len(t, decisions, 2)

	// All positions closed: state must be back to the idle shape.
	assert.Empty(t, st.Positions)
	assert.Nil(t, st.LowestPrice)
	assert.Empty(t, st.GridPrices)
	assert.Equal(t, 0, st.NextGridIndex)

	// Next in-range tick starts a fresh cycle immediately.
	next := Decide(cfg, 153.0, fp(153.6), st, testTunables)
	require.Len(t, next, 1)
	assert.Equal(t, SideBuy, next[0].Side)
	assert.Equal(t, 4, st.NextGridIndex) // first level below 153 is 150
}

func TestMultipleSellsInOneTick(t *testing.T) {
	cfg := testConfig()
	st := NewState()

	// Two positions (150 and a grid buy near 140), then a rally past both
	// targets and one pullback tick closes both.
	decisions := runTicks(cfg, st, []float64{150, 142, 140, 139, 139.4, 139.3, 160, 159.5})

	var sells []Decision
	for _, d := range decisions {
		if d.Side == SideSell {
			sells = append(sells, d)
		}
	}
	require.Len(t, sells, 2)
	assert.Empty(t, st.Positions)
	assert.Nil(t, st.LowestPrice)
}

func TestNoGridBuyOnFirstTickAfterRestart(t *testing.T) {
	cfg := testConfig()
	st := &State{
		Positions:     []Position{{Qty: 0.5, Entry: 150, Highest: 150, Fee: 0.075}},
		GridPrices:    ComputeGrid(200, 100, 10),
		NextGridIndex: 5,
	}

	// prevPrice nil: even a price at a grid level must not trigger a buy.
	decisions := Decide(cfg, 140, nil, st, testTunables)
	assert.Empty(t, decisions)
	require.Len(t, st.Positions, 1)
}

func TestNoTradesAbovePriceRange(t *testing.T) {
	cfg := testConfig()
	cfg.MinPrice = 100
	cfg.MaxPrice = 150
	st := NewState()

	prices := make([]float64, 10)
	for i := range prices {
		prices[i] = 200
	}
	assert.Empty(t, runTicks(cfg, st, prices))
	assert.Empty(t, st.Positions)
}

func TestQuickRoundTrip(t *testing.T) {
	cfg := testConfig()
	st := NewState()

	// Buy at 100, +2.5% high at 102.5, confirmed pullback sell at 102.
	decisions := runTicks(cfg, st, []float64{100, 102.5, 102.0})

	require.Len(t, decisions, 2)
	assert.Equal(t, SideBuy, decisions[0].Side)
	assert.Equal(t, SideSell, decisions[1].Side)
	assert.InDelta(t, 102.0, decisions[1].Price, 1e-9)
	assert.Empty(t, st.Positions)
}

func TestNoGridBuyAboveTarget(t *testing.T) {
	cfg := testConfig()
	st := NewState()

	// Price dips but never reaches the next grid level at 140.
	decisions := runTicks(cfg, st, []float64{150, 148, 147, 146, 147, 146.5})

	require.Len(t, decisions, 1)
	assert.Equal(t, SideBuy, decisions[0].Side)
	require.Len(t, st.Positions, 1)
	assert.Equal(t, 5, st.NextGridIndex)
}

func TestFullCycleThreeBuysThreeSells(t *testing.T) {
	cfg := testConfig()
	st := NewState()

	prices := []float64{
		150, 142, 139, 139.5, 139.3,
		122, 119, 119.5, 119.3,
		124, 123.5, 123,
		143, 145, 144.5,
		155, 154.5,
	}
	decisions := runTicks(cfg, st, prices)

	buys, sells := 0, 0
	for _, d := range decisions {
		if d.Side == SideBuy {
			buys++
		} else {
			sells++
		}
	}
	assert.Equal(t, 3, buys)
	assert.Equal(t, 3, sells)
	assert.Empty(t, st.Positions)
	assert.Nil(t, st.LowestPrice)
	assert.Equal(t, 0, st.NextGridIndex)
}

func TestDecideDeterministic(t *testing.T) {
	cfg := testConfig()
	prices := []float64{150, 142, 140, 139, 139.4, 139.3, 160, 159.5, 150, 154, 153.6}

	st1 := NewState()
	d1 := runTicks(cfg, st1, prices)
	st2 := NewState()
	d2 := runTicks(cfg, st2, prices)

	assert.Equal(t, d1, d2)
	assert.Equal(t, st1, st2)
}

func TestStateClone(t *testing.T) {
	st := &State{
		Positions:     []Position{{Qty: 1, Entry: 100, Highest: 101, Fee: 0.1}},
		LowestPrice:   fp(99),
		GridPrices:    []float64{110, 105},
		NextGridIndex: 1,
	}

	c := st.Clone()
	require.Equal(t, st, c)

	c.Positions[0].Highest = 200
	*c.LowestPrice = 50
	c.GridPrices[0] = 0

	assert.InDelta(t, 101.0, st.Positions[0].Highest, 1e-9)
	assert.InDelta(t, 99.0, *st.LowestPrice, 1e-9)
	assert.InDelta(t, 110.0, st.GridPrices[0], 1e-9)
}

func TestReconstructState(t *testing.T) {
	cfg := testConfig()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("empty log yields idle state", func(t *testing.T) {
		st := ReconstructState(cfg, nil, testTunables)
		assert.Empty(t, st.Positions)
		assert.Nil(t, st.LowestPrice)
		assert.Empty(t, st.GridPrices)
		assert.Equal(t, 0, st.NextGridIndex)
	})

	t.Run("fully closed log yields idle state", func(t *testing.T) {
		trades := []TradeRecord{
			{Type: "buy", Price: 150, Quantity: 0.6667, CreatedAt: base},
			{Type: "sell", Price: 153.6, Quantity: 0.6667, CreatedAt: base.Add(time.Minute)},
		}
		st := ReconstructState(cfg, trades, testTunables)
		assert.Empty(t, st.Positions)
		assert.Equal(t, 0, st.NextGridIndex)
	})

	t.Run("open positions rebuilt FIFO", func(t *testing.T) {
		trades := []TradeRecord{
			// Out of chronological order on purpose.
			{Type: "buy", Price: 139.3, Quantity: 0.718, CreatedAt: base.Add(2 * time.Minute)},
			{Type: "buy", Price: 150, Quantity: 0.6667, CreatedAt: base},
			{Type: "buy", Price: 128, Quantity: 0.781, CreatedAt: base.Add(4 * time.Minute)},
			{Type: "sell", Price: 153.1, Quantity: 0.6667, CreatedAt: base.Add(6 * time.Minute)},
		}
		st := ReconstructState(cfg, trades, testTunables)

		require.Len(t, st.Positions, 2)
		assert.InDelta(t, 139.3, st.Positions[0].Entry, 1e-9)
		assert.InDelta(t, 128.0, st.Positions[1].Entry, 1e-9)
		// Conservative watermarks.
		assert.InDelta(t, 139.3, st.Positions[0].Highest, 1e-9)
		require.NotNil(t, st.LowestPrice)
		assert.InDelta(t, 128.0, *st.LowestPrice, 1e-9)
		// First level below 139.3 is 130 (index 6); one extra open buy.
		assert.Equal(t, 7, st.NextGridIndex)
	})

	t.Run("round trip matches live state shape", func(t *testing.T) {
		st := NewState()
		var trades []TradeRecord
		var prev *float64
		for i, p := range []float64{150, 142, 140, 139, 139.4, 139.3} {
			for _, d := range Decide(cfg, p, prev, st, testTunables) {
				trades = append(trades, TradeRecord{
					Type:      string(d.Side),
					Price:     d.Price,
					Quantity:  d.Quantity,
					CreatedAt: base.Add(time.Duration(i) * time.Second),
				})
			}
			pp := p
			prev = &pp
		}

		rebuilt := ReconstructState(cfg, trades, testTunables)
		assert.Equal(t, len(st.Positions), len(rebuilt.Positions))
		assert.Equal(t, st.NextGridIndex, rebuilt.NextGridIndex)
		assert.Equal(t, st.GridPrices, rebuilt.GridPrices)
		for i := range st.Positions {
			assert.InDelta(t, st.Positions[i].Entry, rebuilt.Positions[i].Entry, 1e-9)
			assert.InDelta(t, st.Positions[i].Qty, rebuilt.Positions[i].Qty, 1e-9)
		}
	})
}
