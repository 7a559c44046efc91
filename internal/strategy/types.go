// Package strategy implements the fixed-price grid trading strategy:
// evenly spaced buy levels between max_price and min_price, an immediate
// first buy inside the range, pullback-confirmed grid buys below it, and
// pullback-confirmed sells once a position gains sell_percentage.
package strategy

import "time"

// Side is the direction of a trade decision.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Tunables are the strategy-wide execution parameters shared by every bot.
type Tunables struct {
	FeePct          float64
	BuyPullbackPct  float64
	SellPullbackPct float64
}

// Config is the per-bot grid configuration.
type Config struct {
	BotID          int64
	Symbol         string
	TotalAmount    float64
	MinPrice       float64
	MaxPrice       float64
	GridLevels     int
	SellPercentage float64 // percent, e.g. 2.0 means +2%
}

// Position is one open FIFO lot.
type Position struct {
	Qty     float64 `json:"qty"`
	Entry   float64 `json:"entry"`
	Highest float64 `json:"highest"`
	Fee     float64 `json:"fee"`
}

// State is the bot runtime state persisted in the volatile store between
// ticks. Zero positions always implies the idle shape: nil LowestPrice,
// empty GridPrices, NextGridIndex 0.
type State struct {
	Positions     []Position `json:"positions"`
	LowestPrice   *float64   `json:"lowest_price"`
	GridPrices    []float64  `json:"grid_prices"`
	NextGridIndex int        `json:"next_grid_index"`
}

// NewState returns an idle state.
func NewState() *State {
	return &State{Positions: []Position{}, GridPrices: []float64{}}
}

// reset puts the state back into the idle shape after all positions close.
func (s *State) reset() {
	s.Positions = s.Positions[:0]
	s.LowestPrice = nil
	s.GridPrices = []float64{}
	s.NextGridIndex = 0
}

// Clone returns a deep copy, used to roll back in-memory state when a live
// order fails mid-tick.
func (s *State) Clone() *State {
	c := &State{
		Positions:     make([]Position, len(s.Positions)),
		GridPrices:    make([]float64, len(s.GridPrices)),
		NextGridIndex: s.NextGridIndex,
	}
	copy(c.Positions, s.Positions)
	copy(c.GridPrices, s.GridPrices)
	if s.LowestPrice != nil {
		lp := *s.LowestPrice
		c.LowestPrice = &lp
	}
	return c
}

// Decision is a single trade the strategy wants executed this tick.
// NetGain is the fee-adjusted realized gain and is set on sells only.
type Decision struct {
	Side     Side
	Quantity float64
	Price    float64
	NetGain  float64
}

// TradeRecord is the minimal view of a persisted trade needed to replay the
// trade log during state reconstruction.
type TradeRecord struct {
	Type      string
	Price     float64
	Quantity  float64
	CreatedAt time.Time
}
