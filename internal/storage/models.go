// Package storage provides the durable store: gorm models and repositories
// for bot configurations, the append-only trade log, and screening results.
package storage

import (
	"errors"
	"time"
)

// ErrInvalidPriceRange is returned when a bot config has min_price >= max_price.
var ErrInvalidPriceRange = errors.New("storage: min_price must be less than max_price")

// ErrBotNotFound is returned when a bot id does not exist.
var ErrBotNotFound = errors.New("storage: bot not found")

// TradingBot is one grid bot configuration.
type TradingBot struct {
	ID             int64     `gorm:"primaryKey"`
	UserID         int64     `gorm:"index;not null"`
	Symbol         string    `gorm:"size:20;not null"`
	IsActive       int       `gorm:"not null;default:0"` // 0 or 1
	MaxPrice       float64   `gorm:"not null"`
	MinPrice       float64   `gorm:"not null"`
	TotalAmount    float64   `gorm:"not null"`
	SellPercentage float64   `gorm:"not null"`
	GridLevels     int       `gorm:"not null;default:10"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

func (TradingBot) TableName() string { return "trading_bots" }

// Validate checks the price range before a bot is accepted for scheduling.
func (b *TradingBot) Validate() error {
	if b.MinPrice >= b.MaxPrice {
		return ErrInvalidPriceRange
	}
	return nil
}

// Trade is one append-only trade log row.
type Trade struct {
	ID           int64     `gorm:"primaryKey"`
	TradingBotID int64     `gorm:"index:idx_trades_bot_created;not null"`
	TradeType    string    `gorm:"size:4;not null"` // buy or sell
	Price        float64   `gorm:"not null"`
	Quantity     float64   `gorm:"not null"`
	CreatedAt    time.Time `gorm:"index:idx_trades_bot_created;autoCreateTime"`
}

func (Trade) TableName() string { return "trades" }

// ScreeningResult is one final row per (task, symbol) from a screening run.
type ScreeningResult struct {
	ID                 int64     `gorm:"primaryKey"`
	TaskID             string    `gorm:"size:64;index;not null"`
	UserID             int64     `gorm:"not null"`
	Symbol             string    `gorm:"size:20;not null"`
	BestPnLPct         float64   `gorm:"column:best_pnl_pct"`
	BestMinPrice       float64
	BestMaxPrice       float64
	BestGridLevels     int
	BestSellPercentage float64
	NumTrades          int
	WinRate            float64
	MaxDrawdown        float64
	SharpeRatio        float64
	TestPnLPct         float64 `gorm:"column:test_pnl_pct"`
	TestWinRate        float64
	CreatedAt          time.Time `gorm:"autoCreateTime"`
}

func (ScreeningResult) TableName() string { return "screening_results" }
