package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// BotRepository reads and writes trading bot configurations.
type BotRepository struct {
	db *gorm.DB
}

// Create validates and inserts a bot.
func (r *BotRepository) Create(ctx context.Context, bot *TradingBot) error {
	if err := bot.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(bot).Error
}

// GetByID returns one bot, or ErrBotNotFound.
func (r *BotRepository) GetByID(ctx context.Context, id int64) (*TradingBot, error) {
	var bot TradingBot
	err := r.db.WithContext(ctx).First(&bot, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bot %d: %w", id, err)
	}
	return &bot, nil
}

// ListActive returns all bots with is_active = 1.
func (r *BotRepository) ListActive(ctx context.Context) ([]TradingBot, error) {
	var bots []TradingBot
	err := r.db.WithContext(ctx).Where("is_active = ?", 1).Find(&bots).Error
	if err != nil {
		return nil, fmt.Errorf("list active bots: %w", err)
	}
	return bots, nil
}

// ListActiveSymbols returns the distinct symbols of active bots, the set the
// ingest worker tracks.
func (r *BotRepository) ListActiveSymbols(ctx context.Context) ([]string, error) {
	var symbols []string
	err := r.db.WithContext(ctx).
		Model(&TradingBot{}).
		Where("is_active = ?", 1).
		Distinct("symbol").
		Pluck("symbol", &symbols).Error
	if err != nil {
		return nil, fmt.Errorf("list active symbols: %w", err)
	}
	return symbols, nil
}

// SetActive flips the is_active flag.
func (r *BotRepository) SetActive(ctx context.Context, id int64, active bool) error {
	flag := 0
	if active {
		flag = 1
	}
	res := r.db.WithContext(ctx).Model(&TradingBot{}).Where("id = ?", id).Update("is_active", flag)
	if res.Error != nil {
		return fmt.Errorf("set bot %d active=%v: %w", id, active, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrBotNotFound
	}
	return nil
}

// TradeRepository appends to and reads the trade log.
type TradeRepository struct {
	db *gorm.DB
}

// Append inserts one trade row.
func (r *TradeRepository) Append(ctx context.Context, trade *Trade) error {
	return r.db.WithContext(ctx).Create(trade).Error
}

// ListByBotAsc returns a bot's trades oldest first, for state reconstruction.
func (r *TradeRepository) ListByBotAsc(ctx context.Context, botID int64) ([]Trade, error) {
	var trades []Trade
	err := r.db.WithContext(ctx).
		Where("trading_bot_id = ?", botID).
		Order("created_at ASC, id ASC").
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("list trades for bot %d: %w", botID, err)
	}
	return trades, nil
}

// ListByBot returns a bot's trades newest first, for read paths.
func (r *TradeRepository) ListByBot(ctx context.Context, botID int64, limit int) ([]Trade, error) {
	var trades []Trade
	q := r.db.WithContext(ctx).
		Where("trading_bot_id = ?", botID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("list trades for bot %d: %w", botID, err)
	}
	return trades, nil
}

// ScreeningRepository persists final screening results.
type ScreeningRepository struct {
	db *gorm.DB
}

// SaveAll inserts every result row in a single transaction.
func (r *ScreeningRepository) SaveAll(ctx context.Context, results []ScreeningResult) error {
	if len(results) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&results).Error
	})
}

// ListByTask returns the persisted rows for one screening task.
func (r *ScreeningRepository) ListByTask(ctx context.Context, taskID string) ([]ScreeningResult, error) {
	var results []ScreeningResult
	err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("best_pnl_pct DESC").
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("list screening results %s: %w", taskID, err)
	}
	return results, nil
}
