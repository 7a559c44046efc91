// Package bot runs one long-lived runtime per active trading bot and the
// scheduler that launches them. Runtimes are independent: they share no
// memory and communicate only through the price store and the trade log.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/iacolabs/gridbot/internal/exchange"
	"github.com/iacolabs/gridbot/internal/monitoring"
	"github.com/iacolabs/gridbot/internal/notifications"
	"github.com/iacolabs/gridbot/internal/storage"
	"github.com/iacolabs/gridbot/internal/store"
	"github.com/iacolabs/gridbot/internal/strategy"
)

// PriceStore is the volatile-store surface a runtime needs.
type PriceStore interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
	GetBotState(ctx context.Context, botID int64) (*strategy.State, error)
	SetBotState(ctx context.Context, botID int64, st *strategy.State) error
	DeleteBotState(ctx context.Context, botID int64) error
}

// BotStore reads bot configurations from the durable store.
type BotStore interface {
	GetByID(ctx context.Context, id int64) (*storage.TradingBot, error)
}

// TradeLog appends to and replays the durable trade log.
type TradeLog interface {
	Append(ctx context.Context, trade *storage.Trade) error
	ListByBotAsc(ctx context.Context, botID int64) ([]storage.Trade, error)
}

// Options tune a runtime's loop.
type Options struct {
	TickInterval    time.Duration          // default 1s
	ActivePollTicks int                    // default 30
	Notifier        notifications.Notifier // optional trade alerts
}

// Runtime ticks one bot against the live price feed.
type Runtime struct {
	cfg      strategy.Config
	tunables strategy.Tunables
	prices   PriceStore
	bots     BotStore
	trades   TradeLog
	executor exchange.OrderExecutor // nil means simulated trading
	opts     Options
	logger   zerolog.Logger
}

// NewRuntime builds a runtime for one bot.
func NewRuntime(botRow *storage.TradingBot, tun strategy.Tunables, prices PriceStore, bots BotStore, trades TradeLog, executor exchange.OrderExecutor, opts Options) *Runtime {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.ActivePollTicks <= 0 {
		opts.ActivePollTicks = 30
	}
	return &Runtime{
		cfg:      configFromRow(botRow),
		tunables: tun,
		prices:   prices,
		bots:     bots,
		trades:   trades,
		executor: executor,
		opts:     opts,
		logger:   log.With().Int64("bot_id", botRow.ID).Str("symbol", botRow.Symbol).Logger(),
	}
}

func configFromRow(row *storage.TradingBot) strategy.Config {
	return strategy.Config{
		BotID:          row.ID,
		Symbol:         row.Symbol,
		TotalAmount:    row.TotalAmount,
		MinPrice:       row.MinPrice,
		MaxPrice:       row.MaxPrice,
		GridLevels:     row.GridLevels,
		SellPercentage: row.SellPercentage,
	}
}

// Run executes the tick loop until the bot is deactivated or ctx is
// cancelled. All per-tick failures are logged and swallowed; the loop is
// eventually consistent with the price feed.
func (r *Runtime) Run(ctx context.Context) error {
	monitoring.RuntimeStarted()
	defer monitoring.RuntimeStopped()

	if active, err := r.checkActive(ctx); err != nil {
		r.logger.Error().Err(err).Msg("failed to read bot row on startup")
	} else if !active {
		r.logger.Info().Msg("bot inactive, runtime not starting")
		return nil
	}

	st := r.loadState(ctx)
	r.logger.Info().
		Int("positions", len(st.Positions)).
		Int("next_grid_index", st.NextGridIndex).
		Msg("bot runtime started")

	ticker := time.NewTicker(r.opts.TickInterval)
	defer ticker.Stop()

	var prevPrice *float64
	tickCount := 0

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("bot runtime stopped by shutdown")
			return ctx.Err()
		case <-ticker.C:
		}

		tickCount++
		if tickCount%r.opts.ActivePollTicks == 0 {
			active, err := r.checkActive(ctx)
			if err != nil {
				r.logger.Error().Err(err).Msg("failed to poll is_active")
				monitoring.RecordTickError("active_poll")
			} else if !active {
				if err := r.prices.DeleteBotState(ctx, r.cfg.BotID); err != nil {
					r.logger.Error().Err(err).Msg("failed to delete bot state")
				}
				r.logger.Info().Msg("bot deactivated, runtime exiting")
				return nil
			}
		}

		price, err := r.prices.GetPrice(ctx, r.cfg.Symbol)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				r.logger.Error().Err(err).Msg("price store read failed")
				monitoring.RecordTickError("price_read")
			}
			// No price this tick; the ingest is the only live source.
			continue
		}

		r.tick(ctx, st, price, prevPrice)

		pp := price
		prevPrice = &pp
	}
}

// tick runs one decision cycle: decide, execute live orders, append trades,
// persist state. Trades are written before the state snapshot so a crash in
// between leaves the state reconstructible from the log.
func (r *Runtime) tick(ctx context.Context, st *strategy.State, price float64, prevPrice *float64) {
	var before *strategy.State
	if r.executor != nil {
		before = st.Clone()
	}

	decisions := strategy.Decide(r.cfg, price, prevPrice, st, r.tunables)
	if len(decisions) == 0 {
		r.persistState(ctx, st)
		return
	}

	if r.executor != nil {
		if err := r.placeOrders(ctx, decisions); err != nil {
			// Roll back the in-memory state: no trade rows for this tick,
			// the decisions will be reconsidered on a later tick.
			*st = *before
			r.logger.Error().Err(err).Msg("order placement failed, tick aborted")
			monitoring.RecordTickError("order")
			r.persistState(ctx, st)
			return
		}
	}

	now := time.Now().UTC()
	for _, d := range decisions {
		trade := &storage.Trade{
			TradingBotID: r.cfg.BotID,
			TradeType:    string(d.Side),
			Price:        d.Price,
			Quantity:     d.Quantity,
			CreatedAt:    now,
		}
		if err := r.trades.Append(ctx, trade); err != nil {
			// No retry: a replayed sell against an already-popped FIFO
			// would fabricate a phantom position.
			r.logger.Error().Err(err).Str("side", string(d.Side)).Msg("trade log append failed")
			monitoring.RecordTickError("trade_append")
			continue
		}
		monitoring.RecordTrade(r.cfg.Symbol, string(d.Side))

		evt := r.logger.Info().
			Str("side", string(d.Side)).
			Float64("price", d.Price).
			Float64("quantity", d.Quantity).
			Int("positions", len(st.Positions))
		if d.Side == strategy.SideSell {
			evt = evt.Float64("net_gain", d.NetGain)
		}
		evt.Msg("trade recorded")

		r.notifyTrade(ctx, d)
	}

	r.persistState(ctx, st)
}

// notifyTrade sends a best-effort alert; failures only log.
func (r *Runtime) notifyTrade(ctx context.Context, d strategy.Decision) {
	if r.opts.Notifier == nil {
		return
	}
	level := "info"
	msg := fmt.Sprintf("%s buy: %.8g @ %.8g", r.cfg.Symbol, d.Quantity, d.Price)
	if d.Side == strategy.SideSell {
		level = "success"
		msg = fmt.Sprintf("%s sell: %.8g @ %.8g (net gain %.4f)", r.cfg.Symbol, d.Quantity, d.Price, d.NetGain)
	}
	if err := r.opts.Notifier.SendAlert(ctx, level, msg); err != nil {
		r.logger.Warn().Err(err).Msg("trade alert delivery failed")
	}
}

func (r *Runtime) placeOrders(ctx context.Context, decisions []strategy.Decision) error {
	for _, d := range decisions {
		side := "BUY"
		if d.Side == strategy.SideSell {
			side = "SELL"
		}
		if err := r.executor.PlaceMarket(ctx, r.cfg.Symbol, side, d.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runtime) persistState(ctx context.Context, st *strategy.State) {
	if err := r.prices.SetBotState(ctx, r.cfg.BotID, st); err != nil {
		r.logger.Error().Err(err).Msg("failed to persist bot state")
		monitoring.RecordTickError("state_write")
	}
}

// checkActive re-reads the bot row, refreshing the config so operator edits
// (price range, grid levels) take effect on a running cycle.
func (r *Runtime) checkActive(ctx context.Context) (bool, error) {
	row, err := r.bots.GetByID(ctx, r.cfg.BotID)
	if err != nil {
		if errors.Is(err, storage.ErrBotNotFound) {
			return false, nil
		}
		return false, err
	}
	if row.IsActive == 0 {
		return false, nil
	}
	r.cfg = configFromRow(row)
	return true, nil
}

// loadState reads the volatile snapshot, falling back to replaying the
// durable trade log when the snapshot is gone.
func (r *Runtime) loadState(ctx context.Context) *strategy.State {
	st, err := r.prices.GetBotState(ctx, r.cfg.BotID)
	if err == nil {
		return st
	}
	if !errors.Is(err, store.ErrNotFound) {
		r.logger.Error().Err(err).Msg("bot state read failed, reconstructing from trade log")
	}

	trades, err := r.trades.ListByBotAsc(ctx, r.cfg.BotID)
	if err != nil {
		r.logger.Error().Err(err).Msg("trade log read failed, starting from idle state")
		return strategy.NewState()
	}

	records := make([]strategy.TradeRecord, len(trades))
	for i, t := range trades {
		records[i] = strategy.TradeRecord{
			Type:      t.TradeType,
			Price:     t.Price,
			Quantity:  t.Quantity,
			CreatedAt: t.CreatedAt,
		}
	}
	st = strategy.ReconstructState(r.cfg, records, r.tunables)
	r.logger.Info().
		Int("trades", len(records)).
		Int("positions", len(st.Positions)).
		Msg("state reconstructed from trade log")

	r.persistState(ctx, st)
	return st
}
