package bot

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/iacolabs/gridbot/internal/storage"
)

// ErrAlreadyRunning is returned when a runtime for the bot exists. Two
// concurrent runtimes for one bot would double-trade.
var ErrAlreadyRunning = errors.New("bot: runtime already running")

// ActiveBotLister enumerates active bots for startup recovery.
type ActiveBotLister interface {
	ListActive(ctx context.Context) ([]storage.TradingBot, error)
}

// RuntimeFactory builds a runtime for a bot row.
type RuntimeFactory func(row *storage.TradingBot) *Runtime

// Scheduler launches bot runtimes and enforces at most one per bot id.
type Scheduler struct {
	factory RuntimeFactory
	bots    ActiveBotLister

	mu      sync.Mutex
	running map[int64]struct{}
	wg      sync.WaitGroup
}

// NewScheduler builds a scheduler.
func NewScheduler(factory RuntimeFactory, bots ActiveBotLister) *Scheduler {
	return &Scheduler{
		factory: factory,
		bots:    bots,
		running: make(map[int64]struct{}),
	}
}

// StartAll launches a runtime for every active bot; called on process boot.
func (s *Scheduler) StartAll(ctx context.Context) error {
	rows, err := s.bots.ListActive(ctx)
	if err != nil {
		return err
	}
	for i := range rows {
		if err := s.Launch(ctx, &rows[i]); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			log.Error().Err(err).Int64("bot_id", rows[i].ID).Msg("failed to launch bot runtime")
		}
	}
	log.Info().Int("bots", len(rows)).Msg("scheduler started all active bots")
	return nil
}

// Launch starts one runtime for the bot unless one is already running.
func (s *Scheduler) Launch(ctx context.Context, row *storage.TradingBot) error {
	s.mu.Lock()
	if _, ok := s.running[row.ID]; ok {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running[row.ID] = struct{}{}
	s.mu.Unlock()

	rt := s.factory(row)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.running, row.ID)
			s.mu.Unlock()
		}()
		if err := rt.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Int64("bot_id", row.ID).Msg("bot runtime exited with error")
		}
	}()
	return nil
}

// IsRunning reports whether a runtime exists for the bot id.
func (s *Scheduler) IsRunning(botID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[botID]
	return ok
}

// Wait blocks until every launched runtime has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
