// Package ingest maintains the persistent upstream ticker stream and fans
// price updates into the shared price store consumed by all bot runtimes.
package ingest

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog/log"

	"github.com/iacolabs/gridbot/internal/monitoring"
)

const (
	pingInterval = 20 * time.Second
	pongTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
)

// PriceSink receives batched price writes.
type PriceSink interface {
	SetPricesBatch(ctx context.Context, prices map[string]float64, ttl time.Duration) error
}

// SymbolSource yields the symbols of currently active bots.
type SymbolSource interface {
	ListActiveSymbols(ctx context.Context) ([]string, error)
}

// Worker streams the aggregate ticker feed into the price store. A single
// reader serializes all store writes; one batch message is the unit of
// atomicity.
type Worker struct {
	wsURL           string
	sink            PriceSink
	symbols         SymbolSource
	priceTTL        time.Duration
	refreshInterval time.Duration

	mu      sync.RWMutex
	tracked map[string]struct{} // nil tracks all symbols
}

// New builds an ingest worker.
func New(wsURL string, sink PriceSink, symbols SymbolSource, priceTTL, refreshInterval time.Duration) *Worker {
	return &Worker{
		wsURL:           wsURL,
		sink:            sink,
		symbols:         symbols,
		priceTTL:        priceTTL,
		refreshInterval: refreshInterval,
	}
}

// SetTracked replaces the tracked symbol set. An empty set means no active
// bots; the worker then caches all symbols.
func (w *Worker) SetTracked(symbols []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(symbols) == 0 {
		w.tracked = nil
		log.Info().Msg("tracking all symbols (no active bots)")
		return
	}
	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		set[s] = struct{}{}
	}
	w.tracked = set
	log.Info().Int("count", len(set)).Msg("tracked symbol set replaced")
}

// Run streams until ctx is cancelled, reconnecting with exponential backoff
// (5s doubling to 60s, reset after a successful connection).
func (w *Worker) Run(ctx context.Context) error {
	w.refreshSymbols(ctx)
	go w.refreshLoop(ctx)

	b := &backoff.Backoff{Min: 5 * time.Second, Max: 60 * time.Second, Factor: 2}
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		log.Info().Str("url", w.wsURL).Msg("connecting to ticker stream")
		err := w.streamOnce(ctx, b)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := b.Duration()
		monitoring.RecordReconnect()
		log.Warn().Err(err).Dur("retry_in", delay).Msg("ticker stream disconnected")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// streamOnce runs a single connection to exhaustion.
func (w *Worker) streamOnce(ctx context.Context, b *backoff.Backoff) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, w.wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Info().Msg("ticker stream connected")
	b.Reset()

	_ = conn.SetReadDeadline(time.Now().Add(pingInterval + pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pingInterval + pongTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
					return
				}
			case <-ctx.Done():
				// Unblocks the reader for graceful shutdown.
				_ = conn.Close()
				return
			case <-done:
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := w.handleMessage(ctx, message); err != nil {
			log.Error().Err(err).Msg("failed to process ticker batch")
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, message []byte) error {
	prices, err := parseTickers(message)
	if err != nil {
		return err
	}

	filtered := w.filter(prices)
	if len(filtered) == 0 {
		return nil
	}
	if err := w.sink.SetPricesBatch(ctx, filtered, w.priceTTL); err != nil {
		return err
	}
	monitoring.RecordTickerBatch(len(filtered))
	return nil
}

func (w *Worker) filter(prices map[string]float64) map[string]float64 {
	w.mu.RLock()
	tracked := w.tracked
	w.mu.RUnlock()

	if tracked == nil {
		return prices
	}
	filtered := make(map[string]float64, len(tracked))
	for symbol, price := range prices {
		if _, ok := tracked[symbol]; ok {
			filtered[symbol] = price
		}
	}
	return filtered
}

func (w *Worker) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(w.refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.refreshSymbols(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) refreshSymbols(ctx context.Context) {
	symbols, err := w.symbols.ListActiveSymbols(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to refresh tracked symbols")
		return
	}
	w.SetTracked(symbols)
}

// tickerEntry is one entry of the aggregate stream payload.
type tickerEntry struct {
	Symbol string `json:"s"`
	Close  string `json:"c"`
}

// parseTickers decodes an aggregate ticker array into symbol -> last price.
// Entries with missing fields or unparseable prices are dropped.
func parseTickers(message []byte) (map[string]float64, error) {
	var tickers []tickerEntry
	if err := json.Unmarshal(message, &tickers); err != nil {
		return nil, err
	}

	prices := make(map[string]float64, len(tickers))
	for _, t := range tickers {
		if t.Symbol == "" || t.Close == "" {
			continue
		}
		price, err := strconv.ParseFloat(t.Close, 64)
		if err != nil {
			continue
		}
		prices[t.Symbol] = price
	}
	return prices, nil
}
