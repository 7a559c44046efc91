// Package store wraps the volatile key-value store shared by the ingest
// worker, bot runtimes, and screening jobs. All values are JSON blobs.
//
// Key layout:
//
//	price:<SYMBOL>       last price, short TTL
//	symbols:<QUOTE>      cached symbol universe, 1h TTL
//	bot_state:<id>       bot runtime state, no TTL
//	screening:<task_id>  screening progress, 1h TTL
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iacolabs/gridbot/internal/strategy"
)

// ErrNotFound is returned when a key is absent or expired.
var ErrNotFound = errors.New("store: key not found")

const (
	symbolsTTL  = time.Hour
	progressTTL = time.Hour
)

// CachedPrice is the JSON blob stored under price:<SYMBOL>.
type CachedPrice struct {
	Price     float64 `json:"price"`
	Timestamp float64 `json:"timestamp"`
	Source    string  `json:"source"`
}

// Cache is a thin client over the volatile store.
type Cache struct {
	client redis.UniversalClient
}

// New connects to the volatile store at the given URL.
func New(redisURL string) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second
	return &Cache{client: redis.NewClient(opts)}, nil
}

// NewWithClient wraps an existing client, used by tests.
func NewWithClient(client redis.UniversalClient) *Cache {
	return &Cache{client: client}
}

// Ping checks connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}

func priceKey(symbol string) string   { return "price:" + strings.ToUpper(symbol) }
func symbolsKey(quote string) string  { return "symbols:" + strings.ToUpper(quote) }
func botStateKey(botID int64) string  { return fmt.Sprintf("bot_state:%d", botID) }
func progressKey(taskID string) string { return "screening:" + taskID }

// SetPrice stores a single price with the given TTL.
func (c *Cache) SetPrice(ctx context.Context, symbol string, price float64, ttl time.Duration) error {
	data, err := json.Marshal(CachedPrice{
		Price:     price,
		Timestamp: unixSeconds(time.Now()),
		Source:    "binance",
	})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, priceKey(symbol), data, ttl).Err()
}

// GetPrice returns the cached price for symbol, or ErrNotFound.
func (c *Cache) GetPrice(ctx context.Context, symbol string) (float64, error) {
	data, err := c.client.Get(ctx, priceKey(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get price %s: %w", symbol, err)
	}
	var cp CachedPrice
	if err := json.Unmarshal(data, &cp); err != nil {
		return 0, fmt.Errorf("decode price %s: %w", symbol, err)
	}
	return cp.Price, nil
}

// SetPricesBatch stores every price in one pipelined round trip. All entries
// share one timestamp and TTL. Empty input is a no-op.
func (c *Cache) SetPricesBatch(ctx context.Context, prices map[string]float64, ttl time.Duration) error {
	if len(prices) == 0 {
		return nil
	}
	ts := unixSeconds(time.Now())
	pipe := c.client.Pipeline()
	for symbol, price := range prices {
		data, err := json.Marshal(CachedPrice{Price: price, Timestamp: ts, Source: "binance"})
		if err != nil {
			return err
		}
		pipe.Set(ctx, priceKey(symbol), data, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// SetSymbols caches the symbol universe for a quote asset for one hour.
func (c *Cache) SetSymbols(ctx context.Context, quote string, symbols []string) error {
	data, err := json.Marshal(symbols)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, symbolsKey(quote), data, symbolsTTL).Err()
}

// GetSymbols returns the cached symbol universe, or ErrNotFound.
func (c *Cache) GetSymbols(ctx context.Context, quote string) ([]string, error) {
	data, err := c.client.Get(ctx, symbolsKey(quote)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get symbols %s: %w", quote, err)
	}
	var symbols []string
	if err := json.Unmarshal(data, &symbols); err != nil {
		return nil, fmt.Errorf("decode symbols %s: %w", quote, err)
	}
	return symbols, nil
}

// SetBotState persists a bot's runtime state. No TTL: the state lives until
// the runtime deletes it on teardown.
func (c *Cache) SetBotState(ctx context.Context, botID int64, st *strategy.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, botStateKey(botID), data, 0).Err()
}

// GetBotState returns the persisted state for a bot, or ErrNotFound.
func (c *Cache) GetBotState(ctx context.Context, botID int64) (*strategy.State, error) {
	data, err := c.client.Get(ctx, botStateKey(botID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bot state %d: %w", botID, err)
	}
	var st strategy.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode bot state %d: %w", botID, err)
	}
	return &st, nil
}

// DeleteBotState removes a bot's state on teardown.
func (c *Cache) DeleteBotState(ctx context.Context, botID int64) error {
	return c.client.Del(ctx, botStateKey(botID)).Err()
}

// SetProgress publishes a screening progress blob with a 1h TTL.
func (c *Cache) SetProgress(ctx context.Context, taskID string, blob any) error {
	data, err := json.Marshal(blob)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, progressKey(taskID), data, progressTTL).Err()
}

// GetProgress reads a screening progress blob into dst, or ErrNotFound.
func (c *Cache) GetProgress(ctx context.Context, taskID string, dst any) error {
	data, err := c.client.Get(ctx, progressKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get progress %s: %w", taskID, err)
	}
	return json.Unmarshal(data, dst)
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
