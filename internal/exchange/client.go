// Package exchange implements the Binance REST client used for historical
// candles, symbol discovery, spot prices, and signed order placement.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const maxKlinesPerRequest = 1000

// Kline is one OHLCV candle. Time is the open time in unix milliseconds.
type Kline struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Client talks to the public (unsigned) REST endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a client against baseURL with a 15s request timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchKlines returns up to limit candles oldest first, paginating backwards
// through /api/v3/klines in pages of 1000 until limit accumulates or the
// upstream runs out of history.
func (c *Client) FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	var all []Kline
	var endTime int64 = -1
	remaining := limit

	for remaining > 0 {
		batchSize := remaining
		if batchSize > maxKlinesPerRequest {
			batchSize = maxKlinesPerRequest
		}

		params := url.Values{}
		params.Set("symbol", strings.ToUpper(symbol))
		params.Set("interval", interval)
		params.Set("limit", strconv.Itoa(batchSize))
		if endTime >= 0 {
			params.Set("endTime", strconv.FormatInt(endTime, 10))
		}

		rows, err := c.getKlines(ctx, params)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			break
		}

		all = append(rows, all...)
		remaining -= len(rows)

		if len(rows) < batchSize {
			break
		}
		// Next page ends just before the oldest candle seen so far.
		endTime = rows[0].Time - 1
	}

	// Keep the most recent candles when over limit.
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (c *Client) getKlines(ctx context.Context, params url.Values) ([]Kline, error) {
	body, err := c.get(ctx, "/api/v3/klines", params)
	if err != nil {
		return nil, err
	}

	var raw [][]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	klines := make([]Kline, 0, len(raw))
	for _, row := range raw {
		if len(row) < 6 {
			continue
		}
		k, err := parseKlineRow(row)
		if err != nil {
			return nil, fmt.Errorf("parse kline row: %w", err)
		}
		klines = append(klines, k)
	}
	return klines, nil
}

func parseKlineRow(row []any) (Kline, error) {
	openTime, ok := row[0].(float64)
	if !ok {
		return Kline{}, fmt.Errorf("unexpected open time %v", row[0])
	}
	vals := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		s, ok := row[i].(string)
		if !ok {
			return Kline{}, fmt.Errorf("unexpected field %v", row[i])
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Kline{}, err
		}
		vals[i-1] = v
	}
	return Kline{
		Time:   int64(openTime),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

// TickerPrice returns the last price for one symbol.
func (c *Client) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(strings.TrimSpace(symbol)))

	body, err := c.get(ctx, "/api/v3/ticker/price", params)
	if err != nil {
		return 0, err
	}

	var resp struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("decode ticker price: %w", err)
	}
	return strconv.ParseFloat(resp.Price, 64)
}

// Symbols returns all pairs trading against the given quote asset, from
// /api/v3/exchangeInfo filtered to status TRADING.
func (c *Client) Symbols(ctx context.Context, quote string) ([]string, error) {
	body, err := c.get(ctx, "/api/v3/exchangeInfo", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Symbols []struct {
			Symbol     string `json:"symbol"`
			Status     string `json:"status"`
			QuoteAsset string `json:"quoteAsset"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode exchange info: %w", err)
	}

	quote = strings.ToUpper(quote)
	var symbols []string
	for _, s := range resp.Symbols {
		if s.Status == "TRADING" && s.QuoteAsset == quote {
			symbols = append(symbols, s.Symbol)
		}
	}
	return symbols, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
