package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// klinesServer serves a fixed history of minute candles, paginated the way
// the real endpoint is: newest candles at or before endTime, last `limit`.
func klinesServer(t *testing.T, historyLen int) *httptest.Server {
	t.Helper()
	openTime := func(i int) int64 { return int64(i) * 60_000 }

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/klines":
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			endTime := openTime(historyLen - 1)
			if s := r.URL.Query().Get("endTime"); s != "" {
				endTime, _ = strconv.ParseInt(s, 10, 64)
			}

			var rows [][]any
			for i := 0; i < historyLen; i++ {
				if openTime(i) <= endTime {
					price := fmt.Sprintf("%.2f", 100+float64(i)*0.01)
					rows = append(rows, []any{
						openTime(i), price, price, price, price, "12.5",
						openTime(i) + 59_999, "0", 0, "0", "0", "0",
					})
				}
			}
			if len(rows) > limit {
				rows = rows[len(rows)-limit:]
			}
			_ = json.NewEncoder(w).Encode(rows)
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestFetchKlinesSinglePage(t *testing.T) {
	srv := klinesServer(t, 5000)
	defer srv.Close()

	klines, err := NewClient(srv.URL).FetchKlines(context.Background(), "btcusdc", "1m", 500)
	require.NoError(t, err)
	require.Len(t, klines, 500)

	assert.Equal(t, int64(4500)*60_000, klines[0].Time)
	assert.Equal(t, int64(4999)*60_000, klines[len(klines)-1].Time)
	for i := 1; i < len(klines); i++ {
		assert.Greater(t, klines[i].Time, klines[i-1].Time)
	}
	assert.InDelta(t, 149.99, klines[len(klines)-1].Close, 1e-9)
	assert.InDelta(t, 12.5, klines[0].Volume, 1e-9)
}

func TestFetchKlinesPaginatesBackwards(t *testing.T) {
	srv := klinesServer(t, 5000)
	defer srv.Close()

	klines, err := NewClient(srv.URL).FetchKlines(context.Background(), "BTCUSDC", "1m", 2500)
	require.NoError(t, err)
	require.Len(t, klines, 2500)

	// Oldest-first with no gaps or duplicates across page boundaries.
	assert.Equal(t, int64(2500)*60_000, klines[0].Time)
	for i := 1; i < len(klines); i++ {
		assert.Equal(t, klines[i-1].Time+60_000, klines[i].Time)
	}
}

func TestFetchKlinesShortHistory(t *testing.T) {
	srv := klinesServer(t, 700)
	defer srv.Close()

	klines, err := NewClient(srv.URL).FetchKlines(context.Background(), "BTCUSDC", "1m", 2000)
	require.NoError(t, err)
	assert.Len(t, klines, 700)
	assert.Equal(t, int64(0), klines[0].Time)
}

func TestFetchKlinesUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).FetchKlines(context.Background(), "NOPE", "1m", 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestTickerPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		require.Equal(t, "BTCUSDC", r.URL.Query().Get("symbol"))
		fmt.Fprint(w, `{"symbol":"BTCUSDC","price":"65432.10"}`)
	}))
	defer srv.Close()

	price, err := NewClient(srv.URL).TickerPrice(context.Background(), " btcusdc ")
	require.NoError(t, err)
	assert.InDelta(t, 65432.10, price, 1e-9)
}

func TestSymbolsFiltersQuoteAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/exchangeInfo", r.URL.Path)
		fmt.Fprint(w, `{"symbols":[
			{"symbol":"BTCUSDC","status":"TRADING","quoteAsset":"USDC"},
			{"symbol":"ETHUSDC","status":"TRADING","quoteAsset":"USDC"},
			{"symbol":"OLDUSDC","status":"BREAK","quoteAsset":"USDC"},
			{"symbol":"BTCUSDT","status":"TRADING","quoteAsset":"USDT"}
		]}`)
	}))
	defer srv.Close()

	symbols, err := NewClient(srv.URL).Symbols(context.Background(), "usdc")
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDC", "ETHUSDC"}, symbols)
}
