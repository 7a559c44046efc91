package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// OrderExecutor places market orders for live-trading bot runtimes. A nil
// executor on the runtime means simulated mode.
type OrderExecutor interface {
	PlaceMarket(ctx context.Context, symbol, side string, quantity float64) error
}

// LiveExecutor places signed market orders with the user's API credentials.
type LiveExecutor struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	nowMillis  func() int64
}

// NewLiveExecutor builds an executor with a 10s request timeout.
func NewLiveExecutor(baseURL, apiKey, apiSecret string) *LiveExecutor {
	return &LiveExecutor{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		nowMillis:  func() int64 { return time.Now().UnixMilli() },
	}
}

// PlaceMarket submits a signed MARKET order to /api/v3/order.
func (e *LiveExecutor) PlaceMarket(ctx context.Context, symbol, side string, quantity float64) error {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(strings.TrimSpace(symbol)))
	params.Set("side", strings.ToUpper(side))
	params.Set("type", "MARKET")
	params.Set("quantity", strconv.FormatFloat(quantity, 'f', -1, 64))
	params.Set("timestamp", strconv.FormatInt(e.nowMillis(), 10))

	// The signature covers the encoded params and must itself stay last.
	query := params.Encode()
	u := e.baseURL + "/api/v3/order?" + query + "&signature=" + e.sign(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-MBX-APIKEY", e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("place order: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read order response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("place order: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result struct {
		OrderID int64 `json:"orderId"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("decode order response: %w", err)
	}
	log.Info().
		Str("symbol", symbol).
		Str("side", side).
		Float64("quantity", quantity).
		Int64("order_id", result.OrderID).
		Msg("order executed")
	return nil
}

// sign computes the HMAC-SHA256 signature over the urlencoded query string.
func (e *LiveExecutor) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(e.apiSecret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}
