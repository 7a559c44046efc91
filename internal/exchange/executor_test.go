package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiveExecutorPlaceMarket(t *testing.T) {
	const secret = "test-secret"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v3/order", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("X-MBX-APIKEY"))

		q := r.URL.Query()
		assert.Equal(t, "BTCUSDC", q.Get("symbol"))
		assert.Equal(t, "BUY", q.Get("side"))
		assert.Equal(t, "MARKET", q.Get("type"))
		assert.Equal(t, "0.5", q.Get("quantity"))
		assert.Equal(t, "1750000000000", q.Get("timestamp"))

		// Signature must be over the raw query with the signature stripped.
		raw := r.URL.RawQuery
		idx := strings.Index(raw, "&signature=")
		require.Greater(t, idx, 0)
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(raw[:idx]))
		assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), q.Get("signature"))

		fmt.Fprint(w, `{"orderId":12345,"status":"FILLED"}`)
	}))
	defer srv.Close()

	e := NewLiveExecutor(srv.URL, "test-key", secret)
	e.nowMillis = func() int64 { return 1750000000000 }

	require.NoError(t, e.PlaceMarket(context.Background(), "btcusdc", "buy", 0.5))
}

func TestLiveExecutorRejectedOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":-2010,"msg":"Account has insufficient balance"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	e := NewLiveExecutor(srv.URL, "k", "s")
	err := e.PlaceMarket(context.Background(), "BTCUSDC", "SELL", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient balance")
}
