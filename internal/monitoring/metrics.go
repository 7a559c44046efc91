package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Trading metrics
	tradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridbot_trades_total",
			Help: "Total number of trades recorded by bot runtimes",
		},
		[]string{"symbol", "side"},
	)

	tickErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridbot_tick_errors_total",
			Help: "Total number of swallowed bot tick errors",
		},
		[]string{"stage"},
	)

	activeRuntimes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridbot_active_runtimes",
			Help: "Number of bot runtimes currently ticking",
		},
	)

	// Ingest metrics
	tickerBatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gridbot_ticker_batches_total",
			Help: "Total number of ticker batches written to the price store",
		},
	)

	pricesCached = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridbot_prices_cached",
			Help: "Number of prices written in the last ticker batch",
		},
	)

	wsReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gridbot_ws_reconnects_total",
			Help: "Total number of upstream websocket reconnect attempts",
		},
	)

	// Screening metrics
	screeningSymbolsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gridbot_screening_symbols_total",
			Help: "Total number of symbols processed by screening jobs",
		},
	)
)

func init() {
	prometheus.MustRegister(tradesTotal)
	prometheus.MustRegister(tickErrorsTotal)
	prometheus.MustRegister(activeRuntimes)
	prometheus.MustRegister(tickerBatchesTotal)
	prometheus.MustRegister(pricesCached)
	prometheus.MustRegister(wsReconnectsTotal)
	prometheus.MustRegister(screeningSymbolsTotal)
}

// RecordTrade counts one executed trade.
func RecordTrade(symbol, side string) {
	tradesTotal.WithLabelValues(symbol, side).Inc()
}

// RecordTickError counts one swallowed tick failure by stage.
func RecordTickError(stage string) {
	tickErrorsTotal.WithLabelValues(stage).Inc()
}

// RuntimeStarted and RuntimeStopped track the live runtime gauge.
func RuntimeStarted() { activeRuntimes.Inc() }
func RuntimeStopped() { activeRuntimes.Dec() }

// RecordTickerBatch counts one batch write of n prices.
func RecordTickerBatch(n int) {
	tickerBatchesTotal.Inc()
	pricesCached.Set(float64(n))
}

// RecordReconnect counts one websocket reconnect attempt.
func RecordReconnect() { wsReconnectsTotal.Inc() }

// RecordScreenedSymbol counts one processed screening symbol.
func RecordScreenedSymbol() { screeningSymbolsTotal.Inc() }

// Handler returns the Prometheus metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
