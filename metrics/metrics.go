// Package metrics exposes the engine's Prometheus metrics:
//   - autoexit_triggers_total{reason}   – trigger fires by reason
//   - exit_orders_total{type,side}      – orders submitted by the executor
//   - exit_attempts_total{outcome}      – attempt outcomes (filled|partial|timeout)
//   - exit_not_flat_total               – exhausted retry budgets (manual intervention)
//   - candles_rejected_total{source}    – candles/ticks dropped by validation
//   - autoexit_armed                    – 1 while an exit is armed
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

var (
	Triggers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoexit_triggers_total",
			Help: "Auto-exit triggers by reason",
		},
		[]string{"reason"},
	)

	ExitOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exit_orders_total",
			Help: "Exit orders submitted",
		},
		[]string{"type", "side"},
	)

	ExitAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exit_attempts_total",
			Help: "Exit attempt outcomes",
		},
		[]string{"outcome"},
	)

	NotFlat = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "exit_not_flat_total",
			Help: "Exit sequences exhausted with contracts still open",
		},
	)

	CandlesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "candles_rejected_total",
			Help: "Candles and ticks dropped by validation",
		},
		[]string{"source"},
	)

	Armed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "autoexit_armed",
			Help: "1 while an auto-exit is armed",
		},
	)
)

func init() {
	prometheus.MustRegister(
		Triggers,
		ExitOrders,
		ExitAttempts,
		NotFlat,
		CandlesRejected,
		Armed,
	)
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
