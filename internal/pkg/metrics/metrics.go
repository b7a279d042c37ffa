package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apex_api_requests_total",
		Help: "The total number of exchange API requests by method and status",
	}, []string{"method", "status"})

	APIRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apex_api_retries_total",
		Help: "Total retried API attempts by cause",
	}, []string{"cause"})

	RateLimitWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "apex_ratelimit_wait_seconds",
		Help:    "Time spent waiting for a rate limiter token",
		Buckets: prometheus.DefBuckets,
	})

	RiskRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apex_risk_rejects_total",
		Help: "Total risk manager rejections by reason",
	}, []string{"reason"})

	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apex_orders_total",
		Help: "The total number of orders submitted",
	}, []string{"status", "side"})

	SignalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apex_signals_total",
		Help: "Trade signals generated per strategy",
	}, []string{"strategy"})

	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apex_cycles_total",
		Help: "Trading cycles run, by outcome",
	}, []string{"result"})
)
