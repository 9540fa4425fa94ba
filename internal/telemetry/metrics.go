package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency. Shared across the API surface.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "domainforge",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// PurchasesTotal counts completed purchase attempts by outcome.
var PurchasesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "domainforge",
		Subsystem: "purchase",
		Name:      "total",
		Help:      "Total number of purchase pipeline outcomes.",
	},
	[]string{"outcome"}, // committed, idempotent_replay, price_drift, daily_cap, spend_cap, registrar_error
)

// IdempotencyReplaysTotal counts purchase requests served from the idempotency ledger.
var IdempotencyReplaysTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "domainforge",
		Subsystem: "idempotency",
		Name:      "replays_total",
		Help:      "Total number of purchase requests served as idempotent replays.",
	},
)

// PriceDriftTotal counts purchase attempts rejected for price drift.
var PriceDriftTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "domainforge",
		Subsystem: "purchase",
		Name:      "price_drift_total",
		Help:      "Total number of purchase attempts rejected for exceeding the price drift tolerance.",
	},
)

// RateLimitRejectionsTotal counts requests rejected by the rate limiter.
var RateLimitRejectionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "domainforge",
		Subsystem: "ratelimit",
		Name:      "rejections_total",
		Help:      "Total number of requests rejected by the rate limiter.",
	},
	[]string{"route"},
)

// RegistrarRequestsTotal counts outbound registrar API calls by driver/operation/outcome.
var RegistrarRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "domainforge",
		Subsystem: "registrar",
		Name:      "requests_total",
		Help:      "Total number of outbound registrar API calls.",
	},
	[]string{"driver", "operation", "outcome"},
)

// All returns all domainforge-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		PurchasesTotal,
		IdempotencyReplaysTotal,
		PriceDriftTotal,
		RateLimitRejectionsTotal,
		RegistrarRequestsTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors,
// the shared HTTP duration metric, and any additional service-specific collectors.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
