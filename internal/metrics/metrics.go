// Package metrics exposes ledger and workflow counters on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors of one process
type Metrics struct {
	registry *prometheus.Registry

	LedgerOps     *prometheus.CounterVec
	StockQuantity *prometheus.CounterVec
	WorkflowOps   *prometheus.CounterVec
	Claims        *prometheus.CounterVec
	SummaryDrift  *prometheus.GaugeVec
	ReconcileRuns prometheus.Counter
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
}

// New registers every collector on a private registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		LedgerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockledger_ledger_operations_total",
			Help: "Ledger operations by chain, operation and outcome.",
		}, []string{"chain", "operation", "outcome"}),
		StockQuantity: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockledger_stock_quantity_total",
			Help: "Units moved through the ledger by chain and direction.",
		}, []string{"chain", "direction"}),
		WorkflowOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockledger_request_transitions_total",
			Help: "Request state transitions by target status and outcome.",
		}, []string{"status", "outcome"}),
		Claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockledger_claims_total",
			Help: "Claim attempts by outcome.",
		}, []string{"outcome"}),
		SummaryDrift: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stockledger_summary_drift",
			Help: "Summaries found out of line with their entries in the last reconcile pass.",
		}, []string{"chain"}),
		ReconcileRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockledger_reconcile_runs_total",
			Help: "Completed reconcile passes.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockledger_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stockledger_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.LedgerOps, m.StockQuantity, m.WorkflowOps, m.Claims,
		m.SummaryDrift, m.ReconcileRuns, m.HTTPRequests, m.HTTPDuration,
	)
	return m
}

// Outcome maps an operation error onto the "outcome" label
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// Middleware records request counts and latency per matched route
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
