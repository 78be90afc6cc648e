package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// Metrics exposes application-level instruments on a private registry so
// tests can construct independent instances.
type Metrics struct {
	registry *prometheus.Registry

	httpDuration    *prometheus.HistogramVec
	paymentsPosted  *prometheus.CounterVec
	cashbookRecalcs *prometheus.CounterVec
	paypalPolls     *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())

	m := &Metrics{
		registry: registry,
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kiosk_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		paymentsPosted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosk_payments_posted_total",
			Help: "Payments posted to the cashbook, by method.",
		}, []string{"method"}),
		cashbookRecalcs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosk_cashbook_recalculations_total",
			Help: "Balance chain recalculations, by company and kind.",
		}, []string{"company", "kind"}),
		paypalPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosk_paypal_polls_total",
			Help: "PayPal status poll attempts, by outcome.",
		}, []string{"outcome"}),
	}

	registry.MustRegister(m.httpDuration, m.paymentsPosted, m.cashbookRecalcs, m.paypalPolls)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) IncPaymentPosted(method string) {
	if m == nil {
		return
	}
	m.paymentsPosted.WithLabelValues(method).Inc()
}

func (m *Metrics) IncCashbookRecalc(company, kind string) {
	if m == nil {
		return
	}
	m.cashbookRecalcs.WithLabelValues(company, kind).Inc()
}

func (m *Metrics) IncPayPalPoll(outcome string) {
	if m == nil {
		return
	}
	m.paypalPolls.WithLabelValues(outcome).Inc()
}

// GinMiddleware records request latency per route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.httpDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

var Module = fx.Module("metrics",
	fx.Provide(New),
)
