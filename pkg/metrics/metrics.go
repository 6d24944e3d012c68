package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nimbuslab/crewbase/internal/common/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry    *prometheus.Registry
	namespace   string
	httpReqCnt  *prometheus.CounterVec
	httpDur     *prometheus.HistogramVec
	httpInfl    *prometheus.GaugeVec
	webhookCnt  *prometheus.CounterVec
	webhookDur  *prometheus.HistogramVec
	mailCnt     *prometheus.CounterVec
	permLookups *prometheus.CounterVec
}

func New(cfg config.MetricsConfig) *Metrics {
	ns := cfg.Namespace
	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	httpReqCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total"}, []string{"method", "route", "status"})
	httpDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "http_request_duration_seconds", Buckets: cfg.Buckets}, []string{"method", "route", "status"})
	httpInfl := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: "http_requests_inflight"}, []string{"route"})
	r.MustRegister(httpReqCnt, httpDur, httpInfl)

	webhookCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "webhook_events_total"}, []string{"event_type", "outcome"})
	webhookDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "webhook_event_duration_seconds", Buckets: cfg.Buckets}, []string{"event_type"})
	r.MustRegister(webhookCnt, webhookDur)

	mailCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "mail_deliveries_total"}, []string{"template", "outcome"})
	permLookups := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "permission_lookups_total"}, []string{"source"})
	r.MustRegister(mailCnt, permLookups)

	return &Metrics{
		registry:    r,
		namespace:   ns,
		httpReqCnt:  httpReqCnt,
		httpDur:     httpDur,
		httpInfl:    httpInfl,
		webhookCnt:  webhookCnt,
		webhookDur:  webhookDur,
		mailCnt:     mailCnt,
		permLookups: permLookups,
	}
}

// WebhookEventDone records the outcome of one webhook event:
// "processed", "duplicate", "ignored" or "failed".
func (m *Metrics) WebhookEventDone(eventType, outcome string, since time.Time) {
	m.webhookCnt.WithLabelValues(eventType, outcome).Inc()
	m.webhookDur.WithLabelValues(eventType).Observe(time.Since(since).Seconds())
}

func (m *Metrics) MailDelivered(template string, ok bool) {
	outcome := "sent"
	if !ok {
		outcome = "failed"
	}
	m.mailCnt.WithLabelValues(template, outcome).Inc()
}

// PermissionLookup records where a permission set came from: "cache" or "db".
func (m *Metrics) PermissionLookup(source string) {
	m.permLookups.WithLabelValues(source).Inc()
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		m.httpInfl.WithLabelValues(route).Inc()
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		m.httpReqCnt.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpDur.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpInfl.WithLabelValues(route).Dec()
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
