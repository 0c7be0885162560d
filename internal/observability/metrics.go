package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors exported by the service.
type Metrics struct {
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	httpErrors         *prometheus.CounterVec
	reportsGenerated   *prometheus.CounterVec
	reportSkips        *prometheus.CounterVec
	reportCacheLookups *prometheus.CounterVec
	emailsSent         *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketdesk_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ticketdesk_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketdesk_http_errors_total",
			Help: "HTTP requests that ended in an application error, by error code",
		}, []string{"method", "route", "code"}),
		reportsGenerated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketdesk_reports_generated_total",
			Help: "Reports computed, by bucket granularity",
		}, []string{"group_by"}),
		reportSkips: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketdesk_report_records_skipped_total",
			Help: "Ticket records excluded from part of a report, by reason",
		}, []string{"reason"}),
		reportCacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketdesk_report_cache_lookups_total",
			Help: "Report cache lookups by result",
		}, []string{"result"}),
		emailsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketdesk_emails_sent_total",
			Help: "Outgoing emails by template and outcome",
		}, []string{"template", "outcome"}),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.httpErrors.WithLabelValues(method, route, code).Inc()
}

// RecordReport counts a computed (not cached) report.
func (m *Metrics) RecordReport(groupBy string) {
	if m == nil {
		return
	}
	m.reportsGenerated.WithLabelValues(groupBy).Inc()
}

// RecordReportSkip counts a record left out of an aggregate.
func (m *Metrics) RecordReportSkip(reason string) {
	if m == nil {
		return
	}
	m.reportSkips.WithLabelValues(reason).Inc()
}

// RecordCacheLookup counts a report cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.reportCacheLookups.WithLabelValues(result).Inc()
}

// RecordEmail counts an email delivery attempt.
func (m *Metrics) RecordEmail(template string, err error) {
	if m == nil {
		return
	}
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	m.emailsSent.WithLabelValues(template, outcome).Inc()
}
