// Package prommetrics exports billing.Metrics as Prometheus series.
//
// Series, under the configured namespace:
//
//	webhook_deliveries_total{provider,kind,outcome}
//	webhook_handling_seconds{provider,kind}
//	webhook_failures_total{provider,reason}
//	reconcile_runs_total{provider,result}
//	reconcile_seconds{provider}
//	record_status_writes_total{provider,status}
//	provider_api_requests_total{provider,endpoint,result}
//	provider_api_request_seconds{provider,endpoint}
package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mihaimyh/subsync/pkg/billing"
)

const (
	labelProvider = "provider"
	labelKind     = "kind"
	labelEndpoint = "endpoint"
	labelStatus   = "status"
)

var (
	// Webhook handling is a signature check plus at most two API calls and one write.
	handlingBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}

	// Stripe API round trips, bounded by the 10s client timeout.
	apiBuckets = []float64{.05, .1, .25, .5, 1, 2, 5, 10}
)

// Metrics implements billing.Metrics using Prometheus.
type Metrics struct {
	deliveries    *prometheus.CounterVec
	handling      *prometheus.HistogramVec
	failures      *prometheus.CounterVec
	reconciles    *prometheus.CounterVec
	reconcileTime *prometheus.HistogramVec
	statusWrites  *prometheus.CounterVec
	apiRequests   *prometheus.CounterVec
	apiTime       *prometheus.HistogramVec
}

// NewMetrics registers the series on reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	counter := func(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
		}, labels)
	}
	histogram := func(subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
		return f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets,
		}, labels)
	}

	return &Metrics{
		deliveries: counter("webhook", "deliveries_total",
			"Verified webhook deliveries by event kind and outcome (applied, skipped, error).",
			labelProvider, labelKind, "outcome"),
		handling: histogram("webhook", "handling_seconds",
			"Time from request receipt to acknowledgement of a verified delivery.",
			handlingBuckets, labelProvider, labelKind),
		failures: counter("webhook", "failures_total",
			"Webhook deliveries that failed verification or could not be applied, by reason.",
			labelProvider, "reason"),
		reconciles: counter("reconcile", "runs_total",
			"On-demand user reconciliations by result (success, not_found, error).",
			labelProvider, "result"),
		reconcileTime: histogram("reconcile", "seconds",
			"Duration of on-demand user reconciliations.",
			apiBuckets, labelProvider),
		statusWrites: counter("record", "status_writes_total",
			"Subscription status values written to user records.",
			labelProvider, labelStatus),
		apiRequests: counter("provider_api", "requests_total",
			"Outbound requests to the payment processor API by result.",
			labelProvider, labelEndpoint, "result"),
		apiTime: histogram("provider_api", "request_seconds",
			"Latency of outbound payment processor API requests.",
			apiBuckets, labelProvider, labelEndpoint),
	}
}

func (m *Metrics) RecordWebhookEvent(provider, kind, status string) {
	m.deliveries.WithLabelValues(provider, kind, status).Inc()
}

func (m *Metrics) RecordWebhookProcessingDuration(provider, kind string, duration time.Duration) {
	m.handling.WithLabelValues(provider, kind).Observe(duration.Seconds())
}

func (m *Metrics) RecordWebhookError(provider, errorType string) {
	m.failures.WithLabelValues(provider, errorType).Inc()
}

func (m *Metrics) RecordUserSync(provider, status string) {
	m.reconciles.WithLabelValues(provider, status).Inc()
}

func (m *Metrics) RecordUserSyncDuration(provider string, duration time.Duration) {
	m.reconcileTime.WithLabelValues(provider).Observe(duration.Seconds())
}

func (m *Metrics) RecordStatusChange(provider, status string) {
	m.statusWrites.WithLabelValues(provider, status).Inc()
}

func (m *Metrics) RecordAPICall(provider, endpoint, status string) {
	m.apiRequests.WithLabelValues(provider, endpoint, status).Inc()
}

func (m *Metrics) RecordAPICallDuration(provider, endpoint string, duration time.Duration) {
	m.apiTime.WithLabelValues(provider, endpoint).Observe(duration.Seconds())
}

// DefaultMetrics registers on prometheus.DefaultRegisterer.
func DefaultMetrics(namespace string) billing.Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}
