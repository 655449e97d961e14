package billing

import (
	"net/http"
)

// Config defines the standard configuration all providers should accept
type Config struct {
	// Store is the user record store updated by webhook events (required)
	Store Store

	// WebhookSecret is used to verify incoming webhook requests.
	WebhookSecret string

	// APIKey is used for outbound API calls to the billing provider.
	APIKey string

	// HTTPClient is an optional HTTP client for API calls.
	// If nil, a default client with 10s timeout will be used.
	HTTPClient *http.Client

	// Metrics is an optional metrics collector for tracking billing provider operations.
	// If nil, metrics will be silently ignored (no-op).
	// Use billing/metrics/prometheus.DefaultMetrics(namespace) for Prometheus metrics.
	Metrics Metrics

	// Logger is an optional structured logger. If nil, nothing is logged.
	Logger Logger

	// OnApplied is invoked after each successful store write.
	OnApplied AppliedCallback
}
