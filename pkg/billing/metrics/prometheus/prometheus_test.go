package prommetrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/mihaimyh/subsync/pkg/billing"
)

var _ billing.Metrics = (*Metrics)(nil)

func findFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func TestPrometheusMetrics_NewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	if metrics == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestPrometheusMetrics_RecordWebhookEvent(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordWebhookEvent("stripe", "subscription_updated", "applied")
	metrics.RecordWebhookEvent("stripe", "subscription_updated", "applied")
	metrics.RecordWebhookEvent("stripe", "unhandled", "skipped")

	family := findFamily(t, reg, "test_webhook_deliveries_total")
	if family == nil {
		t.Fatal("Expected to find webhook events metric")
	}
	if len(family.Metric) != 2 {
		t.Fatalf("Expected 2 time series, got %d", len(family.Metric))
	}

	var total float64
	for _, m := range family.Metric {
		total += m.GetCounter().GetValue()
	}
	if total != 3 {
		t.Errorf("Expected 3 events in total, got %v", total)
	}
}

func TestPrometheusMetrics_RecordWebhookError(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordWebhookError("stripe", "signature_invalid")

	family := findFamily(t, reg, "test_webhook_failures_total")
	if family == nil {
		t.Fatal("Expected to find webhook errors metric")
	}
	labels := family.Metric[0].GetLabel()
	found := false
	for _, l := range labels {
		if l.GetName() == "reason" && l.GetValue() == "signature_invalid" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected reason=signature_invalid label, got %v", labels)
	}
}

func TestPrometheusMetrics_Durations(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordWebhookProcessingDuration("stripe", "checkout_completed", 15*time.Millisecond)
	metrics.RecordUserSyncDuration("stripe", 120*time.Millisecond)
	metrics.RecordAPICallDuration("stripe", "/customers/{id}", 80*time.Millisecond)

	for _, name := range []string{
		"test_webhook_handling_seconds",
		"test_reconcile_seconds",
		"test_provider_api_request_seconds",
	} {
		family := findFamily(t, reg, name)
		if family == nil {
			t.Errorf("Expected to find %s", name)
			continue
		}
		if family.Metric[0].GetHistogram().GetSampleCount() != 1 {
			t.Errorf("Expected one observation in %s", name)
		}
	}
}

func TestPrometheusMetrics_MultipleOperations(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordWebhookEvent("stripe", "invoice_payment_failed", "applied")
	metrics.RecordWebhookError("stripe", "store_write")
	metrics.RecordUserSync("stripe", "success")
	metrics.RecordStatusChange("stripe", "past_due")
	metrics.RecordAPICall("stripe", "/subscriptions/{id}", "success")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(families) < 5 {
		t.Errorf("Expected at least 5 metric families, got %d", len(families))
	}
}

func TestPrometheusMetrics_SeriesNames(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "subsync")

	metrics.RecordUserSync("stripe", "not_found")
	metrics.RecordStatusChange("stripe", "canceled")
	metrics.RecordAPICall("stripe", "/customers/{id}", "error")

	for _, name := range []string{
		"subsync_reconcile_runs_total",
		"subsync_record_status_writes_total",
		"subsync_provider_api_requests_total",
	} {
		family := findFamily(t, reg, name)
		if family == nil {
			t.Errorf("Expected to find %s", name)
			continue
		}
		if got := family.Metric[0].GetCounter().GetValue(); got != 1 {
			t.Errorf("%s = %v, want 1", name, got)
		}
	}
}

func TestPrometheusMetrics_DefaultMetrics(t *testing.T) {
	metrics := DefaultMetrics("test_default")

	if metrics == nil {
		t.Fatal("DefaultMetrics returned nil")
	}

	metrics.RecordWebhookEvent("stripe", "subscription_created", "applied")
}
