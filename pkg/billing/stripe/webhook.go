package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/mihaimyh/subsync/pkg/billing"
	"github.com/mihaimyh/subsync/pkg/billing/internal"
)

const signatureHeader = "Stripe-Signature"

type receivedResponse struct {
	Received bool `json:"received"`
}

// handleWebhook processes incoming Stripe webhook events.
// Once the signature verifies, the response is always 200: per-event failures
// are logged and dropped so Stripe does not redeliver indefinitely.
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	setSecurityHeaders(w)

	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("webhook handler panicked", billing.Field{Key: "panic", Value: fmt.Sprint(rec)})
			p.metrics.RecordWebhookError(providerName, "panic")
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}()

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if p.webhookSecret == "" {
		http.Error(w, "webhook not configured", http.StatusServiceUnavailable)
		return
	}

	// Read and validate body (with size limit protection)
	body, err := internal.ReadBodyStrict(w, r, maxWebhookBodySize)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			p.metrics.RecordWebhookError(providerName, "payload_too_large")
		} else {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			p.metrics.RecordWebhookError(providerName, "invalid_payload")
		}
		return
	}

	event, err := p.verifyEvent(body, r.Header.Get(signatureHeader))
	if err != nil {
		p.logger.Warn("webhook signature verification failed",
			billing.Field{Key: "remote_ip", Value: internal.GetClientIP(r)},
			billing.Field{Key: "error", Value: err},
		)
		p.metrics.RecordWebhookError(providerName, "signature_invalid")
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	kind := ClassifyEvent(event.Type)
	status := p.processEvent(r.Context(), kind, &event)

	p.metrics.RecordWebhookEvent(providerName, kind.String(), string(status))
	p.metrics.RecordWebhookProcessingDuration(providerName, kind.String(), time.Since(startTime))

	if err := internal.WriteJSON(w, http.StatusOK, receivedResponse{Received: true}); err != nil {
		p.logger.Debug("failed to write webhook response", billing.Field{Key: "error", Value: err})
	}
}

// verifyEvent checks the Stripe-Signature header against the signing secret
// and parses the event.
func (p *Provider) verifyEvent(body []byte, sig string) (stripe.Event, error) {
	if strings.TrimSpace(sig) == "" {
		return stripe.Event{}, fmt.Errorf("%w: missing %s header", billing.ErrSignatureInvalid, signatureHeader)
	}

	event, err := webhook.ConstructEventWithOptions(body, sig, p.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                p.tolerance,
		IgnoreAPIVersionMismatch: !p.config.StrictAPIVersion,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %w", billing.ErrSignatureInvalid, err)
	}
	return event, nil
}

// processEvent applies a verified event and converts every failure into a
// logged outcome.
func (p *Provider) processEvent(ctx context.Context, kind billing.EventKind, event *stripe.Event) applyStatus {
	if !kind.Handled() {
		p.logger.Debug("unhandled webhook event acknowledged",
			billing.Field{Key: "event_id", Value: event.ID},
			billing.Field{Key: "event_type", Value: string(event.Type)},
		)
		return statusSkipped
	}

	status, err := p.applyEvent(ctx, kind, event)
	if err == nil {
		return status
	}

	fields := []billing.Field{
		{Key: "event_id", Value: event.ID},
		{Key: "event_type", Value: string(event.Type)},
		{Key: "error", Value: err},
	}
	switch {
	case errors.Is(err, billing.ErrUnresolvableCustomer):
		p.metrics.RecordWebhookError(providerName, "unresolvable_customer")
		p.logger.Warn("webhook customer could not be resolved", fields...)
	case errors.Is(err, billing.ErrStoreWrite):
		p.metrics.RecordWebhookError(providerName, "store_write")
		p.logger.Error("webhook store update failed", fields...)
	case errors.Is(err, billing.ErrInvalidWebhookPayload):
		p.metrics.RecordWebhookError(providerName, "invalid_payload")
		p.logger.Error("webhook payload could not be decoded", fields...)
	default:
		p.metrics.RecordWebhookError(providerName, "processing_error")
		p.logger.Error("webhook processing failed", fields...)
	}
	return status
}

// Helper functions

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
