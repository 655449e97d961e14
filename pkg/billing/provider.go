package billing

import (
	"context"
	"net/http"
)

// Provider is the interface a payment processor integration implements.
type Provider interface {
	// Name returns the provider name (e.g., "stripe")
	Name() string

	// WebhookHandler returns the HTTP handler that processes real-time events.
	// The implementation handles verification, classification and store updates internally.
	WebhookHandler() http.Handler

	// SyncUser re-reads the user's subscription from the provider and writes
	// its current status and billing period to the store.
	// This is used to repair records after a lost webhook mutation.
	SyncUser(ctx context.Context, userID string) (SubscriptionStatus, error)
}
