package billing

import (
	"context"
	"time"
)

// EventKind is the closed set of webhook event kinds the applier acts on.
type EventKind int

const (
	EventUnhandled EventKind = iota
	EventCheckoutCompleted
	EventSubscriptionCreated
	EventSubscriptionUpdated
	EventSubscriptionDeleted
	EventInvoicePaymentSucceeded
	EventInvoicePaymentFailed
)

var eventKindNames = [...]string{
	EventUnhandled:               "unhandled",
	EventCheckoutCompleted:       "checkout_completed",
	EventSubscriptionCreated:     "subscription_created",
	EventSubscriptionUpdated:     "subscription_updated",
	EventSubscriptionDeleted:     "subscription_deleted",
	EventInvoicePaymentSucceeded: "invoice_payment_succeeded",
	EventInvoicePaymentFailed:    "invoice_payment_failed",
}

func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventKindNames) {
		return eventKindNames[EventUnhandled]
	}
	return eventKindNames[k]
}

// Handled reports whether k triggers a store mutation.
func (k EventKind) Handled() bool {
	return k > EventUnhandled && int(k) < len(eventKindNames)
}

// AppliedEvent describes a mutation that was written to the store.
// It is passed to Config.OnApplied.
type AppliedEvent struct {
	// UserID is the internal user identifier
	UserID string

	// Provider is the billing provider name ("stripe")
	Provider string

	// Kind is the classified event kind
	Kind EventKind

	// EventID and EventType are the provider's identifiers for the event
	EventID   string
	EventType string

	// EventTimestamp is when the event occurred (from provider)
	EventTimestamp time.Time

	CustomerID     string
	CustomerEmail  string
	SubscriptionID string

	// Update is the partial update that was written
	Update *SubscriptionUpdate
}

// AppliedCallback runs after a successful store write. Its error is logged
// by the provider and never fails the webhook response.
type AppliedCallback func(ctx context.Context, event AppliedEvent) error
