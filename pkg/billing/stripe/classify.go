package stripe

import (
	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/subsync/pkg/billing"
)

var eventKinds = map[stripe.EventType]billing.EventKind{
	stripe.EventTypeCheckoutSessionCompleted:    billing.EventCheckoutCompleted,
	stripe.EventTypeCustomerSubscriptionCreated: billing.EventSubscriptionCreated,
	stripe.EventTypeCustomerSubscriptionUpdated: billing.EventSubscriptionUpdated,
	stripe.EventTypeCustomerSubscriptionDeleted: billing.EventSubscriptionDeleted,
	stripe.EventTypeInvoicePaymentSucceeded:     billing.EventInvoicePaymentSucceeded,
	stripe.EventTypeInvoicePaymentFailed:        billing.EventInvoicePaymentFailed,
}

// ClassifyEvent maps a Stripe event type to the kind the applier handles.
// Unknown types map to billing.EventUnhandled.
func ClassifyEvent(eventType stripe.EventType) billing.EventKind {
	if kind, ok := eventKinds[eventType]; ok {
		return kind
	}
	return billing.EventUnhandled
}
