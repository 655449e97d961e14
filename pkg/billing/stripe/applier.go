package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/subsync/pkg/billing"
)

// errNotSubscription marks a checkout session that did not create a subscription.
var errNotSubscription = errors.New("checkout session has no subscription")

// target is what a policy resolves from an event before mutating the store.
type target struct {
	customer     *stripe.Customer
	subscription *stripe.Subscription

	// periodEnd overrides the subscription items' current_period_end when the
	// payload still carries the top-level field (pre-2025 API versions).
	periodEnd int64
}

type policy struct {
	resolve func(ctx context.Context, p *Provider, raw json.RawMessage) (*target, error)
	mutate  func(p *Provider, t *target, now time.Time) *billing.SubscriptionUpdate
}

// policies is the single mutation table for every handled event kind.
var policies = map[billing.EventKind]policy{
	billing.EventCheckoutCompleted:       {resolve: resolveCheckoutSession, mutate: linkSubscription},
	billing.EventSubscriptionCreated:     {resolve: resolveSubscription, mutate: linkSubscription},
	billing.EventSubscriptionUpdated:     {resolve: resolveSubscription, mutate: refreshSubscription},
	billing.EventSubscriptionDeleted:     {resolve: resolveSubscription, mutate: forceStatus(billing.StatusCanceled)},
	billing.EventInvoicePaymentSucceeded: {resolve: resolveInvoice, mutate: forceStatus(billing.StatusActive)},
	billing.EventInvoicePaymentFailed:    {resolve: resolveInvoice, mutate: forceStatus(billing.StatusPastDue)},
}

type applyStatus string

const (
	statusApplied applyStatus = "applied"
	statusSkipped applyStatus = "skipped"
	statusError   applyStatus = "error"
)

// applyEvent resolves the user behind a handled event and writes the kind's
// mutation to the store. Events whose customer carries no user id are skipped.
func (p *Provider) applyEvent(ctx context.Context, kind billing.EventKind, event *stripe.Event) (applyStatus, error) {
	pol, ok := policies[kind]
	if !ok {
		return statusSkipped, nil
	}
	if event.Data == nil {
		return statusError, fmt.Errorf("%w: event %s has no data", billing.ErrInvalidWebhookPayload, event.ID)
	}

	t, err := pol.resolve(ctx, p, event.Data.Raw)
	if errors.Is(err, errNotSubscription) {
		p.logger.Debug("checkout session without subscription ignored", billing.Field{Key: "event_id", Value: event.ID})
		return statusSkipped, nil
	}
	if err != nil {
		return statusError, err
	}

	userID := p.userIDFromCustomer(t.customer)
	if userID == "" {
		p.logger.Info("customer not linked to a user, skipping",
			billing.Field{Key: "event_id", Value: event.ID},
			billing.Field{Key: "event_type", Value: string(event.Type)},
			billing.Field{Key: "customer_id", Value: t.customer.ID},
		)
		return statusSkipped, nil
	}

	update := pol.mutate(p, t, p.now())
	if err := p.store.UpdateSubscription(ctx, userID, update); err != nil {
		return statusError, fmt.Errorf("%w: user %s: %w", billing.ErrStoreWrite, userID, err)
	}
	if update.Status != nil {
		p.metrics.RecordStatusChange(providerName, string(*update.Status))
	}

	p.logger.Info("subscription state applied",
		billing.Field{Key: "event_id", Value: event.ID},
		billing.Field{Key: "kind", Value: kind.String()},
		billing.Field{Key: "user_id", Value: userID},
	)

	if p.onApplied != nil {
		applied := billing.AppliedEvent{
			UserID:         userID,
			Provider:       providerName,
			Kind:           kind,
			EventID:        event.ID,
			EventType:      string(event.Type),
			EventTimestamp: time.Unix(event.Created, 0).UTC(),
			CustomerID:     t.customer.ID,
			CustomerEmail:  t.customer.Email,
			Update:         update,
		}
		if t.subscription != nil {
			applied.SubscriptionID = t.subscription.ID
		}
		if err := p.onApplied(ctx, applied); err != nil {
			p.logger.Warn("post-apply callback failed",
				billing.Field{Key: "event_id", Value: event.ID},
				billing.Field{Key: "error", Value: err},
			)
		}
	}

	return statusApplied, nil
}

func (p *Provider) userIDFromCustomer(cust *stripe.Customer) string {
	if cust == nil || cust.Deleted || cust.Metadata == nil {
		return ""
	}
	return cust.Metadata[p.userIDKey]
}

// customerFor returns the customer behind ref, fetching it unless the payload
// already embeds an expanded customer.
func (p *Provider) customerFor(ctx context.Context, ref *stripe.Customer) (*stripe.Customer, error) {
	if ref == nil || ref.ID == "" {
		return nil, fmt.Errorf("%w: event carries no customer", billing.ErrUnresolvableCustomer)
	}
	if ref.Metadata != nil {
		return ref, nil
	}
	cust, err := p.client.RetrieveCustomer(ctx, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: retrieve customer %s: %w", billing.ErrUnresolvableCustomer, ref.ID, err)
	}
	return cust, nil
}

func resolveCheckoutSession(ctx context.Context, p *Provider, raw json.RawMessage) (*target, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("%w: checkout session: %w", billing.ErrInvalidWebhookPayload, err)
	}
	if session.Subscription == nil || session.Subscription.ID == "" {
		return nil, errNotSubscription
	}

	cust, err := p.customerFor(ctx, session.Customer)
	if err != nil {
		return nil, err
	}
	// unlinked customers are skipped by applyEvent before any mutation
	if p.userIDFromCustomer(cust) == "" {
		return &target{customer: cust}, nil
	}

	sub, err := p.client.RetrieveSubscription(ctx, session.Subscription.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: retrieve subscription %s: %w", billing.ErrProviderAPIError, session.Subscription.ID, err)
	}

	return &target{customer: cust, subscription: sub}, nil
}

func resolveSubscription(ctx context.Context, p *Provider, raw json.RawMessage) (*target, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, fmt.Errorf("%w: subscription: %w", billing.ErrInvalidWebhookPayload, err)
	}

	cust, err := p.customerFor(ctx, sub.Customer)
	if err != nil {
		return nil, err
	}

	var legacy struct {
		CurrentPeriodEnd int64 `json:"current_period_end"`
	}
	_ = json.Unmarshal(raw, &legacy)

	return &target{customer: cust, subscription: &sub, periodEnd: legacy.CurrentPeriodEnd}, nil
}

func resolveInvoice(ctx context.Context, p *Provider, raw json.RawMessage) (*target, error) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return nil, fmt.Errorf("%w: invoice: %w", billing.ErrInvalidWebhookPayload, err)
	}

	cust, err := p.customerFor(ctx, invoice.Customer)
	if err != nil {
		return nil, err
	}
	if cust.Email == "" && invoice.CustomerEmail != "" {
		cust.Email = invoice.CustomerEmail
	}

	return &target{customer: cust}, nil
}

// linkSubscription records the customer/subscription link and the subscription's state.
func linkSubscription(p *Provider, t *target, now time.Time) *billing.SubscriptionUpdate {
	update := refreshSubscription(p, t, now)
	customerID := t.customer.ID
	subscriptionID := t.subscription.ID
	plan := p.plan
	update.ExternalCustomerID = &customerID
	update.ExternalSubscriptionID = &subscriptionID
	update.Plan = &plan
	return update
}

// refreshSubscription copies status, trial end and period end from the subscription.
func refreshSubscription(_ *Provider, t *target, now time.Time) *billing.SubscriptionUpdate {
	status := billing.SubscriptionStatus(t.subscription.Status)
	periodEnd := t.periodEnd
	if periodEnd == 0 {
		periodEnd = itemsPeriodEnd(t.subscription)
	}
	return &billing.SubscriptionUpdate{
		Status:           &status,
		SetPeriod:        true,
		TrialEnd:         epochToTime(t.subscription.TrialEnd),
		CurrentPeriodEnd: epochToTime(periodEnd),
		UpdatedAt:        now,
	}
}

func forceStatus(status billing.SubscriptionStatus) func(*Provider, *target, time.Time) *billing.SubscriptionUpdate {
	return func(_ *Provider, _ *target, now time.Time) *billing.SubscriptionUpdate {
		s := status
		return &billing.SubscriptionUpdate{
			Status:    &s,
			UpdatedAt: now,
		}
	}
}

// itemsPeriodEnd returns the latest current_period_end across the subscription items.
func itemsPeriodEnd(sub *stripe.Subscription) int64 {
	if sub == nil || sub.Items == nil {
		return 0
	}
	var end int64
	for _, item := range sub.Items.Data {
		if item != nil && item.CurrentPeriodEnd > end {
			end = item.CurrentPeriodEnd
		}
	}
	return end
}

func epochToTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
