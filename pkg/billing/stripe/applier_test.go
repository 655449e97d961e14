package stripe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/subsync/pkg/billing"
)

func TestPolicies_CoverEveryHandledKind(t *testing.T) {
	for _, kind := range eventKinds {
		if _, ok := policies[kind]; !ok {
			t.Errorf("no policy for %s", kind)
		}
	}
	if len(policies) != len(eventKinds) {
		t.Errorf("Expected %d policies, got %d", len(eventKinds), len(policies))
	}
	if _, ok := policies[billing.EventUnhandled]; ok {
		t.Error("unhandled events must not have a policy")
	}
}

func TestMutations(t *testing.T) {
	env := newTestEnv(t)
	p := env.provider
	sub := apiSubscription(testSubscriptionID, testCustomerID, stripe.SubscriptionStatusTrialing, testTrialEnd, testPeriodEnd)
	tgt := &target{customer: &stripe.Customer{ID: testCustomerID}, subscription: sub}

	tests := []struct {
		kind       billing.EventKind
		status     billing.SubscriptionStatus
		links      bool
		setsPeriod bool
		setsPlan   bool
	}{
		{billing.EventCheckoutCompleted, billing.StatusTrialing, true, true, true},
		{billing.EventSubscriptionCreated, billing.StatusTrialing, true, true, true},
		{billing.EventSubscriptionUpdated, billing.StatusTrialing, false, true, false},
		{billing.EventSubscriptionDeleted, billing.StatusCanceled, false, false, false},
		{billing.EventInvoicePaymentSucceeded, billing.StatusActive, false, false, false},
		{billing.EventInvoicePaymentFailed, billing.StatusPastDue, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			update := policies[tt.kind].mutate(p, tgt, testNow)

			if update.Status == nil || *update.Status != tt.status {
				t.Errorf("Expected status %s, got %v", tt.status, update.Status)
			}
			if (update.ExternalCustomerID != nil) != tt.links || (update.ExternalSubscriptionID != nil) != tt.links {
				t.Errorf("link fields set=%v, expected %v", update.ExternalCustomerID != nil, tt.links)
			}
			if update.SetPeriod != tt.setsPeriod {
				t.Errorf("SetPeriod = %v, expected %v", update.SetPeriod, tt.setsPeriod)
			}
			if (update.Plan != nil) != tt.setsPlan {
				t.Errorf("plan set=%v, expected %v", update.Plan != nil, tt.setsPlan)
			}
			if tt.setsPlan && *update.Plan != defaultPlan {
				t.Errorf("Expected plan %s, got %s", defaultPlan, *update.Plan)
			}
			if !update.UpdatedAt.Equal(testNow) {
				t.Errorf("Expected updatedAt %v, got %v", testNow, update.UpdatedAt)
			}
		})
	}
}

func TestRefreshSubscription_NullTimestamps(t *testing.T) {
	sub := apiSubscription(testSubscriptionID, testCustomerID, stripe.SubscriptionStatusActive, 0, 0)
	update := refreshSubscription(nil, &target{subscription: sub}, testNow)

	if !update.SetPeriod {
		t.Fatal("Expected SetPeriod")
	}
	if update.TrialEnd != nil || update.CurrentPeriodEnd != nil {
		t.Errorf("Expected absent timestamps to map to null, got %v / %v", update.TrialEnd, update.CurrentPeriodEnd)
	}
}

func TestRefreshSubscription_LegacyPeriodEnd(t *testing.T) {
	sub := apiSubscription(testSubscriptionID, testCustomerID, stripe.SubscriptionStatusActive, 0, testPeriodEnd)
	update := refreshSubscription(nil, &target{subscription: sub, periodEnd: testPeriodEnd + 3600}, testNow)

	want := time.Unix(testPeriodEnd+3600, 0).UTC()
	if update.CurrentPeriodEnd == nil || !update.CurrentPeriodEnd.Equal(want) {
		t.Errorf("Expected top-level period end %v, got %v", want, update.CurrentPeriodEnd)
	}
}

func TestResolveSubscription_LegacyTopLevelPeriodEnd(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, &billing.UserRecord{UserID: testUserID})
	env.client.addCustomer(testCustomerID, testUserID)

	obj := map[string]interface{}{
		"id":                 testSubscriptionID,
		"object":             "subscription",
		"customer":           testCustomerID,
		"status":             "active",
		"current_period_end": testPeriodEnd,
	}
	assertReceived(t, env.deliver(t, stripe.EventTypeCustomerSubscriptionUpdated, obj))

	rec := env.user(t, testUserID)
	if rec.CurrentPeriodEnd == nil || rec.CurrentPeriodEnd.Unix() != testPeriodEnd {
		t.Errorf("Expected currentPeriodEnd %d, got %v", testPeriodEnd, rec.CurrentPeriodEnd)
	}
}

func TestItemsPeriodEnd_UsesLatestItem(t *testing.T) {
	sub := &stripe.Subscription{
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{CurrentPeriodEnd: 100},
				nil,
				{CurrentPeriodEnd: 300},
				{CurrentPeriodEnd: 200},
			},
		},
	}
	if got := itemsPeriodEnd(sub); got != 300 {
		t.Errorf("Expected 300, got %d", got)
	}
	if got := itemsPeriodEnd(&stripe.Subscription{}); got != 0 {
		t.Errorf("Expected 0 without items, got %d", got)
	}
}

func TestCustomerFor_EmbeddedCustomerSkipsAPI(t *testing.T) {
	env := newTestEnv(t)

	embedded := &stripe.Customer{ID: testCustomerID, Metadata: map[string]string{"user_id": testUserID}}
	cust, err := env.provider.customerFor(context.Background(), embedded)
	if err != nil {
		t.Fatalf("customerFor failed: %v", err)
	}
	if cust != embedded {
		t.Error("Expected the embedded customer to be used")
	}
	if env.client.calls != 0 {
		t.Errorf("Expected no API calls, got %d", env.client.calls)
	}

	if _, err := env.provider.customerFor(context.Background(), nil); !errors.Is(err, billing.ErrUnresolvableCustomer) {
		t.Errorf("Expected ErrUnresolvableCustomer, got %v", err)
	}
}

func TestUserIDFromCustomer(t *testing.T) {
	env := newTestEnv(t)
	p := env.provider

	tests := []struct {
		name string
		cust *stripe.Customer
		want string
	}{
		{"nil", nil, ""},
		{"no metadata", &stripe.Customer{ID: testCustomerID}, ""},
		{"deleted", &stripe.Customer{ID: testCustomerID, Deleted: true, Metadata: map[string]string{"user_id": testUserID}}, ""},
		{"linked", &stripe.Customer{ID: testCustomerID, Metadata: map[string]string{"user_id": testUserID}}, testUserID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.userIDFromCustomer(tt.cust); got != tt.want {
				t.Errorf("userIDFromCustomer() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestApplyEvent_MissingData(t *testing.T) {
	env := newTestEnv(t)
	status, err := env.provider.applyEvent(context.Background(), billing.EventSubscriptionUpdated, &stripe.Event{ID: "evt_1"})
	if !errors.Is(err, billing.ErrInvalidWebhookPayload) {
		t.Errorf("Expected ErrInvalidWebhookPayload, got %v", err)
	}
	if status != statusError {
		t.Errorf("Expected error status, got %s", status)
	}
}
