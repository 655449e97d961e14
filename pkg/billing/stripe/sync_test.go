package stripe

import (
	"context"
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/subsync/pkg/billing"
)

func TestSyncUser(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, &billing.UserRecord{
		UserID:                 testUserID,
		ExternalCustomerID:     testCustomerID,
		ExternalSubscriptionID: testSubscriptionID,
		SubscriptionStatus:     billing.StatusActive,
		SubscriptionPlan:       "professional",
	})
	env.client.subscriptions[testSubscriptionID] = apiSubscription(
		testSubscriptionID, testCustomerID, stripe.SubscriptionStatusUnpaid, 0, testPeriodEnd)

	status, err := env.provider.SyncUser(context.Background(), testUserID)
	if err != nil {
		t.Fatalf("SyncUser failed: %v", err)
	}
	if status != billing.StatusUnpaid {
		t.Errorf("Expected unpaid, got %s", status)
	}

	rec := env.user(t, testUserID)
	if rec.SubscriptionStatus != billing.StatusUnpaid {
		t.Errorf("Expected stored status unpaid, got %s", rec.SubscriptionStatus)
	}
	if rec.SubscriptionPlan != "professional" {
		t.Errorf("Plan changed: %s", rec.SubscriptionPlan)
	}
	if rec.CurrentPeriodEnd == nil || rec.CurrentPeriodEnd.Unix() != testPeriodEnd {
		t.Errorf("Expected currentPeriodEnd %d, got %v", testPeriodEnd, rec.CurrentPeriodEnd)
	}
}

func TestSyncUser_Errors(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		seed    *billing.UserRecord
		wantErr error
	}{
		{
			name:    "unknown user",
			userID:  "nobody",
			wantErr: billing.ErrUserNotFound,
		},
		{
			name:    "not linked",
			userID:  testUserID,
			seed:    &billing.UserRecord{UserID: testUserID},
			wantErr: billing.ErrSubscriptionNotLinked,
		},
		{
			name:    "subscription missing upstream",
			userID:  testUserID,
			seed:    &billing.UserRecord{UserID: testUserID, ExternalSubscriptionID: "sub_gone"},
			wantErr: billing.ErrProviderAPIError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.seed != nil {
				env.seedUser(t, tt.seed)
			}

			_, err := env.provider.SyncUser(context.Background(), tt.userID)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
			if env.store.writes() != 0 {
				t.Errorf("Expected no writes, got %d", env.store.writes())
			}
		})
	}
}
