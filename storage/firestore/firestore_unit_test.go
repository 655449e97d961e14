package firestore

import (
	"testing"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/mihaimyh/subsync/pkg/billing"
)

func TestNew_RequiresClient(t *testing.T) {
	if _, err := New(nil, Config{}); err == nil {
		t.Error("Expected error for nil client")
	}
}

func TestUpdatesFor(t *testing.T) {
	now := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	status := billing.StatusCanceled

	t.Run("status only", func(t *testing.T) {
		updates := updatesFor(&billing.SubscriptionUpdate{Status: &status, UpdatedAt: now})
		paths := pathsOf(updates)
		if len(paths) != 2 || paths[fieldStatus] != "canceled" || paths[fieldUpdatedAt] != now {
			t.Errorf("unexpected updates: %v", paths)
		}
	})

	t.Run("period cleared", func(t *testing.T) {
		end := now.AddDate(0, 1, 0)
		updates := updatesFor(&billing.SubscriptionUpdate{
			SetPeriod:        true,
			CurrentPeriodEnd: &end,
			UpdatedAt:        now,
		})
		paths := pathsOf(updates)
		if v, ok := paths[fieldTrialEnd]; !ok || v != nil {
			t.Errorf("Expected trialEnd written as null, got %v (present=%v)", v, ok)
		}
		if paths[fieldPeriodEnd] != end {
			t.Errorf("Expected currentPeriodEnd %v, got %v", end, paths[fieldPeriodEnd])
		}
	})
}

func pathsOf(updates []firestore.Update) map[string]interface{} {
	out := make(map[string]interface{}, len(updates))
	for _, u := range updates {
		out[u.Path] = u.Value
	}
	return out
}

func TestRecordFromData(t *testing.T) {
	end := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rec := recordFromData("u1", map[string]interface{}{
		fieldCustomerID: "cus_1",
		fieldStatus:     "active",
		fieldPeriodEnd:  end,
		fieldTrialEnd:   nil,
		"displayName":   "Jane",
	})

	if rec.UserID != "u1" || rec.ExternalCustomerID != "cus_1" || rec.SubscriptionStatus != billing.StatusActive {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.TrialEnd != nil {
		t.Errorf("Expected nil trialEnd, got %v", rec.TrialEnd)
	}
	if rec.CurrentPeriodEnd == nil || !rec.CurrentPeriodEnd.Equal(end) {
		t.Errorf("Expected currentPeriodEnd %v, got %v", end, rec.CurrentPeriodEnd)
	}
}
