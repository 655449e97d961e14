package stripe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mihaimyh/subsync/pkg/billing"
)

// syncUserFromAPI fetches the user's linked subscription from Stripe and
// writes its current state, the same fields customer.subscription.updated
// would write.
func (p *Provider) syncUserFromAPI(ctx context.Context, userID string) (billing.SubscriptionStatus, error) {
	startTime := time.Now()
	status, err := p.syncUser(ctx, userID)

	result := "success"
	switch {
	case err == nil:
	case errors.Is(err, billing.ErrUserNotFound), errors.Is(err, billing.ErrSubscriptionNotLinked):
		result = "not_found"
	default:
		result = "error"
	}
	p.metrics.RecordUserSync(providerName, result)
	p.metrics.RecordUserSyncDuration(providerName, time.Since(startTime))

	return status, err
}

func (p *Provider) syncUser(ctx context.Context, userID string) (billing.SubscriptionStatus, error) {
	if userID == "" {
		return "", billing.ErrUserNotFound
	}

	rec, err := p.store.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if rec.ExternalSubscriptionID == "" {
		return "", fmt.Errorf("%w: user %s", billing.ErrSubscriptionNotLinked, userID)
	}

	sub, err := p.client.RetrieveSubscription(ctx, rec.ExternalSubscriptionID)
	if err != nil {
		return "", fmt.Errorf("%w: retrieve subscription %s: %w", billing.ErrProviderAPIError, rec.ExternalSubscriptionID, err)
	}

	update := refreshSubscription(p, &target{subscription: sub}, p.now())
	if err := p.store.UpdateSubscription(ctx, userID, update); err != nil {
		return "", fmt.Errorf("%w: user %s: %w", billing.ErrStoreWrite, userID, err)
	}

	status := *update.Status
	p.metrics.RecordStatusChange(providerName, string(status))
	p.logger.Info("subscription synced from Stripe",
		billing.Field{Key: "user_id", Value: userID},
		billing.Field{Key: "subscription_id", Value: sub.ID},
		billing.Field{Key: "status", Value: string(status)},
	)
	return status, nil
}
