package billing

import "context"

// Store is the user record store the webhook flow writes to.
// Implementations live under storage/.
type Store interface {
	// UpdateSubscription merges update into the record of userID.
	// Returns ErrUserNotFound if the user does not exist.
	UpdateSubscription(ctx context.Context, userID string, update *SubscriptionUpdate) error

	// GetUser returns the subscription fields of a user.
	// Returns ErrUserNotFound if the user does not exist.
	GetUser(ctx context.Context, userID string) (*UserRecord, error)

	// FindUserByCustomerID returns the internal user id linked to an external customer id.
	// Returns ErrCustomerNotFound if no user is linked.
	FindUserByCustomerID(ctx context.Context, customerID string) (string, error)
}
