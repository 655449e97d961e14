package billing

import "errors"

var (
	// ErrProviderNotConfigured is returned when a provider is not properly configured
	ErrProviderNotConfigured = errors.New("billing provider not configured")

	// ErrSignatureInvalid is returned when webhook signature validation fails
	ErrSignatureInvalid = errors.New("invalid webhook signature")

	// ErrInvalidWebhookPayload is returned when webhook payload cannot be parsed
	ErrInvalidWebhookPayload = errors.New("invalid webhook payload")

	// ErrUnresolvableCustomer is returned when the customer behind an event cannot
	// be fetched or carries no internal user id.
	ErrUnresolvableCustomer = errors.New("customer cannot be resolved to a user")

	// ErrStoreWrite is returned when the user record update fails
	ErrStoreWrite = errors.New("user record store write failed")

	// ErrUserNotFound is returned when a user record does not exist in the store
	ErrUserNotFound = errors.New("user not found")

	// ErrSubscriptionNotLinked is returned when a user record has no subscription id to sync from
	ErrSubscriptionNotLinked = errors.New("user has no linked subscription")

	// ErrCustomerNotFound is returned when no user is linked to a customer id
	ErrCustomerNotFound = errors.New("customer not linked to any user")
)

// ErrProviderAPIError is returned when the provider's API returns an error
var ErrProviderAPIError = errors.New("billing provider API error")
