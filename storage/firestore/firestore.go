// Package firestore provides a Firestore implementation of the billing.Store interface.
// User records live in the CRM's users collection, one document per internal user id.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mihaimyh/subsync/pkg/billing"
)

// Document field names shared with the CRM application.
const (
	fieldCustomerID     = "stripeCustomerId"
	fieldSubscriptionID = "stripeSubscriptionId"
	fieldStatus         = "subscriptionStatus"
	fieldPlan           = "subscriptionPlan"
	fieldTrialEnd       = "trialEnd"
	fieldPeriodEnd      = "currentPeriodEnd"
	fieldUpdatedAt      = "updatedAt"
)

// Storage implements billing.Store using Google Cloud Firestore
type Storage struct {
	client          *firestore.Client
	usersCollection string
}

// Config holds Firestore storage configuration
type Config struct {
	// UsersCollection is the Firestore collection holding user documents
	// Default: "users"
	UsersCollection string
}

// New creates a new Firestore storage adapter
func New(client *firestore.Client, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	// Set defaults
	if config.UsersCollection == "" {
		config.UsersCollection = "users"
	}

	return &Storage{
		client:          client,
		usersCollection: config.UsersCollection,
	}, nil
}

// UpdateSubscription implements billing.Store.
// It uses DocumentRef.Update, which fails instead of creating a missing document.
func (s *Storage) UpdateSubscription(ctx context.Context, userID string, update *billing.SubscriptionUpdate) error {
	if userID == "" || update == nil {
		return fmt.Errorf("invalid subscription update")
	}

	_, err := s.userDoc(userID).Update(ctx, updatesFor(update))
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return billing.ErrUserNotFound
		}
		return fmt.Errorf("failed to update user subscription: %w", err)
	}
	return nil
}

// GetUser implements billing.Store
func (s *Storage) GetUser(ctx context.Context, userID string) (*billing.UserRecord, error) {
	if userID == "" {
		return nil, billing.ErrUserNotFound
	}

	snap, err := s.userDoc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, billing.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !snap.Exists() {
		return nil, billing.ErrUserNotFound
	}

	return recordFromData(userID, snap.Data()), nil
}

// FindUserByCustomerID implements billing.Store
func (s *Storage) FindUserByCustomerID(ctx context.Context, customerID string) (string, error) {
	if customerID == "" {
		return "", billing.ErrCustomerNotFound
	}

	iter := s.client.Collection(s.usersCollection).
		Where(fieldCustomerID, "==", customerID).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return "", billing.ErrCustomerNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to query users by customer: %w", err)
	}
	return snap.Ref.ID, nil
}

func (s *Storage) userDoc(userID string) *firestore.DocumentRef {
	return s.client.Collection(s.usersCollection).Doc(userID)
}

// updatesFor converts a partial update into field paths. Cleared timestamps
// are written as null so readers see the field as absent.
func updatesFor(u *billing.SubscriptionUpdate) []firestore.Update {
	updates := make([]firestore.Update, 0, 7)
	if u.ExternalCustomerID != nil {
		updates = append(updates, firestore.Update{Path: fieldCustomerID, Value: *u.ExternalCustomerID})
	}
	if u.ExternalSubscriptionID != nil {
		updates = append(updates, firestore.Update{Path: fieldSubscriptionID, Value: *u.ExternalSubscriptionID})
	}
	if u.Status != nil {
		updates = append(updates, firestore.Update{Path: fieldStatus, Value: string(*u.Status)})
	}
	if u.Plan != nil {
		updates = append(updates, firestore.Update{Path: fieldPlan, Value: *u.Plan})
	}
	if u.SetPeriod {
		updates = append(updates,
			firestore.Update{Path: fieldTrialEnd, Value: timeOrNil(u.TrialEnd)},
			firestore.Update{Path: fieldPeriodEnd, Value: timeOrNil(u.CurrentPeriodEnd)},
		)
	}
	return append(updates, firestore.Update{Path: fieldUpdatedAt, Value: u.UpdatedAt})
}

func recordFromData(userID string, data map[string]interface{}) *billing.UserRecord {
	return &billing.UserRecord{
		UserID:                 userID,
		ExternalCustomerID:     getString(data, fieldCustomerID),
		ExternalSubscriptionID: getString(data, fieldSubscriptionID),
		SubscriptionStatus:     billing.SubscriptionStatus(getString(data, fieldStatus)),
		SubscriptionPlan:       getString(data, fieldPlan),
		TrialEnd:               getTimePtr(data, fieldTrialEnd),
		CurrentPeriodEnd:       getTimePtr(data, fieldPeriodEnd),
		UpdatedAt:              getTime(data, fieldUpdatedAt),
	}
}

func timeOrNil(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

// Helper functions for type conversion from Firestore data

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func getTime(data map[string]interface{}, key string) time.Time {
	if v, ok := data[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}

func getTimePtr(data map[string]interface{}, key string) *time.Time {
	if v, ok := data[key].(time.Time); ok && !v.IsZero() {
		return &v
	}
	return nil
}
