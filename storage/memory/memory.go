// Package memory provides an in-memory implementation of the billing.Store interface.
// This implementation is primarily intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/mihaimyh/subsync/pkg/billing"
)

// Storage implements billing.Store using in-memory maps
type Storage struct {
	mu        sync.RWMutex
	users     map[string]*billing.UserRecord
	customers map[string]string // external customer id -> user id
}

// New creates a new in-memory storage adapter
func New() *Storage {
	return &Storage{
		users:     make(map[string]*billing.UserRecord),
		customers: make(map[string]string),
	}
}

// Put creates or replaces a user record. Webhooks only update existing users,
// so callers seed users with Put first.
func (s *Storage) Put(rec *billing.UserRecord) error {
	if rec == nil || rec.UserID == "" {
		return fmt.Errorf("invalid user record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.users[rec.UserID]; ok && old.ExternalCustomerID != "" {
		delete(s.customers, old.ExternalCustomerID)
	}
	// Store a copy to prevent external mutations
	s.users[rec.UserID] = rec.Clone()
	if rec.ExternalCustomerID != "" {
		s.customers[rec.ExternalCustomerID] = rec.UserID
	}
	return nil
}

// Delete removes a user record.
func (s *Storage) Delete(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.users[userID]; ok {
		delete(s.customers, rec.ExternalCustomerID)
		delete(s.users, userID)
	}
}

// UpdateSubscription implements billing.Store
func (s *Storage) UpdateSubscription(_ context.Context, userID string, update *billing.SubscriptionUpdate) error {
	if update == nil {
		return fmt.Errorf("nil subscription update")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[userID]
	if !ok {
		return billing.ErrUserNotFound
	}

	oldCustomer := rec.ExternalCustomerID
	update.ApplyTo(rec)
	if rec.ExternalCustomerID != oldCustomer {
		delete(s.customers, oldCustomer)
		if rec.ExternalCustomerID != "" {
			s.customers[rec.ExternalCustomerID] = userID
		}
	}
	return nil
}

// GetUser implements billing.Store
func (s *Storage) GetUser(_ context.Context, userID string) (*billing.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.users[userID]
	if !ok {
		return nil, billing.ErrUserNotFound
	}

	// Return a copy
	return rec.Clone(), nil
}

// FindUserByCustomerID implements billing.Store
func (s *Storage) FindUserByCustomerID(_ context.Context, customerID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.customers[customerID]
	if !ok || customerID == "" {
		return "", billing.ErrCustomerNotFound
	}
	return userID, nil
}
