package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mihaimyh/subsync/pkg/billing"
)

// Syncer reconciles one user's subscription with the billing provider.
// billing.Provider implementations satisfy it.
type Syncer interface {
	SyncUser(ctx context.Context, userID string) (billing.SubscriptionStatus, error)
}

// Config holds configuration for the subscription status handler
type Config struct {
	// Store is the user record store (required)
	Store billing.Store

	// GetUserID extracts user ID from HTTP request (required)
	GetUserID func(*http.Request) string

	// Syncer enables the Sync endpoint. If nil, Sync responds 501.
	Syncer Syncer

	// OnError handles errors (not found, internal, etc.)
	// If nil, uses default error handling
	OnError func(http.ResponseWriter, *http.Request, error)

	// Logger is optional. If nil, nothing is logged.
	Logger billing.Logger
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Store == nil {
		return fmt.Errorf("store is required")
	}
	if c.GetUserID == nil {
		return fmt.Errorf("getUserID is required")
	}
	return nil
}

// NewHandler creates a new subscription status handler with the given configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Logger == nil {
		config.Logger = &billing.NoopLogger{}
	}
	return &Handler{
		config: config,
	}, nil
}

// Helper functions for common UserID extraction patterns

// FromHeader returns a GetUserID function that extracts user ID from a header
func FromHeader(headerName string) func(*http.Request) string {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// FromContext returns a GetUserID function that extracts user ID from request context
func FromContext(key interface{}) func(*http.Request) string {
	return func(r *http.Request) string {
		if userID, ok := r.Context().Value(key).(string); ok {
			return userID
		}
		return ""
	}
}

// FromURLParam returns a GetUserID function that reads a chi route parameter,
// falling back to the net/http path value of the same name.
func FromURLParam(name string) func(*http.Request) string {
	return func(r *http.Request) string {
		if v := chi.URLParam(r, name); v != "" {
			return v
		}
		return r.PathValue(name)
	}
}
