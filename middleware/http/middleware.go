// Package http provides HTTP middleware that gates handlers on subscription status
package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/mihaimyh/subsync/pkg/billing"
)

// UserIDExtractor extracts the user ID from an HTTP request
// Return empty string if user is not authenticated
type UserIDExtractor func(r *http.Request) string

// Config holds middleware configuration
type Config struct {
	// Store is the user record store (required)
	Store billing.Store

	// GetUserID extracts user ID from request (required)
	GetUserID UserIDExtractor

	// Allow decides whether a status grants access.
	// Default: SubscriptionStatus.Entitled (active or trialing)
	Allow func(billing.SubscriptionStatus) bool

	// OnInactive is called when the user has no allowed subscription.
	// rec is nil when the user has no record.
	// If nil, returns 402 Payment Required
	OnInactive func(w http.ResponseWriter, r *http.Request, rec *billing.UserRecord)

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(w http.ResponseWriter, r *http.Request)

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// Middleware creates an HTTP middleware that requires an allowed subscription status.
// The user's record is available to the next handler through RecordFromContext.
func Middleware(config Config) func(http.Handler) http.Handler {
	if config.Store == nil {
		panic("subsync/http: Config.Store is required")
	}
	if config.GetUserID == nil {
		panic("subsync/http: Config.GetUserID is required")
	}

	// Set defaults
	if config.Allow == nil {
		config.Allow = billing.SubscriptionStatus.Entitled
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Extract user ID
			userID := config.GetUserID(r)
			if userID == "" {
				if config.OnUnauthorized != nil {
					config.OnUnauthorized(w, r)
				} else {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
				}
				return
			}

			rec, err := config.Store.GetUser(r.Context(), userID)
			if err != nil && !errors.Is(err, billing.ErrUserNotFound) {
				if config.OnError != nil {
					config.OnError(w, r, err)
				} else {
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
				return
			}

			if rec == nil || !config.Allow(rec.SubscriptionStatus) {
				if config.OnInactive != nil {
					config.OnInactive(w, r, rec)
				} else {
					http.Error(w, "Subscription required", http.StatusPaymentRequired)
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(WithRecord(r.Context(), rec)))
		})
	}
}

// HandlerFunc creates an HTTP middleware that requires an allowed subscription (HandlerFunc version)
func HandlerFunc(config Config) func(http.HandlerFunc) http.HandlerFunc {
	middleware := Middleware(config)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			middleware(next).ServeHTTP(w, r)
		}
	}
}

// ContextKey is a type for context keys
type ContextKey string

const (
	// UserIDKey is the context key for user ID
	UserIDKey ContextKey = "subsync:userID"

	recordKey ContextKey = "subsync:record"
)

// FromContext returns an UserIDExtractor that gets user ID from request context
func FromContext(key ContextKey) UserIDExtractor {
	return func(r *http.Request) string {
		if userID, ok := r.Context().Value(key).(string); ok {
			return userID
		}
		return ""
	}
}

// FromHeader returns an UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// WithUserID adds user ID to request context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithRecord adds the user's subscription record to ctx
func WithRecord(ctx context.Context, rec *billing.UserRecord) context.Context {
	return context.WithValue(ctx, recordKey, rec)
}

// RecordFromContext returns the record stored by Middleware, or nil
func RecordFromContext(ctx context.Context) *billing.UserRecord {
	rec, _ := ctx.Value(recordKey).(*billing.UserRecord)
	return rec
}
