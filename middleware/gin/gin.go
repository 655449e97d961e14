// Package gin provides Gin middleware that gates routes on subscription status,
// and helpers to mount the webhook and status handlers.
package gin

import (
	"errors"
	"net/http"

	gongin "github.com/gin-gonic/gin"

	"github.com/mihaimyh/subsync/pkg/api"
	"github.com/mihaimyh/subsync/pkg/billing"
)

// RecordKey is the Gin context key holding the user's *billing.UserRecord
const RecordKey = "subsync.record"

// UserIDExtractor extracts the user ID from a Gin context
// Return empty string if user is not authenticated
type UserIDExtractor func(c *gongin.Context) string

// Config holds middleware configuration
type Config struct {
	// Store is the user record store (required)
	Store billing.Store

	// GetUserID extracts user ID from context (required)
	GetUserID UserIDExtractor

	// Allow decides whether a status grants access.
	// Default: SubscriptionStatus.Entitled (active or trialing)
	Allow func(billing.SubscriptionStatus) bool

	// OnInactive is called when the user has no allowed subscription.
	// rec is nil when the user has no record.
	// If nil, returns 402 Payment Required JSON
	OnInactive func(c *gongin.Context, rec *billing.UserRecord)

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *gongin.Context)

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c *gongin.Context, err error)
}

// Middleware creates a Gin middleware that requires an allowed subscription status
func Middleware(cfg Config) gongin.HandlerFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Store == nil {
		panic("subsync/gin: Config.Store is required")
	}
	if cfg.GetUserID == nil {
		panic("subsync/gin: Config.GetUserID is required")
	}

	// Set defaults
	if cfg.Allow == nil {
		cfg.Allow = billing.SubscriptionStatus.Entitled
	}

	return func(c *gongin.Context) {
		userID := cfg.GetUserID(c)
		if userID == "" {
			if cfg.OnUnauthorized != nil {
				cfg.OnUnauthorized(c)
			} else {
				defaultUnauthorized(c)
			}
			c.Abort()
			return
		}

		rec, err := cfg.Store.GetUser(c.Request.Context(), userID)
		if err != nil && !errors.Is(err, billing.ErrUserNotFound) {
			if cfg.OnError != nil {
				cfg.OnError(c, err)
			} else {
				defaultError(c)
			}
			c.Abort()
			return
		}

		if rec == nil || !cfg.Allow(rec.SubscriptionStatus) {
			if cfg.OnInactive != nil {
				cfg.OnInactive(c, rec)
			} else {
				defaultInactive(c, rec)
			}
			c.Abort()
			return
		}

		c.Set(RecordKey, rec)
		c.Next()
	}
}

// WebhookHandler adapts a provider's webhook handler to Gin
func WebhookHandler(p billing.Provider) gongin.HandlerFunc {
	return gongin.WrapH(p.WebhookHandler())
}

// StatusHandler serves api.Handler.GetStatus. Gin route params are not
// visible to net/http, so configure the handler with api.FromHeader or
// api.FromContext rather than api.FromURLParam.
func StatusHandler(h *api.Handler) gongin.HandlerFunc {
	return gongin.WrapF(h.GetStatus)
}

// SyncHandler serves api.Handler.Sync
func SyncHandler(h *api.Handler) gongin.HandlerFunc {
	return gongin.WrapF(h.Sync)
}

// Default error handlers

func defaultUnauthorized(c *gongin.Context) {
	c.JSON(http.StatusUnauthorized, gongin.H{"error": "Unauthorized"})
}

func defaultInactive(c *gongin.Context, rec *billing.UserRecord) {
	status := ""
	if rec != nil {
		status = string(rec.SubscriptionStatus)
	}
	c.JSON(http.StatusPaymentRequired, gongin.H{
		"error":  "Subscription required",
		"status": status,
	})
}

func defaultError(c *gongin.Context) {
	c.JSON(http.StatusInternalServerError, gongin.H{"error": "Internal Server Error"})
}

// Convenience extractors for User ID

// FromContext returns a UserIDExtractor that gets user ID from Gin context values
// set by auth middleware via c.Set("UserID", "...").
func FromContext(key string) UserIDExtractor {
	return func(c *gongin.Context) string {
		if val, exists := c.Get(key); exists {
			if str, ok := val.(string); ok {
				return str
			}
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.GetHeader(headerName)
	}
}

// FromParam returns a UserIDExtractor that gets user ID from a route parameter
func FromParam(paramName string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.Param(paramName)
	}
}

// Record returns the record stored by Middleware, or nil
func Record(c *gongin.Context) *billing.UserRecord {
	if val, exists := c.Get(RecordKey); exists {
		if rec, ok := val.(*billing.UserRecord); ok {
			return rec
		}
	}
	return nil
}
