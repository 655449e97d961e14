// Package echo provides Echo middleware that gates routes on subscription status,
// and helpers to mount the webhook and status handlers.
package echo

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mihaimyh/subsync/pkg/api"
	"github.com/mihaimyh/subsync/pkg/billing"
)

// RecordKey is the Echo context key holding the user's *billing.UserRecord
const RecordKey = "subsync.record"

// UserIDExtractor extracts the user ID from an Echo context
// Return empty string if user is not authenticated
type UserIDExtractor func(c echo.Context) string

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
	OnInactive func(c echo.Context, rec *billing.UserRecord) error

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c echo.Context) error

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c echo.Context, err error) error
}

// Middleware creates an Echo middleware that requires an allowed subscription status
func Middleware(cfg Config) echo.MiddlewareFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Store == nil {
		panic("subsync/echo: Config.Store is required")
	}
	if cfg.GetUserID == nil {
		panic("subsync/echo: Config.GetUserID is required")
	}

	// Set defaults
	if cfg.Allow == nil {
		cfg.Allow = billing.SubscriptionStatus.Entitled
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := cfg.GetUserID(c)
			if userID == "" {
				if cfg.OnUnauthorized != nil {
					return cfg.OnUnauthorized(c)
				}
				return defaultUnauthorized(c)
			}

			rec, err := cfg.Store.GetUser(c.Request().Context(), userID)
			if err != nil && !errors.Is(err, billing.ErrUserNotFound) {
				if cfg.OnError != nil {
					return cfg.OnError(c, err)
				}
				return defaultError(c)
			}

			if rec == nil || !cfg.Allow(rec.SubscriptionStatus) {
				if cfg.OnInactive != nil {
					return cfg.OnInactive(c, rec)
				}
				return defaultInactive(c, rec)
			}

			c.Set(RecordKey, rec)
			return next(c)
		}
	}
}

// WebhookHandler adapts a provider's webhook handler to Echo
func WebhookHandler(p billing.Provider) echo.HandlerFunc {
	return echo.WrapHandler(p.WebhookHandler())
}

// StatusHandler serves api.Handler.GetStatus
func StatusHandler(h *api.Handler) echo.HandlerFunc {
	return echo.WrapHandler(http.HandlerFunc(h.GetStatus))
}

// SyncHandler serves api.Handler.Sync
func SyncHandler(h *api.Handler) echo.HandlerFunc {
	return echo.WrapHandler(http.HandlerFunc(h.Sync))
}

// Default error handlers

func defaultUnauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
}

func defaultInactive(c echo.Context, rec *billing.UserRecord) error {
	status := ""
	if rec != nil {
		status = string(rec.SubscriptionStatus)
	}
	return c.JSON(http.StatusPaymentRequired, map[string]string{
		"error":  "Subscription required",
		"status": status,
	})
}

func defaultError(c echo.Context) error {
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
}

// Convenience extractors for User ID

// FromContext returns a UserIDExtractor that gets user ID from Echo context values
func FromContext(key string) UserIDExtractor {
	return func(c echo.Context) string {
		if str, ok := c.Get(key).(string); ok {
			return str
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c echo.Context) string {
		return c.Request().Header.Get(headerName)
	}
}

// FromParam returns a UserIDExtractor that gets user ID from a route parameter
func FromParam(paramName string) UserIDExtractor {
	return func(c echo.Context) string {
		return c.Param(paramName)
	}
}

// Record returns the record stored by Middleware, or nil
func Record(c echo.Context) *billing.UserRecord {
	rec, _ := c.Get(RecordKey).(*billing.UserRecord)
	return rec
}
