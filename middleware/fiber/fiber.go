// Package fiber provides Fiber middleware that gates routes on subscription status,
// and helpers to mount the webhook and status handlers.
package fiber

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/mihaimyh/subsync/pkg/api"
	"github.com/mihaimyh/subsync/pkg/billing"
)

// RecordKey is the Fiber locals key holding the user's *billing.UserRecord
const RecordKey = "subsync.record"

// UserIDExtractor extracts the user ID from a Fiber context
// Return empty string if user is not authenticated
type UserIDExtractor func(c *fiber.Ctx) string

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
	OnInactive func(c *fiber.Ctx, rec *billing.UserRecord) error

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *fiber.Ctx) error

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c *fiber.Ctx, err error) error
}

// Middleware creates a Fiber middleware that requires an allowed subscription status
func Middleware(cfg Config) fiber.Handler {
	if cfg.Store == nil {
		panic("subsync/fiber: Config.Store is required")
	}
	if cfg.GetUserID == nil {
		panic("subsync/fiber: Config.GetUserID is required")
	}
	if cfg.Allow == nil {
		cfg.Allow = billing.SubscriptionStatus.Entitled
	}

	return func(c *fiber.Ctx) error {
		userID := cfg.GetUserID(c)
		if userID == "" {
			if cfg.OnUnauthorized != nil {
				return cfg.OnUnauthorized(c)
			}
			return defaultUnauthorized(c)
		}

		rec, err := cfg.Store.GetUser(c.UserContext(), userID)
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

		c.Locals(RecordKey, rec)
		return c.Next()
	}
}

// WebhookHandler adapts a provider's webhook handler to Fiber
func WebhookHandler(p billing.Provider) fiber.Handler {
	return adaptor.HTTPHandler(p.WebhookHandler())
}

// StatusHandler serves api.Handler.GetStatus.
// Fiber route params do not reach net/http, so use api.FromHeader for the user ID.
func StatusHandler(h *api.Handler) fiber.Handler {
	return adaptor.HTTPHandlerFunc(http.HandlerFunc(h.GetStatus))
}

// SyncHandler serves api.Handler.Sync
func SyncHandler(h *api.Handler) fiber.Handler {
	return adaptor.HTTPHandlerFunc(http.HandlerFunc(h.Sync))
}

func defaultUnauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
}

func defaultInactive(c *fiber.Ctx, rec *billing.UserRecord) error {
	status := ""
	if rec != nil {
		status = string(rec.SubscriptionStatus)
	}
	return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
		"error":  "Subscription required",
		"status": status,
	})
}

func defaultError(c *fiber.Ctx) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
}

// FromLocals returns a UserIDExtractor that reads the user ID from Fiber locals
func FromLocals(key string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		if str, ok := c.Locals(key).(string); ok {
			return str
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Get(headerName)
	}
}

// FromParam returns a UserIDExtractor that gets user ID from a route parameter
func FromParam(paramName string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Params(paramName)
	}
}

// Record returns the record stored by Middleware, or nil
func Record(c *fiber.Ctx) *billing.UserRecord {
	rec, _ := c.Locals(RecordKey).(*billing.UserRecord)
	return rec
}
