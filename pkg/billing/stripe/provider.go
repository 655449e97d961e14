package stripe

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/mihaimyh/subsync/pkg/billing"
	"github.com/mihaimyh/subsync/pkg/billing/internal"
)

const (
	providerName             = "stripe"
	defaultHTTPTimeout       = 10 * time.Second
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100
	defaultUserIDMetadataKey = "user_id"
	defaultPlan              = "professional"
	maxWebhookBodySize       = 256 * 1024
)

// Config extends billing.Config with Stripe-specific options
type Config struct {
	billing.Config // Base config (Store, Metrics, Logger, etc.)

	// Stripe-specific. Fall back to Config.APIKey / Config.WebhookSecret when empty.
	StripeAPIKey        string
	StripeWebhookSecret string

	// UserIDMetadataKey is the customer metadata key holding the internal user id.
	// Default: "user_id"
	UserIDMetadataKey string

	// Plan is written to subscriptionPlan when a subscription is linked.
	// Default: "professional"
	Plan string

	// StrictAPIVersion rejects events whose api_version differs from the one
	// this SDK was built against. Off by default: webhook endpoints are often
	// pinned to an older version than the SDK.
	StrictAPIVersion bool

	// SignatureTolerance bounds the age of a signed payload.
	// Default: webhook.DefaultTolerance (5 minutes)
	SignatureTolerance time.Duration

	// RateLimit is the number of webhook requests allowed per client IP per minute.
	// 0 uses the default (100); a negative value disables rate limiting.
	RateLimit int

	// Client overrides the Stripe API client (tests, proxies).
	Client Client

	// Now overrides the clock used to stamp updatedAt.
	Now func() time.Time
}

// Provider implements the billing.Provider interface for Stripe
type Provider struct {
	config        Config
	store         billing.Store
	client        Client
	rateLimiter   *internal.RateLimiter
	webhookSecret string
	userIDKey     string
	plan          string
	tolerance     time.Duration
	metrics       billing.Metrics
	logger        billing.Logger
	onApplied     billing.AppliedCallback
	now           func() time.Time
}

// NewProvider creates a new Stripe billing provider
func NewProvider(config Config) (*Provider, error) {
	if config.Store == nil {
		return nil, billing.ErrProviderNotConfigured
	}

	metrics := config.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}

	logger := config.Logger
	if logger == nil {
		logger = &billing.NoopLogger{}
	}

	client := config.Client
	if client == nil {
		apiKey := strings.TrimSpace(config.StripeAPIKey)
		if apiKey == "" {
			apiKey = strings.TrimSpace(config.APIKey)
		}
		if apiKey == "" {
			return nil, billing.ErrProviderNotConfigured
		}

		httpClient := config.HTTPClient
		if httpClient == nil {
			httpClient = &http.Client{
				Timeout: defaultHTTPTimeout,
			}
		}
		client = newAPIClient(
			stripe.NewClient(apiKey, stripe.WithBackends(stripe.NewBackends(httpClient))),
			metrics,
		)
	}

	webhookSecret := strings.TrimSpace(config.StripeWebhookSecret)
	if webhookSecret == "" {
		webhookSecret = strings.TrimSpace(config.WebhookSecret)
	}

	userIDKey := strings.TrimSpace(config.UserIDMetadataKey)
	if userIDKey == "" {
		userIDKey = defaultUserIDMetadataKey
	}

	plan := strings.TrimSpace(config.Plan)
	if plan == "" {
		plan = defaultPlan
	}

	tolerance := config.SignatureTolerance
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}

	var limiter *internal.RateLimiter
	switch {
	case config.RateLimit == 0:
		limiter = internal.NewRateLimiter(defaultRateLimitRequests, defaultRateLimitWindow)
	case config.RateLimit > 0:
		limiter = internal.NewRateLimiter(config.RateLimit, defaultRateLimitWindow)
	}

	now := config.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Provider{
		config:        config,
		store:         config.Store,
		client:        client,
		rateLimiter:   limiter,
		webhookSecret: webhookSecret,
		userIDKey:     userIDKey,
		plan:          plan,
		tolerance:     tolerance,
		metrics:       metrics,
		logger:        logger,
		onApplied:     config.OnApplied,
		now:           now,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}

// WebhookHandler returns the HTTP handler for Stripe webhooks
func (p *Provider) WebhookHandler() http.Handler {
	handler := http.HandlerFunc(p.handleWebhook)
	if p.rateLimiter == nil {
		return handler
	}
	return p.rateLimiter.Middleware(handler)
}

// SyncUser re-reads the user's linked subscription from Stripe and stores its state.
func (p *Provider) SyncUser(ctx context.Context, userID string) (billing.SubscriptionStatus, error) {
	return p.syncUserFromAPI(ctx, userID)
}
