package fiber

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/subsync/pkg/api"
	"github.com/mihaimyh/subsync/pkg/billing"
	"github.com/mihaimyh/subsync/storage/memory"
)

func setupStore(t *testing.T) *memory.Storage {
	t.Helper()
	store := memory.New()
	require.NoError(t, store.Put(&billing.UserRecord{UserID: "active-user", SubscriptionStatus: billing.StatusActive}))
	require.NoError(t, store.Put(&billing.UserRecord{UserID: "past-due-user", SubscriptionStatus: billing.StatusPastDue}))
	return store
}

func TestMiddleware(t *testing.T) {
	app := fiber.New()
	app.Get("/reports/:user", Middleware(Config{
		Store:     setupStore(t),
		GetUserID: FromParam("user"),
	}), func(c *fiber.Ctx) error {
		if Record(c) == nil {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.SendString(string(Record(c).SubscriptionStatus))
	})

	tests := []struct {
		path     string
		expected int
	}{
		{"/reports/active-user", http.StatusOK},
		{"/reports/past-due-user", http.StatusPaymentRequired},
		{"/reports/nobody", http.StatusPaymentRequired},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, tt.path, http.NoBody))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.expected, resp.StatusCode)
		})
	}
}

func TestMiddleware_AllowOverride(t *testing.T) {
	app := fiber.New()
	app.Get("/billing", Middleware(Config{
		Store:     setupStore(t),
		GetUserID: FromHeader("X-User-ID"),
		Allow: func(s billing.SubscriptionStatus) bool {
			return s.Entitled() || s == billing.StatusPastDue
		},
	}), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/billing", http.NoBody)
	req.Header.Set("X-User-ID", "past-due-user")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

type brokenStore struct{ billing.Store }

func (brokenStore) GetUser(context.Context, string) (*billing.UserRecord, error) {
	return nil, errors.New("down")
}

func TestMiddleware_Errors(t *testing.T) {
	app := fiber.New()
	app.Get("/", Middleware(Config{
		Store:     brokenStore{},
		GetUserID: FromHeader("X-User-ID"),
	}), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("X-User-ID", "active-user")
	resp, err = app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

type stubProvider struct{ called bool }

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) WebhookHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		p.called = true
		w.WriteHeader(http.StatusOK)
	})
}

func (p *stubProvider) SyncUser(context.Context, string) (billing.SubscriptionStatus, error) {
	return billing.StatusActive, nil
}

func TestRouteHelpers(t *testing.T) {
	provider := &stubProvider{}
	h, err := api.NewHandler(api.Config{Store: setupStore(t), GetUserID: api.FromHeader("X-User-ID"), Syncer: provider})
	require.NoError(t, err)

	app := fiber.New()
	app.Post("/webhooks/stripe", WebhookHandler(provider))
	app.Get("/api/subscription", StatusHandler(h))

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/webhooks/stripe", http.NoBody))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, provider.called)

	req := httptest.NewRequest(http.MethodGet, "/api/subscription", http.NoBody)
	req.Header.Set("X-User-ID", "active-user")
	resp, err = app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"user_id":"active-user"`)
}
