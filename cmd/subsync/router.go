package main

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mihaimyh/subsync/pkg/api"
	"github.com/mihaimyh/subsync/pkg/billing"
)

type routerDeps struct {
	Store billing.Store

	// Provider is nil when Stripe is not configured.
	Provider billing.Provider

	// AdminToken guards /api/subscriptions. Empty leaves those routes unmounted.
	AdminToken string

	Logger       billing.Logger
	Registry     *prometheus.Registry
	ServeMetrics bool
}

func newRouter(deps routerDeps) (http.Handler, error) {
	apiCfg := api.Config{
		Store:     deps.Store,
		GetUserID: api.FromURLParam("userID"),
		Logger:    deps.Logger,
	}
	if deps.Provider != nil {
		apiCfg.Syncer = deps.Provider
	}
	status, err := api.NewHandler(apiCfg)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if deps.Provider != nil {
		r.Method(http.MethodPost, "/webhooks/stripe", deps.Provider.WebhookHandler())
	} else {
		r.Post("/webhooks/stripe", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "webhook not configured", http.StatusServiceUnavailable)
		})
	}

	if deps.AdminToken != "" {
		r.Route("/api/subscriptions", func(r chi.Router) {
			r.Use(requireBearer(deps.AdminToken))
			r.Get("/", status.GetStatus)
			r.Get("/{userID}", status.GetStatus)
			r.Post("/{userID}/sync", status.Sync)
		})
	}

	if deps.ServeMetrics && deps.Registry != nil {
		r.Handle("/metrics", metricsHandler(deps.Registry))
	}

	return r, nil
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// requireBearer rejects requests whose Authorization header does not carry token.
func requireBearer(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), want) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="subsync"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
