// Command subsync receives Stripe webhooks and keeps user subscription state
// in sync.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"github.com/mihaimyh/subsync/pkg/billing"
	zerologadapter "github.com/mihaimyh/subsync/pkg/billing/logger/zerolog"
	prommetrics "github.com/mihaimyh/subsync/pkg/billing/metrics/prometheus"
	"github.com/mihaimyh/subsync/pkg/billing/stripe"
	"github.com/mihaimyh/subsync/pkg/notify/postmark"
	firestoreStorage "github.com/mihaimyh/subsync/storage/firestore"
	"github.com/mihaimyh/subsync/storage/memory"
	postgresStorage "github.com/mihaimyh/subsync/storage/postgres"
	redisStorage "github.com/mihaimyh/subsync/storage/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("subsync stopped")
	}
}

func newLogger(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.development() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Str("service", "subsync").Logger()
}

func run(cfg Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	billingLogger := zerologadapter.NewLogger(&logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := prommetrics.NewMetrics(reg, "subsync")

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Info().Str("backend", cfg.StoreBackend).Msg("user store ready")

	var onApplied billing.AppliedCallback
	if cfg.PostmarkServerToken != "" {
		notifier, err := postmark.New(postmark.Config{
			ServerToken:           cfg.PostmarkServerToken,
			AccountToken:          cfg.PostmarkAccountToken,
			From:                  cfg.BillingFromEmail,
			PaymentFailedTemplate: cfg.PaymentFailedTemplate,
			Logger:                billingLogger,
		})
		if err != nil {
			return fmt.Errorf("postmark notifier: %w", err)
		}
		onApplied = notifier.OnApplied
	}

	var provider billing.Provider
	if cfg.webhookEnabled() {
		p, err := stripe.NewProvider(stripe.Config{
			Config: billing.Config{
				Store:     store,
				Metrics:   metrics,
				Logger:    billingLogger,
				OnApplied: onApplied,
			},
			StripeAPIKey:        cfg.StripeSecretKey,
			StripeWebhookSecret: cfg.StripeWebhookSecret,
			RateLimit:           cfg.WebhookRateLimit,
		})
		if err != nil {
			return fmt.Errorf("stripe provider: %w", err)
		}
		provider = p
	} else {
		logger.Warn().Msg("STRIPE_SECRET_KEY or STRIPE_WEBHOOK_SECRET missing; webhook endpoint disabled")
	}

	if cfg.AdminToken == "" {
		logger.Warn().Msg("ADMIN_TOKEN missing; subscription API disabled")
	}

	router, err := newRouter(routerDeps{
		Store:      store,
		Provider:   provider,
		AdminToken: cfg.AdminToken,
		Logger:     billingLogger,
		Registry:   reg,
		// /metrics moves to its own listener when METRICS_ADDR is set
		ServeMetrics: cfg.MetricsAddr == "",
	})
	if err != nil {
		return err
	}

	servers := []*http.Server{newServer(cfg.HTTPAddr, router)}
	if cfg.MetricsAddr != "" {
		servers = append(servers, newServer(cfg.MetricsAddr, metricsHandler(reg)))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			logger.Info().Str("addr", srv.Addr).Msg("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

func newServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// openStore connects the configured backend. The returned func releases it.
func openStore(ctx context.Context, cfg Config) (billing.Store, func(), error) {
	switch cfg.StoreBackend {
	case backendFirestore:
		var opts []option.ClientOption
		if cfg.FirestoreCredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.FirestoreCredentialsFile))
		}
		client, err := firestore.NewClient(ctx, cfg.FirestoreProjectID, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("firestore client: %w", err)
		}
		store, err := firestoreStorage.New(client, firestoreStorage.Config{
			UsersCollection: cfg.FirestoreUsersCollection,
		})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, func() { _ = client.Close() }, nil

	case backendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		store, err := redisStorage.New(client, redisStorage.DefaultConfig())
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, func() { _ = client.Close() }, nil

	case backendPostgres:
		pgCfg := postgresStorage.DefaultConfig()
		pgCfg.ConnectionString = cfg.PostgresDSN
		store, err := postgresStorage.New(ctx, pgCfg)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("postgres migrate: %w", err)
		}
		return store, store.Close, nil

	default:
		return memory.New(), func() {}, nil
	}
}
