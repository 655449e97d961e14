// Package postgres provides a PostgreSQL implementation of the billing.Store interface.
// User subscription fields live in a users table keyed by the internal user id.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mihaimyh/subsync/pkg/billing"
)

// schemaTemplate creates the users table if it does not exist. The CRM may own
// a wider table; only these columns are read and written.
const schemaTemplate = `
CREATE TABLE IF NOT EXISTS %[1]s (
	id                     TEXT PRIMARY KEY,
	stripe_customer_id     TEXT,
	stripe_subscription_id TEXT,
	subscription_status    TEXT,
	subscription_plan      TEXT,
	trial_end              TIMESTAMPTZ,
	current_period_end     TIMESTAMPTZ,
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s (stripe_customer_id);
`

// Schema returns the DDL for the given table name.
func Schema(table string) string {
	if table == "" {
		table = "users"
	}
	return fmt.Sprintf(schemaTemplate,
		pgx.Identifier{table}.Sanitize(),
		pgx.Identifier{table + "_stripe_customer_id_idx"}.Sanitize(),
	)
}

// Storage implements billing.Store using PostgreSQL
type Storage struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Table is the users table name (default: "users")
	Table string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Table:           "users",
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}
	if config.Table == "" {
		config.Table = "users"
	}

	// Parse connection string
	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	// Apply pool settings
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	// Create connection pool
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Storage{
		pool:   pool,
		config: config,
	}, nil
}

// Close closes the PostgreSQL connection pool
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the configured table and its customer index.
func (s *Storage) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema(s.config.Table)); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// UpdateSubscription implements billing.Store
func (s *Storage) UpdateSubscription(ctx context.Context, userID string, update *billing.SubscriptionUpdate) error {
	if userID == "" || update == nil {
		return fmt.Errorf("invalid subscription update")
	}

	query, args := buildUpdate(s.table(), userID, update)
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return billing.ErrUserNotFound
	}
	return nil
}

// GetUser implements billing.Store
func (s *Storage) GetUser(ctx context.Context, userID string) (*billing.UserRecord, error) {
	var (
		rec                                  billing.UserRecord
		customerID, subscriptionID, st, plan *string
	)

	err := s.pool.QueryRow(ctx,
		`SELECT id, stripe_customer_id, stripe_subscription_id, subscription_status,
				subscription_plan, trial_end, current_period_end, updated_at
			FROM `+s.table()+` WHERE id = $1`,
		userID).Scan(
		&rec.UserID,
		&customerID,
		&subscriptionID,
		&st,
		&plan,
		&rec.TrialEnd,
		&rec.CurrentPeriodEnd,
		&rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, billing.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	rec.ExternalCustomerID = deref(customerID)
	rec.ExternalSubscriptionID = deref(subscriptionID)
	rec.SubscriptionStatus = billing.SubscriptionStatus(deref(st))
	rec.SubscriptionPlan = deref(plan)
	return &rec, nil
}

// FindUserByCustomerID implements billing.Store
func (s *Storage) FindUserByCustomerID(ctx context.Context, customerID string) (string, error) {
	if customerID == "" {
		return "", billing.ErrCustomerNotFound
	}

	var userID string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM `+s.table()+` WHERE stripe_customer_id = $1 LIMIT 1`,
		customerID).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", billing.ErrCustomerNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to find user by customer: %w", err)
	}
	return userID, nil
}

func (s *Storage) table() string {
	return pgx.Identifier{s.config.Table}.Sanitize()
}

// buildUpdate renders an UPDATE touching only the columns present in u.
func buildUpdate(table, userID string, u *billing.SubscriptionUpdate) (string, []interface{}) {
	var sets []string
	args := []interface{}{userID}
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}

	if u.ExternalCustomerID != nil {
		add("stripe_customer_id", *u.ExternalCustomerID)
	}
	if u.ExternalSubscriptionID != nil {
		add("stripe_subscription_id", *u.ExternalSubscriptionID)
	}
	if u.Status != nil {
		add("subscription_status", string(*u.Status))
	}
	if u.Plan != nil {
		add("subscription_plan", *u.Plan)
	}
	if u.SetPeriod {
		add("trial_end", u.TrialEnd)
		add("current_period_end", u.CurrentPeriodEnd)
	}
	add("updated_at", u.UpdatedAt)

	return "UPDATE " + table + " SET " + strings.Join(sets, ", ") + " WHERE id = $1", args
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
