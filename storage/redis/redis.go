// Package redis provides a Redis implementation of the billing.Store interface.
// Each user is a hash; a string key per external customer id indexes the user.
// Updates run in a Lua script so the existence check, the field writes and the
// index maintenance are atomic.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/subsync/pkg/billing"
)

// Hash field names, matching the Firestore document fields.
const (
	fieldCustomerID     = "stripeCustomerId"
	fieldSubscriptionID = "stripeSubscriptionId"
	fieldStatus         = "subscriptionStatus"
	fieldPlan           = "subscriptionPlan"
	fieldTrialEnd       = "trialEnd"
	fieldPeriodEnd      = "currentPeriodEnd"
	fieldUpdatedAt      = "updatedAt"
)

// updateScript applies a partial update to an existing user hash.
// KEYS[1] user hash. ARGV[1] user id, ARGV[2] customer index prefix,
// ARGV[3] number of field/value pairs to set, then the pairs, then the
// fields to delete. Returns 0 if the user does not exist.
var updateScript = redis.NewScript(`
	local userKey = KEYS[1]
	if redis.call('EXISTS', userKey) == 0 then
		return 0
	end

	local userID = ARGV[1]
	local indexPrefix = ARGV[2]
	local nset = tonumber(ARGV[3])
	local first = 4

	for i = 0, nset - 1 do
		local field = ARGV[first + i * 2]
		local value = ARGV[first + i * 2 + 1]
		if field == 'stripeCustomerId' then
			local old = redis.call('HGET', userKey, field)
			if old and old ~= '' and old ~= value then
				redis.call('DEL', indexPrefix .. old)
			end
			if value ~= '' then
				redis.call('SET', indexPrefix .. value, userID)
			end
		end
		redis.call('HSET', userKey, field, value)
	end

	for i = first + nset * 2, #ARGV do
		redis.call('HDEL', userKey, ARGV[i])
	end

	return 1
`)

// Storage implements billing.Store using Redis
type Storage struct {
	client redis.UniversalClient
	config Config
}

// Config holds Redis storage configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "subsync:")
	KeyPrefix string
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "subsync:",
	}
}

// ErrUnsupportedClient is returned by New for sharded clients. Updates write the
// user hash and the customer index in one script, so every key must live on one node.
var ErrUnsupportedClient = errors.New("redis cluster and ring clients are not supported")

// New creates a new Redis storage adapter
// The client must be a single-node or failover client (*redis.Client)
func New(client redis.UniversalClient, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	switch client.(type) {
	case *redis.ClusterClient, *redis.Ring:
		return nil, ErrUnsupportedClient
	}

	// Set defaults
	if config.KeyPrefix == "" {
		config.KeyPrefix = "subsync:"
	}

	return &Storage{
		client: client,
		config: config,
	}, nil
}

// Put creates or replaces a user record. The CRM owns user creation; this is
// used for seeding and migrations.
func (s *Storage) Put(ctx context.Context, rec *billing.UserRecord) error {
	if rec == nil || rec.UserID == "" {
		return fmt.Errorf("invalid user record")
	}

	userKey := s.userKey(rec.UserID)
	old, err := s.client.HGet(ctx, userKey, fieldCustomerID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to read user: %w", err)
	}

	values := map[string]interface{}{
		fieldCustomerID:     rec.ExternalCustomerID,
		fieldSubscriptionID: rec.ExternalSubscriptionID,
		fieldStatus:         string(rec.SubscriptionStatus),
		fieldPlan:           rec.SubscriptionPlan,
		fieldUpdatedAt:      formatTime(rec.UpdatedAt),
	}
	if rec.TrialEnd != nil {
		values[fieldTrialEnd] = formatTime(*rec.TrialEnd)
	}
	if rec.CurrentPeriodEnd != nil {
		values[fieldPeriodEnd] = formatTime(*rec.CurrentPeriodEnd)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, userKey)
		pipe.HSet(ctx, userKey, values)
		if old != "" && old != rec.ExternalCustomerID {
			pipe.Del(ctx, s.customerKey(old))
		}
		if rec.ExternalCustomerID != "" {
			pipe.Set(ctx, s.customerKey(rec.ExternalCustomerID), rec.UserID, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to put user: %w", err)
	}
	return nil
}

// UpdateSubscription implements billing.Store
func (s *Storage) UpdateSubscription(ctx context.Context, userID string, update *billing.SubscriptionUpdate) error {
	if userID == "" || update == nil {
		return fmt.Errorf("invalid subscription update")
	}

	set, del := fieldsFor(update)
	args := make([]interface{}, 0, 3+len(set)+len(del))
	args = append(args, userID, s.config.KeyPrefix+"customer:", len(set)/2)
	args = append(args, set...)
	for _, f := range del {
		args = append(args, f)
	}

	applied, err := updateScript.Run(ctx, s.client, []string{s.userKey(userID)}, args...).Int()
	if err != nil {
		return fmt.Errorf("failed to update user subscription: %w", err)
	}
	if applied == 0 {
		return billing.ErrUserNotFound
	}
	return nil
}

// GetUser implements billing.Store
func (s *Storage) GetUser(ctx context.Context, userID string) (*billing.UserRecord, error) {
	if userID == "" {
		return nil, billing.ErrUserNotFound
	}

	data, err := s.client.HGetAll(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if len(data) == 0 {
		return nil, billing.ErrUserNotFound
	}

	return &billing.UserRecord{
		UserID:                 userID,
		ExternalCustomerID:     data[fieldCustomerID],
		ExternalSubscriptionID: data[fieldSubscriptionID],
		SubscriptionStatus:     billing.SubscriptionStatus(data[fieldStatus]),
		SubscriptionPlan:       data[fieldPlan],
		TrialEnd:               parseTimePtr(data[fieldTrialEnd]),
		CurrentPeriodEnd:       parseTimePtr(data[fieldPeriodEnd]),
		UpdatedAt:              parseTime(data[fieldUpdatedAt]),
	}, nil
}

// FindUserByCustomerID implements billing.Store
func (s *Storage) FindUserByCustomerID(ctx context.Context, customerID string) (string, error) {
	if customerID == "" {
		return "", billing.ErrCustomerNotFound
	}

	userID, err := s.client.Get(ctx, s.customerKey(customerID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", billing.ErrCustomerNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get customer index: %w", err)
	}
	return userID, nil
}

// fieldsFor splits an update into field/value pairs to set and fields to delete.
func fieldsFor(u *billing.SubscriptionUpdate) (set []interface{}, del []string) {
	if u.ExternalCustomerID != nil {
		set = append(set, fieldCustomerID, *u.ExternalCustomerID)
	}
	if u.ExternalSubscriptionID != nil {
		set = append(set, fieldSubscriptionID, *u.ExternalSubscriptionID)
	}
	if u.Status != nil {
		set = append(set, fieldStatus, string(*u.Status))
	}
	if u.Plan != nil {
		set = append(set, fieldPlan, *u.Plan)
	}
	if u.SetPeriod {
		if u.TrialEnd != nil {
			set = append(set, fieldTrialEnd, formatTime(*u.TrialEnd))
		} else {
			del = append(del, fieldTrialEnd)
		}
		if u.CurrentPeriodEnd != nil {
			set = append(set, fieldPeriodEnd, formatTime(*u.CurrentPeriodEnd))
		} else {
			del = append(del, fieldPeriodEnd)
		}
	}
	set = append(set, fieldUpdatedAt, formatTime(u.UpdatedAt))
	return set, del
}

func (s *Storage) userKey(userID string) string {
	return s.config.KeyPrefix + "user:" + userID
}

func (s *Storage) customerKey(customerID string) string {
	return s.config.KeyPrefix + "customer:" + customerID
}

// Timestamps are stored as unix nanoseconds; the zero time is stored as "".

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.UnixNano(), 10)
}

func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	ns, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

func parseTimePtr(v string) *time.Time {
	t := parseTime(v)
	if t.IsZero() {
		return nil
	}
	return &t
}
