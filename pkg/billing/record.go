package billing

import "time"

// SubscriptionStatus mirrors the payment processor's subscription status vocabulary.
type SubscriptionStatus string

const (
	StatusActive            SubscriptionStatus = "active"
	StatusTrialing          SubscriptionStatus = "trialing"
	StatusPastDue           SubscriptionStatus = "past_due"
	StatusCanceled          SubscriptionStatus = "canceled"
	StatusIncomplete        SubscriptionStatus = "incomplete"
	StatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	StatusUnpaid            SubscriptionStatus = "unpaid"
)

// Valid reports whether s is one of the known statuses.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case StatusActive, StatusTrialing, StatusPastDue, StatusCanceled,
		StatusIncomplete, StatusIncompleteExpired, StatusUnpaid:
		return true
	}
	return false
}

// Entitled reports whether s grants access to paid features.
func (s SubscriptionStatus) Entitled() bool {
	return s == StatusActive || s == StatusTrialing
}

// UserRecord is the subscription subset of a CRM user document.
type UserRecord struct {
	UserID                 string             `json:"user_id"`
	ExternalCustomerID     string             `json:"external_customer_id,omitempty"`
	ExternalSubscriptionID string             `json:"external_subscription_id,omitempty"`
	SubscriptionStatus     SubscriptionStatus `json:"subscription_status,omitempty"`
	SubscriptionPlan       string             `json:"subscription_plan,omitempty"`
	TrialEnd               *time.Time         `json:"trial_end,omitempty"`
	CurrentPeriodEnd       *time.Time         `json:"current_period_end,omitempty"`
	UpdatedAt              time.Time          `json:"updated_at"`
}

// SubscriptionUpdate is a partial-field update of a UserRecord.
// Nil pointer fields are left untouched. TrialEnd and CurrentPeriodEnd are
// only written when SetPeriod is true, in which case a nil value clears them.
type SubscriptionUpdate struct {
	ExternalCustomerID     *string
	ExternalSubscriptionID *string
	Status                 *SubscriptionStatus
	Plan                   *string

	SetPeriod        bool
	TrialEnd         *time.Time
	CurrentPeriodEnd *time.Time

	UpdatedAt time.Time
}

// ApplyTo merges the update into rec. Stores without native partial updates
// (memory) use it to get the same merge semantics as Firestore.
func (u *SubscriptionUpdate) ApplyTo(rec *UserRecord) {
	if u.ExternalCustomerID != nil {
		rec.ExternalCustomerID = *u.ExternalCustomerID
	}
	if u.ExternalSubscriptionID != nil {
		rec.ExternalSubscriptionID = *u.ExternalSubscriptionID
	}
	if u.Status != nil {
		rec.SubscriptionStatus = *u.Status
	}
	if u.Plan != nil {
		rec.SubscriptionPlan = *u.Plan
	}
	if u.SetPeriod {
		rec.TrialEnd = copyTime(u.TrialEnd)
		rec.CurrentPeriodEnd = copyTime(u.CurrentPeriodEnd)
	}
	rec.UpdatedAt = u.UpdatedAt
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Clone returns a deep copy of the record.
func (r *UserRecord) Clone() *UserRecord {
	c := *r
	c.TrialEnd = copyTime(r.TrialEnd)
	c.CurrentPeriodEnd = copyTime(r.CurrentPeriodEnd)
	return &c
}
