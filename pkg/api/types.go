package api

import "time"

// StatusResponse is the stored subscription state of a user
type StatusResponse struct {
	UserID           string     `json:"user_id"`
	CustomerID       string     `json:"customer_id,omitempty"`
	SubscriptionID   string     `json:"subscription_id,omitempty"`
	Status           string     `json:"status"`   // processor status, "" if never subscribed
	Entitled         bool       `json:"entitled"` // active or trialing
	Plan             string     `json:"plan,omitempty"`
	TrialEnd         *time.Time `json:"trial_end,omitempty"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}
