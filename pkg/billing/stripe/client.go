package stripe

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/subsync/pkg/billing"
)

// Client is the subset of the Stripe API the provider calls.
type Client interface {
	RetrieveCustomer(ctx context.Context, id string) (*stripe.Customer, error)
	RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
}

type apiClient struct {
	sc      *stripe.Client
	metrics billing.Metrics
}

func newAPIClient(sc *stripe.Client, metrics billing.Metrics) *apiClient {
	return &apiClient{sc: sc, metrics: metrics}
}

func (c *apiClient) RetrieveCustomer(ctx context.Context, id string) (*stripe.Customer, error) {
	startTime := time.Now()
	cust, err := c.sc.V1Customers.Retrieve(ctx, id, nil)
	c.record("/customers/{id}", startTime, err)
	return cust, err
}

func (c *apiClient) RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	startTime := time.Now()
	sub, err := c.sc.V1Subscriptions.Retrieve(ctx, id, nil)
	c.record("/subscriptions/{id}", startTime, err)
	return sub, err
}

func (c *apiClient) record(endpoint string, startTime time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordAPICall(providerName, endpoint, status)
	c.metrics.RecordAPICallDuration(providerName, endpoint, time.Since(startTime))
}
