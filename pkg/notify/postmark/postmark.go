// Package postmark sends billing notices through Postmark templates.
// Notifier.OnApplied plugs into billing.Config.OnApplied.
package postmark

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mrz1836/postmark"

	"github.com/mihaimyh/subsync/pkg/billing"
)

var (
	// ErrInvalidConfig is returned by New when a required option is missing.
	ErrInvalidConfig = errors.New("invalid postmark notifier config")

	// ErrSendFailed wraps Postmark transport and API errors.
	ErrSendFailed = errors.New("failed to send billing notice")
)

const defaultMessageStream = "outbound"

// Config holds Postmark notifier configuration
type Config struct {
	ServerToken  string
	AccountToken string

	// From is the sender address (required)
	From string

	// ReplyTo is optional
	ReplyTo string

	// PaymentFailedTemplate is the alias of the Postmark template sent when an
	// invoice payment fails (required)
	PaymentFailedTemplate string

	// MessageStream defaults to "outbound"
	MessageStream string

	// Client overrides the Postmark client (tests, custom BaseURL)
	Client *postmark.Client

	// Logger is optional
	Logger billing.Logger
}

// Notifier sends templated e-mails for applied billing events.
type Notifier struct {
	client *postmark.Client
	config Config
	logger billing.Logger
}

// New creates a Postmark notifier.
func New(cfg Config) (*Notifier, error) {
	if cfg.Client == nil {
		if cfg.ServerToken == "" {
			return nil, fmt.Errorf("%w: ServerToken is required", ErrInvalidConfig)
		}
		cfg.Client = postmark.NewClient(cfg.ServerToken, cfg.AccountToken)
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("%w: From is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.PaymentFailedTemplate) == "" {
		return nil, fmt.Errorf("%w: PaymentFailedTemplate is required", ErrInvalidConfig)
	}
	if cfg.MessageStream == "" {
		cfg.MessageStream = defaultMessageStream
	}

	logger := cfg.Logger
	if logger == nil {
		logger = &billing.NoopLogger{}
	}

	return &Notifier{
		client: cfg.Client,
		config: cfg,
		logger: logger,
	}, nil
}

// OnApplied sends the payment-failed notice for failed invoice payments.
// Other event kinds and customers without an e-mail are ignored.
func (n *Notifier) OnApplied(ctx context.Context, ev billing.AppliedEvent) error {
	if ev.Kind != billing.EventInvoicePaymentFailed {
		return nil
	}
	if ev.CustomerEmail == "" {
		n.logger.Debug("payment failed notice skipped, no customer email",
			billing.Field{Key: "user_id", Value: ev.UserID},
		)
		return nil
	}

	resp, err := n.client.SendTemplatedEmail(ctx, postmark.TemplatedEmail{
		TemplateAlias: n.config.PaymentFailedTemplate,
		TemplateModel: map[string]interface{}{
			"user_id":     ev.UserID,
			"customer_id": ev.CustomerID,
			"event_id":    ev.EventID,
			"occurred_at": ev.EventTimestamp.Format("2006-01-02"),
		},
		From:          n.config.From,
		To:            ev.CustomerEmail,
		ReplyTo:       n.config.ReplyTo,
		Tag:           "payment-failed",
		TrackOpens:    true,
		MessageStream: n.config.MessageStream,
		Metadata: map[string]interface{}{
			"user_id":  ev.UserID,
			"event_id": ev.EventID,
		},
	})
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(
			ErrSendFailed,
			fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message),
		)
	}

	n.logger.Info("payment failed notice sent",
		billing.Field{Key: "user_id", Value: ev.UserID},
		billing.Field{Key: "message_id", Value: resp.MessageID},
	)
	return nil
}
