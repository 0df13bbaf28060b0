package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/gelomax/api/internal/pos"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey        string
	Currency      string
	PaymentMethod string
	Logger        StripeLogger
	Clock         func() time.Time
	Intents       stripeIntentAPI
}

// StripeProvider settles card payments (credit and debit) by creating and
// confirming a PaymentIntent.
type StripeProvider struct {
	intents       stripeIntentAPI
	currency      string
	paymentMethod string
	clock         func() time.Time
	logger        StripeLogger
}

// NewStripeProvider constructs a Stripe-backed card settlement provider.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Intents == nil {
		return nil, errors.New("stripe: api key is required")
	}

	intents := cfg.Intents
	if intents == nil {
		sc := client.New(apiKey, nil)
		intents = sc.PaymentIntents
	}

	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "brl"
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		intents:       intents,
		currency:      currency,
		paymentMethod: strings.TrimSpace(cfg.PaymentMethod),
		clock:         func() time.Time { return clock().UTC() },
		logger:        logger,
	}, nil
}

// Settle creates a confirmed PaymentIntent for the sale amount. The sale ID
// doubles as the idempotency key so a retried confirm never charges twice.
func (p *StripeProvider) Settle(ctx context.Context, req pos.SettlementRequest) (pos.Settlement, error) {
	if p == nil || p.intents == nil {
		return pos.Settlement{}, errors.New("stripe: provider not initialised")
	}
	if req.Amount <= 0 {
		return pos.Settlement{}, errors.New("stripe: amount must be positive")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(p.currency),
		Confirm:  stripe.Bool(true),
		Metadata: map[string]string{
			"sale_id": req.SaleID,
			"unit":    string(req.Unit),
			"method":  string(req.Method),
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.SaleID); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.paymentMethod != "" {
		params.PaymentMethod = stripe.String(p.paymentMethod)
	}

	intent, err := p.intents.New(params)
	if err != nil {
		p.logger(ctx, "payments.stripe_failed", map[string]any{
			"saleId": req.SaleID,
			"error":  err.Error(),
		})
		return pos.Settlement{}, fmt.Errorf("stripe: create intent: %w", err)
	}
	if intent.Status != stripe.PaymentIntentStatusSucceeded && intent.Status != stripe.PaymentIntentStatusRequiresCapture {
		return pos.Settlement{}, fmt.Errorf("stripe: intent %s in status %s", intent.ID, intent.Status)
	}

	return pos.Settlement{
		Authorization: intent.ID,
		SettledAt:     p.clock(),
	}, nil
}
