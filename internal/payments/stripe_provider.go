package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// ProviderStripe is the registration key of the Stripe gateway.
const ProviderStripe = "stripe"

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeConfig configures the StripeGateway.
type StripeConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    Logger
	Clock     func() time.Time
	Intents   stripePaymentIntentAPI
}

// StripeGateway creates Stripe PaymentIntents for non-INR checkouts. The intent id plays the role
// of the remote order id; the client returns the same signature pair as the Razorpay flow.
type StripeGateway struct {
	intents stripePaymentIntentAPI
	account string
	clock   func() time.Time
	logger  Logger
}

// NewStripeGateway constructs a StripeGateway.
func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	intents := cfg.Intents
	if intents == nil {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		intents = client.New(apiKey, cfg.Backends).PaymentIntents
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &StripeGateway{
		intents: intents,
		account: strings.TrimSpace(cfg.AccountID),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateRemoteOrder creates a PaymentIntent for the requested amount.
func (g *StripeGateway) CreateRemoteOrder(ctx context.Context, req RemoteOrderRequest) (RemoteOrder, error) {
	if g == nil {
		return RemoteOrder{}, errors.New("stripe: gateway is nil")
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		return RemoteOrder{}, errors.New("stripe: currency is required")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountMinor),
		Currency: stripe.String(currency),
	}
	params.Context = ctx
	if req.Receipt != "" {
		params.SetIdempotencyKey(req.Receipt)
		params.AddMetadata("receipt", req.Receipt)
	}
	if g.account != "" {
		params.SetStripeAccount(g.account)
	}
	for k, v := range req.Notes {
		params.AddMetadata(k, v)
	}

	intent, err := g.intents.New(params)
	if err != nil {
		g.logger(ctx, "payments.stripe.intent.failed", map[string]any{
			"receipt": req.Receipt,
			"error":   err.Error(),
		})
		return RemoteOrder{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	if intent == nil || intent.ID == "" {
		return RemoteOrder{}, errors.New("stripe: response missing payment intent id")
	}

	order := RemoteOrder{
		ID:          intent.ID,
		Provider:    ProviderStripe,
		AmountMinor: intent.Amount,
		Currency:    strings.ToUpper(string(intent.Currency)),
		Receipt:     req.Receipt,
		Status:      string(intent.Status),
		CreatedAt:   g.clock(),
		Raw: map[string]any{
			"clientSecret": intent.ClientSecret,
		},
	}
	if intent.Created > 0 {
		order.CreatedAt = time.Unix(intent.Created, 0).UTC()
	}

	g.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"remoteOrderId": order.ID,
		"amount":        order.AmountMinor,
		"receipt":       order.Receipt,
	})
	return order, nil
}
