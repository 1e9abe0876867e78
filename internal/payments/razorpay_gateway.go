package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
)

// ProviderRazorpay is the registration key of the Razorpay gateway.
const ProviderRazorpay = "razorpay"

// Logger defines the logging contract for gateway operations.
type Logger func(ctx context.Context, event string, fields map[string]any)

type razorpayOrderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// RazorpayConfig configures the RazorpayGateway.
type RazorpayConfig struct {
	KeyID     string
	KeySecret string
	Logger    Logger
	Clock     func() time.Time
	Orders    razorpayOrderAPI
}

// RazorpayGateway creates Razorpay orders for INR checkouts.
type RazorpayGateway struct {
	orders razorpayOrderAPI
	clock  func() time.Time
	logger Logger
}

// NewRazorpayGateway constructs a RazorpayGateway.
func NewRazorpayGateway(cfg RazorpayConfig) (*RazorpayGateway, error) {
	orders := cfg.Orders
	if orders == nil {
		keyID := strings.TrimSpace(cfg.KeyID)
		secret := strings.TrimSpace(cfg.KeySecret)
		if keyID == "" || secret == "" {
			return nil, errors.New("razorpay: key id and secret are required")
		}
		orders = razorpay.NewClient(keyID, secret).Order
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &RazorpayGateway{
		orders: orders,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateRemoteOrder creates a Razorpay order. The SDK is synchronous and does not take a context,
// so cancellation is only checked before the call.
func (g *RazorpayGateway) CreateRemoteOrder(ctx context.Context, req RemoteOrderRequest) (RemoteOrder, error) {
	if g == nil {
		return RemoteOrder{}, errors.New("razorpay: gateway is nil")
	}
	if err := ctx.Err(); err != nil {
		return RemoteOrder{}, err
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "INR"
	}
	payload := map[string]interface{}{
		"amount":   req.AmountMinor,
		"currency": currency,
		"receipt":  req.Receipt,
	}
	if len(req.Notes) > 0 {
		notes := make(map[string]interface{}, len(req.Notes))
		for k, v := range req.Notes {
			notes[k] = v
		}
		payload["notes"] = notes
	}

	body, err := g.orders.Create(payload, nil)
	if err != nil {
		g.logger(ctx, "payments.razorpay.order.failed", map[string]any{
			"receipt": req.Receipt,
			"error":   err.Error(),
		})
		return RemoteOrder{}, fmt.Errorf("razorpay: create order: %w", err)
	}

	id, _ := body["id"].(string)
	if id == "" {
		return RemoteOrder{}, errors.New("razorpay: response missing order id")
	}
	order := RemoteOrder{
		ID:          id,
		Provider:    ProviderRazorpay,
		AmountMinor: req.AmountMinor,
		Currency:    currency,
		Receipt:     req.Receipt,
		Status:      stringField(body, "status"),
		CreatedAt:   g.clock(),
		Raw:         body,
	}
	if created, ok := body["created_at"].(float64); ok && created > 0 {
		order.CreatedAt = time.Unix(int64(created), 0).UTC()
	}

	g.logger(ctx, "payments.razorpay.order.created", map[string]any{
		"remoteOrderId": order.ID,
		"amount":        order.AmountMinor,
		"receipt":       order.Receipt,
	})
	return order, nil
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
