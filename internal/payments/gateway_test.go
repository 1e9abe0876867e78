package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
)

type stubRazorpayOrders struct {
	payload map[string]interface{}
	resp    map[string]interface{}
	err     error
}

func (s *stubRazorpayOrders) Create(data map[string]interface{}, _ map[string]string) (map[string]interface{}, error) {
	s.payload = data
	return s.resp, s.err
}

type stubIntents struct {
	params *stripe.PaymentIntentParams
	intent *stripe.PaymentIntent
	err    error
}

func (s *stubIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	s.params = params
	return s.intent, s.err
}

func TestRazorpayGatewayCreatesOrder(t *testing.T) {
	orders := &stubRazorpayOrders{resp: map[string]interface{}{
		"id":         "order_RZP1",
		"status":     "created",
		"created_at": float64(1700000000),
	}}
	gw, err := NewRazorpayGateway(RazorpayConfig{Orders: orders})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	order, err := gw.CreateRemoteOrder(context.Background(), RemoteOrderRequest{AmountMinor: 56800, Receipt: "order_rcpt_1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if order.ID != "order_RZP1" || order.Status != "created" || order.Currency != "INR" {
		t.Fatalf("unexpected order %+v", order)
	}
	if !order.CreatedAt.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("unexpected created at %v", order.CreatedAt)
	}
	if orders.payload["amount"] != int64(56800) || orders.payload["currency"] != "INR" || orders.payload["receipt"] != "order_rcpt_1" {
		t.Fatalf("unexpected payload %+v", orders.payload)
	}
}

func TestRazorpayGatewayErrors(t *testing.T) {
	gw, err := NewRazorpayGateway(RazorpayConfig{Orders: &stubRazorpayOrders{err: errors.New("boom")}})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	if _, err := gw.CreateRemoteOrder(context.Background(), RemoteOrderRequest{AmountMinor: 100}); err == nil {
		t.Fatalf("expected error")
	}

	gw, _ = NewRazorpayGateway(RazorpayConfig{Orders: &stubRazorpayOrders{resp: map[string]interface{}{}}})
	if _, err := gw.CreateRemoteOrder(context.Background(), RemoteOrderRequest{AmountMinor: 100}); err == nil {
		t.Fatalf("expected error for missing id")
	}

	if _, err := NewRazorpayGateway(RazorpayConfig{}); err == nil {
		t.Fatalf("expected error without credentials")
	}
}

func TestStripeGatewayCreatesIntent(t *testing.T) {
	intents := &stubIntents{intent: &stripe.PaymentIntent{
		ID:       "pi_123",
		Amount:   2500,
		Currency: stripe.CurrencyUSD,
		Status:   stripe.PaymentIntentStatusRequiresPaymentMethod,
		Created:  1700000000,
	}}
	gw, err := NewStripeGateway(StripeConfig{Intents: intents})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	order, err := gw.CreateRemoteOrder(context.Background(), RemoteOrderRequest{AmountMinor: 2500, Currency: "USD", Receipt: "order_rcpt_2"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if order.ID != "pi_123" || order.Currency != "USD" || order.AmountMinor != 2500 {
		t.Fatalf("unexpected order %+v", order)
	}
	if intents.params == nil || stripe.Int64Value(intents.params.Amount) != 2500 || stripe.StringValue(intents.params.Currency) != "usd" {
		t.Fatalf("unexpected params %+v", intents.params)
	}
	if intents.params.Metadata["receipt"] != "order_rcpt_2" {
		t.Fatalf("expected receipt metadata, got %+v", intents.params.Metadata)
	}
}

func TestStripeGatewayRequiresCurrency(t *testing.T) {
	gw, err := NewStripeGateway(StripeConfig{Intents: &stubIntents{}})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	if _, err := gw.CreateRemoteOrder(context.Background(), RemoteOrderRequest{AmountMinor: 100}); err == nil {
		t.Fatalf("expected currency error")
	}
}
