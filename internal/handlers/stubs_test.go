package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domain "github.com/Abhranil-01/dsport-backend-api/internal/domain"
	"github.com/Abhranil-01/dsport-backend-api/internal/payments"
	"github.com/Abhranil-01/dsport-backend-api/internal/platform/auth"
	"github.com/Abhranil-01/dsport-backend-api/internal/services"
)

type stubCartService struct {
	addFunc     func(context.Context, services.AddCartItemCommand) (services.CartView, error)
	updateFunc  func(context.Context, services.UpdateCartItemCommand) (services.CartView, error)
	removeFunc  func(context.Context, string, string) (services.CartView, error)
	getFunc     func(context.Context, string) (services.CartView, error)
	chargesFunc func(context.Context, string) (domain.ChargesSnapshot, error)
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddCartItemCommand) (services.CartView, error) {
	return s.addFunc(ctx, cmd)
}

func (s *stubCartService) UpdateItem(ctx context.Context, cmd services.UpdateCartItemCommand) (services.CartView, error) {
	return s.updateFunc(ctx, cmd)
}

func (s *stubCartService) RemoveItem(ctx context.Context, userID, itemID string) (services.CartView, error) {
	return s.removeFunc(ctx, userID, itemID)
}

func (s *stubCartService) GetCart(ctx context.Context, userID string) (services.CartView, error) {
	return s.getFunc(ctx, userID)
}

func (s *stubCartService) GetCharges(ctx context.Context, userID string) (domain.ChargesSnapshot, error) {
	return s.chargesFunc(ctx, userID)
}

type stubOrderService struct {
	placeCODFunc     func(context.Context, services.PlaceOrderCommand) (domain.Order, error)
	createFunc       func(context.Context, services.CreatePaymentCommand) (payments.RemoteOrder, error)
	verifyFunc       func(context.Context, services.VerifyPaymentCommand) (domain.Order, error)
	updateStatusFunc func(context.Context, services.UpdateStatusCommand) (domain.Order, error)
	cancelFunc       func(context.Context, string, string) (domain.Order, error)
	getFunc          func(context.Context, string, string, bool) (services.OrderDetail, error)
	listFunc         func(context.Context, string, int) ([]domain.Order, error)
	retryFunc        func(context.Context, string) (domain.Order, error)
}

func (s *stubOrderService) PlaceCOD(ctx context.Context, cmd services.PlaceOrderCommand) (domain.Order, error) {
	return s.placeCODFunc(ctx, cmd)
}

func (s *stubOrderService) CreateOnlinePayment(ctx context.Context, cmd services.CreatePaymentCommand) (payments.RemoteOrder, error) {
	return s.createFunc(ctx, cmd)
}

func (s *stubOrderService) VerifyOnlinePayment(ctx context.Context, cmd services.VerifyPaymentCommand) (domain.Order, error) {
	return s.verifyFunc(ctx, cmd)
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateStatusCommand) (domain.Order, error) {
	return s.updateStatusFunc(ctx, cmd)
}

func (s *stubOrderService) Cancel(ctx context.Context, orderID, userID string) (domain.Order, error) {
	return s.cancelFunc(ctx, orderID, userID)
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID, userID string, admin bool) (services.OrderDetail, error) {
	return s.getFunc(ctx, orderID, userID, admin)
}

func (s *stubOrderService) ListOrders(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	return s.listFunc(ctx, userID, limit)
}

func (s *stubOrderService) RetryInvoice(ctx context.Context, orderID string) (domain.Order, error) {
	return s.retryFunc(ctx, orderID)
}

var (
	_ services.CartService  = (*stubCartService)(nil)
	_ services.OrderService = (*stubOrderService)(nil)
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
}

func newAuthedRequest(method, target, body string, identity *auth.Identity) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if identity != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), identity))
	}
	return req
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, rr.Body.String())
	}
	return env
}

func customer() *auth.Identity {
	return &auth.Identity{UID: "user-7", Roles: []string{auth.RoleUser}}
}

func admin() *auth.Identity {
	return &auth.Identity{UID: "admin-1", Roles: []string{auth.RoleAdmin}}
}
