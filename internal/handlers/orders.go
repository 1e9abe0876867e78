package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/Abhranil-01/dsport-backend-api/internal/domain"
	"github.com/Abhranil-01/dsport-backend-api/internal/payments"
	"github.com/Abhranil-01/dsport-backend-api/internal/platform/auth"
	"github.com/Abhranil-01/dsport-backend-api/internal/platform/httpx"
	"github.com/Abhranil-01/dsport-backend-api/internal/platform/observability"
	"github.com/Abhranil-01/dsport-backend-api/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
	maxOrderBodySize     = 16 * 1024
)

// OrderHandlers exposes order placement and lifecycle endpoints.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	placementMW []func(http.Handler) http.Handler
}

// OrderHandlerOption customises OrderHandlers.
type OrderHandlerOption func(*OrderHandlers)

// WithPlacementMiddlewares wraps the order placement routes, typically with idempotency keys.
func WithPlacementMiddlewares(mw ...func(http.Handler) http.Handler) OrderHandlerOption {
	return func(h *OrderHandlers) {
		h.placementMW = append(h.placementMW, mw...)
	}
}

// WithPlacementRateLimit caps order placement per caller. A non-positive rate disables the cap.
func WithPlacementRateLimit(perMinute, burst int) OrderHandlerOption {
	return func(h *OrderHandlers) {
		if limiter := newKeyedRateLimiter(perMinute, burst, nil); limiter != nil {
			h.placementMW = append([]func(http.Handler) http.Handler{rateLimitMiddleware(limiter)}, h.placementMW...)
		}
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlerOption) *OrderHandlers {
	h := &OrderHandlers{authn: authn, orders: orders}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /order endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	placement := r.With(h.placementMW...)
	placement.Post("/cod", h.placeCOD)
	placement.Post("/online/verify", h.verifyOnline)

	r.Post("/online/create-payment", h.createPayment)
	r.Put("/cancel", h.cancelOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderId}", h.getOrder)
	r.With(requireAdmin).Put("/{orderId}", h.updateStatus)
}

type placeOrderRequest struct {
	AddressID   string   `json:"addressId"`
	CartItemIDs []string `json:"cartItemIds"`
	ChargesID   string   `json:"chargesId"`
}

func (req placeOrderRequest) command(userID string) services.PlaceOrderCommand {
	return services.PlaceOrderCommand{
		UserID:      userID,
		AddressID:   strings.TrimSpace(req.AddressID),
		CartItemIDs: req.CartItemIDs,
		ChargesID:   strings.TrimSpace(req.ChargesID),
	}
}

type verifyPaymentRequest struct {
	placeOrderRequest
	RemoteOrderID   string `json:"remoteOrderId"`
	RemotePaymentID string `json:"remotePaymentId"`
	Signature       string `json:"signature"`
}

type createPaymentRequest struct {
	TotalAmount float64 `json:"totalAmount"`
	Currency    string  `json:"currency"`
}

type updateStatusRequest struct {
	DeliveryStatus string `json:"deliveryStatus"`
	PaymentStatus  string `json:"paymentStatus"`
}

type cancelOrderRequest struct {
	OrderID string `json:"orderId"`
}

type remoteOrderPayload struct {
	ID          string    `json:"id"`
	Provider    string    `json:"provider"`
	Amount      float64   `json:"amount"`
	AmountMinor int64     `json:"amountMinor"`
	Currency    string    `json:"currency"`
	Receipt     string    `json:"receipt"`
	Status      string    `json:"status,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (h *OrderHandlers) placeCOD(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.ready(w, r)
	if !ok {
		return
	}
	var req placeOrderRequest
	if !decodeBody(w, r, maxOrderBodySize, &req) {
		return
	}
	order, err := h.orders.PlaceCOD(r.Context(), req.command(identity.UID))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	observability.AnnotateOrder(r.Context(), order.ID)
	httpx.WriteJSON(w, http.StatusCreated, domain.ProjectOrder(order, nil), "Order placed successfully")
}

func (h *OrderHandlers) createPayment(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.ready(w, r)
	if !ok {
		return
	}
	var req createPaymentRequest
	if !decodeBody(w, r, maxOrderBodySize, &req) {
		return
	}
	remote, err := h.orders.CreateOnlinePayment(r.Context(), services.CreatePaymentCommand{
		UserID:      identity.UID,
		TotalAmount: req.TotalAmount,
		Currency:    strings.TrimSpace(req.Currency),
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, projectRemoteOrder(remote), "Payment order created")
}

func (h *OrderHandlers) verifyOnline(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.ready(w, r)
	if !ok {
		return
	}
	var req verifyPaymentRequest
	if !decodeBody(w, r, maxOrderBodySize, &req) {
		return
	}
	order, err := h.orders.VerifyOnlinePayment(r.Context(), services.VerifyPaymentCommand{
		PlaceOrderCommand: req.command(identity.UID),
		RemoteOrderID:     strings.TrimSpace(req.RemoteOrderID),
		RemotePaymentID:   strings.TrimSpace(req.RemotePaymentID),
		Signature:         strings.TrimSpace(req.Signature),
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	observability.AnnotateOrder(r.Context(), order.ID)
	httpx.WriteJSON(w, http.StatusCreated, domain.ProjectOrder(order, nil), "Payment verified and order placed")
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.ready(w, r)
	if !ok {
		return
	}
	var req updateStatusRequest
	if !decodeBody(w, r, maxOrderBodySize, &req) {
		return
	}
	order, err := h.orders.UpdateStatus(r.Context(), services.UpdateStatusCommand{
		OrderID:        strings.TrimSpace(chi.URLParam(r, "orderId")),
		ActorID:        identity.UID,
		DeliveryStatus: strings.TrimSpace(req.DeliveryStatus),
		PaymentStatus:  strings.TrimSpace(req.PaymentStatus),
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, domain.ProjectOrder(order, nil), "Order status updated")
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.ready(w, r)
	if !ok {
		return
	}
	var req cancelOrderRequest
	if !decodeBody(w, r, maxOrderBodySize, &req) {
		return
	}
	observability.AnnotateOrder(r.Context(), req.OrderID)
	order, err := h.orders.Cancel(r.Context(), strings.TrimSpace(req.OrderID), identity.UID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, domain.ProjectOrder(order, nil), "Order cancelled successfully")
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.ready(w, r)
	if !ok {
		return
	}
	detail, err := h.orders.GetOrder(r.Context(), strings.TrimSpace(chi.URLParam(r, "orderId")), identity.UID, identity.IsAdmin())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, domain.ProjectOrder(detail.Order, detail.Items), "Order fetched successfully")
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.ready(w, r)
	if !ok {
		return
	}
	limit := defaultOrderPageSize
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "limit must be a positive integer", http.StatusBadRequest))
			return
		}
		limit = parsed
	}
	if limit > maxOrderPageSize {
		limit = maxOrderPageSize
	}
	orders, err := h.orders.ListOrders(r.Context(), identity.UID, limit)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	views := make([]domain.OrderView, 0, len(orders))
	for _, order := range orders {
		views = append(views, domain.ProjectOrder(order, nil))
	}
	httpx.WriteJSON(w, http.StatusOK, views, "Orders fetched successfully")
}

func (h *OrderHandlers) ready(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	if h.orders == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	return requireIdentity(w, r)
}

// requireAdmin rejects callers whose verified identity lacks the admin role.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := requireIdentity(w, r)
		if !ok {
			return
		}
		if !identity.IsAdmin() {
			httpx.WriteError(r.Context(), w, httpx.NewError("forbidden", "admin role required", http.StatusForbidden))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func projectRemoteOrder(remote payments.RemoteOrder) remoteOrderPayload {
	return remoteOrderPayload{
		ID:          remote.ID,
		Provider:    remote.Provider,
		Amount:      domain.MajorUnits(remote.AmountMinor),
		AmountMinor: remote.AmountMinor,
		Currency:    remote.Currency,
		Receipt:     remote.Receipt,
		Status:      remote.Status,
		CreatedAt:   remote.CreatedAt,
	}
}
