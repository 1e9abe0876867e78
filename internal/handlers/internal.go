package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	domain "github.com/Abhranil-01/dsport-backend-api/internal/domain"
	"github.com/Abhranil-01/dsport-backend-api/internal/platform/auth"
	"github.com/Abhranil-01/dsport-backend-api/internal/platform/httpx"
	"github.com/Abhranil-01/dsport-backend-api/internal/platform/observability"
	"github.com/Abhranil-01/dsport-backend-api/internal/services"
)

// InternalHandlers serves operator and scheduler endpoints. Authentication is applied by the
// router's internal middleware chain.
type InternalHandlers struct {
	orders services.OrderService
}

// NewInternalHandlers constructs internal endpoints.
func NewInternalHandlers(orders services.OrderService) *InternalHandlers {
	return &InternalHandlers{orders: orders}
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/invoices/{orderId}:retry", h.retryInvoice)
}

func (h *InternalHandlers) retryInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	order, err := h.orders.RetryInvoice(ctx, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	requester := "unknown"
	if svc, ok := auth.ServiceIdentityFromContext(ctx); ok && svc != nil {
		requester = svc.Subject
	}
	observability.FromContext(ctx).Info("invoice retry queued", zap.String("orderId", order.ID), zap.String("requester", requester))
	httpx.WriteJSON(w, http.StatusAccepted, domain.ProjectOrder(order, nil), "Invoice generation re-queued")
}
