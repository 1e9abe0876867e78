package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/Abhranil-01/dsport-backend-api/internal/domain"
	"github.com/Abhranil-01/dsport-backend-api/internal/platform/auth"
	"github.com/Abhranil-01/dsport-backend-api/internal/platform/httpx"
	"github.com/Abhranil-01/dsport-backend-api/internal/services"
)

const maxCartBodySize = 8 * 1024

// CartHandlers exposes authenticated cart endpoints for the current user.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

// NewCartHandlers constructs handlers enforcing Firebase authentication before invoking the cart service.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{authn: authn, carts: carts}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getCart)
	r.Post("/", h.addItem)
	r.Get("/charges", h.getCharges)
	r.Put("/{itemId}", h.updateItem)
	r.Delete("/{itemId}", h.removeItem)
}

type addCartItemRequest struct {
	VariantID string `json:"variantId"`
	SizeID    string `json:"sizeId"`
	Quantity  int    `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity *int   `json:"quantity"`
	SizeID   string `json:"sizeId"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.ready(w, r)
	if !ok {
		return
	}
	view, err := h.carts.GetCart(r.Context(), identity.UID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view, "Cart fetched successfully")
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.ready(w, r)
	if !ok {
		return
	}
	var req addCartItemRequest
	if !decodeBody(w, r, maxCartBodySize, &req) {
		return
	}
	view, err := h.carts.AddItem(r.Context(), services.AddCartItemCommand{
		UserID:    identity.UID,
		VariantID: strings.TrimSpace(req.VariantID),
		SizeID:    strings.TrimSpace(req.SizeID),
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, view, "Item added to cart")
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.ready(w, r)
	if !ok {
		return
	}
	var req updateCartItemRequest
	if !decodeBody(w, r, maxCartBodySize, &req) {
		return
	}
	view, err := h.carts.UpdateItem(r.Context(), services.UpdateCartItemCommand{
		UserID:   identity.UID,
		ItemID:   strings.TrimSpace(chi.URLParam(r, "itemId")),
		Quantity: req.Quantity,
		SizeID:   strings.TrimSpace(req.SizeID),
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view, "Cart item updated")
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.ready(w, r)
	if !ok {
		return
	}
	view, err := h.carts.RemoveItem(r.Context(), identity.UID, strings.TrimSpace(chi.URLParam(r, "itemId")))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view, "Cart item removed")
}

func (h *CartHandlers) getCharges(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.ready(w, r)
	if !ok {
		return
	}
	snapshot, err := h.carts.GetCharges(r.Context(), identity.UID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, domain.ProjectCharges(snapshot), "Charges fetched successfully")
}

func (h *CartHandlers) ready(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	if h.carts == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	return requireIdentity(w, r)
}
