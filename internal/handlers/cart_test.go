package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/Abhranil-01/dsport-backend-api/internal/domain"
	"github.com/Abhranil-01/dsport-backend-api/internal/services"
)

func cartRouter(svc services.CartService) chi.Router {
	router := chi.NewRouter()
	router.Route("/cart", NewCartHandlers(nil, svc).Routes)
	return router
}

func TestCartHandlersAddItem(t *testing.T) {
	var got services.AddCartItemCommand
	svc := &stubCartService{
		addFunc: func(_ context.Context, cmd services.AddCartItemCommand) (services.CartView, error) {
			got = cmd
			return services.CartView{Items: []domain.CartLineView{{ID: "ci_1", Quantity: cmd.Quantity, OfferPrice: 1000}}}, nil
		},
	}

	rr := httptest.NewRecorder()
	cartRouter(svc).ServeHTTP(rr, newAuthedRequest(http.MethodPost, "/cart", `{"variantId":" var-a ","sizeId":"size-9","quantity":2}`, customer()))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.UserID != "user-7" || got.VariantID != "var-a" || got.SizeID != "size-9" || got.Quantity != 2 {
		t.Fatalf("unexpected command %+v", got)
	}
	env := decodeEnvelope(t, rr)
	var view services.CartView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if !env.Success || len(view.Items) != 1 || view.Items[0].Quantity != 2 {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestCartHandlersAddItemInsufficientStock(t *testing.T) {
	svc := &stubCartService{
		addFunc: func(context.Context, services.AddCartItemCommand) (services.CartView, error) {
			return services.CartView{}, fmt.Errorf("add: %w", &services.InsufficientStockError{Key: "size-9", Available: 3})
		},
	}

	rr := httptest.NewRecorder()
	cartRouter(svc).ServeHTTP(rr, newAuthedRequest(http.MethodPost, "/cart", `{"variantId":"v","sizeId":"s","quantity":5}`, customer()))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	env := decodeEnvelope(t, rr)
	if env.Success || env.Message != "Only 3 items available in stock" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestCartHandlersRequireIdentity(t *testing.T) {
	svc := &stubCartService{getFunc: func(context.Context, string) (services.CartView, error) {
		t.Fatal("service must not be called")
		return services.CartView{}, nil
	}}

	rr := httptest.NewRecorder()
	cartRouter(svc).ServeHTTP(rr, newAuthedRequest(http.MethodGet, "/cart", "", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestCartHandlersUpdateItemPassesOptionalQuantity(t *testing.T) {
	var got services.UpdateCartItemCommand
	svc := &stubCartService{
		updateFunc: func(_ context.Context, cmd services.UpdateCartItemCommand) (services.CartView, error) {
			got = cmd
			return services.CartView{}, nil
		},
	}

	rr := httptest.NewRecorder()
	cartRouter(svc).ServeHTTP(rr, newAuthedRequest(http.MethodPut, "/cart/ci_1", `{"sizeId":"size-10"}`, customer()))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got.ItemID != "ci_1" || got.SizeID != "size-10" || got.Quantity != nil {
		t.Fatalf("unexpected command %+v", got)
	}
}

func TestCartHandlersRemoveItemNotFound(t *testing.T) {
	svc := &stubCartService{
		removeFunc: func(_ context.Context, userID, itemID string) (services.CartView, error) {
			if userID != "user-7" || itemID != "ci_9" {
				t.Fatalf("unexpected args %s %s", userID, itemID)
			}
			return services.CartView{}, fmt.Errorf("%w: cart item ci_9", services.ErrNotFound)
		},
	}

	rr := httptest.NewRecorder()
	cartRouter(svc).ServeHTTP(rr, newAuthedRequest(http.MethodDelete, "/cart/ci_9", "", customer()))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestCartHandlersGetChargesProjectsMajorUnits(t *testing.T) {
	svc := &stubCartService{
		chargesFunc: func(context.Context, string) (domain.ChargesSnapshot, error) {
			return domain.ChargesSnapshot{ID: "user-7", UserID: "user-7", TotalQuantity: 2, TotalPrice: 120000, TotalPayableAmount: 125000}, nil
		},
	}

	rr := httptest.NewRecorder()
	cartRouter(svc).ServeHTTP(rr, newAuthedRequest(http.MethodGet, "/cart/charges", "", customer()))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var view domain.ChargesView
	if err := json.Unmarshal(decodeEnvelope(t, rr).Data, &view); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if view.ID != "user-7" || view.TotalPrice != 1200 || view.TotalPayableAmount != 1250 {
		t.Fatalf("unexpected charges view %+v", view)
	}
}

func TestCartHandlersRejectsOversizedBody(t *testing.T) {
	svc := &stubCartService{addFunc: func(context.Context, services.AddCartItemCommand) (services.CartView, error) {
		t.Fatal("service must not be called")
		return services.CartView{}, nil
	}}
	body := `{"variantId":"` + strings.Repeat("x", maxCartBodySize) + `"}`

	rr := httptest.NewRecorder()
	cartRouter(svc).ServeHTTP(rr, newAuthedRequest(http.MethodPost, "/cart", body, customer()))

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
}
