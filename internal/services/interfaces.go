package services

import (
	"context"
	"io"

	domain "github.com/Abhranil-01/dsport-backend-api/internal/domain"
	"github.com/Abhranil-01/dsport-backend-api/internal/invoice"
	"github.com/Abhranil-01/dsport-backend-api/internal/payments"
	"github.com/Abhranil-01/dsport-backend-api/internal/platform/mail"
	"github.com/Abhranil-01/dsport-backend-api/internal/platform/storage"
)

// InvoiceQueue accepts invoice jobs for asynchronous generation.
type InvoiceQueue interface {
	EnqueueInvoice(ctx context.Context, job domain.InvoiceJob) error
}

// EmailQueue accepts transactional email jobs.
type EmailQueue interface {
	EnqueueEmail(ctx context.Context, job domain.EmailJob) error
}

// Notifier fans events out to realtime rooms. Delivery is best-effort.
type Notifier interface {
	Publish(ctx context.Context, room, event string, payload any) error
}

// PaymentVerifier checks gateway callback signatures.
type PaymentVerifier interface {
	Verify(orderRef, paymentRef, signature string) error
}

// PaymentGateway creates remote payment orders.
type PaymentGateway interface {
	CreateRemoteOrder(ctx context.Context, req payments.RemoteOrderRequest) (payments.RemoteOrder, error)
}

// ObjectStore persists generated artefacts.
type ObjectStore interface {
	Upload(ctx context.Context, localPath, key string) (storage.Object, error)
	Open(ctx context.Context, id string) (io.ReadCloser, error)
	Delete(ctx context.Context, id string) error
}

// InvoiceRenderer renders an invoice document to a local file.
type InvoiceRenderer interface {
	RenderFile(doc invoice.Document, path string) error
}

// Mailer sends a composed message.
type Mailer interface {
	Send(ctx context.Context, msg mail.Message) error
}

// CartView is the cart read model returned after every cart operation.
type CartView struct {
	Items   []domain.CartLineView `json:"items"`
	Charges *domain.ChargesView   `json:"charges,omitempty"`
}

// AddCartItemCommand adds quantity of a size to the caller's cart.
type AddCartItemCommand struct {
	UserID    string
	VariantID string
	SizeID    string
	Quantity  int
}

// UpdateCartItemCommand changes the quantity and optionally the size of a cart line.
type UpdateCartItemCommand struct {
	UserID   string
	ItemID   string
	Quantity *int
	SizeID   string
}

// CartService manages cart lines and keeps the charges snapshot in step.
type CartService interface {
	AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error)
	UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (CartView, error)
	RemoveItem(ctx context.Context, userID, itemID string) (CartView, error)
	GetCart(ctx context.Context, userID string) (CartView, error)
	GetCharges(ctx context.Context, userID string) (domain.ChargesSnapshot, error)
}

// PlaceOrderCommand converts cart lines and their charges snapshot into an order.
type PlaceOrderCommand struct {
	UserID      string
	AddressID   string
	CartItemIDs []string
	ChargesID   string
}

// CreatePaymentCommand requests a remote payment order for an amount in major units.
type CreatePaymentCommand struct {
	UserID      string
	TotalAmount float64
	Currency    string
}

// VerifyPaymentCommand places an online order after the gateway signature checks out.
type VerifyPaymentCommand struct {
	PlaceOrderCommand
	RemoteOrderID   string
	RemotePaymentID string
	Signature       string
}

// UpdateStatusCommand is an administrative status change. Empty fields are left unchanged.
type UpdateStatusCommand struct {
	OrderID        string
	ActorID        string
	DeliveryStatus string
	PaymentStatus  string
}

// OrderDetail is an order with its line items.
type OrderDetail struct {
	Order domain.Order
	Items []domain.OrderLineItem
}

// OrderService exposes order placement and lifecycle operations.
type OrderService interface {
	PlaceCOD(ctx context.Context, cmd PlaceOrderCommand) (domain.Order, error)
	CreateOnlinePayment(ctx context.Context, cmd CreatePaymentCommand) (payments.RemoteOrder, error)
	VerifyOnlinePayment(ctx context.Context, cmd VerifyPaymentCommand) (domain.Order, error)
	UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (domain.Order, error)
	Cancel(ctx context.Context, orderID, userID string) (domain.Order, error)
	GetOrder(ctx context.Context, orderID, userID string, admin bool) (OrderDetail, error)
	ListOrders(ctx context.Context, userID string, limit int) ([]domain.Order, error)
	RetryInvoice(ctx context.Context, orderID string) (domain.Order, error)
}
