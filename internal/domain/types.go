package domain

import (
	"strings"
	"time"
)

// PaymentMode identifies how an order is settled.
type PaymentMode string

const (
	// PaymentModeCOD settles on delivery.
	PaymentModeCOD PaymentMode = "COD"
	// PaymentModeOnline settles through the payment gateway before the order is created.
	PaymentModeOnline PaymentMode = "Online"
)

// PaymentStatus tracks the settlement state of an order.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "Pending"
	PaymentStatusPaid      PaymentStatus = "Paid"
	PaymentStatusFailed    PaymentStatus = "Failed"
	PaymentStatusRefunded  PaymentStatus = "Refunded"
	PaymentStatusCancelled PaymentStatus = "Cancelled"
)

// OrderStatus captures the lifecycle of an order as a whole.
type OrderStatus string

const (
	OrderStatusActive    OrderStatus = "Active"
	OrderStatusCompleted OrderStatus = "Completed"
	OrderStatusCancelled OrderStatus = "Cancelled"
)

// DeliveryStatus tracks fulfilment progress.
type DeliveryStatus string

const (
	DeliveryStatusPending        DeliveryStatus = "Pending"
	DeliveryStatusProcessing     DeliveryStatus = "Processing"
	DeliveryStatusShipped        DeliveryStatus = "Shipped"
	DeliveryStatusOutForDelivery DeliveryStatus = "Out for Delivery"
	DeliveryStatusDelivered      DeliveryStatus = "Delivered"
	DeliveryStatusCancelled      DeliveryStatus = "Cancelled"
)

// InvoiceStatus tracks asynchronous invoice generation.
type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "PENDING"
	InvoiceStatusReady   InvoiceStatus = "READY"
	InvoiceStatusFailed  InvoiceStatus = "FAILED"
)

var deliveryProgression = []DeliveryStatus{
	DeliveryStatusPending,
	DeliveryStatusProcessing,
	DeliveryStatusShipped,
	DeliveryStatusOutForDelivery,
	DeliveryStatusDelivered,
}

// DeliveryRank returns the position of the status along the forward delivery path, or -1 when the
// status is not part of it (Cancelled, unknown values).
func DeliveryRank(status DeliveryStatus) int {
	for i, s := range deliveryProgression {
		if s == status {
			return i
		}
	}
	return -1
}

// ParseDeliveryStatus normalises user supplied delivery status strings.
func ParseDeliveryStatus(value string) (DeliveryStatus, bool) {
	value = strings.TrimSpace(value)
	for _, s := range append(deliveryProgression, DeliveryStatusCancelled) {
		if strings.EqualFold(string(s), value) {
			return s, true
		}
	}
	return "", false
}

// ParsePaymentStatus normalises user supplied payment status strings.
func ParsePaymentStatus(value string) (PaymentStatus, bool) {
	value = strings.TrimSpace(value)
	for _, s := range []PaymentStatus{PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded, PaymentStatusCancelled} {
		if strings.EqualFold(string(s), value) {
			return s, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further delivery updates are accepted.
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryStatusDelivered || s == DeliveryStatusCancelled
}

// IsTerminal reports whether the order has left the Active state.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// IsLocked reports whether the payment status can no longer change.
func (s PaymentStatus) IsLocked() bool {
	return s == PaymentStatusPaid || s == PaymentStatusRefunded
}

// Address is a user-owned delivery address.
type Address struct {
	ID       string
	UserID   string
	FullName string
	Phone    string
	Email    string
	Line1    string
	Line2    string
	City     string
	State    string
	Pincode  string
	Country  string
}

// User is the minimal customer profile needed for order processing.
type User struct {
	ID       string
	FullName string
	Email    string
	Phone    string
}

// StockRecord is the authoritative available quantity and pricing for one product size.
type StockRecord struct {
	Key        string
	ProductID  string
	VariantID  string
	Name       string
	Size       string
	Available  int
	UnitPrice  int64
	OfferPrice int64
	Version    int64
	UpdatedAt  time.Time
}

// CartItem is a pending purchase intent, unique per (UserID, VariantID, SizeID).
type CartItem struct {
	ID        string
	UserID    string
	VariantID string
	SizeID    string
	Quantity  int
	LineTotal int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItemID derives the deterministic cart item identifier for the uniqueness triple.
func CartItemID(userID, variantID, sizeID string) string {
	return strings.Join([]string{"ci", strings.TrimSpace(userID), strings.TrimSpace(variantID), strings.TrimSpace(sizeID)}, "_")
}

// ChargesSnapshot is the derived pricing of a user's cart. Amounts are minor units.
type ChargesSnapshot struct {
	ID                 string
	UserID             string
	TotalQuantity      int
	TotalPrice         int64
	DiscountPrice      int64
	Tax                int64
	DeliveryCharge     int64
	HandlingCharge     int64
	TotalPayableAmount int64
	UpdatedAt          time.Time
}

// OrderCharges is the frozen copy of a ChargesSnapshot stored on an order.
type OrderCharges struct {
	TotalQuantity      int
	TotalPrice         int64
	DiscountPrice      int64
	Tax                int64
	DeliveryCharge     int64
	HandlingCharge     int64
	TotalPayableAmount int64
}

// FreezeCharges copies the snapshot amounts onto an immutable order value.
func FreezeCharges(s ChargesSnapshot) OrderCharges {
	return OrderCharges{
		TotalQuantity:      s.TotalQuantity,
		TotalPrice:         s.TotalPrice,
		DiscountPrice:      s.DiscountPrice,
		Tax:                s.Tax,
		DeliveryCharge:     s.DeliveryCharge,
		HandlingCharge:     s.HandlingCharge,
		TotalPayableAmount: s.TotalPayableAmount,
	}
}

// PaymentReference records gateway identifiers for online orders.
type PaymentReference struct {
	Provider        string
	RemoteOrderID   string
	RemotePaymentID string
	Signature       string
}

// Order is the committed purchase record.
type Order struct {
	ID             string
	UserID         string
	AddressID      string
	Charges        OrderCharges
	PaymentMode    PaymentMode
	PaymentStatus  PaymentStatus
	OrderStatus    OrderStatus
	DeliveryStatus DeliveryStatus
	InvoiceStatus  InvoiceStatus
	InvoiceURL     string
	InvoiceKey     string
	Payment        *PaymentReference
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeliveredAt    *time.Time
	CancelledAt    *time.Time
}

// OrderLineItem is an immutable purchased line whose price is fixed at commit time.
type OrderLineItem struct {
	ID        string
	OrderID   string
	VariantID string
	SizeID    string
	Name      string
	Size      string
	Quantity  int
	Price     int64
}

// InvoiceJob requests asynchronous invoice generation for an order.
type InvoiceJob struct {
	OrderID string   `json:"orderId"`
	UserID  string   `json:"userId"`
	Address *Address `json:"address,omitempty"`
}

// EmailKind classifies transactional mail.
type EmailKind string

const (
	EmailKindInvoice      EmailKind = "invoice"
	EmailKindPayment      EmailKind = "payment"
	EmailKindDelivery     EmailKind = "delivery"
	EmailKindCancellation EmailKind = "cancellation"
)

// EmailJob requests delivery of a transactional email.
type EmailJob struct {
	Kind        EmailKind `json:"kind"`
	OrderID     string    `json:"orderId"`
	To          []string  `json:"to"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	InvoiceURL  string    `json:"invoiceUrl,omitempty"`
	Attachment  string    `json:"attachment,omitempty"`
	AttachedKey string    `json:"attachedKey,omitempty"`
}

// Realtime event names.
const (
	EventOrderCreated  = "ORDER_CREATED"
	EventOrderUpdated  = "ORDER_UPDATED"
	EventInvoiceReady  = "INVOICE_READY"
	EventInvoiceFailed = "INVOICE_FAILED"
)

// Realtime room names.
const RoomAdmin = "ADMIN"

// UserRoom returns the realtime room that receives per-user order events.
func UserRoom(userID string) string {
	return "USER_" + strings.TrimSpace(userID)
}
