package firestore

import (
	"time"

	domain "github.com/Abhranil-01/dsport-backend-api/internal/domain"
)

const (
	addressesCollection  = "addresses"
	usersCollection      = "users"
	cartItemsCollection  = "cartItems"
	stockCollection      = "stockRecords"
	chargesCollection    = "charges"
	ordersCollection     = "orders"
	orderItemsCollection = "orderItems"
)

type addressDocument struct {
	UserID   string `firestore:"userId"`
	FullName string `firestore:"fullName"`
	Phone    string `firestore:"phone"`
	Email    string `firestore:"email"`
	Line1    string `firestore:"line1"`
	Line2    string `firestore:"line2,omitempty"`
	City     string `firestore:"city"`
	State    string `firestore:"state"`
	Pincode  string `firestore:"pincode"`
	Country  string `firestore:"country"`
}

func (d addressDocument) toDomain(id string) domain.Address {
	return domain.Address{
		ID:       id,
		UserID:   d.UserID,
		FullName: d.FullName,
		Phone:    d.Phone,
		Email:    d.Email,
		Line1:    d.Line1,
		Line2:    d.Line2,
		City:     d.City,
		State:    d.State,
		Pincode:  d.Pincode,
		Country:  d.Country,
	}
}

func newAddressDocument(a domain.Address) addressDocument {
	return addressDocument{
		UserID:   a.UserID,
		FullName: a.FullName,
		Phone:    a.Phone,
		Email:    a.Email,
		Line1:    a.Line1,
		Line2:    a.Line2,
		City:     a.City,
		State:    a.State,
		Pincode:  a.Pincode,
		Country:  a.Country,
	}
}

type userDocument struct {
	FullName string `firestore:"fullName"`
	Email    string `firestore:"email"`
	Phone    string `firestore:"phone,omitempty"`
}

type cartItemDocument struct {
	UserID    string    `firestore:"userId"`
	VariantID string    `firestore:"variantId"`
	SizeID    string    `firestore:"sizeId"`
	Quantity  int       `firestore:"quantity"`
	LineTotal int64     `firestore:"totalPrice"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func (d cartItemDocument) toDomain(id string) domain.CartItem {
	return domain.CartItem{
		ID:        id,
		UserID:    d.UserID,
		VariantID: d.VariantID,
		SizeID:    d.SizeID,
		Quantity:  d.Quantity,
		LineTotal: d.LineTotal,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func newCartItemDocument(item domain.CartItem) cartItemDocument {
	return cartItemDocument{
		UserID:    item.UserID,
		VariantID: item.VariantID,
		SizeID:    item.SizeID,
		Quantity:  item.Quantity,
		LineTotal: item.LineTotal,
		CreatedAt: item.CreatedAt.UTC(),
		UpdatedAt: item.UpdatedAt.UTC(),
	}
}

type stockDocument struct {
	ProductID  string    `firestore:"productId"`
	VariantID  string    `firestore:"variantId"`
	Name       string    `firestore:"name"`
	Size       string    `firestore:"size"`
	Available  int       `firestore:"stock"`
	UnitPrice  int64     `firestore:"price"`
	OfferPrice int64     `firestore:"offerPrice"`
	Version    int64     `firestore:"version"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func (d stockDocument) toDomain(key string) domain.StockRecord {
	return domain.StockRecord{
		Key:        key,
		ProductID:  d.ProductID,
		VariantID:  d.VariantID,
		Name:       d.Name,
		Size:       d.Size,
		Available:  d.Available,
		UnitPrice:  d.UnitPrice,
		OfferPrice: d.OfferPrice,
		Version:    d.Version,
		UpdatedAt:  d.UpdatedAt,
	}
}

func newStockDocument(s domain.StockRecord) stockDocument {
	return stockDocument{
		ProductID:  s.ProductID,
		VariantID:  s.VariantID,
		Name:       s.Name,
		Size:       s.Size,
		Available:  s.Available,
		UnitPrice:  s.UnitPrice,
		OfferPrice: s.OfferPrice,
		Version:    s.Version,
		UpdatedAt:  s.UpdatedAt.UTC(),
	}
}

type chargesDocument struct {
	TotalQuantity      int       `firestore:"totalQuantity"`
	TotalPrice         int64     `firestore:"totalPrice"`
	DiscountPrice      int64     `firestore:"discountPrice"`
	Tax                int64     `firestore:"tax"`
	DeliveryCharge     int64     `firestore:"deliveryCharge"`
	HandlingCharge     int64     `firestore:"handlingCharge"`
	TotalPayableAmount int64     `firestore:"totalPayableAmount"`
	UpdatedAt          time.Time `firestore:"updatedAt"`
}

func (d chargesDocument) toDomain(userID string) domain.ChargesSnapshot {
	return domain.ChargesSnapshot{
		ID:                 userID,
		UserID:             userID,
		TotalQuantity:      d.TotalQuantity,
		TotalPrice:         d.TotalPrice,
		DiscountPrice:      d.DiscountPrice,
		Tax:                d.Tax,
		DeliveryCharge:     d.DeliveryCharge,
		HandlingCharge:     d.HandlingCharge,
		TotalPayableAmount: d.TotalPayableAmount,
		UpdatedAt:          d.UpdatedAt,
	}
}

func newChargesDocument(s domain.ChargesSnapshot) chargesDocument {
	return chargesDocument{
		TotalQuantity:      s.TotalQuantity,
		TotalPrice:         s.TotalPrice,
		DiscountPrice:      s.DiscountPrice,
		Tax:                s.Tax,
		DeliveryCharge:     s.DeliveryCharge,
		HandlingCharge:     s.HandlingCharge,
		TotalPayableAmount: s.TotalPayableAmount,
		UpdatedAt:          s.UpdatedAt.UTC(),
	}
}

type orderChargesDocument struct {
	TotalQuantity      int   `firestore:"totalQuantity"`
	TotalPrice         int64 `firestore:"totalPrice"`
	DiscountPrice      int64 `firestore:"discountPrice"`
	Tax                int64 `firestore:"tax"`
	DeliveryCharge     int64 `firestore:"deliveryCharge"`
	HandlingCharge     int64 `firestore:"handlingCharge"`
	TotalPayableAmount int64 `firestore:"totalPayableAmount"`
}

type paymentDocument struct {
	Provider        string `firestore:"provider"`
	RemoteOrderID   string `firestore:"remoteOrderId"`
	RemotePaymentID string `firestore:"remotePaymentId"`
	Signature       string `firestore:"signature"`
}

type orderDocument struct {
	UserID         string               `firestore:"userId"`
	AddressID      string               `firestore:"addressId"`
	Charges        orderChargesDocument `firestore:"charges"`
	PaymentMode    string               `firestore:"paymentMode"`
	PaymentStatus  string               `firestore:"paymentStatus"`
	OrderStatus    string               `firestore:"orderStatus"`
	DeliveryStatus string               `firestore:"deliveryStatus"`
	InvoiceStatus  string               `firestore:"invoiceStatus"`
	InvoiceURL     string               `firestore:"invoiceUrl,omitempty"`
	InvoiceKey     string               `firestore:"invoiceKey,omitempty"`
	Payment        *paymentDocument     `firestore:"payment,omitempty"`
	Version        int64                `firestore:"version"`
	CreatedAt      time.Time            `firestore:"createdAt"`
	UpdatedAt      time.Time            `firestore:"updatedAt"`
	DeliveredAt    *time.Time           `firestore:"deliveredAt,omitempty"`
	CancelledAt    *time.Time           `firestore:"cancelledAt,omitempty"`
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:        id,
		UserID:    d.UserID,
		AddressID: d.AddressID,
		Charges: domain.OrderCharges{
			TotalQuantity:      d.Charges.TotalQuantity,
			TotalPrice:         d.Charges.TotalPrice,
			DiscountPrice:      d.Charges.DiscountPrice,
			Tax:                d.Charges.Tax,
			DeliveryCharge:     d.Charges.DeliveryCharge,
			HandlingCharge:     d.Charges.HandlingCharge,
			TotalPayableAmount: d.Charges.TotalPayableAmount,
		},
		PaymentMode:    domain.PaymentMode(d.PaymentMode),
		PaymentStatus:  domain.PaymentStatus(d.PaymentStatus),
		OrderStatus:    domain.OrderStatus(d.OrderStatus),
		DeliveryStatus: domain.DeliveryStatus(d.DeliveryStatus),
		InvoiceStatus:  domain.InvoiceStatus(d.InvoiceStatus),
		InvoiceURL:     d.InvoiceURL,
		InvoiceKey:     d.InvoiceKey,
		Version:        d.Version,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		DeliveredAt:    d.DeliveredAt,
		CancelledAt:    d.CancelledAt,
	}
	if d.Payment != nil {
		order.Payment = &domain.PaymentReference{
			Provider:        d.Payment.Provider,
			RemoteOrderID:   d.Payment.RemoteOrderID,
			RemotePaymentID: d.Payment.RemotePaymentID,
			Signature:       d.Payment.Signature,
		}
	}
	return order
}

func newOrderDocument(o domain.Order) orderDocument {
	doc := orderDocument{
		UserID:    o.UserID,
		AddressID: o.AddressID,
		Charges: orderChargesDocument{
			TotalQuantity:      o.Charges.TotalQuantity,
			TotalPrice:         o.Charges.TotalPrice,
			DiscountPrice:      o.Charges.DiscountPrice,
			Tax:                o.Charges.Tax,
			DeliveryCharge:     o.Charges.DeliveryCharge,
			HandlingCharge:     o.Charges.HandlingCharge,
			TotalPayableAmount: o.Charges.TotalPayableAmount,
		},
		PaymentMode:    string(o.PaymentMode),
		PaymentStatus:  string(o.PaymentStatus),
		OrderStatus:    string(o.OrderStatus),
		DeliveryStatus: string(o.DeliveryStatus),
		InvoiceStatus:  string(o.InvoiceStatus),
		InvoiceURL:     o.InvoiceURL,
		InvoiceKey:     o.InvoiceKey,
		Version:        o.Version,
		CreatedAt:      o.CreatedAt.UTC(),
		UpdatedAt:      o.UpdatedAt.UTC(),
		DeliveredAt:    o.DeliveredAt,
		CancelledAt:    o.CancelledAt,
	}
	if o.Payment != nil {
		doc.Payment = &paymentDocument{
			Provider:        o.Payment.Provider,
			RemoteOrderID:   o.Payment.RemoteOrderID,
			RemotePaymentID: o.Payment.RemotePaymentID,
			Signature:       o.Payment.Signature,
		}
	}
	return doc
}

type lineItemDocument struct {
	OrderID   string `firestore:"orderId"`
	VariantID string `firestore:"variantId"`
	SizeID    string `firestore:"sizeId"`
	Name      string `firestore:"name"`
	Size      string `firestore:"size"`
	Quantity  int    `firestore:"quantity"`
	Price     int64  `firestore:"price"`
}

func (d lineItemDocument) toDomain(id string) domain.OrderLineItem {
	return domain.OrderLineItem{
		ID:        id,
		OrderID:   d.OrderID,
		VariantID: d.VariantID,
		SizeID:    d.SizeID,
		Name:      d.Name,
		Size:      d.Size,
		Quantity:  d.Quantity,
		Price:     d.Price,
	}
}

func newLineItemDocument(item domain.OrderLineItem) lineItemDocument {
	return lineItemDocument{
		OrderID:   item.OrderID,
		VariantID: item.VariantID,
		SizeID:    item.SizeID,
		Name:      item.Name,
		Size:      item.Size,
		Quantity:  item.Quantity,
		Price:     item.Price,
	}
}
