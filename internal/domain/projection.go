package domain

import "time"

// CartLineView is the read model for a cart line joined to current stock pricing.
type CartLineView struct {
	ID         string  `json:"id"`
	VariantID  string  `json:"variantId"`
	SizeID     string  `json:"sizeId"`
	Name       string  `json:"name,omitempty"`
	Size       string  `json:"size,omitempty"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unitPrice"`
	OfferPrice float64 `json:"offerPrice"`
	TotalPrice float64 `json:"totalPrice"`
	InStock    int     `json:"inStock"`
}

// ChargesView is the read model for a charges snapshot in major units.
type ChargesView struct {
	ID                 string  `json:"id"`
	TotalQuantity      int     `json:"totalQuantity"`
	TotalPrice         float64 `json:"totalPrice"`
	DiscountPrice      float64 `json:"discountPrice"`
	Tax                float64 `json:"tax"`
	DeliveryCharge     float64 `json:"deliveryCharge"`
	HandlingCharge     float64 `json:"handlingCharge"`
	TotalPayableAmount float64 `json:"totalPayableAmount"`
}

// OrderLineView is the read model for a purchased line.
type OrderLineView struct {
	ID        string  `json:"id"`
	VariantID string  `json:"variantId"`
	SizeID    string  `json:"sizeId"`
	Name      string  `json:"name,omitempty"`
	Size      string  `json:"size,omitempty"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// OrderView is the read model returned to clients for an order.
type OrderView struct {
	ID             string          `json:"id"`
	UserID         string          `json:"userId"`
	AddressID      string          `json:"addressId"`
	Charges        ChargesView     `json:"charges"`
	PaymentMode    PaymentMode     `json:"paymentMode"`
	PaymentStatus  PaymentStatus   `json:"paymentStatus"`
	OrderStatus    OrderStatus     `json:"orderStatus"`
	DeliveryStatus DeliveryStatus  `json:"deliveryStatus"`
	InvoiceStatus  InvoiceStatus   `json:"invoiceStatus"`
	InvoiceURL     string          `json:"invoiceUrl,omitempty"`
	Items          []OrderLineView `json:"items,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	DeliveredAt    *time.Time      `json:"deliveredAt,omitempty"`
	CancelledAt    *time.Time      `json:"cancelledAt,omitempty"`
}

// ProjectCartLine joins a cart item to its stock record.
func ProjectCartLine(item CartItem, stock StockRecord) CartLineView {
	return CartLineView{
		ID:         item.ID,
		VariantID:  item.VariantID,
		SizeID:     item.SizeID,
		Name:       stock.Name,
		Size:       stock.Size,
		Quantity:   item.Quantity,
		UnitPrice:  MajorUnits(stock.UnitPrice),
		OfferPrice: MajorUnits(stock.OfferPrice),
		TotalPrice: MajorUnits(stock.OfferPrice * int64(item.Quantity)),
		InStock:    stock.Available,
	}
}

// ProjectCharges converts a snapshot into its client representation.
func ProjectCharges(s ChargesSnapshot) ChargesView {
	view := projectAmounts(FreezeCharges(s))
	view.ID = s.ID
	return view
}

// ProjectOrder converts an order and its lines into the client representation.
func ProjectOrder(order Order, items []OrderLineItem) OrderView {
	view := OrderView{
		ID:             order.ID,
		UserID:         order.UserID,
		AddressID:      order.AddressID,
		Charges:        projectAmounts(order.Charges),
		PaymentMode:    order.PaymentMode,
		PaymentStatus:  order.PaymentStatus,
		OrderStatus:    order.OrderStatus,
		DeliveryStatus: order.DeliveryStatus,
		InvoiceStatus:  order.InvoiceStatus,
		InvoiceURL:     order.InvoiceURL,
		CreatedAt:      order.CreatedAt,
		UpdatedAt:      order.UpdatedAt,
		DeliveredAt:    order.DeliveredAt,
		CancelledAt:    order.CancelledAt,
	}
	if len(items) > 0 {
		view.Items = make([]OrderLineView, 0, len(items))
		for _, item := range items {
			view.Items = append(view.Items, OrderLineView{
				ID:        item.ID,
				VariantID: item.VariantID,
				SizeID:    item.SizeID,
				Name:      item.Name,
				Size:      item.Size,
				Quantity:  item.Quantity,
				Price:     MajorUnits(item.Price),
			})
		}
	}
	return view
}

// ProjectOrderEvent builds the realtime payload describing an order's current state.
func ProjectOrderEvent(order Order) map[string]any {
	payload := map[string]any{
		"orderId":        order.ID,
		"orderStatus":    order.OrderStatus,
		"deliveryStatus": order.DeliveryStatus,
		"paymentStatus":  order.PaymentStatus,
		"invoiceStatus":  order.InvoiceStatus,
	}
	if order.InvoiceURL != "" {
		payload["invoiceUrl"] = order.InvoiceURL
	}
	return payload
}

func projectAmounts(c OrderCharges) ChargesView {
	return ChargesView{
		TotalQuantity:      c.TotalQuantity,
		TotalPrice:         MajorUnits(c.TotalPrice),
		DiscountPrice:      MajorUnits(c.DiscountPrice),
		Tax:                MajorUnits(c.Tax),
		DeliveryCharge:     MajorUnits(c.DeliveryCharge),
		HandlingCharge:     MajorUnits(c.HandlingCharge),
		TotalPayableAmount: MajorUnits(c.TotalPayableAmount),
	}
}
