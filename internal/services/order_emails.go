package services

import (
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	domain "github.com/Abhranil-01/dsport-backend-api/internal/domain"
)

const (
	subjectPaymentUpdated  = "Payment Status Updated"
	subjectDeliveryUpdated = "Delivery Status Updated"
	subjectOrderCancelled  = "Your order has been cancelled"
)

// orderMailer composes the plain-text transactional emails attached to order events.
type orderMailer struct {
	storeName string
	sanitizer *bluemonday.Policy
	printer   *message.Printer
}

func newOrderMailer(storeName string) *orderMailer {
	if strings.TrimSpace(storeName) == "" {
		storeName = "Dsport"
	}
	return &orderMailer{
		storeName: storeName,
		sanitizer: bluemonday.StrictPolicy(),
		printer:   message.NewPrinter(language.English),
	}
}

// recipients returns the account email followed by the delivery contact, deduplicated.
func recipients(user domain.User, address *domain.Address) []string {
	seen := make(map[string]struct{}, 2)
	var out []string
	add := func(email string) {
		email = strings.TrimSpace(email)
		if email == "" {
			return
		}
		key := strings.ToLower(email)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, email)
	}
	add(user.Email)
	if address != nil {
		add(address.Email)
	}
	return out
}

func (m *orderMailer) payment(order domain.Order, user domain.User, to []string) domain.EmailJob {
	body := m.greeting(user) +
		fmt.Sprintf("The payment status of your order %s is now %s.\n\n", order.ID, order.PaymentStatus) +
		m.amountLine(order) + m.signature()
	return domain.EmailJob{Kind: domain.EmailKindPayment, OrderID: order.ID, To: to, Subject: subjectPaymentUpdated, Body: body}
}

func (m *orderMailer) delivery(order domain.Order, user domain.User, to []string) domain.EmailJob {
	body := m.greeting(user) +
		fmt.Sprintf("The delivery status of your order %s is now %s.\n\n", order.ID, order.DeliveryStatus) +
		m.signature()
	return domain.EmailJob{Kind: domain.EmailKindDelivery, OrderID: order.ID, To: to, Subject: subjectDeliveryUpdated, Body: body}
}

func (m *orderMailer) cancellation(order domain.Order, user domain.User, to []string) domain.EmailJob {
	body := m.greeting(user) +
		fmt.Sprintf("Your order %s has been cancelled. Payment status: %s.\n\n", order.ID, order.PaymentStatus) +
		m.amountLine(order) + m.signature()
	return domain.EmailJob{Kind: domain.EmailKindCancellation, OrderID: order.ID, To: to, Subject: subjectOrderCancelled, Body: body}
}

func (m *orderMailer) invoice(order domain.Order, user domain.User, to []string, url, key string) domain.EmailJob {
	body := m.greeting(user) +
		fmt.Sprintf("Thank you for shopping with %s. Your order %s has been placed on %s.\n\n",
			m.storeName, order.ID, order.CreatedAt.Format("02 Jan 2006")) +
		m.amountLine(order) +
		"Your invoice is attached to this email"
	if url != "" {
		body += " and can also be downloaded from " + url
	}
	body += ".\n\n" + m.signature()
	return domain.EmailJob{
		Kind:        domain.EmailKindInvoice,
		OrderID:     order.ID,
		To:          to,
		Subject:     "Invoice - Order " + order.ID,
		Body:        body,
		InvoiceURL:  url,
		Attachment:  "Invoice_" + order.ID + ".pdf",
		AttachedKey: key,
	}
}

func (m *orderMailer) greeting(user domain.User) string {
	name := strings.TrimSpace(html.UnescapeString(m.sanitizer.Sanitize(user.FullName)))
	if name == "" {
		name = "there"
	}
	return "Hi " + name + ",\n\n"
}

func (m *orderMailer) amountLine(order domain.Order) string {
	return "Order total: Rs. " + m.printer.Sprintf("%.2f", domain.MajorUnits(order.Charges.TotalPayableAmount)) + "\n\n"
}

func (m *orderMailer) signature() string {
	return "Regards,\n" + m.storeName + "\n"
}
