// Package invoice renders order invoices as PDF documents.
package invoice

import (
	"errors"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	domain "github.com/Abhranil-01/dsport-backend-api/internal/domain"
)

const (
	defaultStoreName = "DSport"
	defaultTagline   = "All Sports. One Store."
	currencyPrefix   = "Rs. "
	pageMargin       = 14.0
)

// Document is everything printed on an invoice. Amounts come from the frozen order charges.
type Document struct {
	Order    domain.Order
	Items    []domain.OrderLineItem
	Customer domain.User
	Address  *domain.Address
}

// Renderer draws invoices.
type Renderer struct {
	storeName string
	tagline   string
	sanitizer *bluemonday.Policy
	printer   *message.Printer
	clock     func() time.Time
	compress  bool
}

// Option customises a Renderer.
type Option func(*Renderer)

// WithStoreName sets the heading printed on every invoice.
func WithStoreName(name string) Option {
	return func(r *Renderer) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			r.storeName = trimmed
		}
	}
}

// WithClock overrides the clock used for the footer year.
func WithClock(clock func() time.Time) Option {
	return func(r *Renderer) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// NewRenderer constructs a renderer.
func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{
		storeName: defaultStoreName,
		tagline:   defaultTagline,
		sanitizer: bluemonday.StrictPolicy(),
		printer:   message.NewPrinter(language.English),
		clock:     time.Now,
		compress:  true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// FormatAmount renders minor units as a grouped major amount, e.g. 123450 -> "Rs. 1,234.50".
func (r *Renderer) FormatAmount(minor int64) string {
	return currencyPrefix + r.printer.Sprintf("%.2f", domain.MajorUnits(minor))
}

// RenderFile writes the invoice PDF to path.
func (r *Renderer) RenderFile(doc Document, path string) error {
	pdf, err := r.build(doc)
	if err != nil {
		return err
	}
	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("invoice: write %s: %w", path, err)
	}
	return nil
}

// Render writes the invoice PDF to w.
func (r *Renderer) Render(w io.Writer, doc Document) error {
	pdf, err := r.build(doc)
	if err != nil {
		return err
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("invoice: render: %w", err)
	}
	return nil
}

func (r *Renderer) build(doc Document) (*fpdf.Fpdf, error) {
	if strings.TrimSpace(doc.Order.ID) == "" {
		return nil, errors.New("invoice: order id is required")
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(r.compress)
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetTitle("Invoice "+doc.Order.ID, false)
	pdf.SetCreator(r.storeName, false)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	text := func(s string) string { return tr(r.clean(s)) }

	r.header(pdf, doc.Order, text)
	r.billing(pdf, doc, text)
	r.lines(pdf, doc.Items, text)
	r.summary(pdf, doc.Order.Charges)
	r.footer(pdf)

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("invoice: build: %w", err)
	}
	return pdf, nil
}

func (r *Renderer) header(pdf *fpdf.Fpdf, order domain.Order, text func(string) string) {
	pdf.SetFont("Helvetica", "B", 22)
	pdf.SetTextColor(13, 110, 253)
	pdf.CellFormat(0, 10, text(r.storeName), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(128, 128, 128)
	pdf.CellFormat(0, 5, text(r.tagline), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "", 11)
	for _, line := range []string{
		"Invoice ID: " + order.ID,
		"Date: " + order.CreatedAt.UTC().Format("02 Jan 2006"),
		"Payment Mode: " + orNA(string(order.PaymentMode)),
		"Payment Status: " + orNA(string(order.PaymentStatus)),
	} {
		pdf.CellFormat(0, 6, text(line), "", 1, "R", false, 0, "")
	}
	pdf.Ln(8)
}

func (r *Renderer) billing(pdf *fpdf.Fpdf, doc Document, text func(string) string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetTextColor(13, 110, 253)
	pdf.CellFormat(0, 7, "Billing & Shipping Details", "", 1, "L", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "", 10)

	addr := domain.Address{}
	if doc.Address != nil {
		addr = *doc.Address
	}
	name := firstNonEmpty(addr.FullName, doc.Customer.FullName, "Customer")
	street := strings.TrimSpace(strings.Join(nonEmpty(addr.Line1, addr.Line2), ", "))
	locality := fmt.Sprintf("%s, %s - %s", addr.City, addr.State, addr.Pincode)
	lines := []string{name, street}
	if strings.Trim(locality, " ,-") != "" {
		lines = append(lines, locality)
	}
	lines = append(lines,
		firstNonEmpty(addr.Country, "India"),
		"Phone: "+firstNonEmpty(addr.Phone, doc.Customer.Phone, "N/A"),
		"Email: "+firstNonEmpty(addr.Email, doc.Customer.Email, "N/A"),
	)
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		pdf.CellFormat(0, 5, text(line), "", 1, "L", false, 0, "")
	}
	pdf.Ln(8)
}

func (r *Renderer) lines(pdf *fpdf.Fpdf, items []domain.OrderLineItem, text func(string) string) {
	widths := []float64{10, 92, 26, 18, 36}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(240, 240, 240)
	for i, head := range []string{"#", "Product", "Size", "Qty", "Price"} {
		align := "L"
		if i >= 3 {
			align = "R"
		}
		pdf.CellFormat(widths[i], 8, head, "B", 0, align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	for i, item := range items {
		cells := []string{
			strconv.Itoa(i + 1),
			text(firstNonEmpty(item.Name, item.VariantID, "Unknown Product")),
			text(firstNonEmpty(item.Size, "Default")),
			strconv.Itoa(item.Quantity),
			r.FormatAmount(item.Price),
		}
		for j, cell := range cells {
			align := "L"
			if j >= 3 {
				align = "R"
			}
			pdf.CellFormat(widths[j], 7, cell, "", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(6)
}

func (r *Renderer) summary(pdf *fpdf.Fpdf, c domain.OrderCharges) {
	pdf.SetFont("Helvetica", "", 10)
	rows := []struct {
		label  string
		amount string
	}{
		{"Subtotal", r.FormatAmount(c.TotalPrice)},
		{"Discount", "-" + r.FormatAmount(c.DiscountPrice)},
		{"Tax", r.FormatAmount(c.Tax)},
		{"Delivery", r.FormatAmount(c.DeliveryCharge)},
		{"Handling", r.FormatAmount(c.HandlingCharge)},
	}
	for _, row := range rows {
		pdf.CellFormat(146, 6, row.label+":", "", 0, "R", false, 0, "")
		pdf.CellFormat(36, 6, row.amount, "", 1, "R", false, 0, "")
	}
	pdf.Ln(2)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(146, 8, "Total Payable:", "T", 0, "R", false, 0, "")
	pdf.CellFormat(36, 8, r.FormatAmount(c.TotalPayableAmount), "T", 1, "R", false, 0, "")
}

func (r *Renderer) footer(pdf *fpdf.Fpdf) {
	pdf.Ln(14)
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(128, 128, 128)
	pdf.CellFormat(0, 5, "This is a system generated invoice. No signature required.", "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 5, fmt.Sprintf("(c) %d %s. All rights reserved.", r.clock().Year(), r.storeName), "", 1, "C", false, 0, "")
}

func (r *Renderer) clean(s string) string {
	return strings.TrimSpace(html.UnescapeString(r.sanitizer.Sanitize(s)))
}

func orNA(s string) string {
	return firstNonEmpty(s, "N/A")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, strings.TrimSpace(v))
		}
	}
	return out
}
