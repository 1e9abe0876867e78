package invoice

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	domain "github.com/Abhranil-01/dsport-backend-api/internal/domain"
)

func sampleDocument() Document {
	created := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	return Document{
		Order: domain.Order{
			ID:            "ord_01HZXA",
			UserID:        "user-1",
			PaymentMode:   domain.PaymentModeCOD,
			PaymentStatus: domain.PaymentStatusPending,
			CreatedAt:     created,
			Charges: domain.OrderCharges{
				TotalQuantity:      3,
				TotalPrice:         123450,
				DiscountPrice:      20000,
				Tax:                1800,
				TotalPayableAmount: 125250,
			},
		},
		Items: []domain.OrderLineItem{
			{ID: "li_1", Name: "Cricket Bat <script>alert(1)</script>", Size: "SH", Quantity: 1, Price: 99900},
			{ID: "li_2", Name: "Grip Tape", Quantity: 2, Price: 23550},
		},
		Customer: domain.User{ID: "user-1", FullName: "Asha Rao", Email: "asha@example.com"},
		Address: &domain.Address{
			FullName: "Asha Rao",
			Line1:    "12 MG Road",
			City:     "Bengaluru",
			State:    "KA",
			Pincode:  "560001",
			Phone:    "9999999999",
		},
	}
}

func uncompressedRenderer() *Renderer {
	r := NewRenderer(WithClock(func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }))
	r.compress = false
	return r
}

func TestFormatAmountGroupsDigits(t *testing.T) {
	r := NewRenderer()
	cases := map[int64]string{
		0:        "Rs. 0.00",
		5000:     "Rs. 50.00",
		123450:   "Rs. 1,234.50",
		10000000: "Rs. 100,000.00",
	}
	for minor, want := range cases {
		if got := r.FormatAmount(minor); got != want {
			t.Fatalf("FormatAmount(%d): expected %q, got %q", minor, want, got)
		}
	}
}

func TestRenderWritesInvoiceContent(t *testing.T) {
	var buf bytes.Buffer
	if err := uncompressedRenderer().Render(&buf, sampleDocument()); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "%PDF-") {
		t.Fatalf("expected PDF header, got %q", out[:min(len(out), 16)])
	}
	for _, want := range []string{"Invoice ID: ord_01HZXA", "Asha Rao", "Rs. 1,234.50", "Rs. 1,252.50", "Grip Tape", "Default"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected invoice to contain %q", want)
		}
	}
	if strings.Contains(out, "<script>") {
		t.Fatalf("expected markup to be stripped")
	}
}

func TestRenderFileWritesPDF(t *testing.T) {
	dir := t.TempDir()
	r := NewRenderer()
	first := filepath.Join(dir, "a.pdf")
	if err := r.RenderFile(sampleDocument(), first); err != nil {
		t.Fatalf("RenderFile: %v", err)
	}
	info, err := os.Stat(first)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("expected non-empty pdf")
	}
}

func TestRenderRequiresOrderID(t *testing.T) {
	doc := sampleDocument()
	doc.Order.ID = " "
	if err := NewRenderer().Render(&bytes.Buffer{}, doc); err == nil {
		t.Fatal("expected error without order id")
	}
}

func TestCleanUnescapesSanitisedText(t *testing.T) {
	r := NewRenderer()
	if got := r.clean("<b>Bat & Ball</b>"); got != "Bat & Ball" {
		t.Fatalf("unexpected clean result %q", got)
	}
}
