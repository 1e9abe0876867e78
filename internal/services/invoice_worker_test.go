package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	domain "github.com/Abhranil-01/dsport-backend-api/internal/domain"
	"github.com/Abhranil-01/dsport-backend-api/internal/invoice"
	"github.com/Abhranil-01/dsport-backend-api/internal/platform/storage"
)

type stubRenderer struct {
	renderFn func(invoice.Document, string) error
}

func (s *stubRenderer) RenderFile(doc invoice.Document, path string) error {
	if s.renderFn != nil {
		return s.renderFn(doc, path)
	}
	return os.WriteFile(path, []byte("%PDF-1.4 "+doc.Order.ID), 0o600)
}

type invoiceFixture struct {
	*orderFixture
	worker   *InvoiceWorker
	store    *storage.LocalStore
	storeDir string
	tempDir  string
	emailQ   *recordingEmailQueue
}

func newInvoiceFixture(t *testing.T, renderer InvoiceRenderer) *invoiceFixture {
	t.Helper()
	f := newOrderFixture(t)
	storeDir := t.TempDir()
	store, err := storage.NewLocalStore(storeDir, "https://cdn.example.com")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	tempDir := t.TempDir()
	emailQ := &recordingEmailQueue{}
	worker, err := NewInvoiceWorker(InvoiceWorkerDeps{
		Ledger:   f.ledger,
		Renderer: renderer,
		Store:    store,
		Emails:   emailQ,
		Notifier: f.notifier,
		TempDir:  tempDir,
		Clock:    fixedClock,
	})
	if err != nil {
		t.Fatalf("NewInvoiceWorker: %v", err)
	}
	return &invoiceFixture{orderFixture: f, worker: worker, store: store, storeDir: storeDir, tempDir: tempDir, emailQ: emailQ}
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	var n int
	err := filepath.WalkDir(dir, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", dir, err)
	}
	return n
}

func TestInvoiceWorkerIsIdempotent(t *testing.T) {
	f := newInvoiceFixture(t, invoice.NewRenderer(invoice.WithClock(fixedClock)))
	order := f.placeCOD(t, f.addToCart(t, testUserID, stockA, 2))
	ctx := context.Background()
	job := domain.InvoiceJob{OrderID: order.ID, UserID: testUserID}

	if err := f.worker.Handle(ctx, job); err != nil {
		t.Fatalf("first Handle: %v", err)
	}
	first := f.readOrder(t, order.ID)
	if err := f.worker.Handle(ctx, job); err != nil {
		t.Fatalf("second Handle: %v", err)
	}
	second := f.readOrder(t, order.ID)

	wantKey := "invoices/Invoice_" + order.ID + ".pdf"
	if first.InvoiceStatus != domain.InvoiceStatusReady || first.InvoiceKey != wantKey {
		t.Fatalf("unexpected invoice fields %+v", first)
	}
	if first.InvoiceURL != "https://cdn.example.com/"+wantKey || second.InvoiceURL != first.InvoiceURL || second.InvoiceKey != first.InvoiceKey {
		t.Fatalf("expected stable url and key, got %q / %q", first.InvoiceURL, second.InvoiceURL)
	}
	if second.Charges != order.Charges || second.PaymentStatus != order.PaymentStatus || second.DeliveryStatus != order.DeliveryStatus {
		t.Fatalf("financial or lifecycle fields changed: %+v", second)
	}
	if n := countFiles(t, f.storeDir); n != 1 {
		t.Fatalf("expected exactly one stored object, got %d", n)
	}
	if n := countFiles(t, f.tempDir); n != 0 {
		t.Fatalf("expected temp files removed, found %d", n)
	}

	emails := f.emailQ.snapshot()
	if len(emails) != 2 {
		t.Fatalf("expected one invoice email per run, got %d", len(emails))
	}
	mail := emails[0]
	if mail.Subject != "Invoice - Order "+order.ID || mail.AttachedKey != wantKey || mail.Attachment != "Invoice_"+order.ID+".pdf" {
		t.Fatalf("unexpected invoice email %+v", mail)
	}
	if len(mail.To) != 2 {
		t.Fatalf("expected account and delivery recipients, got %v", mail.To)
	}
	if _, ok := f.notifier.find(domain.UserRoom(testUserID), domain.EventInvoiceReady); !ok {
		t.Fatal("expected INVOICE_READY for the customer")
	}
}

func TestInvoiceWorkerUsesJobAddressSnapshot(t *testing.T) {
	var rendered invoice.Document
	f := newInvoiceFixture(t, &stubRenderer{renderFn: func(doc invoice.Document, path string) error {
		rendered = doc
		return os.WriteFile(path, []byte("pdf"), 0o600)
	}})
	order := f.placeCOD(t, f.addToCart(t, testUserID, stockA, 1))

	snapshot := domain.Address{ID: testAddressID, UserID: testUserID, FullName: "Snapshot Name", City: "Nashik"}
	if err := f.worker.Handle(context.Background(), domain.InvoiceJob{OrderID: order.ID, UserID: testUserID, Address: &snapshot}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if rendered.Address == nil || rendered.Address.City != "Nashik" {
		t.Fatalf("expected job snapshot to be rendered, got %+v", rendered.Address)
	}
	if rendered.Customer.Email != testUserID+"@example.com" || len(rendered.Items) != 1 {
		t.Fatalf("unexpected rendered document %+v", rendered)
	}
}

func TestInvoiceWorkerRenderFailureCleansUp(t *testing.T) {
	f := newInvoiceFixture(t, &stubRenderer{renderFn: func(_ invoice.Document, path string) error {
		_ = os.WriteFile(path, []byte("partial"), 0o600)
		return errors.New("font missing")
	}})
	order := f.placeCOD(t, f.addToCart(t, testUserID, stockA, 1))

	err := f.worker.Handle(context.Background(), domain.InvoiceJob{OrderID: order.ID})
	if err == nil || !IsRetryable(err) {
		t.Fatalf("expected retryable render error, got %v", err)
	}
	if n := countFiles(t, f.tempDir); n != 0 {
		t.Fatalf("expected temp file removed after failure, found %d", n)
	}
	if got := f.readOrder(t, order.ID).InvoiceStatus; got != domain.InvoiceStatusPending {
		t.Fatalf("expected invoice to stay pending, got %s", got)
	}
}

func TestInvoiceWorkerMarkFailed(t *testing.T) {
	f := newInvoiceFixture(t, &stubRenderer{})
	order := f.placeCOD(t, f.addToCart(t, testUserID, stockA, 1))

	if err := f.worker.MarkFailed(context.Background(), domain.InvoiceJob{OrderID: order.ID}, errors.New("exhausted")); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	updated := f.readOrder(t, order.ID)
	if updated.InvoiceStatus != domain.InvoiceStatusFailed || updated.Charges != order.Charges {
		t.Fatalf("unexpected order after failure %+v", updated)
	}
	if _, ok := f.notifier.find(domain.RoomAdmin, domain.EventInvoiceFailed); !ok {
		t.Fatal("expected INVOICE_FAILED for admins")
	}
}

func TestInvoiceWorkerUnknownOrderIsPermanent(t *testing.T) {
	f := newInvoiceFixture(t, &stubRenderer{})
	err := f.worker.Handle(context.Background(), domain.InvoiceJob{OrderID: "ord_missing"})
	if !errors.Is(err, ErrNotFound) || IsRetryable(err) {
		t.Fatalf("expected non-retryable not found, got %v", err)
	}
}
