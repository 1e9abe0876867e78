package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	domain "github.com/Abhranil-01/dsport-backend-api/internal/domain"
	"github.com/Abhranil-01/dsport-backend-api/internal/invoice"
	"github.com/Abhranil-01/dsport-backend-api/internal/platform/storage"
	"github.com/Abhranil-01/dsport-backend-api/internal/repositories"
)

// InvoiceWorkerDeps wires invoice generation.
type InvoiceWorkerDeps struct {
	Ledger    repositories.Ledger
	Renderer  InvoiceRenderer
	Store     ObjectStore
	Emails    EmailQueue
	Notifier  Notifier
	TempDir   string
	StoreName string
	Clock     func() time.Time
	Logger    func(context.Context, string, map[string]any)
}

// InvoiceWorker renders, stores and announces order invoices.
type InvoiceWorker struct {
	ledger   repositories.Ledger
	renderer InvoiceRenderer
	store    ObjectStore
	emails   EmailQueue
	notifier Notifier
	tempDir  string
	mailer   *orderMailer
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewInvoiceWorker validates deps and constructs a worker.
func NewInvoiceWorker(deps InvoiceWorkerDeps) (*InvoiceWorker, error) {
	if deps.Ledger == nil {
		return nil, errors.New("invoice worker: ledger is required")
	}
	if deps.Renderer == nil {
		return nil, errors.New("invoice worker: renderer is required")
	}
	if deps.Store == nil {
		return nil, errors.New("invoice worker: object store is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &InvoiceWorker{
		ledger:   deps.Ledger,
		renderer: deps.Renderer,
		store:    deps.Store,
		emails:   deps.Emails,
		notifier: deps.Notifier,
		tempDir:  deps.TempDir,
		mailer:   newOrderMailer(deps.StoreName),
		now:      func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

type invoiceSource struct {
	order   domain.Order
	user    domain.User
	items   []domain.OrderLineItem
	address *domain.Address
}

// Handle generates the invoice for job. Re-running it overwrites the same object and rewrites
// only the invoice fields of the order.
func (w *InvoiceWorker) Handle(ctx context.Context, job domain.InvoiceJob) error {
	orderID := strings.TrimSpace(job.OrderID)
	if orderID == "" {
		return fmt.Errorf("%w: invoice job without order id", ErrValidation)
	}
	key, err := storage.InvoiceKey(orderID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	src, err := w.load(ctx, job)
	if err != nil {
		return err
	}

	path, err := w.render(src)
	if err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			w.logger(ctx, "invoice.tempfile.remove.failed", map[string]any{"orderId": orderID, "path": path, "error": err})
		}
	}()

	obj, err := w.store.Upload(ctx, path, key)
	if err != nil {
		return fmt.Errorf("upload invoice %s: %w", orderID, err)
	}

	order, err := w.markInvoice(ctx, orderID, func(o *domain.Order) {
		o.InvoiceStatus = domain.InvoiceStatusReady
		o.InvoiceURL = obj.URL
		o.InvoiceKey = obj.ID
	})
	if err != nil {
		return err
	}
	w.logger(ctx, "invoice.ready", map[string]any{"orderId": orderID, "key": obj.ID})

	if w.emails != nil {
		to := recipients(src.user, src.address)
		if len(to) == 0 {
			w.logger(ctx, "invoice.email.skipped", map[string]any{"orderId": orderID})
		} else if err := w.emails.EnqueueEmail(ctx, w.mailer.invoice(order, src.user, to, obj.URL, obj.ID)); err != nil {
			w.logger(ctx, "invoice.email.enqueue.failed", map[string]any{"orderId": orderID, "error": err})
		}
	}
	w.announce(ctx, order, domain.EventInvoiceReady)
	return nil
}

// MarkFailed records that generation exhausted its retries.
func (w *InvoiceWorker) MarkFailed(ctx context.Context, job domain.InvoiceJob, cause error) error {
	orderID := strings.TrimSpace(job.OrderID)
	if orderID == "" {
		return fmt.Errorf("%w: invoice job without order id", ErrValidation)
	}
	order, err := w.markInvoice(ctx, orderID, func(o *domain.Order) {
		if o.InvoiceStatus != domain.InvoiceStatusReady {
			o.InvoiceStatus = domain.InvoiceStatusFailed
		}
	})
	if err != nil {
		return err
	}
	fields := map[string]any{"orderId": orderID}
	if cause != nil {
		fields["error"] = cause
	}
	w.logger(ctx, "invoice.generation.failed", fields)
	if order.InvoiceStatus == domain.InvoiceStatusFailed {
		w.announce(ctx, order, domain.EventInvoiceFailed)
	}
	return nil
}

func (w *InvoiceWorker) load(ctx context.Context, job domain.InvoiceJob) (invoiceSource, error) {
	var src invoiceSource
	err := w.ledger.RunInTx(ctx, func(ctx context.Context, tx repositories.LedgerTx) error {
		order, err := tx.GetOrder(ctx, job.OrderID)
		if err != nil {
			return mapRepositoryError(err, "order %s", job.OrderID)
		}
		items, err := tx.ListLineItems(ctx, order.ID)
		if err != nil {
			return mapRepositoryError(err, "order items for %s", order.ID)
		}
		src = invoiceSource{order: order, items: items}

		if job.Address != nil {
			addr := *job.Address
			src.address = &addr
			user, err := tx.GetUser(ctx, order.UserID)
			switch {
			case err == nil:
				src.user = user
			case !isRepoNotFound(err):
				return mapRepositoryError(err, "user %s", order.UserID)
			}
			return nil
		}
		contact, err := loadContact(ctx, tx, order)
		if err != nil {
			return err
		}
		src.user, src.address = contact.user, contact.address
		return nil
	})
	if err != nil {
		return invoiceSource{}, mapRepositoryError(err, "load invoice data %s", job.OrderID)
	}
	return src, nil
}

func (w *InvoiceWorker) render(src invoiceSource) (string, error) {
	file, err := os.CreateTemp(w.tempDir, "invoice-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create invoice temp file: %w", err)
	}
	path := file.Name()
	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close invoice temp file: %w", err)
	}
	doc := invoice.Document{Order: src.order, Items: src.items, Customer: src.user, Address: src.address}
	if err := w.renderer.RenderFile(doc, path); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("render invoice %s: %w", src.order.ID, err)
	}
	return path, nil
}

func (w *InvoiceWorker) markInvoice(ctx context.Context, orderID string, mutate func(*domain.Order)) (domain.Order, error) {
	var updated domain.Order
	err := w.ledger.RunInTx(ctx, func(ctx context.Context, tx repositories.LedgerTx) error {
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return mapRepositoryError(err, "order %s", orderID)
		}
		mutate(&order)
		order.UpdatedAt = w.now()
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return mapRepositoryError(err, "update order %s", orderID)
		}
		updated = order
		return nil
	})
	if err != nil {
		return domain.Order{}, mapRepositoryError(err, "update invoice status %s", orderID)
	}
	return updated, nil
}

func (w *InvoiceWorker) announce(ctx context.Context, order domain.Order, event string) {
	if w.notifier == nil {
		return
	}
	payload := domain.ProjectOrderEvent(order)
	payload["invoiceStatus"] = order.InvoiceStatus
	if order.InvoiceURL != "" {
		payload["invoiceUrl"] = order.InvoiceURL
	}
	room := domain.UserRoom(order.UserID)
	err := errors.Join(
		w.notifier.Publish(ctx, room, event, payload),
		w.notifier.Publish(ctx, domain.RoomAdmin, event, payload),
		w.notifier.Publish(ctx, room, domain.EventOrderUpdated, payload),
	)
	if err != nil {
		w.logger(ctx, "invoice.notify.failed", map[string]any{"orderId": order.ID, "event": event, "error": err})
	}
}
