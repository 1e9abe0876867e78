package services

import (
	"context"
	"sync"
	"testing"
	"time"

	domain "github.com/Abhranil-01/dsport-backend-api/internal/domain"
	"github.com/Abhranil-01/dsport-backend-api/internal/payments"
	"github.com/Abhranil-01/dsport-backend-api/internal/repositories"
	"github.com/Abhranil-01/dsport-backend-api/internal/repositories/memory"
)

var fixedNow = time.Date(2026, time.March, 14, 10, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

type notification struct {
	room    string
	event   string
	payload any
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification
}

func (n *recordingNotifier) Publish(_ context.Context, room, event string, payload any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{room: room, event: event, payload: payload})
	return nil
}

func (n *recordingNotifier) find(room, event string) (notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e.room == room && e.event == event {
			return e, true
		}
	}
	return notification{}, false
}

type recordingInvoiceQueue struct {
	mu   sync.Mutex
	jobs []domain.InvoiceJob
	err  error
}

func (q *recordingInvoiceQueue) EnqueueInvoice(_ context.Context, job domain.InvoiceJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingInvoiceQueue) snapshot() []domain.InvoiceJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.InvoiceJob(nil), q.jobs...)
}

type recordingEmailQueue struct {
	mu   sync.Mutex
	jobs []domain.EmailJob
}

func (q *recordingEmailQueue) EnqueueEmail(_ context.Context, job domain.EmailJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingEmailQueue) snapshot() []domain.EmailJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.EmailJob(nil), q.jobs...)
}

type stubGateway struct {
	createFn func(context.Context, payments.RemoteOrderRequest) (payments.RemoteOrder, error)
}

func (s *stubGateway) CreateRemoteOrder(ctx context.Context, req payments.RemoteOrderRequest) (payments.RemoteOrder, error) {
	if s.createFn != nil {
		return s.createFn(ctx, req)
	}
	return payments.RemoteOrder{ID: "order_remote_1", AmountMinor: req.AmountMinor, Currency: req.Currency, Receipt: req.Receipt}, nil
}

const (
	testUserID    = "user-1"
	testAddressID = "addr-1"
	stockA        = "size-a"
	stockB        = "size-b"
)

type orderFixture struct {
	ledger     *memory.Ledger
	stock      *StockEngine
	charges    *ChargesCalculator
	assembler  *OrderAssembler
	cart       CartService
	orders     OrderService
	dispatcher *Dispatcher
	notifier   *recordingNotifier
	invoices   *recordingInvoiceQueue
	emails     *recordingEmailQueue
	verifier   *payments.Verifier
	gateway    *stubGateway
}

func newOrderFixture(t *testing.T) *orderFixture {
	t.Helper()
	ledger := memory.NewLedger(memory.WithMaxAttempts(200), memory.WithClock(fixedClock))
	seedCustomer(ledger, testUserID, testAddressID)
	ledger.SeedStock(domain.StockRecord{Key: stockA, VariantID: "var-a", Name: "Trail Runner", Size: "UK 9", Available: 10, UnitPrice: 120000, OfferPrice: 100000})
	ledger.SeedStock(domain.StockRecord{Key: stockB, VariantID: "var-b", Name: "Match Ball", Size: "5", Available: 5, UnitPrice: 50000, OfferPrice: 40000})

	stock, err := NewStockEngine(ledger)
	if err != nil {
		t.Fatalf("NewStockEngine: %v", err)
	}
	charges := NewChargesCalculator(domain.DefaultChargesPolicy(), fixedClock)
	assembler, err := NewOrderAssembler(OrderAssemblerDeps{Ledger: ledger, Stock: stock, Charges: charges, Clock: fixedClock})
	if err != nil {
		t.Fatalf("NewOrderAssembler: %v", err)
	}
	cart, err := NewCartService(CartServiceDeps{Ledger: ledger, Charges: charges, Clock: fixedClock})
	if err != nil {
		t.Fatalf("NewCartService: %v", err)
	}
	verifier, err := payments.NewVerifier("test-secret")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	f := &orderFixture{
		ledger:     ledger,
		stock:      stock,
		charges:    charges,
		assembler:  assembler,
		cart:       cart,
		dispatcher: NewDispatcher(DispatcherDeps{Timeout: time.Second}),
		notifier:   &recordingNotifier{},
		invoices:   &recordingInvoiceQueue{},
		emails:     &recordingEmailQueue{},
		verifier:   verifier,
		gateway:    &stubGateway{},
	}
	f.orders, err = NewOrderService(OrderServiceDeps{
		Ledger:     ledger,
		Orders:     ledger,
		Assembler:  assembler,
		Stock:      stock,
		Verifier:   verifier,
		Gateway:    f.gateway,
		Invoices:   f.invoices,
		Emails:     f.emails,
		Notifier:   f.notifier,
		Dispatcher: f.dispatcher,
		Clock:      fixedClock,
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return f
}

func seedCustomer(ledger *memory.Ledger, userID, addressID string) {
	ledger.SeedUser(domain.User{ID: userID, FullName: "Asha Verma", Email: userID + "@example.com"})
	ledger.SeedAddress(domain.Address{
		ID:       addressID,
		UserID:   userID,
		FullName: "Asha Verma",
		Email:    "deliveries+" + userID + "@example.com",
		Line1:    "12 MG Road",
		City:     "Pune",
		State:    "MH",
		Pincode:  "411001",
		Country:  "IN",
	})
}

func (f *orderFixture) addToCart(t *testing.T, userID, sizeID string, qty int) string {
	t.Helper()
	stock, ok := f.ledger.Stock(sizeID)
	if !ok {
		t.Fatalf("unknown stock %s", sizeID)
	}
	if _, err := f.cart.AddItem(context.Background(), AddCartItemCommand{UserID: userID, VariantID: stock.VariantID, SizeID: sizeID, Quantity: qty}); err != nil {
		t.Fatalf("AddItem(%s): %v", sizeID, err)
	}
	return domain.CartItemID(userID, stock.VariantID, sizeID)
}

func (f *orderFixture) available(t *testing.T, key string) int {
	t.Helper()
	stock, ok := f.ledger.Stock(key)
	if !ok {
		t.Fatalf("stock %s missing", key)
	}
	return stock.Available
}

// drain waits for dispatched post-commit effects.
func (f *orderFixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.dispatcher.Wait(ctx); err != nil {
		t.Fatalf("dispatcher wait: %v", err)
	}
}

func (f *orderFixture) readOrder(t *testing.T, orderID string) domain.Order {
	t.Helper()
	var order domain.Order
	err := f.ledger.RunInTx(context.Background(), func(ctx context.Context, tx repositories.LedgerTx) error {
		var err error
		order, err = tx.GetOrder(ctx, orderID)
		return err
	})
	if err != nil {
		t.Fatalf("read order %s: %v", orderID, err)
	}
	return order
}

func (f *orderFixture) placeCOD(t *testing.T, itemIDs ...string) domain.Order {
	t.Helper()
	order, err := f.orders.PlaceCOD(context.Background(), PlaceOrderCommand{
		UserID:      testUserID,
		AddressID:   testAddressID,
		CartItemIDs: itemIDs,
		ChargesID:   testUserID,
	})
	if err != nil {
		t.Fatalf("PlaceCOD: %v", err)
	}
	return order
}
