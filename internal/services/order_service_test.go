package services

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"testing"

	domain "github.com/Abhranil-01/dsport-backend-api/internal/domain"
	"github.com/Abhranil-01/dsport-backend-api/internal/payments"
	"github.com/Abhranil-01/dsport-backend-api/internal/repositories"
)

func TestOrderServicePlaceCODHappyPath(t *testing.T) {
	f := newOrderFixture(t)
	a := f.addToCart(t, testUserID, stockA, 2)
	b := f.addToCart(t, testUserID, stockB, 1)

	order := f.placeCOD(t, a, b)

	if !strings.HasPrefix(order.ID, orderIDPrefix) {
		t.Fatalf("unexpected order id %q", order.ID)
	}
	if order.PaymentMode != domain.PaymentModeCOD || order.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("unexpected payment fields %+v", order)
	}
	if order.OrderStatus != domain.OrderStatusActive || order.DeliveryStatus != domain.DeliveryStatusPending || order.InvoiceStatus != domain.InvoiceStatusPending {
		t.Fatalf("unexpected statuses %+v", order)
	}
	want := domain.OrderCharges{TotalQuantity: 3, TotalPrice: 240000, DiscountPrice: 50000, Tax: 1800, TotalPayableAmount: 241800}
	if order.Charges != want {
		t.Fatalf("unexpected frozen charges %+v", order.Charges)
	}
	if got := f.available(t, stockA); got != 8 {
		t.Fatalf("expected stock A 8, got %d", got)
	}
	if got := f.available(t, stockB); got != 4 {
		t.Fatalf("expected stock B 4, got %d", got)
	}

	detail, err := f.orders.GetOrder(context.Background(), order.ID, testUserID, false)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if len(detail.Items) != 2 || detail.Items[0].Price != 200000 || detail.Items[1].Price != 40000 {
		t.Fatalf("unexpected line items %+v", detail.Items)
	}
	if detail.Items[0].Name != "Trail Runner" || detail.Items[0].Size != "UK 9" {
		t.Fatalf("expected stock name and size on line, got %+v", detail.Items[0])
	}

	view, err := f.cart.GetCart(context.Background(), testUserID)
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if len(view.Items) != 0 || view.Charges != nil {
		t.Fatalf("expected consumed cart, got %+v", view)
	}

	f.drain(t)
	if _, ok := f.notifier.find(domain.RoomAdmin, domain.EventOrderCreated); !ok {
		t.Fatal("expected ORDER_CREATED for admins")
	}
	if _, ok := f.notifier.find(domain.UserRoom(testUserID), domain.EventOrderCreated); !ok {
		t.Fatal("expected ORDER_CREATED for the customer")
	}
	jobs := f.invoices.snapshot()
	if len(jobs) != 1 || jobs[0].OrderID != order.ID || jobs[0].Address == nil || jobs[0].Address.ID != testAddressID {
		t.Fatalf("unexpected invoice jobs %+v", jobs)
	}
}

func TestOrderServicePlacementSurvivesEnqueueFailure(t *testing.T) {
	f := newOrderFixture(t)
	f.invoices.err = errors.New("queue down")
	a := f.addToCart(t, testUserID, stockA, 1)

	order := f.placeCOD(t, a)
	f.drain(t)
	if f.readOrder(t, order.ID).ID != order.ID {
		t.Fatal("order must be committed even when post-commit effects fail")
	}
}

func TestOrderServiceConcurrentCheckoutOneWinner(t *testing.T) {
	f := newOrderFixture(t)
	f.ledger.SeedStock(domain.StockRecord{Key: "size-r", VariantID: "var-r", Available: 10, UnitPrice: 1000, OfferPrice: 1000})
	seedCustomer(f.ledger, "user-2", "addr-2")

	buyers := []struct{ user, address string }{{testUserID, testAddressID}, {"user-2", "addr-2"}}
	items := make([]string, len(buyers))
	for i, b := range buyers {
		items[i] = f.addToCart(t, b.user, "size-r", 6)
	}

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, len(buyers))
	)
	for i, b := range buyers {
		wg.Add(1)
		go func(i int, user, address string) {
			defer wg.Done()
			<-start
			_, errs[i] = f.orders.PlaceCOD(context.Background(), PlaceOrderCommand{UserID: user, AddressID: address, CartItemIDs: []string{items[i]}, ChargesID: user})
		}(i, b.user, b.address)
	}
	close(start)
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrInsufficientStock):
			losses++
			if err.Error() != "Only 4 items available in stock" {
				t.Fatalf("unexpected loser message %q", err.Error())
			}
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("expected one winner and one loser, got %d and %d", wins, losses)
	}
	if got := f.available(t, "size-r"); got != 4 {
		t.Fatalf("expected stock 4, got %d", got)
	}
}

func TestOrderServiceAssemblyRollsBackAfterDeduction(t *testing.T) {
	f := newOrderFixture(t)
	a := f.addToCart(t, testUserID, stockA, 2)
	b := f.addToCart(t, testUserID, stockB, 1)

	_, err := f.orders.PlaceCOD(context.Background(), PlaceOrderCommand{UserID: testUserID, AddressID: testAddressID, CartItemIDs: []string{a, b}, ChargesID: "stale-charges"})
	if !errors.Is(err, ErrInvalidState) || !strings.Contains(err.Error(), "invalid charges data") {
		t.Fatalf("expected invalid charges data, got %v", err)
	}
	if f.available(t, stockA) != 10 || f.available(t, stockB) != 5 {
		t.Fatal("stock must be unchanged after a failed assembly")
	}
	view, _ := f.cart.GetCart(context.Background(), testUserID)
	if len(view.Items) != 2 || view.Charges == nil {
		t.Fatalf("cart must survive a failed assembly, got %+v", view)
	}
	orders, _ := f.ledger.ListOrdersByUser(context.Background(), testUserID, 0)
	if len(orders) != 0 {
		t.Fatalf("expected no orders, got %d", len(orders))
	}
}

func TestOrderServiceAssemblyReportsShortStock(t *testing.T) {
	f := newOrderFixture(t)
	a := f.addToCart(t, testUserID, stockA, 2)
	b := f.addToCart(t, testUserID, stockB, 3)
	f.ledger.SeedStock(domain.StockRecord{Key: stockB, VariantID: "var-b", Available: 1, UnitPrice: 50000, OfferPrice: 40000})

	_, err := f.orders.PlaceCOD(context.Background(), PlaceOrderCommand{UserID: testUserID, AddressID: testAddressID, CartItemIDs: []string{a, b}, ChargesID: testUserID})
	if !errors.Is(err, ErrInsufficientStock) || err.Error() != "Only 1 items available in stock" {
		t.Fatalf("expected insufficient stock naming 1, got %v", err)
	}
	if f.available(t, stockA) != 10 {
		t.Fatalf("stock A must be untouched, got %d", f.available(t, stockA))
	}
}

func TestOrderServiceAssemblyValidation(t *testing.T) {
	f := newOrderFixture(t)
	a := f.addToCart(t, testUserID, stockA, 1)
	ctx := context.Background()

	cases := []struct {
		name string
		cmd  PlaceOrderCommand
		want error
		msg  string
	}{
		{name: "missing cart item", cmd: PlaceOrderCommand{UserID: testUserID, AddressID: testAddressID, CartItemIDs: []string{a, "ci_missing"}, ChargesID: testUserID}, want: ErrInvalidState, msg: "some cart items not found"},
		{name: "foreign address", cmd: PlaceOrderCommand{UserID: testUserID, AddressID: "addr-other", CartItemIDs: []string{a}, ChargesID: testUserID}, want: ErrNotFound},
		{name: "no items", cmd: PlaceOrderCommand{UserID: testUserID, AddressID: testAddressID, ChargesID: testUserID}, want: ErrValidation},
		{name: "no charges id", cmd: PlaceOrderCommand{UserID: testUserID, AddressID: testAddressID, CartItemIDs: []string{a}}, want: ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.orders.PlaceCOD(ctx, tc.cmd)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if tc.msg != "" && !strings.Contains(err.Error(), tc.msg) {
				t.Fatalf("expected message %q, got %q", tc.msg, err.Error())
			}
		})
	}
	if f.available(t, stockA) != 10 {
		t.Fatal("stock must be unchanged")
	}
}

func TestOrderServiceVerifyRejectsForgedSignature(t *testing.T) {
	f := newOrderFixture(t)
	a := f.addToCart(t, testUserID, stockA, 2)

	_, err := f.orders.VerifyOnlinePayment(context.Background(), VerifyPaymentCommand{
		PlaceOrderCommand: PlaceOrderCommand{UserID: testUserID, AddressID: testAddressID, CartItemIDs: []string{a}, ChargesID: testUserID},
		RemoteOrderID:     "order_remote_1",
		RemotePaymentID:   "pay_1",
		Signature:         "deadbeef",
	})
	if !errors.Is(err, payments.ErrPaymentVerificationFailed) {
		t.Fatalf("expected verification failure, got %v", err)
	}
	if f.available(t, stockA) != 10 {
		t.Fatal("stock must not change on a forged signature")
	}
	orders, _ := f.ledger.ListOrdersByUser(context.Background(), testUserID, 0)
	if len(orders) != 0 {
		t.Fatalf("expected no order, got %d", len(orders))
	}
}

func TestOrderServiceVerifyPlacesPaidOrder(t *testing.T) {
	f := newOrderFixture(t)
	a := f.addToCart(t, testUserID, stockA, 1)

	order, err := f.orders.VerifyOnlinePayment(context.Background(), VerifyPaymentCommand{
		PlaceOrderCommand: PlaceOrderCommand{UserID: testUserID, AddressID: testAddressID, CartItemIDs: []string{a}, ChargesID: testUserID},
		RemoteOrderID:     "order_remote_1",
		RemotePaymentID:   "pay_1",
		Signature:         f.verifier.Sign("order_remote_1", "pay_1"),
	})
	if err != nil {
		t.Fatalf("VerifyOnlinePayment: %v", err)
	}
	if order.PaymentMode != domain.PaymentModeOnline || order.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("unexpected payment fields %+v", order)
	}
	if order.Payment == nil || order.Payment.RemotePaymentID != "pay_1" || order.Payment.Provider != "razorpay" {
		t.Fatalf("unexpected payment reference %+v", order.Payment)
	}
}

func TestOrderServiceCreateOnlinePayment(t *testing.T) {
	f := newOrderFixture(t)
	var got payments.RemoteOrderRequest
	f.gateway.createFn = func(_ context.Context, req payments.RemoteOrderRequest) (payments.RemoteOrder, error) {
		got = req
		return payments.RemoteOrder{ID: "order_remote_9", AmountMinor: req.AmountMinor, Currency: req.Currency}, nil
	}

	remote, err := f.orders.CreateOnlinePayment(context.Background(), CreatePaymentCommand{UserID: testUserID, TotalAmount: 499.99})
	if err != nil {
		t.Fatalf("CreateOnlinePayment: %v", err)
	}
	if remote.ID != "order_remote_9" {
		t.Fatalf("unexpected remote order %+v", remote)
	}
	if got.AmountMinor != 49999 || got.Currency != "INR" {
		t.Fatalf("unexpected request %+v", got)
	}
	if got.Receipt != "order_rcpt_"+strconv.FormatInt(fixedNow.UnixMilli(), 10) {
		t.Fatalf("unexpected receipt %q", got.Receipt)
	}

	if _, err := f.orders.CreateOnlinePayment(context.Background(), CreatePaymentCommand{UserID: testUserID}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for zero amount, got %v", err)
	}
}

func TestOrderServiceUpdateStatusDeliveredLocksOrder(t *testing.T) {
	f := newOrderFixture(t)
	order := f.placeCOD(t, f.addToCart(t, testUserID, stockA, 1))
	ctx := context.Background()

	delivered, err := f.orders.UpdateStatus(ctx, UpdateStatusCommand{OrderID: order.ID, DeliveryStatus: "delivered"})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if delivered.OrderStatus != domain.OrderStatusCompleted || delivered.DeliveredAt == nil {
		t.Fatalf("expected completed order with delivery time, got %+v", delivered)
	}

	before := f.readOrder(t, order.ID)
	for _, cmd := range []UpdateStatusCommand{
		{OrderID: order.ID, DeliveryStatus: "Shipped"},
		{OrderID: order.ID, PaymentStatus: "Paid"},
		{OrderID: order.ID, DeliveryStatus: "Cancelled"},
	} {
		if _, err := f.orders.UpdateStatus(ctx, cmd); !errors.Is(err, ErrLockedState) {
			t.Fatalf("expected locked state for %+v, got %v", cmd, err)
		}
	}
	if after := f.readOrder(t, order.ID); !reflect.DeepEqual(before, after) {
		t.Fatalf("locked order changed:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestOrderServiceUpdateStatusCancelledLocksOrder(t *testing.T) {
	ctx := context.Background()
	cases := map[string]func(f *orderFixture, orderID string) error{
		"customer cancel": func(f *orderFixture, orderID string) error {
			_, err := f.orders.Cancel(ctx, orderID, testUserID)
			return err
		},
		"admin cancel": func(f *orderFixture, orderID string) error {
			_, err := f.orders.UpdateStatus(ctx, UpdateStatusCommand{OrderID: orderID, DeliveryStatus: "Cancelled"})
			return err
		},
	}
	for name, cancel := range cases {
		t.Run(name, func(t *testing.T) {
			f := newOrderFixture(t)
			order := f.placeCOD(t, f.addToCart(t, testUserID, stockA, 2))
			if err := cancel(f, order.ID); err != nil {
				t.Fatalf("cancel: %v", err)
			}

			before := f.readOrder(t, order.ID)
			if before.DeliveryStatus != domain.DeliveryStatusCancelled {
				t.Fatalf("expected cancelled delivery, got %s", before.DeliveryStatus)
			}
			for _, cmd := range []UpdateStatusCommand{
				{OrderID: order.ID, DeliveryStatus: "Processing"},
				{OrderID: order.ID, DeliveryStatus: "Delivered"},
				{OrderID: order.ID, DeliveryStatus: "Cancelled"},
				{OrderID: order.ID, PaymentStatus: "Paid"},
			} {
				if _, err := f.orders.UpdateStatus(ctx, cmd); !errors.Is(err, ErrLockedState) {
					t.Fatalf("expected locked state for %+v, got %v", cmd, err)
				}
			}
			if after := f.readOrder(t, order.ID); !reflect.DeepEqual(before, after) {
				t.Fatalf("cancelled order changed:\nbefore %+v\nafter  %+v", before, after)
			}
			if got := f.available(t, stockA); got != 10 {
				t.Fatalf("expected stock released once to 10, got %d", got)
			}
		})
	}
}

func TestOrderServiceUpdateStatusRejectsPaymentWithCancellation(t *testing.T) {
	f := newOrderFixture(t)
	order := f.placeCOD(t, f.addToCart(t, testUserID, stockA, 1))
	before := f.readOrder(t, order.ID)

	_, err := f.orders.UpdateStatus(context.Background(), UpdateStatusCommand{OrderID: order.ID, DeliveryStatus: "Cancelled", PaymentStatus: "Paid"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if after := f.readOrder(t, order.ID); !reflect.DeepEqual(before, after) {
		t.Fatalf("order changed on rejected update:\nbefore %+v\nafter  %+v", before, after)
	}
	if got := f.available(t, stockA); got != 9 {
		t.Fatalf("expected stock to stay reserved at 9, got %d", got)
	}
}

func TestOrderServiceUpdateStatusForwardOnly(t *testing.T) {
	f := newOrderFixture(t)
	order := f.placeCOD(t, f.addToCart(t, testUserID, stockA, 1))
	ctx := context.Background()

	if _, err := f.orders.UpdateStatus(ctx, UpdateStatusCommand{OrderID: order.ID, DeliveryStatus: "Shipped"}); err != nil {
		t.Fatalf("skip ahead should be allowed: %v", err)
	}
	if _, err := f.orders.UpdateStatus(ctx, UpdateStatusCommand{OrderID: order.ID, DeliveryStatus: "Processing"}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state moving backwards, got %v", err)
	}
	if _, err := f.orders.UpdateStatus(ctx, UpdateStatusCommand{OrderID: order.ID, DeliveryStatus: "Teleported"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for unknown status, got %v", err)
	}
}

func TestOrderServiceUpdateStatusPaymentLocked(t *testing.T) {
	f := newOrderFixture(t)
	order := f.placeCOD(t, f.addToCart(t, testUserID, stockA, 1))
	ctx := context.Background()

	if _, err := f.orders.UpdateStatus(ctx, UpdateStatusCommand{OrderID: order.ID, PaymentStatus: "Paid"}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if _, err := f.orders.UpdateStatus(ctx, UpdateStatusCommand{OrderID: order.ID, PaymentStatus: "Pending"}); !errors.Is(err, ErrPaymentLocked) {
		t.Fatalf("expected payment locked, got %v", err)
	}
}

func TestOrderServiceUpdateStatusSendsEmailPerChange(t *testing.T) {
	f := newOrderFixture(t)
	order := f.placeCOD(t, f.addToCart(t, testUserID, stockA, 1))

	if _, err := f.orders.UpdateStatus(context.Background(), UpdateStatusCommand{OrderID: order.ID, PaymentStatus: "Paid", DeliveryStatus: "Shipped"}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	f.drain(t)

	kinds := map[domain.EmailKind]domain.EmailJob{}
	for _, job := range f.emails.snapshot() {
		kinds[job.Kind] = job
	}
	if len(kinds) != 2 {
		t.Fatalf("expected payment and delivery emails, got %+v", kinds)
	}
	if kinds[domain.EmailKindPayment].Subject != "Payment Status Updated" || kinds[domain.EmailKindDelivery].Subject != "Delivery Status Updated" {
		t.Fatalf("unexpected subjects %+v", kinds)
	}
	wantTo := []string{testUserID + "@example.com", "deliveries+" + testUserID + "@example.com"}
	if !reflect.DeepEqual(kinds[domain.EmailKindPayment].To, wantTo) {
		t.Fatalf("unexpected recipients %v", kinds[domain.EmailKindPayment].To)
	}
	if e, ok := f.notifier.find(domain.RoomAdmin, domain.EventOrderUpdated); !ok {
		t.Fatal("expected ORDER_UPDATED for admins")
	} else if e.payload.(map[string]any)["deliveryStatus"] != domain.DeliveryStatusShipped {
		t.Fatalf("unexpected payload %+v", e.payload)
	}
}

func TestOrderServiceCancelRestoresStock(t *testing.T) {
	f := newOrderFixture(t)
	order := f.placeCOD(t, f.addToCart(t, testUserID, stockA, 2), f.addToCart(t, testUserID, stockB, 1))
	if f.available(t, stockA) != 8 || f.available(t, stockB) != 4 {
		t.Fatal("expected stock to be reserved by placement")
	}

	cancelled, err := f.orders.Cancel(context.Background(), order.ID, testUserID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.OrderStatus != domain.OrderStatusCancelled || cancelled.DeliveryStatus != domain.DeliveryStatusCancelled {
		t.Fatalf("unexpected statuses %+v", cancelled)
	}
	if cancelled.PaymentStatus != domain.PaymentStatusCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("unexpected payment/cancel fields %+v", cancelled)
	}
	if f.available(t, stockA) != 10 || f.available(t, stockB) != 5 {
		t.Fatalf("expected stock restored to 10/5, got %d/%d", f.available(t, stockA), f.available(t, stockB))
	}

	f.drain(t)
	emails := f.emails.snapshot()
	if len(emails) != 1 || emails[0].Kind != domain.EmailKindCancellation || emails[0].Subject != "Your order has been cancelled" {
		t.Fatalf("unexpected cancellation emails %+v", emails)
	}
	if _, err := f.orders.Cancel(context.Background(), order.ID, testUserID); !errors.Is(err, ErrCancellationNotAllowed) {
		t.Fatalf("expected second cancel to be refused, got %v", err)
	}
}

func TestOrderServiceCancelRefundsPaidOnlineOrder(t *testing.T) {
	f := newOrderFixture(t)
	a := f.addToCart(t, testUserID, stockA, 1)
	order, err := f.orders.VerifyOnlinePayment(context.Background(), VerifyPaymentCommand{
		PlaceOrderCommand: PlaceOrderCommand{UserID: testUserID, AddressID: testAddressID, CartItemIDs: []string{a}, ChargesID: testUserID},
		RemoteOrderID:     "ro", RemotePaymentID: "rp", Signature: f.verifier.Sign("ro", "rp"),
	})
	if err != nil {
		t.Fatalf("VerifyOnlinePayment: %v", err)
	}

	cancelled, err := f.orders.Cancel(context.Background(), order.ID, testUserID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.PaymentStatus != domain.PaymentStatusRefunded {
		t.Fatalf("expected refunded, got %s", cancelled.PaymentStatus)
	}
}

func TestOrderServiceCancelGuards(t *testing.T) {
	f := newOrderFixture(t)
	order := f.placeCOD(t, f.addToCart(t, testUserID, stockA, 1))
	ctx := context.Background()

	if _, err := f.orders.Cancel(ctx, order.ID, "user-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for another user, got %v", err)
	}
	if _, err := f.orders.Cancel(ctx, "ord_missing", testUserID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown order, got %v", err)
	}
	if _, err := f.orders.UpdateStatus(ctx, UpdateStatusCommand{OrderID: order.ID, DeliveryStatus: "Out for Delivery"}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if _, err := f.orders.Cancel(ctx, order.ID, testUserID); !errors.Is(err, ErrCancellationNotAllowed) {
		t.Fatalf("expected cancellation refused after dispatch, got %v", err)
	}
	if f.available(t, stockA) != 9 {
		t.Fatalf("refused cancellation must not release stock, got %d", f.available(t, stockA))
	}
}

func TestOrderServiceGetOrderVisibility(t *testing.T) {
	f := newOrderFixture(t)
	order := f.placeCOD(t, f.addToCart(t, testUserID, stockA, 1))
	ctx := context.Background()

	if _, err := f.orders.GetOrder(ctx, order.ID, "user-2", false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for a stranger, got %v", err)
	}
	detail, err := f.orders.GetOrder(ctx, order.ID, "admin-1", true)
	if err != nil || detail.Order.ID != order.ID {
		t.Fatalf("expected admin to read the order, got %v", err)
	}
	orders, err := f.orders.ListOrders(ctx, testUserID, 0)
	if err != nil || len(orders) != 1 {
		t.Fatalf("expected one listed order, got %d (%v)", len(orders), err)
	}
}

func TestOrderServiceRetryInvoice(t *testing.T) {
	f := newOrderFixture(t)
	order := f.placeCOD(t, f.addToCart(t, testUserID, stockA, 1))
	f.drain(t)
	ctx := context.Background()

	setInvoiceStatus(t, f, order.ID, domain.InvoiceStatusFailed)
	retried, err := f.orders.RetryInvoice(ctx, order.ID)
	if err != nil {
		t.Fatalf("RetryInvoice: %v", err)
	}
	if retried.InvoiceStatus != domain.InvoiceStatusPending {
		t.Fatalf("expected pending, got %s", retried.InvoiceStatus)
	}
	if jobs := f.invoices.snapshot(); len(jobs) != 2 || jobs[1].OrderID != order.ID {
		t.Fatalf("expected the invoice to be re-enqueued, got %+v", jobs)
	}

	setInvoiceStatus(t, f, order.ID, domain.InvoiceStatusReady)
	if _, err := f.orders.RetryInvoice(ctx, order.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state for a ready invoice, got %v", err)
	}
}

func setInvoiceStatus(t *testing.T, f *orderFixture, orderID string, status domain.InvoiceStatus) {
	t.Helper()
	err := f.ledger.RunInTx(context.Background(), func(ctx context.Context, tx repositories.LedgerTx) error {
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		order.InvoiceStatus = status
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		t.Fatalf("set invoice status: %v", err)
	}
}
