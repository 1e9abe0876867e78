package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/Abhranil-01/dsport-backend-api/internal/domain"
	"github.com/Abhranil-01/dsport-backend-api/internal/payments"
	"github.com/Abhranil-01/dsport-backend-api/internal/repositories"
)

const (
	defaultOrderListLimit = 20
	maxOrderListLimit     = 100
	receiptPrefix         = "order_rcpt_"
)

var (
	errOrderLedgerRequired    = errors.New("order service: ledger is required")
	errOrderAssemblerRequired = errors.New("order service: assembler is required")
	errOrderStockRequired     = errors.New("order service: stock engine is required")
)

// OrderServiceDeps wires the collaborators used by the order service.
type OrderServiceDeps struct {
	Ledger          repositories.Ledger
	Orders          repositories.OrderReader
	Assembler       *OrderAssembler
	Stock           *StockEngine
	Verifier        PaymentVerifier
	Gateway         PaymentGateway
	PaymentProvider string
	Invoices        InvoiceQueue
	Emails          EmailQueue
	Notifier        Notifier
	Dispatcher      *Dispatcher
	Currency        string
	StoreName       string
	Clock           func() time.Time
	Logger          func(context.Context, string, map[string]any)
}

type orderService struct {
	ledger     repositories.Ledger
	orders     repositories.OrderReader
	assembler  *OrderAssembler
	stock      *StockEngine
	verifier   PaymentVerifier
	gateway    PaymentGateway
	provider   string
	invoices   InvoiceQueue
	emails     EmailQueue
	notifier   Notifier
	dispatcher *Dispatcher
	mailer     *orderMailer
	currency   string
	now        func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService constructs an OrderService enforcing dependency validation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Ledger == nil {
		return nil, errOrderLedgerRequired
	}
	if deps.Assembler == nil {
		return nil, errOrderAssemblerRequired
	}
	if deps.Stock == nil {
		return nil, errOrderStockRequired
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = NewDispatcher(DispatcherDeps{Logger: logger})
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	provider := strings.TrimSpace(deps.PaymentProvider)
	if provider == "" {
		provider = "razorpay"
	}
	return &orderService{
		ledger:     deps.Ledger,
		orders:     deps.Orders,
		assembler:  deps.Assembler,
		stock:      deps.Stock,
		verifier:   deps.Verifier,
		gateway:    deps.Gateway,
		provider:   provider,
		invoices:   deps.Invoices,
		emails:     deps.Emails,
		notifier:   deps.Notifier,
		dispatcher: dispatcher,
		mailer:     newOrderMailer(deps.StoreName),
		currency:   currency,
		now:        func() time.Time { return clock().UTC() },
		logger:     logger,
	}, nil
}

func (s *orderService) PlaceCOD(ctx context.Context, cmd PlaceOrderCommand) (domain.Order, error) {
	assembly, err := s.assembler.AssembleDetailed(ctx, AssembleCommand{
		UserID:      cmd.UserID,
		AddressID:   cmd.AddressID,
		CartItemIDs: cmd.CartItemIDs,
		ChargesID:   cmd.ChargesID,
		PaymentMode: domain.PaymentModeCOD,
	})
	if err != nil {
		s.logger(ctx, "order.place.failed", map[string]any{"userId": cmd.UserID, "mode": domain.PaymentModeCOD, "error": err})
		return domain.Order{}, err
	}
	s.logger(ctx, "order.placed", map[string]any{"orderId": assembly.Order.ID, "userId": assembly.Order.UserID, "mode": domain.PaymentModeCOD})
	s.afterPlacement(ctx, assembly)
	return assembly.Order, nil
}

func (s *orderService) CreateOnlinePayment(ctx context.Context, cmd CreatePaymentCommand) (payments.RemoteOrder, error) {
	if s.gateway == nil {
		return payments.RemoteOrder{}, fmt.Errorf("%w: payment gateway not configured", ErrUnavailable)
	}
	if cmd.TotalAmount <= 0 {
		return payments.RemoteOrder{}, fmt.Errorf("%w: total amount must be positive", ErrValidation)
	}
	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = s.currency
	}
	req := payments.RemoteOrderRequest{
		AmountMinor: domain.MinorUnits(cmd.TotalAmount),
		Currency:    currency,
		Receipt:     fmt.Sprintf("%s%d", receiptPrefix, s.now().UnixMilli()),
	}
	if uid := strings.TrimSpace(cmd.UserID); uid != "" {
		req.Notes = map[string]string{"userId": uid}
	}
	remote, err := s.gateway.CreateRemoteOrder(ctx, req)
	if err != nil {
		s.logger(ctx, "order.payment.create.failed", map[string]any{"userId": cmd.UserID, "error": err})
		if errors.Is(err, payments.ErrUnsupportedProvider) {
			return payments.RemoteOrder{}, fmt.Errorf("%w: currency %s is not supported", ErrValidation, currency)
		}
		return payments.RemoteOrder{}, fmt.Errorf("%w: create payment order: %v", ErrUnavailable, err)
	}
	return remote, nil
}

func (s *orderService) VerifyOnlinePayment(ctx context.Context, cmd VerifyPaymentCommand) (domain.Order, error) {
	remoteOrderID := strings.TrimSpace(cmd.RemoteOrderID)
	remotePaymentID := strings.TrimSpace(cmd.RemotePaymentID)
	signature := strings.TrimSpace(cmd.Signature)
	if remoteOrderID == "" || remotePaymentID == "" || signature == "" {
		return domain.Order{}, fmt.Errorf("%w: payment identifiers and signature are required", ErrValidation)
	}
	if s.verifier == nil {
		return domain.Order{}, fmt.Errorf("%w: payment verifier not configured", ErrUnavailable)
	}
	if err := s.verifier.Verify(remoteOrderID, remotePaymentID, signature); err != nil {
		s.logger(ctx, "order.payment.verification_failed", map[string]any{"userId": cmd.UserID, "remoteOrderId": remoteOrderID})
		return domain.Order{}, err
	}

	assembly, err := s.assembler.AssembleDetailed(ctx, AssembleCommand{
		UserID:      cmd.UserID,
		AddressID:   cmd.AddressID,
		CartItemIDs: cmd.CartItemIDs,
		ChargesID:   cmd.ChargesID,
		PaymentMode: domain.PaymentModeOnline,
		Payment: &domain.PaymentReference{
			Provider:        s.provider,
			RemoteOrderID:   remoteOrderID,
			RemotePaymentID: remotePaymentID,
			Signature:       signature,
		},
	})
	if err != nil {
		// The charge already succeeded at the gateway; operators reconcile from this entry.
		s.logger(ctx, "order.place.failed", map[string]any{
			"userId":          cmd.UserID,
			"mode":            domain.PaymentModeOnline,
			"remoteOrderId":   remoteOrderID,
			"remotePaymentId": remotePaymentID,
			"error":           err,
		})
		return domain.Order{}, err
	}
	s.logger(ctx, "order.placed", map[string]any{"orderId": assembly.Order.ID, "userId": assembly.Order.UserID, "mode": domain.PaymentModeOnline})
	s.afterPlacement(ctx, assembly)
	return assembly.Order, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrValidation)
	}
	var (
		nextDelivery domain.DeliveryStatus
		nextPayment  domain.PaymentStatus
		ok           bool
	)
	if strings.TrimSpace(cmd.DeliveryStatus) != "" {
		if nextDelivery, ok = domain.ParseDeliveryStatus(cmd.DeliveryStatus); !ok {
			return domain.Order{}, fmt.Errorf("%w: unknown delivery status %q", ErrValidation, cmd.DeliveryStatus)
		}
	}
	if strings.TrimSpace(cmd.PaymentStatus) != "" {
		if nextPayment, ok = domain.ParsePaymentStatus(cmd.PaymentStatus); !ok {
			return domain.Order{}, fmt.Errorf("%w: unknown payment status %q", ErrValidation, cmd.PaymentStatus)
		}
	}
	if nextDelivery == "" && nextPayment == "" {
		return domain.Order{}, fmt.Errorf("%w: delivery or payment status is required", ErrValidation)
	}
	// Cancellation decides the payment status itself.
	if nextDelivery == domain.DeliveryStatusCancelled && nextPayment != "" {
		return domain.Order{}, fmt.Errorf("%w: payment status cannot be set together with a cancellation", ErrValidation)
	}

	var (
		updated         domain.Order
		contact         orderContact
		paymentChanged  bool
		deliveryChanged bool
	)
	err := s.ledger.RunInTx(ctx, func(ctx context.Context, tx repositories.LedgerTx) error {
		paymentChanged, deliveryChanged = false, false
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return mapRepositoryError(err, "order %s", orderID)
		}
		if order.OrderStatus.IsTerminal() || order.DeliveryStatus.IsTerminal() {
			return ErrLockedState
		}
		now := s.now()

		if nextPayment != "" && nextPayment != order.PaymentStatus {
			if order.PaymentStatus.IsLocked() {
				return fmt.Errorf("%w: payment is already %s", ErrPaymentLocked, order.PaymentStatus)
			}
			order.PaymentStatus = nextPayment
			paymentChanged = true
		}

		if nextDelivery != "" && nextDelivery != order.DeliveryStatus {
			switch nextDelivery {
			case domain.DeliveryStatusCancelled:
				if err := s.releaseLines(ctx, tx, order.ID); err != nil {
					return err
				}
				applyCancellation(&order, now)
			default:
				if domain.DeliveryRank(nextDelivery) <= domain.DeliveryRank(order.DeliveryStatus) {
					return fmt.Errorf("%w: delivery cannot move from %s to %s", ErrInvalidState, order.DeliveryStatus, nextDelivery)
				}
				order.DeliveryStatus = nextDelivery
				if nextDelivery == domain.DeliveryStatusDelivered {
					order.OrderStatus = domain.OrderStatusCompleted
					order.DeliveredAt = &now
				}
			}
			deliveryChanged = true
		}

		if !paymentChanged && !deliveryChanged {
			updated = order
			return nil
		}
		order.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return mapRepositoryError(err, "update order %s", order.ID)
		}
		contact, err = loadContact(ctx, tx, order)
		if err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return domain.Order{}, mapRepositoryError(err, "update order %s", orderID)
	}
	if !paymentChanged && !deliveryChanged {
		return updated, nil
	}

	s.logger(ctx, "order.status_updated", map[string]any{
		"orderId":        updated.ID,
		"actorId":        cmd.ActorID,
		"deliveryStatus": updated.DeliveryStatus,
		"paymentStatus":  updated.PaymentStatus,
		"orderStatus":    updated.OrderStatus,
	})
	s.notifyUpdated(ctx, updated)
	to := recipients(contact.user, contact.address)
	if paymentChanged {
		s.sendEmail(ctx, s.mailer.payment(updated, contact.user, to))
	}
	if deliveryChanged {
		if updated.DeliveryStatus == domain.DeliveryStatusCancelled {
			s.sendEmail(ctx, s.mailer.cancellation(updated, contact.user, to))
		} else {
			s.sendEmail(ctx, s.mailer.delivery(updated, contact.user, to))
		}
	}
	return updated, nil
}

func (s *orderService) Cancel(ctx context.Context, orderID, userID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	userID = strings.TrimSpace(userID)
	if orderID == "" || userID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id and user id are required", ErrValidation)
	}

	var (
		cancelled domain.Order
		contact   orderContact
	)
	err := s.ledger.RunInTx(ctx, func(ctx context.Context, tx repositories.LedgerTx) error {
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return mapRepositoryError(err, "order %s", orderID)
		}
		if order.UserID != userID {
			return fmt.Errorf("%w: order %s", ErrNotFound, orderID)
		}
		if order.OrderStatus != domain.OrderStatusActive ||
			(order.DeliveryStatus != domain.DeliveryStatusPending && order.DeliveryStatus != domain.DeliveryStatusProcessing) {
			return fmt.Errorf("%w: delivery is %s", ErrCancellationNotAllowed, order.DeliveryStatus)
		}
		if err := s.releaseLines(ctx, tx, order.ID); err != nil {
			return err
		}
		now := s.now()
		applyCancellation(&order, now)
		order.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return mapRepositoryError(err, "update order %s", order.ID)
		}
		contact, err = loadContact(ctx, tx, order)
		if err != nil {
			return err
		}
		cancelled = order
		return nil
	})
	if err != nil {
		return domain.Order{}, mapRepositoryError(err, "cancel order %s", orderID)
	}

	s.logger(ctx, "order.cancelled", map[string]any{"orderId": cancelled.ID, "userId": userID, "paymentStatus": cancelled.PaymentStatus})
	s.notifyUpdated(ctx, cancelled)
	s.sendEmail(ctx, s.mailer.cancellation(cancelled, contact.user, recipients(contact.user, contact.address)))
	return cancelled, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID, userID string, admin bool) (OrderDetail, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return OrderDetail{}, fmt.Errorf("%w: order id is required", ErrValidation)
	}
	var detail OrderDetail
	err := s.ledger.RunInTx(ctx, func(ctx context.Context, tx repositories.LedgerTx) error {
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return mapRepositoryError(err, "order %s", orderID)
		}
		if !admin && order.UserID != strings.TrimSpace(userID) {
			return fmt.Errorf("%w: order %s", ErrNotFound, orderID)
		}
		items, err := tx.ListLineItems(ctx, orderID)
		if err != nil {
			return mapRepositoryError(err, "order items for %s", orderID)
		}
		detail = OrderDetail{Order: order, Items: items}
		return nil
	})
	if err != nil {
		return OrderDetail{}, mapRepositoryError(err, "get order %s", orderID)
	}
	return detail, nil
}

func (s *orderService) ListOrders(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if s.orders == nil {
		return nil, fmt.Errorf("%w: order listing not configured", ErrUnavailable)
	}
	switch {
	case limit <= 0:
		limit = defaultOrderListLimit
	case limit > maxOrderListLimit:
		limit = maxOrderListLimit
	}
	orders, err := s.orders.ListOrdersByUser(ctx, userID, limit)
	if err != nil {
		return nil, mapRepositoryError(err, "list orders for %s", userID)
	}
	return orders, nil
}

func (s *orderService) RetryInvoice(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrValidation)
	}
	if s.invoices == nil {
		return domain.Order{}, fmt.Errorf("%w: invoice queue not configured", ErrUnavailable)
	}

	var (
		order   domain.Order
		address *domain.Address
	)
	err := s.ledger.RunInTx(ctx, func(ctx context.Context, tx repositories.LedgerTx) error {
		var err error
		order, err = tx.GetOrder(ctx, orderID)
		if err != nil {
			return mapRepositoryError(err, "order %s", orderID)
		}
		if order.InvoiceStatus == domain.InvoiceStatusReady {
			return fmt.Errorf("%w: invoice already generated", ErrInvalidState)
		}
		if order.InvoiceStatus != domain.InvoiceStatusPending {
			order.InvoiceStatus = domain.InvoiceStatusPending
			order.UpdatedAt = s.now()
			if err := tx.UpdateOrder(ctx, order); err != nil {
				return mapRepositoryError(err, "update order %s", orderID)
			}
		}
		address = nil
		addr, err := tx.GetAddress(ctx, order.UserID, order.AddressID)
		switch {
		case err == nil:
			address = &addr
		case !isRepoNotFound(err):
			return mapRepositoryError(err, "address %s", order.AddressID)
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, mapRepositoryError(err, "retry invoice %s", orderID)
	}
	if err := s.invoices.EnqueueInvoice(ctx, domain.InvoiceJob{OrderID: order.ID, UserID: order.UserID, Address: address}); err != nil {
		return domain.Order{}, fmt.Errorf("%w: enqueue invoice: %v", ErrUnavailable, err)
	}
	s.logger(ctx, "order.invoice.retry_enqueued", map[string]any{"orderId": order.ID})
	return order, nil
}

func (s *orderService) afterPlacement(ctx context.Context, assembly Assembly) {
	order := assembly.Order
	payload := domain.ProjectOrderEvent(order)
	s.dispatcher.Go(ctx, "order.created.notify", func(ctx context.Context) error {
		if s.notifier == nil {
			return nil
		}
		return errors.Join(
			s.notifier.Publish(ctx, domain.RoomAdmin, domain.EventOrderCreated, payload),
			s.notifier.Publish(ctx, domain.UserRoom(order.UserID), domain.EventOrderCreated, payload),
		)
	})
	address := assembly.Address
	s.dispatcher.Go(ctx, "order.invoice.enqueue", func(ctx context.Context) error {
		if s.invoices == nil {
			return nil
		}
		return s.invoices.EnqueueInvoice(ctx, domain.InvoiceJob{OrderID: order.ID, UserID: order.UserID, Address: &address})
	})
}

func (s *orderService) notifyUpdated(ctx context.Context, order domain.Order) {
	if s.notifier == nil {
		return
	}
	payload := domain.ProjectOrderEvent(order)
	s.dispatcher.Go(ctx, "order.updated.notify", func(ctx context.Context) error {
		return errors.Join(
			s.notifier.Publish(ctx, domain.RoomAdmin, domain.EventOrderUpdated, payload),
			s.notifier.Publish(ctx, domain.UserRoom(order.UserID), domain.EventOrderUpdated, payload),
		)
	})
}

func (s *orderService) sendEmail(ctx context.Context, job domain.EmailJob) {
	if s.emails == nil {
		return
	}
	if len(job.To) == 0 {
		s.logger(ctx, "order.email.skipped", map[string]any{"orderId": job.OrderID, "kind": job.Kind})
		return
	}
	s.dispatcher.Go(ctx, "order.email."+string(job.Kind), func(ctx context.Context) error {
		return s.emails.EnqueueEmail(ctx, job)
	})
}

func (s *orderService) releaseLines(ctx context.Context, tx repositories.LedgerTx, orderID string) error {
	items, err := tx.ListLineItems(ctx, orderID)
	if err != nil {
		return mapRepositoryError(err, "order items for %s", orderID)
	}
	for _, item := range items {
		if err := s.stock.Release(ctx, tx, item.SizeID, item.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// applyCancellation moves an order into the cancelled state. A settled online payment becomes
// Refunded; anything else is Cancelled.
func applyCancellation(order *domain.Order, now time.Time) {
	order.OrderStatus = domain.OrderStatusCancelled
	order.DeliveryStatus = domain.DeliveryStatusCancelled
	order.CancelledAt = &now
	if order.PaymentMode == domain.PaymentModeOnline && order.PaymentStatus == domain.PaymentStatusPaid {
		order.PaymentStatus = domain.PaymentStatusRefunded
	} else {
		order.PaymentStatus = domain.PaymentStatusCancelled
	}
}

type orderContact struct {
	user    domain.User
	address *domain.Address
}

// loadContact reads the customer and delivery address for notifications. Missing records leave
// the corresponding field empty.
func loadContact(ctx context.Context, tx repositories.LedgerTx, order domain.Order) (orderContact, error) {
	var contact orderContact
	user, err := tx.GetUser(ctx, order.UserID)
	switch {
	case err == nil:
		contact.user = user
	case !isRepoNotFound(err):
		return orderContact{}, mapRepositoryError(err, "user %s", order.UserID)
	}
	address, err := tx.GetAddress(ctx, order.UserID, order.AddressID)
	switch {
	case err == nil:
		contact.address = &address
	case !isRepoNotFound(err):
		return orderContact{}, mapRepositoryError(err, "address %s", order.AddressID)
	}
	return contact, nil
}
