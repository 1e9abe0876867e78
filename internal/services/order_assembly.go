package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/Abhranil-01/dsport-backend-api/internal/domain"
	"github.com/Abhranil-01/dsport-backend-api/internal/repositories"
)

const (
	orderIDPrefix    = "ord_"
	lineItemIDPrefix = "oli_"
)

// AssembleCommand carries everything needed to convert cart lines into an order.
type AssembleCommand struct {
	UserID      string
	AddressID   string
	CartItemIDs []string
	ChargesID   string
	PaymentMode domain.PaymentMode
	Payment     *domain.PaymentReference
}

// Assembly is a committed order together with the records read while creating it.
type Assembly struct {
	Order   domain.Order
	Items   []domain.OrderLineItem
	Address domain.Address
}

// OrderAssemblerDeps wires the assembler.
type OrderAssemblerDeps struct {
	Ledger      repositories.Ledger
	Stock       *StockEngine
	Charges     *ChargesCalculator
	Clock       func() time.Time
	IDGenerator func() string
}

// OrderAssembler runs the order assembly transaction.
type OrderAssembler struct {
	ledger  repositories.Ledger
	stock   *StockEngine
	charges *ChargesCalculator
	now     func() time.Time
	newID   func() string
}

// NewOrderAssembler validates deps and constructs an assembler.
func NewOrderAssembler(deps OrderAssemblerDeps) (*OrderAssembler, error) {
	if deps.Ledger == nil {
		return nil, errors.New("order assembler: ledger is required")
	}
	if deps.Stock == nil {
		return nil, errors.New("order assembler: stock engine is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &OrderAssembler{
		ledger:  deps.Ledger,
		stock:   deps.Stock,
		charges: deps.Charges,
		now:     func() time.Time { return clock().UTC() },
		newID:   idGen,
	}, nil
}

// Assemble reserves stock for the selected cart lines and commits the order. Either every step
// takes effect or none does.
func (a *OrderAssembler) Assemble(ctx context.Context, cmd AssembleCommand) (domain.Order, error) {
	result, err := a.AssembleDetailed(ctx, cmd)
	if err != nil {
		return domain.Order{}, err
	}
	return result.Order, nil
}

// AssembleDetailed is Assemble returning the line items and the delivery address as well.
func (a *OrderAssembler) AssembleDetailed(ctx context.Context, cmd AssembleCommand) (Assembly, error) {
	cmd, err := normalizeAssemble(cmd)
	if err != nil {
		return Assembly{}, err
	}

	var result Assembly
	err = a.ledger.RunInTx(ctx, func(ctx context.Context, tx repositories.LedgerTx) error {
		address, err := tx.GetAddress(ctx, cmd.UserID, cmd.AddressID)
		if err != nil {
			return mapRepositoryError(err, "address %s", cmd.AddressID)
		}

		items, err := tx.GetCartItems(ctx, cmd.UserID, cmd.CartItemIDs)
		if err != nil {
			return mapRepositoryError(err, "cart items")
		}
		if len(items) != len(cmd.CartItemIDs) {
			return fmt.Errorf("%w: some cart items not found", ErrInvalidState)
		}

		stocks := make([]domain.StockRecord, len(items))
		for i, item := range items {
			stock, err := tx.GetStock(ctx, item.SizeID)
			if err != nil {
				return mapRepositoryError(err, "stock %s", item.SizeID)
			}
			if stock.Available < item.Quantity {
				return insufficientStock(item.SizeID, stock.Available)
			}
			stocks[i] = stock
		}

		for i, item := range items {
			outcome, err := a.stock.Reserve(ctx, tx, item.SizeID, item.Quantity)
			if err != nil {
				return err
			}
			if outcome != Reserved {
				return insufficientStock(item.SizeID, stocks[i].Available)
			}
		}

		snapshot, err := tx.GetCharges(ctx, cmd.UserID)
		if err != nil {
			if isRepoNotFound(err) {
				return fmt.Errorf("%w: invalid charges data", ErrInvalidState)
			}
			return mapRepositoryError(err, "charges for %s", cmd.UserID)
		}
		if snapshot.ID != cmd.ChargesID || snapshot.UserID != cmd.UserID {
			return fmt.Errorf("%w: invalid charges data", ErrInvalidState)
		}

		now := a.now()
		order := domain.Order{
			ID:             orderIDPrefix + a.newID(),
			UserID:         cmd.UserID,
			AddressID:      address.ID,
			Charges:        domain.FreezeCharges(snapshot),
			PaymentMode:    cmd.PaymentMode,
			PaymentStatus:  domain.PaymentStatusPending,
			OrderStatus:    domain.OrderStatusActive,
			DeliveryStatus: domain.DeliveryStatusPending,
			InvoiceStatus:  domain.InvoiceStatusPending,
			Payment:        cmd.Payment,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if cmd.PaymentMode == domain.PaymentModeOnline {
			order.PaymentStatus = domain.PaymentStatusPaid
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return mapRepositoryError(err, "insert order %s", order.ID)
		}

		lines := make([]domain.OrderLineItem, 0, len(items))
		for i, item := range items {
			lines = append(lines, domain.OrderLineItem{
				ID:        lineItemIDPrefix + a.newID(),
				OrderID:   order.ID,
				VariantID: item.VariantID,
				SizeID:    item.SizeID,
				Name:      stocks[i].Name,
				Size:      stocks[i].Size,
				Quantity:  item.Quantity,
				Price:     stocks[i].OfferPrice * int64(item.Quantity),
			})
		}
		if err := tx.InsertLineItems(ctx, lines); err != nil {
			return mapRepositoryError(err, "insert order items for %s", order.ID)
		}

		if err := tx.DeleteCartItems(ctx, cmd.CartItemIDs); err != nil {
			return mapRepositoryError(err, "delete cart items")
		}
		if err := a.settleCharges(ctx, tx, cmd.UserID); err != nil {
			return err
		}

		result = Assembly{Order: order, Items: lines, Address: address}
		return nil
	})
	if err != nil {
		return Assembly{}, mapRepositoryError(err, "assemble order")
	}
	return result, nil
}

// settleCharges drops the consumed snapshot. When cart lines outside the order remain, the
// snapshot is rebuilt for them instead.
func (a *OrderAssembler) settleCharges(ctx context.Context, tx repositories.LedgerTx, userID string) error {
	if a.charges != nil {
		_, err := a.charges.Recalculate(ctx, tx, userID)
		return err
	}
	if err := tx.DeleteCharges(ctx, userID); err != nil {
		return mapRepositoryError(err, "delete charges for %s", userID)
	}
	return nil
}

func normalizeAssemble(cmd AssembleCommand) (AssembleCommand, error) {
	cmd.UserID = strings.TrimSpace(cmd.UserID)
	cmd.AddressID = strings.TrimSpace(cmd.AddressID)
	cmd.ChargesID = strings.TrimSpace(cmd.ChargesID)
	if cmd.UserID == "" {
		return cmd, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if cmd.AddressID == "" {
		return cmd, fmt.Errorf("%w: address id is required", ErrValidation)
	}
	if cmd.ChargesID == "" {
		return cmd, fmt.Errorf("%w: charges id is required", ErrValidation)
	}
	switch cmd.PaymentMode {
	case domain.PaymentModeCOD, domain.PaymentModeOnline:
	default:
		return cmd, fmt.Errorf("%w: unsupported payment mode %q", ErrValidation, cmd.PaymentMode)
	}

	seen := make(map[string]struct{}, len(cmd.CartItemIDs))
	ids := make([]string, 0, len(cmd.CartItemIDs))
	for _, id := range cmd.CartItemIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return cmd, fmt.Errorf("%w: at least one cart item is required", ErrValidation)
	}
	cmd.CartItemIDs = ids
	return cmd, nil
}
