package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/Abhranil-01/dsport-backend-api/internal/domain"
	"github.com/Abhranil-01/dsport-backend-api/internal/repositories"
)

var (
	errCartLedgerRequired  = errors.New("cart service: ledger is required")
	errCartChargesRequired = errors.New("cart service: charges calculator is required")
)

// CartServiceDeps wires the ledger and pricing dependencies for cart operations.
type CartServiceDeps struct {
	Ledger  repositories.Ledger
	Charges *ChargesCalculator
	Clock   func() time.Time
	Logger  func(context.Context, string, map[string]any)
}

type cartService struct {
	ledger  repositories.Ledger
	charges *ChargesCalculator
	now     func() time.Time
	logger  func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Ledger == nil {
		return nil, errCartLedgerRequired
	}
	if deps.Charges == nil {
		return nil, errCartChargesRequired
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cartService{
		ledger:  deps.Ledger,
		charges: deps.Charges,
		now:     func() time.Time { return clock().UTC() },
		logger:  logger,
	}, nil
}

func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error) {
	userID := strings.TrimSpace(cmd.UserID)
	variantID := strings.TrimSpace(cmd.VariantID)
	sizeID := strings.TrimSpace(cmd.SizeID)
	if userID == "" {
		return CartView{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if variantID == "" || sizeID == "" {
		return CartView{}, fmt.Errorf("%w: variant and size are required", ErrValidation)
	}
	if cmd.Quantity <= 0 {
		return CartView{}, fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
	}

	var view CartView
	err := s.ledger.RunInTx(ctx, func(ctx context.Context, tx repositories.LedgerTx) error {
		stock, err := tx.GetStock(ctx, sizeID)
		if err != nil {
			return mapRepositoryError(err, "product size %s", sizeID)
		}
		now := s.now()
		item := domain.CartItem{
			ID:        domain.CartItemID(userID, variantID, sizeID),
			UserID:    userID,
			VariantID: variantID,
			SizeID:    sizeID,
			CreatedAt: now,
		}
		existing, err := tx.GetCartItem(ctx, item.ID)
		switch {
		case err == nil:
			item = existing
		case !isRepoNotFound(err):
			return mapRepositoryError(err, "cart item %s", item.ID)
		}

		quantity := item.Quantity + cmd.Quantity
		if quantity > stock.Available {
			return insufficientStock(sizeID, stock.Available)
		}
		item.Quantity = quantity
		item.LineTotal = stock.OfferPrice * int64(quantity)
		item.UpdatedAt = now
		if err := tx.PutCartItem(ctx, item); err != nil {
			return mapRepositoryError(err, "store cart item %s", item.ID)
		}
		if _, err := s.charges.Recalculate(ctx, tx, userID); err != nil {
			return err
		}
		view, err = s.buildView(ctx, tx, userID)
		return err
	})
	if err != nil {
		return CartView{}, mapRepositoryError(err, "add cart item")
	}
	s.logger(ctx, "cart.item_added", map[string]any{"userId": userID, "sizeId": sizeID, "quantity": cmd.Quantity})
	return view, nil
}

func (s *cartService) UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (CartView, error) {
	userID := strings.TrimSpace(cmd.UserID)
	itemID := strings.TrimSpace(cmd.ItemID)
	if userID == "" || itemID == "" {
		return CartView{}, fmt.Errorf("%w: user id and item id are required", ErrValidation)
	}
	if cmd.Quantity != nil && *cmd.Quantity <= 0 {
		return CartView{}, fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
	}
	newSize := strings.TrimSpace(cmd.SizeID)

	var view CartView
	err := s.ledger.RunInTx(ctx, func(ctx context.Context, tx repositories.LedgerTx) error {
		current, err := s.ownedItem(ctx, tx, userID, itemID)
		if err != nil {
			return err
		}
		quantity := current.Quantity
		if cmd.Quantity != nil {
			quantity = *cmd.Quantity
		}
		sizeID := current.SizeID
		if newSize != "" {
			sizeID = newSize
		}

		stock, err := tx.GetStock(ctx, sizeID)
		if err != nil {
			return mapRepositoryError(err, "product size %s", sizeID)
		}
		if quantity > stock.Available {
			return insufficientStock(sizeID, stock.Available)
		}

		now := s.now()
		target := current
		if sizeID != current.SizeID {
			// A size change lands on the row for the new triple; an existing row there absorbs it.
			targetID := domain.CartItemID(userID, current.VariantID, sizeID)
			existing, err := tx.GetCartItem(ctx, targetID)
			switch {
			case err == nil:
				target = existing
			case isRepoNotFound(err):
				target = domain.CartItem{
					ID:        targetID,
					UserID:    userID,
					VariantID: current.VariantID,
					SizeID:    sizeID,
					CreatedAt: now,
				}
			default:
				return mapRepositoryError(err, "cart item %s", targetID)
			}
			if err := tx.DeleteCartItems(ctx, []string{current.ID}); err != nil {
				return mapRepositoryError(err, "delete cart item %s", current.ID)
			}
		}
		target.Quantity = quantity
		target.LineTotal = stock.OfferPrice * int64(quantity)
		target.UpdatedAt = now
		if err := tx.PutCartItem(ctx, target); err != nil {
			return mapRepositoryError(err, "store cart item %s", target.ID)
		}
		if _, err := s.charges.Recalculate(ctx, tx, userID); err != nil {
			return err
		}
		view, err = s.buildView(ctx, tx, userID)
		return err
	})
	if err != nil {
		return CartView{}, mapRepositoryError(err, "update cart item %s", itemID)
	}
	s.logger(ctx, "cart.item_updated", map[string]any{"userId": userID, "itemId": itemID})
	return view, nil
}

func (s *cartService) RemoveItem(ctx context.Context, userID, itemID string) (CartView, error) {
	userID = strings.TrimSpace(userID)
	itemID = strings.TrimSpace(itemID)
	if userID == "" || itemID == "" {
		return CartView{}, fmt.Errorf("%w: user id and item id are required", ErrValidation)
	}

	var view CartView
	err := s.ledger.RunInTx(ctx, func(ctx context.Context, tx repositories.LedgerTx) error {
		if _, err := s.ownedItem(ctx, tx, userID, itemID); err != nil {
			return err
		}
		if err := tx.DeleteCartItems(ctx, []string{itemID}); err != nil {
			return mapRepositoryError(err, "delete cart item %s", itemID)
		}
		if _, err := s.charges.Recalculate(ctx, tx, userID); err != nil {
			return err
		}
		var err error
		view, err = s.buildView(ctx, tx, userID)
		return err
	})
	if err != nil {
		return CartView{}, mapRepositoryError(err, "remove cart item %s", itemID)
	}
	s.logger(ctx, "cart.item_removed", map[string]any{"userId": userID, "itemId": itemID})
	return view, nil
}

func (s *cartService) GetCart(ctx context.Context, userID string) (CartView, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return CartView{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	var view CartView
	err := s.ledger.RunInTx(ctx, func(ctx context.Context, tx repositories.LedgerTx) error {
		var err error
		view, err = s.buildView(ctx, tx, userID)
		return err
	})
	if err != nil {
		return CartView{}, mapRepositoryError(err, "get cart")
	}
	return view, nil
}

func (s *cartService) GetCharges(ctx context.Context, userID string) (domain.ChargesSnapshot, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.ChargesSnapshot{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	var snapshot domain.ChargesSnapshot
	err := s.ledger.RunInTx(ctx, func(ctx context.Context, tx repositories.LedgerTx) error {
		var err error
		snapshot, err = tx.GetCharges(ctx, userID)
		return err
	})
	if err != nil {
		return domain.ChargesSnapshot{}, mapRepositoryError(err, "charges for %s", userID)
	}
	return snapshot, nil
}

func (s *cartService) ownedItem(ctx context.Context, tx repositories.LedgerTx, userID, itemID string) (domain.CartItem, error) {
	item, err := tx.GetCartItem(ctx, itemID)
	if err != nil {
		return domain.CartItem{}, mapRepositoryError(err, "cart item %s", itemID)
	}
	if item.UserID != userID {
		return domain.CartItem{}, fmt.Errorf("%w: cart item %s", ErrNotFound, itemID)
	}
	return item, nil
}

// buildView joins the caller's cart to current stock. Lines whose stock record disappeared are
// omitted from the view.
func (s *cartService) buildView(ctx context.Context, tx repositories.LedgerTx, userID string) (CartView, error) {
	items, err := tx.ListCartItems(ctx, userID)
	if err != nil {
		return CartView{}, mapRepositoryError(err, "list cart for %s", userID)
	}
	view := CartView{Items: make([]domain.CartLineView, 0, len(items))}
	for _, item := range items {
		stock, err := tx.GetStock(ctx, item.SizeID)
		if err != nil {
			if isRepoNotFound(err) {
				continue
			}
			return CartView{}, mapRepositoryError(err, "stock %s", item.SizeID)
		}
		view.Items = append(view.Items, domain.ProjectCartLine(item, stock))
	}
	snapshot, err := tx.GetCharges(ctx, userID)
	switch {
	case err == nil:
		charges := domain.ProjectCharges(snapshot)
		view.Charges = &charges
	case !isRepoNotFound(err):
		return CartView{}, mapRepositoryError(err, "charges for %s", userID)
	}
	return view, nil
}
