package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	domain "github.com/Abhranil-01/dsport-backend-api/internal/domain"
	"github.com/Abhranil-01/dsport-backend-api/internal/repositories"
)

type ledgerTx struct {
	store        *Ledger
	reads        map[string]entry
	writes       map[string]*entry
	order        []string
	touchedCarts []string
}

var _ repositories.LedgerTx = (*ledgerTx)(nil)

func (t *ledgerTx) get(key string) (any, bool) {
	if w, ok := t.writes[key]; ok {
		if w == nil {
			return nil, false
		}
		return w.value, true
	}
	e, seen := t.reads[key]
	if !seen {
		// The first read pins the value so later reads in the same attempt are repeatable.
		e, _ = t.store.read(key)
		t.reads[key] = e
	}
	if e.value == nil {
		return nil, false
	}
	return e.value, true
}

func (t *ledgerTx) set(key string, value any) {
	if _, ok := t.writes[key]; !ok {
		t.order = append(t.order, key)
	}
	if value == nil {
		t.writes[key] = nil
		return
	}
	t.writes[key] = &entry{value: value}
}

func (t *ledgerTx) touchCart(userID string) {
	if !slices.Contains(t.touchedCarts, userID) {
		t.touchedCarts = append(t.touchedCarts, userID)
	}
}

func (t *ledgerTx) GetAddress(_ context.Context, userID, addressID string) (domain.Address, error) {
	v, ok := t.get(addressKey(addressID))
	if !ok {
		return domain.Address{}, repositories.NotFound("addresses.get", "address %s not found", addressID)
	}
	addr := v.(domain.Address)
	if addr.UserID != userID {
		return domain.Address{}, repositories.NotFound("addresses.get", "address %s not found", addressID)
	}
	return addr, nil
}

func (t *ledgerTx) GetUser(_ context.Context, userID string) (domain.User, error) {
	v, ok := t.get(userKey(userID))
	if !ok {
		return domain.User{}, repositories.NotFound("users.get", "user %s not found", userID)
	}
	return v.(domain.User), nil
}

func (t *ledgerTx) ListCartItems(_ context.Context, userID string) ([]domain.CartItem, error) {
	// Reading the index pins the set of cart rows for this user; inserts and deletes bump it.
	t.get(cartIndexKey(userID))

	t.store.mu.Lock()
	var keys []string
	for key, e := range t.store.records {
		if !strings.HasPrefix(key, prefixCart) || e.value == nil {
			continue
		}
		if e.value.(domain.CartItem).UserID == userID {
			keys = append(keys, key)
		}
	}
	t.store.mu.Unlock()

	for key, w := range t.writes {
		if w != nil && strings.HasPrefix(key, prefixCart) && w.value.(domain.CartItem).UserID == userID && !slices.Contains(keys, key) {
			keys = append(keys, key)
		}
	}

	items := make([]domain.CartItem, 0, len(keys))
	for _, key := range keys {
		v, ok := t.get(key)
		if !ok {
			continue
		}
		item := v.(domain.CartItem)
		if item.UserID == userID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (t *ledgerTx) GetCartItem(_ context.Context, itemID string) (domain.CartItem, error) {
	v, ok := t.get(cartKey(itemID))
	if !ok {
		return domain.CartItem{}, repositories.NotFound("cartItems.get", "cart item %s not found", itemID)
	}
	return v.(domain.CartItem), nil
}

func (t *ledgerTx) GetCartItems(_ context.Context, userID string, itemIDs []string) ([]domain.CartItem, error) {
	items := make([]domain.CartItem, 0, len(itemIDs))
	for _, id := range itemIDs {
		v, ok := t.get(cartKey(id))
		if !ok {
			continue
		}
		item := v.(domain.CartItem)
		if item.UserID != userID {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (t *ledgerTx) PutCartItem(_ context.Context, item domain.CartItem) error {
	if strings.TrimSpace(item.ID) == "" {
		return fmt.Errorf("memory ledger: cart item id is required")
	}
	t.set(cartKey(item.ID), item)
	t.touchCart(item.UserID)
	return nil
}

func (t *ledgerTx) DeleteCartItems(_ context.Context, itemIDs []string) error {
	for _, id := range itemIDs {
		v, ok := t.get(cartKey(id))
		if !ok {
			continue
		}
		t.set(cartKey(id), nil)
		t.touchCart(v.(domain.CartItem).UserID)
	}
	return nil
}

func (t *ledgerTx) GetStock(_ context.Context, key string) (domain.StockRecord, error) {
	v, ok := t.get(stockKey(key))
	if !ok {
		return domain.StockRecord{}, repositories.NotFound("stockRecords.get", "stock %s not found", key)
	}
	stock := v.(domain.StockRecord)
	stock.Version = t.reads[stockKey(key)].version
	return stock, nil
}

func (t *ledgerTx) ReserveStock(ctx context.Context, key string, qty int) (bool, error) {
	stock, err := t.GetStock(ctx, key)
	if err != nil {
		return false, err
	}
	if qty <= 0 || stock.Available < qty {
		return false, nil
	}
	stock.Available -= qty
	stock.UpdatedAt = t.store.clock().UTC()
	t.set(stockKey(key), stock)
	return true, nil
}

func (t *ledgerTx) ReleaseStock(ctx context.Context, key string, qty int) error {
	stock, err := t.GetStock(ctx, key)
	if err != nil {
		return err
	}
	stock.Available += qty
	stock.UpdatedAt = t.store.clock().UTC()
	t.set(stockKey(key), stock)
	return nil
}

func (t *ledgerTx) GetCharges(_ context.Context, userID string) (domain.ChargesSnapshot, error) {
	v, ok := t.get(chargesKey(userID))
	if !ok {
		return domain.ChargesSnapshot{}, repositories.NotFound("charges.get", "charges for %s not found", userID)
	}
	return v.(domain.ChargesSnapshot), nil
}

func (t *ledgerTx) PutCharges(_ context.Context, snapshot domain.ChargesSnapshot) error {
	t.set(chargesKey(snapshot.UserID), snapshot)
	return nil
}

func (t *ledgerTx) DeleteCharges(_ context.Context, userID string) error {
	if _, ok := t.get(chargesKey(userID)); ok {
		t.set(chargesKey(userID), nil)
	}
	return nil
}

func (t *ledgerTx) GetOrder(_ context.Context, orderID string) (domain.Order, error) {
	v, ok := t.get(orderKey(orderID))
	if !ok {
		return domain.Order{}, repositories.NotFound("orders.get", "order %s not found", orderID)
	}
	order := cloneOrder(v.(domain.Order))
	order.Version = t.reads[orderKey(orderID)].version
	return order, nil
}

func (t *ledgerTx) InsertOrder(_ context.Context, order domain.Order) error {
	if _, exists := t.get(orderKey(order.ID)); exists {
		return repositories.NewLedgerError("orders.insert", repositories.LedgerErrorConflict, fmt.Sprintf("order %s already exists", order.ID))
	}
	t.set(orderKey(order.ID), cloneOrder(order))
	return nil
}

func (t *ledgerTx) UpdateOrder(_ context.Context, order domain.Order) error {
	if _, exists := t.get(orderKey(order.ID)); !exists {
		return repositories.NotFound("orders.update", "order %s not found", order.ID)
	}
	t.set(orderKey(order.ID), cloneOrder(order))
	return nil
}

func (t *ledgerTx) InsertLineItems(_ context.Context, items []domain.OrderLineItem) error {
	grouped := make(map[string][]domain.OrderLineItem)
	for _, item := range items {
		grouped[item.OrderID] = append(grouped[item.OrderID], item)
	}
	for orderID, batch := range grouped {
		key := lineItemsKey(orderID)
		var existing []domain.OrderLineItem
		if v, ok := t.get(key); ok {
			existing = v.([]domain.OrderLineItem)
		}
		t.set(key, append(slices.Clone(existing), batch...))
	}
	return nil
}

func (t *ledgerTx) ListLineItems(_ context.Context, orderID string) ([]domain.OrderLineItem, error) {
	v, ok := t.get(lineItemsKey(orderID))
	if !ok {
		return nil, nil
	}
	return slices.Clone(v.([]domain.OrderLineItem)), nil
}
