package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/Abhranil-01/dsport-backend-api/internal/domain"
	pfirestore "github.com/Abhranil-01/dsport-backend-api/internal/platform/firestore"
	"github.com/Abhranil-01/dsport-backend-api/internal/repositories"
)

type cachedDoc struct {
	exists bool
	value  any
}

type stagedWrite struct {
	ref    *firestore.DocumentRef
	value  any
	doc    any
	create bool
}

// ledgerTx is created fresh for every attempt Firestore makes, so its read cache and staged writes
// never leak across retries.
type ledgerTx struct {
	client *firestore.Client
	tx     *firestore.Transaction
	cache  map[string]cachedDoc
	writes map[string]*stagedWrite
	order  []string
}

var _ repositories.LedgerTx = (*ledgerTx)(nil)

func newLedgerTx(client *firestore.Client, tx *firestore.Transaction) *ledgerTx {
	return &ledgerTx{
		client: client,
		tx:     tx,
		cache:  make(map[string]cachedDoc),
		writes: make(map[string]*stagedWrite),
	}
}

func (t *ledgerTx) doc(collection, id string) *firestore.DocumentRef {
	return t.client.Collection(collection).Doc(id)
}

// load returns the staged or cached value for ref, fetching and decoding it on first access.
func (t *ledgerTx) load(ref *firestore.DocumentRef, decode func(*firestore.DocumentSnapshot) (any, error)) (any, bool, error) {
	if w, ok := t.writes[ref.Path]; ok {
		return w.value, w.value != nil, nil
	}
	if c, ok := t.cache[ref.Path]; ok {
		return c.value, c.exists, nil
	}
	snap, err := t.tx.Get(ref)
	if status.Code(err) == codes.NotFound {
		t.cache[ref.Path] = cachedDoc{}
		return nil, false, nil
	}
	if err != nil {
		return nil, false, pfirestore.WrapError(ref.Parent.ID+".get", err)
	}
	value, err := decode(snap)
	if err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", ref.Path, err)
	}
	t.cache[ref.Path] = cachedDoc{exists: true, value: value}
	return value, true, nil
}

func (t *ledgerTx) stage(ref *firestore.DocumentRef, value, doc any, create bool) {
	if _, ok := t.writes[ref.Path]; !ok {
		t.order = append(t.order, ref.Path)
	}
	t.writes[ref.Path] = &stagedWrite{ref: ref, value: value, doc: doc, create: create}
}

func (t *ledgerTx) flush() error {
	for _, path := range t.order {
		w := t.writes[path]
		var err error
		switch {
		case w.value == nil:
			err = t.tx.Delete(w.ref)
		case w.create:
			err = t.tx.Create(w.ref, w.doc)
		default:
			err = t.tx.Set(w.ref, w.doc)
		}
		if err != nil {
			return pfirestore.WrapError(w.ref.Parent.ID+".write", err)
		}
	}
	return nil
}

func decodeAddress(snap *firestore.DocumentSnapshot) (any, error) {
	var d addressDocument
	if err := snap.DataTo(&d); err != nil {
		return nil, err
	}
	return d.toDomain(snap.Ref.ID), nil
}

func decodeUser(snap *firestore.DocumentSnapshot) (any, error) {
	var d userDocument
	if err := snap.DataTo(&d); err != nil {
		return nil, err
	}
	return domain.User{ID: snap.Ref.ID, FullName: d.FullName, Email: d.Email, Phone: d.Phone}, nil
}

func decodeCartItem(snap *firestore.DocumentSnapshot) (any, error) {
	var d cartItemDocument
	if err := snap.DataTo(&d); err != nil {
		return nil, err
	}
	return d.toDomain(snap.Ref.ID), nil
}

func decodeStock(snap *firestore.DocumentSnapshot) (any, error) {
	var d stockDocument
	if err := snap.DataTo(&d); err != nil {
		return nil, err
	}
	return d.toDomain(snap.Ref.ID), nil
}

func decodeCharges(snap *firestore.DocumentSnapshot) (any, error) {
	var d chargesDocument
	if err := snap.DataTo(&d); err != nil {
		return nil, err
	}
	return d.toDomain(snap.Ref.ID), nil
}

func decodeOrder(snap *firestore.DocumentSnapshot) (any, error) {
	var d orderDocument
	if err := snap.DataTo(&d); err != nil {
		return nil, err
	}
	return d.toDomain(snap.Ref.ID), nil
}

func decodeLineItem(snap *firestore.DocumentSnapshot) (any, error) {
	var d lineItemDocument
	if err := snap.DataTo(&d); err != nil {
		return nil, err
	}
	return d.toDomain(snap.Ref.ID), nil
}

func (t *ledgerTx) GetAddress(_ context.Context, userID, addressID string) (domain.Address, error) {
	v, ok, err := t.load(t.doc(addressesCollection, addressID), decodeAddress)
	if err != nil {
		return domain.Address{}, err
	}
	if !ok || v.(domain.Address).UserID != userID {
		return domain.Address{}, repositories.NotFound("addresses.get", "address %s not found", addressID)
	}
	return v.(domain.Address), nil
}

func (t *ledgerTx) GetUser(_ context.Context, userID string) (domain.User, error) {
	v, ok, err := t.load(t.doc(usersCollection, userID), decodeUser)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, repositories.NotFound("users.get", "user %s not found", userID)
	}
	return v.(domain.User), nil
}

func (t *ledgerTx) ListCartItems(_ context.Context, userID string) ([]domain.CartItem, error) {
	query := t.client.Collection(cartItemsCollection).Where("userId", "==", userID)
	snaps, err := t.tx.Documents(query).GetAll()
	if err != nil {
		return nil, pfirestore.WrapError("cartItems.query", err)
	}

	byPath := make(map[string]domain.CartItem, len(snaps))
	for _, snap := range snaps {
		if _, staged := t.writes[snap.Ref.Path]; staged {
			continue
		}
		v, err := decodeCartItem(snap)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", snap.Ref.Path, err)
		}
		t.cache[snap.Ref.Path] = cachedDoc{exists: true, value: v}
		byPath[snap.Ref.Path] = v.(domain.CartItem)
	}
	for path, w := range t.writes {
		if !strings.HasPrefix(path, t.client.Collection(cartItemsCollection).Path+"/") {
			continue
		}
		if item, ok := w.value.(domain.CartItem); ok && item.UserID == userID {
			byPath[path] = item
		}
	}

	items := make([]domain.CartItem, 0, len(byPath))
	for _, item := range byPath {
		items = append(items, item)
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
	v, ok, err := t.load(t.doc(cartItemsCollection, itemID), decodeCartItem)
	if err != nil {
		return domain.CartItem{}, err
	}
	if !ok {
		return domain.CartItem{}, repositories.NotFound("cartItems.get", "cart item %s not found", itemID)
	}
	return v.(domain.CartItem), nil
}

func (t *ledgerTx) GetCartItems(ctx context.Context, userID string, itemIDs []string) ([]domain.CartItem, error) {
	items := make([]domain.CartItem, 0, len(itemIDs))
	for _, id := range itemIDs {
		item, err := t.GetCartItem(ctx, id)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		if item.UserID == userID {
			items = append(items, item)
		}
	}
	return items, nil
}

func (t *ledgerTx) PutCartItem(_ context.Context, item domain.CartItem) error {
	if strings.TrimSpace(item.ID) == "" {
		return fmt.Errorf("firestore ledger: cart item id is required")
	}
	t.stage(t.doc(cartItemsCollection, item.ID), item, newCartItemDocument(item), false)
	return nil
}

func (t *ledgerTx) DeleteCartItems(_ context.Context, itemIDs []string) error {
	for _, id := range itemIDs {
		t.stage(t.doc(cartItemsCollection, id), nil, nil, false)
	}
	return nil
}

func (t *ledgerTx) GetStock(_ context.Context, key string) (domain.StockRecord, error) {
	v, ok, err := t.load(t.doc(stockCollection, key), decodeStock)
	if err != nil {
		return domain.StockRecord{}, err
	}
	if !ok {
		return domain.StockRecord{}, repositories.NotFound("stockRecords.get", "stock %s not found", key)
	}
	return v.(domain.StockRecord), nil
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
	t.putStock(stock)
	return true, nil
}

func (t *ledgerTx) ReleaseStock(ctx context.Context, key string, qty int) error {
	stock, err := t.GetStock(ctx, key)
	if err != nil {
		return err
	}
	stock.Available += qty
	t.putStock(stock)
	return nil
}

func (t *ledgerTx) putStock(stock domain.StockRecord) {
	stock.Version++
	stock.UpdatedAt = time.Now().UTC()
	t.stage(t.doc(stockCollection, stock.Key), stock, newStockDocument(stock), false)
}

func (t *ledgerTx) GetCharges(_ context.Context, userID string) (domain.ChargesSnapshot, error) {
	v, ok, err := t.load(t.doc(chargesCollection, userID), decodeCharges)
	if err != nil {
		return domain.ChargesSnapshot{}, err
	}
	if !ok {
		return domain.ChargesSnapshot{}, repositories.NotFound("charges.get", "charges for %s not found", userID)
	}
	return v.(domain.ChargesSnapshot), nil
}

func (t *ledgerTx) PutCharges(_ context.Context, snapshot domain.ChargesSnapshot) error {
	t.stage(t.doc(chargesCollection, snapshot.UserID), snapshot, newChargesDocument(snapshot), false)
	return nil
}

func (t *ledgerTx) DeleteCharges(_ context.Context, userID string) error {
	t.stage(t.doc(chargesCollection, userID), nil, nil, false)
	return nil
}

func (t *ledgerTx) GetOrder(_ context.Context, orderID string) (domain.Order, error) {
	v, ok, err := t.load(t.doc(ordersCollection, orderID), decodeOrder)
	if err != nil {
		return domain.Order{}, err
	}
	if !ok {
		return domain.Order{}, repositories.NotFound("orders.get", "order %s not found", orderID)
	}
	return v.(domain.Order), nil
}

func (t *ledgerTx) InsertOrder(_ context.Context, order domain.Order) error {
	order.Version = 1
	t.stage(t.doc(ordersCollection, order.ID), order, newOrderDocument(order), true)
	return nil
}

func (t *ledgerTx) UpdateOrder(ctx context.Context, order domain.Order) error {
	current, err := t.GetOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	order.Version = current.Version + 1
	t.stage(t.doc(ordersCollection, order.ID), order, newOrderDocument(order), false)
	return nil
}

func (t *ledgerTx) InsertLineItems(_ context.Context, items []domain.OrderLineItem) error {
	for _, item := range items {
		t.stage(t.doc(orderItemsCollection, item.ID), item, newLineItemDocument(item), true)
	}
	return nil
}

func (t *ledgerTx) ListLineItems(_ context.Context, orderID string) ([]domain.OrderLineItem, error) {
	query := t.client.Collection(orderItemsCollection).Where("orderId", "==", orderID)
	snaps, err := t.tx.Documents(query).GetAll()
	if err != nil {
		return nil, pfirestore.WrapError("orderItems.query", err)
	}
	seen := make(map[string]bool, len(snaps))
	items := make([]domain.OrderLineItem, 0, len(snaps))
	for _, snap := range snaps {
		v, err := decodeLineItem(snap)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", snap.Ref.Path, err)
		}
		seen[snap.Ref.Path] = true
		items = append(items, v.(domain.OrderLineItem))
	}
	for path, w := range t.writes {
		if item, ok := w.value.(domain.OrderLineItem); ok && item.OrderID == orderID && !seen[path] {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
