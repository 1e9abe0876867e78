// Package memory provides an in-process Ledger with optimistic concurrency control. Every record
// carries a version counter; transactions buffer writes and validate the versions they read at
// commit, retrying from scratch when another transaction committed first.
package memory

import (
	"context"
	"errors"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/Abhranil-01/dsport-backend-api/internal/domain"
	"github.com/Abhranil-01/dsport-backend-api/internal/repositories"
)

const (
	defaultMaxAttempts = 16
	baseRetryDelay     = 200 * time.Microsecond
)

var errConflict = repositories.NewLedgerError("memory.commit", repositories.LedgerErrorConflict, "concurrent modification detected")

type entry struct {
	version int64
	value   any
}

// Ledger is a concurrency-safe in-memory implementation of repositories.Ledger.
type Ledger struct {
	mu          sync.Mutex
	records     map[string]entry
	maxAttempts int
	clock       func() time.Time
}

// Option customises the Ledger.
type Option func(*Ledger)

// WithMaxAttempts overrides how many times a conflicting transaction is retried.
func WithMaxAttempts(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxAttempts = n
		}
	}
}

// WithClock overrides the clock used to stamp stock updates.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// NewLedger constructs an empty ledger.
func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{
		records:     make(map[string]entry),
		maxAttempts: defaultMaxAttempts,
		clock:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// RunInTx executes fn with optimistic validation at commit.
func (l *Ledger) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repositories.LedgerTx) error) error {
	if fn == nil {
		return errors.New("memory ledger: transaction function is nil")
	}
	var lastErr error
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx := &ledgerTx{
			store:  l,
			reads:  make(map[string]entry),
			writes: make(map[string]*entry),
		}
		if err := fn(ctx, tx); err != nil {
			// An abort decided on a snapshot that has since moved is retried against fresh state.
			if l.stale(tx) && attempt < l.maxAttempts {
				lastErr = err
				continue
			}
			return err
		}
		err := l.commit(tx)
		if err == nil {
			return nil
		}
		lastErr = err
		backoff := baseRetryDelay * time.Duration(attempt)
		time.Sleep(backoff + rand.N(backoff))
	}
	return lastErr
}

// Close is a no-op for the in-memory store.
func (l *Ledger) Close(context.Context) error { return nil }

func (l *Ledger) commit(tx *ledgerTx) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.staleLocked(tx) {
		return errConflict
	}
	for _, key := range tx.order {
		w := tx.writes[key]
		current := l.records[key]
		if w == nil {
			// Tombstones keep the version monotonic so a recreated record never matches a stale read.
			l.records[key] = entry{version: current.version + 1}
			continue
		}
		l.records[key] = entry{version: current.version + 1, value: w.value}
	}
	for _, userID := range tx.touchedCarts {
		key := cartIndexKey(userID)
		l.records[key] = entry{version: l.records[key].version + 1}
	}
	return nil
}

func (l *Ledger) stale(tx *ledgerTx) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.staleLocked(tx)
}

func (l *Ledger) staleLocked(tx *ledgerTx) bool {
	for key, seen := range tx.reads {
		if l.records[key].version != seen.version {
			return true
		}
	}
	return false
}

func (l *Ledger) read(key string) (entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.records[key]
	return e, ok
}

func (l *Ledger) put(key string, value any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[key] = entry{version: l.records[key].version + 1, value: value}
}

// SeedAddress stores an address outside of a transaction.
func (l *Ledger) SeedAddress(addr domain.Address) { l.put(addressKey(addr.ID), addr) }

// SeedUser stores a user profile outside of a transaction.
func (l *Ledger) SeedUser(user domain.User) { l.put(userKey(user.ID), user) }

// SeedStock stores a stock record outside of a transaction.
func (l *Ledger) SeedStock(stock domain.StockRecord) {
	if stock.UpdatedAt.IsZero() {
		stock.UpdatedAt = l.clock().UTC()
	}
	l.put(stockKey(stock.Key), stock)
}

// SeedCartItem stores a cart item outside of a transaction.
func (l *Ledger) SeedCartItem(item domain.CartItem) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := cartKey(item.ID)
	l.records[key] = entry{version: l.records[key].version + 1, value: item}
	idx := cartIndexKey(item.UserID)
	l.records[idx] = entry{version: l.records[idx].version + 1}
}

// Stock returns the committed stock record for key.
func (l *Ledger) Stock(key string) (domain.StockRecord, bool) {
	e, ok := l.read(stockKey(key))
	if !ok || e.value == nil {
		return domain.StockRecord{}, false
	}
	stock := e.value.(domain.StockRecord)
	stock.Version = e.version
	return stock, true
}

// ListOrdersByUser implements repositories.OrderReader, newest first.
func (l *Ledger) ListOrdersByUser(_ context.Context, userID string, limit int) ([]domain.Order, error) {
	l.mu.Lock()
	var orders []domain.Order
	for key, e := range l.records {
		if !strings.HasPrefix(key, prefixOrder) || e.value == nil {
			continue
		}
		order := cloneOrder(e.value.(domain.Order))
		if order.UserID != userID {
			continue
		}
		order.Version = e.version
		orders = append(orders, order)
	}
	l.mu.Unlock()

	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID > orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

const (
	prefixAddress   = "addresses/"
	prefixUser      = "users/"
	prefixCart      = "cartItems/"
	prefixCartIndex = "cartIndex/"
	prefixStock     = "stockRecords/"
	prefixCharges   = "charges/"
	prefixOrder     = "orders/"
	prefixLines     = "orderItems/"
)

func addressKey(id string) string { return prefixAddress + id }
func userKey(id string) string { return prefixUser + id }
func cartKey(id string) string { return prefixCart + id }
func cartIndexKey(uid string) string { return prefixCartIndex + uid }
func stockKey(key string) string { return prefixStock + key }
func chargesKey(uid string) string { return prefixCharges + uid }
func orderKey(id string) string { return prefixOrder + id }
func lineItemsKey(order string) string { return prefixLines + order }

func cloneOrder(o domain.Order) domain.Order {
	if o.Payment != nil {
		p := *o.Payment
		o.Payment = &p
	}
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		o.DeliveredAt = &t
	}
	if o.CancelledAt != nil {
		t := *o.CancelledAt
		o.CancelledAt = &t
	}
	return o
}
